package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-proctor/pkg/protocol"
	"github.com/teslashibe/go-proctor/pkg/store"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

const eventNotFound = "Detection event not found"

func (s *Server) registerEventRoutes(r fiber.Router) {
	r.Get("/", s.listEvents)
	r.Post("/", s.createEvent)
	r.Post("/bulk", s.bulkCreateEvents)
	r.Get("/stats", s.eventStats)
	r.Get("/session/:sessionId", s.eventsBySession)
	r.Get("/:id", s.getEvent)
	r.Put("/:id", s.updateEvent)
	r.Put("/:id/resolve", s.resolveEvent)
	r.Delete("/:id", s.deleteEvent)
}

// eventError is storeError with the messages the events API uses
func (s *Server) eventError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrSessionInactive):
		return sendError(c, fiber.StatusBadRequest, "Cannot add events to inactive session")
	case errors.Is(err, store.ErrNotFound):
		return sendError(c, fiber.StatusNotFound, sessionNotFound)
	}
	return s.storeError(c, err, eventNotFound)
}

// record persists events for the API and WebSocket ingest paths, then
// publishes them to dashboard subscribers
func (s *Server) record(c *fiber.Ctx, records []store.EventRecord) ([]store.EventRecord, error) {
	stored, err := s.events.InsertBatch(c.UserContext(), records)
	if err != nil {
		return nil, err
	}
	s.metrics.Stored(len(stored))
	s.publish(stored)
	return stored, nil
}

// publish broadcasts stored events grouped by session, keeping order
func (s *Server) publish(records []store.EventRecord) {
	var order []string
	bySession := make(map[string][]violation.Event)
	for _, r := range records {
		if _, ok := bySession[r.SessionID]; !ok {
			order = append(order, r.SessionID)
		}
		bySession[r.SessionID] = append(bySession[r.SessionID], r.Event)
	}
	for _, id := range order {
		if err := s.hub.BroadcastEvents(id, bySession[id]); err != nil {
			s.logger.Warn("broadcast failed", "session_id", id, "error", err)
		}
	}
}

func (s *Server) createEvent(c *fiber.Ctx) error {
	var req protocol.SessionEvent
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.SessionID == "" {
		return sendError(c, fiber.StatusBadRequest, "Please provide a valid session ID")
	}
	if err := store.ValidateEvent(req.Event); err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	stored, err := s.record(c, []store.EventRecord{{SessionID: req.SessionID, Event: req.Event}})
	if err != nil {
		return s.eventError(c, err)
	}
	return sendData(c, fiber.StatusCreated, stored[0])
}

func (s *Server) bulkCreateEvents(c *fiber.Ctx) error {
	var req protocol.BulkRequest
	if err := c.BodyParser(&req); err != nil || len(req.Events) == 0 {
		return sendError(c, fiber.StatusBadRequest, "Events array is required")
	}

	records := make([]store.EventRecord, len(req.Events))
	for i, e := range req.Events {
		if e.SessionID == "" || e.Type == "" || e.Description == "" || e.Severity == "" {
			return sendError(c, fiber.StatusBadRequest, "Each event must have sessionId, type, description, and severity")
		}
		records[i] = store.EventRecord{SessionID: e.SessionID, Event: e.Event}
	}

	stored, err := s.record(c, records)
	if err != nil {
		return s.eventError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"count":   len(stored),
		"data":    stored,
	})
}

func (s *Server) listEvents(c *fiber.Ctx) error {
	p := parsePage(c, 50)
	f := store.EventFilter{
		SessionID: c.Query("sessionId"),
		Type:      violation.EventType(c.Query("type")),
		Severity:  violation.Severity(c.Query("severity")),
		Limit:     p.Limit,
		Offset:    p.Offset(),
	}
	if f.Type != "" && !f.Type.Valid() {
		return sendError(c, fiber.StatusBadRequest, "Please provide a valid event type")
	}
	if f.Severity != "" && !f.Severity.Valid() {
		return sendError(c, fiber.StatusBadRequest, "Severity must be one of: low, medium, high, critical")
	}

	var err error
	if f.Start, err = parseDate(c.Query("startDate"), false); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Please provide a valid start date")
	}
	if f.End, err = parseDate(c.Query("endDate"), true); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Please provide a valid end date")
	}

	events, total, err := s.events.List(c.UserContext(), f)
	if err != nil {
		return s.storeError(c, err, eventNotFound)
	}
	return sendList(c, events, total, p)
}

func (s *Server) eventStats(c *fiber.Ctx) error {
	st, err := s.events.Stats(c.UserContext(), c.Query("sessionId"), s.now())
	if err != nil {
		return s.storeError(c, err, eventNotFound)
	}
	return sendData(c, fiber.StatusOK, st)
}

func (s *Server) eventsBySession(c *fiber.Ctx) error {
	events, err := s.events.ListBySession(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return s.storeError(c, err, eventNotFound)
	}
	if events == nil {
		events = []store.EventRecord{}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(events),
		"data":    events,
	})
}

func (s *Server) getEvent(c *fiber.Ctx) error {
	e, err := s.events.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err, eventNotFound)
	}
	return sendData(c, fiber.StatusOK, e)
}

func (s *Server) resolveEvent(c *fiber.Ctx) error {
	e, err := s.events.Resolve(c.UserContext(), c.Params("id"), s.now())
	if err != nil {
		return s.storeError(c, err, eventNotFound)
	}
	return sendData(c, fiber.StatusOK, e)
}

func (s *Server) updateEvent(c *fiber.Ctx) error {
	var req store.EventUpdate
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	e, err := s.events.Update(c.UserContext(), c.Params("id"), req, s.now())
	if err != nil {
		return s.storeError(c, err, eventNotFound)
	}
	return sendData(c, fiber.StatusOK, e)
}

func (s *Server) deleteEvent(c *fiber.Ctx) error {
	if err := s.events.Delete(c.UserContext(), c.Params("id")); err != nil {
		return s.storeError(c, err, eventNotFound)
	}
	return sendMessage(c, "Detection event deleted successfully")
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(v string, end bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, nil
}
