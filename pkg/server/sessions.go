package server

import (
	"cmp"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-proctor/pkg/report"
	"github.com/teslashibe/go-proctor/pkg/store"
)

const (
	sessionNotFound = "Interview session not found"
	maxNotesLength  = 1000
)

func (s *Server) registerSessionRoutes(r fiber.Router) {
	r.Get("/", s.listSessions)
	r.Post("/", s.createSession)
	r.Get("/stats", s.sessionStats)
	r.Get("/:id", s.getSession)
	r.Put("/:id", s.updateSession)
	r.Delete("/:id", s.deleteSession)
	r.Post("/:id/end", s.endSession)
}

// CreateSessionRequest is the body of POST /api/sessions
type CreateSessionRequest struct {
	CandidateID    string     `json:"candidateId"`
	CandidateName  string     `json:"candidateName"`
	CandidateEmail string     `json:"candidateEmail"`
	Position       string     `json:"position"`
	StartTime      *time.Time `json:"startTime"`
	Notes          string     `json:"sessionNotes"`
}

// UpdateSessionRequest is the body of PUT /api/sessions/:id. Nil fields are
// left unchanged.
type UpdateSessionRequest struct {
	Status         *store.SessionStatus `json:"status"`
	CandidateName  *string              `json:"candidateName"`
	CandidateEmail *string              `json:"candidateEmail"`
	Position       *string              `json:"position"`
	Notes          *string              `json:"sessionNotes"`
}

// SessionDetail is a session with its events in timestamp order
type SessionDetail struct {
	*store.Session
	Events []store.EventRecord `json:"events"`
}

// SessionStats summarizes all sessions
type SessionStats struct {
	Total             int                         `json:"total"`
	Active            int                         `json:"active"`
	Completed         int                         `json:"completed"`
	AvgIntegrityScore float64                     `json:"avgIntegrityScore"`
	ByStatus          map[store.SessionStatus]int `json:"byStatus"`
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	p := parsePage(c, 10)
	f := store.SessionFilter{
		Status:      store.SessionStatus(c.Query("status")),
		CandidateID: c.Query("candidateId"),
		Limit:       p.Limit,
		Offset:      p.Offset(),
	}
	if f.Status != "" && !f.Status.Valid() {
		return sendError(c, fiber.StatusBadRequest, "Status must be one of: active, completed, terminated, paused")
	}

	sessions, total, err := s.sessions.List(c.UserContext(), f)
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	return sendList(c, sessions, total, p)
}

func (s *Server) createSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.CandidateID == "" {
		return sendError(c, fiber.StatusBadRequest, "Please provide a valid candidate ID")
	}
	if len(req.Notes) > maxNotesLength {
		return sendError(c, fiber.StatusBadRequest, "Session notes cannot exceed 1000 characters")
	}

	ctx := c.UserContext()
	cand, err := s.candidates.Get(ctx, req.CandidateID)
	if err != nil {
		return s.storeError(c, err, candidateNotFound)
	}
	_, active, err := s.sessions.List(ctx, store.SessionFilter{
		Status:      store.StatusActive,
		CandidateID: req.CandidateID,
		Limit:       1,
	})
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	if active > 0 {
		return sendError(c, fiber.StatusBadRequest, "Candidate already has an active interview session")
	}

	sess := &store.Session{
		CandidateID:    cand.ID,
		CandidateName:  cmp.Or(req.CandidateName, cand.Name),
		CandidateEmail: cmp.Or(req.CandidateEmail, cand.Email),
		Position:       cmp.Or(req.Position, cand.Position),
		Notes:          req.Notes,
	}
	if req.StartTime != nil {
		sess.StartTime = *req.StartTime
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return s.storeError(c, err, sessionNotFound)
	}

	s.setCandidateStatus(c, cand.ID, store.CandidateInProgress)

	s.logger.Info("session created", "session_id", sess.ID, "candidate_id", sess.CandidateID)
	return sendData(c, fiber.StatusCreated, sess)
}

func (s *Server) getSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sess, err := s.sessions.Get(ctx, c.Params("id"))
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	events, err := s.events.ListBySession(ctx, sess.ID)
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	if events == nil {
		events = []store.EventRecord{}
	}
	return sendData(c, fiber.StatusOK, SessionDetail{Session: sess, Events: events})
}

// updateSession applies a partial update. Moving an active session to
// completed scores it the same way POST /end does.
func (s *Server) updateSession(c *fiber.Ctx) error {
	var req UpdateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Status != nil && !req.Status.Valid() {
		return sendError(c, fiber.StatusBadRequest, "Status must be one of: active, completed, terminated, paused")
	}
	if req.Notes != nil && len(*req.Notes) > maxNotesLength {
		return sendError(c, fiber.StatusBadRequest, "Session notes cannot exceed 1000 characters")
	}

	ctx := c.UserContext()
	id := c.Params("id")
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}

	if req.Status != nil && *req.Status == store.StatusCompleted && sess.Status == store.StatusActive {
		if sess, err = s.finish(c, id); err != nil {
			return s.storeError(c, err, sessionNotFound)
		}
	} else if req.Status != nil {
		sess.Status = *req.Status
	}

	if req.CandidateName != nil {
		sess.CandidateName = *req.CandidateName
	}
	if req.CandidateEmail != nil {
		sess.CandidateEmail = *req.CandidateEmail
	}
	if req.Position != nil {
		sess.Position = *req.Position
	}
	if req.Notes != nil {
		sess.Notes = *req.Notes
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	return sendData(c, fiber.StatusOK, sess)
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	if err := s.sessions.Delete(c.UserContext(), c.Params("id")); err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	return sendMessage(c, "Interview session deleted successfully")
}

func (s *Server) endSession(c *fiber.Ctx) error {
	sess, err := s.finish(c, c.Params("id"))
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	return sendData(c, fiber.StatusOK, sess)
}

// finish scores the session's stored events and marks it completed
func (s *Server) finish(c *fiber.Ctx, id string) (*store.Session, error) {
	ctx := c.UserContext()
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != store.StatusActive {
		return nil, store.ErrSessionInactive
	}
	records, err := s.events.ListBySession(ctx, id)
	if err != nil {
		return nil, err
	}

	out := report.SessionScore(store.Events(records))
	sess, err = s.sessions.End(ctx, id, out, s.now())
	if err != nil {
		return nil, err
	}
	s.setCandidateStatus(c, sess.CandidateID, store.CandidateCompleted)
	s.logger.Info("session ended",
		"session_id", id,
		"integrity_score", out.IntegrityScore,
		"events", out.TotalEvents,
	)
	return sess, nil
}

func (s *Server) sessionStats(c *fiber.Ctx) error {
	sessions, total, err := s.sessions.List(c.UserContext(), store.SessionFilter{})
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}

	st := SessionStats{Total: total, ByStatus: make(map[store.SessionStatus]int)}
	var scoreSum, scored int
	for _, sess := range sessions {
		st.ByStatus[sess.Status]++
		if sess.Status == store.StatusCompleted && sess.IntegrityScore != nil {
			scoreSum += *sess.IntegrityScore
			scored++
		}
	}
	st.Active = st.ByStatus[store.StatusActive]
	st.Completed = st.ByStatus[store.StatusCompleted]
	if scored > 0 {
		st.AvgIntegrityScore = math.Round(float64(scoreSum)/float64(scored)*100) / 100
	}
	return sendData(c, fiber.StatusOK, st)
}
