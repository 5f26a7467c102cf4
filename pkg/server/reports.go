package server

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-proctor/pkg/report"
	"github.com/teslashibe/go-proctor/pkg/store"
)

func (s *Server) registerReportRoutes(r fiber.Router) {
	r.Get("/stats", s.reportStats)
	r.Get("/:sessionId", s.getReport)
	r.Get("/:sessionId/csv", s.getCSVReport)
}

func (s *Server) buildReport(c *fiber.Ctx) (*report.Report, error) {
	ctx := c.UserContext()
	sess, err := s.sessions.Get(ctx, c.Params("sessionId"))
	if err != nil {
		return nil, err
	}
	records, err := s.events.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	cand, err := s.candidates.Get(ctx, sess.CandidateID)
	if errors.Is(err, store.ErrNotFound) {
		cand = nil
	} else if err != nil {
		return nil, err
	}
	r := report.Build(sess, cand, store.Events(records))
	return &r, nil
}

func (s *Server) reportStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sessions, _, err := s.sessions.List(ctx, store.SessionFilter{Status: store.StatusCompleted})
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	st, err := s.events.Stats(ctx, "", s.now())
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	return sendData(c, fiber.StatusOK, report.Stats(sessions, st.ByType))
}

func (s *Server) getReport(c *fiber.Ctx) error {
	r, err := s.buildReport(c)
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	return sendData(c, fiber.StatusOK, r)
}

func (s *Server) getCSVReport(c *fiber.Ctx) error {
	r, err := s.buildReport(c)
	if err != nil {
		return s.storeError(c, err, sessionNotFound)
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, *r); err != nil {
		return s.storeError(c, err, sessionNotFound)
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", report.CSVFilename(*r, s.now())))
	return c.Send(buf.Bytes())
}
