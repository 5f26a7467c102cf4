package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-proctor/pkg/store"
)

const candidateNotFound = "Candidate not found"

func (s *Server) registerCandidateRoutes(r fiber.Router) {
	r.Get("/", s.listCandidates)
	r.Post("/", s.createCandidate)
	r.Get("/stats", s.candidateStats)
	r.Get("/:id", s.getCandidate)
	r.Put("/:id", s.updateCandidate)
	r.Delete("/:id", s.deleteCandidate)
}

// CandidateRequest is the body of POST and PUT /api/candidates. PUT leaves
// nil fields unchanged; POST requires everything but status and notes.
type CandidateRequest struct {
	Name            *string                `json:"name"`
	Email           *string                `json:"email"`
	Position        *string                `json:"position"`
	InterviewDate   *time.Time             `json:"interviewDate"`
	DurationMinutes *int                   `json:"duration"`
	Status          *store.CandidateStatus `json:"status"`
	Notes           *string                `json:"notes"`
}

func (req CandidateRequest) apply(c *store.Candidate) {
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Position != nil {
		c.Position = *req.Position
	}
	if req.InterviewDate != nil {
		c.InterviewDate = *req.InterviewDate
	}
	if req.DurationMinutes != nil {
		c.DurationMinutes = *req.DurationMinutes
	}
	if req.Status != nil {
		c.Status = *req.Status
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
	}
}

func (s *Server) listCandidates(c *fiber.Ctx) error {
	p := parsePage(c, 10)
	f := store.CandidateFilter{
		Status: store.CandidateStatus(c.Query("status")),
		Search: c.Query("search"),
		Limit:  p.Limit,
		Offset: p.Offset(),
	}
	if f.Status != "" && !f.Status.Valid() {
		return sendError(c, fiber.StatusBadRequest, "Status must be one of: scheduled, in-progress, completed, cancelled")
	}

	candidates, total, err := s.candidates.List(c.UserContext(), f)
	if err != nil {
		return s.storeError(c, err, candidateNotFound)
	}
	return sendList(c, candidates, total, p)
}

func (s *Server) createCandidate(c *fiber.Ctx) error {
	var req CandidateRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	cand := &store.Candidate{}
	req.apply(cand)
	if err := s.candidates.Create(c.UserContext(), cand); err != nil {
		return s.storeError(c, err, candidateNotFound)
	}

	s.logger.Info("candidate created", "candidate_id", cand.ID)
	return sendData(c, fiber.StatusCreated, cand)
}

func (s *Server) getCandidate(c *fiber.Ctx) error {
	cand, err := s.candidates.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err, candidateNotFound)
	}
	return sendData(c, fiber.StatusOK, cand)
}

func (s *Server) updateCandidate(c *fiber.Ctx) error {
	var req CandidateRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	ctx := c.UserContext()
	cand, err := s.candidates.Get(ctx, c.Params("id"))
	if err != nil {
		return s.storeError(c, err, candidateNotFound)
	}
	req.apply(cand)
	if err := s.candidates.Update(ctx, cand); err != nil {
		return s.storeError(c, err, candidateNotFound)
	}
	return sendData(c, fiber.StatusOK, cand)
}

func (s *Server) deleteCandidate(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.candidates.Delete(c.UserContext(), id); err != nil {
		return s.storeError(c, err, candidateNotFound)
	}
	s.logger.Info("candidate deleted", "candidate_id", id)
	return sendMessage(c, "Candidate deleted successfully")
}

func (s *Server) candidateStats(c *fiber.Ctx) error {
	st, err := s.candidates.Stats(c.UserContext(), s.now())
	if err != nil {
		return s.storeError(c, err, candidateNotFound)
	}
	return sendData(c, fiber.StatusOK, st)
}

// setCandidateStatus follows a session transition onto its candidate. A
// candidate deleted since the session began is not an error.
func (s *Server) setCandidateStatus(c *fiber.Ctx, id string, status store.CandidateStatus) {
	if err := s.candidates.SetStatus(c.UserContext(), id, status); err != nil {
		s.logger.Warn("candidate status not updated", "candidate_id", id, "status", status, "error", err)
	}
}
