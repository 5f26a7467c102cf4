package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-proctor/pkg/store"
)

// Page is the pagination block of a list response
type Page struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pages returns the page count for total rows
func (p Page) Pages(total int) int {
	if p.Limit <= 0 {
		return 1
	}
	return (total + p.Limit - 1) / p.Limit
}

func parsePage(c *fiber.Ctx, defLimit int) Page {
	p := Page{Page: c.QueryInt("page", 1), Limit: c.QueryInt("limit", defLimit)}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defLimit
	}
	return p
}

func sendData(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func sendList[T any](c *fiber.Ctx, items []T, total int, p Page) error {
	if items == nil {
		items = []T{}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(items),
		"total":   total,
		"page":    p.Page,
		"pages":   p.Pages(total),
		"data":    items,
	})
}

func sendMessage(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}

func sendError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// storeError maps repository errors onto responses. notFound is the
// message used for store.ErrNotFound.
func (s *Server) storeError(c *fiber.Ctx, err error, notFound string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return sendError(c, fiber.StatusNotFound, notFound)
	case errors.Is(err, store.ErrSessionInactive):
		return sendError(c, fiber.StatusBadRequest, "Session is not active")
	case errors.Is(err, store.ErrInvalidEvent):
		return sendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidCandidate):
		return sendError(c, fiber.StatusBadRequest, strings.TrimPrefix(err.Error(), store.ErrInvalidCandidate.Error()+": "))
	case errors.Is(err, store.ErrDuplicateEmail):
		return sendError(c, fiber.StatusBadRequest, "Candidate with this email already exists")
	case errors.Is(err, store.ErrCandidateBusy):
		return sendError(c, fiber.StatusBadRequest, "Cannot delete candidate with active interview sessions")
	}
	s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Server Error",
		"error":   err.Error(),
	})
}

// handleError renders errors returned by handlers and middleware in the
// response envelope
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("unhandled error", "path", c.Path(), "error", err)
	}
	return sendError(c, code, err.Error())
}
