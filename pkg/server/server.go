// Package server is the proctoring HTTP and WebSocket service: session and
// event storage, integrity reports, live event feeds, and per-connection
// detection pipelines for capture clients.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-proctor/internal/metrics"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/pipeline"
	"github.com/teslashibe/go-proctor/pkg/store"
)

// Version is reported by /health
const Version = "1.0.0"

// Options configures a Server
type Options struct {
	Candidates store.CandidateRepository
	Sessions   store.SessionRepository
	Events     store.EventRepository
	Hub        *hub.Hub

	// Metrics defaults to a fresh registry
	Metrics *metrics.Metrics

	// Extractor runs inference on frame messages. Frames are rejected when nil.
	Extractor detection.Extractor

	// Pipeline is the base configuration for monitor connections
	Pipeline pipeline.Config

	CORSOrigins string
	RequestLog  bool
	Logger      *slog.Logger
	Now         func() time.Time
}

// Server hosts the REST API and WebSocket endpoints
type Server struct {
	app        *fiber.App
	candidates store.CandidateRepository
	sessions   store.SessionRepository
	events     store.EventRepository
	hub        *hub.Hub
	metrics    *metrics.Metrics
	extractor  detection.Extractor
	pcfg       pipeline.Config
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	monitors map[*monitor]struct{}
}

// New builds the fiber app and registers every route
func New(opts Options) (*Server, error) {
	if opts.Candidates == nil || opts.Sessions == nil || opts.Events == nil {
		return nil, errors.New("server: candidate, session and event repositories are required")
	}
	if opts.Hub == nil {
		return nil, errors.New("server: hub is required")
	}
	if err := opts.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CORSOrigins == "" {
		opts.CORSOrigins = "*"
	}

	s := &Server{
		candidates: opts.Candidates,
		sessions:   opts.Sessions,
		events:     opts.Events,
		hub:        opts.Hub,
		metrics:    opts.Metrics,
		pcfg:       opts.Pipeline,
		logger:     opts.Logger.With("component", "server"),
		now:        opts.Now,
		monitors:   make(map[*monitor]struct{}),
	}
	if opts.Extractor != nil {
		s.extractor = &lockedExtractor{ex: opts.Extractor}
	}

	app := fiber.New(fiber.Config{
		AppName:               "proctor-server",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
		BodyLimit:             8 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if opts.RequestLog {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := app.Group("/api")
	s.registerCandidateRoutes(api.Group("/candidates"))
	s.registerSessionRoutes(api.Group("/sessions"))
	s.registerEventRoutes(api.Group("/events"))
	s.registerReportRoutes(api.Group("/reports"))

	s.registerWebSocketRoutes(app)

	s.app = app
	return s, nil
}

// App returns the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown closes monitor connections, which stops and flushes their
// pipelines, then shuts the app down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	monitors := make([]*monitor, 0, len(s.monitors))
	for m := range s.monitors {
		monitors = append(monitors, m)
	}
	s.mu.Unlock()

	for _, m := range monitors {
		m.close()
	}
	return s.app.ShutdownWithContext(ctx)
}

// MonitorCount returns the number of open monitor connections
func (s *Server) MonitorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitors)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"version":     Version,
		"monitors":    s.MonitorCount(),
		"subscribers": s.hub.ClientCount(),
		"inference":   s.extractor != nil,
	})
}

// lockedExtractor serializes inference. OpenCV networks are not safe for
// concurrent Forward calls.
type lockedExtractor struct {
	mu sync.Mutex
	ex detection.Extractor
}

func (l *lockedExtractor) Extract(jpeg []byte, ts time.Time) (detection.Observation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ex.Extract(jpeg, ts)
}
