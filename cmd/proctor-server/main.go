// proctor-server: session storage, reports and live detection pipelines
// for proctored interviews
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/internal/metrics"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/detection/cv"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/server"
	"github.com/teslashibe/go-proctor/pkg/store/sqlite"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	port       = flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug logging and request logs")
	models     = flag.Bool("models", false, "Run face and object models on frame messages")
)

func main() {
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}
	if *debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
	}
	if *models {
		cfg.Models.Enabled = true
	}

	logger := log.Init(cfg.Log.Level, cfg.Log.JSON)

	if err := run(cfg); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	db, err := sqlite.Open(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database opened", "path", cfg.Server.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := hub.New("events", log.L())
	go events.Run(ctx)

	var extractor detection.Extractor
	if cfg.Models.Enabled {
		face := cv.DefaultFaceConfig()
		face.ModelPath = cfg.Models.FaceModel
		face.ConfidenceThresh = cfg.Models.FaceConfidence
		obj := cv.DefaultObjectConfig()
		obj.ModelPath = cfg.Models.ObjectModel
		obj.ConfidenceThresh = float32(cfg.Models.ObjectConfidence)

		ex, err := cv.NewExtractor(face, obj)
		if err != nil {
			return fmt.Errorf("failed to load models: %w", err)
		}
		defer ex.Close()
		extractor = ex
		log.Info("models loaded", "face", face.ModelPath, "objects", obj.ModelPath)
	}

	srv, err := server.New(server.Options{
		Candidates:  sqlite.NewCandidateRepository(db),
		Sessions:    sqlite.NewSessionRepository(db),
		Events:      sqlite.NewEventRepository(db),
		Hub:         events,
		Metrics:     metrics.New(),
		Extractor:   extractor,
		Pipeline:    cfg.Pipeline,
		CORSOrigins: cfg.Server.CORSOrigins,
		RequestLog:  cfg.Server.Debug,
		Logger:      log.L(),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting proctor-server",
			"version", server.Version,
			"addr", cfg.Server.Addr(),
			"inference", extractor != nil,
		)
		errCh <- srv.Listen(cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("goodbye")
	return nil
}
