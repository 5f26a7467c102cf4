// proctor-replay: run recorded observations through the detection
// pipeline on a simulated clock and deliver the resulting events
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/audioio"
	"github.com/teslashibe/go-proctor/pkg/pipeline"
	"github.com/teslashibe/go-proctor/pkg/sink"
)

var (
	input      = flag.String("in", "-", "JSON-lines observation file (- for stdin)")
	configPath = flag.String("config", "", "YAML config file (pipeline section is used)")
	sessionID  = flag.String("session", "replay", "Session ID attached to events")
	httpURL    = flag.String("http", "", "Events API base URL (e.g. http://localhost:5000)")
	wsURL      = flag.String("ws", "", "WebSocket URL to send events messages to")
	quiet      = flag.Bool("quiet", false, "Do not write events to stdout")
	focus      = flag.Duration("focus-threshold", 0, "Override the focus threshold")
	cooldown   = flag.Duration("cooldown", -1, "Override the event cooldown")
	tone       = flag.Float64("tone", 0, "Attach a sine tone of this frequency (Hz) to observations without audio")
	toneLevel  = flag.Float64("tone-amplitude", 0.1, "Amplitude of the -tone signal (0-1)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := "warn"
	if *debug {
		level = "debug"
	}
	log.Init(level, false)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "proctor-replay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	pcfg := cfg.Pipeline
	if *focus > 0 {
		pcfg = pcfg.WithFocusThreshold(*focus)
	}
	if *cooldown >= 0 {
		pcfg = pcfg.WithEventCooldown(*cooldown)
	}

	var out sink.Multi
	if !*quiet {
		out = append(out, sink.NewWriter(os.Stdout, *sessionID))
	}
	if *httpURL != "" {
		out = append(out, sink.NewHTTP(*httpURL, *sessionID))
	}
	if *wsURL != "" {
		ws := sink.NewWebSocket(*wsURL, *sessionID, log.L())
		defer ws.Close()
		out = append(out, ws)
	}

	var src *audioio.Tone
	if *tone > 0 {
		src = audioio.NewTone(cfg.Audio, *tone, *toneLevel)
	}

	r, err := NewReplayer(pcfg, out, src,
		pipeline.WithLogger(log.With("session_id", *sessionID)),
		pipeline.WithSessionID(*sessionID),
	)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	runErr := r.Run(ctx, in)
	summary := r.Summary()
	summary.Print(os.Stderr)
	fmt.Fprintf(os.Stderr, "wall time:  %v\n", time.Since(started).Round(time.Millisecond))
	return runErr
}
