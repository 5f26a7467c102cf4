// Package pipeline drives one proctoring session: it samples observations
// on a fixed tick, turns them into debounced violation events, and flushes
// the queued events to a sink on a separate cadence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/features"
	"github.com/teslashibe/go-proctor/pkg/sink"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

var (
	ErrAlreadyStarted = errors.New("pipeline: already started")
	ErrStopped        = errors.New("pipeline: stopped")
	ErrNilSource      = errors.New("pipeline: nil source")
	ErrNilSink        = errors.New("pipeline: nil sink")
)

// Recorder receives pipeline measurements
type Recorder interface {
	Tick(skipped bool)
	Emitted(events []violation.Event)
	Suppressed(events []violation.Event)
	Dropped(n int)
	Flushed(n int, err error)
	QueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) Tick(bool)                    {}
func (nopRecorder) Emitted([]violation.Event)    {}
func (nopRecorder) Suppressed([]violation.Event) {}
func (nopRecorder) Dropped(int)                  {}
func (nopRecorder) Flushed(int, error)           {}
func (nopRecorder) QueueDepth(int)               {}

// Stats are cumulative counters for one pipeline
type Stats struct {
	Ticks         uint64 `json:"ticks"`
	Skipped       uint64 `json:"skipped"`
	Emitted       uint64 `json:"emitted"`
	Suppressed    uint64 `json:"suppressed"`
	Dropped       uint64 `json:"dropped"`
	Flushed       uint64 `json:"flushed"`
	FlushFailures uint64 `json:"flush_failures"`
}

// Status is a point-in-time view of the pipeline
type Status struct {
	SessionID  string                           `json:"session_id"`
	Running    bool                             `json:"running"`
	QueueDepth int                              `json:"queue_depth"`
	Stats      Stats                            `json:"stats"`
	Features   *features.FeatureSet             `json:"features,omitempty"`
	States     map[string]violation.SignalState `json:"states"`
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.rec = r }
}

// WithClock sets the time source used when an observation has no timestamp
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSessionID tags logs and status with a session
func WithSessionID(id string) Option {
	return func(p *Pipeline) { p.sessionID = id }
}

// Pipeline is one session's detection-and-event loop. Started pipelines
// run Tick and Flush from a single goroutine.
type Pipeline struct {
	cfg       Config
	fcfg      features.Config
	source    detection.Source
	sink      sink.Sink
	logger    *slog.Logger
	rec       Recorder
	now       func() time.Time
	sessionID string

	// mu guards the session state below
	mu        sync.Mutex
	machine   *violation.Machine
	debouncer *violation.Debouncer
	smoother  *features.Smoother
	last      *features.FeatureSet
	queue     *Queue

	// flushMu serializes flushes so batches reach the sink in order
	flushMu sync.Mutex

	lifeMu  sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	ticks         atomic.Uint64
	skipped       atomic.Uint64
	emitted       atomic.Uint64
	suppressed    atomic.Uint64
	dropped       atomic.Uint64
	flushed       atomic.Uint64
	flushFailures atomic.Uint64
}

// New creates a pipeline reading from source and delivering to sk
func New(cfg Config, source detection.Source, sk sink.Sink, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrNilSource
	}
	if sk == nil {
		return nil, ErrNilSink
	}

	p := &Pipeline{
		cfg:       cfg,
		fcfg:      cfg.Features(),
		source:    source,
		sink:      sk,
		logger:    slog.Default(),
		rec:       nopRecorder{},
		now:       time.Now,
		machine:   violation.NewMachine(cfg.Thresholds()),
		debouncer: violation.NewDebouncer(cfg.EventCooldown),
		smoother:  features.NewSmoother(cfg.AudioSmoothing),
		queue:     NewQueue(cfg.MaxQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sessionID != "" {
		p.logger = p.logger.With("session_id", p.sessionID)
	}
	return p, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Reset returns every condition to inactive and clears smoothing and
// debounce history. Queued events are kept.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.machine.Reset()
	p.debouncer.Reset()
	p.smoother.Reset()
	p.last = nil
}

// Start resets the session state and runs the tick and flush timers until
// Stop is called or ctx is done.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	p.Reset()

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)

	p.logger.Info("pipeline started",
		"detection_interval", p.cfg.DetectionInterval,
		"flush_interval", p.cfg.FlushInterval,
	)
	return nil
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)

	tickTicker := time.NewTicker(p.cfg.DetectionInterval)
	defer tickTicker.Stop()
	flushTicker := time.NewTicker(p.cfg.FlushInterval)
	defer flushTicker.Stop()

	// A flush already in progress completes even if Stop cancels ctx.
	flushCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tickTicker.C:
			p.Tick(now)
		case <-flushTicker.C:
			p.Flush(flushCtx)
		}
	}
}

// Stop cancels both timers and performs one final flush. Calling Stop
// again is a no-op.
func (p *Pipeline) Stop() error {
	p.lifeMu.Lock()
	if p.stopped {
		p.lifeMu.Unlock()
		return nil
	}
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.lifeMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	err := p.Flush(context.Background())
	s := p.Stats()
	p.logger.Info("pipeline stopped",
		"ticks", s.Ticks,
		"emitted", s.Emitted,
		"suppressed", s.Suppressed,
		"dropped", s.Dropped,
	)
	return err
}

// Running reports whether the timers are active
func (p *Pipeline) Running() bool {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	return p.started && !p.stopped
}

// Tick processes one observation, if the source has one, and returns the
// events it admitted to the queue. now is used when the observation carries
// no timestamp.
func (p *Pipeline) Tick(now time.Time) []violation.Event {
	obs, ok := p.source.Next()
	if !ok {
		p.skipped.Add(1)
		p.rec.Tick(true)
		return nil
	}
	return p.Process(obs, now)
}

// Process runs one observation through the pipeline directly, bypassing
// the source.
func (p *Pipeline) Process(obs detection.Observation, now time.Time) []violation.Event {
	at := obs.Timestamp
	if at.IsZero() {
		if now.IsZero() {
			now = p.now()
		}
		at = now
	}

	p.mu.Lock()
	fs := features.Compute(obs, p.fcfg)
	if fs.AudioAvailable {
		fs.AudioLevel = p.smoother.Update(fs.AudioLevel)
	} else {
		// hold the last level so a late mic chunk does not end the voice span
		fs.AudioLevel = p.smoother.Value()
	}
	candidates := p.machine.Evaluate(fs, at)
	admitted, suppressed := p.debouncer.Filter(candidates)
	p.machine.MarkEmitted(admitted)
	p.last = &fs
	p.mu.Unlock()

	p.ticks.Add(1)
	p.rec.Tick(false)

	if len(suppressed) > 0 {
		p.suppressed.Add(uint64(len(suppressed)))
		p.rec.Suppressed(suppressed)
	}
	if len(admitted) == 0 {
		return nil
	}

	p.emitted.Add(uint64(len(admitted)))
	p.rec.Emitted(admitted)
	if n := p.queue.Push(admitted...); n > 0 {
		p.dropped.Add(uint64(n))
		p.rec.Dropped(n)
		p.logger.Warn("event queue full, dropped oldest", "dropped", n, "max", p.cfg.MaxQueueSize)
	}
	p.rec.QueueDepth(p.queue.Len())

	for _, e := range admitted {
		p.logger.Debug("violation", "type", e.Type, "severity", e.Severity, "at", at)
	}
	return admitted
}

// Flush drains the queue and hands the batch to the sink. Failed batches
// are logged and dropped, not retried.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	batch := p.queue.Drain()
	p.rec.QueueDepth(0)
	if len(batch) == 0 {
		return nil
	}

	if p.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.FlushTimeout)
		defer cancel()
	}

	err := p.sink.Send(ctx, batch)
	p.rec.Flushed(len(batch), err)
	if err != nil {
		p.flushFailures.Add(1)
		p.logger.Warn("flush failed, events lost", "count", len(batch), "error", err)
		return fmt.Errorf("pipeline: flush %d events: %w", len(batch), err)
	}
	p.flushed.Add(uint64(len(batch)))
	p.logger.Debug("flushed events", "count", len(batch))
	return nil
}

// QueueLen returns the number of events waiting for flush
func (p *Pipeline) QueueLen() int {
	return p.queue.Len()
}

// Stats returns the cumulative counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Ticks:         p.ticks.Load(),
		Skipped:       p.skipped.Load(),
		Emitted:       p.emitted.Load(),
		Suppressed:    p.suppressed.Load(),
		Dropped:       p.dropped.Load(),
		Flushed:       p.flushed.Load(),
		FlushFailures: p.flushFailures.Load(),
	}
}

// Status returns a snapshot for dashboards
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	states := p.machine.States()
	var last *features.FeatureSet
	if p.last != nil {
		fs := *p.last
		last = &fs
	}
	p.mu.Unlock()

	return Status{
		SessionID:  p.sessionID,
		Running:    p.Running(),
		QueueDepth: p.queue.Len(),
		Stats:      p.Stats(),
		Features:   last,
		States:     states,
	}
}
