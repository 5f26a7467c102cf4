package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/pkg/audioio"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/pipeline"
	"github.com/teslashibe/go-proctor/pkg/sink"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// maxLineSize bounds one JSON observation line
const maxLineSize = 4 * 1024 * 1024

// Replayer drives a pipeline from recorded observations on a simulated
// clock. Ticks fire every DetectionInterval of simulated time; an
// observation is consumed by the first tick at or after its timestamp.
type Replayer struct {
	cfg     pipeline.Config
	mailbox *detection.Mailbox
	pipe    *pipeline.Pipeline
	counter *countingSink
	tone    *audioio.Tone

	start     time.Time
	now       time.Time
	lastFlush time.Time
	lines     int
}

// NewReplayer creates a replayer delivering to out. tone, when set,
// supplies audio for observations that carry none.
func NewReplayer(cfg pipeline.Config, out sink.Sink, tone *audioio.Tone, opts ...pipeline.Option) (*Replayer, error) {
	r := &Replayer{
		cfg:     cfg,
		mailbox: detection.NewMailbox(),
		counter: &countingSink{next: out, counts: make(map[violation.EventType]int)},
		tone:    tone,
	}
	opts = append(opts, pipeline.WithClock(func() time.Time { return r.now }))
	p, err := pipeline.New(cfg, r.mailbox, r.counter, opts...)
	if err != nil {
		return nil, err
	}
	r.pipe = p
	return r, nil
}

// Run replays every JSON-lines observation from in. Observations without
// a timestamp are placed one tick after the previous one.
func (r *Replayer) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.lines++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var obs detection.Observation
		if err := json.Unmarshal(line, &obs); err != nil {
			return fmt.Errorf("line %d: %w", r.lines, err)
		}
		if err := r.Observe(ctx, obs); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return r.Finish(ctx)
}

// Observe advances simulated time to obs and ticks it through the pipeline
func (r *Replayer) Observe(ctx context.Context, obs detection.Observation) error {
	if r.now.IsZero() {
		start := obs.Timestamp
		if start.IsZero() {
			start = time.Unix(0, 0).UTC()
		}
		r.start = start
		r.now = start.Add(-r.cfg.DetectionInterval)
		r.lastFlush = start
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = r.now.Add(r.cfg.DetectionInterval)
	}

	// Empty ticks up to the observation
	for r.now.Add(r.cfg.DetectionInterval).Before(obs.Timestamp) {
		r.step(ctx)
	}

	if obs.Audio == nil && r.tone != nil {
		chunk := r.tone.Chunk()
		obs.Audio = chunk.Float()
	}
	r.mailbox.Put(obs)
	r.step(ctx)
	return nil
}

// step fires one tick and a flush when the flush interval has elapsed
func (r *Replayer) step(ctx context.Context) {
	r.now = r.now.Add(r.cfg.DetectionInterval)
	r.pipe.Tick(r.now)
	if r.now.Sub(r.lastFlush) >= r.cfg.FlushInterval {
		r.lastFlush = r.now
		r.pipe.Flush(ctx)
	}
}

// Finish flushes whatever is still queued
func (r *Replayer) Finish(ctx context.Context) error {
	return r.pipe.Flush(ctx)
}

// Summary describes a finished replay
type Summary struct {
	Lines  int
	Stats  pipeline.Stats
	ByType map[violation.EventType]int

	// Span is the simulated time covered
	Span time.Duration
}

// Summary returns counters for the replay so far
func (r *Replayer) Summary() Summary {
	s := Summary{
		Lines:  r.lines,
		Stats:  r.pipe.Stats(),
		ByType: r.counter.snapshot(),
	}
	if !r.start.IsZero() {
		s.Span = r.now.Sub(r.start)
	}
	return s
}

// Print writes a human-readable summary
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "lines:      %d\n", s.Lines)
	fmt.Fprintf(w, "span:       %v\n", s.Span)
	fmt.Fprintf(w, "ticks:      %d (%d skipped)\n", s.Stats.Ticks+s.Stats.Skipped, s.Stats.Skipped)
	fmt.Fprintf(w, "emitted:    %d\n", s.Stats.Emitted)
	fmt.Fprintf(w, "suppressed: %d\n", s.Stats.Suppressed)
	fmt.Fprintf(w, "delivered:  %d\n", s.Stats.Flushed)
	if s.Stats.Dropped > 0 || s.Stats.FlushFailures > 0 {
		fmt.Fprintf(w, "dropped:    %d (%d failed flushes)\n", s.Stats.Dropped, s.Stats.FlushFailures)
	}

	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-20s %d\n", t, s.ByType[violation.EventType(t)])
	}
}

// countingSink tallies delivered events by type
type countingSink struct {
	next sink.Sink

	mu     sync.Mutex
	counts map[violation.EventType]int
}

func (c *countingSink) Send(ctx context.Context, events []violation.Event) error {
	if err := c.next.Send(ctx, events); err != nil {
		return err
	}
	c.mu.Lock()
	for _, e := range events {
		c.counts[e.Type]++
	}
	c.mu.Unlock()
	return nil
}

func (c *countingSink) snapshot() map[violation.EventType]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[violation.EventType]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
