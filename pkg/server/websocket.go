package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	fws "github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-proctor/pkg/audioio"
	"github.com/teslashibe/go-proctor/pkg/audioio/opus"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/pipeline"
	"github.com/teslashibe/go-proctor/pkg/protocol"
	"github.com/teslashibe/go-proctor/pkg/sink"
	"github.com/teslashibe/go-proctor/pkg/store"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// monitorReadLimit bounds inbound frames; JPEG frames are the largest
const monitorReadLimit = 4 * 1024 * 1024

func (s *Server) registerWebSocketRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/monitor/:sessionId", websocket.New(s.handleMonitor))
	app.Get("/ws/events", fws.New(s.handleEventFeed))
	app.Get("/ws/events/:sessionId", fws.New(s.handleEventFeed))
}

// handleEventFeed subscribes a dashboard to one session, or all sessions
// when no ID is given
func (s *Server) handleEventFeed(c *fws.Conn) {
	topic := c.Params("sessionId")
	s.metrics.Subscribers.Add(1)
	defer s.metrics.Subscribers.Add(-1)

	s.logger.Debug("event feed connected", "session_id", topic)
	hub.NewClient(s.hub, c, topic).Run()
	s.logger.Debug("event feed disconnected", "session_id", topic)
}

// ParseOverrides reads per-session pipeline settings from query
// parameters. get returns "" for absent keys.
func ParseOverrides(get func(key string) string) (pipeline.Overrides, error) {
	var o pipeline.Overrides
	ints := []struct {
		key string
		dst **int64
	}{
		{"focusThresholdMs", &o.FocusThresholdMs},
		{"detectionIntervalMs", &o.DetectionIntervalMs},
		{"eventCooldownMs", &o.EventCooldownMs},
	}
	for _, f := range ints {
		if v := get(f.key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return o, fmt.Errorf("invalid %s: %q", f.key, v)
			}
			*f.dst = &n
		}
	}
	floats := []struct {
		key string
		dst **float64
	}{
		{"confidenceThreshold", &o.ConfidenceThreshold},
		{"eyeClosureThreshold", &o.EyeClosureThreshold},
		{"audioThreshold", &o.AudioThreshold},
		{"pitchBaseline", &o.PitchBaseline},
	}
	for _, f := range floats {
		if v := get(f.key); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return o, fmt.Errorf("invalid %s: %q", f.key, v)
			}
			*f.dst = &n
		}
	}
	return o, nil
}

// monitor is one capture client connection and its pipeline
type monitor struct {
	srv       *Server
	conn      *websocket.Conn
	sessionID string
	mailbox   *detection.Mailbox
	pipe      *pipeline.Pipeline

	// wmu serializes writes from the read loop and the pipeline goroutine
	wmu  sync.Mutex
	opus *opus.Decoder
}

func (m *monitor) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	m.wmu.Lock()
	defer m.wmu.Unlock()
	m.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

func (m *monitor) sendError(format string, args ...any) {
	msg, err := protocol.NewErrorMessage(format, args...)
	if err != nil {
		return
	}
	msg.SessionID = m.sessionID
	m.send(msg)
}

// notify echoes flushed events back to the capture client. The final
// flush runs after the client is gone, so write failures are not errors.
func (m *monitor) notify(_ context.Context, events []violation.Event) error {
	msg, err := protocol.NewEventsMessage(m.sessionID, events)
	if err != nil {
		return err
	}
	if err := m.send(msg); err != nil {
		m.srv.logger.Debug("event echo failed", "session_id", m.sessionID, "error", err)
	}
	return nil
}

func (m *monitor) close() {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	m.conn.Close()
}

func (s *Server) handleMonitor(c *websocket.Conn) {
	m := &monitor{srv: s, conn: c, sessionID: c.Params("sessionId")}
	logger := s.logger.With("session_id", m.sessionID)

	sess, err := s.sessions.Get(context.Background(), m.sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.sendError(sessionNotFound)
		} else {
			m.sendError("Server Error")
		}
		c.Close()
		return
	}
	if sess.Status != store.StatusActive {
		m.sendError("Session is not active")
		c.Close()
		return
	}

	overrides, err := ParseOverrides(func(key string) string { return c.Query(key) })
	if err != nil {
		m.sendError("%v", err)
		c.Close()
		return
	}
	cfg := overrides.Apply(s.pcfg)

	stored := store.NewEventSink(s.events, m.sessionID)
	out := sink.Multi{
		sink.Func(func(ctx context.Context, events []violation.Event) error {
			if err := stored.Send(ctx, events); err != nil {
				return err
			}
			s.metrics.Stored(len(events))
			return nil
		}),
		hub.NewSink(s.hub, m.sessionID),
		sink.Func(m.notify),
	}

	m.mailbox = detection.NewMailbox()
	m.pipe, err = pipeline.New(cfg, m.mailbox, out,
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(s.metrics),
		pipeline.WithSessionID(m.sessionID),
	)
	if err != nil {
		m.sendError("%v", err)
		c.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.pipe.Start(ctx); err != nil {
		m.sendError("%v", err)
		c.Close()
		return
	}

	s.mu.Lock()
	s.monitors[m] = struct{}{}
	s.mu.Unlock()
	s.metrics.ActivePipelines.Add(1)
	logger.Info("monitor connected", "focus_threshold", cfg.FocusThreshold, "detection_interval", cfg.DetectionInterval)

	defer func() {
		// Stop flushes queued events before the connection goes away
		if err := m.pipe.Stop(); err != nil {
			logger.Warn("pipeline stop", "error", err)
		}
		s.mu.Lock()
		delete(s.monitors, m)
		s.mu.Unlock()
		s.metrics.ActivePipelines.Add(-1)
		c.Close()
		st := m.pipe.Stats()
		logger.Info("monitor disconnected", "ticks", st.Ticks, "emitted", st.Emitted, "dropped", st.Dropped)
	}()

	c.SetReadLimit(monitorReadLimit)
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("monitor read error", "error", err)
			}
			return
		}
		m.handleMessage(data)
	}
}

func (m *monitor) handleMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		m.sendError("%v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeObservation:
		obs, err := msg.GetObservation()
		if err != nil {
			m.sendError("invalid observation: %v", err)
			return
		}
		m.mailbox.Put(*obs)

	case protocol.TypeFrame:
		m.handleFrame(msg)

	case protocol.TypeMic:
		m.handleMic(msg)

	case protocol.TypeEvents:
		m.handleEvents(msg)

	case protocol.TypeStatus:
		reply, err := protocol.NewMessage(protocol.TypeStatus, m.pipe.Status())
		if err == nil {
			reply.SessionID = m.sessionID
			m.send(reply)
		}

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id, pingTS := "", msg.Timestamp
		if ping != nil {
			id = ping.ID
			if ping.Timestamp != 0 {
				pingTS = ping.Timestamp
			}
		}
		reply, err := protocol.NewPongMessage(id, pingTS, time.Now().UnixMilli())
		if err == nil {
			m.send(reply)
		}

	default:
		m.sendError("unsupported message type %q", msg.Type)
	}
}

// handleFrame runs server-side inference. Frames that fail to decode are
// skipped so the previous observation is not replaced.
func (m *monitor) handleFrame(msg *protocol.Message) {
	ex := m.srv.extractor
	if ex == nil {
		m.sendError("frame inference is not enabled")
		return
	}
	frame, err := msg.GetFrameData()
	if err != nil {
		m.sendError("invalid frame: %v", err)
		return
	}
	jpeg, err := frame.DecodeFrameData()
	if err != nil {
		m.sendError("invalid frame data: %v", err)
		return
	}

	ts := msg.Time()
	if ts.IsZero() {
		ts = m.srv.now()
	}
	obs, err := ex.Extract(jpeg, ts)
	if err != nil {
		m.srv.logger.Debug("frame skipped", "session_id", m.sessionID, "error", err)
		return
	}
	m.mailbox.Put(obs)
}

func (m *monitor) handleMic(msg *protocol.Message) {
	mic, err := msg.GetMicData()
	if err != nil {
		m.sendError("invalid mic data: %v", err)
		return
	}
	samples, err := m.decodeMic(mic)
	if err != nil {
		m.sendError("invalid mic data: %v", err)
		return
	}
	m.mailbox.PutAudio(samples)
}

func (m *monitor) decodeMic(mic *protocol.MicData) ([]float64, error) {
	if mic.Format == protocol.FormatFloat {
		return mic.Samples, nil
	}
	raw, err := mic.DecodeMicData()
	if err != nil {
		return nil, err
	}

	switch mic.Format {
	case protocol.FormatPCM16, "":
		return audioio.PCM16BytesToFloat(raw), nil
	case protocol.FormatU8:
		return audioio.Uint8ToFloat(raw), nil
	case protocol.FormatOpus:
		if m.opus == nil {
			rate, ch := mic.SampleRate, mic.Channels
			if rate == 0 {
				rate = 48000
			}
			if ch == 0 {
				ch = 1
			}
			if m.opus, err = opus.NewDecoder(rate, ch); err != nil {
				return nil, err
			}
		}
		return m.opus.DecodeFloat(raw)
	}
	return nil, fmt.Errorf("unsupported format %q", mic.Format)
}

// handleEvents stores a batch from a client-side pipeline. Events are
// always attributed to the connection's session.
func (m *monitor) handleEvents(msg *protocol.Message) {
	batch, err := msg.GetEventsData()
	if err != nil {
		m.sendError("invalid events: %v", err)
		return
	}
	if len(batch.Events) == 0 {
		return
	}

	records := make([]store.EventRecord, len(batch.Events))
	for i, e := range batch.Events {
		records[i] = store.EventRecord{SessionID: m.sessionID, Event: e}
	}
	stored, err := m.srv.events.InsertBatch(context.Background(), records)
	if err != nil {
		m.sendError("events rejected: %v", err)
		return
	}
	m.srv.metrics.Stored(len(stored))
	m.srv.publish(stored)
}
