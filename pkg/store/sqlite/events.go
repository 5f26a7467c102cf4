package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/store"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

const eventColumns = `id, session_id, type, ts_ms, duration_ms, confidence, severity,
	description, coordinates, resolved, resolved_ms, created_ms`

// EventRepository implements store.EventRepository for SQLite.
type EventRepository struct {
	db  *DB
	now func() time.Time
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db, now: time.Now}
}

// Insert stores one event for an active session.
func (r *EventRepository) Insert(ctx context.Context, sessionID string, e violation.Event) (*store.EventRecord, error) {
	recs, err := r.InsertBatch(ctx, []store.EventRecord{{SessionID: sessionID, Event: e}})
	if err != nil {
		return nil, err
	}
	return &recs[0], nil
}

// InsertBatch stores records in a single transaction.
func (r *EventRepository) InsertBatch(ctx context.Context, records []store.EventRecord) ([]store.EventRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	now := r.now().UTC()
	out := make([]store.EventRecord, len(records))
	for i, rec := range records {
		if rec.SessionID == "" {
			return nil, fmt.Errorf("%w: session id is required", store.ErrInvalidEvent)
		}
		if err := store.ValidateEvent(rec.Event); err != nil {
			return nil, err
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = now
		}
		rec.CreatedAt = now
		out[i] = rec
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	checked := make(map[string]bool)
	for _, rec := range out {
		if checked[rec.SessionID] {
			continue
		}
		var status store.SessionStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, rec.SessionID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", rec.SessionID, store.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check session: %w", err)
		}
		if status != store.StatusActive {
			return nil, fmt.Errorf("session %s: %w", rec.SessionID, store.ErrSessionInactive)
		}
		checked[rec.SessionID] = true
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare event statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range out {
		coords, err := encodeCoords(rec.Coordinates)
		if err != nil {
			return nil, err
		}
		_, err = stmt.ExecContext(ctx, rec.ID, rec.SessionID, rec.Type, toMs(rec.Timestamp),
			rec.DurationMs, nullFloat(rec.Confidence), rec.Severity, rec.Description, coords,
			rec.Resolved, nullMs(rec.ResolvedAt), toMs(rec.CreatedAt))
		if err != nil {
			return nil, fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return out, nil
}

// Get retrieves an event by ID.
func (r *EventRepository) Get(ctx context.Context, id string) (*store.EventRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.get(ctx, id)
}

func (r *EventRepository) get(ctx context.Context, id string) (*store.EventRecord, error) {
	row := r.db.Conn().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	rec, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return rec, nil
}

// ListBySession returns a session's events in timestamp order.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID string) ([]store.EventRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	return r.query(ctx, `SELECT `+eventColumns+` FROM events WHERE session_id = ? ORDER BY ts_ms ASC, created_ms ASC`, sessionID)
}

// List returns events newest first, with the total matching count.
func (r *EventRepository) List(ctx context.Context, f store.EventFilter) ([]store.EventRecord, int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	where, args := eventWhere(f)

	var total int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM events` + where + ` ORDER BY ts_ms DESC`
	query, args = paginate(query, args, f.Limit, f.Offset)
	events, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func eventWhere(f store.EventFilter) (string, []any) {
	where := " WHERE 1=1"
	args := []any{}
	if f.SessionID != "" {
		where += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.Type != "" {
		where += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Severity != "" {
		where += " AND severity = ?"
		args = append(args, f.Severity)
	}
	if !f.Start.IsZero() {
		where += " AND ts_ms >= ?"
		args = append(args, toMs(f.Start))
	}
	if !f.End.IsZero() {
		where += " AND ts_ms <= ?"
		args = append(args, toMs(f.End))
	}
	return where, args
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]store.EventRecord, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []store.EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *rec)
	}
	return events, rows.Err()
}

// Resolve marks an event resolved. Resolving twice keeps the first time.
func (r *EventRepository) Resolve(ctx context.Context, id string, at time.Time) (*store.EventRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	res, err := r.db.Conn().ExecContext(ctx,
		`UPDATE events SET resolved = 1, resolved_ms = COALESCE(resolved_ms, ?) WHERE id = ?`,
		toMs(at), id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event: %w", err)
	}
	if err := expectRow(res, "event", id); err != nil {
		return nil, err
	}
	return r.get(ctx, id)
}

// Update applies u to a stored event.
func (r *EventRepository) Update(ctx context.Context, id string, u store.EventUpdate, at time.Time) (*store.EventRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	rec, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Severity != nil {
		rec.Severity = *u.Severity
	}
	if u.Description != nil {
		rec.Description = *u.Description
	}
	if u.Confidence != nil {
		v := *u.Confidence
		rec.Confidence = &v
	}
	if u.DurationMs != nil {
		if *u.DurationMs < 0 {
			return nil, fmt.Errorf("%w: duration cannot be negative", store.ErrInvalidEvent)
		}
		rec.DurationMs = *u.DurationMs
	}
	if u.Resolved != nil {
		switch {
		case *u.Resolved && !rec.Resolved:
			t := at.UTC()
			rec.ResolvedAt = &t
		case !*u.Resolved:
			rec.ResolvedAt = nil
		}
		rec.Resolved = *u.Resolved
	}
	if err := store.ValidateEvent(rec.Event); err != nil {
		return nil, err
	}

	_, err = r.db.Conn().ExecContext(ctx, `
		UPDATE events SET severity = ?, description = ?, confidence = ?, duration_ms = ?,
			resolved = ?, resolved_ms = ?
		WHERE id = ?
	`, rec.Severity, rec.Description, nullFloat(rec.Confidence), rec.DurationMs,
		rec.Resolved, nullMs(rec.ResolvedAt), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return r.get(ctx, id)
}

// Delete removes an event by ID.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return expectRow(res, "event", id)
}

// Stats aggregates events by type, severity and hour.
func (r *EventRepository) Stats(ctx context.Context, sessionID string, now time.Time) (*store.EventStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	where, args := eventWhere(store.EventFilter{SessionID: sessionID})
	conn := r.db.Conn()
	stats := &store.EventStats{
		ByType:     []store.TypeCount{},
		BySeverity: []store.SeverityCount{},
		OverTime:   []store.HourCount{},
	}

	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	recentArgs := append(append([]any{}, args...), toMs(now.Add(-time.Hour)))
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where+` AND ts_ms >= ?`, recentArgs...).Scan(&stats.Recent); err != nil {
		return nil, fmt.Errorf("failed to count recent events: %w", err)
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT type, COUNT(*), AVG(confidence) FROM events`+where+`
		GROUP BY type ORDER BY COUNT(*) DESC, type`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group events by type: %w", err)
	}
	for rows.Next() {
		var (
			tc  store.TypeCount
			avg sql.NullFloat64
		)
		if err := rows.Scan(&tc.Type, &tc.Count, &avg); err != nil {
			rows.Close()
			return nil, err
		}
		if avg.Valid {
			v := avg.Float64
			tc.AvgConfidence = &v
		}
		stats.ByType = append(stats.ByType, tc)
	}
	rows.Close()

	rows, err = conn.QueryContext(ctx, `SELECT severity, COUNT(*) FROM events`+where+` GROUP BY severity`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group events by severity: %w", err)
	}
	for rows.Next() {
		var sc store.SeverityCount
		if err := rows.Scan(&sc.Severity, &sc.Count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.BySeverity = append(stats.BySeverity, sc)
	}
	rows.Close()
	sort.Slice(stats.BySeverity, func(i, j int) bool {
		return severityRank(stats.BySeverity[i].Severity) > severityRank(stats.BySeverity[j].Severity)
	})

	const hourMs = int64(time.Hour / time.Millisecond)
	dayArgs := append(append([]any{}, args...), toMs(now.Add(-24*time.Hour)))
	rows, err = conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT (ts_ms / %[1]d) * %[1]d AS hour, COUNT(*) FROM events%[2]s AND ts_ms >= ?
		GROUP BY hour ORDER BY hour`, hourMs, where), dayArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to group events by hour: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			hour  int64
			count int
		)
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, err
		}
		stats.OverTime = append(stats.OverTime, store.HourCount{Hour: fromMs(hour), Count: count})
	}
	return stats, rows.Err()
}

func severityRank(s violation.Severity) int {
	switch s {
	case violation.Critical:
		return 3
	case violation.High:
		return 2
	case violation.Medium:
		return 1
	}
	return 0
}

func scanEvent(sc scanner) (*store.EventRecord, error) {
	var (
		rec        store.EventRecord
		tsMs       int64
		createdMs  int64
		confidence sql.NullFloat64
		coords     sql.NullString
		resolvedMs sql.NullInt64
	)
	err := sc.Scan(&rec.ID, &rec.SessionID, &rec.Type, &tsMs, &rec.DurationMs, &confidence,
		&rec.Severity, &rec.Description, &coords, &rec.Resolved, &resolvedMs, &createdMs)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = fromMs(tsMs)
	rec.CreatedAt = fromMs(createdMs)
	rec.ResolvedAt = timePtr(resolvedMs)
	if confidence.Valid {
		v := confidence.Float64
		rec.Confidence = &v
	}
	if coords.Valid && coords.String != "" {
		var box detection.Box
		if err := json.Unmarshal([]byte(coords.String), &box); err != nil {
			return nil, fmt.Errorf("failed to decode coordinates: %w", err)
		}
		rec.Coordinates = &box
	}
	return &rec, nil
}

func encodeCoords(b *detection.Box) (sql.NullString, error) {
	if b == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode coordinates: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var _ store.EventRepository = (*EventRepository)(nil)
