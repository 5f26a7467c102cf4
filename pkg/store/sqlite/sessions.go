package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-proctor/pkg/store"
)

const sessionColumns = `id, candidate_id, candidate_name, candidate_email, position,
	start_ms, end_ms, status, integrity_score, total_events, focus_violations,
	object_violations, multiple_person_violations, notes, created_ms, updated_ms`

// SessionRepository implements store.SessionRepository for SQLite.
type SessionRepository struct {
	db  *DB
	now func() time.Time
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Create inserts s, assigning an ID, start time and active status where
// they are unset.
func (r *SessionRepository) Create(ctx context.Context, s *store.Session) error {
	if s.CandidateID == "" {
		return fmt.Errorf("candidate id is required")
	}
	now := r.now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	if s.Status == "" {
		s.Status = store.StatusActive
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid session status %q", s.Status)
	}
	s.CreatedAt, s.UpdatedAt = now, now

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.CandidateID, s.CandidateName, s.CandidateEmail, s.Position,
		toMs(s.StartTime), nullMs(s.EndTime), s.Status, nullInt(s.IntegrityScore),
		s.TotalEvents, s.FocusViolations, s.ObjectViolations, s.MultiplePersonViolations,
		s.Notes, toMs(s.CreatedAt), toMs(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(ctx context.Context, id string) (*store.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.get(ctx, r.db.Conn(), id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SessionRepository) get(ctx context.Context, q queryer, id string) (*store.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// List returns sessions newest first, with the total matching count.
func (r *SessionRepository) List(ctx context.Context, f store.SessionFilter) ([]store.Session, int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	where := " WHERE 1=1"
	args := []any{}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.CandidateID != "" {
		where += " AND candidate_id = ?"
		args = append(args, f.CandidateID)
	}

	var total int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions` + where + ` ORDER BY start_ms DESC`
	query, args = paginate(query, args, f.Limit, f.Offset)

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []store.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, total, rows.Err()
}

// Update writes the mutable fields of s.
func (r *SessionRepository) Update(ctx context.Context, s *store.Session) error {
	if !s.Status.Valid() {
		return fmt.Errorf("invalid session status %q", s.Status)
	}
	s.UpdatedAt = r.now().UTC()

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	res, err := r.db.Conn().ExecContext(ctx, `
		UPDATE sessions SET candidate_name = ?, candidate_email = ?, position = ?,
			end_ms = ?, status = ?, integrity_score = ?, total_events = ?,
			focus_violations = ?, object_violations = ?, multiple_person_violations = ?,
			notes = ?, updated_ms = ?
		WHERE id = ?
	`, s.CandidateName, s.CandidateEmail, s.Position, nullMs(s.EndTime), s.Status,
		nullInt(s.IntegrityScore), s.TotalEvents, s.FocusViolations, s.ObjectViolations,
		s.MultiplePersonViolations, s.Notes, toMs(s.UpdatedAt), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return expectRow(res, "session", s.ID)
}

// End marks an active session completed and records its outcome.
func (r *SessionRepository) End(ctx context.Context, id string, out store.Outcome, at time.Time) (*store.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	s, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != store.StatusActive {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrSessionInactive)
	}

	at = at.UTC()
	if !at.After(s.StartTime) {
		at = s.StartTime.Add(time.Millisecond)
	}
	score := out.IntegrityScore
	s.EndTime = &at
	s.Status = store.StatusCompleted
	s.IntegrityScore = &score
	s.TotalEvents = out.TotalEvents
	s.FocusViolations = out.FocusViolations
	s.ObjectViolations = out.ObjectViolations
	s.MultiplePersonViolations = out.MultiplePersonViolations
	s.UpdatedAt = r.now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET end_ms = ?, status = ?, integrity_score = ?, total_events = ?,
			focus_violations = ?, object_violations = ?, multiple_person_violations = ?,
			updated_ms = ?
		WHERE id = ?
	`, toMs(at), s.Status, score, s.TotalEvents, s.FocusViolations, s.ObjectViolations,
		s.MultiplePersonViolations, toMs(s.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s, nil
}

// Delete removes a session and its events.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectRow(res, "session", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*store.Session, error) {
	var (
		s                  store.Session
		startMs, createdMs int64
		updatedMs          int64
		endMs              sql.NullInt64
		score              sql.NullInt64
	)
	err := sc.Scan(&s.ID, &s.CandidateID, &s.CandidateName, &s.CandidateEmail, &s.Position,
		&startMs, &endMs, &s.Status, &score, &s.TotalEvents, &s.FocusViolations,
		&s.ObjectViolations, &s.MultiplePersonViolations, &s.Notes, &createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}
	s.StartTime = fromMs(startMs)
	s.EndTime = timePtr(endMs)
	if score.Valid {
		v := int(score.Int64)
		s.IntegrityScore = &v
	}
	s.CreatedAt = fromMs(createdMs)
	s.UpdatedAt = fromMs(updatedMs)
	return &s, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	} else if offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}
	return query, args
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

var _ store.SessionRepository = (*SessionRepository)(nil)
