package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/teslashibe/go-proctor/pkg/store"
)

const candidateColumns = `id, name, email, position, interview_ms, duration_minutes,
	status, notes, created_ms, updated_ms`

// CandidateRepository implements store.CandidateRepository for SQLite.
type CandidateRepository struct {
	db  *DB
	now func() time.Time
}

// NewCandidateRepository creates a new SQLite candidate repository.
func NewCandidateRepository(db *DB) *CandidateRepository {
	return &CandidateRepository{db: db, now: time.Now}
}

// Create validates and inserts c, assigning an ID and the scheduled status
// where they are unset.
func (r *CandidateRepository) Create(ctx context.Context, c *store.Candidate) error {
	store.NormalizeCandidate(c)
	if c.Status == "" {
		c.Status = store.CandidateScheduled
	}
	if err := store.ValidateCandidate(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := r.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO candidates (`+candidateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Email, c.Position, toMs(c.InterviewDate), c.DurationMinutes,
		c.Status, c.Notes, toMs(c.CreatedAt), toMs(c.UpdatedAt))
	if err != nil {
		return candidateWriteError("insert", c.Email, err)
	}
	return nil
}

// Get retrieves a candidate by ID.
func (r *CandidateRepository) Get(ctx context.Context, id string) (*store.Candidate, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.get(ctx, id)
}

func (r *CandidateRepository) get(ctx context.Context, id string) (*store.Candidate, error) {
	row := r.db.Conn().QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

// List returns candidates newest first, with the total matching count.
func (r *CandidateRepository) List(ctx context.Context, f store.CandidateFilter) ([]store.Candidate, int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	where := " WHERE 1=1"
	args := []any{}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		where += ` AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR LOWER(position) LIKE ? ESCAPE '\')`
		args = append(args, like, like, like)
	}

	var total int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count candidates: %w", err)
	}

	query := `SELECT ` + candidateColumns + ` FROM candidates` + where + ` ORDER BY created_ms DESC, rowid DESC`
	query, args = paginate(query, args, f.Limit, f.Offset)

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []store.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, *c)
	}
	return candidates, total, rows.Err()
}

// Update validates and writes every field of c except the creation time.
func (r *CandidateRepository) Update(ctx context.Context, c *store.Candidate) error {
	store.NormalizeCandidate(c)
	if err := store.ValidateCandidate(c); err != nil {
		return err
	}
	c.UpdatedAt = r.now().UTC()

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	res, err := r.db.Conn().ExecContext(ctx, `
		UPDATE candidates SET name = ?, email = ?, position = ?, interview_ms = ?,
			duration_minutes = ?, status = ?, notes = ?, updated_ms = ?
		WHERE id = ?
	`, c.Name, c.Email, c.Position, toMs(c.InterviewDate), c.DurationMinutes,
		c.Status, c.Notes, toMs(c.UpdatedAt), c.ID)
	if err != nil {
		return candidateWriteError("update", c.Email, err)
	}
	return expectRow(res, "candidate", c.ID)
}

// SetStatus moves a candidate to status.
func (r *CandidateRepository) SetStatus(ctx context.Context, id string, status store.CandidateStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", store.ErrInvalidCandidate, status)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	res, err := r.db.Conn().ExecContext(ctx,
		`UPDATE candidates SET status = ?, updated_ms = ? WHERE id = ?`,
		status, toMs(r.now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update candidate status: %w", err)
	}
	return expectRow(res, "candidate", id)
}

// Delete removes a candidate that has no active session. Past sessions
// keep their copy of the candidate's name and email.
func (r *CandidateRepository) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists, active int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to get candidate: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
	}
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE candidate_id = ? AND status = ?`,
		id, store.StatusActive).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to count active sessions: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("candidate %s: %w", id, store.ErrCandidateBusy)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Stats counts candidates overall, created within store.RecentWindow of
// now, and by status.
func (r *CandidateRepository) Stats(ctx context.Context, now time.Time) (*store.CandidateStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conn := r.db.Conn()
	stats := &store.CandidateStats{ByStatus: []store.StatusCount{}}

	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count candidates: %w", err)
	}
	err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates WHERE created_ms >= ?`,
		toMs(now.Add(-store.RecentWindow))).Scan(&stats.Recent)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent candidates: %w", err)
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM candidates GROUP BY status ORDER BY COUNT(*) DESC, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to group candidates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc store.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		stats.ByStatus = append(stats.ByStatus, sc)
	}
	return stats, rows.Err()
}

func scanCandidate(sc scanner) (*store.Candidate, error) {
	var (
		c                    store.Candidate
		interviewMs          int64
		createdMs, updatedMs int64
	)
	err := sc.Scan(&c.ID, &c.Name, &c.Email, &c.Position, &interviewMs, &c.DurationMinutes,
		&c.Status, &c.Notes, &createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}
	c.InterviewDate = fromMs(interviewMs)
	c.CreatedAt = fromMs(createdMs)
	c.UpdatedAt = fromMs(updatedMs)
	return &c, nil
}

// candidateWriteError maps the unique email index onto store.ErrDuplicateEmail
func candidateWriteError(op, email string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("candidate %s: %w", email, store.ErrDuplicateEmail)
	}
	return fmt.Errorf("failed to %s candidate: %w", op, err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ store.CandidateRepository = (*CandidateRepository)(nil)
