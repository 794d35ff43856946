package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// SessionRepo handles persistence for SessionRecord rows.
type SessionRepo struct{}

const sessionColumns = `session_id, seed, status, state_version, last_event_seq, created_at_unix, updated_at_unix`

// CreateTx inserts a new session within an existing transaction.
func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec domain.SessionRecord) error {
	const q = `INSERT INTO sessions (` + sessionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		rec.SessionID,
		string(rec.Seed),
		string(rec.Status),
		rec.StateVersion,
		rec.LastEventSeq,
		rec.CreatedAtUnix,
		rec.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateStateTx updates a session within a transaction using optimistic locking.
// The update only succeeds if the current state_version matches the expected version.
func (r *SessionRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, rec domain.SessionRecord) error {
	const q = `UPDATE sessions SET
		seed = ?,
		status = ?,
		state_version = state_version + 1,
		last_event_seq = ?,
		updated_at_unix = ?
	WHERE session_id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(rec.Seed),
		string(rec.Status),
		rec.LastEventSeq,
		rec.UpdatedAtUnix,
		rec.SessionID,
		rec.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.SessionRecord, error) {
	var s domain.SessionRecord
	var seed, status string
	err := row.Scan(&s.SessionID, &seed, &status, &s.StateVersion, &s.LastEventSeq, &s.CreatedAtUnix, &s.UpdatedAtUnix)
	s.Seed = domain.Seed(seed)
	s.Status = domain.SessionStatus(status)
	return s, err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepo) GetByID(ctx context.Context, db *sql.DB, sessionID string) (*domain.SessionRecord, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`

	s, err := scanSession(db.QueryRowContext(ctx, q, sessionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// List returns sessions ordered by creation time, optionally filtered by status.
func (r *SessionRepo) List(ctx context.Context, db *sql.DB, status domain.SessionStatus) ([]domain.SessionRecord, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at_unix ASC, session_id ASC`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
