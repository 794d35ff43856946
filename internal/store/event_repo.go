package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// EventRepo persists the per-session upload log. Sequence numbers are
// assigned by the caller and are unique within a session.
type EventRepo struct{}

const eventColumns = `id, session_id, seq_no, event_type, payload_json, created_at`

func scanEvent(row rowScanner) (domain.UploadEvent, error) {
	var e domain.UploadEvent
	err := row.Scan(&e.ID, &e.SessionID, &e.SeqNo, &e.EventType, &e.PayloadJSON, &e.CreatedAt)
	return e, err
}

// AppendTx adds one event to a session's log inside tx.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, e domain.UploadEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO upload_events (session_id, seq_no, event_type, payload_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.SeqNo, e.EventType, e.PayloadJSON, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append %s event %d for session %s: %w", e.EventType, e.SeqNo, e.SessionID, err)
	}
	return nil
}

// ListBySession returns the events of a session after sinceSeq, oldest
// first. A zero sinceSeq returns the whole log.
func (r *EventRepo) ListBySession(ctx context.Context, db *sql.DB, sessionID string, sinceSeq int64) ([]domain.UploadEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM upload_events WHERE session_id = ? AND seq_no > ? ORDER BY seq_no`,
		sessionID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.UploadEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
