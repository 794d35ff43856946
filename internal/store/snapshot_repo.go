package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// SnapshotRepo handles persistence for SlotSnapshot records.
type SnapshotRepo struct{}

// SaveTx inserts a slot snapshot within an existing transaction.
func (r *SnapshotRepo) SaveTx(ctx context.Context, tx *sql.Tx, snap domain.SlotSnapshot) error {
	const q = `INSERT INTO slot_snapshots (session_id, slot, filename, derivation, snapshot_json, checksum, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		snap.SessionID,
		int(snap.Slot),
		snap.Filename,
		snap.Derivation,
		snap.SnapshotJSON,
		snap.Checksum,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(row rowScanner) (domain.SlotSnapshot, error) {
	var s domain.SlotSnapshot
	var slot int
	err := row.Scan(&s.ID, &s.SessionID, &slot, &s.Filename, &s.Derivation, &s.SnapshotJSON, &s.Checksum, &s.CreatedAt)
	s.Slot = domain.Slot(slot)
	return s, err
}

// GetLatest returns the most recent snapshot for a session and slot.
// Returns nil if no snapshot exists.
func (r *SnapshotRepo) GetLatest(ctx context.Context, db *sql.DB, sessionID string, slot domain.Slot) (*domain.SlotSnapshot, error) {
	const q = `SELECT id, session_id, slot, filename, derivation, snapshot_json, checksum, created_at
FROM slot_snapshots
WHERE session_id = ? AND slot = ?
ORDER BY id DESC
LIMIT 1`

	s, err := scanSnapshot(db.QueryRowContext(ctx, q, sessionID, int(slot)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return &s, nil
}

// LatestBySession returns the most recent snapshot of every slot that has
// one, ordered by slot.
func (r *SnapshotRepo) LatestBySession(ctx context.Context, db *sql.DB, sessionID string) ([]domain.SlotSnapshot, error) {
	const q = `SELECT id, session_id, slot, filename, derivation, snapshot_json, checksum, created_at
FROM slot_snapshots
WHERE id IN (SELECT MAX(id) FROM slot_snapshots WHERE session_id = ? GROUP BY slot)
ORDER BY slot ASC`

	rows, err := db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list latest snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.SlotSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// ListBySlot returns the replacement history of one slot, oldest first.
func (r *SnapshotRepo) ListBySlot(ctx context.Context, db *sql.DB, sessionID string, slot domain.Slot) ([]domain.SlotSnapshot, error) {
	const q = `SELECT id, session_id, slot, filename, derivation, snapshot_json, checksum, created_at
FROM slot_snapshots
WHERE session_id = ? AND slot = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, sessionID, int(slot))
	if err != nil {
		return nil, fmt.Errorf("list slot snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.SlotSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
