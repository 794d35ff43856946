package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// ExportRepo handles persistence for export records. A session has at most
// one export.
type ExportRepo struct{}

// SaveTx inserts an export record within an existing transaction.
// Returns ErrSessionExported if the session was already exported.
func (r *ExportRepo) SaveTx(ctx context.Context, tx *sql.Tx, row domain.ExportRow) error {
	const q = `INSERT INTO export_records (session_id, seed, filename, record_json, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO NOTHING`
	res, err := tx.ExecContext(ctx, q,
		row.SessionID,
		string(row.Seed),
		row.Filename,
		row.RecordJSON,
		row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save export: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionExported
	}
	return nil
}

func scanExport(row rowScanner) (domain.ExportRow, error) {
	var e domain.ExportRow
	var seed string
	err := row.Scan(&e.SessionID, &seed, &e.Filename, &e.RecordJSON, &e.CreatedAt)
	e.Seed = domain.Seed(seed)
	return e, err
}

// GetBySession returns the export of a session, or nil if it has none.
func (r *ExportRepo) GetBySession(ctx context.Context, db *sql.DB, sessionID string) (*domain.ExportRow, error) {
	const q = `SELECT session_id, seed, filename, record_json, created_at
FROM export_records WHERE session_id = ?`

	e, err := scanExport(db.QueryRowContext(ctx, q, sessionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get export: %w", err)
	}
	return &e, nil
}

// List returns all exports ordered by creation time.
func (r *ExportRepo) List(ctx context.Context, db *sql.DB) ([]domain.ExportRow, error) {
	const q = `SELECT session_id, seed, filename, record_json, created_at
FROM export_records
ORDER BY created_at ASC, session_id ASC`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var out []domain.ExportRow
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
