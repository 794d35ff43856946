package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// Audit categories and severities written by the engine.
const (
	AuditCategoryUpload = "upload"
	AuditCategoryExport = "export"
	AuditCategoryGuard  = "guard"

	SeverityInfo = "info"
	SeverityWarn = "warn"
)

// AuditRepo handles persistence for AuditRecord entries.
type AuditRepo struct{}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const auditInsert = `INSERT INTO audit_records (id, session_id, category, actor, action, request_json, decision_json, severity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertAudit(ctx context.Context, ex execer, rec domain.AuditRecord) error {
	if rec.Severity == "" {
		rec.Severity = SeverityInfo
	}
	_, err := ex.ExecContext(ctx, auditInsert,
		rec.ID, rec.SessionID, rec.Category, rec.Actor, rec.Action,
		rec.RequestJSON, rec.DecisionJSON, rec.Severity, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// Record inserts an audit record outside any transaction. Rejections are
// recorded this way so they survive the rollback of the write they refused.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	return insertAudit(ctx, db, rec)
}

// RecordTx inserts an audit record within an existing transaction.
func (r *AuditRepo) RecordTx(ctx context.Context, tx *sql.Tx, rec domain.AuditRecord) error {
	return insertAudit(ctx, tx, rec)
}

// ListBySession returns the audit trail of a session, oldest first. A
// non-empty category narrows the result.
func (r *AuditRepo) ListBySession(ctx context.Context, db *sql.DB, sessionID, category string) ([]domain.AuditRecord, error) {
	q := `SELECT id, session_id, category, actor, action, request_json, decision_json, severity, created_at
FROM audit_records
WHERE session_id = ?`
	args := []any{sessionID}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Category, &a.Actor, &a.Action,
			&a.RequestJSON, &a.DecisionJSON, &a.Severity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
