package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/export"
	"github.com/spaceshipgen/comparator/internal/review"
	"github.com/spaceshipgen/comparator/internal/store"
)

// ExportResult is a session's export record with its encoded body.
type ExportResult struct {
	Record   export.Record
	Filename string
	Body     []byte
	// Replayed is set when the session had already been exported and the
	// stored record was returned.
	Replayed bool
	// Path is where the export file was written, if anywhere.
	Path string
}

// Export de-anonymizes the session's ranks and stores the record. Exporting
// an exported session returns the stored record unchanged.
func (e *Engine) Export(ctx context.Context, id string, ranks domain.Ranks) (*ExportResult, error) {
	log := e.Logger.With(zap.String("session", id))

	unlock := e.Guard.Lock(id)
	defer unlock()

	s, rec, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec.Status == domain.StatusExported {
		row, err := e.ExportRepo.GetBySession(ctx, e.DB, id)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, domain.NewEngineError(domain.ErrStoreQuery.Code,
				fmt.Sprintf("session %s is exported but has no export record", id))
		}
		r, err := decodeRow(*row)
		if err != nil {
			return nil, err
		}
		e.Metrics.Exports.WithLabelValues("replayed").Inc()
		log.Info("export replayed", zap.String("seed", r.Seed.String()))
		return &ExportResult{Record: r, Filename: row.Filename, Body: []byte(row.RecordJSON), Replayed: true}, nil
	}

	r, err := export.Export(s, ranks, e.Labels)
	if err != nil {
		e.Metrics.Exports.WithLabelValues("incomplete").Inc()
		return nil, err
	}

	decision := e.Gate.Evaluate(s, ranks)
	if !decision.Allow {
		e.Metrics.Exports.WithLabelValues("blocked").Inc()
		log.Info("export blocked", zap.Strings("blockers", decision.Blockers))
		if auditErr := e.audit(ctx, nil, id, store.AuditCategoryExport, "engine", "export_blocked", store.SeverityWarn,
			ranks, decision); auditErr != nil {
			log.Error("record audit", zap.Error(auditErr))
		}
		if v := e.Gate.Checker.Validator; v != nil {
			if err := v.Validate(ranks); err != nil {
				return nil, err
			}
		}
		return nil, domain.NewEngineError(domain.ErrExportGateFailed.Code,
			fmt.Sprintf("%s: %s", domain.ErrExportGateFailed.Message, strings.Join(decision.Blockers, "; ")))
	}

	if !IsValidTransition(rec.Status, domain.StatusExported) {
		return nil, domain.NewEngineError(domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", rec.Status, domain.StatusExported))
	}

	body, err := r.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	filename := r.Filename()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := e.now().Unix()
	newSeq := rec.LastEventSeq + 1

	if err := e.ExportRepo.SaveTx(ctx, tx, domain.ExportRow{
		SessionID:  id,
		Seed:       r.Seed,
		Filename:   filename,
		RecordJSON: string(body),
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{"filename": filename, "record": json.RawMessage(body)})
	if err := e.EventRepo.AppendTx(ctx, tx, domain.UploadEvent{
		SessionID:   id,
		SeqNo:       newSeq,
		EventType:   EventSessionExported,
		PayloadJSON: string(payload),
		CreatedAt:   now,
	}); err != nil {
		return nil, fmt.Errorf("append export event: %w", err)
	}

	if err := e.audit(ctx, tx, id, store.AuditCategoryExport, "engine", "export", store.SeverityInfo, ranks, decision); err != nil {
		return nil, err
	}

	updated := *rec
	updated.Status = domain.StatusExported
	updated.LastEventSeq = newSeq
	updated.UpdatedAtUnix = now
	if err := e.SessionRepo.UpdateStateTx(ctx, tx, updated); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	e.Guard.Forget(id)

	res := &ExportResult{Record: r, Filename: filename, Body: body}
	if e.ExportDir != "" {
		path, err := export.WriteFile(e.ExportDir, r)
		if err != nil {
			// The record is stored; the file can be rewritten from it.
			log.Error("write export file", zap.Error(err))
		} else {
			res.Path = path
		}
	}

	e.Metrics.Exports.WithLabelValues("created").Inc()
	log.Info("session exported", zap.String("seed", r.Seed.String()), zap.String("file", filename))
	return res, nil
}

// CheckExport evaluates the export gate without exporting.
func (e *Engine) CheckExport(ctx context.Context, id string, ranks domain.Ranks) (domain.GateDecision, error) {
	s, _, err := e.load(ctx, id)
	if err != nil {
		return domain.GateDecision{}, err
	}
	return e.Gate.Evaluate(s, ranks), nil
}

// Exports returns every stored export record.
func (e *Engine) Exports(ctx context.Context) ([]export.Record, error) {
	rows, err := e.ExportRepo.List(ctx, e.DB)
	if err != nil {
		return nil, err
	}
	out := make([]export.Record, 0, len(rows))
	for _, row := range rows {
		r, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Tally aggregates all stored exports.
func (e *Engine) Tally(ctx context.Context) (*review.Summary, error) {
	records, err := e.Exports(ctx)
	if err != nil {
		return nil, err
	}
	return review.NewTallier(e.Labels).Evaluate(records)
}

func decodeRow(row domain.ExportRow) (export.Record, error) {
	var r export.Record
	if err := json.Unmarshal([]byte(row.RecordJSON), &r); err != nil {
		return export.Record{}, domain.WrapEngineError(domain.ErrStoreQuery.Code,
			fmt.Sprintf("decode export of session %s", row.SessionID), err)
	}
	r.Seed = row.Seed
	return r, nil
}
