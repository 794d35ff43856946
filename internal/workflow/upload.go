package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spaceshipgen/comparator/internal/codec"
	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/session"
	"github.com/spaceshipgen/comparator/internal/store"
)

// ItemFailure is the serializable form of a per-file error.
type ItemFailure struct {
	Filename string      `json:"filename,omitempty"`
	Slot     domain.Slot `json:"slot,omitempty"`
	Code     int         `json:"code,omitempty"`
	Error    string      `json:"error"`
}

// UploadResult reports the outcome of one upload batch.
type UploadResult struct {
	Session session.Session      `json:"session"`
	Status  domain.SessionStatus `json:"status"`
	Applied []domain.Slot        `json:"applied"`
	Errors  []*domain.ItemError  `json:"-"`
}

// Failures returns the item errors in serializable form.
func (r *UploadResult) Failures() []ItemFailure {
	return failures(r.Errors)
}

func failures(errs []*domain.ItemError) []ItemFailure {
	out := make([]ItemFailure, 0, len(errs))
	for _, ie := range errs {
		f := ItemFailure{Filename: ie.Filename, Slot: ie.Slot, Error: ie.Err.Error()}
		var engErr *domain.EngineError
		if errors.As(ie.Err, &engErr) {
			f.Code = engErr.Code
		}
		out = append(out, f)
	}
	return out
}

// uploadPayload is the JSON body of upload events.
type uploadPayload struct {
	Files   []string      `json:"files"`
	Seed    domain.Seed   `json:"seed,omitempty"`
	Applied []domain.Slot `json:"applied,omitempty"`
	Errors  []ItemFailure `json:"errors,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// Upload decodes files, applies them to the session and persists the
// result. Per-file decode and reconstruction failures are returned in the
// result while the rest of the batch applies. A batch mixing seeds is
// rejected as a whole with ErrSeedMismatch and recorded as such.
func (e *Engine) Upload(ctx context.Context, id string, files []domain.UploadFile) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	log := e.Logger.With(zap.String("session", id))

	release, err := e.Guard.Acquire(id)
	if err != nil {
		e.Metrics.Uploads.WithLabelValues("rate_limited").Inc()
		log.Warn("upload throttled", zap.Error(err))
		if auditErr := e.audit(ctx, nil, id, store.AuditCategoryGuard, "engine", "rate_limit", store.SeverityWarn,
			map[string]int{"files": len(files)}, map[string]bool{"allowed": false}); auditErr != nil {
			log.Error("record audit", zap.Error(auditErr))
		}
		return nil, err
	}
	defer release()

	prev, rec, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == domain.StatusExported {
		return nil, domain.ErrSessionExported
	}

	start := time.Now()
	payloads, decodeErrs := codec.DecodeAll(files)
	next, applyErrs, applyErr := session.ApplyUpload(ctx, prev, payloads, e.Reconstructor)
	e.Metrics.ApplyDuration.Observe(time.Since(start).Seconds())

	itemErrs := append(decodeErrs, applyErrs...)
	for _, ie := range itemErrs {
		e.Metrics.SlotErrors.WithLabelValues(errorKind(ie.Err)).Inc()
		log.Info("upload item rejected",
			zap.String("file", ie.Filename),
			zap.Int("slot", int(ie.Slot)),
			zap.Error(ie.Err))
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}

	if applyErr != nil {
		e.Metrics.Uploads.WithLabelValues("rejected").Inc()
		log.Warn("upload batch rejected", zap.Error(applyErr))
		payload := uploadPayload{Files: names, Seed: prev.Seed, Errors: failures(itemErrs), Reason: applyErr.Error()}
		if err := e.persistUpload(ctx, rec, prev, nil, EventUploadRejected, payload); err != nil {
			return nil, err
		}
		return nil, applyErr
	}

	var changed []session.SlotState
	for i := range next.Slots {
		a, b := prev.Slots[i], next.Slots[i]
		if a.Artifact != b.Artifact || a.Filename != b.Filename {
			changed = append(changed, b)
		}
	}
	applied := make([]domain.Slot, 0, len(changed))
	for _, st := range changed {
		applied = append(applied, st.Slot)
	}

	payload := uploadPayload{Files: names, Seed: next.Seed, Applied: applied, Errors: failures(itemErrs)}
	if err := e.persistUpload(ctx, rec, next, changed, EventUploadApplied, payload); err != nil {
		return nil, err
	}

	e.Metrics.Uploads.WithLabelValues("applied").Inc()
	log.Info("upload applied",
		zap.String("seed", next.Seed.String()),
		zap.Int("files", len(files)),
		zap.Int("slots", len(applied)),
		zap.Int("errors", len(itemErrs)))

	return &UploadResult{
		Session: next.View(),
		Status:  statusFor(next),
		Applied: applied,
		Errors:  itemErrs,
	}, nil
}

// persistUpload appends the upload event, snapshots the replaced slots and
// advances the session record in one transaction.
func (e *Engine) persistUpload(ctx context.Context, rec *domain.SessionRecord, s session.Session, changed []session.SlotState, eventType string, payload uploadPayload) error {
	status := rec.Status
	if eventType == EventUploadApplied {
		status = statusFor(s)
	}
	if !IsValidTransition(rec.Status, status) {
		return domain.NewEngineError(domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", rec.Status, status))
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := e.now().Unix()
	newSeq := rec.LastEventSeq + 1

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	event := domain.UploadEvent{
		SessionID:   rec.SessionID,
		SeqNo:       newSeq,
		EventType:   eventType,
		PayloadJSON: string(payloadJSON),
		CreatedAt:   now,
	}
	if err := e.EventRepo.AppendTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append upload event: %w", err)
	}

	for _, st := range changed {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal slot %d: %w", st.Slot, err)
		}
		snap := domain.SlotSnapshot{
			SessionID:    rec.SessionID,
			Slot:         st.Slot,
			Filename:     st.Filename,
			Derivation:   st.Artifact.Derivation,
			SnapshotJSON: string(data),
			Checksum:     st.Artifact.Structure.Checksum(),
			CreatedAt:    now,
		}
		if err := e.SnapshotRepo.SaveTx(ctx, tx, snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}

	severity := store.SeverityInfo
	if eventType == EventUploadRejected {
		severity = store.SeverityWarn
	}
	if err := e.audit(ctx, tx, rec.SessionID, store.AuditCategoryUpload, "engine", eventType, severity,
		map[string]any{"files": payload.Files}, payload); err != nil {
		return err
	}

	updated := *rec
	updated.Seed = s.Seed
	updated.Status = status
	updated.LastEventSeq = newSeq
	updated.UpdatedAtUnix = now
	if err := e.SessionRepo.UpdateStateTx(ctx, tx, updated); err != nil {
		return err
	}

	return tx.Commit()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrFormat):
		return "format"
	case errors.Is(err, domain.ErrStructure):
		return "structure"
	case errors.Is(err, domain.ErrBuilderFailed), errors.Is(err, domain.ErrBuilderUnavailable):
		return "builder"
	case errors.Is(err, domain.ErrInvalidSlot):
		return "slot"
	default:
		return "other"
	}
}
