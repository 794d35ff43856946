package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/guard"
	"github.com/spaceshipgen/comparator/internal/review"
	"github.com/spaceshipgen/comparator/internal/session"
	"github.com/spaceshipgen/comparator/internal/shuffle"
	"github.com/spaceshipgen/comparator/internal/store"
	"github.com/spaceshipgen/comparator/internal/structure"
)

// validTransitions defines the legal status transitions.
// Each key is a source status, and the value is the set of valid targets.
var validTransitions = map[domain.SessionStatus]map[domain.SessionStatus]bool{
	domain.StatusCollecting: {domain.StatusCollecting: true, domain.StatusReady: true, domain.StatusExported: true},
	domain.StatusReady:      {domain.StatusReady: true, domain.StatusExported: true},
}

// IsValidTransition checks if a status transition is legal.
func IsValidTransition(from, to domain.SessionStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// statusFor derives the upload-time status of a session.
func statusFor(s session.Session) domain.SessionStatus {
	if s.Complete() {
		return domain.StatusReady
	}
	return domain.StatusCollecting
}

// Event types appended to a session's log.
const (
	EventSessionCreated  = "session_created"
	EventUploadApplied   = "upload_applied"
	EventUploadRejected  = "upload_rejected"
	EventSessionExported = "session_exported"
)

// EngineConfig carries the engine's tunables.
type EngineConfig struct {
	Labels           []string
	StrictRanks      bool
	UploadsPerMinute int
	// ExportDir, when set, receives a copy of every new export file.
	ExportDir string
}

// Engine owns the lifecycle of comparison sessions: it serializes writers
// per session, applies the pure session transitions and persists each one.
type Engine struct {
	DB            *sql.DB
	SessionRepo   *store.SessionRepo
	EventRepo     *store.EventRepo
	SnapshotRepo  *store.SnapshotRepo
	ExportRepo    *store.ExportRepo
	AuditRepo     *store.AuditRepo
	Reconstructor structure.Reconstructor
	Guard         *guard.Guard
	Gate          *ExportGate
	Labels        []string
	ExportDir     string
	Logger        *zap.Logger
	Metrics       *Metrics

	now func() time.Time
}

// NewEngine creates an engine with all dependencies. Logger and Metrics
// default to no-ops and can be replaced before use.
func NewEngine(db *sql.DB, r structure.Reconstructor, cfg EngineConfig) *Engine {
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = shuffle.DefaultLabels
	}
	return &Engine{
		DB:            db,
		SessionRepo:   &store.SessionRepo{},
		EventRepo:     &store.EventRepo{},
		SnapshotRepo:  &store.SnapshotRepo{},
		ExportRepo:    &store.ExportRepo{},
		AuditRepo:     &store.AuditRepo{},
		Reconstructor: r,
		Guard:         guard.NewGuard(guard.GuardConfig{UploadsPerMinute: cfg.UploadsPerMinute}),
		Gate:          NewExportGate(cfg.StrictRanks),
		Labels:        append([]string(nil), labels...),
		ExportDir:     cfg.ExportDir,
		Logger:        zap.NewNop(),
		Metrics:       NewMetrics(nil),
		now:           time.Now,
	}
}

// CreateSession starts a new session in the collecting state. An empty id
// is replaced by a random UUID. The session's ID is returned.
func (e *Engine) CreateSession(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := e.SessionRepo.GetByID(ctx, e.DB, id); err == nil {
		return "", domain.NewEngineError(domain.ErrDuplicateSession.Code,
			fmt.Sprintf("%s: %s", domain.ErrDuplicateSession.Message, id))
	} else if err != domain.ErrSessionNotFound {
		return "", err
	}

	now := e.now().Unix()
	rec := domain.SessionRecord{
		SessionID:     id,
		Status:        domain.StatusCollecting,
		StateVersion:  1,
		LastEventSeq:  1, // The initial session_created event uses seq 1.
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := e.SessionRepo.CreateTx(ctx, tx, rec); err != nil {
		return "", err
	}
	event := domain.UploadEvent{
		SessionID:   id,
		SeqNo:       1,
		EventType:   EventSessionCreated,
		PayloadJSON: "{}",
		CreatedAt:   now,
	}
	if err := e.EventRepo.AppendTx(ctx, tx, event); err != nil {
		return "", fmt.Errorf("append create event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	e.Metrics.Sessions.Inc()
	e.Logger.Info("session created", zap.String("session", id))
	return id, nil
}

// EnsureSession creates the session if it does not exist yet.
func (e *Engine) EnsureSession(ctx context.Context, id string) error {
	_, err := e.SessionRepo.GetByID(ctx, e.DB, id)
	if err == domain.ErrSessionNotFound {
		_, err = e.CreateSession(ctx, id)
	}
	return err
}

// load rebuilds a session from its record and the latest snapshot of each
// slot. Snapshot checksums are verified against the stored structures.
func (e *Engine) load(ctx context.Context, id string) (session.Session, *domain.SessionRecord, error) {
	rec, err := e.SessionRepo.GetByID(ctx, e.DB, id)
	if err != nil {
		return session.Session{}, nil, err
	}
	snaps, err := e.SnapshotRepo.LatestBySession(ctx, e.DB, id)
	if err != nil {
		return session.Session{}, nil, err
	}

	s := session.New(id)
	s.Seed = rec.Seed
	s.Version = rec.StateVersion
	var states []session.SlotState
	for _, snap := range snaps {
		var st session.SlotState
		if err := json.Unmarshal([]byte(snap.SnapshotJSON), &st); err != nil {
			return session.Session{}, nil, domain.WrapEngineError(domain.ErrSnapshotCorrupt.Code,
				fmt.Sprintf("%s: session %s slot %d", domain.ErrSnapshotCorrupt.Message, id, snap.Slot), err)
		}
		if st.Artifact == nil || st.Artifact.Structure == nil || st.Artifact.Structure.Checksum() != snap.Checksum {
			return session.Session{}, nil, domain.NewEngineError(domain.ErrSnapshotCorrupt.Code,
				fmt.Sprintf("%s: session %s slot %d", domain.ErrSnapshotCorrupt.Message, id, snap.Slot))
		}
		st.Slot = snap.Slot
		states = append(states, st)
	}
	s = session.Merge(s, states)
	s.Version = rec.StateVersion
	return s, rec, nil
}

// View returns a read-only copy of the session and its status.
func (e *Engine) View(ctx context.Context, id string) (session.Session, domain.SessionStatus, error) {
	s, rec, err := e.load(ctx, id)
	if err != nil {
		return session.Session{}, "", err
	}
	return s.View(), rec.Status, nil
}

// Record returns the persisted session header.
func (e *Engine) Record(ctx context.Context, id string) (*domain.SessionRecord, error) {
	return e.SessionRepo.GetByID(ctx, e.DB, id)
}

// ListSessions returns session headers, optionally filtered by status.
func (e *Engine) ListSessions(ctx context.Context, status domain.SessionStatus) ([]domain.SessionRecord, error) {
	return e.SessionRepo.List(ctx, e.DB, status)
}

// Events returns the session's events after sinceSeq.
func (e *Engine) Events(ctx context.Context, id string, sinceSeq int64) ([]domain.UploadEvent, error) {
	if _, err := e.SessionRepo.GetByID(ctx, e.DB, id); err != nil {
		return nil, err
	}
	return e.EventRepo.ListBySession(ctx, e.DB, id, sinceSeq)
}

// SlotHistory returns every artifact a slot has held, oldest first.
func (e *Engine) SlotHistory(ctx context.Context, id string, slot domain.Slot) ([]domain.SlotSnapshot, error) {
	if !slot.Valid() {
		return nil, domain.ErrInvalidSlot
	}
	return e.SnapshotRepo.ListBySlot(ctx, e.DB, id, slot)
}

// AuditTrail returns the session's audit records.
func (e *Engine) AuditTrail(ctx context.Context, id string) ([]domain.AuditRecord, error) {
	return e.AuditRepo.ListBySession(ctx, e.DB, id, "")
}

// Ranker exposes the rank validator used at export.
func (e *Engine) Ranker() *review.RankValidator {
	return e.Gate.Checker.Validator
}

func (e *Engine) audit(ctx context.Context, tx *sql.Tx, sessionID, category, actor, action, severity string, request, decision any) error {
	reqJSON, _ := json.Marshal(request)
	decJSON, _ := json.Marshal(decision)
	rec := domain.AuditRecord{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Category:     category,
		Actor:        actor,
		Action:       action,
		RequestJSON:  string(reqJSON),
		DecisionJSON: string(decJSON),
		Severity:     severity,
		CreatedAt:    e.now().Unix(),
	}
	if tx != nil {
		return e.AuditRepo.RecordTx(ctx, tx, rec)
	}
	return e.AuditRepo.Record(ctx, e.DB, rec)
}
