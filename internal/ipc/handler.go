// Package ipc provides the HTTP API for the spaceship comparator.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/session"
	"github.com/spaceshipgen/comparator/internal/workflow"
)

// maxUploadBytes bounds an upload request body.
const maxUploadBytes = 32 << 20

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Engine   *workflow.Engine
	Logger   *zap.Logger
	Gatherer prometheus.Gatherer
	// PollInterval is how often event streams check for new events.
	PollInterval time.Duration
}

// CreateSessionRequest is the body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
}

// UploadRequest is the body for POST /api/v1/sessions/{sessionID}/uploads.
type UploadRequest struct {
	Files []domain.UploadFile `json:"files"`
}

// RanksRequest is the body of the export endpoints. Keys are slot numbers.
type RanksRequest struct {
	Ranks domain.Ranks `json:"ranks"`
}

// SlotResponse is the public view of one slot.
type SlotResponse struct {
	Slot       domain.Slot      `json:"slot"`
	Filename   string           `json:"filename,omitempty"`
	Empty      bool             `json:"empty"`
	BlockCount int              `json:"block_count,omitempty"`
	Metrics    []domain.Metric  `json:"metrics,omitempty"`
	View       session.SlotView `json:"view"`
	Markdown   string           `json:"markdown"`
}

// SessionResponse is the public view of a session.
type SessionResponse struct {
	SessionID string               `json:"session_id"`
	Seed      domain.Seed          `json:"seed,omitempty"`
	Status    domain.SessionStatus `json:"status"`
	Version   int64                `json:"version"`
	Slots     []SlotResponse       `json:"slots"`
}

// UploadResponse reports the applied slots and per-file failures.
type UploadResponse struct {
	SessionResponse
	Applied []domain.Slot          `json:"applied"`
	Errors  []workflow.ItemFailure `json:"errors"`
}

// SessionSummary is one entry of GET /api/v1/sessions.
type SessionSummary struct {
	SessionID string               `json:"session_id"`
	Seed      domain.Seed          `json:"seed,omitempty"`
	Status    domain.SessionStatus `json:"status"`
	CreatedAt int64                `json:"created_at"`
	UpdatedAt int64                `json:"updated_at"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newSessionResponse(s session.Session, status domain.SessionStatus) SessionResponse {
	resp := SessionResponse{
		SessionID: s.ID,
		Seed:      s.Seed,
		Status:    status,
		Version:   s.Version,
		Slots:     make([]SlotResponse, 0, len(s.Slots)),
	}
	for _, st := range s.Slots {
		sr := SlotResponse{
			Slot:     st.Slot,
			Filename: st.Filename,
			Empty:    st.Empty(),
			View:     st.View,
			Markdown: st.View.Markdown(),
		}
		if st.Artifact != nil {
			sr.BlockCount = st.Artifact.BlockCount
			sr.Metrics = st.Artifact.Metrics
		}
		resp.Slots = append(resp.Slots, sr)
	}
	return resp
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DB.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSession handles POST /api/v1/sessions. An empty body creates a
// session with a generated ID.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
			return
		}
	}

	id, err := h.Engine.CreateSession(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	s, status, err := h.Engine.View(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(s, status))
}

// ListSessions handles GET /api/v1/sessions?status=S.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	status := domain.SessionStatus(r.URL.Query().Get("status"))
	recs, err := h.Engine.ListSessions(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]SessionSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, SessionSummary{
			SessionID: rec.SessionID,
			Seed:      rec.Seed,
			Status:    rec.Status,
			CreatedAt: rec.CreatedAtUnix,
			UpdatedAt: rec.UpdatedAtUnix,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession handles GET /api/v1/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, status, err := h.Engine.View(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s, status))
}

// Upload handles POST /api/v1/sessions/{sessionID}/uploads. The session is
// created on first upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	var req UploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if err := h.Engine.EnsureSession(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.Engine.Upload(r.Context(), id, req.Files)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := UploadResponse{
		SessionResponse: newSessionResponse(res.Session, res.Status),
		Applied:         res.Applied,
		Errors:          res.Failures(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// SlotHistory handles GET /api/v1/sessions/{sessionID}/slots/{slot}/history.
func (h *Handler) SlotHistory(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		h.writeError(w, domain.ErrInvalidSlot)
		return
	}
	snaps, err := h.Engine.SlotHistory(r.Context(), r.PathValue("sessionID"), domain.Slot(n))
	if err != nil {
		h.writeError(w, err)
		return
	}
	type entry struct {
		Filename   string `json:"filename"`
		Derivation string `json:"derivation"`
		Checksum   string `json:"checksum"`
		CreatedAt  int64  `json:"created_at"`
	}
	out := make([]entry, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, entry{Filename: s.Filename, Derivation: s.Derivation, Checksum: s.Checksum, CreatedAt: s.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// Export handles POST /api/v1/sessions/{sessionID}/export. The response is
// the export file itself, offered as a download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req RanksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	res, err := h.Engine.Export(r.Context(), r.PathValue("sessionID"), req.Ranks)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	if res.Replayed {
		w.Header().Set("X-Export-Replayed", "true")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(res.Body)
}

// CheckExport handles POST /api/v1/sessions/{sessionID}/export/check.
func (h *Handler) CheckExport(w http.ResponseWriter, r *http.Request) {
	var req RanksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	d, err := h.Engine.CheckExport(r.Context(), r.PathValue("sessionID"), req.Ranks)
	if err != nil {
		h.writeError(w, err)
		return
	}
	blockers := d.Blockers
	if blockers == nil {
		blockers = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"allow": d.Allow, "blockers": blockers})
}

// Tally handles GET /api/v1/tally.
func (h *Handler) Tally(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Engine.Tally(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListEvents handles GET /api/v1/sessions/{sessionID}/events?since_seq=N.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	sinceSeq := int64(0)
	if s := r.URL.Query().Get("since_seq"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			sinceSeq = parsed
		}
	}

	events, err := h.Engine.Events(r.Context(), id, sinceSeq)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, newEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListAudit handles GET /api/v1/sessions/{sessionID}/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	if _, err := h.Engine.Record(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	trail, err := h.Engine.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if trail == nil {
		trail = []domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, trail)
}

type eventResponse struct {
	SeqNo     int64           `json:"seq_no"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

func newEventResponse(ev domain.UploadEvent) eventResponse {
	payload := json.RawMessage(ev.PayloadJSON)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return eventResponse{SeqNo: ev.SeqNo, Type: ev.EventType, Payload: payload, CreatedAt: ev.CreatedAt}
}

// StreamEvents handles GET /api/v1/sessions/{sessionID}/events/stream (SSE).
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	events, err := h.Engine.Events(r.Context(), id, 0)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for _, ev := range events {
		writeSSEEvent(w, flusher, ev)
	}

	lastSeq := int64(0)
	if len(events) > 0 {
		lastSeq = events[len(events)-1].SeqNo
	}

	interval := h.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx := r.Context()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newEvents, err := h.Engine.Events(ctx, id, lastSeq)
			if err != nil {
				writeSSEError(w, flusher, err)
				return
			}
			for _, ev := range newEvents {
				writeSSEEvent(w, flusher, ev)
				lastSeq = ev.SeqNo
			}
		}
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(code int) int {
	switch code {
	case domain.ErrSessionNotFound.Code, domain.ErrNoRecords.Code:
		return http.StatusNotFound
	case domain.ErrDuplicateSession.Code, domain.ErrSessionExported.Code, domain.ErrOptimisticLock.Code:
		return http.StatusConflict
	case domain.ErrRateLimitExceeded.Code:
		return http.StatusTooManyRequests
	case domain.ErrFormat.Code, domain.ErrInvalidSeed.Code, domain.ErrInvalidSlot.Code, domain.ErrEmptyBatch.Code:
		return http.StatusBadRequest
	case domain.ErrSeedMismatch.Code, domain.ErrIncompleteSession.Code, domain.ErrRanksInvalid.Code,
		domain.ErrInvalidTransition.Code, domain.ErrExportGateFailed.Code:
		return http.StatusUnprocessableEntity
	case domain.ErrBuilderUnavailable.Code, domain.ErrBuilderFailed.Code:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := statusFor(engErr.Code)
		if status >= http.StatusInternalServerError {
			h.logger().Error("request failed", zap.Error(err))
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	h.logger().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev domain.UploadEvent) {
	data, _ := json.Marshal(newEventResponse(ev))
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.SeqNo, ev.EventType, data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
