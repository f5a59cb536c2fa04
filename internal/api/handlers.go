// Package api exposes the engine's local control surface over HTTP: health,
// sync status, and explicit sync and refresh triggers. It is a loopback
// admin API, not the remote data plane the engine syncs against.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/finwiselabs/finsync/internal/sync"
	"github.com/finwiselabs/finsync/internal/types"
)

// Syncer is the slice of the engine the handlers need.
type Syncer interface {
	Status(ctx context.Context) (sync.Status, error)
	RunSyncNow(ctx context.Context) error
	ForceFullRefresh(ctx context.Context, collection types.Collection, ownerID string) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine Syncer
	apiKey string
}

// NewHandler creates a handler backed by the engine facade.
func NewHandler(engine Syncer, apiKey string) *Handler {
	return &Handler{engine: engine, apiKey: apiKey}
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		slog.Error("status lookup failed", "component", "api", "error", err)
		MapEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// TriggerSync handles POST /api/v1/sync. A pass already in flight makes
// this a no-op; both outcomes report 202.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RunSyncNow(r.Context()); err != nil {
		MapEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// refreshRequest is the body of POST /api/v1/refresh.
type refreshRequest struct {
	Collection string `json:"collection"`
	OwnerID    string `json:"ownerId"`
}

// Refresh handles POST /api/v1/refresh: a destructive mirror of one
// collection from the remote side.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	collection := types.Collection(req.Collection)
	if !collection.Valid() {
		WriteProblem(w, r, http.StatusBadRequest, "Unknown collection")
		return
	}
	if req.OwnerID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "ownerId is required")
		return
	}

	if err := h.engine.ForceFullRefresh(r.Context(), collection, req.OwnerID); err != nil {
		MapEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed", "collection": req.Collection})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}
