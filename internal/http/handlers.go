// Package http exposes the follow inventory boundaries over HTTP: the live
// fetch, the snapshot sync, the persisted read and the health check.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/auth"
	"github.com/parsascontentcorner/followmanager/internal/database"
	"github.com/parsascontentcorner/followmanager/internal/discord"
	"github.com/parsascontentcorner/followmanager/internal/inventory"
	"github.com/parsascontentcorner/followmanager/internal/models"
	"github.com/parsascontentcorner/followmanager/internal/service"
	"github.com/parsascontentcorner/followmanager/pkg/logger"
)

// Route paths
const (
	RouteLive     = "/functions/v1/follow-manager"
	RouteSync     = "/functions/v1/sync-follow-manager-inventory"
	RouteSnapshot = "/rest/v1/follow-inventory"
	RouteHealth   = "/health"
)

// ViewSourceGuild selects the source-guild grouping on the read routes
const ViewSourceGuild = "source-guild"

const (
	messageMethodNotAllowed = "Method not allowed."
	messageSnapshotFailed   = "Failed to load follow inventory snapshot."
	messageUnknownView      = "Unknown view."
)

// InventoryService is what the handlers need from the service layer
type InventoryService interface {
	Live(ctx context.Context) (models.FollowInventory, error)
	Sync(ctx context.Context) (*models.SyncResult, error)
	Snapshot(ctx context.Context) (models.FollowInventory, error)
	LastSync(ctx context.Context) (*models.SyncRun, error)
}

// HealthChecker reports whether the database is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	service      InventoryService
	gate         *auth.Gate
	serviceGuard *auth.ServiceGuard
	health       HealthChecker
	logger       *zap.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc InventoryService, gate *auth.Gate, serviceGuard *auth.ServiceGuard, health HealthChecker, logger *zap.Logger) *Handlers {
	return &Handlers{
		service:      svc,
		gate:         gate,
		serviceGuard: serviceGuard,
		health:       health,
		logger:       logger,
	}
}

// Routes returns the mux with every boundary registered
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(RouteLive, h.LiveHandler)
	mux.HandleFunc(RouteSync, h.SyncHandler)
	mux.HandleFunc(RouteSnapshot, h.SnapshotHandler)
	mux.HandleFunc(RouteHealth, h.HealthHandler)
	return mux
}

// LiveHandler serves the inventory read straight from Discord
func (h *Handlers) LiveHandler(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	h.gate.ApplyCORS(w.Header(), origin)

	if r.Method == http.MethodOptions {
		h.writeText(w, r, http.StatusOK, "ok")
		return
	}
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, messageMethodNotAllowed)
		return
	}
	if !h.authorize(w, r, origin) {
		return
	}
	if !h.checkView(w, r) {
		return
	}

	inv, err := h.service.Live(r.Context())
	if err != nil {
		message, status := discord.MapError(err, service.MessageLiveFailed)
		logger.FromContext(r.Context(), h.logger).Warn("live follow inventory failed",
			zap.Int("status", status),
			zap.Error(err),
		)
		h.writeError(w, r, status, message)
		return
	}

	h.writeInventory(w, r, inv)
}

// SyncHandler refreshes the persisted snapshot. Only the service role may call it.
func (h *Handlers) SyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, messageMethodNotAllowed)
		return
	}
	if err := h.serviceGuard.Authorize(r.Context(), r.Header.Get("Authorization")); err != nil {
		h.writeGateError(w, r, err)
		return
	}

	result, err := h.service.Sync(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context(), h.logger)

		var replaceErr *service.ReplaceError
		if errors.As(err, &replaceErr) {
			log.Error("snapshot replace failed", zap.Error(err))
			h.writeJSON(w, r, http.StatusInternalServerError, map[string]string{
				"error":   service.MessageReplaceFailed,
				"details": replaceErr.Err.Error(),
			})
			return
		}

		message, status := discord.MapError(err, service.MessageSyncFailed)
		log.Warn("follow inventory sync failed", zap.Int("status", status), zap.Error(err))
		h.writeError(w, r, status, message)
		return
	}

	h.writeJSON(w, r, http.StatusOK, result)
}

// SnapshotHandler serves the inventory rebuilt from the persisted snapshot
func (h *Handlers) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	h.gate.ApplyCORS(w.Header(), origin)

	if r.Method == http.MethodOptions {
		h.writeText(w, r, http.StatusOK, "ok")
		return
	}
	if r.Method != http.MethodGet {
		h.writeError(w, r, http.StatusMethodNotAllowed, messageMethodNotAllowed)
		return
	}
	if !h.authorize(w, r, origin) {
		return
	}
	if !h.checkView(w, r) {
		return
	}

	inv, err := h.service.Snapshot(r.Context())
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to read follow inventory snapshot", zap.Error(err))
		h.writeError(w, r, http.StatusInternalServerError, messageSnapshotFailed)
		return
	}

	h.writeInventory(w, r, inv)
}

// HealthHandler handles health check requests.
// With ?detail=1 it also reports the last sync attempt.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Health(r.Context()); err != nil {
		logger.FromContext(r.Context(), h.logger).Error("health check failed", zap.Error(err))
		h.writeText(w, r, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}

	if r.URL.Query().Get("detail") != "1" {
		h.writeText(w, r, http.StatusOK, "OK")
		return
	}

	detail := healthDetail{Status: "ok"}
	run, err := h.service.LastSync(r.Context())
	switch {
	case err == nil:
		detail.LastSyncStatus = string(run.Status)
		if run.RefreshedAt != "" {
			detail.LastSyncedAt = &run.RefreshedAt
		}
	case !errors.Is(err, database.ErrNoSyncRuns):
		logger.FromContext(r.Context(), h.logger).Error("failed to read last sync run", zap.Error(err))
	}

	h.writeJSON(w, r, http.StatusOK, detail)
}

type healthDetail struct {
	Status         string  `json:"status"`
	LastSyncedAt   *string `json:"lastSyncedAt"`
	LastSyncStatus string  `json:"lastSyncStatus,omitempty"`
}

// authorize runs the origin check and the caller gate, writing the rejection
// when one fails
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request, origin string) bool {
	if err := h.gate.CheckOrigin(origin); err != nil {
		h.writeGateError(w, r, err)
		return false
	}

	identity, err := h.gate.Authorize(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeGateError(w, r, err)
		return false
	}

	logger.FromContext(r.Context(), h.logger).Debug("caller authorized", zap.String("user_id", identity.UserID))
	return true
}

// checkView rejects an unknown view before any inventory is loaded
func (h *Handlers) checkView(w http.ResponseWriter, r *http.Request) bool {
	switch r.URL.Query().Get("view") {
	case "", ViewSourceGuild:
		return true
	default:
		h.writeError(w, r, http.StatusBadRequest, messageUnknownView)
		return false
	}
}

// writeInventory applies the q filter and the view selection. The view has
// already passed checkView.
func (h *Handlers) writeInventory(w http.ResponseWriter, r *http.Request, inv models.FollowInventory) {
	query := r.URL.Query()
	inv = inventory.Filter(inv, query.Get("q"))

	if query.Get("view") == ViewSourceGuild {
		h.writeJSON(w, r, http.StatusOK, inventory.GroupBySourceGuild(inv))
		return
	}
	h.writeJSON(w, r, http.StatusOK, inv)
}

func (h *Handlers) writeGateError(w http.ResponseWriter, r *http.Request, err error) {
	var gateErr *auth.GateError
	if errors.As(err, &gateErr) {
		h.writeError(w, r, gateErr.Status, gateErr.Message)
		return
	}
	h.writeError(w, r, http.StatusForbidden, "Forbidden.")
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, map[string]string{"error": message})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handlers) writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to write response", zap.Error(err))
	}
}
