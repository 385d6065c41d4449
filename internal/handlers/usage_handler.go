package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// RefreshResponse is returned by the manual refresh endpoint
type RefreshResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UsageHandler serves the cached aggregate and the scheduler controls
type UsageHandler struct {
	cache     interfaces.CacheStore
	scheduler interfaces.SchedulerService
	history   interfaces.HistoryStorage
	logger    arbor.ILogger
}

// NewUsageHandler creates the handler. history may be nil when the history store is disabled.
func NewUsageHandler(cache interfaces.CacheStore, scheduler interfaces.SchedulerService, history interfaces.HistoryStorage, logger arbor.ILogger) *UsageHandler {
	return &UsageHandler{
		cache:     cache,
		scheduler: scheduler,
		history:   history,
		logger:    logger,
	}
}

// UsageHandler returns the last published aggregate merged with live scheduler state.
// GET /api/usage
func (h *UsageHandler) UsageHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	response := models.UsageResponse{Accounts: []models.UsageSnapshot{}}

	aggregate, err := h.cache.Read()
	if err != nil {
		// An unreadable cache is served as "no data yet"; the next run replaces it
		h.logger.Warn().Err(err).Msg("Failed to read usage cache")
	} else if aggregate != nil {
		response.LastUpdated = aggregate.LastUpdated
		if aggregate.Accounts != nil {
			response.Accounts = aggregate.Accounts
		}
	}

	status := h.scheduler.Status()
	response.NextRefresh = status.NextRefresh
	response.IsScraping = status.IsScraping

	WriteJSON(w, http.StatusOK, response)
}

// RefreshHandler starts a scrape run unless one is already active.
// GET|POST /api/refresh
func (h *UsageHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	success, message := h.scheduler.TriggerRefresh()
	WriteJSON(w, http.StatusOK, RefreshResponse{Success: success, Message: message})
}

// StatusHandler reports scheduler state and process uptime.
// GET /api/status
func (h *UsageHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, h.scheduler.Status())
}

// HistoryHandler lists recorded per-account results, newest first.
// GET /api/history?account=N&limit=N
func (h *UsageHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if h.history == nil {
		WriteError(w, http.StatusNotFound, "History is disabled")
		return
	}

	account := GetIntParam(r, "account", 0, 0)
	limit := GetIntParam(r, "limit", defaultHistoryLimit, maxHistoryLimit)

	records, err := h.history.ListRecords(r.Context(), account, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list history")
		WriteError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
