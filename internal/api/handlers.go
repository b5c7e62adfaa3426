// Package api exposes HTTP handlers for the timeclock service.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/auth"
	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/domain"
	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/persistence"
)

// Handler coordinates HTTP requests with the clock service.
type Handler struct {
	service *domain.ClockService
}

// NewHandler builds a Handler.
func NewHandler(service *domain.ClockService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/timeclock/webhook", h.handleWebhook)
	mux.HandleFunc("/v1/punches", h.listPunches)
	mux.HandleFunc("/v1/sync-runs", h.listSyncRuns)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listPunches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTimeclockRead) && !claims.HasScope(auth.ScopeTimeclockWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timeclock:read required")
		return
	}

	employeeID := r.URL.Query().Get("employee_id")
	if strings.TrimSpace(employeeID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing employee_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	punches, next, err := h.service.ListPunches(r.Context(), employeeID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]PunchView, 0, len(punches))
	for _, punch := range punches {
		items = append(items, toPunchView(punch))
	}

	writeJSON(w, http.StatusOK, ListPunchesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) listSyncRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTimeclockRead) && !claims.HasScope(auth.ScopeTimeclockWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timeclock:read required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	runs, err := h.service.ListSyncRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SyncRunView, 0, len(runs))
	for _, run := range runs {
		items = append(items, toSyncRunView(run))
	}
	writeJSON(w, http.StatusOK, ListSyncRunsResponse{Items: items})
}

// PunchView exposes one punch record.
type PunchView struct {
	PunchID     string    `json:"punch_id"`
	EmployeeID  string    `json:"employee_id"`
	AccountID   string    `json:"account_id"`
	Type        string    `json:"type"`
	PunchedAt   time.Time `json:"punched_at"`
	Source      string    `json:"source"`
	DeviceID    string    `json:"device_id,omitempty"`
	SourceLogID *int64    `json:"source_log_id,omitempty"`
	Verified    bool      `json:"verified"`
	PhotoRef    *string   `json:"photo_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListPunchesResponse packages punch listings.
type ListPunchesResponse struct {
	Items      []PunchView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// SyncRunView exposes one webhook batch summary.
type SyncRunView struct {
	SyncRunID   string               `json:"sync_run_id"`
	Kind        string               `json:"kind"`
	Status      string               `json:"status"`
	DeviceID    string               `json:"device_id,omitempty"`
	Synced      int                  `json:"synced"`
	Failed      int                  `json:"failed"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Results     []domain.EntryResult `json:"results,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ListSyncRunsResponse packages sync-run listings.
type ListSyncRunsResponse struct {
	Items []SyncRunView `json:"items"`
}

func toPunchView(p domain.PunchRecord) PunchView {
	return PunchView{
		PunchID:     p.ID,
		EmployeeID:  p.EmployeeID,
		AccountID:   p.AccountID,
		Type:        string(p.Type),
		PunchedAt:   p.PunchedAt,
		Source:      p.Source,
		DeviceID:    p.DeviceID,
		SourceLogID: p.SourceLogID,
		Verified:    p.Verified,
		PhotoRef:    p.PhotoRef,
		CreatedAt:   p.CreatedAt,
	}
}

func toSyncRunView(run domain.SyncRun) SyncRunView {
	return SyncRunView{
		SyncRunID:   run.ID,
		Kind:        run.Kind,
		Status:      string(run.Status),
		DeviceID:    run.DeviceID,
		Synced:      run.Synced,
		Failed:      run.Failed,
		CompletedAt: run.CompletedAt,
		Results:     run.Detail,
		CreatedAt:   run.CreatedAt,
	}
}

// writeError emits the read API error shape.
func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

// writeWebhookError emits the device-integration error shape.
func writeWebhookError(w http.ResponseWriter, status int, msg, details string) {
	payload := map[string]string{"error": msg}
	if details != "" {
		payload["details"] = details
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
