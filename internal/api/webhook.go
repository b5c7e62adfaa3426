package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/domain"
)

// webhookSecretHeader carries the shared secret configured on the device
// integration. It is checked against the active WebhookConfig row.
const webhookSecretHeader = "x-webhook-secret"

// handleWebhook ingests one time-clock delivery, of either supported shape.
// The two shapes are distinguished by the presence of the object_changes
// list; everything else is treated as the flat legacy payload.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeWebhookError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		log.Printf("webhook: malformed payload: %v", err)
		writeWebhookError(w, http.StatusBadRequest, "invalid JSON payload", err.Error())
		return
	}

	secret := r.Header.Get(webhookSecretHeader)
	if err := h.service.Authorize(r.Context(), secret); err != nil {
		switch {
		case errors.Is(err, domain.ErrConfigMissing):
			log.Printf("webhook: rejected, no active configuration")
			writeWebhookError(w, http.StatusNotFound, "webhook not configured", "")
		case errors.Is(err, domain.ErrUnauthorized):
			log.Printf("webhook: rejected, secret mismatch")
			writeWebhookError(w, http.StatusUnauthorized, "invalid webhook secret", "")
		default:
			log.Printf("webhook: config lookup failed: %v", err)
			writeWebhookError(w, http.StatusInternalServerError, "internal error", err.Error())
		}
		return
	}

	if envelope.ObjectChanges != nil {
		h.handlePushPayload(w, r, envelope)
		return
	}
	h.handleLegacyPayload(w, r, envelope)
}

func (h *Handler) handlePushPayload(w http.ResponseWriter, r *http.Request, envelope webhookEnvelope) {
	var changes []objectChange
	if err := json.Unmarshal(envelope.ObjectChanges, &changes); err != nil {
		log.Printf("webhook: malformed object_changes: %v", err)
		writeWebhookError(w, http.StatusBadRequest, "invalid object_changes", err.Error())
		return
	}

	payload := domain.PushPayload{
		DeviceID: envelope.DeviceID,
		Changes:  make([]domain.AccessLogChange, 0, len(changes)),
	}
	for _, change := range changes {
		payload.Changes = append(payload.Changes, domain.AccessLogChange{
			Object:       change.Object,
			ChangeType:   change.Type,
			LogID:        change.Values.ID,
			DeviceUserID: change.Values.UserID,
			Time:         change.Values.Time,
			DeviceID:     change.Values.DeviceID,
		})
	}

	result, err := h.service.ProcessBatch(r.Context(), payload)
	if err != nil {
		log.Printf("webhook: batch processing failed (device=%d): %v", envelope.DeviceID, err)
		writeWebhookError(w, http.StatusInternalServerError, "batch processing failed", err.Error())
		return
	}

	// Partial failure is a payload-level report, never a transport error.
	writeJSON(w, http.StatusOK, pushResponse{
		SyncRunID: result.SyncRunID,
		Status:    string(result.Status),
		Synced:    result.Synced,
		Failed:    result.Failed,
		Results:   result.Results,
	})
}

func (h *Handler) handleLegacyPayload(w http.ResponseWriter, r *http.Request, envelope webhookEnvelope) {
	payload := domain.LegacyPayload{
		TaxID:            envelope.CPF,
		DeviceID:         envelope.LegacyDeviceID(),
		VerificationType: envelope.VerificationType,
		Photo:            envelope.Photo,
	}
	if strings.TrimSpace(envelope.Timestamp) != "" {
		ts, err := time.Parse(time.RFC3339, envelope.Timestamp)
		if err != nil {
			log.Printf("webhook: invalid legacy timestamp %q: %v", envelope.Timestamp, err)
			writeWebhookError(w, http.StatusBadRequest, "invalid timestamp", err.Error())
			return
		}
		payload.Timestamp = &ts
	}

	result, err := h.service.ProcessLegacy(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			log.Printf("webhook: legacy payload rejected: %v", err)
			writeWebhookError(w, http.StatusBadRequest, "cpf is required", "")
		case errors.Is(err, domain.ErrEmployeeNotFound):
			log.Printf("webhook: legacy punch for unknown employee: %v", err)
			writeWebhookError(w, http.StatusNotFound, "employee not found", err.Error())
		default:
			log.Printf("webhook: legacy punch failed: %v", err)
			writeWebhookError(w, http.StatusInternalServerError, "punch not recorded", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, legacyResponse{
		PunchID:      result.PunchID,
		EmployeeName: result.EmployeeName,
		Type:         string(result.Type),
		PunchedAt:    result.PunchedAt,
	})
}

// webhookEnvelope covers both supported webhook shapes. ObjectChanges stays
// raw so its presence (even as an empty list) selects the push flow; the
// legacy shape sends device_id as a string, so that field stays raw too.
type webhookEnvelope struct {
	ObjectChanges    json.RawMessage `json:"object_changes"`
	DeviceID         int64           `json:"device_id"`
	CPF              string          `json:"cpf"`
	Timestamp        string          `json:"timestamp"`
	VerificationType string          `json:"verification_type"`
	Photo            string          `json:"photo"`

	legacyDeviceID string
}

// UnmarshalJSON tolerates device_id arriving as either a number (push) or a
// string (legacy callers).
func (e *webhookEnvelope) UnmarshalJSON(data []byte) error {
	type alias struct {
		ObjectChanges    json.RawMessage `json:"object_changes"`
		DeviceID         json.RawMessage `json:"device_id"`
		CPF              string          `json:"cpf"`
		Timestamp        string          `json:"timestamp"`
		VerificationType string          `json:"verification_type"`
		Photo            string          `json:"photo"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	// An explicit null is not a push delivery.
	if string(a.ObjectChanges) == "null" {
		a.ObjectChanges = nil
	}
	e.ObjectChanges = a.ObjectChanges
	e.CPF = a.CPF
	e.Timestamp = a.Timestamp
	e.VerificationType = a.VerificationType
	e.Photo = a.Photo

	if len(a.DeviceID) > 0 {
		if err := json.Unmarshal(a.DeviceID, &e.DeviceID); err != nil {
			var s string
			if strErr := json.Unmarshal(a.DeviceID, &s); strErr != nil {
				return err
			}
			e.legacyDeviceID = s
		}
	}
	return nil
}

func (e *webhookEnvelope) LegacyDeviceID() string {
	if e.legacyDeviceID != "" {
		return e.legacyDeviceID
	}
	if e.DeviceID != 0 {
		return strconv.FormatInt(e.DeviceID, 10)
	}
	return ""
}

type objectChange struct {
	Object string          `json:"object"`
	Type   string          `json:"type"`
	Values accessLogValues `json:"values"`
}

type accessLogValues struct {
	ID       int64 `json:"id"`
	UserID   int64 `json:"user_id"`
	Time     int64 `json:"time"`
	DeviceID int64 `json:"device_id"`
}

// pushResponse is the body returned for push deliveries.
type pushResponse struct {
	SyncRunID string               `json:"sync_run_id"`
	Status    string               `json:"status"`
	Synced    int                  `json:"synced"`
	Failed    int                  `json:"failed"`
	Results   []domain.EntryResult `json:"results"`
}

// legacyResponse is the body returned for legacy deliveries.
type legacyResponse struct {
	PunchID      string    `json:"punch_id"`
	EmployeeName string    `json:"employee_name"`
	Type         string    `json:"type"`
	PunchedAt    time.Time `json:"punched_at"`
}
