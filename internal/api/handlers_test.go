package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/auth"
	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/domain"
)

func readClaims() *auth.Claims {
	return &auth.Claims{
		Subject:   "tester",
		AccountID: "acct-1",
		Scopes: map[string]struct{}{
			auth.ScopeTimeclockRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestListPunchesSuccess(t *testing.T) {
	repo := newMockRepo()
	logID := int64(10)
	repo.punches = []domain.PunchRecord{
		{
			ID:          "punch-1",
			EmployeeID:  "emp-1",
			AccountID:   "acct-1",
			Type:        domain.PunchEntry,
			PunchedAt:   time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC),
			Source:      domain.SourceDevice,
			DeviceID:    "7",
			SourceLogID: &logID,
			Verified:    true,
		},
	}
	handler := NewHandler(domain.NewClockService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/punches?employee_id=emp-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))

	rr := httptest.NewRecorder()
	handler.listPunches(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ListPunchesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(resp.Items))
	}
	if resp.Items[0].PunchID != "punch-1" || resp.Items[0].Type != "entry" {
		t.Fatalf("unexpected item %+v", resp.Items[0])
	}
	if resp.Items[0].SourceLogID == nil || *resp.Items[0].SourceLogID != 10 {
		t.Fatalf("expected source_log_id 10, got %+v", resp.Items[0].SourceLogID)
	}
}

func TestListPunchesRequiresToken(t *testing.T) {
	handler := NewHandler(domain.NewClockService(newMockRepo()))

	req := httptest.NewRequest(http.MethodGet, "/v1/punches?employee_id=emp-1", nil)
	rr := httptest.NewRecorder()
	handler.listPunches(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestListPunchesRequiresScope(t *testing.T) {
	handler := NewHandler(domain.NewClockService(newMockRepo()))

	req := httptest.NewRequest(http.MethodGet, "/v1/punches?employee_id=emp-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   "tester",
		AccountID: "acct-1",
		Scopes:    map[string]struct{}{"billing:read": {}},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	rr := httptest.NewRecorder()
	handler.listPunches(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestListPunchesRequiresEmployeeID(t *testing.T) {
	handler := NewHandler(domain.NewClockService(newMockRepo()))

	req := httptest.NewRequest(http.MethodGet, "/v1/punches", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))

	rr := httptest.NewRecorder()
	handler.listPunches(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestListPunchesCapsLimit(t *testing.T) {
	repo := newMockRepo()
	handler := NewHandler(domain.NewClockService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/punches?employee_id=emp-1&limit=500", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))

	rr := httptest.NewRecorder()
	handler.listPunches(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if repo.punchLimit != 100 {
		t.Fatalf("expected limit capped at 100, repository saw %d", repo.punchLimit)
	}
}

func TestListPunchesRejectsBadCursor(t *testing.T) {
	handler := NewHandler(domain.NewClockService(newMockRepo()))

	req := httptest.NewRequest(http.MethodGet, "/v1/punches?employee_id=emp-1&cursor=%21%21not-base64", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))

	rr := httptest.NewRecorder()
	handler.listPunches(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListSyncRunsSuccess(t *testing.T) {
	repo := newMockRepo()
	completedAt := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	repo.syncRuns = []domain.SyncRun{
		{
			ID:          "run-1",
			Kind:        domain.SyncRunKindPush,
			Status:      domain.SyncRunPartial,
			DeviceID:    "7",
			Synced:      2,
			Failed:      1,
			CompletedAt: &completedAt,
			Detail: []domain.EntryResult{
				{LogID: 1, Success: true, PunchID: "punch-1", Type: domain.PunchEntry},
				{LogID: 2, Error: "User mapping not found"},
			},
		},
	}
	handler := NewHandler(domain.NewClockService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/sync-runs", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))

	rr := httptest.NewRecorder()
	handler.listSyncRuns(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ListSyncRunsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(resp.Items))
	}
	item := resp.Items[0]
	if item.Status != "partial" || item.Synced != 2 || item.Failed != 1 {
		t.Fatalf("unexpected sync run view %+v", item)
	}
	if len(item.Results) != 2 {
		t.Fatalf("expected 2 entry results got %d", len(item.Results))
	}
}

func TestListSyncRunsRequiresToken(t *testing.T) {
	handler := NewHandler(domain.NewClockService(newMockRepo()))

	req := httptest.NewRequest(http.MethodGet, "/v1/sync-runs", nil)
	rr := httptest.NewRecorder()
	handler.listSyncRuns(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}
