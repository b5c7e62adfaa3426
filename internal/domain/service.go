// Package domain defines the business logic for the timeclock service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/observability"
)

var (
	// ErrConfigMissing indicates no active webhook configuration exists.
	ErrConfigMissing = errors.New("no active webhook configuration")
	// ErrUnauthorized indicates the supplied webhook secret does not match.
	ErrUnauthorized = errors.New("webhook secret mismatch")
	// ErrValidation wraps rejected request input.
	ErrValidation = errors.New("validation failed")
	// ErrEmployeeNotFound is returned when an identity cannot be resolved.
	ErrEmployeeNotFound = errors.New("employee not found")
	// ErrStorage wraps persistence-layer failures.
	ErrStorage = errors.New("storage error")
)

// Repository captures the persistence operations the clock flows depend on.
// Lookup methods return (nil, nil) when no row matches.
type Repository interface {
	ActiveWebhookConfig(ctx context.Context) (*WebhookConfig, error)
	MappingByDeviceUserID(ctx context.Context, deviceUserID int64) (*DeviceUserMapping, error)
	EmployeeByID(ctx context.Context, employeeID string) (*Employee, error)
	EmployeeByTaxID(ctx context.Context, taxID string) (*Employee, error)
	LastPunchBetween(ctx context.Context, employeeID string, from, to time.Time) (*PunchRecord, error)
	FindPunchBySourceLog(ctx context.Context, deviceID string, logID int64) (*PunchRecord, error)
	CreatePunch(ctx context.Context, record PunchRecord) error
	BeginSyncRun(ctx context.Context, run SyncRun) error
	CompleteSyncRun(ctx context.Context, run SyncRun) error
	ListPunchesByEmployee(ctx context.Context, employeeID string, cursor *Cursor, limit int) ([]PunchRecord, *Cursor, error)
	ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error)
}

// Cursor models the keyset pagination token for punch listings.
type Cursor struct {
	PunchedAt time.Time
	ID        string
}

// PushPayload is the decoded push/batch webhook shape: a committed set of
// access-log changes proactively delivered by the device.
type PushPayload struct {
	DeviceID int64
	Changes  []AccessLogChange
}

// AccessLogChange is one object-change entry from a push delivery.
type AccessLogChange struct {
	Object       string
	ChangeType   string
	LogID        int64
	DeviceUserID int64
	Time         int64
	DeviceID     int64
}

// IsAccessLogInsert reports whether the change represents an inserted
// access-log row. Anything else is skipped without being counted.
func (c AccessLogChange) IsAccessLogInsert() bool {
	return c.Object == "access_logs" && c.ChangeType == "inserted"
}

// LegacyPayload is the flat single-event webhook shape keyed by tax id.
type LegacyPayload struct {
	TaxID            string
	Timestamp        *time.Time
	DeviceID         string
	VerificationType string
	Photo            string
}

// BatchResult reports the outcome of one push batch.
type BatchResult struct {
	SyncRunID string
	Status    SyncRunStatus
	Synced    int
	Failed    int
	Results   []EntryResult
}

// LegacyResult reports the punch created by a legacy delivery.
type LegacyResult struct {
	PunchID      string
	EmployeeName string
	Type         PunchType
	PunchedAt    time.Time
}

// Option configures optional behaviour for the ClockService.
type Option func(*ClockService)

// WithLocation sets the time zone used to resolve the "today" boundary.
func WithLocation(loc *time.Location) Option {
	return func(s *ClockService) {
		s.loc = loc
	}
}

// WithClock overrides the wall clock, used by legacy punches that carry no
// timestamp of their own.
func WithClock(now func() time.Time) Option {
	return func(s *ClockService) {
		s.now = now
	}
}

// ClockService turns inbound webhook payloads into persisted punch records,
// inferring each punch's category from the employee's prior punches that day.
type ClockService struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewClockService constructs a ClockService.
func NewClockService(repo Repository, opts ...Option) *ClockService {
	s := &ClockService{
		repo: repo,
		loc:  time.UTC,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize checks the active webhook configuration against the supplied
// secret. The secret is only enforced when both sides are non-empty; it is a
// transport-level guard, not cryptographic proof.
func (s *ClockService) Authorize(ctx context.Context, suppliedSecret string) error {
	cfg, err := s.repo.ActiveWebhookConfig(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if cfg == nil {
		return ErrConfigMissing
	}
	if suppliedSecret != "" && cfg.Secret != "" && suppliedSecret != cfg.Secret {
		return ErrUnauthorized
	}
	return nil
}

// SyncRunKindPush tags sync runs created by push/batch deliveries.
const SyncRunKindPush = "access_log_push"

// ProcessBatch handles a push delivery. Entries are processed strictly in
// list order: inference for entry N+1 must observe the insert from entry N,
// so two punches for the same employee in one batch resolve sequentially.
// Per-entry failures are isolated and accumulated; only sync-run bookkeeping
// failures abort the request.
func (s *ClockService) ProcessBatch(ctx context.Context, payload PushPayload) (*BatchResult, error) {
	run := SyncRun{
		ID:       uuid.NewString(),
		Kind:     SyncRunKindPush,
		Status:   SyncRunRunning,
		DeviceID: strconv.FormatInt(payload.DeviceID, 10),
	}
	if err := s.repo.BeginSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var (
		synced  int
		failed  int
		results []EntryResult
	)

	fail := func(logID int64, msg string) {
		failed++
		results = append(results, EntryResult{LogID: logID, Error: msg})
	}

	for _, change := range payload.Changes {
		if !change.IsAccessLogInsert() {
			continue
		}

		deviceID := change.DeviceID
		if deviceID == 0 {
			deviceID = payload.DeviceID
		}

		mapping, err := s.repo.MappingByDeviceUserID(ctx, change.DeviceUserID)
		if err != nil {
			fail(change.LogID, err.Error())
			continue
		}
		if mapping == nil {
			fail(change.LogID, "User mapping not found")
			continue
		}

		employee, err := s.repo.EmployeeByID(ctx, mapping.EmployeeID)
		if err != nil {
			fail(change.LogID, err.Error())
			continue
		}
		if employee == nil {
			fail(change.LogID, "Employee not found")
			continue
		}

		punchedAt := time.Unix(change.Time, 0).UTC()
		punchType, err := s.nextTypeFor(ctx, employee.ID, punchedAt)
		if err != nil {
			fail(change.LogID, err.Error())
			continue
		}

		device := strconv.FormatInt(deviceID, 10)
		existing, err := s.repo.FindPunchBySourceLog(ctx, device, change.LogID)
		if err != nil {
			fail(change.LogID, err.Error())
			continue
		}
		if existing != nil {
			// Redelivered log entry: report success without inserting and
			// without touching either counter.
			results = append(results, EntryResult{LogID: change.LogID, Success: true, Duplicate: true, PunchID: existing.ID, Type: existing.Type})
			observability.RecordDuplicateSkipped()
			continue
		}

		logID := change.LogID
		record := PunchRecord{
			ID:          uuid.NewString(),
			EmployeeID:  employee.ID,
			AccountID:   employee.AccountID,
			Type:        punchType,
			PunchedAt:   punchedAt,
			Source:      SourceDevice,
			DeviceID:    device,
			SourceLogID: &logID,
			Verified:    true,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.repo.CreatePunch(ctx, record); err != nil {
			fail(change.LogID, err.Error())
			continue
		}

		synced++
		results = append(results, EntryResult{LogID: change.LogID, Success: true, PunchID: record.ID, Type: record.Type})
		observability.RecordPunch(string(record.Type))
	}

	status := SyncRunSuccess
	switch {
	case failed > 0 && synced > 0:
		status = SyncRunPartial
	case failed > 0:
		status = SyncRunError
	}

	completedAt := s.now().UTC()
	run.Status = status
	run.Synced = synced
	run.Failed = failed
	run.CompletedAt = &completedAt
	run.Detail = results
	if err := s.repo.CompleteSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	observability.RecordBatch(string(status))

	return &BatchResult{
		SyncRunID: run.ID,
		Status:    status,
		Synced:    synced,
		Failed:    failed,
		Results:   results,
	}, nil
}

// ProcessLegacy handles the flat single-event shape. There is no
// deduplication key on this path; every call that passes validation creates
// a new punch and idempotency is the caller's responsibility.
func (s *ClockService) ProcessLegacy(ctx context.Context, payload LegacyPayload) (*LegacyResult, error) {
	taxID := normalizeTaxID(payload.TaxID)
	if taxID == "" {
		return nil, fmt.Errorf("%w: cpf is required", ErrValidation)
	}

	employee, err := s.repo.EmployeeByTaxID(ctx, taxID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if employee == nil {
		return nil, fmt.Errorf("%w: cpf %s", ErrEmployeeNotFound, taxID)
	}

	punchedAt := s.now().UTC()
	if payload.Timestamp != nil {
		punchedAt = payload.Timestamp.UTC()
	}

	punchType, err := s.nextTypeFor(ctx, employee.ID, punchedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	record := PunchRecord{
		ID:         uuid.NewString(),
		EmployeeID: employee.ID,
		AccountID:  employee.AccountID,
		Type:       punchType,
		PunchedAt:  punchedAt,
		Source:     SourceDevice,
		DeviceID:   payload.DeviceID,
		Verified:   payload.VerificationType == "biometry" || payload.VerificationType == "facial",
		CreatedAt:  s.now().UTC(),
	}
	if payload.Photo != "" {
		photo := payload.Photo
		record.PhotoRef = &photo
	}
	if err := s.repo.CreatePunch(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	observability.RecordPunch(string(record.Type))

	return &LegacyResult{
		PunchID:      record.ID,
		EmployeeName: employee.Name,
		Type:         record.Type,
		PunchedAt:    record.PunchedAt,
	}, nil
}

// ListPunches fetches an employee's punches with keyset pagination.
func (s *ClockService) ListPunches(ctx context.Context, employeeID string, cursor *Cursor, limit int) ([]PunchRecord, *Cursor, error) {
	return s.repo.ListPunchesByEmployee(ctx, employeeID, cursor, limit)
}

// ListSyncRuns fetches the most recent webhook batches.
func (s *ClockService) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	return s.repo.ListSyncRuns(ctx, limit)
}

// nextTypeFor derives the category for a punch at the given instant from the
// latest punch already committed on the same calendar day. The day boundary
// is midnight in the service's configured location, evaluated against the
// punch's own timestamp. A fresh day always resets to entry.
func (s *ClockService) nextTypeFor(ctx context.Context, employeeID string, at time.Time) (PunchType, error) {
	local := at.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	last, err := s.repo.LastPunchBetween(ctx, employeeID, dayStart, dayEnd)
	if err != nil {
		return "", err
	}
	if last == nil {
		return PunchEntry, nil
	}
	return NextPunchType(last.Type), nil
}

// normalizeTaxID strips everything but digits from a CPF.
func normalizeTaxID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
