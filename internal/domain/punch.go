package domain

import "time"

// PunchType is the category assigned to a single clock event.
type PunchType string

const (
	PunchEntry      PunchType = "entry"
	PunchBreakStart PunchType = "break_start"
	PunchBreakEnd   PunchType = "break_end"
	PunchExit       PunchType = "exit"
)

// NextPunchType returns the category for the punch that follows last within
// the same calendar day. The cycle is fixed:
//
//	entry -> break_start -> break_end -> exit -> entry
//
// It consults nothing beyond the previous category. An employee who leaves
// early and comes back still gets break_start on the second punch of the day;
// the device integration has no way to signal intent, so the cycle is applied
// as-is rather than guessed around.
func NextPunchType(last PunchType) PunchType {
	switch last {
	case PunchEntry:
		return PunchBreakStart
	case PunchBreakStart:
		return PunchBreakEnd
	case PunchBreakEnd:
		return PunchExit
	case PunchExit:
		return PunchEntry
	default:
		return PunchEntry
	}
}

// Employee is the internal identity a punch belongs to. Rows are created by
// the HR onboarding flow; this service only reads them.
type Employee struct {
	ID        string
	AccountID string
	Name      string
	TaxID     string
}

// DeviceUserMapping links a biometric device's numeric user id to an Employee.
type DeviceUserMapping struct {
	DeviceUserID int64
	EmployeeID   string
	TaxID        string
}

// PunchRecord is one accepted clock event. Records are inserted exactly once
// and never updated. When SourceLogID is set, (DeviceID, SourceLogID) is
// unique and acts as the deduplication key for push deliveries.
type PunchRecord struct {
	ID          string
	EmployeeID  string
	AccountID   string
	Type        PunchType
	PunchedAt   time.Time
	Source      string
	DeviceID    string
	SourceLogID *int64
	Verified    bool
	PhotoRef    *string
	CreatedAt   time.Time
}

// SourceDevice tags punches that originate from the time-clock integration.
const SourceDevice = "device"

// SyncRunStatus is the terminal outcome of one webhook batch.
type SyncRunStatus string

const (
	// SyncRunRunning marks a batch that has been accepted but not finished.
	SyncRunRunning SyncRunStatus = "running"
	SyncRunSuccess SyncRunStatus = "success"
	SyncRunPartial SyncRunStatus = "partial"
	SyncRunError   SyncRunStatus = "error"
)

// SyncRun summarises one push webhook delivery.
type SyncRun struct {
	ID          string
	Kind        string
	Status      SyncRunStatus
	DeviceID    string
	Synced      int
	Failed      int
	CompletedAt *time.Time
	Detail      []EntryResult
	CreatedAt   time.Time
}

// WebhookConfig is the single active shared-secret configuration consulted on
// every webhook request.
type WebhookConfig struct {
	ID     string
	Secret string
	Active bool
}

// EntryResult is the per-entry outcome recorded for a push batch.
type EntryResult struct {
	LogID     int64     `json:"log_id"`
	Success   bool      `json:"success"`
	Duplicate bool      `json:"duplicate,omitempty"`
	PunchID   string    `json:"punch_id,omitempty"`
	Type      PunchType `json:"type,omitempty"`
	Error     string    `json:"error,omitempty"`
}
