// Package events defines the payloads published for downstream consumers.
package events

import "time"

// PunchRecorded is emitted when a punch is accepted into the ledger.
type PunchRecorded struct {
	PunchID    string    `json:"punch_id"`
	EmployeeID string    `json:"employee_id"`
	AccountID  string    `json:"account_id"`
	Type       string    `json:"type"`
	PunchedAt  time.Time `json:"punched_at"`
	Source     string    `json:"source"`
	DeviceID   string    `json:"device_id"`
	Verified   bool      `json:"verified"`
}

// SyncRunCompleted is emitted when a push webhook batch finishes.
type SyncRunCompleted struct {
	SyncRunID   string    `json:"sync_run_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	DeviceID    string    `json:"device_id"`
	Synced      int       `json:"synced"`
	Failed      int       `json:"failed"`
	CompletedAt time.Time `json:"completed_at"`
}
