// Package postgres provides pgx-backed persistence for the timeclock ledger.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/domain"
	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/events"
	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/observability"
)

// Repository provides Postgres-backed persistence for punches, sync runs and
// the transactional outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveWebhookConfig returns the single active configuration row, or nil.
func (r *Repository) ActiveWebhookConfig(ctx context.Context) (*domain.WebhookConfig, error) {
	const query = `SELECT config_id, secret, active FROM webhook_configs WHERE active ORDER BY created_at DESC LIMIT 1`

	var cfg domain.WebhookConfig
	err := r.pool.QueryRow(ctx, query).Scan(&cfg.ID, &cfg.Secret, &cfg.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MappingByDeviceUserID resolves a device-side numeric user id, or nil.
func (r *Repository) MappingByDeviceUserID(ctx context.Context, deviceUserID int64) (*domain.DeviceUserMapping, error) {
	const query = `SELECT device_user_id, employee_id, COALESCE(tax_id, '') FROM device_user_mappings WHERE device_user_id=$1`

	var m domain.DeviceUserMapping
	err := r.pool.QueryRow(ctx, query, deviceUserID).Scan(&m.DeviceUserID, &m.EmployeeID, &m.TaxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// EmployeeByID fetches an employee by internal id, or nil.
func (r *Repository) EmployeeByID(ctx context.Context, employeeID string) (*domain.Employee, error) {
	const query = `SELECT employee_id, account_id, full_name, COALESCE(tax_id, '') FROM employees WHERE employee_id=$1`
	return r.scanEmployee(r.pool.QueryRow(ctx, query, employeeID))
}

// EmployeeByTaxID fetches an employee by exact normalized tax id, or nil.
func (r *Repository) EmployeeByTaxID(ctx context.Context, taxID string) (*domain.Employee, error) {
	const query = `SELECT employee_id, account_id, full_name, COALESCE(tax_id, '') FROM employees WHERE tax_id=$1`
	return r.scanEmployee(r.pool.QueryRow(ctx, query, taxID))
}

func (r *Repository) scanEmployee(row pgx.Row) (*domain.Employee, error) {
	var e domain.Employee
	err := row.Scan(&e.ID, &e.AccountID, &e.Name, &e.TaxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LastPunchBetween returns the employee's most recent punch in [from, to), or nil.
func (r *Repository) LastPunchBetween(ctx context.Context, employeeID string, from, to time.Time) (*domain.PunchRecord, error) {
	const query = `SELECT punch_id, employee_id, account_id, punch_type, punched_at, source, COALESCE(device_id, ''), source_log_id, verified, photo_ref, created_at
        FROM punch_records
        WHERE employee_id=$1 AND punched_at >= $2 AND punched_at < $3
        ORDER BY punched_at DESC, created_at DESC
        LIMIT 1`
	return r.scanPunch(r.pool.QueryRow(ctx, query, employeeID, from, to))
}

// FindPunchBySourceLog looks up the dedup key for push entries, or nil.
func (r *Repository) FindPunchBySourceLog(ctx context.Context, deviceID string, logID int64) (*domain.PunchRecord, error) {
	const query = `SELECT punch_id, employee_id, account_id, punch_type, punched_at, source, COALESCE(device_id, ''), source_log_id, verified, photo_ref, created_at
        FROM punch_records
        WHERE device_id=$1 AND source_log_id=$2`
	return r.scanPunch(r.pool.QueryRow(ctx, query, deviceID, logID))
}

func (r *Repository) scanPunch(row pgx.Row) (*domain.PunchRecord, error) {
	var p domain.PunchRecord
	err := row.Scan(&p.ID, &p.EmployeeID, &p.AccountID, &p.Type, &p.PunchedAt, &p.Source, &p.DeviceID, &p.SourceLogID, &p.Verified, &p.PhotoRef, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePunch persists the record and writes a punch.recorded outbox row in
// the same transaction.
func (r *Repository) CreatePunch(ctx context.Context, record domain.PunchRecord) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertPunch = `INSERT INTO punch_records (punch_id, employee_id, account_id, punch_type, punched_at, source, device_id, source_log_id, verified, photo_ref, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err = tx.Exec(ctx, insertPunch,
		record.ID,
		record.EmployeeID,
		record.AccountID,
		record.Type,
		record.PunchedAt,
		record.Source,
		nullIfEmpty(record.DeviceID),
		record.SourceLogID,
		record.Verified,
		record.PhotoRef,
		record.CreatedAt,
	)
	if err != nil {
		return err
	}

	err = insertOutbox(ctx, tx, outboxEvent{
		aggregateType: "punch",
		aggregateID:   record.ID,
		eventType:     "punch.recorded",
		partitionKey:  fmt.Sprintf("%s:%s", record.AccountID, record.EmployeeID),
		dedupeKey:     fmt.Sprintf("%s:punch.recorded", record.ID),
		payload: events.PunchRecorded{
			PunchID:    record.ID,
			EmployeeID: record.EmployeeID,
			AccountID:  record.AccountID,
			Type:       string(record.Type),
			PunchedAt:  record.PunchedAt,
			Source:     record.Source,
			DeviceID:   record.DeviceID,
			Verified:   record.Verified,
		},
	})
	if err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordPunchPersisted(record.CreatedAt)
	return nil
}

// BeginSyncRun inserts the batch summary row before any entry is processed.
func (r *Repository) BeginSyncRun(ctx context.Context, run domain.SyncRun) error {
	const stmt = `INSERT INTO sync_runs (sync_run_id, kind, status, device_id, synced_count, failed_count, created_at)
        VALUES ($1,$2,$3,$4,0,0,NOW())`
	_, err := r.pool.Exec(ctx, stmt, run.ID, run.Kind, run.Status, nullIfEmpty(run.DeviceID))
	return err
}

// CompleteSyncRun stores the final counts and per-entry detail, and writes a
// sync_run.completed outbox row in the same transaction. The row is never
// touched again afterward.
func (r *Repository) CompleteSyncRun(ctx context.Context, run domain.SyncRun) error {
	detail, err := json.Marshal(run.Detail)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE sync_runs SET status=$2, synced_count=$3, failed_count=$4, completed_at=$5, detail=$6 WHERE sync_run_id=$1`
	_, err = tx.Exec(ctx, stmt, run.ID, run.Status, run.Synced, run.Failed, run.CompletedAt, detail)
	if err != nil {
		return err
	}

	completedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}
	err = insertOutbox(ctx, tx, outboxEvent{
		aggregateType: "sync_run",
		aggregateID:   run.ID,
		eventType:     "sync_run.completed",
		partitionKey:  run.ID,
		dedupeKey:     fmt.Sprintf("%s:sync_run.completed", run.ID),
		payload: events.SyncRunCompleted{
			SyncRunID:   run.ID,
			Kind:        run.Kind,
			Status:      string(run.Status),
			DeviceID:    run.DeviceID,
			Synced:      run.Synced,
			Failed:      run.Failed,
			CompletedAt: completedAt,
		},
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListPunchesByEmployee returns punches ordered by time descending with
// keyset pagination.
func (r *Repository) ListPunchesByEmployee(ctx context.Context, employeeID string, cursor *domain.Cursor, limit int) ([]domain.PunchRecord, *domain.Cursor, error) {
	args := []interface{}{employeeID, limit}
	query := `SELECT punch_id, employee_id, account_id, punch_type, punched_at, source, COALESCE(device_id, ''), source_log_id, verified, photo_ref, created_at
        FROM punch_records WHERE employee_id=$1`

	if cursor != nil {
		query += ` AND (punched_at, punch_id) < ($3, $4)`
		args = append(args, cursor.PunchedAt, cursor.ID)
	}

	query += ` ORDER BY punched_at DESC, punch_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.PunchRecord, 0, limit)
	for rows.Next() {
		var p domain.PunchRecord
		if err := rows.Scan(&p.ID, &p.EmployeeID, &p.AccountID, &p.Type, &p.PunchedAt, &p.Source, &p.DeviceID, &p.SourceLogID, &p.Verified, &p.PhotoRef, &p.CreatedAt); err != nil {
			return nil, nil, err
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{PunchedAt: last.PunchedAt, ID: last.ID}
	}
	return results, next, nil
}

// ListSyncRuns returns the most recent webhook batches.
func (r *Repository) ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	const query = `SELECT sync_run_id, kind, status, COALESCE(device_id, ''), synced_count, failed_count, completed_at, detail, created_at
        FROM sync_runs ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.SyncRun, 0, limit)
	for rows.Next() {
		var (
			run    domain.SyncRun
			detail []byte
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.Status, &run.DeviceID, &run.Synced, &run.Failed, &run.CompletedAt, &detail, &run.CreatedAt); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &run.Detail); err != nil {
				return nil, err
			}
		}
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type outboxEvent struct {
	aggregateType string
	aggregateID   string
	eventType     string
	partitionKey  string
	dedupeKey     string
	payload       interface{}
}

func insertOutbox(ctx context.Context, tx pgx.Tx, ev outboxEvent) error {
	body, err := json.Marshal(ev.payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[ev.eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", ev.eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		ev.aggregateType,
		ev.aggregateID,
		ev.eventType,
		meta.Topic,
		meta.SchemaSubject,
		ev.partitionKey,
		body,
		ev.dedupeKey,
	)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"punch.recorded": {
		Topic:         "punch_events",
		SchemaSubject: "punch_events-value",
	},
	"sync_run.completed": {
		Topic:         "sync_run_events",
		SchemaSubject: "sync_run_events-value",
	},
}
