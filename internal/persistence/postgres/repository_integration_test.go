//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/domain"
)

func TestRepositoryPunchLifecycle(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("creche"),
		postgrescontainer.WithUsername("creche"),
		postgrescontainer.WithPassword("creche"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	repo := NewRepository(pool)

	employeeID := uuid.NewString()
	accountID := uuid.NewString()
	_, err = pool.Exec(ctx,
		`INSERT INTO employees (employee_id, account_id, full_name, tax_id) VALUES ($1,$2,$3,$4)`,
		employeeID, accountID, "Ana Souza", "52998224725")
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO device_user_mappings (device_user_id, employee_id) VALUES ($1,$2)`,
		int64(100), employeeID)
	require.NoError(t, err)

	t.Run("webhook config lookup", func(t *testing.T) {
		cfg, err := repo.ActiveWebhookConfig(ctx)
		require.NoError(t, err)
		require.Nil(t, cfg)

		_, err = pool.Exec(ctx,
			`INSERT INTO webhook_configs (config_id, secret, active) VALUES ($1,$2,true)`,
			uuid.NewString(), "s3cret")
		require.NoError(t, err)

		cfg, err = repo.ActiveWebhookConfig(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		require.Equal(t, "s3cret", cfg.Secret)
		require.True(t, cfg.Active)
	})

	t.Run("mapping and employee lookups", func(t *testing.T) {
		mapping, err := repo.MappingByDeviceUserID(ctx, 100)
		require.NoError(t, err)
		require.NotNil(t, mapping)
		require.Equal(t, employeeID, mapping.EmployeeID)

		missing, err := repo.MappingByDeviceUserID(ctx, 999)
		require.NoError(t, err)
		require.Nil(t, missing)

		emp, err := repo.EmployeeByTaxID(ctx, "52998224725")
		require.NoError(t, err)
		require.NotNil(t, emp)
		require.Equal(t, "Ana Souza", emp.Name)
	})

	logID := int64(7)
	punchedAt := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	record := domain.PunchRecord{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		AccountID:   accountID,
		Type:        domain.PunchEntry,
		PunchedAt:   punchedAt,
		Source:      domain.SourceDevice,
		DeviceID:    "7",
		SourceLogID: &logID,
		Verified:    true,
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("create punch writes outbox row", func(t *testing.T) {
		require.NoError(t, repo.CreatePunch(ctx, record))

		var outboxCount int
		err = pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1 AND event_type='punch.recorded'`,
			record.ID).Scan(&outboxCount)
		require.NoError(t, err)
		require.Equal(t, 1, outboxCount)
	})

	t.Run("source log dedup", func(t *testing.T) {
		found, err := repo.FindPunchBySourceLog(ctx, "7", logID)
		require.NoError(t, err)
		require.NotNil(t, found)
		require.Equal(t, record.ID, found.ID)

		missing, err := repo.FindPunchBySourceLog(ctx, "7", 999)
		require.NoError(t, err)
		require.Nil(t, missing)

		duplicate := record
		duplicate.ID = uuid.NewString()
		err = repo.CreatePunch(ctx, duplicate)
		require.Error(t, err, "unique index on (device_id, source_log_id) must reject the replay")
	})

	t.Run("last punch between", func(t *testing.T) {
		dayStart := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
		last, err := repo.LastPunchBetween(ctx, employeeID, dayStart, dayStart.Add(24*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, last)
		require.Equal(t, domain.PunchEntry, last.Type)

		nextDay := dayStart.Add(24 * time.Hour)
		none, err := repo.LastPunchBetween(ctx, employeeID, nextDay, nextDay.Add(24*time.Hour))
		require.NoError(t, err)
		require.Nil(t, none)
	})

	t.Run("sync run lifecycle", func(t *testing.T) {
		run := domain.SyncRun{
			ID:       uuid.NewString(),
			Kind:     domain.SyncRunKindPush,
			Status:   domain.SyncRunRunning,
			DeviceID: "7",
		}
		require.NoError(t, repo.BeginSyncRun(ctx, run))

		completedAt := time.Now().UTC().Truncate(time.Microsecond)
		run.Status = domain.SyncRunPartial
		run.Synced = 2
		run.Failed = 1
		run.CompletedAt = &completedAt
		run.Detail = []domain.EntryResult{
			{LogID: 7, Success: true, PunchID: record.ID, Type: domain.PunchEntry},
			{LogID: 8, Error: "User mapping not found"},
		}
		require.NoError(t, repo.CompleteSyncRun(ctx, run))

		runs, err := repo.ListSyncRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, domain.SyncRunPartial, runs[0].Status)
		require.Equal(t, 2, runs[0].Synced)
		require.Len(t, runs[0].Detail, 2)

		var outboxCount int
		err = pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1 AND event_type='sync_run.completed'`,
			run.ID).Scan(&outboxCount)
		require.NoError(t, err)
		require.Equal(t, 1, outboxCount)
	})

	t.Run("list punches pagination", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			extra := domain.PunchRecord{
				ID:         uuid.NewString(),
				EmployeeID: employeeID,
				AccountID:  accountID,
				Type:       domain.PunchBreakStart,
				PunchedAt:  punchedAt.Add(time.Duration(i+1) * time.Hour),
				Source:     domain.SourceDevice,
				CreatedAt:  time.Now().UTC(),
			}
			require.NoError(t, repo.CreatePunch(ctx, extra))
		}

		first, cursor, err := repo.ListPunchesByEmployee(ctx, employeeID, nil, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)
		require.NotNil(t, cursor)

		second, _, err := repo.ListPunchesByEmployee(ctx, employeeID, cursor, 10)
		require.NoError(t, err)
		require.Len(t, second, 2)
		require.True(t, second[0].PunchedAt.Before(first[1].PunchedAt))
	})
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../migrations/0001_init.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
