package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/arcadehq/listing-harvester/internal/store"
)

func TestStartRunUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runStore, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(runID, startedAt, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, runStore.StartRun(context.Background(), runID, startedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertFetchStatsFallsBackToInsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runStore, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE site_stats").
		WithArgs(int64(2), int64(512), at, runID, "games.example").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO site_stats").
		WithArgs(runID, "games.example", at, int64(2), int64(512), int64(0), int64(2), int64(0), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = runStore.UpsertFetchStats(context.Background(), runID, "games.example", 2, 512, "blocked", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertFetchStatsRejectsUnknownOutcome(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runStore, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	err = runStore.UpsertFetchStats(context.Background(), uuid.New(), "games.example", 1, 0, "banana", time.Now())
	require.Error(t, err)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runStore, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	mock.ExpectQuery("SELECT id, started_at, finished_at, status, error_message").
		WithArgs(runID).
		WillReturnError(pgx.ErrNoRows)

	_, err = runStore.GetRun(context.Background(), runID)
	require.True(t, errors.Is(err, store.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
