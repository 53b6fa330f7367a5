package automation

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRunLog_StartAndComplete(t *testing.T) {
	pool := newMockPool(t)
	log := NewRunLog(pool)

	pool.ExpectExec(`INSERT INTO bonus_runs`).
		WithArgs(pgxmock.AnyArg(), TriggerManual, "co-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	runID, err := log.Start(context.Background(), TriggerManual, "co-1")
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	pool.ExpectExec(`UPDATE bonus_runs`).
		WithArgs(runID, 4, 1, 0, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, log.Complete(context.Background(), runID, 4, 1, 0, ""))

	require.NoError(t, pool.ExpectationsWereMet())
}

func TestRunLog_Recent(t *testing.T) {
	pool := newMockPool(t)
	log := NewRunLog(pool)
	now := time.Now()
	done := now.Add(time.Second)

	cols := []string{"id", "trigger", "company_id", "started_at", "completed_at", "evaluated", "awarded", "failed", "error"}
	pool.ExpectQuery(`FROM bonus_runs`).
		WithArgs("co-1", 20).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("run-2", TriggerScheduled, "co-1", now, &done, 4, 1, 0, "").
			AddRow("run-1", TriggerManual, "co-1", now.Add(-time.Hour), &done, 2, 0, 1, "boom"))

	runs, err := log.Recent(context.Background(), "co-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, TriggerScheduled, runs[0].Trigger)
	assert.Equal(t, 1, runs[0].Awarded)
	assert.Equal(t, "boom", runs[1].Error)

	require.NoError(t, pool.ExpectationsWereMet())
}
