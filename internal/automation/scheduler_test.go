package automation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlabs-hq/agency-ops/internal/bonus"
)

type fixedRuleRepo struct{ rules []bonus.Rule }

func (r *fixedRuleRepo) FindActiveByCompany(context.Context, string) ([]bonus.Rule, error) {
	return r.rules, nil
}

func (r *fixedRuleRepo) FindByID(context.Context, string) (*bonus.Rule, error) {
	return nil, nil
}

type fixedWorkerDir struct{ ids []string }

func (d *fixedWorkerDir) ActiveWorkerIDs(context.Context, string) ([]string, error) {
	return d.ids, nil
}

type fixedAggregator struct{ total int64 }

func (a *fixedAggregator) SumForWindow(context.Context, string, string, time.Time, time.Time, bool) (int64, error) {
	return a.total, nil
}

func (a *fixedAggregator) SumForWorkerShiftsOnDate(context.Context, string, string, time.Time, bool) (int64, error) {
	return a.total, nil
}

type fixedDirectory struct{}

func (fixedDirectory) WorkerCurrency(context.Context, string) (string, error) { return "", nil }

func testScheduler(t *testing.T, cfg Config, total int64, rules []bonus.Rule, workerIDs []string) (*Scheduler, pgxmock.PgxPoolIface) {
	t.Helper()
	pool := newMockPool(t)

	engine := bonus.NewEngine(pool,
		bonus.NewPostgresProgressStore(pool),
		bonus.NewPostgresAwardStore(pool),
		&fixedAggregator{total: total},
		fixedDirectory{},
		"USD")
	runner := bonus.NewRunner(&fixedRuleRepo{rules: rules}, &fixedWorkerDir{ids: workerIDs}, engine, 1, 0)

	clock := func() time.Time { return time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC) }
	return NewScheduler(cfg, runner, NewRunLog(pool), clock), pool
}

func dailyRule() bonus.Rule {
	return bonus.Rule{
		ID:         "rule-1",
		CompanyID:  "co-1",
		Name:       "daily sales bonus",
		IsActive:   true,
		Scope:      bonus.ScopeWorker,
		WindowType: bonus.WindowCalendarDay,
		RuleType:   bonus.RuleThresholdPayout,
		Config: bonus.RuleConfig{
			Tiers: []bonus.Tier{{MinAmountCents: 10000, BonusCents: 1500}},
		},
	}
}

func TestScheduler_TickRecordsAwardingRun(t *testing.T) {
	cfg := Config{Enabled: true, Schedule: "0 * * * * *", Companies: []string{"co-1"}}
	sched, pool := testScheduler(t, cfg, 12000, []bonus.Rule{dailyRule()}, []string{"w-1"})

	pool.ExpectExec(`INSERT INTO bonus_runs`).
		WithArgs(pgxmock.AnyArg(), TriggerScheduled, "co-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM bonus_progress`).
		WithArgs("rule-1", "co-1", "w-1").
		WillReturnError(pgx.ErrNoRows)
	pool.ExpectQuery(`INSERT INTO bonus_awards`).
		WithArgs(pgxmock.AnyArg(), "rule-1", "co-1", "w-1", 1, int64(1500),
			"USD", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	pool.ExpectExec(`INSERT INTO bonus_progress`).
		WithArgs("rule-1", "co-1", "w-1", pgxmock.AnyArg(), 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectCommit()

	pool.ExpectExec(`UPDATE bonus_runs`).
		WithArgs(pgxmock.AnyArg(), 1, 1, 0, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sched.Tick(context.Background())

	require.NoError(t, pool.ExpectationsWereMet())
}

func TestScheduler_LookbackEvaluatesTwoInstants(t *testing.T) {
	cfg := Config{
		Enabled:   true,
		Schedule:  "0 * * * * *",
		Lookback:  24 * time.Hour,
		Companies: []string{"co-1"},
	}
	// Below threshold so both instants just record progress.
	sched, pool := testScheduler(t, cfg, 500, []bonus.Rule{dailyRule()}, []string{"w-1"})

	pool.ExpectExec(`INSERT INTO bonus_runs`).
		WithArgs(pgxmock.AnyArg(), TriggerScheduled, "co-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	for i := 0; i < 2; i++ {
		pool.ExpectBegin()
		pool.ExpectQuery(`FROM bonus_progress`).
			WithArgs("rule-1", "co-1", "w-1").
			WillReturnError(pgx.ErrNoRows)
		pool.ExpectExec(`INSERT INTO bonus_progress`).
			WithArgs("rule-1", "co-1", "w-1", pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		pool.ExpectCommit()
	}

	pool.ExpectExec(`UPDATE bonus_runs`).
		WithArgs(pgxmock.AnyArg(), 2, 0, 0, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sched.Tick(context.Background())

	require.NoError(t, pool.ExpectationsWereMet())
}

func TestScheduler_DisabledStartIsNoOp(t *testing.T) {
	sched, pool := testScheduler(t, Config{Enabled: false}, 0, nil, nil)

	require.NoError(t, sched.Start(context.Background()))
	sched.Stop()

	require.NoError(t, pool.ExpectationsWereMet())
}

func TestScheduler_InvalidScheduleRejected(t *testing.T) {
	cfg := Config{Enabled: true, Schedule: "not a cron expr"}
	sched, _ := testScheduler(t, cfg, 0, nil, nil)

	err := sched.Start(context.Background())
	assert.Error(t, err)
}
