package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlabs-hq/agency-ops/internal/automation"
	"github.com/chatlabs-hq/agency-ops/internal/bonus"
)

type stubRules struct{ rules []bonus.Rule }

func (s *stubRules) FindActiveByCompany(context.Context, string) ([]bonus.Rule, error) {
	return s.rules, nil
}

func (s *stubRules) FindByID(_ context.Context, id string) (*bonus.Rule, error) {
	for i := range s.rules {
		if s.rules[i].ID == id {
			return &s.rules[i], nil
		}
	}
	return nil, nil
}

type stubAgg struct{ total int64 }

func (s *stubAgg) SumForWindow(context.Context, string, string, time.Time, time.Time, bool) (int64, error) {
	return s.total, nil
}

func (s *stubAgg) SumForWorkerShiftsOnDate(context.Context, string, string, time.Time, bool) (int64, error) {
	return s.total, nil
}

type stubDir struct{}

func (stubDir) WorkerCurrency(context.Context, string) (string, error) { return "", nil }

func newHandlerEnv(t *testing.T, rules []bonus.Rule, total int64) (*bonusEnv, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	prog := bonus.NewPostgresProgressStore(mock)
	awards := bonus.NewPostgresAwardStore(mock)
	engine := bonus.NewEngine(mock, prog, awards, &stubAgg{total: total}, stubDir{}, "USD")

	return &bonusEnv{
		awards: awards,
		prog:   prog,
		runner: bonus.NewRunner(&stubRules{rules: rules}, nil, engine, 1, 0),
		runlog: automation.NewRunLog(mock),
	}, mock
}

func TestHandleEvaluate_MissingCompany(t *testing.T) {
	env, _ := newHandlerEnv(t, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/bonus/evaluate",
		strings.NewReader(`{"worker_id":"w-1"}`))
	rec := httptest.NewRecorder()

	handleEvaluate(env, false)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "company id is required")
}

func TestHandleEvaluate_BadAsOf(t *testing.T) {
	env, _ := newHandlerEnv(t, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/bonus/evaluate",
		strings.NewReader(`{"company_id":"co-1","worker_id":"w-1","as_of":"yesterday"}`))
	rec := httptest.NewRecorder()

	handleEvaluate(env, false)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "RFC3339")
}

func TestHandleEvaluate_BadBody(t *testing.T) {
	env, _ := newHandlerEnv(t, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/bonus/evaluate", strings.NewReader("{"))
	rec := httptest.NewRecorder()

	handleEvaluate(env, false)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePreview_ReturnsOutcomes(t *testing.T) {
	rule := bonus.Rule{
		ID:         "rule-1",
		CompanyID:  "co-1",
		Name:       "daily bonus",
		IsActive:   true,
		Scope:      bonus.ScopeWorker,
		WindowType: bonus.WindowCalendarDay,
		RuleType:   bonus.RuleThresholdPayout,
		Config: bonus.RuleConfig{
			Tiers: []bonus.Tier{{MinAmountCents: 10000, BonusCents: 1500}},
		},
	}
	env, mock := newHandlerEnv(t, []bonus.Rule{rule}, 12000)

	mock.ExpectQuery(`FROM bonus_progress`).
		WithArgs("rule-1", "co-1", "w-1").
		WillReturnError(pgx.ErrNoRows)

	req := httptest.NewRequest(http.MethodPost, "/bonus/preview",
		strings.NewReader(`{"company_id":"co-1","worker_id":"w-1","as_of":"2024-05-01T14:00:00Z"}`))
	rec := httptest.NewRecorder()

	handleEvaluate(env, true)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"dry_run":true`)
	assert.Contains(t, body, `"awarded_cents":1500`)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAwards_MissingCompany(t *testing.T) {
	env, _ := newHandlerEnv(t, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/bonus/awards", nil)
	rec := httptest.NewRecorder()

	handleAwards(env)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAwards_ReturnsListAndTotals(t *testing.T) {
	env, mock := newHandlerEnv(t, nil, 0)
	now := time.Now()
	workerID := "w-1"

	awardCols := []string{
		"id", "rule_id", "company_id", "worker_id", "steps_awarded",
		"bonus_amount_cents", "currency", "awarded_at", "reason", "window_anchor", "created_at",
	}
	mock.ExpectQuery(`FROM bonus_awards WHERE company_id = \$1`).
		WithArgs("co-1", 100).
		WillReturnRows(pgxmock.NewRows(awardCols).
			AddRow("a-1", "rule-1", "co-1", &workerID, 1, int64(1500), "USD", now, "threshold", "100-200", now))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("co-1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum"}).AddRow(int64(1), int64(1500)))

	req := httptest.NewRequest(http.MethodGet, "/bonus/awards?company_id=co-1", nil)
	rec := httptest.NewRecorder()

	handleAwards(env)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_cents":1500`)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleRuns_MissingCompany(t *testing.T) {
	env, _ := newHandlerEnv(t, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/bonus/runs", nil)
	rec := httptest.NewRecorder()

	handleRuns(env)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
