// Package automation drives scheduled bonus evaluation. The engine itself
// stays synchronous and scheduler-free; this package only decides when to
// call it and records what happened.
package automation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/chatlabs-hq/agency-ops/internal/db"
)

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerBackfill  Trigger = "backfill"
)

// Run is one row of the bonus_runs ledger, kept for audit and the admin
// UI.
type Run struct {
	ID          string     `json:"id"`
	Trigger     Trigger    `json:"trigger"`
	CompanyID   string     `json:"company_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Evaluated   int        `json:"evaluated"`
	Awarded     int        `json:"awarded"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
}

// RunLog provides read/write access to the bonus_runs table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a run and returns its ID.
func (l *RunLog) Start(ctx context.Context, trigger Trigger, companyID string) (string, error) {
	id := uuid.New().String()
	_, err := l.pool.Exec(ctx, `
		INSERT INTO bonus_runs (id, trigger, company_id, started_at)
		VALUES ($1, $2, $3, now())`,
		id, trigger, companyID,
	)
	if err != nil {
		return "", eris.Wrapf(err, "automation: start run for %s", companyID)
	}
	return id, nil
}

// Complete marks a run finished with its counters. errMsg is empty on
// success.
func (l *RunLog) Complete(ctx context.Context, runID string, evaluated, awarded, failed int, errMsg string) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE bonus_runs
		SET completed_at = now(), evaluated = $2, awarded = $3, failed = $4, error = $5
		WHERE id = $1`,
		runID, evaluated, awarded, failed, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "automation: complete run %s", runID)
	}
	return nil
}

// Recent returns the latest runs for a company, newest first.
func (l *RunLog) Recent(ctx context.Context, companyID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, trigger, company_id, started_at, completed_at, evaluated, awarded, failed, error
		FROM bonus_runs
		WHERE company_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "automation: recent runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Trigger, &r.CompanyID, &r.StartedAt,
			&r.CompletedAt, &r.Evaluated, &r.Awarded, &r.Failed, &r.Error); err != nil {
			return nil, eris.Wrap(err, "automation: scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
