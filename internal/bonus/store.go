package bonus

import (
	"context"
	"time"

	"github.com/chatlabs-hq/agency-ops/internal/db"
)

// Progress is the durable "steps already paid" counter per (rule, worker).
// WindowAnchor records which window the counter belongs to: when a new
// window resolves to a different anchor the counter reads as zero.
type Progress struct {
	RuleID            string    `json:"rule_id"`
	CompanyID         string    `json:"company_id"`
	WorkerID          string    `json:"worker_id"`
	WindowAnchor      string    `json:"window_anchor"`
	LastObservedSteps int       `json:"last_observed_steps"`
	LastComputedAt    time.Time `json:"last_computed_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Award is an immutable issued-bonus record. Never updated or deleted.
type Award struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	CompanyID    string    `json:"company_id"`
	WorkerID     string    `json:"worker_id,omitempty"`
	StepsAwarded int       `json:"steps_awarded"`
	AmountCents  int64     `json:"bonus_amount_cents"`
	Currency     string    `json:"currency"`
	AwardedAt    time.Time `json:"awarded_at"`
	Reason       string    `json:"reason"`
	WindowAnchor string    `json:"window_anchor"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshot is the ephemeral result of one evaluation. Not persisted.
type Snapshot struct {
	RuleID       string    `json:"rule_id"`
	WorkerID     string    `json:"worker_id"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	WindowAnchor string    `json:"window_anchor"`
	TotalCents   int64     `json:"total_cents"`
	StepsBefore  int       `json:"steps_before"`
	StepsAfter   int       `json:"steps_after"`
	StepsToAward int       `json:"steps_to_award"`
	AwardedCents int64     `json:"awarded_cents"`
	Currency     string    `json:"currency"`
	Reason       string    `json:"reason"`
	DryRun       bool      `json:"dry_run"`
	Award        *Award    `json:"award,omitempty"`
}

// AwardFilter narrows award listings.
type AwardFilter struct {
	CompanyID string
	WorkerID  string
	RuleID    string
	Since     time.Time
	Limit     int
}

// AwardTotals aggregates issued awards for reporting.
type AwardTotals struct {
	Count      int64 `json:"count"`
	TotalCents int64 `json:"total_cents"`
}

// RuleRepository loads bonus rules. Read-only to the engine.
type RuleRepository interface {
	FindActiveByCompany(ctx context.Context, companyID string) ([]Rule, error)
	FindByID(ctx context.Context, id string) (*Rule, error)
}

// ProgressRepository persists per-(rule, worker) step counters. Get and
// Upsert take a Querier so the engine can run them inside its transaction;
// forUpdate acquires a row lock and is only meaningful there.
type ProgressRepository interface {
	Get(ctx context.Context, q db.Querier, ruleID, companyID, workerID string, forUpdate bool) (*Progress, error)
	Upsert(ctx context.Context, q db.Querier, p *Progress) error
	List(ctx context.Context, companyID, workerID string) ([]Progress, error)
}

// AwardRepository persists issued awards. Create must return
// ErrAwardConflict when the (rule, worker, window) uniqueness constraint
// rejects the row; the constraint, not application logic, is the arbiter
// of "already awarded".
type AwardRepository interface {
	Create(ctx context.Context, q db.Querier, a *Award) error
	List(ctx context.Context, f AwardFilter) ([]Award, error)
	Totals(ctx context.Context, f AwardFilter) (AwardTotals, error)
}

// EarningsAggregator sums monetary earnings for a worker. Implemented by
// the earnings package over the ledger table.
type EarningsAggregator interface {
	SumForWindow(ctx context.Context, companyID, workerID string, from, to time.Time, includeRefunds bool) (int64, error)
	SumForWorkerShiftsOnDate(ctx context.Context, companyID, workerID string, businessDate time.Time, includeRefunds bool) (int64, error)
}

// ChatterDirectory resolves a worker's configured payout currency.
type ChatterDirectory interface {
	WorkerCurrency(ctx context.Context, workerID string) (string, error)
}
