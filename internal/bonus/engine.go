package bonus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chatlabs-hq/agency-ops/internal/db"
)

// Target identifies what a rule is evaluated against.
type Target struct {
	CompanyID string
	WorkerID  string
}

// EvalOptions control a single evaluation.
type EvalOptions struct {
	// AsOf anchors the evaluation window. Zero means time.Now().
	AsOf time.Time
	// DryRun computes the snapshot without locking, awarding or touching
	// progress. Used by preview requests.
	DryRun bool
}

// Engine composes the window resolver, earnings aggregator, tier
// evaluator and the progress/award stores into one atomic unit per
// (rule, worker, asOf) triple. It is stateless between calls; the only
// shared mutable state is the durable store, and all mutation happens
// inside Evaluate's transaction.
type Engine struct {
	pool       db.Pool
	progress   ProgressRepository
	awards     AwardRepository
	aggregator EarningsAggregator
	directory  ChatterDirectory

	defaultCurrency string
	log             *zap.Logger
}

// NewEngine creates an evaluation engine.
func NewEngine(pool db.Pool, progress ProgressRepository, awards AwardRepository, aggregator EarningsAggregator, directory ChatterDirectory, defaultCurrency string) *Engine {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Engine{
		pool:            pool,
		progress:        progress,
		awards:          awards,
		aggregator:      aggregator,
		directory:       directory,
		defaultCurrency: defaultCurrency,
		log:             zap.L().With(zap.String("component", "bonus.engine")),
	}
}

// Evaluate runs one rule against one worker at one instant. Safe to call
// concurrently and to retry blindly: the progress row lock serializes
// evaluations per (rule, worker), and the award uniqueness constraint is
// the backstop for any race the lock does not cover.
func (e *Engine) Evaluate(ctx context.Context, rule *Rule, target Target, opts EvalOptions) (*Snapshot, error) {
	if rule == nil {
		return nil, &ValidationError{Field: "rule", Message: "rule is required"}
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if target.CompanyID == "" {
		return nil, &ValidationError{Field: "company_id", Message: "company id is required"}
	}
	if rule.CompanyID != target.CompanyID {
		return nil, &ValidationError{Field: "rule_id", Message: "rule does not belong to company"}
	}
	if rule.Scope == ScopeWorker && target.WorkerID == "" {
		return nil, &ValidationError{Field: "worker_id", Message: "worker id is required for worker-scope rules"}
	}

	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	window, err := ResolveWindow(rule.WindowType, asOf)
	if err != nil {
		return nil, err
	}

	evaluator, err := EvaluatorFor(rule.RuleType)
	if err != nil {
		return nil, err
	}

	total, err := e.aggregateTotal(ctx, rule, target, window)
	if err != nil {
		return nil, err
	}

	currency := e.resolveCurrency(ctx, rule, target)

	snap := &Snapshot{
		RuleID:       rule.ID,
		WorkerID:     target.WorkerID,
		WindowStart:  window.Start,
		WindowEnd:    window.End,
		WindowAnchor: window.Anchor(),
		TotalCents:   total,
		Currency:     currency,
		DryRun:       opts.DryRun,
	}

	if opts.DryRun {
		return e.evaluateDry(ctx, rule, target, evaluator, window, snap)
	}

	return e.evaluateLocked(ctx, rule, target, evaluator, window, asOf, snap)
}

// evaluateDry computes the result with a plain read: no transaction, no
// lock, no mutation.
func (e *Engine) evaluateDry(ctx context.Context, rule *Rule, target Target, evaluator Evaluator, window Window, snap *Snapshot) (*Snapshot, error) {
	p, err := e.progress.Get(ctx, nil, rule.ID, target.CompanyID, target.WorkerID, false)
	if err != nil {
		return nil, err
	}

	lastSteps := stepsForWindow(p, window)
	result := evaluator.Evaluate(rule.Config, snap.TotalCents, lastSteps)

	snap.StepsBefore = lastSteps
	snap.StepsAfter = lastSteps + result.StepsToAward
	snap.StepsToAward = result.StepsToAward
	snap.AwardedCents = result.ExpectedAwardCents
	snap.Reason = result.Reason
	return snap, nil
}

// evaluateLocked is the non-dry-run path: lock, evaluate, award, upsert,
// commit.
func (e *Engine) evaluateLocked(ctx context.Context, rule *Rule, target Target, evaluator Evaluator, window Window, asOf time.Time, snap *Snapshot) (*Snapshot, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "bonus: begin evaluation tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Row lock on the progress row is the serialization point: a second
	// evaluation of the same (rule, worker) blocks here until this
	// transaction finishes.
	p, err := e.progress.Get(ctx, tx, rule.ID, target.CompanyID, target.WorkerID, true)
	if err != nil {
		return nil, err
	}

	lastSteps := stepsForWindow(p, window)
	result := evaluator.Evaluate(rule.Config, snap.TotalCents, lastSteps)

	snap.StepsBefore = lastSteps
	snap.StepsAfter = lastSteps + result.StepsToAward
	snap.StepsToAward = result.StepsToAward
	snap.AwardedCents = result.ExpectedAwardCents
	snap.Reason = result.Reason

	if result.StepsToAward > 0 && result.ExpectedAwardCents > 0 {
		award := &Award{
			ID:           uuid.New().String(),
			RuleID:       rule.ID,
			CompanyID:    target.CompanyID,
			WorkerID:     target.WorkerID,
			StepsAwarded: result.StepsToAward,
			AmountCents:  result.ExpectedAwardCents,
			Currency:     snap.Currency,
			AwardedAt:    asOf,
			Reason:       result.Reason,
			WindowAnchor: window.Anchor(),
		}
		if err := e.awards.Create(ctx, tx, award); err != nil {
			if eris.Is(err, ErrAwardConflict) {
				// Safety net beneath the row lock: another evaluation won
				// the window. Roll back and report a benign no-op.
				e.log.Warn("duplicate award prevented",
					zap.String("rule_id", rule.ID),
					zap.String("worker_id", target.WorkerID),
					zap.String("window_anchor", window.Anchor()),
				)
				snap.StepsAfter = snap.StepsBefore
				snap.StepsToAward = 0
				snap.AwardedCents = 0
				snap.Award = nil
				snap.Reason = "Duplicate award prevented"
				return snap, nil
			}
			return nil, err
		}
		snap.Award = award
	}

	if err := e.progress.Upsert(ctx, tx, &Progress{
		RuleID:            rule.ID,
		CompanyID:         target.CompanyID,
		WorkerID:          target.WorkerID,
		WindowAnchor:      window.Anchor(),
		LastObservedSteps: lastSteps + result.StepsToAward,
		LastComputedAt:    asOf,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "bonus: commit evaluation tx")
	}

	if snap.Award != nil {
		e.log.Info("bonus awarded",
			zap.String("rule_id", rule.ID),
			zap.String("worker_id", target.WorkerID),
			zap.Int64("amount_cents", snap.AwardedCents),
			zap.String("currency", snap.Currency),
			zap.String("window_anchor", window.Anchor()),
		)
	}
	return snap, nil
}

// aggregateTotal picks the aggregation policy for the rule: shift-aligned
// for shift-based calendar_day rules, fixed window bounds otherwise.
func (e *Engine) aggregateTotal(ctx context.Context, rule *Rule, target Target, window Window) (int64, error) {
	if rule.Config.ShiftBased && rule.WindowType == WindowCalendarDay {
		return e.aggregator.SumForWorkerShiftsOnDate(ctx, target.CompanyID, target.WorkerID, window.BusinessDate(), rule.Config.IncludeRefunds)
	}
	return e.aggregator.SumForWindow(ctx, target.CompanyID, target.WorkerID, window.Start, window.End, rule.Config.IncludeRefunds)
}

// resolveCurrency resolves rule-pinned currency, then the worker's
// configured currency, then the system default. Lookup failures degrade
// to the default rather than failing the evaluation.
func (e *Engine) resolveCurrency(ctx context.Context, rule *Rule, target Target) string {
	if rule.Config.Currency != "" {
		return rule.Config.Currency
	}
	if e.directory != nil && target.WorkerID != "" {
		currency, err := e.directory.WorkerCurrency(ctx, target.WorkerID)
		if err != nil {
			e.log.Warn("currency lookup failed, using default",
				zap.String("worker_id", target.WorkerID),
				zap.String("default", e.defaultCurrency),
				zap.Error(err),
			)
		} else if currency != "" {
			return currency
		}
	}
	return e.defaultCurrency
}

// stepsForWindow reads the observed steps a progress row contributes to
// the given window. A row carrying a different anchor belongs to another
// window and contributes nothing, which also makes out-of-order backfill
// across days safe.
func stepsForWindow(p *Progress, window Window) int {
	if p == nil || p.WindowAnchor != window.Anchor() {
		return 0
	}
	return p.LastObservedSteps
}
