package bonus

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RunRequest drives a manual evaluation run. RuleID narrows the run to a
// single rule; otherwise every active worker-scope rule of the company is
// evaluated for the worker.
type RunRequest struct {
	CompanyID string
	WorkerID  string
	RuleID    string
	AsOf      time.Time
	DryRun    bool
}

// BackfillRequest re-evaluates one worker across a day range,
// chronologically.
type BackfillRequest struct {
	CompanyID string
	WorkerID  string
	RuleID    string
	From      time.Time
	To        time.Time
}

// RuleOutcome pairs a rule with its evaluation result or error.
type RuleOutcome struct {
	Rule     Rule      `json:"rule"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
}

// WorkerDirectory lists evaluation targets for company-wide runs.
type WorkerDirectory interface {
	ActiveWorkerIDs(ctx context.Context, companyID string) ([]string, error)
}

// Runner fans evaluations out across rules, workers and days. Failures
// are isolated per (rule, worker) so one bad target never aborts a batch;
// evaluations for a single worker stay sequential while distinct workers
// run concurrently (locks are scoped per rule-worker pair).
type Runner struct {
	rules   RuleRepository
	workers WorkerDirectory
	engine  *Engine

	// fanout bounds concurrent workers in company-wide runs.
	fanout int
	// backfillLimiter throttles per-day evaluations during backfill.
	backfillLimiter *rate.Limiter
	log             *zap.Logger
}

// NewRunner creates a Runner. fanout <= 0 defaults to 8; backfillRate <= 0
// disables backfill throttling.
func NewRunner(rules RuleRepository, workers WorkerDirectory, engine *Engine, fanout int, backfillRate float64) *Runner {
	if fanout <= 0 {
		fanout = 8
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if backfillRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(backfillRate), 1)
	}
	return &Runner{
		rules:           rules,
		workers:         workers,
		engine:          engine,
		fanout:          fanout,
		backfillLimiter: limiter,
		log:             zap.L().With(zap.String("component", "bonus.runner")),
	}
}

// RunRules evaluates a single named rule or all active worker-scope rules
// of a company for one worker.
func (r *Runner) RunRules(ctx context.Context, req RunRequest) ([]RuleOutcome, error) {
	if req.CompanyID == "" {
		return nil, &ValidationError{Field: "company_id", Message: "company id is required"}
	}

	var rules []Rule
	if req.RuleID != "" {
		rule, err := r.rules.FindByID(ctx, req.RuleID)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			return nil, &ValidationError{Field: "rule_id", Message: "rule not found: " + req.RuleID}
		}
		if rule.CompanyID != req.CompanyID {
			return nil, &ValidationError{Field: "rule_id", Message: "rule does not belong to company"}
		}
		rules = []Rule{*rule}
	} else {
		active, err := r.rules.FindActiveByCompany(ctx, req.CompanyID)
		if err != nil {
			return nil, err
		}
		// Only worker-scope rules apply to a single-worker run.
		for _, rule := range active {
			if rule.Scope == ScopeWorker {
				rules = append(rules, rule)
			}
		}
	}

	return r.evaluateAll(ctx, rules, req.WorkerID, EvalOptions{AsOf: req.AsOf, DryRun: req.DryRun}), nil
}

// RunShiftScopedRules evaluates the active rules that are both
// calendar_day and shift-based. Triggered right after a shift or
// commission event instead of waiting for the schedule.
func (r *Runner) RunShiftScopedRules(ctx context.Context, companyID, workerID string, asOf time.Time) ([]RuleOutcome, error) {
	if companyID == "" {
		return nil, &ValidationError{Field: "company_id", Message: "company id is required"}
	}
	if workerID == "" {
		return nil, &ValidationError{Field: "worker_id", Message: "worker id is required"}
	}

	rules, err := r.rules.FindActiveByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var scoped []Rule
	for _, rule := range rules {
		if rule.WindowType == WindowCalendarDay && rule.Config.ShiftBased {
			scoped = append(scoped, rule)
		}
	}

	return r.evaluateAll(ctx, scoped, workerID, EvalOptions{AsOf: asOf}), nil
}

// EvaluateActiveRulesForTarget evaluates every active rule of the given
// scope for one worker. Entry point for scheduled automation.
func (r *Runner) EvaluateActiveRulesForTarget(ctx context.Context, companyID string, scope Scope, workerID string, opts EvalOptions) ([]RuleOutcome, error) {
	if companyID == "" {
		return nil, &ValidationError{Field: "company_id", Message: "company id is required"}
	}

	rules, err := r.rules.FindActiveByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var scoped []Rule
	for _, rule := range rules {
		if rule.Scope == scope {
			scoped = append(scoped, rule)
		}
	}

	return r.evaluateAll(ctx, scoped, workerID, opts), nil
}

// RunForCompany evaluates all active rules against all active workers.
// Workers run concurrently up to the fanout bound; rules for one worker
// run sequentially.
func (r *Runner) RunForCompany(ctx context.Context, companyID string, asOf time.Time) (map[string][]RuleOutcome, error) {
	if companyID == "" {
		return nil, &ValidationError{Field: "company_id", Message: "company id is required"}
	}
	if r.workers == nil {
		return nil, &ValidationError{Field: "workers", Message: "no worker directory configured"}
	}

	workerIDs, err := r.workers.ActiveWorkerIDs(ctx, companyID)
	if err != nil {
		return nil, err
	}
	rules, err := r.rules.FindActiveByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	results := make([]([]RuleOutcome), len(workerIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanout)
	for i, workerID := range workerIDs {
		i, workerID := i, workerID
		g.Go(func() error {
			results[i] = r.evaluateAll(gctx, rules, workerID, EvalOptions{AsOf: asOf})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]RuleOutcome, len(workerIDs))
	for i, workerID := range workerIDs {
		out[workerID] = results[i]
	}
	return out, nil
}

// Backfill re-evaluates a worker for each day in [From, To], in
// chronological order so progress stays meaningful across windows. Days
// are rate limited and failures are isolated per day.
func (r *Runner) Backfill(ctx context.Context, req BackfillRequest) ([]RuleOutcome, error) {
	if req.CompanyID == "" {
		return nil, &ValidationError{Field: "company_id", Message: "company id is required"}
	}
	if req.WorkerID == "" {
		return nil, &ValidationError{Field: "worker_id", Message: "worker id is required"}
	}
	from := req.From.UTC().Truncate(24 * time.Hour)
	to := req.To.UTC().Truncate(24 * time.Hour)
	if from.After(to) {
		return nil, &ValidationError{Field: "from", Message: "backfill range start is after end"}
	}

	var outcomes []RuleOutcome
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err := r.backfillLimiter.Wait(ctx); err != nil {
			return outcomes, err
		}
		// Evaluate at end of day so the whole day's earnings are visible.
		asOf := day.Add(24*time.Hour - time.Millisecond)
		dayOutcomes, err := r.RunRules(ctx, RunRequest{
			CompanyID: req.CompanyID,
			WorkerID:  req.WorkerID,
			RuleID:    req.RuleID,
			AsOf:      asOf,
		})
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, dayOutcomes...)
	}
	return outcomes, nil
}

// evaluateAll runs the engine for each rule sequentially, capturing
// per-rule failures instead of aborting the batch.
func (r *Runner) evaluateAll(ctx context.Context, rules []Rule, workerID string, opts EvalOptions) []RuleOutcome {
	outcomes := make([]RuleOutcome, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		snap, err := r.engine.Evaluate(ctx, &rule, Target{CompanyID: rule.CompanyID, WorkerID: workerID}, opts)
		outcome := RuleOutcome{Rule: rule, Snapshot: snap, Err: err}
		if err != nil {
			outcome.Error = err.Error()
			r.log.Error("rule evaluation failed",
				zap.String("rule_id", rule.ID),
				zap.String("worker_id", workerID),
				zap.Error(err),
			)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
