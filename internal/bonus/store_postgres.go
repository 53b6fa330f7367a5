package bonus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/chatlabs-hq/agency-ops/internal/db"
)

// PostgresRuleStore implements RuleRepository using pgx.
type PostgresRuleStore struct {
	pool db.Pool
}

// NewPostgresRuleStore creates a new PostgresRuleStore.
func NewPostgresRuleStore(pool db.Pool) *PostgresRuleStore {
	return &PostgresRuleStore{pool: pool}
}

const ruleColumns = `id, company_id, name, is_active, priority, scope, window_type, rule_type, rule_config, created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	var configJSON []byte
	err := row.Scan(&r.ID, &r.CompanyID, &r.Name, &r.IsActive, &r.Priority,
		&r.Scope, &r.WindowType, &r.RuleType, &configJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(configJSON, &r.Config); err != nil {
		return nil, eris.Wrapf(err, "bonus: decode rule config %s", r.ID)
	}
	return &r, nil
}

// FindActiveByCompany returns a company's active rules ordered by
// priority, then name for a stable evaluation order.
func (s *PostgresRuleStore) FindActiveByCompany(ctx context.Context, companyID string) ([]Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM bonus_rules
		WHERE company_id = $1 AND is_active
		ORDER BY priority DESC, name`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "bonus: find active rules for %s", companyID)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, eris.Wrap(err, "bonus: scan rule")
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// FindByID fetches a rule by ID. Returns (nil, nil) when absent.
func (s *PostgresRuleStore) FindByID(ctx context.Context, id string) (*Rule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM bonus_rules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "bonus: get rule %s", id)
	}
	return r, nil
}

// Create inserts a rule after validating it. Used by the admin surface and
// fixtures; the engine itself never writes rules.
func (s *PostgresRuleStore) Create(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	configJSON, err := EncodeRuleConfig(r.Config)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO bonus_rules (id, company_id, name, is_active, priority, scope, window_type, rule_type, rule_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		r.ID, r.CompanyID, r.Name, r.IsActive, r.Priority, r.Scope, r.WindowType, r.RuleType, configJSON,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "bonus: create rule %s", r.ID)
	}
	return nil
}

// PostgresProgressStore implements ProgressRepository using pgx.
type PostgresProgressStore struct {
	pool db.Pool
}

// NewPostgresProgressStore creates a new PostgresProgressStore.
func NewPostgresProgressStore(pool db.Pool) *PostgresProgressStore {
	return &PostgresProgressStore{pool: pool}
}

const progressColumns = `rule_id, company_id, worker_id, window_anchor, last_observed_steps, last_computed_at, created_at, updated_at`

// Get reads the progress row for a (rule, worker) pair. With forUpdate it
// acquires a row lock; that is the serialization point preventing two
// concurrent evaluations of the same pair from double-awarding, and it is
// only meaningful when q is a transaction.
func (s *PostgresProgressStore) Get(ctx context.Context, q db.Querier, ruleID, companyID, workerID string, forUpdate bool) (*Progress, error) {
	if q == nil {
		q = s.pool
	}
	sql := `SELECT ` + progressColumns + `
		FROM bonus_progress
		WHERE rule_id = $1 AND company_id = $2 AND worker_id = $3`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var p Progress
	err := q.QueryRow(ctx, sql, ruleID, companyID, workerID).Scan(
		&p.RuleID, &p.CompanyID, &p.WorkerID, &p.WindowAnchor,
		&p.LastObservedSteps, &p.LastComputedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "bonus: get progress %s/%s", ruleID, workerID)
	}
	return &p, nil
}

// Upsert writes the progress counter after an evaluation, awarding or not.
func (s *PostgresProgressStore) Upsert(ctx context.Context, q db.Querier, p *Progress) error {
	if q == nil {
		q = s.pool
	}
	_, err := q.Exec(ctx, `
		INSERT INTO bonus_progress (rule_id, company_id, worker_id, window_anchor, last_observed_steps, last_computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (rule_id, company_id, worker_id) DO UPDATE SET
			window_anchor = EXCLUDED.window_anchor,
			last_observed_steps = EXCLUDED.last_observed_steps,
			last_computed_at = EXCLUDED.last_computed_at,
			updated_at = now()`,
		p.RuleID, p.CompanyID, p.WorkerID, p.WindowAnchor, p.LastObservedSteps, p.LastComputedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "bonus: upsert progress %s/%s", p.RuleID, p.WorkerID)
	}
	return nil
}

// List returns progress rows for a company, optionally narrowed to one
// worker.
func (s *PostgresProgressStore) List(ctx context.Context, companyID, workerID string) ([]Progress, error) {
	sql := `SELECT ` + progressColumns + ` FROM bonus_progress WHERE company_id = $1`
	args := []any{companyID}
	if workerID != "" {
		sql += ` AND worker_id = $2`
		args = append(args, workerID)
	}
	sql += ` ORDER BY rule_id, worker_id`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "bonus: list progress")
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		if err := rows.Scan(&p.RuleID, &p.CompanyID, &p.WorkerID, &p.WindowAnchor,
			&p.LastObservedSteps, &p.LastComputedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "bonus: scan progress")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PostgresAwardStore implements AwardRepository using pgx.
type PostgresAwardStore struct {
	pool db.Pool
}

// NewPostgresAwardStore creates a new PostgresAwardStore.
func NewPostgresAwardStore(pool db.Pool) *PostgresAwardStore {
	return &PostgresAwardStore{pool: pool}
}

// Create inserts an award row. A duplicate (rule, worker, window_anchor)
// maps to ErrAwardConflict.
func (s *PostgresAwardStore) Create(ctx context.Context, q db.Querier, a *Award) error {
	if q == nil {
		q = s.pool
	}
	err := q.QueryRow(ctx, `
		INSERT INTO bonus_awards (id, rule_id, company_id, worker_id, steps_awarded, bonus_amount_cents, currency, awarded_at, reason, window_anchor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		a.ID, a.RuleID, a.CompanyID, nilIfEmpty(a.WorkerID), a.StepsAwarded,
		a.AmountCents, a.Currency, a.AwardedAt, a.Reason, a.WindowAnchor,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrAwardConflict, "rule %s worker %s window %s", a.RuleID, a.WorkerID, a.WindowAnchor)
		}
		return eris.Wrapf(err, "bonus: create award %s", a.ID)
	}
	return nil
}

// List returns awards matching the filter, newest first.
func (s *PostgresAwardStore) List(ctx context.Context, f AwardFilter) ([]Award, error) {
	sql := `SELECT id, rule_id, company_id, worker_id, steps_awarded, bonus_amount_cents, currency, awarded_at, reason, window_anchor, created_at
		FROM bonus_awards WHERE company_id = $1`
	args := []any{f.CompanyID}
	argIdx := 2

	if f.WorkerID != "" {
		sql += fmt.Sprintf(` AND worker_id = $%d`, argIdx)
		args = append(args, f.WorkerID)
		argIdx++
	}
	if f.RuleID != "" {
		sql += fmt.Sprintf(` AND rule_id = $%d`, argIdx)
		args = append(args, f.RuleID)
		argIdx++
	}
	if !f.Since.IsZero() {
		sql += fmt.Sprintf(` AND awarded_at >= $%d`, argIdx)
		args = append(args, f.Since)
		argIdx++
	}
	sql += ` ORDER BY awarded_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	sql += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "bonus: list awards")
	}
	defer rows.Close()

	var awards []Award
	for rows.Next() {
		var a Award
		var workerID *string
		if err := rows.Scan(&a.ID, &a.RuleID, &a.CompanyID, &workerID, &a.StepsAwarded,
			&a.AmountCents, &a.Currency, &a.AwardedAt, &a.Reason, &a.WindowAnchor, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "bonus: scan award")
		}
		if workerID != nil {
			a.WorkerID = *workerID
		}
		awards = append(awards, a)
	}
	return awards, rows.Err()
}

// Totals aggregates count and amount of awards matching the filter.
func (s *PostgresAwardStore) Totals(ctx context.Context, f AwardFilter) (AwardTotals, error) {
	sql := `SELECT COUNT(*), COALESCE(SUM(bonus_amount_cents), 0)
		FROM bonus_awards WHERE company_id = $1`
	args := []any{f.CompanyID}
	argIdx := 2

	if f.WorkerID != "" {
		sql += fmt.Sprintf(` AND worker_id = $%d`, argIdx)
		args = append(args, f.WorkerID)
		argIdx++
	}
	if f.RuleID != "" {
		sql += fmt.Sprintf(` AND rule_id = $%d`, argIdx)
		args = append(args, f.RuleID)
		argIdx++
	}
	if !f.Since.IsZero() {
		sql += fmt.Sprintf(` AND awarded_at >= $%d`, argIdx)
		args = append(args, f.Since)
	}

	var t AwardTotals
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&t.Count, &t.TotalCents); err != nil {
		return AwardTotals{}, eris.Wrap(err, "bonus: award totals")
	}
	return t, nil
}

// isUniqueViolation reports whether err is a Postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
