package chatter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/chatlabs-hq/agency-ops/internal/db"
)

// PostgresStore implements the worker directory and shift lookups.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// FindByID fetches a worker by ID. Returns (nil, nil) when absent.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Worker, error) {
	var w Worker
	err := s.pool.QueryRow(ctx, `
		SELECT id, company_id, display_name, currency, is_active, created_at, updated_at
		FROM workers WHERE id = $1`, id).
		Scan(&w.ID, &w.CompanyID, &w.DisplayName, &w.Currency, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "chatter: get worker %s", id)
	}
	return &w, nil
}

// WorkerCurrency resolves a worker's configured payout currency. An
// unknown worker or empty configuration yields "" so the caller can fall
// back to its default.
func (s *PostgresStore) WorkerCurrency(ctx context.Context, workerID string) (string, error) {
	w, err := s.FindByID(ctx, workerID)
	if err != nil {
		return "", err
	}
	if w == nil {
		return "", nil
	}
	return w.Currency, nil
}

// ActiveWorkerIDs lists a company's active workers for company-wide runs.
func (s *PostgresStore) ActiveWorkerIDs(ctx context.Context, companyID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM workers
		WHERE company_id = $1 AND is_active
		ORDER BY id`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "chatter: list active workers for %s", companyID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "chatter: scan worker id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ShiftsOnDate returns a worker's shifts for one business date.
func (s *PostgresStore) ShiftsOnDate(ctx context.Context, companyID, workerID string, businessDate time.Time) ([]Shift, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, worker_id, business_date, starts_at, ends_at, created_at
		FROM shifts
		WHERE company_id = $1 AND worker_id = $2 AND business_date = $3
		ORDER BY starts_at`, companyID, workerID, businessDate.Format("2006-01-02"))
	if err != nil {
		return nil, eris.Wrapf(err, "chatter: shifts for %s", workerID)
	}
	defer rows.Close()

	var shifts []Shift
	for rows.Next() {
		var sh Shift
		if err := rows.Scan(&sh.ID, &sh.CompanyID, &sh.WorkerID, &sh.BusinessDate,
			&sh.StartsAt, &sh.EndsAt, &sh.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "chatter: scan shift")
		}
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}
