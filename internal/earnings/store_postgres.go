package earnings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/chatlabs-hq/agency-ops/internal/db"
)

// PostgresStore implements ledger writes and the aggregation queries the
// bonus engine consumes.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append inserts one ledger entry. The upstream sync calls this per
// scraped transaction.
func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO earnings (id, company_id, worker_id, kind, amount_cents, currency, occurred_at, shift_id, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.CompanyID, nilIfEmpty(e.WorkerID), e.Kind, e.AmountCents,
		e.Currency, e.OccurredAt, nilIfEmpty(e.ShiftID), e.Source,
	)
	if err != nil {
		return eris.Wrapf(err, "earnings: append %s", e.ID)
	}
	return nil
}

// earningsColumns is the COPY column list for bulk imports.
var earningsColumns = []string{
	"id", "company_id", "worker_id", "kind", "amount_cents",
	"currency", "occurred_at", "shift_id", "source",
}

// BulkImport loads a batch of entries via COPY. Used by the import
// command when replaying exported platform statements.
func (s *PostgresStore) BulkImport(ctx context.Context, entries []Entry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		rows = append(rows, []any{
			e.ID, e.CompanyID, nilIfEmpty(e.WorkerID), string(e.Kind), e.AmountCents,
			e.Currency, e.OccurredAt, nilIfEmpty(e.ShiftID), e.Source,
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, "earnings", earningsColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "earnings: bulk import")
	}
	return n, nil
}

// SumForWindow returns the worker's total earned cents inside fixed
// window bounds. Refund rows are excluded unless includeRefunds is set.
func (s *PostgresStore) SumForWindow(ctx context.Context, companyID, workerID string, from, to time.Time, includeRefunds bool) (int64, error) {
	sql := `SELECT COALESCE(SUM(amount_cents), 0)
		FROM earnings
		WHERE company_id = $1 AND worker_id = $2
		  AND occurred_at >= $3 AND occurred_at <= $4`
	if !includeRefunds {
		sql += ` AND kind <> 'refund'`
	}

	var total int64
	err := s.pool.QueryRow(ctx, sql, companyID, workerID, from, to).Scan(&total)
	if err != nil {
		return 0, eris.Wrapf(err, "earnings: sum window for %s", workerID)
	}
	return total, nil
}

// SumForWorkerShiftsOnDate returns the cents attributed to all of the
// worker's shifts whose business date matches, regardless of when the
// earnings landed on the clock. This is the shift-aligned aggregation
// used by shift-based calendar_day rules.
func (s *PostgresStore) SumForWorkerShiftsOnDate(ctx context.Context, companyID, workerID string, businessDate time.Time, includeRefunds bool) (int64, error) {
	sql := `SELECT COALESCE(SUM(e.amount_cents), 0)
		FROM earnings e
		JOIN shifts sh ON e.shift_id = sh.id
		WHERE sh.company_id = $1 AND sh.worker_id = $2 AND sh.business_date = $3`
	if !includeRefunds {
		sql += ` AND e.kind <> 'refund'`
	}

	var total int64
	err := s.pool.QueryRow(ctx, sql, companyID, workerID, businessDate.Format("2006-01-02")).Scan(&total)
	if err != nil {
		return 0, eris.Wrapf(err, "earnings: sum shifts for %s on %s", workerID, businessDate.Format("2006-01-02"))
	}
	return total, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
