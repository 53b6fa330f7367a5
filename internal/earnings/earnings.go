// Package earnings owns the append-only earnings ledger the bonus engine
// aggregates over. Rows arrive from the upstream transaction sync and
// from the import command; nothing in this system updates or deletes them.
package earnings

import (
	"time"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindSale   Kind = "sale"
	KindTip    Kind = "tip"
	KindRefund Kind = "refund"
)

// Entry is one row of the earnings ledger. Refunds carry negative
// amounts; the aggregator excludes them unless a rule opts in.
type Entry struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	WorkerID    string    `json:"worker_id,omitempty"`
	Kind        Kind      `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
	ShiftID     string    `json:"shift_id,omitempty"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
