// Package chatter holds the worker directory and shift records the bonus
// engine resolves currencies and business dates against.
package chatter

import (
	"time"
)

// Worker is one chatter employed by a company.
type Worker struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	DisplayName string    `json:"display_name"`
	Currency    string    `json:"currency,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Shift is one scheduled working block. BusinessDate is the operational
// day the shift belongs to, which can differ from the calendar date of
// its clock bounds for overnight shifts.
type Shift struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	WorkerID     string     `json:"worker_id"`
	BusinessDate time.Time  `json:"business_date"`
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
