// Package bonus implements the bonus rule evaluation engine: threshold
// rules over per-worker earnings windows, with exactly-once award
// persistence under concurrent evaluation.
package bonus

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// WindowType selects how evaluation windows are derived from an instant.
type WindowType string

const (
	WindowCalendarDay   WindowType = "calendar_day"
	WindowCalendarMonth WindowType = "calendar_month"
)

// RuleType selects the tier evaluator used for a rule.
type RuleType string

const (
	// RuleThresholdPayout pays a flat bonus once per window when total
	// earnings cross a tier threshold.
	RuleThresholdPayout RuleType = "threshold_payout"
)

// Scope identifies what a rule is evaluated against.
type Scope string

const (
	ScopeWorker Scope = "worker"
)

// Tier is one step of a threshold rule: qualify at MinAmountCents, pay
// BonusCents flat.
type Tier struct {
	MinAmountCents int64 `json:"min_amount_cents"`
	BonusCents     int64 `json:"bonus_cents"`
}

// RuleConfig is the structured payload carried by a rule. Tiers must be
// non-empty and sorted ascending by threshold.
type RuleConfig struct {
	Tiers          []Tier `json:"tiers"`
	ShiftBased     bool   `json:"shift_based,omitempty"`
	IncludeRefunds bool   `json:"include_refunds,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// Rule is an immutable bonus policy belonging to one company. The engine
// only ever reads rules; they are maintained through the admin surface.
type Rule struct {
	ID         string     `json:"id"`
	CompanyID  string     `json:"company_id"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	Priority   int        `json:"priority"`
	Scope      Scope      `json:"scope"`
	WindowType WindowType `json:"window_type"`
	RuleType   RuleType   `json:"rule_type"`
	Config     RuleConfig `json:"rule_config"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks the structural invariants of a rule. The admin boundary
// validates on write; the engine re-checks before evaluating so a bad row
// can never produce an award.
func (r *Rule) Validate() error {
	if r.CompanyID == "" {
		return &ValidationError{Field: "company_id", Message: "company id is required"}
	}
	if r.Scope != ScopeWorker {
		return &ValidationError{Field: "scope", Message: "unsupported scope: " + string(r.Scope)}
	}
	switch r.WindowType {
	case WindowCalendarDay, WindowCalendarMonth:
	default:
		return &ValidationError{Field: "window_type", Message: "unsupported window type: " + string(r.WindowType)}
	}
	if len(r.Config.Tiers) == 0 {
		return &ValidationError{Field: "rule_config.tiers", Message: "at least one tier is required"}
	}
	prev := int64(-1)
	for i, t := range r.Config.Tiers {
		if t.MinAmountCents < 0 {
			return &ValidationError{Field: "rule_config.tiers", Message: "tier min_amount_cents must be >= 0"}
		}
		if t.BonusCents <= 0 {
			return &ValidationError{Field: "rule_config.tiers", Message: "tier bonus_cents must be > 0"}
		}
		if t.MinAmountCents <= prev && i > 0 {
			return &ValidationError{Field: "rule_config.tiers", Message: "tiers must be sorted ascending by min_amount_cents"}
		}
		prev = t.MinAmountCents
	}
	return nil
}

// ParseRuleConfig decodes and validates a raw rule_config document.
func ParseRuleConfig(raw []byte) (RuleConfig, error) {
	var cfg RuleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return RuleConfig{}, eris.Wrap(err, "bonus: decode rule config")
	}
	return cfg, nil
}

// EncodeRuleConfig serializes a rule config for storage.
func EncodeRuleConfig(cfg RuleConfig) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "bonus: encode rule config")
	}
	return raw, nil
}
