package bonus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() Rule {
	return Rule{
		ID:         "rule-1",
		CompanyID:  "co-1",
		Name:       "daily sales bonus",
		IsActive:   true,
		Scope:      ScopeWorker,
		WindowType: WindowCalendarDay,
		RuleType:   RuleThresholdPayout,
		Config: RuleConfig{
			Tiers: []Tier{
				{MinAmountCents: 10000, BonusCents: 1500},
				{MinAmountCents: 25000, BonusCents: 4000},
			},
		},
	}
}

func TestRuleValidate(t *testing.T) {
	r := validRule()
	require.NoError(t, r.Validate())
}

func TestRuleValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Rule)
		field  string
	}{
		{
			name:   "missing company",
			mutate: func(r *Rule) { r.CompanyID = "" },
			field:  "company_id",
		},
		{
			name:   "unsupported scope",
			mutate: func(r *Rule) { r.Scope = Scope("company") },
			field:  "scope",
		},
		{
			name:   "unsupported window",
			mutate: func(r *Rule) { r.WindowType = WindowType("calendar_week") },
			field:  "window_type",
		},
		{
			name:   "no tiers",
			mutate: func(r *Rule) { r.Config.Tiers = nil },
			field:  "rule_config.tiers",
		},
		{
			name: "negative threshold",
			mutate: func(r *Rule) {
				r.Config.Tiers = []Tier{{MinAmountCents: -1, BonusCents: 100}}
			},
			field: "rule_config.tiers",
		},
		{
			name: "zero bonus",
			mutate: func(r *Rule) {
				r.Config.Tiers = []Tier{{MinAmountCents: 100, BonusCents: 0}}
			},
			field: "rule_config.tiers",
		},
		{
			name: "unsorted tiers",
			mutate: func(r *Rule) {
				r.Config.Tiers = []Tier{
					{MinAmountCents: 25000, BonusCents: 4000},
					{MinAmountCents: 10000, BonusCents: 1500},
				}
			},
			field: "rule_config.tiers",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := validRule()
			tc.mutate(&r)

			err := r.Validate()
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestRuleConfigRoundTrip(t *testing.T) {
	cfg := RuleConfig{
		Tiers:          []Tier{{MinAmountCents: 10000, BonusCents: 1500}},
		ShiftBased:     true,
		IncludeRefunds: false,
		Currency:       "EUR",
	}

	raw, err := EncodeRuleConfig(cfg)
	require.NoError(t, err)

	got, err := ParseRuleConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestParseRuleConfig_Invalid(t *testing.T) {
	_, err := ParseRuleConfig([]byte("{not json"))
	require.Error(t, err)
}
