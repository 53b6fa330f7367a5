package bonus

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// TierResult is the outcome of running a tier evaluator for one window.
type TierResult struct {
	// StepsNow is the total award steps the worker qualifies for in this
	// window given current earnings.
	StepsNow int
	// StepsToAward is StepsNow minus the steps already recorded, floored
	// at zero.
	StepsToAward int
	// ExpectedAwardCents is the amount a new award would pay. Zero when
	// StepsToAward is zero.
	ExpectedAwardCents int64
	// Reason is a human-readable explanation for the outcome.
	Reason string
}

// Evaluator computes award steps for one rule type. Implementations must
// be pure: no I/O, no state.
type Evaluator interface {
	RuleType() RuleType
	Evaluate(cfg RuleConfig, totalCents int64, lastObservedSteps int) TierResult
}

// evaluators is the rule-type dispatch table. Populated at init; adding a
// rule type means registering a new Evaluator here.
var evaluators = make(map[RuleType]Evaluator)

func registerEvaluator(e Evaluator) {
	if _, dup := evaluators[e.RuleType()]; dup {
		panic("bonus: duplicate evaluator for rule type " + string(e.RuleType()))
	}
	evaluators[e.RuleType()] = e
}

// EvaluatorFor returns the evaluator registered for a rule type.
func EvaluatorFor(rt RuleType) (Evaluator, error) {
	e, ok := evaluators[rt]
	if !ok {
		return nil, eris.Wrapf(ErrUnsupportedRuleType, "%s", rt)
	}
	return e, nil
}

func init() {
	registerEvaluator(thresholdPayout{})
}

// thresholdPayout pays the matched tier's flat bonus once per window.
// Qualification is a single binary step: once any tier matches, StepsNow
// is 1, and growing into a higher tier later in the same window pays
// nothing further.
type thresholdPayout struct{}

func (thresholdPayout) RuleType() RuleType { return RuleThresholdPayout }

func (thresholdPayout) Evaluate(cfg RuleConfig, totalCents int64, lastObservedSteps int) TierResult {
	if len(cfg.Tiers) == 0 {
		return TierResult{Reason: "no tiers configured"}
	}

	// Highest tier whose threshold is covered by the total. Tiers are
	// sorted ascending, so the last match wins.
	matched := -1
	for i, t := range cfg.Tiers {
		if t.MinAmountCents <= totalCents {
			matched = i
		}
	}
	if matched < 0 {
		return TierResult{
			Reason: fmt.Sprintf("total %d cents is below lowest threshold %d cents", totalCents, cfg.Tiers[0].MinAmountCents),
		}
	}

	tier := cfg.Tiers[matched]
	stepsNow := 1
	stepsToAward := stepsNow - lastObservedSteps
	if stepsToAward < 0 {
		stepsToAward = 0
	}
	if stepsToAward == 0 {
		return TierResult{
			StepsNow: stepsNow,
			Reason:   "already awarded for this window",
		}
	}

	return TierResult{
		StepsNow:           stepsNow,
		StepsToAward:       stepsToAward,
		ExpectedAwardCents: tier.BonusCents,
		Reason: fmt.Sprintf("total %d cents reached tier threshold %d cents, bonus %d cents",
			totalCents, tier.MinAmountCents, tier.BonusCents),
	}
}
