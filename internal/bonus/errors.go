package bonus

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedWindow is returned by the window resolver for a window
// type outside calendar_day/calendar_month.
var ErrUnsupportedWindow = eris.New("bonus: unsupported window type")

// ErrUnsupportedRuleType is returned when no evaluator is registered for
// a rule's type.
var ErrUnsupportedRuleType = eris.New("bonus: unsupported rule type")

// ErrAwardConflict signals a duplicate-key race on award insertion. The
// engine converts it into a benign no-award snapshot; it is expected
// under concurrency, not a bug signal.
var ErrAwardConflict = eris.New("bonus: award already exists for window")

// ValidationError reports malformed rules or missing identifiers.
// Surfaced to the caller, never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "bonus: " + e.Message
	}
	return "bonus: " + e.Field + ": " + e.Message
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
