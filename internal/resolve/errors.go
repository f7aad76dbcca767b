package resolve

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Terminal failure kinds. Match with errors.Is.
var (
	ErrInvalidRequest   = eris.New("invalid field request")
	ErrAnalysis         = eris.New("analysis failed")
	ErrSynthesis        = eris.New("synthesis failed")
	ErrRetriesExhausted = eris.New("validation retries exhausted")
)

// ResolutionError is a terminal pipeline failure for one field.
type ResolutionError struct {
	Kind   error
	Field  string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve %s: %s", e.Field, e.Kind.Error())
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind.
func (e *ResolutionError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the collaborator error, if any.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or nil if err is not a
// ResolutionError.
func KindOf(err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return nil
}
