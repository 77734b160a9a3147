package series

import (
	"errors"
	"fmt"
)

// ErrMalformedInput is matched by every input error returned from this
// package, so callers can map the whole family with a single errors.Is.
var ErrMalformedInput = errors.New("malformed input")

// MalformedInputError reports a history record that could not be parsed or
// validated. Line is 1-based and zero when the record did not come from a file.
type MalformedInputError struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid %s %q: %s", e.Line, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

// InsufficientDataError is returned when there are not enough observations
// to establish a time range.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d observations, need at least %d", e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrMalformedInput
}
