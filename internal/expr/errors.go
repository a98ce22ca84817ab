package expr

import (
	"errors"
	"fmt"
)

// SyntaxError reports a malformed expression at compile time.
// It is fatal to that one expression only: the directive or binding that
// carried it renders empty while the rest of the tree proceeds.
type SyntaxError struct {
	// Source is the full expression source being compiled.
	Source string

	// Pos is the byte offset of the offending token.
	Pos int

	// Message describes what the parser expected.
	Message string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q at offset %d: %s", e.Source, e.Pos, e.Message)
}

// EvalError reports a runtime evaluation failure, currently only filter
// lookup or application failures. Callers must treat the result as an empty
// value and log - rendering never halts on an EvalError.
type EvalError struct {
	// Source is the expression source being evaluated.
	Source string

	// Filter is the filter name involved, when the failure is filter-related.
	Filter string

	// Message describes the failure.
	Message string

	// Err is the underlying error from a filter function, if any.
	Err error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Filter != "" {
		return fmt.Sprintf("evaluation error in %q: filter %q: %s", e.Source, e.Filter, e.Message)
	}
	return fmt.Sprintf("evaluation error in %q: %s", e.Source, e.Message)
}

// Unwrap exposes the underlying filter error for errors.Is/As.
func (e *EvalError) Unwrap() error {
	return e.Err
}

// IsSyntaxError reports whether err is a *SyntaxError.
// Uses errors.As to handle wrapped errors.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// IsEvalError reports whether err is an *EvalError.
// Uses errors.As to handle wrapped errors.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}
