package engine

import (
	"errors"
	"fmt"
)

// RenderError is the engine's uniform diagnostic for recoverable render
// failures. Every error surfaced on the runtime's error channel is a
// RenderError wrapping the underlying typed error.
//
// The unit of failure isolation is the single directive, binding, or
// include instance: a RenderError means that one instance rendered empty,
// never that sibling or ancestor rendering was aborted.
type RenderError struct {
	// Code identifies the error category.
	Code RenderErrorCode

	// Expr is the expression source involved, when expression-related.
	Expr string

	// Ref is the include source reference, when include-related.
	Ref string

	// Err is the underlying typed error.
	Err error
}

// RenderErrorCode categorizes recoverable render failures.
type RenderErrorCode string

const (
	// CodeSyntax indicates a malformed expression. Fatal to that one
	// expression only; its directive or binding renders empty.
	CodeSyntax RenderErrorCode = "SYNTAX"

	// CodeEval indicates a runtime evaluation failure such as an unknown
	// filter. Degrades to an empty value.
	CodeEval RenderErrorCode = "EVAL"

	// CodeCircularInclude indicates an include that references itself
	// through its ancestor chain. That position renders empty.
	CodeCircularInclude RenderErrorCode = "CIRCULAR_INCLUDE"

	// CodeIncludeResolution indicates an include fetch or parse failure.
	// Same degrade policy as CodeCircularInclude.
	CodeIncludeResolution RenderErrorCode = "INCLUDE_RESOLUTION"

	// CodeInfiniteLoop indicates a while directive hit its iteration
	// cutoff. Iteration stops; output produced so far is kept.
	CodeInfiniteLoop RenderErrorCode = "INFINITE_LOOP"
)

// Error implements the error interface.
func (e *RenderError) Error() string {
	switch {
	case e.Ref != "":
		return fmt.Sprintf("%s: include %q: %v", e.Code, e.Ref, e.Err)
	case e.Expr != "":
		return fmt.Sprintf("%s: expression %q: %v", e.Code, e.Expr, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// IsRenderError reports whether err is a *RenderError with the given code.
// Uses errors.As to handle wrapped errors.
func IsRenderError(err error, code RenderErrorCode) bool {
	var re *RenderError
	return errors.As(err, &re) && re.Code == code
}

// InfiniteLoopError is the safety cutoff for while directives: a single
// evaluation pass exceeded the configured iteration limit. Iteration stops
// and the pass keeps what it produced so far, rather than hanging the
// update cycle.
type InfiniteLoopError struct {
	// Cond is the while condition source.
	Cond string

	// Limit is the configured maximum iterations per pass.
	Limit int
}

// Error implements the error interface.
func (e *InfiniteLoopError) Error() string {
	return fmt.Sprintf("while %q exceeded %d iterations in one pass", e.Cond, e.Limit)
}

// IsInfiniteLoopError reports whether err is an *InfiniteLoopError.
// Uses errors.As to handle wrapped errors.
func IsInfiniteLoopError(err error) bool {
	var le *InfiniteLoopError
	return errors.As(err, &le)
}

// UsageError reports structural misuse of the host API (double mount,
// mutating an unmounted runtime). Unlike render failures, usage errors are
// hard, caller-visible failures.
type UsageError struct {
	Message string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return "runtime misuse: " + e.Message
}

// ErrAlreadyMounted is returned by Mount when the runtime already hosts a
// tree.
var ErrAlreadyMounted = &UsageError{Message: "already mounted"}

// ErrNotMounted is returned by SetData, Input, and Unmount before a
// successful Mount.
var ErrNotMounted = &UsageError{Message: "not mounted"}

// IsUsageError reports whether err is a *UsageError.
// Uses errors.As to handle wrapped errors.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
