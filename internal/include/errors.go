package include

import (
	"errors"
	"fmt"
	"strings"
)

// CircularIncludeError reports an include reference that appears in its own
// ancestor chain. Raised before the offending source would be fetched a
// second time, so resolution stays bounded.
//
// Fatal to that include position only: the engine renders an empty subtree
// there and reports the error on its diagnostic channel.
type CircularIncludeError struct {
	// Cycle is the reference chain ending in the repeated reference,
	// e.g. ["a.htql", "b.htql", "a.htql"].
	Cycle []string
}

// Error implements the error interface.
func (e *CircularIncludeError) Error() string {
	return fmt.Sprintf("circular include: %s", strings.Join(e.Cycle, " -> "))
}

// ResolutionError reports a fetch or parse failure for an include source.
// Same degrade policy as CircularIncludeError: empty subtree at that
// position, diagnostic on the side channel, rest of the page renders.
type ResolutionError struct {
	// Ref is the source reference that failed to resolve.
	Ref string

	// Err is the underlying fetch or parse error.
	Err error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("include %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsCircular reports whether err is a *CircularIncludeError.
// Uses errors.As to handle wrapped errors.
func IsCircular(err error) bool {
	var ce *CircularIncludeError
	return errors.As(err, &ce)
}

// IsResolution reports whether err is a *ResolutionError.
// Uses errors.As to handle wrapped errors.
func IsResolution(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
