// Package engine is the directive and binding runtime: it mounts a parsed
// markup tree against a data context, expands include, if, repeat, and
// while directives, registers an observer per live expression, and
// re-renders exactly the affected parts of the tree when the context
// changes.
//
// Execution is single-threaded and cooperative. Every mutation of the
// tree, the context, and the observer registry happens on the caller's
// goroutine; include fetches are the only asynchronous boundary, and they
// re-enter through a completion queue on the next host turn. Within one
// update turn, each affected observer runs at most once, directives before
// bindings, in registration order.
package engine
