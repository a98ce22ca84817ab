// Package expr compiles and evaluates the restricted expression grammar
// used by directives and bindings.
//
// The grammar covers member access (dotted and bracketed), numeric, string
// and boolean literals, comparisons, boolean and arithmetic operators, and
// filter application via the pipe operator:
//
//	user.name
//	items[0].price * quantity
//	user.loggedIn && cart.total > 100
//	order.total | currency
//	title | default: "untitled"
//
// Evaluation is read-only and total: member access on a missing path
// evaluates to Undefined rather than failing, and Undefined propagates
// through member chains, arithmetic, and comparisons so templates over
// partially-loaded data degrade to empty output. The only evaluation-time
// errors are filter failures (unknown filter name, filter returning an
// error), reported as *EvalError for the caller to degrade and log.
//
// When an Env carries a Tracker, every member path actually read during
// evaluation is recorded against it. The binding engine uses this to
// subscribe observers to exactly the data they depend on.
package expr
