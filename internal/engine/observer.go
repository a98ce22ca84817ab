package engine

import (
	"github.com/htql-dev/htql/internal/expr"
	"github.com/htql-dev/htql/internal/tree"
	"github.com/htql-dev/htql/internal/value"
)

// ObserverKind orders re-evaluation within an update turn: directive
// observers run before binding observers, because a directive's
// re-expansion can create the very bindings that must then initialize.
type ObserverKind int

const (
	// ObserverDirective re-expands an if, repeat, or while node.
	ObserverDirective ObserverKind = iota + 1
	// ObserverBinding writes an evaluated value into an output node.
	ObserverBinding
)

// Observer links a compiled expression, the scope it evaluates in, and an
// effect to run when its value changes. Created when a directive or
// binding is attached; destroyed when its owning render node leaves the
// tree.
//
// INVARIANT: paths is always a superset of the member paths actually read
// during the last evaluation. The tracker rebuilds it on every run, so
// conditional reads (short-circuited branches) re-subscribe correctly.
type Observer struct {
	id    int64
	kind  ObserverKind
	owner tree.NodeID
	expr  *expr.Expression
	scope expr.Scope

	paths    []value.Path
	last     value.Value
	haveLast bool

	// denoted is the data path the whole expression addresses, refreshed
	// on every evaluation. "" when the expression is not addressable.
	// data-sync write-back targets it; dependency paths must not, since
	// paths also holds intermediate reads like the base identifier.
	denoted value.Path

	// alwaysRun disables the value-equality skip. While directives need
	// it: their condition is re-evaluated per iteration, so an unchanged
	// first-iteration value does not imply an unchanged expansion.
	alwaysRun bool

	// effect applies the evaluated value to the tree. path is the data
	// path the expression denotes when it is addressable, "" otherwise.
	effect func(v value.Value, path value.Path)
}

// DependencyPaths implements the data store's subscriber contract.
func (o *Observer) DependencyPaths() []value.Path {
	return o.paths
}

// pathSet accumulates the distinct paths read during one evaluation.
type pathSet struct {
	seen  map[value.Path]struct{}
	paths []value.Path
}

func newPathSet() *pathSet {
	return &pathSet{seen: make(map[value.Path]struct{})}
}

// Record implements expr.Tracker. The empty path is never recorded: a
// shadowed loop variable with no data address reports "", and "" relates
// to every path, which would re-run the observer on every mutation.
func (s *pathSet) Record(p value.Path) {
	if p == "" {
		return
	}
	if _, ok := s.seen[p]; ok {
		return
	}
	s.seen[p] = struct{}{}
	s.paths = append(s.paths, p)
}

// sameValue is the change check for effect skipping. Unlike value.Equal it
// treats two Undefineds as the same: an observer that evaluated to missing
// data twice in a row has nothing new to render.
func sameValue(a, b value.Value) bool {
	if value.Equal(a, b) {
		return true
	}
	_, au := a.(value.Undefined)
	_, bu := b.(value.Undefined)
	return au && bu
}
