// Package data holds the application data graph and maps mutations to the
// observers they affect.
//
// The store is the single choke point for state change: the root mapping is
// shared by reference with every evaluation, and mutation is only permitted
// through SetData. Change detection is two-tier - the store computes a
// shallow diff of changed top-level paths, and each affected observer
// re-evaluates and compares its own resolved value to decide whether its
// effect actually runs.
package data

import (
	"slices"
	"strconv"
	"strings"

	"github.com/htql-dev/htql/internal/value"
)

// Subscriber is an observer registration from the store's point of view:
// something that can report its recorded dependency paths.
//
// INVARIANT: the reported set must always be a superset of the paths the
// subscriber actually read during its last evaluation. Over-subscription
// costs a redundant re-evaluation; under-subscription loses updates.
type Subscriber interface {
	DependencyPaths() []value.Path
}

// Store owns the root data context and the subscription registry.
//
// Single-writer: SetData and the registry methods are called only from the
// runtime's update turn. The returned root mapping must not be mutated by
// callers.
type Store struct {
	root value.Mapping
	subs []Subscriber
}

// NewStore creates a store around an initial root context.
// A nil initial context is an empty mapping.
func NewStore(initial value.Mapping) *Store {
	if initial == nil {
		initial = value.Mapping{}
	}
	return &Store{root: initial}
}

// Root returns the current root mapping. Implements the evaluator's
// context source contract. Read-only for callers.
func (s *Store) Root() value.Mapping {
	return s.root
}

// SetData merges patch into the root context and returns the changed
// top-level paths in sorted order.
//
// The merge is a structural replace per top-level key: a key present in the
// patch replaces the previous subtree wholesale. A key whose new value is
// Equal to the old one is not reported as changed. Deeper change precision
// is delegated to each observer's own before/after value comparison.
func (s *Store) SetData(patch value.Mapping) []value.Path {
	changed := make([]value.Path, 0, len(patch))
	for _, k := range patch.SortedKeys() {
		next := patch[k]
		prev, present := s.root[k]
		if present && value.Equal(prev, next) {
			continue
		}
		s.root[k] = next
		changed = append(changed, value.Path(k))
	}
	return changed
}

// SetPath writes v at a deep path, creating intermediate mappings as
// needed, and returns the changed top-level path. This is the write-through
// used by two-way sync bindings.
//
// The write is copy-on-write along the path: containers between the root
// and the leaf are shallow-copied rather than mutated, so values previously
// handed to observers keep their old contents and before/after comparison
// stays meaningful.
func (s *Store) SetPath(p value.Path, v value.Value) []value.Path {
	if p == "" {
		return nil
	}
	segments := strings.Split(string(p), ".")
	prev, present := s.root[segments[0]]
	var replaced value.Value
	if len(segments) == 1 {
		replaced = v
	} else {
		replaced = setIn(prev, segments[1:], v)
	}
	if present && value.Equal(prev, replaced) {
		return nil
	}
	s.root[segments[0]] = replaced
	return []value.Path{value.Path(segments[0])}
}

// setIn returns a copy of container with v placed at the segment path.
// Non-mapping intermediates are replaced by fresh mappings; sequences are
// only updated at valid numeric indexes.
func setIn(container value.Value, segments []string, v value.Value) value.Value {
	head := segments[0]
	rest := segments[1:]

	if seq, ok := container.(value.Sequence); ok {
		idx, err := strconv.Atoi(head)
		if err != nil || idx < 0 || idx >= len(seq) {
			return container
		}
		out := slices.Clone(seq)
		if len(rest) == 0 {
			out[idx] = v
		} else {
			out[idx] = setIn(seq[idx], rest, v)
		}
		return out
	}

	m, ok := container.(value.Mapping)
	if !ok {
		m = value.Mapping{}
	}
	out := make(value.Mapping, len(m)+1)
	for k, e := range m {
		out[k] = e
	}
	if len(rest) == 0 {
		out[head] = v
	} else {
		out[head] = setIn(m[head], rest, v)
	}
	return out
}

// Subscribe registers sub for change notification.
// Registration order is preserved; AffectedBy reports in this order so
// downstream scheduling stays deterministic.
func (s *Store) Subscribe(sub Subscriber) {
	s.subs = append(s.subs, sub)
}

// Unsubscribe removes sub from the registry. Called when the observer's
// owning render node is removed from the tree.
func (s *Store) Unsubscribe(sub Subscriber) {
	if i := slices.Index(s.subs, sub); i >= 0 {
		s.subs = slices.Delete(s.subs, i, i+1)
	}
}

// SubscriberCount returns the number of registered subscribers.
// Used by tests to verify observers do not leak across reconciliations.
func (s *Store) SubscriberCount() int {
	return len(s.subs)
}

// AffectedBy returns every subscriber whose dependency-path set shares a
// prefix relation with any changed path, in registration order.
//
// Prefix relation means ancestor, equal, or descendant: replacing "user"
// must wake a subscriber of "user.name", and changing "user.name" must wake
// a subscriber that read all of "user".
func (s *Store) AffectedBy(changed []value.Path) []Subscriber {
	if len(changed) == 0 {
		return nil
	}
	var affected []Subscriber
	for _, sub := range s.subs {
		if dependsOnAny(sub.DependencyPaths(), changed) {
			affected = append(affected, sub)
		}
	}
	return affected
}

func dependsOnAny(deps, changed []value.Path) bool {
	for _, d := range deps {
		for _, c := range changed {
			if d.Related(c) {
				return true
			}
		}
	}
	return false
}
