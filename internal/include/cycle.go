package include

import "slices"

// CheckCycle fails with *CircularIncludeError when ref already appears in
// the chain of ancestor references currently being resolved.
//
// The check runs before the fetch is attempted, so a cyclic include graph
// costs at most one fetch per distinct reference rather than recursing
// unboundedly.
func CheckCycle(ref string, chain []string) error {
	if slices.Contains(chain, ref) {
		cycle := make([]string, 0, len(chain)+1)
		cycle = append(cycle, chain...)
		cycle = append(cycle, ref)
		return &CircularIncludeError{Cycle: cycle}
	}
	return nil
}

// ExtendChain returns chain with ref appended, without aliasing the
// original slice. Chains are shared across sibling resolutions, so the
// append must not clobber a sibling's view.
func ExtendChain(chain []string, ref string) []string {
	out := make([]string, 0, len(chain)+1)
	out = append(out, chain...)
	out = append(out, ref)
	return out
}
