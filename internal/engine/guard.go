package engine

// DefaultMaxIterations is the default per-pass iteration cutoff for while
// directives. Configurable via WithMaxIterations.
const DefaultMaxIterations = 10000

// iterGuard bounds one while evaluation pass. A fresh guard is created per
// pass; the counter never carries across passes, so a condition that
// legitimately converges re-runs cleanly on the next update.
type iterGuard struct {
	limit   int
	current int
	cond    string
}

func newIterGuard(limit int, cond string) *iterGuard {
	return &iterGuard{limit: limit, cond: cond}
}

// check increments the iteration counter and fails with InfiniteLoopError
// once the limit is exceeded.
func (g *iterGuard) check() error {
	g.current++
	if g.current > g.limit {
		return &InfiniteLoopError{Cond: g.cond, Limit: g.limit}
	}
	return nil
}
