package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/htql-dev/htql/internal/data"
	"github.com/htql-dev/htql/internal/expr"
	"github.com/htql-dev/htql/internal/include"
	"github.com/htql-dev/htql/internal/tree"
	"github.com/htql-dev/htql/internal/value"
)

// ParseFunc turns fetched markup text into a detached fragment subtree
// inside the arena and returns its root.
type ParseFunc func(a *tree.Arena, src string) (tree.NodeID, error)

// Runtime drives a mounted template: it expands directives, registers
// observers for every live expression, and re-renders the affected parts
// of the tree when the data context changes.
//
// The runtime is single-writer. All mutation of the arena, the store and
// the observer registry happens on the caller's goroutine inside Mount,
// SetData, Input, Settle and Unmount. Include fetches run on background
// goroutines but only hand raw text back through the completion queue;
// splicing happens on the next host turn.
type Runtime struct {
	arena   *tree.Arena
	store   *data.Store
	filters expr.Filters
	fetcher include.Fetcher
	parse   ParseFunc
	tokens  include.TokenGenerator
	logger  *slog.Logger
	onError func(error)

	maxIterations int
	clock         *Clock

	mounted bool
	root    tree.NodeID

	// owned maps a tree node to the observers whose lifetime it anchors.
	// Destroying the node unsubscribes them.
	owned      map[tree.NodeID][]*Observer
	registered map[*Observer]bool

	// syncs maps a data-sync host element to the observer that resolved
	// its target path, so Input can write through it.
	syncs map[tree.NodeID]*Observer

	pending     map[tree.NodeID]*pendingInclude
	completions *completionQueue
	inFlight    int

	inFlush bool
	batch   []value.Path
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFilters merges extra filters over the builtin set.
func WithFilters(f expr.Filters) Option {
	return func(rt *Runtime) {
		for name, fn := range f {
			rt.filters[name] = fn
		}
	}
}

// WithFetcher sets the include fetcher. Without one, includes fail with
// a resolution error.
func WithFetcher(f include.Fetcher) Option {
	return func(rt *Runtime) { rt.fetcher = f }
}

// WithTokens overrides the include token generator. Tests use a fixed
// generator for reproducible output.
func WithTokens(g include.TokenGenerator) Option {
	return func(rt *Runtime) { rt.tokens = g }
}

// WithMaxIterations bounds while-directive expansion. Zero or negative
// keeps the default.
func WithMaxIterations(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxIterations = n
		}
	}
}

// WithErrorHandler installs a callback invoked with every render error
// the runtime reports. Errors are still logged.
func WithErrorHandler(fn func(error)) Option {
	return func(rt *Runtime) { rt.onError = fn }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = l }
}

// New builds a Runtime over an arena and a data store.
func New(a *tree.Arena, st *data.Store, parse ParseFunc, opts ...Option) *Runtime {
	rt := &Runtime{
		arena:         a,
		store:         st,
		filters:       expr.BuiltinFilters(),
		parse:         parse,
		tokens:        include.UUIDv7Generator{},
		logger:        slog.Default(),
		maxIterations: DefaultMaxIterations,
		clock:         NewClock(),
		owned:         make(map[tree.NodeID][]*Observer),
		registered:    make(map[*Observer]bool),
		syncs:         make(map[tree.NodeID]*Observer),
		pending:       make(map[tree.NodeID]*pendingInclude),
		completions:   newCompletionQueue(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Mount activates a parsed template rooted at root against the initial
// data context. Directives expand and bindings render immediately.
func (rt *Runtime) Mount(root tree.NodeID, initial value.Mapping) error {
	if rt.mounted {
		return ErrAlreadyMounted
	}
	if !rt.arena.Alive(root) {
		return &UsageError{Message: "mount root is not a live node"}
	}
	rt.mounted = true
	rt.root = root
	if initial != nil {
		rt.store.SetData(initial)
	}
	rt.logger.Info("mounting template", "root", root)

	scope := &expr.RootScope{Source: rt.store}
	n := rt.arena.Get(root)
	if n.Kind == tree.KindDirective {
		rt.attachChildren(root, scope, nil)
	} else {
		rt.attach(root, scope, nil)
	}
	return nil
}

// Unmount tears down the mounted tree: every observer is unsubscribed and
// in-flight include results are discarded when they arrive.
func (rt *Runtime) Unmount() error {
	if !rt.mounted {
		return ErrNotMounted
	}
	rt.destroySubtree(rt.root)
	rt.mounted = false
	rt.root = tree.InvalidNode
	rt.logger.Info("unmounted")
	return nil
}

// SetData merges a patch into the data context and re-renders everything
// the changed paths affect. Ready include completions are applied first so
// their observers see the new data in the same turn.
func (rt *Runtime) SetData(patch value.Mapping) error {
	if !rt.mounted {
		return ErrNotMounted
	}
	rt.drainCompletions()
	changed := rt.store.SetData(patch)
	rt.flush(changed, nil)
	return nil
}

// SetPath writes a single deep path and re-renders what it affects.
func (rt *Runtime) SetPath(p value.Path, v value.Value) error {
	if !rt.mounted {
		return ErrNotMounted
	}
	rt.drainCompletions()
	changed := rt.store.SetPath(p, v)
	rt.flush(changed, nil)
	return nil
}

// Input reports a user edit on a data-sync element. The bound path is
// written and dependents re-render, except the sync observer itself, whose
// element already holds the new value.
func (rt *Runtime) Input(node tree.NodeID, v value.Value) error {
	if !rt.mounted {
		return ErrNotMounted
	}
	o, ok := rt.syncs[node]
	if !ok {
		return &UsageError{Message: "node has no data-sync binding"}
	}
	if o.denoted == "" {
		return &UsageError{Message: "data-sync target is not addressable"}
	}
	changed := rt.store.SetPath(o.denoted, v)
	o.last = v
	o.haveLast = true
	rt.flush(changed, o)
	return nil
}

// Settle blocks until every in-flight include has completed and rendered,
// or the context is done.
func (rt *Runtime) Settle(ctx context.Context) error {
	for {
		rt.drainCompletions()
		if rt.inFlight == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rt.completions.wait():
		}
	}
}

// HTML serializes the current rendered tree.
func (rt *Runtime) HTML() string {
	if !rt.mounted {
		return ""
	}
	return rt.arena.HTML(rt.root)
}

// Root returns the mounted root node, or InvalidNode when unmounted.
func (rt *Runtime) Root() tree.NodeID {
	if !rt.mounted {
		return tree.InvalidNode
	}
	return rt.root
}

func (rt *Runtime) drainCompletions() {
	for {
		c, ok := rt.completions.tryPop()
		if !ok {
			return
		}
		rt.applyCompletion(c)
	}
}

// register subscribes an observer and anchors its lifetime to owner.
func (rt *Runtime) register(o *Observer) {
	o.id = rt.clock.Next()
	rt.owned[o.owner] = append(rt.owned[o.owner], o)
	rt.registered[o] = true
	rt.store.Subscribe(o)
}

// flush re-runs every observer affected by the changed paths. Effects may
// change further paths; those accumulate into the batch and run in later
// rounds of the same flush. Re-entrant calls only append to the batch.
func (rt *Runtime) flush(changed []value.Path, skip *Observer) {
	rt.batch = append(rt.batch, changed...)
	if rt.inFlush {
		return
	}
	rt.inFlush = true
	defer func() { rt.inFlush = false }()

	ran := make(map[*Observer]bool)
	for len(rt.batch) > 0 {
		cur := rt.batch
		rt.batch = nil

		affected := make([]*Observer, 0)
		for _, sub := range rt.store.AffectedBy(cur) {
			o, ok := sub.(*Observer)
			if !ok {
				continue
			}
			if o == skip || ran[o] || !rt.registered[o] {
				continue
			}
			affected = append(affected, o)
		}
		// Directives run before bindings so bindings never render into
		// subtrees a directive is about to replace. Within a kind,
		// registration order keeps updates deterministic.
		sort.SliceStable(affected, func(i, j int) bool {
			if affected[i].kind != affected[j].kind {
				return affected[i].kind < affected[j].kind
			}
			return affected[i].id < affected[j].id
		})
		for _, o := range affected {
			if !rt.registered[o] {
				continue
			}
			ran[o] = true
			rt.runObserver(o)
		}
	}
	rt.logger.Debug("update turn complete", "ran", len(ran), "clock", rt.clock.Current())
}

// runObserver evaluates an observer's expression, refreshes its recorded
// dependency paths, and fires its effect if the value changed.
func (rt *Runtime) runObserver(o *Observer) {
	tracker := newPathSet()
	env := &expr.Env{Scope: o.scope, Filters: rt.filters, Tracker: tracker}
	v, p, err := o.expr.EvalPath(env)
	if err != nil {
		rt.reportError(&RenderError{Code: CodeEval, Expr: o.expr.Source(), Err: err})
		v = value.Undefined{}
	}
	o.paths = tracker.paths
	o.denoted = p

	if o.haveLast && !o.alwaysRun && sameValue(o.last, v) {
		return
	}
	o.last = v
	o.haveLast = true
	o.effect(v, p)
}

// refreshSubtree re-evaluates every observer anchored in a subtree. Reused
// loop instances whose item has no data address need this push: their loop
// variable reads record no dependency paths, so a scope update alone would
// never reach their bindings.
func (rt *Runtime) refreshSubtree(id tree.NodeID) {
	var obs []*Observer
	rt.arena.Walk(id, func(n tree.NodeID, _ *tree.Node) {
		obs = append(obs, rt.owned[n]...)
	})
	for _, o := range obs {
		if rt.registered[o] {
			rt.runObserver(o)
		}
	}
}

// destroySubtree removes a subtree and everything anchored to it:
// observers unsubscribe, pending includes and sync registrations drop, and
// the arena frees the nodes.
func (rt *Runtime) destroySubtree(id tree.NodeID) {
	rt.arena.Walk(id, func(n tree.NodeID, _ *tree.Node) {
		for _, o := range rt.owned[n] {
			rt.store.Unsubscribe(o)
			delete(rt.registered, o)
		}
		delete(rt.owned, n)
		delete(rt.syncs, n)
		delete(rt.pending, n)
	})
	rt.arena.Release(id)
}

func (rt *Runtime) reportError(err error) {
	if re, ok := err.(*RenderError); ok {
		rt.logger.Error("render error",
			"code", re.Code,
			"expr", re.Expr,
			"ref", re.Ref,
			"err", re.Err,
		)
	} else {
		rt.logger.Error("render error", "err", err)
	}
	if rt.onError != nil {
		rt.onError(err)
	}
}
