package engine

import (
	"context"

	"github.com/htql-dev/htql/internal/expr"
	"github.com/htql-dev/htql/internal/include"
	"github.com/htql-dev/htql/internal/tree"
)

// pendingInclude is an include position waiting on a fetch. The token is
// the generation check: a completion is applied only when the position is
// still alive and still waiting on the same token, so results for
// unmounted or re-expanded positions are discarded.
type pendingInclude struct {
	token string
	ref   string
	chain []string
	scope expr.Scope
}

// attachInclude converts an include element into a marker and starts an
// asynchronous fetch for its source. The rest of the tree proceeds
// without waiting; the fetched fragment splices in when the fetch settles.
func (rt *Runtime) attachInclude(id tree.NodeID, scope expr.Scope, chain []string) {
	n := rt.arena.Get(id)
	ref := n.Attrs[attrSrc]
	n.Kind = tree.KindDirective
	for _, c := range rt.arena.Children(id) {
		rt.arena.Release(c)
	}
	if ref == "" {
		rt.reportError(&RenderError{Code: CodeIncludeResolution, Ref: ref,
			Err: &include.ResolutionError{Ref: ref, Err: errNoSource}})
		return
	}

	// The cycle check runs before the fetch so a circular chain fails
	// after a bounded number of fetches rather than looping forever.
	if err := include.CheckCycle(ref, chain); err != nil {
		rt.reportError(&RenderError{Code: CodeCircularInclude, Ref: ref, Err: err})
		return
	}
	if rt.fetcher == nil {
		rt.reportError(&RenderError{Code: CodeIncludeResolution, Ref: ref,
			Err: &include.ResolutionError{Ref: ref, Err: errNoFetcher}})
		return
	}

	token := rt.tokens.Generate()
	rt.pending[id] = &pendingInclude{token: token, ref: ref, chain: chain, scope: scope}
	rt.inFlight++
	rt.logger.Debug("include fetch started", "ref", ref, "token", token)
	go func() {
		src, err := rt.fetcher.Fetch(context.Background(), ref)
		rt.completions.push(includeCompletion{node: id, token: token, src: src, err: err})
	}()
}

// applyCompletion splices a settled fetch into its waiting position, or
// discards it when the position died or moved on.
func (rt *Runtime) applyCompletion(c includeCompletion) {
	rt.inFlight--
	p, ok := rt.pending[c.node]
	if !ok || p.token != c.token || !rt.arena.Alive(c.node) {
		rt.logger.Debug("stale include completion discarded", "token", c.token)
		return
	}
	delete(rt.pending, c.node)

	if c.err != nil {
		rt.reportError(&RenderError{Code: CodeIncludeResolution, Ref: p.ref,
			Err: &include.ResolutionError{Ref: p.ref, Err: c.err}})
		return
	}
	frag, err := rt.parse(rt.arena, c.src)
	if err != nil {
		rt.reportError(&RenderError{Code: CodeIncludeResolution, Ref: p.ref,
			Err: &include.ResolutionError{Ref: p.ref, Err: err}})
		return
	}
	childChain := include.ExtendChain(p.chain, p.ref)
	for _, k := range rt.arena.Children(frag) {
		rt.arena.AppendChild(c.node, k)
	}
	rt.arena.Release(frag)
	rt.attachChildren(c.node, p.scope, childChain)
}

var (
	errNoSource  = &UsageError{Message: "include has no src attribute"}
	errNoFetcher = &UsageError{Message: "no include fetcher configured"}
)
