package engine

import (
	"strconv"
	"strings"

	"github.com/htql-dev/htql/internal/expr"
	"github.com/htql-dev/htql/internal/tree"
	"github.com/htql-dev/htql/internal/value"
)

// item markers anchor one repeat or while instance so keyed reconciliation
// can move a whole instance by moving one handle.
const tagItem = "item"

// detachTemplate moves all of id's current children into a fresh detached
// marker. Directive expansion clones the template per instance; the
// original children never render directly.
func (rt *Runtime) detachTemplate(id tree.NodeID) tree.NodeID {
	tpl := rt.arena.NewMarker("template", nil)
	for _, c := range rt.arena.Children(id) {
		rt.arena.AppendChild(tpl, c)
	}
	return tpl
}

// instantiate clones a template and appends the clone's children to
// parent, returning nothing: the template container itself never enters
// the live tree.
func (rt *Runtime) instantiate(tpl, parent tree.NodeID) {
	if tpl == tree.InvalidNode {
		return
	}
	inst := rt.arena.Clone(tpl)
	for _, c := range rt.arena.Children(inst) {
		rt.arena.AppendChild(parent, c)
	}
	rt.arena.Release(inst)
}

const (
	branchNone = iota
	branchThen
	branchElse
)

// attachIf converts an if element into a marker that holds exactly one
// expanded branch at a time. alt is an immediately following else sibling,
// or InvalidNode; a trailing else child inside the if body is recognized
// too, so both authoring shapes work.
func (rt *Runtime) attachIf(id tree.NodeID, scope expr.Scope, chain []string, alt tree.NodeID) {
	n := rt.arena.Get(id)
	condSrc := n.Attrs[attrCond]
	n.Kind = tree.KindDirective

	// Partition the body at an inline else child.
	thenTpl := rt.arena.NewMarker("template", nil)
	elseTpl := rt.arena.NewMarker("template", nil)
	target := thenTpl
	for _, c := range rt.arena.Children(id) {
		if cn := rt.arena.Get(c); cn != nil && cn.Kind == tree.KindElement && cn.Tag == tagElse {
			target = elseTpl
			for _, ec := range rt.arena.Children(c) {
				rt.arena.AppendChild(elseTpl, ec)
			}
			rt.arena.Release(c)
			continue
		}
		rt.arena.AppendChild(target, c)
	}
	if alt != tree.InvalidNode {
		for _, ec := range rt.arena.Children(alt) {
			rt.arena.AppendChild(elseTpl, ec)
		}
		rt.arena.Release(alt)
	}

	ex, err := expr.Compile(condSrc)
	if err != nil {
		rt.reportError(&RenderError{Code: CodeSyntax, Expr: condSrc, Err: err})
		rt.arena.Release(thenTpl)
		rt.arena.Release(elseTpl)
		return
	}

	active := branchNone
	o := &Observer{
		kind:  ObserverDirective,
		owner: id,
		expr:  ex,
		scope: scope,
		effect: func(v value.Value, _ value.Path) {
			want := branchElse
			if value.Truthy(v) {
				want = branchThen
			}
			if want == active {
				return
			}
			for _, c := range rt.arena.Children(id) {
				rt.destroySubtree(c)
			}
			active = want
			if want == branchThen {
				rt.instantiate(thenTpl, id)
			} else {
				rt.instantiate(elseTpl, id)
			}
			rt.attachChildren(id, scope, chain)
		},
	}
	rt.register(o)
	rt.runObserver(o)
}

// repeatGroup is one live loop instance: the marker anchoring its subtree
// and the scope its bindings resolve the loop variable through.
type repeatGroup struct {
	key   string
	node  tree.NodeID
	scope *expr.ShadowScope
}

// attachRepeat converts a repeat element into a marker whose children are
// one item marker per collection element, reconciled by key.
func (rt *Runtime) attachRepeat(id tree.NodeID, scope expr.Scope, chain []string) {
	n := rt.arena.Get(id)
	eachSrc := n.Attrs[attrEach]
	keySrc, hasKey := n.Attrs[attrKey]
	n.Kind = tree.KindDirective

	itemName, collSrc, ok := strings.Cut(eachSrc, " in ")
	itemName = strings.TrimSpace(itemName)
	collSrc = strings.TrimSpace(collSrc)
	if !ok || itemName == "" || collSrc == "" {
		rt.reportError(&RenderError{Code: CodeSyntax, Expr: eachSrc,
			Err: &UsageError{Message: `each must have the form "ident in expr"`}})
		for _, c := range rt.arena.Children(id) {
			rt.arena.Release(c)
		}
		return
	}

	tpl := rt.detachTemplate(id)
	collExpr, err := expr.Compile(collSrc)
	if err != nil {
		rt.reportError(&RenderError{Code: CodeSyntax, Expr: collSrc, Err: err})
		rt.arena.Release(tpl)
		return
	}
	var keyExpr *expr.Expression
	if hasKey {
		keyExpr, err = expr.Compile(keySrc)
		if err != nil {
			rt.reportError(&RenderError{Code: CodeSyntax, Expr: keySrc, Err: err})
			keyExpr = nil
		}
	}

	var groups []repeatGroup
	o := &Observer{
		kind:  ObserverDirective,
		owner: id,
		expr:  collExpr,
		scope: scope,
		// Always reconcile when affected: two sequences can compare
		// unequal element-wise even when the top value pointer survived a
		// deep write, and vice versa.
		alwaysRun: true,
		effect: func(v value.Value, collPath value.Path) {
			seq, _ := v.(value.Sequence)
			groups = rt.reconcileRepeat(id, scope, chain, tpl, itemName, keyExpr, seq, collPath, groups)
		},
	}
	rt.register(o)
	rt.runObserver(o)
}

// reconcileRepeat diffs the previous item groups against the new sequence
// by key: surviving keys keep their subtree and get their scope updated in
// place, new keys instantiate the template, removed keys destroy their
// subtree and everything observing through it.
func (rt *Runtime) reconcileRepeat(id tree.NodeID, scope expr.Scope, chain []string,
	tpl tree.NodeID, itemName string, keyExpr *expr.Expression,
	seq value.Sequence, collPath value.Path, prev []repeatGroup) []repeatGroup {

	keys := rt.itemKeys(scope, itemName, keyExpr, seq, collPath)

	old := make(map[string]repeatGroup, len(prev))
	for _, g := range prev {
		old[g.key] = g
	}

	next := make([]repeatGroup, 0, len(seq))
	children := make([]tree.NodeID, 0, len(seq))
	fresh := make([]repeatGroup, 0)
	kept := make(map[tree.NodeID]bool, len(seq))
	for i, item := range seq {
		p := itemPath(collPath, i)
		if g, ok := old[keys[i]]; ok && !kept[g.node] {
			g.scope.Set(item, p)
			kept[g.node] = true
			next = append(next, g)
			children = append(children, g.node)
			if p == "" {
				rt.refreshSubtree(g.node)
			}
			continue
		}
		itemScope := expr.Shadow(scope, itemName, item, p)
		marker := rt.arena.NewMarker(tagItem, nil)
		rt.instantiate(tpl, marker)
		g := repeatGroup{key: keys[i], node: marker, scope: itemScope}
		next = append(next, g)
		children = append(children, marker)
		fresh = append(fresh, g)
	}
	for _, g := range prev {
		if !kept[g.node] {
			rt.destroySubtree(g.node)
		}
	}
	rt.arena.SetChildren(id, children)
	// Attach new instances only once they sit in the live tree, so
	// nested directives resolve against their final position.
	for _, g := range fresh {
		rt.attachChildren(g.node, g.scope, chain)
	}
	return next
}

// itemKeys computes the reconciliation key per element: the key expression
// evaluated in the item's scope when one is declared, the positional index
// otherwise. Duplicate keys are disambiguated by occurrence count so every
// group stays individually addressable.
func (rt *Runtime) itemKeys(scope expr.Scope, itemName string, keyExpr *expr.Expression,
	seq value.Sequence, collPath value.Path) []string {

	keys := make([]string, len(seq))
	seen := make(map[string]int, len(seq))
	for i, item := range seq {
		var k string
		if keyExpr != nil {
			env := &expr.Env{
				Scope:   expr.Shadow(scope, itemName, item, itemPath(collPath, i)),
				Filters: rt.filters,
			}
			kv, err := keyExpr.Eval(env)
			if err != nil {
				rt.reportError(&RenderError{Code: CodeEval, Expr: keyExpr.Source(), Err: err})
				kv = value.Undefined{}
			}
			k = "k:" + value.Key(kv)
		} else {
			k = "i:" + strconv.Itoa(i)
		}
		if c := seen[k]; c > 0 {
			keys[i] = k + "#" + strconv.Itoa(c)
		} else {
			keys[i] = k
		}
		seen[k]++
	}
	return keys
}

func itemPath(collPath value.Path, i int) value.Path {
	if collPath == "" {
		return ""
	}
	return collPath.Join(strconv.Itoa(i))
}

// attachWhile converts a while element into a marker re-expanded from
// scratch on every affected update: the condition is re-evaluated per
// iteration with an index loop variable, bounded by the configured
// iteration limit.
func (rt *Runtime) attachWhile(id tree.NodeID, scope expr.Scope, chain []string) {
	n := rt.arena.Get(id)
	condSrc := n.Attrs[attrCond]
	n.Kind = tree.KindDirective

	tpl := rt.detachTemplate(id)
	ex, err := expr.Compile(condSrc)
	if err != nil {
		rt.reportError(&RenderError{Code: CodeSyntax, Expr: condSrc, Err: err})
		rt.arena.Release(tpl)
		return
	}

	// The observer evaluates iteration zero; its tracked reads are what
	// re-trigger expansion. Later iterations re-evaluate inside the
	// effect under the iteration guard.
	condScope := expr.Shadow(scope, "index", value.Number(0), "")
	o := &Observer{
		kind:      ObserverDirective,
		owner:     id,
		expr:      ex,
		scope:     condScope,
		alwaysRun: true,
		effect: func(v value.Value, _ value.Path) {
			for _, c := range rt.arena.Children(id) {
				rt.destroySubtree(c)
			}
			guard := newIterGuard(rt.maxIterations, condSrc)
			for i := 0; ; i++ {
				if err := guard.check(); err != nil {
					rt.reportError(&RenderError{Code: CodeInfiniteLoop, Expr: condSrc, Err: err})
					break
				}
				cond := v
				if i > 0 {
					iterScope := expr.Shadow(scope, "index", value.Number(i), "")
					cv, err := ex.Eval(&expr.Env{Scope: iterScope, Filters: rt.filters})
					if err != nil {
						rt.reportError(&RenderError{Code: CodeEval, Expr: condSrc, Err: err})
						break
					}
					cond = cv
				}
				if !value.Truthy(cond) {
					break
				}
				iterScope := expr.Shadow(scope, "index", value.Number(i), "")
				marker := rt.arena.NewMarker(tagItem, nil)
				rt.instantiate(tpl, marker)
				rt.arena.AppendChild(id, marker)
				rt.attachChildren(marker, iterScope, chain)
			}
		},
	}
	rt.register(o)
	rt.runObserver(o)
}
