package engine

import (
	"sort"
	"strings"

	"github.com/htql-dev/htql/internal/expr"
	"github.com/htql-dev/htql/internal/tree"
	"github.com/htql-dev/htql/internal/value"
)

// Directive and binding attribute vocabulary. Anything else passes
// through to the output untouched.
const (
	tagInclude = "include"
	tagIf      = "if"
	tagElse    = "else"
	tagRepeat  = "repeat"
	tagWhile   = "while"

	attrSrc     = "src"
	attrCond    = "cond"
	attrEach    = "each"
	attrKey     = "key"
	attrBind    = "data-bind"
	attrBindPre = "data-bind-"
	attrSync    = "data-sync"
	attrSyncOut = "value"
)

// attach expands one freshly added node: directives convert into marker
// anchors with observers, ordinary elements get their bindings registered
// and their children attached recursively.
func (rt *Runtime) attach(id tree.NodeID, scope expr.Scope, chain []string) {
	n := rt.arena.Get(id)
	if n == nil {
		return
	}
	switch n.Kind {
	case tree.KindText:
		return
	case tree.KindDirective:
		// Already-expanded markers never reach attach; templates are
		// detached before their source directive converts.
		return
	}
	switch n.Tag {
	case tagInclude:
		rt.attachInclude(id, scope, chain)
	case tagIf:
		rt.attachIf(id, scope, chain, tree.InvalidNode)
	case tagElse:
		// An else only means something directly after an if; pairing
		// happens in attachChildren. A stray one renders nothing.
		rt.destroySubtree(id)
	case tagRepeat:
		rt.attachRepeat(id, scope, chain)
	case tagWhile:
		rt.attachWhile(id, scope, chain)
	default:
		rt.attachBindings(id, scope)
		rt.attachChildren(id, scope, chain)
	}
}

// attachChildren attaches every child of id, pairing each if element with
// an immediately following else sibling.
func (rt *Runtime) attachChildren(id tree.NodeID, scope expr.Scope, chain []string) {
	kids := rt.arena.Children(id)
	for i := 0; i < len(kids); i++ {
		n := rt.arena.Get(kids[i])
		if n == nil {
			continue
		}
		if n.Kind == tree.KindElement && n.Tag == tagIf {
			ifNode := kids[i]
			alt := tree.InvalidNode
			if i+1 < len(kids) {
				if sib := rt.arena.Get(kids[i+1]); sib != nil && sib.Kind == tree.KindElement && sib.Tag == tagElse {
					alt = kids[i+1]
					i++
				}
			}
			rt.attachIf(ifNode, scope, chain, alt)
			continue
		}
		rt.attach(kids[i], scope, chain)
	}
}

// attachBindings registers the binding observers declared by id's
// attributes. Attribute names are visited in sorted order so observer
// registration, and therefore update order, is deterministic.
func (rt *Runtime) attachBindings(id tree.NodeID, scope expr.Scope) {
	n := rt.arena.Get(id)
	names := make([]string, 0, len(n.Attrs))
	for name := range n.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src := n.Attrs[name]
		switch {
		case name == attrBind:
			rt.bindText(id, scope, src)
		case strings.HasPrefix(name, attrBindPre):
			rt.bindAttr(id, scope, strings.TrimPrefix(name, attrBindPre), src)
		case name == attrSync:
			rt.bindSync(id, scope, src)
		}
	}
}

// compileBinding compiles src, reporting syntax failures as render errors.
func (rt *Runtime) compileBinding(src string) (*expr.Expression, bool) {
	ex, err := expr.Compile(src)
	if err != nil {
		rt.reportError(&RenderError{Code: CodeSyntax, Expr: src, Err: err})
		return nil, false
	}
	return ex, true
}

// bindText keeps id's content equal to the formatted expression value,
// maintained as a single text child.
func (rt *Runtime) bindText(id tree.NodeID, scope expr.Scope, src string) {
	ex, ok := rt.compileBinding(src)
	if !ok {
		return
	}
	o := &Observer{
		kind:  ObserverBinding,
		owner: id,
		expr:  ex,
		scope: scope,
		effect: func(v value.Value, _ value.Path) {
			rt.setText(id, value.Format(v))
		},
	}
	rt.register(o)
	rt.runObserver(o)
}

// bindAttr keeps the named attribute of id equal to the formatted
// expression value.
func (rt *Runtime) bindAttr(id tree.NodeID, scope expr.Scope, attr, src string) {
	ex, ok := rt.compileBinding(src)
	if !ok {
		return
	}
	o := &Observer{
		kind:  ObserverBinding,
		owner: id,
		expr:  ex,
		scope: scope,
		effect: func(v value.Value, _ value.Path) {
			if n := rt.arena.Get(id); n != nil {
				n.Attrs[attr] = value.Format(v)
			}
		},
	}
	rt.register(o)
	rt.runObserver(o)
}

// bindSync is bindAttr on the value attribute plus a write-back channel:
// Input writes the node's edited value to the expression's data path. The
// expression must be addressable or write-back reports an error once at
// attach time.
func (rt *Runtime) bindSync(id tree.NodeID, scope expr.Scope, src string) {
	ex, ok := rt.compileBinding(src)
	if !ok {
		return
	}
	o := &Observer{
		kind:  ObserverBinding,
		owner: id,
		expr:  ex,
		scope: scope,
		effect: func(v value.Value, _ value.Path) {
			if n := rt.arena.Get(id); n != nil {
				n.Attrs[attrSyncOut] = value.Format(v)
			}
		},
	}
	rt.register(o)
	rt.runObserver(o)
	if o.denoted == "" {
		rt.reportError(&RenderError{Code: CodeEval, Expr: src,
			Err: &UsageError{Message: "data-sync target is not addressable"}})
		return
	}
	rt.syncs[id] = o
}

// setText replaces id's content with a single text child, reusing an
// existing lone text child in place.
func (rt *Runtime) setText(id tree.NodeID, text string) {
	kids := rt.arena.Children(id)
	if len(kids) == 1 {
		if c := rt.arena.Get(kids[0]); c != nil && c.Kind == tree.KindText {
			c.Text = text
			return
		}
	}
	for _, c := range kids {
		rt.destroySubtree(c)
	}
	rt.arena.AppendChild(id, rt.arena.NewText(text))
}
