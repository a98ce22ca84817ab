package expr

import (
	"github.com/htql-dev/htql/internal/value"
)

// Scope resolves bare identifiers during evaluation.
//
// Lookup returns the identifier's current value and the data path it
// denotes. Missing identifiers resolve to Undefined with the identifier
// itself as the path, so the read is still recorded and the observer
// re-evaluates when that key later appears.
type Scope interface {
	Lookup(name string) (value.Value, value.Path)
}

// ContextSource supplies the current root data mapping.
// Implemented by the data context store; kept as an interface here so the
// evaluator carries no dependency on the store.
type ContextSource interface {
	Root() value.Mapping
}

// RootScope resolves identifiers directly against the data context root.
type RootScope struct {
	Source ContextSource
}

// Lookup implements Scope.
func (s RootScope) Lookup(name string) (value.Value, value.Path) {
	return value.Member(s.Source.Root(), name), value.Path(name)
}

// ShadowScope shadows one name over a parent scope. Used for repeat loop
// variables: the item value shadows the name, and reads through it are
// attributed to the item's path within the collection (over-subscription
// keeps the observer's dependency set a superset of what it read).
//
// Reconciliation updates a surviving item's scope in place via Set, so the
// bindings inside the reused subtree see the item's current value without
// being recreated.
type ShadowScope struct {
	parent Scope
	name   string
	val    value.Value
	path   value.Path
}

// Shadow returns a scope in which name resolves to val at path, and every
// other identifier resolves through parent.
func Shadow(parent Scope, name string, val value.Value, path value.Path) *ShadowScope {
	return &ShadowScope{parent: parent, name: name, val: val, path: path}
}

// Set replaces the shadowed value and path.
func (s *ShadowScope) Set(val value.Value, path value.Path) {
	s.val = val
	s.path = path
}

// Lookup implements Scope.
func (s *ShadowScope) Lookup(name string) (value.Value, value.Path) {
	if name == s.name {
		return s.val, s.path
	}
	return s.parent.Lookup(name)
}

// Tracker records data paths read during an evaluation.
// Installed in the Env while an observer re-evaluates; nil otherwise.
type Tracker interface {
	Record(p value.Path)
}

// Env carries everything an evaluation reads: the identifier scope, the
// registered filter table, and an optional dependency tracker.
type Env struct {
	Scope   Scope
	Filters Filters
	Tracker Tracker
}

func (env *Env) record(p value.Path) {
	if env.Tracker != nil {
		env.Tracker.Record(p)
	}
}

// Eval evaluates the compiled expression against env.
// Evaluation only reads; it never mutates the data context. The only error
// returned is *EvalError (filter failures) - everything else degrades to
// Undefined per the grammar's missing-data semantics.
func (e *Expression) Eval(env *Env) (value.Value, error) {
	v, _, err := e.root.eval(e, env)
	return v, err
}

// EvalPath is Eval that additionally reports the data path the expression
// denotes when it is addressable (a bare identifier or a member/index
// chain over one), or "" otherwise. Repeat collections and data-sync
// targets need the path; plain bindings use Eval.
func (e *Expression) EvalPath(env *Env) (value.Value, value.Path, error) {
	return e.root.eval(e, env)
}

// node is an AST node. eval returns the node's value and, for
// path-addressable nodes (identifiers and member/index chains over them),
// the data path the node denotes. Non-addressable nodes return path "".
type node interface {
	eval(e *Expression, env *Env) (value.Value, value.Path, error)
}

type numberNode struct{ n float64 }

func (nd *numberNode) eval(*Expression, *Env) (value.Value, value.Path, error) {
	return value.Number(nd.n), "", nil
}

type stringNode struct{ s string }

func (nd *stringNode) eval(*Expression, *Env) (value.Value, value.Path, error) {
	return value.String(nd.s), "", nil
}

type boolNode struct{ b bool }

func (nd *boolNode) eval(*Expression, *Env) (value.Value, value.Path, error) {
	return value.Bool(nd.b), "", nil
}

type nullNode struct{}

func (nd *nullNode) eval(*Expression, *Env) (value.Value, value.Path, error) {
	return value.Null{}, "", nil
}

type identNode struct{ name string }

func (nd *identNode) eval(_ *Expression, env *Env) (value.Value, value.Path, error) {
	v, p := env.Scope.Lookup(nd.name)
	env.record(p)
	return v, p, nil
}

type memberNode struct {
	base node
	name string
}

func (nd *memberNode) eval(e *Expression, env *Env) (value.Value, value.Path, error) {
	base, basePath, err := nd.base.eval(e, env)
	if err != nil {
		return nil, "", err
	}
	var p value.Path
	if basePath != "" {
		p = basePath.Join(nd.name)
		env.record(p)
	}
	return value.Member(base, nd.name), p, nil
}

type indexNode struct {
	base  node
	index node
}

func (nd *indexNode) eval(e *Expression, env *Env) (value.Value, value.Path, error) {
	base, basePath, err := nd.base.eval(e, env)
	if err != nil {
		return nil, "", err
	}
	idx, _, err := nd.index.eval(e, env)
	if err != nil {
		return nil, "", err
	}
	var p value.Path
	if basePath != "" {
		p = basePath.Join(value.Format(idx))
		env.record(p)
	}
	switch iv := idx.(type) {
	case value.Number:
		return value.Index(base, int(iv)), p, nil
	case value.String:
		return value.Member(base, string(iv)), p, nil
	default:
		return value.Undefined{}, p, nil
	}
}

type unaryNode struct {
	op      string
	operand node
}

func (nd *unaryNode) eval(e *Expression, env *Env) (value.Value, value.Path, error) {
	v, _, err := nd.operand.eval(e, env)
	if err != nil {
		return nil, "", err
	}
	switch nd.op {
	case "!":
		return value.Bool(!value.Truthy(v)), "", nil
	default: // "-"
		if n, ok := v.(value.Number); ok {
			return -n, "", nil
		}
		return value.Undefined{}, "", nil
	}
}

type binaryNode struct {
	op          string
	left, right node
}

func (nd *binaryNode) eval(e *Expression, env *Env) (value.Value, value.Path, error) {
	left, _, err := nd.left.eval(e, env)
	if err != nil {
		return nil, "", err
	}

	// Boolean operators short-circuit; the right operand's reads are still
	// recorded only when it actually evaluates.
	switch nd.op {
	case "&&":
		if !value.Truthy(left) {
			return value.Bool(false), "", nil
		}
		right, _, err := nd.right.eval(e, env)
		if err != nil {
			return nil, "", err
		}
		return value.Bool(value.Truthy(right)), "", nil
	case "||":
		if value.Truthy(left) {
			return value.Bool(true), "", nil
		}
		right, _, err := nd.right.eval(e, env)
		if err != nil {
			return nil, "", err
		}
		return value.Bool(value.Truthy(right)), "", nil
	}

	right, _, err := nd.right.eval(e, env)
	if err != nil {
		return nil, "", err
	}

	switch nd.op {
	case "==":
		return value.Bool(value.Equal(left, right)), "", nil
	case "!=":
		// Any comparison touching Undefined is false, != included: a
		// template must not render a "not equal" branch just because the
		// data has not arrived yet.
		if isUndefined(left) || isUndefined(right) {
			return value.Bool(false), "", nil
		}
		return value.Bool(!value.Equal(left, right)), "", nil
	case "<", "<=", ">", ">=":
		cmp, ok := value.Compare(left, right)
		if !ok {
			return value.Bool(false), "", nil
		}
		switch nd.op {
		case "<":
			return value.Bool(cmp < 0), "", nil
		case "<=":
			return value.Bool(cmp <= 0), "", nil
		case ">":
			return value.Bool(cmp > 0), "", nil
		default:
			return value.Bool(cmp >= 0), "", nil
		}
	default:
		return evalArithmetic(nd.op, left, right), "", nil
	}
}

// evalArithmetic applies + - * / with Undefined propagation: an Undefined
// operand short-circuits the whole chain to Undefined instead of erroring.
// + concatenates when both operands are strings.
func evalArithmetic(op string, left, right value.Value) value.Value {
	if isUndefined(left) || isUndefined(right) {
		return value.Undefined{}
	}
	if op == "+" {
		if ls, ok := left.(value.String); ok {
			if rs, ok := right.(value.String); ok {
				return ls + rs
			}
		}
	}
	ln, lok := left.(value.Number)
	rn, rok := right.(value.Number)
	if !lok || !rok {
		return value.Undefined{}
	}
	switch op {
	case "+":
		return ln + rn
	case "-":
		return ln - rn
	case "*":
		return ln * rn
	default: // "/"
		return ln / rn
	}
}

func isUndefined(v value.Value) bool {
	_, ok := v.(value.Undefined)
	return ok
}

type pipeNode struct {
	input node
	name  string
	args  []node
}

func (nd *pipeNode) eval(e *Expression, env *Env) (value.Value, value.Path, error) {
	in, _, err := nd.input.eval(e, env)
	if err != nil {
		return nil, "", err
	}
	filter, ok := env.Filters[nd.name]
	if !ok {
		return nil, "", &EvalError{Source: e.source, Filter: nd.name, Message: "unknown filter"}
	}
	args := make([]value.Value, len(nd.args))
	for i, argNode := range nd.args {
		arg, _, err := argNode.eval(e, env)
		if err != nil {
			return nil, "", err
		}
		args[i] = arg
	}
	out, err := filter(in, args...)
	if err != nil {
		return nil, "", &EvalError{Source: e.source, Filter: nd.name, Message: err.Error(), Err: err}
	}
	return out, "", nil
}
