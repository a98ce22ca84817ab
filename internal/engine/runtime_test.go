package engine

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htql-dev/htql/internal/data"
	"github.com/htql-dev/htql/internal/expr"
	"github.com/htql-dev/htql/internal/markup"
	"github.com/htql-dev/htql/internal/tree"
	"github.com/htql-dev/htql/internal/value"
)

// mount parses a template, mounts it against the initial context, and
// returns the runtime plus the pieces tests inspect directly.
func mount(t *testing.T, tpl string, initial value.Mapping, opts ...Option) (*Runtime, *tree.Arena, *data.Store) {
	t.Helper()
	a := tree.NewArena()
	st := data.NewStore(nil)
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	rt := New(a, st, markup.Parse, opts...)
	root, err := markup.Parse(a, tpl)
	require.NoError(t, err)
	require.NoError(t, rt.Mount(root, initial))
	return rt, a, st
}

// findByTag returns the first live node with the given tag in document
// order under root.
func findByTag(a *tree.Arena, root tree.NodeID, tag string) tree.NodeID {
	found := tree.InvalidNode
	a.Walk(root, func(id tree.NodeID, n *tree.Node) {
		if found == tree.InvalidNode && n.Tag == tag {
			found = id
		}
	})
	return found
}

func TestMountRendersBinding(t *testing.T) {
	rt, _, _ := mount(t, `<span data-bind="user.name"></span>`, value.Mapping{
		"user": value.Mapping{"name": value.String("Ana")},
	})
	assert.Equal(t, `<span data-bind="user.name">Ana</span>`, rt.HTML())
}

func TestMountTwiceFails(t *testing.T) {
	rt, a, _ := mount(t, `<span></span>`, nil)
	root, err := markup.Parse(a, `<b></b>`)
	require.NoError(t, err)
	err = rt.Mount(root, nil)
	assert.ErrorIs(t, err, ErrAlreadyMounted)
	assert.True(t, IsUsageError(err))
}

func TestMutationBeforeMountFails(t *testing.T) {
	a := tree.NewArena()
	rt := New(a, data.NewStore(nil), markup.Parse)
	assert.ErrorIs(t, rt.SetData(value.Mapping{"x": value.Number(1)}), ErrNotMounted)
	assert.ErrorIs(t, rt.SetPath("x", value.Number(1)), ErrNotMounted)
	assert.ErrorIs(t, rt.Unmount(), ErrNotMounted)
}

func TestSetDataUpdatesBinding(t *testing.T) {
	rt, _, _ := mount(t, `<span data-bind="user.name"></span>`, value.Mapping{
		"user": value.Mapping{"name": value.String("Ana")},
	})
	require.NoError(t, rt.SetData(value.Mapping{
		"user": value.Mapping{"name": value.String("Bei")},
	}))
	assert.Equal(t, `<span data-bind="user.name">Bei</span>`, rt.HTML())
}

func TestAttributeBinding(t *testing.T) {
	rt, _, _ := mount(t, `<a data-bind-href="link"></a>`, value.Mapping{
		"link": value.String("/home"),
	})
	assert.Equal(t, `<a data-bind-href="link" href="/home"></a>`, rt.HTML())

	require.NoError(t, rt.SetData(value.Mapping{"link": value.String("/away")}))
	assert.Equal(t, `<a data-bind-href="link" href="/away"></a>`, rt.HTML())
}

func TestBindingOnMissingDataRendersEmpty(t *testing.T) {
	rt, _, _ := mount(t, `<span data-bind="missing.deep.path"></span>`, nil)
	assert.Equal(t, `<span data-bind="missing.deep.path"></span>`, rt.HTML())

	// The missing path was still recorded, so the binding catches up when
	// the data arrives.
	require.NoError(t, rt.SetData(value.Mapping{
		"missing": value.Mapping{"deep": value.Mapping{"path": value.String("late")}},
	}))
	assert.Equal(t, `<span data-bind="missing.deep.path">late</span>`, rt.HTML())
}

func TestBindingSyntaxErrorIsolated(t *testing.T) {
	var errs []error
	rt, _, _ := mount(t, `<span data-bind="user.."></span><b data-bind="ok"></b>`,
		value.Mapping{"ok": value.String("fine")},
		WithErrorHandler(func(err error) { errs = append(errs, err) }))

	require.Len(t, errs, 1)
	assert.True(t, IsRenderError(errs[0], CodeSyntax))
	assert.Contains(t, rt.HTML(), `>fine</b>`)
}

func TestUnknownFilterDegradesToEmpty(t *testing.T) {
	var errs []error
	rt, _, _ := mount(t, `<span data-bind="name | nope"></span>`,
		value.Mapping{"name": value.String("Ana")},
		WithErrorHandler(func(err error) { errs = append(errs, err) }))

	require.Len(t, errs, 1)
	assert.True(t, IsRenderError(errs[0], CodeEval))
	assert.Equal(t, `<span data-bind="name | nope"></span>`, rt.HTML())
}

func TestCustomFilter(t *testing.T) {
	shout := func(v value.Value, _ ...value.Value) (value.Value, error) {
		return value.String(value.Format(v) + "!"), nil
	}
	rt, _, _ := mount(t, `<span data-bind="name | shout"></span>`,
		value.Mapping{"name": value.String("hey")},
		WithFilters(expr.Filters{"shout": shout}))
	assert.Contains(t, rt.HTML(), ">hey!</span>")
}

func TestObserverSkipsUnchangedValue(t *testing.T) {
	a := tree.NewArena()
	st := data.NewStore(value.Mapping{
		"user": value.Mapping{"name": value.String("Ana"), "age": value.Number(30)},
	})
	rt := New(a, st, markup.Parse, WithLogger(slog.New(slog.DiscardHandler)))
	root, err := markup.Parse(a, `<div></div>`)
	require.NoError(t, err)
	require.NoError(t, rt.Mount(root, nil))

	runs := 0
	o := &Observer{
		kind:  ObserverBinding,
		owner: root,
		expr:  expr.MustCompile("user.name"),
		scope: &expr.RootScope{Source: st},
		effect: func(value.Value, value.Path) {
			runs++
		},
	}
	rt.register(o)
	rt.runObserver(o)
	require.Equal(t, 1, runs)

	// Replacing user wholesale affects the observer via the prefix
	// relation, but the resolved name is unchanged, so the effect skips.
	rt.flush(st.SetData(value.Mapping{
		"user": value.Mapping{"name": value.String("Ana"), "age": value.Number(31)},
	}), nil)
	assert.Equal(t, 1, runs)

	rt.flush(st.SetData(value.Mapping{
		"user": value.Mapping{"name": value.String("Bei"), "age": value.Number(31)},
	}), nil)
	assert.Equal(t, 2, runs)
}

func TestFlushRunsDirectivesBeforeBindings(t *testing.T) {
	a := tree.NewArena()
	st := data.NewStore(value.Mapping{"x": value.Number(1)})
	rt := New(a, st, markup.Parse, WithLogger(slog.New(slog.DiscardHandler)))
	root, err := markup.Parse(a, `<div></div>`)
	require.NoError(t, err)
	require.NoError(t, rt.Mount(root, nil))

	var order []string
	scope := &expr.RootScope{Source: st}
	binding := &Observer{
		kind: ObserverBinding, owner: root, expr: expr.MustCompile("x"), scope: scope,
		effect: func(value.Value, value.Path) { order = append(order, "binding") },
	}
	directive := &Observer{
		kind: ObserverDirective, owner: root, expr: expr.MustCompile("x"), scope: scope,
		alwaysRun: true,
		effect:    func(value.Value, value.Path) { order = append(order, "directive") },
	}
	// Register the binding first: kind ordering must win over
	// registration order.
	rt.register(binding)
	rt.runObserver(binding)
	rt.register(directive)
	rt.runObserver(directive)
	order = nil

	rt.flush(st.SetData(value.Mapping{"x": value.Number(2)}), nil)
	assert.Equal(t, []string{"directive", "binding"}, order)
}

func TestFlushRunsEachObserverOncePerTurn(t *testing.T) {
	a := tree.NewArena()
	st := data.NewStore(value.Mapping{
		"a": value.Number(1), "b": value.Number(2),
	})
	rt := New(a, st, markup.Parse, WithLogger(slog.New(slog.DiscardHandler)))
	root, err := markup.Parse(a, `<div></div>`)
	require.NoError(t, err)
	require.NoError(t, rt.Mount(root, nil))

	runs := 0
	o := &Observer{
		kind: ObserverBinding, owner: root,
		expr:   expr.MustCompile("a + b"),
		scope:  &expr.RootScope{Source: st},
		effect: func(value.Value, value.Path) { runs++ },
	}
	rt.register(o)
	rt.runObserver(o)
	require.Equal(t, 1, runs)

	// Both dependencies change in one batch; the observer re-evaluates
	// exactly once.
	rt.flush(st.SetData(value.Mapping{
		"a": value.Number(10), "b": value.Number(20),
	}), nil)
	assert.Equal(t, 2, runs)
}

func TestDataSyncRendersAndWritesBack(t *testing.T) {
	rt, a, st := mount(t, `<input data-sync="form.email"><span data-bind="form.email"></span>`,
		value.Mapping{"form": value.Mapping{"email": value.String("a@x")}})

	input := findByTag(a, rt.Root(), "input")
	require.NotEqual(t, tree.InvalidNode, input)
	assert.Equal(t, "a@x", a.Get(input).Attrs["value"])

	// A user edit writes through to the context and re-renders readers,
	// but must not echo back into the edited node in the same tick.
	require.NoError(t, rt.Input(input, value.String("b@x")))
	assert.Equal(t, value.String("b@x"),
		value.Member(value.Member(st.Root(), "form"), "email"))
	assert.Contains(t, rt.HTML(), ">b@x</span>")
	assert.Equal(t, "a@x", a.Get(input).Attrs["value"])

	// An external write does land on the node.
	require.NoError(t, rt.SetPath("form.email", value.String("c@x")))
	assert.Equal(t, "c@x", a.Get(input).Attrs["value"])
}

func TestDataSyncWritesLeafNotContainer(t *testing.T) {
	rt, a, st := mount(t, `<input data-sync="form.email"><span data-bind="form.name"></span>`,
		value.Mapping{"form": value.Mapping{
			"email": value.String("a@x"),
			"name":  value.String("Ana"),
		}})

	input := findByTag(a, rt.Root(), "input")
	require.NoError(t, rt.Input(input, value.String("b@x")))

	// The write lands on the bound leaf; sibling fields under the same
	// container are untouched.
	form := value.Member(st.Root(), "form")
	assert.Equal(t, value.String("b@x"), value.Member(form, "email"))
	assert.Equal(t, value.String("Ana"), value.Member(form, "name"))
	assert.Contains(t, rt.HTML(), ">Ana</span>")
}

func TestDataSyncNonAddressableReported(t *testing.T) {
	var errs []error
	rt, a, _ := mount(t, `<input data-sync="a + b">`,
		value.Mapping{"a": value.Number(1), "b": value.Number(2)},
		WithErrorHandler(func(err error) { errs = append(errs, err) }))

	require.Len(t, errs, 1)
	assert.True(t, IsRenderError(errs[0], CodeEval))

	input := findByTag(a, rt.Root(), "input")
	err := rt.Input(input, value.String("x"))
	assert.True(t, IsUsageError(err))
}

func TestInputWithoutSyncFails(t *testing.T) {
	rt, a, _ := mount(t, `<span data-bind="x"></span>`, nil)
	span := findByTag(a, rt.Root(), "span")
	assert.True(t, IsUsageError(rt.Input(span, value.String("x"))))
}

func TestUnmountRemovesObserversAndNodes(t *testing.T) {
	rt, a, st := mount(t, `<span data-bind="user.name"></span><input data-sync="user.name">`,
		value.Mapping{"user": value.Mapping{"name": value.String("Ana")}})
	require.Greater(t, st.SubscriberCount(), 0)
	require.Greater(t, a.Len(), 0)

	require.NoError(t, rt.Unmount())
	assert.Equal(t, 0, st.SubscriberCount())
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, "", rt.HTML())
	assert.Equal(t, tree.InvalidNode, rt.Root())
}

func TestSettleWithoutIncludesReturnsImmediately(t *testing.T) {
	rt, _, _ := mount(t, `<span></span>`, nil)
	assert.NoError(t, rt.Settle(context.Background()))
}

func TestUnrecognizedAttributesPassThrough(t *testing.T) {
	rt, _, _ := mount(t, `<span class="big" id="x" data-bind="v"></span>`,
		value.Mapping{"v": value.String("ok")})
	assert.Equal(t, `<span class="big" data-bind="v" id="x">ok</span>`, rt.HTML())
}
