package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htql-dev/htql/internal/tree"
	"github.com/htql-dev/htql/internal/value"
)

func loginContext(loggedIn bool, name string) value.Mapping {
	user := value.Mapping{"loggedIn": value.Bool(loggedIn)}
	if name != "" {
		user["name"] = value.String(name)
	}
	return value.Mapping{"user": user}
}

func TestIfElseToggles(t *testing.T) {
	tpl := `<if cond="user.loggedIn"><span data-bind="user.name"></span><else><span>Guest</span></if>`
	rt, _, st := mount(t, tpl, loginContext(true, "Ana"))
	assert.Equal(t, `<span data-bind="user.name">Ana</span>`, rt.HTML())

	// One directive observer plus the name binding.
	require.Equal(t, 2, st.SubscriberCount())

	require.NoError(t, rt.SetData(loginContext(false, "")))
	assert.Equal(t, `<span>Guest</span>`, rt.HTML())

	// The Ana branch's binding observer unmounted with its subtree.
	assert.Equal(t, 1, st.SubscriberCount())

	require.NoError(t, rt.SetData(loginContext(true, "Ana")))
	assert.Equal(t, `<span data-bind="user.name">Ana</span>`, rt.HTML())
	assert.Equal(t, 2, st.SubscriberCount())
}

func TestIfElseSiblingForm(t *testing.T) {
	tpl := `<if cond="ok"><b>yes</b></if><else><i>no</i></else>`
	rt, _, _ := mount(t, tpl, value.Mapping{"ok": value.Bool(false)})
	assert.Equal(t, `<i>no</i>`, rt.HTML())

	require.NoError(t, rt.SetData(value.Mapping{"ok": value.Bool(true)}))
	assert.Equal(t, `<b>yes</b>`, rt.HTML())
}

func TestIfWithoutElseRendersNothingWhenFalse(t *testing.T) {
	rt, _, _ := mount(t, `<if cond="show"><b>body</b></if>`, nil)
	assert.Equal(t, ``, rt.HTML())

	require.NoError(t, rt.SetData(value.Mapping{"show": value.Bool(true)}))
	assert.Equal(t, `<b>body</b>`, rt.HTML())
}

func TestStrayElseRendersNothing(t *testing.T) {
	rt, _, _ := mount(t, `<span>a</span><else><b>x</b></else>`, nil)
	assert.Equal(t, `<span>a</span>`, rt.HTML())
}

func TestIfCondSyntaxErrorIsolated(t *testing.T) {
	var errs []error
	rt, _, _ := mount(t, `<if cond="&&"><b>never</b></if><span>ok</span>`, nil,
		WithErrorHandler(func(err error) { errs = append(errs, err) }))

	require.Len(t, errs, 1)
	assert.True(t, IsRenderError(errs[0], CodeSyntax))
	assert.Equal(t, `<span>ok</span>`, rt.HTML())
}

func TestIfTruthyNonBoolCondition(t *testing.T) {
	rt, _, _ := mount(t, `<if cond="items"><b>some</b><else><b>none</b></if>`,
		value.Mapping{"items": value.Sequence{}})
	assert.Equal(t, `<b>none</b>`, rt.HTML())

	require.NoError(t, rt.SetData(value.Mapping{
		"items": value.Sequence{value.Number(1)},
	}))
	assert.Equal(t, `<b>some</b>`, rt.HTML())
}

func stringSeq(items ...string) value.Sequence {
	seq := make(value.Sequence, len(items))
	for i, s := range items {
		seq[i] = value.String(s)
	}
	return seq
}

// itemMarkers returns the item anchor handles under the first repeat or
// while marker in the tree.
func itemMarkers(a *tree.Arena, root tree.NodeID) []tree.NodeID {
	var dir tree.NodeID
	a.Walk(root, func(id tree.NodeID, n *tree.Node) {
		if dir == tree.InvalidNode && n.Kind == tree.KindDirective &&
			(n.Tag == tagRepeat || n.Tag == tagWhile) {
			dir = id
		}
	})
	return a.Children(dir)
}

func TestRepeatRendersItems(t *testing.T) {
	rt, _, _ := mount(t, `<repeat each="x in list"><span data-bind="x"></span></repeat>`,
		value.Mapping{"list": stringSeq("A", "B")})
	assert.Equal(t,
		`<span data-bind="x">A</span><span data-bind="x">B</span>`,
		rt.HTML())
}

func TestRepeatKeyedRemovalPreservesSurvivors(t *testing.T) {
	rt, a, _ := mount(t, `<repeat each="x in list" key="x"><span data-bind="x"></span></repeat>`,
		value.Mapping{"list": stringSeq("A", "B", "C")})

	before := itemMarkers(a, rt.Root())
	require.Len(t, before, 3)

	require.NoError(t, rt.SetData(value.Mapping{"list": stringSeq("A", "C")}))

	after := itemMarkers(a, rt.Root())
	require.Len(t, after, 2)

	// A and C keep their identity; only B's subtree is destroyed.
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[2], after[1])
	assert.False(t, a.Alive(before[1]))
	assert.Equal(t, `<span data-bind="x">A</span><span data-bind="x">C</span>`, rt.HTML())
}

func TestRepeatKeyedReorderMovesWithoutRecreating(t *testing.T) {
	rt, a, _ := mount(t, `<repeat each="x in list" key="x"><span data-bind="x"></span></repeat>`,
		value.Mapping{"list": stringSeq("A", "B", "C")})

	before := itemMarkers(a, rt.Root())
	nodes := a.Len()

	require.NoError(t, rt.SetData(value.Mapping{"list": stringSeq("C", "A", "B")}))

	after := itemMarkers(a, rt.Root())
	assert.Equal(t, []tree.NodeID{before[2], before[0], before[1]}, after)
	assert.Equal(t, nodes, a.Len())
	assert.Equal(t,
		`<span data-bind="x">C</span><span data-bind="x">A</span><span data-bind="x">B</span>`,
		rt.HTML())
}

func TestRepeatPositionalKeysReuseByIndex(t *testing.T) {
	rt, a, _ := mount(t, `<repeat each="x in list"><span data-bind="x"></span></repeat>`,
		value.Mapping{"list": stringSeq("A", "B", "C")})

	before := itemMarkers(a, rt.Root())

	// Without an explicit key, removal at the front shifts every item:
	// positions 0 and 1 are reused with new values, position 2 is
	// destroyed.
	require.NoError(t, rt.SetData(value.Mapping{"list": stringSeq("B", "C")}))

	after := itemMarkers(a, rt.Root())
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[1], after[1])
	assert.False(t, a.Alive(before[2]))
	assert.Equal(t, `<span data-bind="x">B</span><span data-bind="x">C</span>`, rt.HTML())
}

func TestRepeatAppendKeepsExistingIdentities(t *testing.T) {
	posts := func(titles ...string) value.Mapping {
		seq := make(value.Sequence, len(titles))
		for i, title := range titles {
			seq[i] = value.Mapping{"title": value.String(title)}
		}
		return value.Mapping{"posts": seq}
	}
	rt, a, _ := mount(t, `<repeat each="p in posts"><h2 data-bind="p.title"></h2></repeat>`,
		posts("A", "B"))

	before := itemMarkers(a, rt.Root())
	require.Len(t, before, 2)

	require.NoError(t, rt.SetData(posts("A", "B", "C")))

	after := itemMarkers(a, rt.Root())
	require.Len(t, after, 3)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[1], after[1])
	assert.Equal(t,
		`<h2 data-bind="p.title">A</h2><h2 data-bind="p.title">B</h2><h2 data-bind="p.title">C</h2>`,
		rt.HTML())
}

func TestRepeatDeepItemWriteUpdatesOneBinding(t *testing.T) {
	rt, _, _ := mount(t, `<repeat each="p in posts" key="p.id"><h2 data-bind="p.title"></h2></repeat>`,
		value.Mapping{"posts": value.Sequence{
			value.Mapping{"id": value.String("a"), "title": value.String("first")},
			value.Mapping{"id": value.String("b"), "title": value.String("second")},
		}})

	require.NoError(t, rt.SetPath("posts.1.title", value.String("changed")))
	assert.Equal(t,
		`<h2 data-bind="p.title">first</h2><h2 data-bind="p.title">changed</h2>`,
		rt.HTML())
}

func TestRepeatDuplicateKeysStayDistinct(t *testing.T) {
	rt, a, _ := mount(t, `<repeat each="x in list" key="x"><span data-bind="x"></span></repeat>`,
		value.Mapping{"list": stringSeq("A", "A", "B")})

	require.Len(t, itemMarkers(a, rt.Root()), 3)
	assert.Equal(t,
		`<span data-bind="x">A</span><span data-bind="x">A</span><span data-bind="x">B</span>`,
		rt.HTML())
}

func TestRepeatNonSequenceRendersEmpty(t *testing.T) {
	rt, _, _ := mount(t, `<repeat each="x in list"><span data-bind="x"></span></repeat>`,
		value.Mapping{"list": value.String("oops")})
	assert.Equal(t, ``, rt.HTML())
}

func TestRepeatMalformedEachReported(t *testing.T) {
	var errs []error
	rt, _, _ := mount(t, `<repeat each="list"><span></span></repeat>`, nil,
		WithErrorHandler(func(err error) { errs = append(errs, err) }))

	require.Len(t, errs, 1)
	assert.True(t, IsRenderError(errs[0], CodeSyntax))
	assert.Equal(t, ``, rt.HTML())
}

func TestRepeatUnmountsObserversOfRemovedItems(t *testing.T) {
	rt, _, st := mount(t, `<repeat each="x in list" key="x"><span data-bind="x"></span></repeat>`,
		value.Mapping{"list": stringSeq("A", "B", "C")})

	// Directive observer plus one binding per item.
	require.Equal(t, 4, st.SubscriberCount())

	require.NoError(t, rt.SetData(value.Mapping{"list": stringSeq("A")}))
	assert.Equal(t, 2, st.SubscriberCount())
}

func TestNestedRepeatInIf(t *testing.T) {
	tpl := `<if cond="show"><repeat each="x in list"><b data-bind="x"></b></repeat></if>`
	rt, _, _ := mount(t, tpl, value.Mapping{
		"show": value.Bool(true),
		"list": stringSeq("A", "B"),
	})
	assert.Equal(t, `<b data-bind="x">A</b><b data-bind="x">B</b>`, rt.HTML())

	require.NoError(t, rt.SetData(value.Mapping{"show": value.Bool(false)}))
	assert.Equal(t, ``, rt.HTML())
}

func TestRepeatNonAddressableCollectionUpdates(t *testing.T) {
	rt, a, _ := mount(t, `<repeat each="x in list | default"><span data-bind="x"></span></repeat>`,
		value.Mapping{"list": stringSeq("A", "B")})
	require.Equal(t, `<span data-bind="x">A</span><span data-bind="x">B</span>`, rt.HTML())

	before := itemMarkers(a, rt.Root())
	require.Len(t, before, 2)

	require.NoError(t, rt.SetData(value.Mapping{"list": stringSeq("A", "Z")}))

	// The filtered collection has no data address, so items carry no path
	// of their own; reuse must still push the new values into the kept
	// subtrees.
	assert.Equal(t, before, itemMarkers(a, rt.Root()))
	assert.Equal(t, `<span data-bind="x">A</span><span data-bind="x">Z</span>`, rt.HTML())
}

func TestWhileExpandsUntilConditionFalse(t *testing.T) {
	rt, _, _ := mount(t, `<while cond="index < count"><span data-bind="index"></span></while>`,
		value.Mapping{"count": value.Number(3)})
	assert.Equal(t,
		`<span data-bind="index">0</span><span data-bind="index">1</span><span data-bind="index">2</span>`,
		rt.HTML())

	require.NoError(t, rt.SetData(value.Mapping{"count": value.Number(1)}))
	assert.Equal(t, `<span data-bind="index">0</span>`, rt.HTML())
}

func TestWhileUntouchedByUnrelatedPatch(t *testing.T) {
	rt, a, _ := mount(t, `<while cond="index < count"><span data-bind="index"></span></while>`,
		value.Mapping{"count": value.Number(2), "other": value.Number(0)})

	before := itemMarkers(a, rt.Root())
	require.Len(t, before, 2)
	nodes := a.Len()

	require.NoError(t, rt.SetData(value.Mapping{"other": value.Number(1)}))

	// The condition only reads count, so a write elsewhere must not
	// rebuild the expansion.
	assert.Equal(t, before, itemMarkers(a, rt.Root()))
	assert.Equal(t, nodes, a.Len())
}

func TestWhileIterationCutoff(t *testing.T) {
	var errs []error
	rt, a, _ := mount(t, `<while cond="1 < 2"><b>x</b></while>`, nil,
		WithMaxIterations(5),
		WithErrorHandler(func(err error) { errs = append(errs, err) }))

	require.Len(t, errs, 1)
	assert.True(t, IsRenderError(errs[0], CodeInfiniteLoop))
	assert.True(t, IsInfiniteLoopError(errs[0]))

	// Output produced before the cutoff is kept.
	assert.Len(t, itemMarkers(a, rt.Root()), 5)
}
