package tree

import "slices"

// NodeID is an opaque stable handle to a node in an Arena.
// The handle is the node's identity: reconciliation reuses, reparents,
// and destroys nodes by handle, so "same subtree as before" is checkable
// by ID equality rather than structural comparison.
//
// The zero NodeID is never allocated and acts as the null handle.
type NodeID int

// InvalidNode is the null node handle.
const InvalidNode NodeID = 0

// Kind discriminates node flavors in the render tree.
type Kind int

const (
	// KindElement is a markup element with a tag, attributes, and children.
	KindElement Kind = iota + 1
	// KindText is a text payload leaf.
	KindText
	// KindDirective is a directive marker: a structural node that stays in
	// the tree to anchor its expanded children but renders transparently.
	KindDirective
)

// Node is a single node in the render tree. Nodes are owned exclusively by
// their arena; a node occupies exactly one tree position at a time.
type Node struct {
	Kind  Kind
	Tag   string
	Attrs map[string]string
	Text  string

	parent   NodeID
	children []NodeID
}

// Arena owns every node of one mounted document. All structural mutation
// goes through the arena so handles stay stable across reconciliation.
//
// Single-writer: the arena is mutated only from the runtime's update turn,
// matching the engine's cooperative execution model.
type Arena struct {
	nodes map[NodeID]*Node
	next  NodeID
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{nodes: make(map[NodeID]*Node), next: 1}
}

func (a *Arena) alloc(n *Node) NodeID {
	id := a.next
	a.next++
	a.nodes[id] = n
	return id
}

// NewElement allocates an element node. The attrs map is copied.
func (a *Arena) NewElement(tag string, attrs map[string]string) NodeID {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return a.alloc(&Node{Kind: KindElement, Tag: tag, Attrs: copied})
}

// NewText allocates a text node.
func (a *Arena) NewText(text string) NodeID {
	return a.alloc(&Node{Kind: KindText, Text: text})
}

// NewMarker allocates a directive marker node. The attrs map is copied.
func (a *Arena) NewMarker(tag string, attrs map[string]string) NodeID {
	id := a.NewElement(tag, attrs)
	a.Get(id).Kind = KindDirective
	return id
}

// Get returns the node for id, or nil if the id was never allocated or has
// been released. Callers mutate attributes and text through the returned
// pointer; structure changes go through the arena methods.
func (a *Arena) Get(id NodeID) *Node {
	return a.nodes[id]
}

// Alive reports whether id refers to a live node. Pending asynchronous
// completions check this before touching a tree position.
func (a *Arena) Alive(id NodeID) bool {
	_, ok := a.nodes[id]
	return ok
}

// Len returns the number of live nodes. Used by tests to verify that
// reconciliation does not leak nodes.
func (a *Arena) Len() int {
	return len(a.nodes)
}

// Parent returns the parent handle of id, or InvalidNode for roots.
func (a *Arena) Parent(id NodeID) NodeID {
	if n := a.nodes[id]; n != nil {
		return n.parent
	}
	return InvalidNode
}

// Children returns a copy of id's child handles in order.
func (a *Arena) Children(id NodeID) []NodeID {
	n := a.nodes[id]
	if n == nil || len(n.children) == 0 {
		return nil
	}
	return slices.Clone(n.children)
}

// AppendChild detaches child from its current position and appends it to
// parent's child list.
func (a *Arena) AppendChild(parent, child NodeID) {
	a.InsertChild(parent, len(a.nodes[parent].children), child)
}

// InsertChild detaches child from its current position and inserts it into
// parent's child list at index i.
func (a *Arena) InsertChild(parent NodeID, i int, child NodeID) {
	p := a.nodes[parent]
	c := a.nodes[child]
	if p == nil || c == nil {
		return
	}
	a.Detach(child)
	if i < 0 {
		i = 0
	}
	if i > len(p.children) {
		i = len(p.children)
	}
	p.children = slices.Insert(p.children, i, child)
	c.parent = parent
}

// Detach removes id from its parent's child list without releasing it.
// The node becomes a root and can be reinserted elsewhere - this is how
// reconciliation reorders surviving subtrees without recreating them.
func (a *Arena) Detach(id NodeID) {
	n := a.nodes[id]
	if n == nil || n.parent == InvalidNode {
		return
	}
	p := a.nodes[n.parent]
	if p != nil {
		if i := slices.Index(p.children, id); i >= 0 {
			p.children = slices.Delete(p.children, i, i+1)
		}
	}
	n.parent = InvalidNode
}

// SetChildren replaces parent's child list wholesale. Every entry must be a
// live node; entries are detached from previous positions first. Used by
// keyed reconciliation to apply the new sibling order in one step.
func (a *Arena) SetChildren(parent NodeID, children []NodeID) {
	p := a.nodes[parent]
	if p == nil {
		return
	}
	for _, c := range children {
		a.Detach(c)
	}
	p.children = slices.Clone(children)
	for _, c := range children {
		if n := a.nodes[c]; n != nil {
			n.parent = parent
		}
	}
}

// Release detaches id and frees it together with its entire subtree.
// Handles into the subtree become dead (Get returns nil, Alive false).
func (a *Arena) Release(id NodeID) {
	n := a.nodes[id]
	if n == nil {
		return
	}
	a.Detach(id)
	a.releaseRecursive(id)
}

func (a *Arena) releaseRecursive(id NodeID) {
	n := a.nodes[id]
	if n == nil {
		return
	}
	for _, c := range n.children {
		a.releaseRecursive(c)
	}
	delete(a.nodes, id)
}

// Clone deep-copies the subtree rooted at id and returns the new root.
// The clone is detached. Used to instantiate repeat templates per item.
func (a *Arena) Clone(id NodeID) NodeID {
	n := a.nodes[id]
	if n == nil {
		return InvalidNode
	}
	var cloned NodeID
	switch n.Kind {
	case KindText:
		cloned = a.NewText(n.Text)
	case KindDirective:
		cloned = a.NewMarker(n.Tag, n.Attrs)
	default:
		cloned = a.NewElement(n.Tag, n.Attrs)
	}
	for _, c := range n.children {
		childClone := a.Clone(c)
		if childClone != InvalidNode {
			a.AppendChild(cloned, childClone)
		}
	}
	return cloned
}

// Walk visits id and every descendant in document order.
// The visitor must not mutate structure during the walk.
func (a *Arena) Walk(id NodeID, visit func(NodeID, *Node)) {
	n := a.nodes[id]
	if n == nil {
		return
	}
	visit(id, n)
	for _, c := range n.children {
		a.Walk(c, visit)
	}
}
