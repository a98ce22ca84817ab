package tree

import (
	"html"
	"io"
	"slices"
	"strings"
)

// HTML serializes the subtree rooted at id as markup text.
// Attributes are emitted in sorted order so output is deterministic and
// usable in golden tests.
func (a *Arena) HTML(id NodeID) string {
	var b strings.Builder
	a.WriteHTML(&b, id)
	return b.String()
}

// WriteHTML writes the subtree rooted at id to w.
func (a *Arena) WriteHTML(w io.Writer, id NodeID) {
	n := a.nodes[id]
	if n == nil {
		return
	}
	switch n.Kind {
	case KindText:
		io.WriteString(w, html.EscapeString(n.Text))
	case KindDirective:
		// Markers anchor expanded content but never render themselves.
		for _, c := range n.children {
			a.WriteHTML(w, c)
		}
	default:
		io.WriteString(w, "<"+n.Tag)
		keys := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			io.WriteString(w, " "+k+`="`+html.EscapeString(n.Attrs[k])+`"`)
		}
		io.WriteString(w, ">")
		for _, c := range n.children {
			a.WriteHTML(w, c)
		}
		io.WriteString(w, "</"+n.Tag+">")
	}
}
