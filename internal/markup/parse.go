// Package markup adapts the external markup parser contract onto
// golang.org/x/net/html.
//
// The engine itself never reparses raw markup text; it consumes node trees
// matching the input contract (tag name, attribute mapping, ordered
// children, text payload). This package is the reference implementation of
// that contract used by the CLI, the test harness, and include resolution.
package markup

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/htql-dev/htql/internal/tree"
)

// FragmentTag is the synthetic element wrapping a parsed fragment's
// top-level nodes. The runtime renders a fragment's children, never the
// wrapper itself.
const FragmentTag = "htql-fragment"

// Parse parses markup text into the arena and returns the handle of a
// synthetic fragment root whose children are the fragment's top-level
// nodes.
//
// Directive tags (include, if, else, repeat, while) parse as ordinary
// elements; their interpretation is entirely the engine's concern.
// Comments are dropped, as are text runs that are pure whitespace.
func Parse(a *tree.Arena, src string) (tree.NodeID, error) {
	context := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	parsed, err := html.ParseFragment(strings.NewReader(src), context)
	if err != nil {
		return tree.InvalidNode, fmt.Errorf("parse markup: %w", err)
	}

	root := a.NewMarker(FragmentTag, nil)
	for _, n := range parsed {
		convert(a, root, n)
	}
	return root, nil
}

func convert(a *tree.Arena, parent tree.NodeID, n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		attrs := make(map[string]string, len(n.Attr))
		for _, attr := range n.Attr {
			attrs[attr.Key] = attr.Val
		}
		el := a.NewElement(n.Data, attrs)
		a.AppendChild(parent, el)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			convert(a, el, c)
		}
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return
		}
		a.AppendChild(parent, a.NewText(n.Data))
	}
}
