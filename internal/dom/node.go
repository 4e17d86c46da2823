// internal/dom/node.go
package dom

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// Layout holds the computed geometry and style of a node as observed in a live page.
type Layout struct {
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
	Display    string  `json:"d"`
	Visibility string  `json:"v"`
	Opacity    float64 `json:"o"`
	Cursor     string  `json:"cu"`
}

// Node is an element in a page tree. The document itself is represented by a
// root Node with an empty Tag.
type Node struct {
	Tag      string
	ID       string
	Classes  []string
	Attrs    map[string]string
	Text     string
	Markup   string
	Parent   *Node
	Children []*Node
	// Layout is nil for trees parsed from markup.
	Layout *Layout
	// Index is the node's position in document order.
	Index int
}

// IsDocument reports whether n is the synthetic document root.
func (n *Node) IsDocument() bool { return n.Tag == "" }

// Attr returns the attribute value and whether it was present.
func (n *Node) Attr(name string) (string, bool) {
	if n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// HasClass reports whether the class list contains the exact token.
func (n *Node) HasClass(class string) bool {
	for _, c := range n.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// ClassString returns the space-joined class list, lowercased.
func (n *Node) ClassString() string {
	return strings.ToLower(strings.Join(n.Classes, " "))
}

// Document walks up to the root of the tree.
func (n *Node) Document() *Node {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// ElementIndex returns the 1-based position of n among its parent's element
// children, matching the semantics of :nth-child.
func (n *Node) ElementIndex() int {
	if n.Parent == nil {
		return 1
	}
	for i, c := range n.Parent.Children {
		if c == n {
			return i + 1
		}
	}
	return 1
}

// SameTagSiblings counts the parent's children sharing n's tag, n included.
func (n *Node) SameTagSiblings() int {
	if n.Parent == nil {
		return 1
	}
	count := 0
	for _, c := range n.Parent.Children {
		if c.Tag == n.Tag {
			count++
		}
	}
	return count
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Walk visits n's descendants in document order. Returning false from fn
// skips the visited node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	for _, c := range n.Children {
		if fn(c) {
			c.Walk(fn)
		}
	}
}

// Descendants returns every element below n in document order.
func (n *Node) Descendants() []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		out = append(out, c)
		return true
	})
	return out
}

// Visible applies the visibility rule: a non-zero box that is neither
// display:none nor visibility:hidden. Parsed trees have no layout, so the
// rule falls back to hidden attributes and inline styles on the node and
// its ancestors.
func (n *Node) Visible() bool {
	if n.Layout != nil {
		l := n.Layout
		return l.Width > 0 && l.Height > 0 && l.Display != "none" && l.Visibility != "hidden"
	}
	for cur := n; cur != nil && !cur.IsDocument(); cur = cur.Parent {
		if cur.staticallyHidden() {
			return false
		}
	}
	return true
}

// Opaque reports whether the node is not fully transparent.
func (n *Node) Opaque() bool {
	if n.Layout != nil {
		return n.Layout.Opacity > 0
	}
	return inlineStyle(n, "opacity") != "0"
}

// Cursor returns the computed cursor, or the inline one for parsed trees.
func (n *Node) Cursor() string {
	if n.Layout != nil {
		return n.Layout.Cursor
	}
	return inlineStyle(n, "cursor")
}

var nonRenderedTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true, "noscript": true,
	"meta": true, "link": true, "title": true,
}

func (n *Node) staticallyHidden() bool {
	if nonRenderedTags[n.Tag] {
		return true
	}
	if _, ok := n.Attr("hidden"); ok {
		return true
	}
	if t, _ := n.Attr("type"); n.Tag == "input" && strings.EqualFold(t, "hidden") {
		return true
	}
	return inlineStyle(n, "display") == "none" || inlineStyle(n, "visibility") == "hidden"
}

func inlineStyle(n *Node, prop string) string {
	style, ok := n.Attr("style")
	if !ok {
		return ""
	}
	for _, decl := range strings.Split(style, ";") {
		k, v, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(k), prop) {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}

// -- Live Snapshot --

// snapshotEntry is one element as serialized by the in-page snapshot script.
type snapshotEntry struct {
	Index   int               `json:"i"`
	Parent  int               `json:"p"`
	Tag     string            `json:"t"`
	Attrs   map[string]string `json:"a"`
	Text    string            `json:"x"`
	Markup  string            `json:"m"`
	*Layout `json:"l"`
}

// FromSnapshot rebuilds a tree from the flat JSON list produced in the page.
// Entries must appear in document order with parents before children.
func FromSnapshot(data []byte) (*Node, error) {
	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode DOM snapshot: %w", err)
	}

	root := &Node{Index: -1}
	byIndex := make(map[int]*Node, len(entries))
	for pos, e := range entries {
		n := &Node{
			Tag:    strings.ToLower(e.Tag),
			Attrs:  e.Attrs,
			Text:   e.Text,
			Markup: e.Markup,
			Layout: e.Layout,
			Index:  pos,
		}
		applyIdentity(n)
		parent := root
		if e.Parent >= 0 {
			p, ok := byIndex[e.Parent]
			if !ok {
				return nil, fmt.Errorf("snapshot entry %d references unknown parent %d", e.Index, e.Parent)
			}
			parent = p
		}
		n.Parent = parent
		parent.Children = append(parent.Children, n)
		byIndex[e.Index] = n
	}
	return root, nil
}

// applyIdentity lifts id and class out of the attribute map.
func applyIdentity(n *Node) {
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.ID = strings.TrimSpace(n.Attrs["id"])
	n.Classes = strings.Fields(n.Attrs["class"])
}
