// internal/dom/query.go
package dom

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrUnsupportedSelector is returned when a selector does not parse.
var ErrUnsupportedSelector = errors.New("unsupported selector syntax")

// Selector is a compiled selector group.
type Selector struct {
	raw string
	sel cascadia.Selector
}

// String returns the source text.
func (s *Selector) String() string { return s.raw }

// Compile parses a selector group.
func Compile(sel string) (*Selector, error) {
	if strings.TrimSpace(sel) == "" {
		return nil, fmt.Errorf("invalid selector %q: %w", sel, ErrUnsupportedSelector)
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w: %v", sel, ErrUnsupportedSelector, err)
	}
	return &Selector{raw: sel, sel: compiled}, nil
}

// MustCompile is like Compile but panics on error. Intended for package-level literals.
func MustCompile(sel string) *Selector {
	s, err := Compile(sel)
	if err != nil {
		panic(err)
	}
	return s
}

// Match reports whether n matches the selector. Ancestor and sibling
// conditions are evaluated against the whole document, as in the browser.
func (s *Selector) Match(n *Node) bool {
	if n == nil || n.IsDocument() {
		return false
	}
	return NewTree(n.Document()).Match(s, n)
}

// QueryAll returns the descendants of scope matching the selector, in document order.
func (s *Selector) QueryAll(scope *Node) []*Node {
	return NewTree(scope.Document()).QueryAll(s, scope)
}

// Query compiles sel and returns all matching descendants of scope.
func Query(scope *Node, sel string) ([]*Node, error) {
	s, err := Compile(sel)
	if err != nil {
		return nil, err
	}
	return s.QueryAll(scope), nil
}

// Count returns how many descendants of scope match sel.
func Count(scope *Node, sel string) (int, error) {
	nodes, err := Query(scope, sel)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// -- Tree Mirror --

// Tree mirrors a Node tree as x/net/html nodes so selectors can be matched
// with cascadia. Layout and visibility stay on the Node side; the mirror
// only carries what selectors can see. A Tree is a point-in-time copy and
// must be rebuilt after the Node tree changes.
type Tree struct {
	doc    *html.Node
	mirror map[*Node]*html.Node
}

// NewTree mirrors the tree rooted at root. A detached subtree is mirrored
// under a synthetic document so its top element still has a parent.
func NewTree(root *Node) *Tree {
	t := &Tree{
		doc:    &html.Node{Type: html.DocumentNode},
		mirror: make(map[*Node]*html.Node),
	}
	if root.IsDocument() {
		t.mirror[root] = t.doc
		for _, c := range root.Children {
			t.doc.AppendChild(t.build(c))
		}
		return t
	}
	t.doc.AppendChild(t.build(root))
	return t
}

func (t *Tree) build(n *Node) *html.Node {
	h := &html.Node{
		Type: html.ElementNode,
		Data: n.Tag,
		Attr: mirrorAttrs(n),
	}
	t.mirror[n] = h
	if len(n.Children) == 0 && n.Text != "" {
		h.AppendChild(&html.Node{Type: html.TextNode, Data: n.Text})
	}
	for _, c := range n.Children {
		h.AppendChild(t.build(c))
	}
	return h
}

// mirrorAttrs writes id and class from the lifted identity fields so nodes
// built in code match the same way as parsed ones.
func mirrorAttrs(n *Node) []html.Attribute {
	attrs := make([]html.Attribute, 0, len(n.Attrs)+2)
	if n.ID != "" {
		attrs = append(attrs, html.Attribute{Key: "id", Val: n.ID})
	}
	if len(n.Classes) > 0 {
		attrs = append(attrs, html.Attribute{Key: "class", Val: strings.Join(n.Classes, " ")})
	}
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		if k == "id" || k == "class" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, html.Attribute{Key: k, Val: n.Attrs[k]})
	}
	return attrs
}

// Match reports whether n, which must belong to the mirrored tree, matches s.
func (t *Tree) Match(s *Selector, n *Node) bool {
	h, ok := t.mirror[n]
	if !ok || h.Type != html.ElementNode {
		return false
	}
	return s.sel.Match(h)
}

// QueryAll returns the descendants of scope matching s, in document order.
// The scope itself is never part of the result.
func (t *Tree) QueryAll(s *Selector, scope *Node) []*Node {
	var out []*Node
	scope.Walk(func(c *Node) bool {
		if t.Match(s, c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// -- Identifiers --

func isIdentChar(ch byte) bool {
	return ch == '-' || ch == '_' || ch >= 0x80 ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// IsPlainIdent reports whether s can be written as a CSS identifier without escaping.
func IsPlainIdent(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	if s[0] == '-' && (len(s) == 1 || (s[1] >= '0' && s[1] <= '9')) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) || s[i] >= 0x80 {
			return false
		}
	}
	return true
}
