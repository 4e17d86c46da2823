// internal/selector/synthesizer.go
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

// Depth caps for the ancestor walk.
const (
	FullPageDepth = 20
	PopupDepth    = 15
)

const (
	maxClassesPerSegment = 2
	chainSeparator       = " > "
)

// unstableClassPrefixes mark framework-generated or hashed class names.
var unstableClassPrefixes = []string{"ng-", "v-", "_", "css-", "sc-", "jsx-"}

// stateClasses flip when an element is interacted with and must not anchor a locator.
var stateClasses = map[string]bool{
	"active": true, "hover": true, "focus": true, "focused": true, "selected": true,
	"open": true, "show": true, "is-active": true, "current": true, "disabled": true,
}

// Synthesizer builds locators for nodes of one tree, verified unique within a scope.
// It caches document-wide id counts and a matching mirror of the tree, so the
// tree must not change while it is in use. It is not safe for concurrent use.
type Synthesizer struct {
	doc      *dom.Node
	scope    *dom.Node
	maxDepth int
	idCounts map[string]int
	compiled map[string]*dom.Selector
	tree     *dom.Tree
}

// New returns a synthesizer for nodes under scope. Pass the document root and
// FullPageDepth for page-wide locators, or an overlay node and PopupDepth for
// popup-scoped ones.
func New(scope *dom.Node, maxDepth int) *Synthesizer {
	if maxDepth <= 0 {
		maxDepth = FullPageDepth
	}
	s := &Synthesizer{
		doc:      scope.Document(),
		scope:    scope,
		maxDepth: maxDepth,
		idCounts: make(map[string]int),
		compiled: make(map[string]*dom.Selector),
	}
	s.tree = dom.NewTree(s.doc)
	s.doc.Walk(func(n *dom.Node) bool {
		if n.ID != "" {
			s.idCounts[n.ID]++
		}
		return true
	})
	return s
}

// Synthesize returns a selector for n. ok is true when the selector resolves to
// exactly n within the scope. When the depth cap is reached first the best
// effort path is returned with ok false.
func (s *Synthesizer) Synthesize(n *dom.Node) (sel string, ok bool) {
	if n == nil || n.IsDocument() {
		return "", false
	}
	if s.uniqueID(n) {
		return "#" + n.ID, true
	}

	path := s.walk(n)
	ok = s.resolvesTo(s.scope, path, n)
	if !ok || s.scope == s.doc || s.resolvesTo(s.doc, path, n) {
		return path, ok
	}

	// Scoped paths that are not document-unique are anchored on the scope itself.
	anchor, anchorOK := New(s.doc, FullPageDepth).Synthesize(s.scope)
	if !anchorOK {
		return path, ok
	}
	combined := anchor + " " + path
	return combined, s.resolvesTo(s.doc, combined, n)
}

func (s *Synthesizer) walk(n *dom.Node) string {
	var segments []string
	cur := n
	for depth := 0; cur != nil && !cur.IsDocument() && depth < s.maxDepth; depth++ {
		if depth > 0 && s.uniqueID(cur) {
			segments = append([]string{"#" + cur.ID}, segments...)
			return strings.Join(segments, chainSeparator)
		}
		segments = append([]string{Segment(cur)}, segments...)
		path := strings.Join(segments, chainSeparator)
		if s.resolvesTo(s.scope, path, n) {
			return path
		}
		if cur == s.scope {
			break
		}
		cur = cur.Parent
	}
	return strings.Join(segments, chainSeparator)
}

func (s *Synthesizer) uniqueID(n *dom.Node) bool {
	return dom.IsPlainIdent(n.ID) && s.idCounts[n.ID] == 1
}

func (s *Synthesizer) resolvesTo(scope *dom.Node, sel string, want *dom.Node) bool {
	compiled, ok := s.compiled[sel]
	if !ok {
		var err error
		compiled, err = dom.Compile(sel)
		if err != nil {
			return false
		}
		s.compiled[sel] = compiled
	}
	matches := s.tree.QueryAll(compiled, scope)
	return len(matches) == 1 && matches[0] == want
}

// Segment renders one level of a path: the tag, up to two stable classes, and
// a 1-based :nth-child qualifier when the parent has other children of the same tag.
func Segment(n *dom.Node) string {
	var b strings.Builder
	b.WriteString(n.Tag)
	for _, c := range StableClasses(n.Classes) {
		b.WriteByte('.')
		b.WriteString(c)
	}
	if n.SameTagSiblings() > 1 {
		fmt.Fprintf(&b, ":nth-child(%d)", n.ElementIndex())
	}
	return b.String()
}

// StableClasses filters class tokens down to those usable in a locator.
func StableClasses(classes []string) []string {
	var out []string
	for _, c := range classes {
		if len(out) == maxClassesPerSegment {
			break
		}
		if !dom.IsPlainIdent(c) || stateClasses[strings.ToLower(c)] || hasUnstablePrefix(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasUnstablePrefix(c string) bool {
	for _, p := range unstableClassPrefixes {
		if strings.HasPrefix(c, p) {
			return true
		}
	}
	return false
}

// -- Activation Fallbacks --

var positionalRe = regexp.MustCompile(`:nth-child\(\d+\)`)

// StripPositional removes every :nth-child qualifier from sel.
func StripPositional(sel string) string {
	return positionalRe.ReplaceAllString(sel, "")
}

// HasPositional reports whether sel carries an :nth-child qualifier.
func HasPositional(sel string) bool {
	return positionalRe.MatchString(sel)
}

// ShortenChain returns the proper suffixes of a child-combinator chain,
// longest first: "a > b > c" yields "b > c" then "c". The rightmost segment,
// which names the target, is always retained.
func ShortenChain(sel string) []string {
	parts := strings.Split(sel, chainSeparator)
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[i:], chainSeparator))
	}
	return out
}

// Fallbacks returns the full activation chain for sel: the selector itself,
// its positional-free form, then its shortened chains. Duplicates are dropped.
func Fallbacks(sel string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(sel)
	if HasPositional(sel) {
		add(StripPositional(sel))
	}
	for _, s := range ShortenChain(sel) {
		add(s)
	}
	return out
}
