// internal/classify/classify.go
package classify

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
	"github.com/xkilldash9x/scalpel-explore/internal/selector"
)

// -- Lexicons --

var nativeInteractiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
	"label": true, "summary": true,
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "menuitem": true, "menuitemcheckbox": true, "menuitemradio": true,
	"tab": true, "option": true, "checkbox": true, "radio": true, "switch": true, "treeitem": true,
	"combobox": true, "textbox": true, "searchbox": true,
}

var clickAttrs = []string{"@click", "v-on:click", "ng-click", "data-click", "(click)", "data-action"}

// clickHandlers are the inline handlers that fire on activation. Load,
// error and scroll handlers say nothing about clickability.
var clickHandlers = []string{"onclick", "onmousedown", "onmouseup", "onpointerdown", "ontouchstart"}

var interactiveClassTokens = []string{
	"btn", "button", "link", "menu", "dropdown", "click", "select", "item",
	"option", "trigger", "toggle", "interactive", "tab",
}

// clickableTexts are exact labels that mark a leaf as actionable.
var clickableTexts = map[string]bool{
	"登录": true, "提交": true, "确定": true, "确认": true, "查看": true, "更多": true,
	"详情": true, "编辑": true, "删除": true, "搜索": true, "注册": true, "下一步": true,
	"submit": true, "login": true, "log in": true, "sign in": true, "sign up": true,
	"more": true, "view": true, "details": true, "edit": true, "delete": true,
	"search": true, "ok": true, "confirm": true, "next": true,
}

const maxClickableTextLen = 24

// Classifier discovers visible interactive nodes and assigns each a type
// through an ordered rule chain.
type Classifier struct {
	rules []ClassificationRule
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRules appends rules after the built-in ones and before the terminal fallback.
func WithRules(rules ...ClassificationRule) Option {
	return func(c *Classifier) {
		c.rules = append(c.rules, rules...)
	}
}

// New returns a Classifier with the default rule chain.
func New(opts ...Option) *Classifier {
	c := &Classifier{rules: DefaultRules()}
	for _, opt := range opts {
		opt(c)
	}
	c.rules = append(c.rules, fallbackRule{})
	return c
}

// Type runs the rule chain for a single node.
func (c *Classifier) Type(n *dom.Node) schemas.ElementType {
	for _, r := range c.rules {
		if t, ok := r.Classify(n); ok {
			return t
		}
	}
	return schemas.ElementOther
}

// Classify returns a descriptor for every visible interactive node under
// scope, in document order, deduplicated by selector. When scope is not the
// document root, selectors are synthesized with popup-scope limits.
func (c *Classifier) Classify(root, scope *dom.Node) []schemas.ElementDescriptor {
	if scope == nil {
		scope = root
	}
	depth := selector.FullPageDepth
	if scope != root {
		depth = selector.PopupDepth
	}
	synth := selector.New(scope, depth)

	var out []schemas.ElementDescriptor
	scope.Walk(func(n *dom.Node) bool {
		if !n.Visible() || !Interactive(n) {
			return true
		}
		sel, _ := synth.Synthesize(n)
		if sel == "" {
			return true
		}
		out = append(out, schemas.ElementDescriptor{
			Selector:    sel,
			Tag:         n.Tag,
			Text:        n.Text,
			Visible:     true,
			Interactive: true,
			Type:        c.Type(n),
		})
		return true
	})
	return Dedup(out)
}

// Interactive reports whether a node looks actionable.
func Interactive(n *dom.Node) bool {
	if nativeInteractiveTags[n.Tag] {
		return true
	}
	if interactiveRoles[role(n)] {
		return true
	}
	if pointerOrigin(n) {
		return true
	}
	if hasClickAttr(n) {
		return true
	}
	if classContains(n, interactiveClassTokens...) {
		return true
	}
	if ti, ok := n.Attr("tabindex"); ok && strings.TrimSpace(ti) != "-1" {
		return true
	}
	return len(n.Children) == 0 && clickableText(n.Text)
}

// pointerOrigin is true when the pointer cursor starts at this node rather
// than being inherited from an ancestor.
func pointerOrigin(n *dom.Node) bool {
	if n.Cursor() != "pointer" {
		return false
	}
	p := n.Parent
	return p == nil || p.IsDocument() || p.Cursor() != "pointer"
}

func hasClickAttr(n *dom.Node) bool {
	for _, a := range clickHandlers {
		if _, ok := n.Attr(a); ok {
			return true
		}
	}
	for _, a := range clickAttrs {
		if _, ok := n.Attr(a); ok {
			return true
		}
	}
	return false
}

func clickableText(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" || len(t) > maxClickableTextLen {
		return false
	}
	return clickableTexts[t]
}

// Dedup drops later descriptors whose selector was already seen.
func Dedup(elems []schemas.ElementDescriptor) []schemas.ElementDescriptor {
	seen := make(map[string]bool, len(elems))
	out := make([]schemas.ElementDescriptor, 0, len(elems))
	for _, e := range elems {
		if seen[e.Selector] {
			continue
		}
		seen[e.Selector] = true
		out = append(out, e)
	}
	return out
}

// Prioritize returns a copy sorted buttons first, then links, then the rest.
// Ties keep their discovery order.
func Prioritize(elems []schemas.ElementDescriptor) []schemas.ElementDescriptor {
	out := make([]schemas.ElementDescriptor, len(elems))
	copy(out, elems)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Type.Priority() < out[j].Type.Priority()
	})
	return out
}

// FormsIn returns the visible form roots under root: <form> elements and
// role="form" regions that are not nested inside another form root.
func FormsIn(root *dom.Node) []*dom.Node {
	var out []*dom.Node
	root.Walk(func(n *dom.Node) bool {
		if (n.Tag == "form" || role(n) == "form") && n.Visible() {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}
