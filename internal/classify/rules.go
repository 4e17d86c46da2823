// internal/classify/rules.go
package classify

import (
	"strings"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

// ClassificationRule assigns an element type. Rules are consulted in order and
// the first one reporting ok wins.
type ClassificationRule interface {
	Name() string
	Classify(n *dom.Node) (schemas.ElementType, bool)
}

// RuleFunc adapts a plain function into a named ClassificationRule.
type RuleFunc struct {
	RuleName string
	Fn       func(n *dom.Node) (schemas.ElementType, bool)
}

func (r RuleFunc) Name() string { return r.RuleName }

func (r RuleFunc) Classify(n *dom.Node) (schemas.ElementType, bool) { return r.Fn(n) }

// DefaultRules returns the built-in chain, excluding the terminal fallback.
func DefaultRules() []ClassificationRule {
	return []ClassificationRule{
		exactTagRule{},
		buttonPatternRule{},
		linkPatternRule{},
		formPatternRule{},
	}
}

// -- Exact tag --

type exactTagRule struct{}

func (exactTagRule) Name() string { return "exact-tag" }

func (exactTagRule) Classify(n *dom.Node) (schemas.ElementType, bool) {
	switch n.Tag {
	case "form":
		return schemas.ElementForm, true
	case "a":
		return schemas.ElementLink, true
	case "button":
		return schemas.ElementButton, true
	case "input":
		if buttonInputTypes[inputType(n)] {
			return schemas.ElementButton, true
		}
		return schemas.ElementForm, true
	case "select", "textarea":
		return schemas.ElementForm, true
	}
	return "", false
}

var buttonInputTypes = map[string]bool{"submit": true, "button": true, "reset": true, "image": true}

func inputType(n *dom.Node) string {
	t, ok := n.Attr("type")
	if !ok || t == "" {
		return "text"
	}
	return strings.ToLower(t)
}

// -- Patterns --

type buttonPatternRule struct{}

func (buttonPatternRule) Name() string { return "button-pattern" }

func (buttonPatternRule) Classify(n *dom.Node) (schemas.ElementType, bool) {
	if role(n) == "button" || classContains(n, "btn", "button") {
		return schemas.ElementButton, true
	}
	return "", false
}

type linkPatternRule struct{}

func (linkPatternRule) Name() string { return "link-pattern" }

var linkRoles = map[string]bool{"link": true, "menuitem": true, "tab": true, "treeitem": true}

var linkAttrs = []string{"href", "data-href", "data-route", "routerlink", "to"}

func (linkPatternRule) Classify(n *dom.Node) (schemas.ElementType, bool) {
	if linkRoles[role(n)] {
		return schemas.ElementLink, true
	}
	for _, a := range linkAttrs {
		if _, ok := n.Attr(a); ok {
			return schemas.ElementLink, true
		}
	}
	return "", false
}

type formPatternRule struct{}

func (formPatternRule) Name() string { return "form-pattern" }

var formRoles = map[string]bool{
	"form": true, "textbox": true, "combobox": true, "searchbox": true,
	"checkbox": true, "radio": true, "switch": true, "listbox": true,
}

func (formPatternRule) Classify(n *dom.Node) (schemas.ElementType, bool) {
	if formRoles[role(n)] {
		return schemas.ElementForm, true
	}
	if _, ok := n.Attr("contenteditable"); ok {
		return schemas.ElementForm, true
	}
	if classContains(n, "form") {
		return schemas.ElementForm, true
	}
	return "", false
}

// -- Fallback --

var containerTags = map[string]bool{
	"div": true, "section": true, "li": true, "ul": true, "ol": true, "nav": true,
	"article": true, "aside": true, "header": true, "footer": true, "main": true,
	"table": true, "tbody": true, "tr": true, "td": true, "dl": true, "fieldset": true,
}

type fallbackRule struct{}

func (fallbackRule) Name() string { return "fallback" }

func (fallbackRule) Classify(n *dom.Node) (schemas.ElementType, bool) {
	if containerTags[n.Tag] && len(n.Children) > 0 {
		return schemas.ElementContainer, true
	}
	return schemas.ElementOther, true
}

func role(n *dom.Node) string {
	r, _ := n.Attr("role")
	return strings.ToLower(strings.TrimSpace(r))
}

func classContains(n *dom.Node, needles ...string) bool {
	for _, c := range n.Classes {
		lc := strings.ToLower(c)
		for _, needle := range needles {
			if strings.Contains(lc, needle) {
				return true
			}
		}
	}
	return false
}
