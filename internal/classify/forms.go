// internal/classify/forms.go
package classify

import (
	"strings"

	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

// FormGroup is a formless region: visible fields that sit outside every
// form root, gathered under the container that also holds their submit
// control. The container is handed to the form pipeline as if it were a
// form element.
type FormGroup struct {
	Container *dom.Node
	Fields    []*dom.Node
}

var submitLike = dom.MustCompile(`button, input[type="submit"], input[type="button"], input[type="image"], [role="button"]`)

// pageLevel nodes are never used as a group container on their own; a
// field with no closer container falls back to its parent instead.
var pageLevel = map[string]bool{"html": true, "body": true}

// LooseFormGroups collects the fields not owned by any of forms and groups
// them. Each field climbs to its nearest ancestor holding a visible submit
// control; a climb that would swallow a form root, or reaches the page
// level, stops and uses the field's parent. A field whose parent already
// holds a form root is left ungrouped. A container nested inside
// another group's container is folded into the outer group. Groups and
// their fields come back in document order.
func LooseFormGroups(root *dom.Node, forms []*dom.Node) []FormGroup {
	type placed struct{ field, container *dom.Node }
	var found []placed
	containers := make(map[*dom.Node]bool)
	tree := dom.NewTree(root.Document())

	root.Walk(func(n *dom.Node) bool {
		for _, f := range forms {
			if f == n {
				return false
			}
		}
		if !looseField(n) {
			return true
		}
		if c := containerFor(tree, n, forms); c != nil {
			found = append(found, placed{field: n, container: c})
			containers[c] = true
		}
		return true
	})

	var groups []FormGroup
	index := make(map[*dom.Node]int)
	for _, p := range found {
		c := outermost(p.container, containers)
		i, ok := index[c]
		if !ok {
			i = len(groups)
			index[c] = i
			groups = append(groups, FormGroup{Container: c})
		}
		groups[i].Fields = append(groups[i].Fields, p.field)
	}
	return groups
}

// outermost returns the highest ancestor-or-self of c that is itself a container.
func outermost(c *dom.Node, containers map[*dom.Node]bool) *dom.Node {
	top := c
	for cur := c.Parent; cur != nil; cur = cur.Parent {
		if containers[cur] {
			top = cur
		}
	}
	return top
}

func looseField(n *dom.Node) bool {
	switch n.Tag {
	case "select", "textarea":
	case "input":
		t, _ := n.Attr("type")
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "hidden", "submit", "button", "reset", "image":
			return false
		}
	default:
		return false
	}
	if _, disabled := n.Attr("disabled"); disabled {
		return false
	}
	return n.Visible()
}

func containerFor(tree *dom.Tree, field *dom.Node, forms []*dom.Node) *dom.Node {
	fallback := field.Parent
	if fallback == nil || fallback.IsDocument() || holdsAny(fallback, forms) {
		return nil
	}
	for cur := field.Parent; cur != nil && !cur.IsDocument() && !pageLevel[cur.Tag]; cur = cur.Parent {
		if holdsAny(cur, forms) {
			break
		}
		if hasSubmitControl(tree, cur) {
			return cur
		}
	}
	return fallback
}

func holdsAny(n *dom.Node, forms []*dom.Node) bool {
	for _, f := range forms {
		if n.Contains(f) {
			return true
		}
	}
	return false
}

func hasSubmitControl(tree *dom.Tree, n *dom.Node) bool {
	for _, b := range tree.QueryAll(submitLike, n) {
		if b.Visible() {
			return true
		}
	}
	return false
}
