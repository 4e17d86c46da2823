// internal/form/extract.go
package form

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
	"github.com/xkilldash9x/scalpel-explore/internal/oracle"
	"github.com/xkilldash9x/scalpel-explore/internal/selector"
)

const maxFormHTML = 8000

// keptAttributes are copied onto FieldDescriptor.Attributes.
var keptAttributes = []string{
	"name", "id", "type", "placeholder", "autocomplete", "aria-label", "pattern",
	"minlength", "maxlength", "min", "max", "required",
}

var primaryTokens = []string{"primary", "submit", "confirm", "login", "signin"}

var buttonSelector = dom.MustCompile(`button, input[type="submit"], input[type="button"], input[type="image"], [role="button"]`)

// Extract describes a form root found in the snapshot rooted at root.
func Extract(root, form *dom.Node) schemas.FormDescriptor {
	synth := selector.New(root, selector.FullPageDepth)
	sel, _ := synth.Synthesize(form)
	desc := schemas.FormDescriptor{
		Selector: sel,
		HTML:     dom.Truncate(form.OuterHTML(), maxFormHTML),
		Inputs:   []schemas.FieldDescriptor{},
	}

	form.Walk(func(n *dom.Node) bool {
		if !fillable(n) {
			return true
		}
		fsel, _ := synth.Synthesize(n)
		if fsel == "" {
			return true
		}
		info := oracle.FieldInfoFromNode(n)
		attrs := make(map[string]string)
		for _, a := range keptAttributes {
			if v, ok := n.Attr(a); ok {
				attrs[a] = v
			}
		}
		desc.Inputs = append(desc.Inputs, schemas.FieldDescriptor{
			Selector:    fsel,
			InputKind:   info.Type,
			Attributes:  attrs,
			NameHint:    info.Name,
			Placeholder: info.Placeholder,
			Required:    info.Required,
			Markup:      info.Markup,
		})
		return true
	})

	for _, n := range buttonSelector.QueryAll(form) {
		if !n.Visible() {
			continue
		}
		bsel, _ := synth.Synthesize(n)
		if bsel == "" {
			continue
		}
		typ := "button"
		if isSubmitControl(n) {
			typ = "submit"
		}
		text := n.Text
		if text == "" {
			text, _ = n.Attr("value")
		}
		desc.Buttons = append(desc.Buttons, schemas.ButtonDescriptor{
			Selector: bsel,
			Text:     text,
			Type:     typ,
			Primary:  isPrimary(n),
		})
	}
	return desc
}

// SubmitCandidates orders buttons type=submit first, then primary styled,
// then the rest, keeping document order within each group.
func SubmitCandidates(buttons []schemas.ButtonDescriptor) []string {
	ordered := make([]schemas.ButtonDescriptor, len(buttons))
	copy(ordered, buttons)
	rank := func(b schemas.ButtonDescriptor) int {
		switch {
		case b.Type == "submit":
			return 0
		case b.Primary:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return rank(ordered[i]) < rank(ordered[j]) })
	out := make([]string, len(ordered))
	for i, b := range ordered {
		out[i] = b.Selector
	}
	return out
}

func fillable(n *dom.Node) bool {
	switch n.Tag {
	case "select", "textarea":
	case "input":
		switch oracle.ControlKind(n) {
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

func isSubmitControl(n *dom.Node) bool {
	kind := oracle.ControlKind(n)
	switch n.Tag {
	case "input":
		return kind == "submit" || kind == "image"
	case "button":
		t, ok := n.Attr("type")
		return !ok || strings.EqualFold(t, "submit")
	}
	return false
}

func isPrimary(n *dom.Node) bool {
	if isSubmitControl(n) {
		return true
	}
	classes := n.ClassString()
	for _, tok := range primaryTokens {
		if strings.Contains(classes, tok) {
			return true
		}
	}
	return false
}
