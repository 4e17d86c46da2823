// internal/popup/detect.go
package popup

import (
	"strings"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/classify"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
	"github.com/xkilldash9x/scalpel-explore/internal/selector"
)

const maxExcerpt = 100

// DetectSelectors are tried in order; the first visible match wins.
var DetectSelectors = []string{
	".modal", ".dialog", ".popup", `[role="dialog"]`, `[aria-modal="true"]`,
	".ant-modal", ".el-dialog", ".v-dialog", ".MuiDialog-root", ".ReactModal__Content",
	".weui-dialog", ".van-dialog", ".toast", ".notification", ".alert",
	".ant-message", ".el-message-box", `[class*="modal"]`, `[class*="dialog"]`,
}

var detectors = func() []*dom.Selector {
	out := make([]*dom.Selector, len(DetectSelectors))
	for i, s := range DetectSelectors {
		out[i] = dom.MustCompile(s)
	}
	return out
}()

var kindKeywords = []struct {
	kind  schemas.PopupKind
	words []string
}{
	{schemas.PopupError, []string{"error", "danger", "fail"}},
	{schemas.PopupSuccess, []string{"success"}},
	{schemas.PopupWarning, []string{"warning", "warn"}},
	{schemas.PopupConfirm, []string{"confirm"}},
}

// Detect finds the popup currently shown in a snapshot. It returns nil when
// no candidate has a non-zero box, is visible and is not fully transparent.
// The same overlay always yields the same descriptor.
func Detect(root *dom.Node) (*schemas.PopupDescriptor, *dom.Node) {
	for _, sel := range detectors {
		for _, n := range sel.QueryAll(root) {
			if !n.Visible() || !n.Opaque() {
				continue
			}
			return describe(root, n), n
		}
	}
	return nil, nil
}

func describe(root, n *dom.Node) *schemas.PopupDescriptor {
	sel, _ := selector.New(root, selector.FullPageDepth).Synthesize(n)
	return &schemas.PopupDescriptor{
		Selector:     sel,
		Kind:         InferKind(n),
		TextExcerpt:  dom.Truncate(n.Text, maxExcerpt),
		FormsPresent: hasNestedForm(classify.New(), root, n),
	}
}

// InferKind maps the overlay's class names onto a kind, defaulting to info.
func InferKind(n *dom.Node) schemas.PopupKind {
	classes := n.ClassString()
	for _, k := range kindKeywords {
		for _, w := range k.words {
			if strings.Contains(classes, w) {
				return k.kind
			}
		}
	}
	if r, _ := n.Attr("role"); r == "alertdialog" {
		return schemas.PopupConfirm
	}
	return schemas.PopupInfo
}

func hasNestedForm(c *classify.Classifier, root, overlay *dom.Node) bool {
	for _, e := range c.Classify(root, overlay) {
		if e.Type == schemas.ElementForm {
			return true
		}
	}
	return false
}
