// internal/form/validate.go
package form

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

var (
	errorIndicators = dom.MustCompile(`.error, .error-message, .errors, .invalid-feedback, .field-error, .form-error, ` +
		`.ant-form-item-explain-error, .el-form-item__error, .alert-danger, .alert-error, .text-danger`)
	successIndicators = dom.MustCompile(`.success, .success-message, .alert-success, .toast-success, ` +
		`.ant-message-success, .el-message--success, .thank-you, [data-status="success"]`)
	loadingIndicators = dom.MustCompile(`.loading, .spinner, .ant-spin-spinning, .el-loading-mask, [aria-busy="true"]`)
	invalidFields     = dom.MustCompile(`[aria-invalid="true"]`)

	// interactionErrorPattern marks feedback that is about missing or
	// unusable fields rather than wrong values.
	interactionErrorPattern = regexp.MustCompile(`(?i)required|invalid|cannot be (empty|blank)|can't be (empty|blank)|must not be (empty|blank)|` +
		`is missing|please (fill|enter|select)|not interactable|element not found|` +
		`必填|不能为空|请输入|请填写|请选择`)
)

const maxSignal = 200

// Verdict is the outcome of one submission attempt.
type Verdict struct {
	Success bool
	Signals []string
	Details string
}

// Baseline is the set of indicators already visible before a form was
// touched. Validate ignores them, so a standing banner neither fails nor
// passes a submission. The zero value is an empty baseline.
type Baseline struct {
	errors    map[string]bool
	successes map[string]bool
}

// TakeBaseline records the visible error and success indicators and the
// fields already marked invalid.
func TakeBaseline(root *dom.Node) Baseline {
	b := Baseline{errors: make(map[string]bool), successes: make(map[string]bool)}
	for _, n := range errorIndicators.QueryAll(root) {
		if n.Visible() {
			b.errors[indicatorKey(n)] = true
		}
	}
	for _, n := range invalidFields.QueryAll(root) {
		b.errors[invalidKey(n)] = true
	}
	for _, n := range successIndicators.QueryAll(root) {
		if n.Visible() {
			b.successes[indicatorKey(n)] = true
		}
	}
	return b
}

// Len returns how many indicators the baseline holds.
func (b Baseline) Len() int { return len(b.errors) + len(b.successes) }

// Snapshots are rebuilt on every read, so indicators are identified by what
// they show rather than by node.
func indicatorKey(n *dom.Node) string {
	return n.Tag + "|" + n.ClassString() + "|" + strings.TrimSpace(n.Text)
}

func invalidKey(n *dom.Node) string { return "invalid|" + fieldLabel(n) }

// Validate reads the page after a submission. Checks run in order: visible
// error indicators, visible success indicators, a URL change, the form
// disappearing, and finally a form still on screen with nothing loading.
// Indicators recorded in base do not count.
func Validate(root *dom.Node, base Baseline, formSelector, originURL, currentURL string, submitted bool) Verdict {
	var signals []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = dom.Truncate(strings.TrimSpace(s), maxSignal)
		if s != "" && !seen[s] {
			seen[s] = true
			signals = append(signals, s)
		}
	}
	for _, n := range errorIndicators.QueryAll(root) {
		if n.Visible() && !base.errors[indicatorKey(n)] {
			add(n.Text)
		}
	}
	for _, n := range invalidFields.QueryAll(root) {
		if !base.errors[invalidKey(n)] {
			add("field marked invalid: " + fieldLabel(n))
		}
	}
	if len(signals) > 0 {
		return Verdict{Signals: signals, Details: "error indicator visible"}
	}

	for _, n := range successIndicators.QueryAll(root) {
		if n.Visible() && !base.successes[indicatorKey(n)] {
			return Verdict{Success: true, Details: "success indicator visible: " + dom.Truncate(n.Text, maxSignal)}
		}
	}
	if currentURL != "" && originURL != "" && currentURL != originURL {
		return Verdict{Success: true, Details: fmt.Sprintf("navigated to %s", currentURL)}
	}

	formVisible := false
	if formSelector != "" {
		if nodes, err := dom.Query(root, formSelector); err == nil {
			for _, n := range nodes {
				if n.Visible() {
					formVisible = true
					break
				}
			}
		}
	}
	if formSelector != "" && !formVisible {
		return Verdict{Success: true, Details: "form no longer visible"}
	}

	loading := false
	for _, n := range loadingIndicators.QueryAll(root) {
		if n.Visible() {
			loading = true
			break
		}
	}
	if formVisible && !loading {
		return Verdict{Details: "form still visible with no loading indicator"}
	}
	if submitted {
		return Verdict{Success: true, Details: "submission dispatched"}
	}
	return Verdict{Details: "no submission path succeeded"}
}

// IsInteractionError reports whether feedback names missing or unusable
// fields. Such attempts retry with fewer fields instead of new values.
func IsInteractionError(feedback string) bool {
	return interactionErrorPattern.MatchString(feedback)
}

func fieldLabel(n *dom.Node) string {
	for _, a := range []string{"name", "id", "placeholder"} {
		if v, _ := n.Attr(a); v != "" {
			return v
		}
	}
	return n.Tag
}
