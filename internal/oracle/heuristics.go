// internal/oracle/heuristics.go
package oracle

import (
	"strings"

	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

// FieldInfo is the per-field metadata sent with form_fill_values_only.
type FieldInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
	Markup      string `json:"markup,omitempty"`
}

// FieldInfoFromNode derives field metadata from a form control.
func FieldInfoFromNode(n *dom.Node) FieldInfo {
	info := FieldInfo{
		Name:   NameHint(n),
		Type:   ControlKind(n),
		Markup: dom.Truncate(n.Markup, 200),
	}
	info.Placeholder, _ = n.Attr("placeholder")
	_, info.Required = n.Attr("required")
	if v, _ := n.Attr("aria-required"); v == "true" {
		info.Required = true
	}
	return info
}

// NameHint picks the most descriptive identifier a control exposes.
func NameHint(n *dom.Node) string {
	for _, attr := range []string{"name", "id", "placeholder", "aria-label", "data-field"} {
		if v, _ := n.Attr(attr); strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return n.Tag
}

// ControlKind is the input type, or the tag for select and textarea.
func ControlKind(n *dom.Node) string {
	if n.Tag != "input" {
		return n.Tag
	}
	t, _ := n.Attr("type")
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "text"
	}
	return t
}

var (
	codeHints     = []string{"captcha", "verify", "otp", "code", "验证码"}
	emailHints    = []string{"email", "mail", "邮箱"}
	passwordHints = []string{"pass", "pwd", "密码"}
	phoneHints    = []string{"phone", "mobile", "tel", "手机", "电话"}
	urlHints      = []string{"url", "website", "homepage", "网址"}
	dateHints     = []string{"date", "birthday", "日期", "生日"}
	numberHints   = []string{"age", "amount", "quantity", "count", "price", "数量", "金额"}
)

// DefaultValue produces a plausible value for a field from its type and
// naming. It backs the stub oracle and fills fields a degraded oracle left out.
func DefaultValue(f FieldInfo) string {
	kind := strings.ToLower(f.Type)
	hint := strings.ToLower(f.Name + " " + f.Placeholder)

	switch kind {
	case "checkbox", "radio":
		return "true"
	case "email":
		return "test@example.com"
	case "password":
		return "TestPass123!"
	case "tel":
		return "13800138000"
	case "number", "range":
		return "1"
	case "date":
		return "2024-01-15"
	case "datetime-local":
		return "2024-01-15T10:00"
	case "time":
		return "10:00"
	case "url":
		return "https://example.com"
	case "file":
		return "test.jpg"
	case "color":
		return "#336699"
	}

	switch {
	case containsAny(hint, codeHints):
		return "123456"
	case containsAny(hint, emailHints):
		return "test@example.com"
	case containsAny(hint, passwordHints):
		return "TestPass123!"
	case containsAny(hint, phoneHints):
		return "13800138000"
	case containsAny(hint, urlHints):
		return "https://example.com"
	case containsAny(hint, dateHints):
		return "2024-01-15"
	case containsAny(hint, numberHints):
		return "1"
	case kind == "textarea":
		return "Automated exploration test input."
	}
	return "testuser"
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
