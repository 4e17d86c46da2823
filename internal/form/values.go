// internal/form/values.go
package form

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
	"github.com/xkilldash9x/scalpel-explore/internal/oracle"
)

// json sorts map keys like encoding/json so oracle prompts are stable.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// typeBuckets map an input kind to key fragments a reply might use for it.
var typeBuckets = map[string][]string{
	"email":    {"email", "mail"},
	"password": {"password", "pass", "pwd"},
	"tel":      {"phone", "mobile", "tel"},
	"text":     {"user", "account", "login", "name"},
}

// DecodeValues turns an oracle object into string values. Numbers and
// booleans are rendered the way a user would type them.
func DecodeValues(raw []byte) map[string]string {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		out[k] = stringify(v)
	}
	return out
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// MatchValue finds the reply value meant for a field. Keys are tried as the
// field's selector, then its exact name, then case-insensitively, then by
// substring in either direction, then by type bucket. A key that is present
// with an empty value counts as a match.
func MatchValue(f schemas.FieldDescriptor, reply map[string]string) (string, bool) {
	if len(reply) == 0 {
		return "", false
	}
	if v, ok := reply[f.Selector]; ok {
		return v, true
	}
	names := fieldNames(f)
	for _, name := range names {
		if v, ok := reply[name]; ok {
			return v, true
		}
	}

	keys := make([]string, 0, len(reply))
	for k := range reply {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range names {
		for _, k := range keys {
			if strings.EqualFold(k, name) {
				return reply[k], true
			}
		}
	}
	for _, name := range names {
		lname := strings.ToLower(name)
		if len(lname) < 3 {
			continue
		}
		for _, k := range keys {
			lk := strings.ToLower(k)
			if strings.Contains(lk, lname) || (len(lk) >= 3 && strings.Contains(lname, lk)) {
				return reply[k], true
			}
		}
	}
	for _, frag := range typeBuckets[strings.ToLower(f.InputKind)] {
		for _, k := range keys {
			if strings.Contains(strings.ToLower(k), frag) {
				return reply[k], true
			}
		}
	}
	return "", false
}

func fieldNames(f schemas.FieldDescriptor) []string {
	var names []string
	seen := make(map[string]bool)
	for _, n := range []string{f.NameHint, f.Attributes["name"], f.Attributes["id"]} {
		n = strings.TrimSpace(n)
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// fieldInfo is the oracle view of a descriptor.
func fieldInfo(f schemas.FieldDescriptor) oracle.FieldInfo {
	return oracle.FieldInfo{
		Name:        f.NameHint,
		Type:        f.InputKind,
		Placeholder: f.Placeholder,
		Required:    f.Required,
		Markup:      f.Markup,
	}
}

// FuzzySelectors are the last resort locators for a field whose own
// selector no longer fills.
func FuzzySelectors(hint string) []string {
	hint = strings.TrimSpace(hint)
	if hint == "" || strings.ContainsAny(hint, `"\`) {
		return nil
	}
	out := []string{fmt.Sprintf(`[name*="%s" i]`, hint)}
	if dom.IsPlainIdent(hint) {
		out = append(out, "#"+hint)
	}
	return append(out, fmt.Sprintf(`[placeholder*="%s" i]`, hint))
}

// keySelector resolves a with_submit formData key to a selector. Keys that
// are not valid selectors are treated as field names.
func keySelector(key string) string {
	if _, err := dom.Compile(key); err == nil && strings.ContainsAny(key, "#.[:> ") {
		return key
	}
	if strings.ContainsAny(key, `"\`) {
		return key
	}
	return fmt.Sprintf(`[name="%s"]`, key)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
