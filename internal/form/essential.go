// internal/form/essential.go
package form

import (
	"regexp"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/oracle"
)

var essentialPattern = regexp.MustCompile(`(?i)user|name|account|login|e-?mail|pass|pwd|phone|mobile|tel|code|captcha|otp|verify|` +
	`账号|用户|邮箱|密码|手机|验证码`)

// target is a field paired with the value it will receive.
type target struct {
	field schemas.FieldDescriptor
	value string
}

func essential(f schemas.FieldDescriptor) bool {
	return essentialPattern.MatchString(f.NameHint + " " + f.Placeholder + " " + f.InputKind)
}

// essentialSubset narrows the targets to identity, password, phone and
// verification fields, padding with required fields and then document order
// up to lo. The result never grows past the current set or hi. Empty
// values are replaced with heuristic defaults.
func essentialSubset(targets []target, lo, hi int) []target {
	limit := hi
	if len(targets) < limit {
		limit = len(targets)
	}
	if lo > limit {
		lo = limit
	}

	picked := make([]bool, len(targets))
	count := 0
	pick := func(ok func(target) bool) {
		for i, t := range targets {
			if count >= limit {
				return
			}
			if !picked[i] && ok(t) {
				picked[i] = true
				count++
			}
		}
	}
	pick(func(t target) bool { return essential(t.field) })
	if count < lo {
		pick(func(t target) bool { return t.field.Required })
	}
	for i := range targets {
		if count >= lo {
			break
		}
		if !picked[i] {
			picked[i] = true
			count++
		}
	}

	out := make([]target, 0, count)
	for i, t := range targets {
		if !picked[i] {
			continue
		}
		if t.value == "" {
			t.value = oracle.DefaultValue(fieldInfo(t.field))
		}
		out = append(out, t)
	}
	return out
}
