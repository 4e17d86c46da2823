// internal/oracle/stub.go
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
	"github.com/xkilldash9x/scalpel-explore/internal/selector"
)

// Call records one Synthesize invocation on a Stub.
type Call struct {
	Task schemas.OracleTask
	Vars map[string]string
}

// Stub is a deterministic oracle. Queued replies are served first, in order,
// with the last one repeating; otherwise replies are derived heuristically
// from the template variables.
type Stub struct {
	mu     sync.Mutex
	queued map[schemas.OracleTask][]json.RawMessage
	calls  []Call
}

// NewStub creates a Stub with no queued replies.
func NewStub() *Stub {
	return &Stub{queued: make(map[schemas.OracleTask][]json.RawMessage)}
}

// Queue appends canned replies for a task.
func (s *Stub) Queue(task schemas.OracleTask, replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range replies {
		s.queued[task] = append(s.queued[task], json.RawMessage(r))
	}
}

// Calls returns a copy of the recorded invocations.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount counts the invocations of one task.
func (s *Stub) CallCount(task schemas.OracleTask) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Task == task {
			n++
		}
	}
	return n
}

// Synthesize implements schemas.Oracle.
func (s *Stub) Synthesize(ctx context.Context, task schemas.OracleTask, vars map[string]string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	s.calls = append(s.calls, Call{Task: task, Vars: copied})
	if q := s.queued[task]; len(q) > 0 {
		reply := q[0]
		if len(q) > 1 {
			s.queued[task] = q[1:]
		}
		s.mu.Unlock()
		return reply, nil
	}
	s.mu.Unlock()

	switch task {
	case schemas.TaskElementGeneration:
		return Empty(task), nil
	case schemas.TaskFormFillValuesOnly:
		return valuesOnly(vars["form_fields_info"]), nil
	case schemas.TaskFormFill:
		data, _ := formData(vars["form_html"])
		return json.Marshal(data)
	case schemas.TaskFormFillWithSubmit:
		data, submits := formData(vars["form_html"])
		reply := struct {
			FormData          map[string]string `json:"formData"`
			SubmitSelectors   []string          `json:"submitSelectors"`
			RecommendedSubmit string            `json:"recommendedSubmitSelector"`
			SubmitStrategy    string            `json:"submitStrategy"`
		}{FormData: data, SubmitSelectors: submits, SubmitStrategy: "button_click"}
		if len(submits) > 0 {
			reply.RecommendedSubmit = submits[0]
		} else {
			reply.SubmitStrategy = "form_submit"
		}
		return json.Marshal(reply)
	case schemas.TaskFormFix:
		return fixData(vars["form_html"], vars["last_data"]), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
}

// Close implements Service.
func (s *Stub) Close() error { return nil }

func valuesOnly(fieldsJSON string) json.RawMessage {
	var fields []FieldInfo
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return Empty(schemas.TaskFormFillValuesOnly)
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Name] = DefaultValue(f)
	}
	raw, _ := json.Marshal(out)
	return raw
}

// formData derives selector-keyed values and submit candidates from markup.
func formData(markup string) (map[string]string, []string) {
	data := make(map[string]string)
	var submits []string
	doc, err := dom.ParseString(markup)
	if err != nil {
		return data, nil
	}
	synth := selector.New(doc, selector.FullPageDepth)
	doc.Walk(func(n *dom.Node) bool {
		switch {
		case isSubmitControl(n):
			submits = append(submits, controlSelector(synth, n))
		case isFillable(n):
			data[controlSelector(synth, n)] = DefaultValue(FieldInfoFromNode(n))
		}
		return true
	})
	return data, submits
}

// fixData keeps the previous values and fills the ones left empty.
func fixData(markup, lastData string) json.RawMessage {
	last := make(map[string]string)
	if err := json.Unmarshal([]byte(lastData), &last); err != nil {
		return Empty(schemas.TaskFormFix)
	}
	doc, _ := dom.ParseString(markup)
	for sel, v := range last {
		if v != "" {
			continue
		}
		info := FieldInfo{Name: sel, Type: "text"}
		if doc != nil {
			if nodes, err := dom.Query(doc, sel); err == nil && len(nodes) == 1 {
				info = FieldInfoFromNode(nodes[0])
			}
		}
		last[sel] = DefaultValue(info)
	}
	raw, _ := json.Marshal(last)
	return raw
}

func isFillable(n *dom.Node) bool {
	switch n.Tag {
	case "select", "textarea":
		return n.Visible()
	case "input":
		switch ControlKind(n) {
		case "hidden", "submit", "button", "reset", "image":
			return false
		}
		return n.Visible()
	}
	return false
}

func isSubmitControl(n *dom.Node) bool {
	kind := ControlKind(n)
	if n.Tag == "input" {
		return kind == "submit" || kind == "image"
	}
	if n.Tag != "button" {
		return false
	}
	t, ok := n.Attr("type")
	return !ok || strings.EqualFold(t, "submit")
}

// controlSelector prefers a name attribute, which survives re-rendering
// better than a positional path.
func controlSelector(synth *selector.Synthesizer, n *dom.Node) string {
	if name, _ := n.Attr("name"); name != "" && !strings.ContainsAny(name, `"\`) {
		return fmt.Sprintf(`%s[name="%s"]`, n.Tag, name)
	}
	sel, _ := synth.Synthesize(n)
	return sel
}
