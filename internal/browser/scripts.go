// internal/browser/scripts.go
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

// -- Embedded page scripts --

var (
	//go:embed js/snapshot.js
	snapshotJS string
	//go:embed js/route.js
	routeJS string
	//go:embed js/hooks.js
	hooksJS string
	//go:embed js/fill.js
	fillJS string
	//go:embed js/cleanup.js
	cleanupJS string
	//go:embed js/probe.js
	probeJS string
	//go:embed js/submit.js
	submitJS string
	//go:embed js/focus.js
	focusJS string
	//go:embed js/check.js
	checkJS string
)

// Script is a named in-page function.
type Script struct {
	Name   string
	Source string
}

// The scripts the engine runs in the page.
var (
	ScriptSnapshot = Script{Name: "snapshot", Source: snapshotJS}
	ScriptRoute    = Script{Name: "route", Source: routeJS}
	ScriptHooks    = Script{Name: "hooks", Source: hooksJS}
	ScriptFill     = Script{Name: "fill", Source: fillJS}
	ScriptCleanup  = Script{Name: "cleanup", Source: cleanupJS}
	ScriptProbe    = Script{Name: "probe", Source: probeJS}
	ScriptSubmit   = Script{Name: "submit", Source: submitJS}
	ScriptFocus    = Script{Name: "focus", Source: focusJS}
	ScriptCheck    = Script{Name: "check", Source: checkJS}
)

var registry = []Script{
	ScriptSnapshot, ScriptRoute, ScriptHooks, ScriptFill, ScriptCleanup,
	ScriptProbe, ScriptSubmit, ScriptFocus, ScriptCheck,
}

// Call renders an immediately invoked expression with JSON encoded arguments.
func (s Script) Call(args ...interface{}) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("failed to encode argument %d for %s: %w", i, s.Name, err)
		}
		encoded[i] = string(b)
	}
	return "(" + s.Source + ")(" + strings.Join(encoded, ", ") + ")", nil
}

// ParseCall reverses Call for a known script. It lets page implementations
// that do not run JavaScript serve the engine's scripts natively.
func ParseCall(expr string) (name string, args []json.RawMessage, ok bool) {
	for _, s := range registry {
		prefix := "(" + s.Source + ")("
		if !strings.HasPrefix(expr, prefix) || !strings.HasSuffix(expr, ")") {
			continue
		}
		body := expr[len(prefix) : len(expr)-1]
		if err := json.Unmarshal([]byte("["+body+"]"), &args); err != nil {
			return "", nil, false
		}
		return s.Name, args, true
	}
	return "", nil, false
}

// -- Element errors --

var (
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrNotInteractable is returned when the element exists but cannot receive input.
	ErrNotInteractable = errors.New("element not interactable")
)

// -- Helpers over schemas.Page --

// DocumentSource is implemented by pages that can hand out their element
// tree directly instead of serializing it through the snapshot script.
type DocumentSource interface {
	Document(ctx context.Context) (*dom.Node, error)
}

func evaluate(ctx context.Context, page schemas.Page, s Script, res interface{}, args ...interface{}) error {
	expr, err := s.Call(args...)
	if err != nil {
		return err
	}
	if err := page.Evaluate(ctx, expr, res); err != nil {
		return fmt.Errorf("%s script failed: %w", s.Name, err)
	}
	return nil
}

// Snapshot reads the page's current element tree.
func Snapshot(ctx context.Context, page schemas.Page) (*dom.Node, error) {
	if src, ok := page.(DocumentSource); ok {
		return src.Document(ctx)
	}
	var raw json.RawMessage
	if err := evaluate(ctx, page, ScriptSnapshot, &raw); err != nil {
		return nil, err
	}
	return dom.FromSnapshot(raw)
}

// SampleRoute reads the virtual route using the known SPA routing
// conventions, falling back to location.href.
func SampleRoute(ctx context.Context, page schemas.Page) (string, error) {
	var route string
	if err := evaluate(ctx, page, ScriptRoute, &route); err != nil {
		return "", err
	}
	return route, nil
}

// FillMode selects how a value is injected.
type FillMode string

const (
	// FillEvents sets the value through the native setter and dispatches input and change.
	FillEvents FillMode = "events"
	// FillProperty assigns the value property directly.
	FillProperty FillMode = "property"
	// FillScroll scrolls the control into view before setting it.
	FillScroll FillMode = "scroll"
)

type fillResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// Fill injects a value into the control matching selector.
func Fill(ctx context.Context, page schemas.Page, selector, value string, mode FillMode) error {
	var res fillResult
	if err := evaluate(ctx, page, ScriptFill, &res, selector, value, string(mode)); err != nil {
		return err
	}
	if res.OK {
		return nil
	}
	switch res.Reason {
	case "not found", "invalid selector":
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	default:
		return fmt.Errorf("%w: %s (%s)", ErrNotInteractable, selector, res.Reason)
	}
}

// CheckClickable resolves selector in the page and reports whether the first
// match can be clicked.
func CheckClickable(ctx context.Context, page schemas.Page, selector string) error {
	var state string
	if err := evaluate(ctx, page, ScriptCheck, &state, selector); err != nil {
		return err
	}
	switch state {
	case "ok":
		return nil
	case "hidden":
		return fmt.Errorf("%w: %s is not visible", ErrNotInteractable, selector)
	default:
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
}

// Focus focuses the element matching selector.
func Focus(ctx context.Context, page schemas.Page, selector string) error {
	var ok bool
	if err := evaluate(ctx, page, ScriptFocus, &ok, selector); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

// ForceCleanup removes overlay nodes and undoes scroll locking. It returns
// the number of removed nodes.
func ForceCleanup(ctx context.Context, page schemas.Page) (int, error) {
	var removed int
	err := evaluate(ctx, page, ScriptCleanup, &removed)
	return removed, err
}

// Probe is a cheap reading of page activity used for stability polling.
type Probe struct {
	Nodes   int    `json:"nodes"`
	Loading bool   `json:"loading"`
	Ready   string `json:"ready"`
}

// ReadProbe samples the page's node count and loading indicators.
func ReadProbe(ctx context.Context, page schemas.Page) (Probe, error) {
	var p Probe
	err := evaluate(ctx, page, ScriptProbe, &p)
	return p, err
}

// SubmitForm submits the form matching selector, or the form enclosing it.
func SubmitForm(ctx context.Context, page schemas.Page, selector string) error {
	var ok bool
	if err := evaluate(ctx, page, ScriptSubmit, &ok, selector); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no form for %s", ErrElementNotFound, selector)
	}
	return nil
}
