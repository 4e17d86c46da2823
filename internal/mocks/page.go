// File: internal/mocks/page.go
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/browser"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

// Action mutates a FakePage in response to a user interaction.
type Action func(p *FakePage) error

// FillCall records one value injection.
type FillCall struct {
	Selector string
	Value    string
	Mode     browser.FillMode
}

// FakePage is an in-memory schemas.Page over a parsed element tree. It
// serves the engine's page scripts natively, so the click, popup and form
// logic can be exercised without a browser. Like real pages it is not safe
// for concurrent use.
//
// Interactions are scripted through the On* maps. Click and submit actions
// are looked up by the selector passed in, then by "#id" of the resolved
// node. Links without an action follow their href: hash links behave like
// pushState, other links load the target from Pages.
type FakePage struct {
	URL   string
	Route string
	Doc   *dom.Node
	// Pages holds the markup served by Navigate and Reload.
	Pages map[string]string

	OnClick  map[string]Action
	OnKey    map[string]Action
	OnSubmit map[string]Action
	OnReload Action

	// FillBlocked lists, per selector, the fill modes that report the control
	// as not interactable.
	FillBlocked map[string][]browser.FillMode
	// StickyOverlays makes the forced overlay cleanup ineffective.
	StickyOverlays bool
	// Loading reports a visible loading indicator to stability probes.
	Loading bool
	// Unstable makes every probe read see a different node count.
	Unstable    bool
	NavigateErr error

	Clicks      []string
	Keys        []string
	Navigations []string
	Submits     []string
	Fills       []FillCall
	Reloads     int
	Cleanups    int

	hooks      *fakeHooks
	requests   int
	probeReads int
	closed     bool
}

type fakeHooks struct {
	inserted int
}

var (
	_ schemas.Page           = (*FakePage)(nil)
	_ browser.DocumentSource = (*FakePage)(nil)
)

// NewFakePage serves markup at pageURL and loads it.
func NewFakePage(pageURL, markup string) *FakePage {
	p := &FakePage{
		Pages:       map[string]string{pageURL: markup},
		OnClick:     map[string]Action{},
		OnKey:       map[string]Action{},
		OnSubmit:    map[string]Action{},
		FillBlocked: map[string][]browser.FillMode{},
	}
	p.Load(pageURL, markup)
	return p
}

// -- Mutation helpers for actions --

// Load replaces the document as a full navigation would. Installed hooks are lost.
func (p *FakePage) Load(pageURL, markup string) {
	p.URL = pageURL
	p.Route = ""
	p.Doc = mustParse(markup)
	p.hooks = nil
	p.requests++
}

// SetHTML re-renders the document in place, keeping the URL and the hooks.
func (p *FakePage) SetHTML(markup string) {
	p.Doc = mustParse(markup)
}

// PushState changes the URL and the virtual route without replacing the document.
func (p *FakePage) PushState(newURL string) {
	p.URL = newURL
	p.Route = newURL
}

// Insert appends the markup's elements under the first node matching
// parentSel. Hooks count every inserted element.
func (p *FakePage) Insert(parentSel, markup string) error {
	parent, err := p.first(parentSel)
	if err != nil {
		return err
	}
	frag := mustParse("<body>" + markup + "</body>")
	body, _ := p.firstIn(frag, "body")
	if body == nil {
		return nil
	}
	for _, c := range body.Children {
		c.Parent = parent
		parent.Children = append(parent.Children, c)
		if p.hooks != nil {
			p.hooks.inserted += 1 + len(c.Descendants())
		}
	}
	return nil
}

// Remove detaches every node matching sel and returns how many were removed.
func (p *FakePage) Remove(sel string) int {
	nodes, err := dom.Query(p.Doc, sel)
	if err != nil {
		return 0
	}
	removed := 0
	for _, n := range nodes {
		if detach(n) {
			removed++
		}
	}
	return removed
}

// AddRequests simulates network traffic.
func (p *FakePage) AddRequests(n int) {
	p.requests += n
}

// Value returns the current value attribute of the first node matching sel.
func (p *FakePage) Value(sel string) string {
	n, err := p.first(sel)
	if err != nil {
		return ""
	}
	return n.Attrs["value"]
}

// HooksInstalled reports whether the insertion hooks are present.
func (p *FakePage) HooksInstalled() bool {
	return p.hooks != nil
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	return p.closed
}

// -- schemas.Page --

func (p *FakePage) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Navigations = append(p.Navigations, target)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	markup, ok := p.Pages[target]
	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", target)
	}
	p.Load(target, markup)
	return nil
}

func (p *FakePage) Click(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := p.interactable(sel)
	if err != nil {
		return err
	}
	p.Clicks = append(p.Clicks, sel)
	if action := p.lookup(p.OnClick, sel, n); action != nil {
		return action(p)
	}
	if isSubmitControl(n) {
		if form := closest(n, "form"); form != nil {
			return p.submitForm(form)
		}
	}
	if n.Tag == "a" {
		return p.follow(n)
	}
	return nil
}

func (p *FakePage) Type(ctx context.Context, sel, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := p.interactable(sel)
	if err != nil {
		return err
	}
	n.Attrs["value"] = n.Attrs["value"] + text
	return nil
}

func (p *FakePage) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Keys = append(p.Keys, key)
	if action := p.OnKey[key]; action != nil {
		return action(p)
	}
	return nil
}

func (p *FakePage) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, args, ok := browser.ParseCall(script)
	if !ok {
		return errors.New("fake page only runs the engine's page scripts")
	}
	out, err := p.run(name, args)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

func (p *FakePage) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.URL, nil
}

func (p *FakePage) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Reloads++
	if p.OnReload != nil {
		return p.OnReload(p)
	}
	markup, ok := p.Pages[p.URL]
	if !ok {
		return fmt.Errorf("nothing to reload at %s", p.URL)
	}
	current := p.URL
	p.Load(current, markup)
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\n"), ctx.Err()
}

func (p *FakePage) RequestCount() int {
	return p.requests
}

func (p *FakePage) Close(ctx context.Context) error {
	p.closed = true
	return nil
}

// Document implements browser.DocumentSource.
func (p *FakePage) Document(ctx context.Context) (*dom.Node, error) {
	return p.Doc, ctx.Err()
}

// -- Script dispatch --

func (p *FakePage) run(name string, args []json.RawMessage) (interface{}, error) {
	str := func(i int) string {
		var s string
		if i < len(args) {
			_ = json.Unmarshal(args[i], &s)
		}
		return s
	}

	switch name {
	case browser.ScriptRoute.Name:
		if p.Route != "" {
			return p.Route, nil
		}
		return p.URL, nil
	case browser.ScriptHooks.Name:
		return p.runHooks(str(0)), nil
	case browser.ScriptFill.Name:
		return p.runFill(str(0), str(1), browser.FillMode(str(2))), nil
	case browser.ScriptCleanup.Name:
		p.Cleanups++
		if p.StickyOverlays {
			return 0, nil
		}
		return p.removeOverlays(), nil
	case browser.ScriptProbe.Name:
		p.probeReads++
		nodes := len(p.Doc.Descendants())
		if p.Unstable {
			nodes += p.probeReads
		}
		return map[string]interface{}{"nodes": nodes, "loading": p.Loading, "ready": "complete"}, nil
	case browser.ScriptSubmit.Name:
		n, err := p.first(str(0))
		if err != nil {
			return false, nil
		}
		form := closest(n, "form")
		if form == nil {
			form, _ = p.firstIn(n, "form")
		}
		if form == nil {
			return false, nil
		}
		return true, p.submitForm(form)
	case browser.ScriptFocus.Name:
		_, err := p.first(str(0))
		return err == nil, nil
	case browser.ScriptCheck.Name:
		nodes, err := dom.Query(p.Doc, str(0))
		switch {
		case err != nil:
			return "invalid", nil
		case len(nodes) == 0:
			return "missing", nil
		case !nodes[0].Visible():
			return "hidden", nil
		}
		return "ok", nil
	}
	return nil, fmt.Errorf("fake page does not implement the %s script", name)
}

func (p *FakePage) runHooks(op string) map[string]interface{} {
	switch op {
	case "install":
		if p.hooks == nil {
			p.hooks = &fakeHooks{}
		}
		return map[string]interface{}{"present": true, "inserted": 0}
	case "drain":
		if p.hooks == nil {
			return map[string]interface{}{"present": false, "inserted": 0}
		}
		n := p.hooks.inserted
		p.hooks.inserted = 0
		return map[string]interface{}{"present": true, "inserted": n}
	default:
		total := 0
		if p.hooks != nil {
			total = p.hooks.inserted
		}
		p.hooks = nil
		return map[string]interface{}{"present": false, "inserted": total}
	}
}

func (p *FakePage) runFill(sel, value string, mode browser.FillMode) map[string]interface{} {
	fail := func(reason string) map[string]interface{} {
		return map[string]interface{}{"ok": false, "reason": reason}
	}
	nodes, err := dom.Query(p.Doc, sel)
	if err != nil {
		return fail("invalid selector")
	}
	if len(nodes) == 0 {
		return fail("not found")
	}
	n := nodes[0]
	for _, blocked := range p.FillBlocked[sel] {
		if blocked == mode {
			return fail("not interactable")
		}
	}
	if mode == browser.FillEvents && !n.Visible() {
		return fail("not interactable")
	}
	typ, _ := n.Attr("type")
	switch strings.ToLower(typ) {
	case "file":
		return fail("file input")
	case "checkbox", "radio":
		if v := strings.ToLower(value); v == "true" || v == "1" || v == "on" || v == "checked" || v == "yes" {
			n.Attrs["checked"] = ""
		} else {
			delete(n.Attrs, "checked")
		}
	default:
		n.Attrs["value"] = value
	}
	p.Fills = append(p.Fills, FillCall{Selector: sel, Value: value, Mode: mode})
	return map[string]interface{}{"ok": true, "reason": ""}
}

var overlayTokens = []string{"modal", "dialog", "popup", "overlay", "mask", "backdrop", "toast", "notification", "drawer"}

func (p *FakePage) removeOverlays() int {
	var doomed []*dom.Node
	p.Doc.Walk(func(n *dom.Node) bool {
		if isOverlay(n) {
			doomed = append(doomed, n)
			return false
		}
		return true
	})
	for _, n := range doomed {
		detach(n)
	}
	return len(doomed)
}

func isOverlay(n *dom.Node) bool {
	if r, _ := n.Attr("role"); r == "dialog" || r == "alertdialog" {
		return true
	}
	if m, _ := n.Attr("aria-modal"); m == "true" {
		return true
	}
	classes := n.ClassString()
	for _, tok := range overlayTokens {
		if strings.Contains(classes, tok) {
			return true
		}
	}
	return false
}

// -- Internals --

func (p *FakePage) submitForm(form *dom.Node) error {
	key := "form"
	if form.ID != "" {
		key = "#" + form.ID
	}
	p.Submits = append(p.Submits, key)
	if action := p.lookup(p.OnSubmit, key, form); action != nil {
		return action(p)
	}
	if action := p.OnSubmit["*"]; action != nil {
		return action(p)
	}
	return nil
}

func (p *FakePage) follow(a *dom.Node) error {
	href, ok := a.Attr("href")
	if !ok || href == "" {
		return nil
	}
	base, err := url.Parse(p.URL)
	if err != nil {
		return nil
	}
	if strings.HasPrefix(href, "#") {
		base.Fragment = ""
		p.PushState(base.String() + href)
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	target := base.ResolveReference(ref).String()
	if markup, ok := p.Pages[target]; ok {
		p.Load(target, markup)
	}
	return nil
}

func (p *FakePage) lookup(actions map[string]Action, sel string, n *dom.Node) Action {
	if a := actions[sel]; a != nil {
		return a
	}
	if n != nil && n.ID != "" {
		return actions["#"+n.ID]
	}
	return nil
}

func (p *FakePage) interactable(sel string) (*dom.Node, error) {
	n, err := p.first(sel)
	if err != nil {
		return nil, err
	}
	if !n.Visible() {
		return nil, fmt.Errorf("%w: %s is not visible", browser.ErrNotInteractable, sel)
	}
	return n, nil
}

func (p *FakePage) first(sel string) (*dom.Node, error) {
	return p.firstIn(p.Doc, sel)
}

func (p *FakePage) firstIn(scope *dom.Node, sel string) (*dom.Node, error) {
	nodes, err := dom.Query(scope, sel)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", browser.ErrElementNotFound, sel, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, sel)
	}
	return nodes[0], nil
}

func closest(n *dom.Node, tag string) *dom.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Tag == tag {
			return cur
		}
	}
	return nil
}

func isSubmitControl(n *dom.Node) bool {
	typ, hasType := n.Attr("type")
	typ = strings.ToLower(typ)
	switch n.Tag {
	case "button":
		return !hasType || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

func detach(n *dom.Node) bool {
	parent := n.Parent
	if parent == nil {
		return false
	}
	for i, c := range parent.Children {
		if c == n {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			n.Parent = nil
			return true
		}
	}
	return false
}

func mustParse(markup string) *dom.Node {
	doc, err := dom.ParseString(markup)
	if err != nil {
		panic(fmt.Sprintf("mocks: unparsable markup: %v", err))
	}
	return doc
}
