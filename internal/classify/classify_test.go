// internal/classify/classify_test.go
package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

const landingPage = `<!DOCTYPE html>
<html><body>
  <nav class="top"><a href="/home">Home</a><a href="/about">About</a></nav>
  <div class="card" onclick="go()">Card</div>
  <span role="button">Open</span>
  <form class="btn-group login"><input name="user"><input type="submit" value="Go"></form>
  <div style="display:none"><button>Hidden</button></div>
  <div><span>提交</span></div>
  <p>plain text</p>
  <div class="wrapper"><div class="inner">text</div></div>
</body></html>`

func parse(t *testing.T, markup string) *dom.Node {
	t.Helper()
	root, err := dom.ParseString(markup)
	require.NoError(t, err)
	return root
}

func types(elems []schemas.ElementDescriptor) []schemas.ElementType {
	out := make([]schemas.ElementType, len(elems))
	for i, e := range elems {
		out[i] = e.Type
	}
	return out
}

func TestClassify_Page(t *testing.T) {
	root := parse(t, landingPage)
	elems := New().Classify(root, root)

	assert.Equal(t, []schemas.ElementType{
		schemas.ElementLink,   // Home
		schemas.ElementLink,   // About
		schemas.ElementOther,  // div[onclick]
		schemas.ElementButton, // span[role=button]
		schemas.ElementForm,   // form with button-like classes
		schemas.ElementForm,   // input[name=user]
		schemas.ElementButton, // input[type=submit]
		schemas.ElementOther,  // localized clickable text
	}, types(elems))

	for _, e := range elems {
		assert.True(t, e.Visible)
		assert.True(t, e.Interactive)
		assert.NotEqual(t, "Hidden", e.Text, "hidden subtree must not be classified")

		n, err := dom.Count(root, e.Selector)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "selector %q must resolve to exactly one node", e.Selector)
	}

	assert.Equal(t, "form", elems[4].Tag, "exact-tag rule wins over class patterns")
	assert.Equal(t, "Open", elems[3].Text)
	assert.Equal(t, "提交", elems[7].Text)
}

func TestClassify_PopupScope(t *testing.T) {
	root := parse(t, `<html><body>
		<div class="modal"><button class="ok">OK</button></div>
		<div class="modal"><button class="ok">OK</button><a href="#">Close</a></div>
	</body></html>`)
	overlays, err := dom.Query(root, "div.modal")
	require.NoError(t, err)
	require.Len(t, overlays, 2)

	elems := New().Classify(root, overlays[1])
	require.Len(t, elems, 2)
	assert.Equal(t, schemas.ElementButton, elems[0].Type)
	assert.Equal(t, schemas.ElementLink, elems[1].Type)

	for _, e := range elems {
		got, err := dom.Query(root, e.Selector)
		require.NoError(t, err)
		require.Len(t, got, 1, e.Selector)
		assert.True(t, overlays[1].Contains(got[0]), "scoped selector %q escaped the overlay", e.Selector)
	}
}

func TestClassify_LiveSnapshotPointerOrigin(t *testing.T) {
	data := []byte(`[
		{"i":0,"p":-1,"t":"HTML","a":{},"l":{"w":800,"h":600,"d":"block","v":"visible","o":1,"cu":"auto"}},
		{"i":1,"p":0,"t":"BODY","a":{},"l":{"w":800,"h":600,"d":"block","v":"visible","o":1,"cu":"auto"}},
		{"i":2,"p":1,"t":"DIV","a":{"class":"tile"},"x":"Tile","l":{"w":100,"h":40,"d":"block","v":"visible","o":1,"cu":"pointer"}},
		{"i":3,"p":2,"t":"SPAN","a":{},"x":"Tile","l":{"w":30,"h":20,"d":"inline","v":"visible","o":1,"cu":"pointer"}},
		{"i":4,"p":1,"t":"BUTTON","a":{},"x":"Gone","l":{"w":0,"h":0,"d":"none","v":"visible","o":1,"cu":"pointer"}}
	]`)
	root, err := dom.FromSnapshot(data)
	require.NoError(t, err)

	elems := New().Classify(root, root)
	require.Len(t, elems, 1)
	assert.Equal(t, "div", elems[0].Tag)
	assert.Equal(t, schemas.ElementContainer, elems[0].Type)
}

func TestWithRules_AppendsBeforeFallback(t *testing.T) {
	root := parse(t, `<html><body><my-chip class="chip">x</my-chip><div class="chip">y</div></body></html>`)
	chip := RuleFunc{
		RuleName: "chip",
		Fn: func(n *dom.Node) (schemas.ElementType, bool) {
			if n.Tag == "my-chip" {
				return schemas.ElementButton, true
			}
			return "", false
		},
	}

	c := New(WithRules(chip))
	nodes, err := dom.Query(root, ".chip")
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, schemas.ElementButton, c.Type(nodes[0]))
	assert.Equal(t, schemas.ElementOther, c.Type(nodes[1]))
	assert.Equal(t, schemas.ElementOther, New().Type(nodes[0]))
	assert.Equal(t, "chip", chip.Name())
}

func TestPrioritize_Stable(t *testing.T) {
	in := []schemas.ElementDescriptor{
		{Selector: "a", Type: schemas.ElementLink},
		{Selector: "b", Type: schemas.ElementButton},
		{Selector: "c", Type: schemas.ElementOther},
		{Selector: "d", Type: schemas.ElementButton},
		{Selector: "e", Type: schemas.ElementContainer},
	}

	got := Prioritize(in)

	var order []string
	for _, e := range got {
		order = append(order, e.Selector)
	}
	assert.Equal(t, []string{"b", "d", "a", "c", "e"}, order)
	assert.Equal(t, "a", in[0].Selector, "input must not be reordered in place")
}

func TestDedup(t *testing.T) {
	got := Dedup([]schemas.ElementDescriptor{
		{Selector: "#a", Text: "first"},
		{Selector: "#b"},
		{Selector: "#a", Text: "second"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
}

func TestFormsIn(t *testing.T) {
	root := parse(t, `<html><body>
		<form id="visible"><div role="form"><input></div></form>
		<form id="hidden" style="display:none"><input></form>
		<div role="form" id="region"><input></div>
	</body></html>`)

	forms := FormsIn(root)
	require.Len(t, forms, 2)
	assert.Equal(t, "visible", forms[0].ID)
	assert.Equal(t, "region", forms[1].ID)
}

func TestInteractive(t *testing.T) {
	root := parse(t, `<html><body>
		<div id="vue" @click="x">a</div>
		<div id="ng" ng-click="x">b</div>
		<li id="tabbable" tabindex="0">c</li>
		<li id="untabbable" tabindex="-1">d</li>
		<summary id="sum">e</summary>
		<span id="more">More</span>
		<span id="long">Submit this very long sentence please</span>
		<div id="press" onmousedown="x()">f</div>
		<div id="touch" ontouchstart="x()">g</div>
		<div id="loader" onload="init()">h</div>
		<div id="broken" onerror="retry()">i</div>
		<div id="scroller" onscroll="track()">j</div>
	</body></html>`)

	want := map[string]bool{
		"vue": true, "ng": true, "tabbable": true, "untabbable": false,
		"sum": true, "more": true, "long": false,
		"press": true, "touch": true, "loader": false, "broken": false, "scroller": false,
	}
	for id, expected := range want {
		nodes, err := dom.Query(root, "#"+id)
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, expected, Interactive(nodes[0]), id)
	}
}

func TestLooseFormGroups(t *testing.T) {
	root := parse(t, `<html><body>
		<div id="app">
			<div class="login-box" id="login">
				<label>User <input name="username"></label>
				<input type="password" name="password">
				<input type="hidden" name="csrf">
				<button>Sign in</button>
			</div>
			<section id="newsletter">
				<div class="row"><input type="email" name="email"></div>
				<div class="row"><a role="button" class="btn">Subscribe</a></div>
			</section>
			<form id="real"><input name="inside"><button>Send</button></form>
			<input name="orphan" disabled>
		</div>
		<input name="stray">
	</body></html>`)

	groups := LooseFormGroups(root, FormsIn(root))
	require.Len(t, groups, 2)

	assert.Equal(t, "login", groups[0].Container.ID)
	var names []string
	for _, f := range groups[0].Fields {
		names = append(names, f.Attrs["name"])
	}
	assert.Equal(t, []string{"username", "password"}, names, "labels are climbed through and hidden inputs skipped")

	assert.Equal(t, "newsletter", groups[1].Container.ID)
	require.Len(t, groups[1].Fields, 1)
	assert.Equal(t, "email", groups[1].Fields[0].Attrs["name"])
}

func TestLooseFormGroups_NestedContainersFold(t *testing.T) {
	root := parse(t, `<html><body>
		<div id="outer">
			<input name="title">
			<div id="inner"><input name="tag"><button>Add tag</button></div>
			<button>Publish</button>
		</div>
	</body></html>`)

	groups := LooseFormGroups(root, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, "outer", groups[0].Container.ID)
	require.Len(t, groups[0].Fields, 2)
	assert.Equal(t, "title", groups[0].Fields[0].Attrs["name"])
	assert.Equal(t, "tag", groups[0].Fields[1].Attrs["name"])
}
