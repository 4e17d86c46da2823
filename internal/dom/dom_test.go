// internal/dom/dom_test.go
package dom

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePage = `<!DOCTYPE html>
<html><head><title>t</title></head>
<body>
  <div id="app" class="layout main">
    <ul class="menu">
      <li class="item"><a href="/a">A</a></li>
      <li class="item active"><a href="/b">B</a></li>
      <li class="item"><a href="/c" data-route="/c">C</a></li>
    </ul>
    <form class="login" action="/login">
      <input name="username" type="text" placeholder="User">
      <input name="password" type="password" required>
      <button type="submit" class="btn btn-primary">Sign in</button>
    </form>
    <div style="display:none"><span class="ghost">hidden</span></div>
    <input type="hidden" name="csrf" value="x">
  </div>
</body></html>`

func mustParse(t *testing.T, markup string) *Node {
	t.Helper()
	root, err := ParseString(markup)
	require.NoError(t, err)
	return root
}

func TestQuery(t *testing.T) {
	root := mustParse(t, fixturePage)

	testCases := []struct {
		name     string
		selector string
		want     int
	}{
		{"type", "li", 3},
		{"id", "#app", 1},
		{"class compound", "li.item.active", 1},
		{"child combinator", "ul.menu > li > a", 3},
		{"descendant combinator", "#app a", 3},
		{"nth-child", "ul > li:nth-child(2) > a", 1},
		{"attribute presence", "[data-route]", 1},
		{"attribute equals", `input[name="password"]`, 1},
		{"attribute contains", `[class*="prim"]`, 1},
		{"attribute prefix", `a[href^="/"]`, 3},
		{"attribute fold", `input[placeholder="user" i]`, 1},
		{"group", "form, ul", 2},
		{"child does not skip levels", "#app > li", 0},
		{"universal", "form > *", 3},
		{"sibling combinator", "li.item + li.item", 2},
		{"structural pseudo-class", "ul > li:first-child > a", 1},
		{"negation", "li:not(.active)", 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Count(root, tc.selector)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	for _, sel := range []string{"[", "a >", "", "   ", "#", "div["} {
		_, err := Compile(sel)
		assert.ErrorIs(t, err, ErrUnsupportedSelector, sel)
	}
}

func TestQuery_NodesBuiltInCode(t *testing.T) {
	// Identity fields are authoritative even when the attribute map lacks them.
	root := &Node{Index: -1}
	list := &Node{Tag: "ul", ID: "menu", Parent: root}
	root.Children = []*Node{list}
	for i, cls := range []string{"item", "item active"} {
		li := &Node{Tag: "li", Classes: strings.Fields(cls), Attrs: map[string]string{"data-pos": strconv.Itoa(i)}, Parent: list, Index: i + 1}
		list.Children = append(list.Children, li)
	}

	got, err := Query(root, "#menu > li.active[data-pos='1']")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, list.Children[1], got[0])

	sel := MustCompile("ul li:nth-child(1)")
	assert.True(t, sel.Match(list.Children[0]))
	assert.False(t, sel.Match(list.Children[1]))
	assert.False(t, sel.Match(root), "the document never matches")
}

func TestTree_ReflectsSnapshotAtBuildTime(t *testing.T) {
	root := mustParse(t, `<div id="box"><p>one</p></div>`)
	sel := MustCompile("#box > p")
	tree := NewTree(root)
	require.Len(t, tree.QueryAll(sel, root), 1)

	box, err := Query(root, "#box")
	require.NoError(t, err)
	extra := &Node{Tag: "p", Parent: box[0]}
	box[0].Children = append(box[0].Children, extra)

	assert.Len(t, tree.QueryAll(sel, root), 1, "a built tree is not refreshed")
	assert.Len(t, sel.QueryAll(root), 2, "package helpers mirror the current tree")
}

func TestQuery_ScopeExcludesSelfButSeesAncestors(t *testing.T) {
	root := mustParse(t, fixturePage)
	forms, err := Query(root, "form")
	require.NoError(t, err)
	require.Len(t, forms, 1)

	// The ancestor chain outside the scope still participates in matching.
	got, err := Query(forms[0], "#app input")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	self, err := Query(forms[0], "form")
	require.NoError(t, err)
	assert.Empty(t, self)
}

func TestVisible_ParsedTree(t *testing.T) {
	root := mustParse(t, fixturePage)

	ghost, err := Query(root, ".ghost")
	require.NoError(t, err)
	require.Len(t, ghost, 1)
	assert.False(t, ghost[0].Visible(), "inline display:none on an ancestor hides the node")

	hidden, err := Query(root, `input[name="csrf"]`)
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	assert.False(t, hidden[0].Visible())

	btn, err := Query(root, "button")
	require.NoError(t, err)
	require.Len(t, btn, 1)
	assert.True(t, btn[0].Visible())
	assert.Contains(t, btn[0].Markup, `type="submit"`)
	assert.Equal(t, "Sign in", btn[0].Text)
}

func TestFromSnapshot(t *testing.T) {
	data := []byte(`[
		{"i":0,"p":-1,"t":"HTML","a":{},"l":{"w":800,"h":600,"d":"block","v":"visible","o":1}},
		{"i":1,"p":0,"t":"BODY","a":{"class":"page"},"l":{"w":800,"h":600,"d":"block","v":"visible","o":1}},
		{"i":2,"p":1,"t":"BUTTON","a":{"id":"go","class":"btn primary"},"x":"Go","l":{"w":50,"h":20,"d":"inline-block","v":"visible","o":1,"cu":"pointer"}},
		{"i":3,"p":1,"t":"DIV","a":{"id":"result"},"x":"","l":{"w":0,"h":0,"d":"block","v":"visible","o":1}}
	]`)

	root, err := FromSnapshot(data)
	require.NoError(t, err)

	nodes, err := Query(root, "#go")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	btn := nodes[0]
	assert.Equal(t, "button", btn.Tag)
	assert.Equal(t, []string{"btn", "primary"}, btn.Classes)
	assert.True(t, btn.Visible())
	assert.Equal(t, "pointer", btn.Cursor())

	result, err := Query(root, "body > div")
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.False(t, result[0].Visible(), "a zero box is not visible")
	assert.Equal(t, 2, result[0].ElementIndex())
}

func TestFromSnapshot_UnknownParent(t *testing.T) {
	_, err := FromSnapshot([]byte(`[{"i":0,"p":7,"t":"DIV","a":{}}]`))
	assert.Error(t, err)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := "确定确定"
	got := Truncate(s, 4)
	assert.Equal(t, "确", got)
	assert.Equal(t, "abc", Truncate("abc", 10))
}

func TestIsPlainIdent(t *testing.T) {
	assert.True(t, IsPlainIdent("main-nav_2"))
	assert.False(t, IsPlainIdent("2col"))
	assert.False(t, IsPlainIdent("md:flex"))
	assert.False(t, IsPlainIdent(""))
	assert.False(t, IsPlainIdent("-1"))
}

func TestOuterHTML(t *testing.T) {
	doc, err := ParseString(`<form id="f" class="login"><label>User <b>name</b></label><input name="u" required><button type="submit">Go &amp; see</button></form>`)
	require.NoError(t, err)
	forms, err := Query(doc, "form")
	require.NoError(t, err)
	require.Len(t, forms, 1)

	got := forms[0].OuterHTML()
	assert.Equal(t, `<form class="login" id="f"><label><b>name</b></label><input name="u" required><button type="submit">Go &amp; see</button></form>`, got)

	reparsed, err := ParseString(got)
	require.NoError(t, err)
	n, err := Count(reparsed, `form#f > input[name="u"]`)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
