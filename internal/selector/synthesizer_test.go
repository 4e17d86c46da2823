// internal/selector/synthesizer_test.go
package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

const navPage = `<!DOCTYPE html>
<html><body>
  <div id="app" class="layout">
    <ul class="menu ng-scope">
      <li class="item"><a href="/a">A</a></li>
      <li class="item active"><a href="/b">B</a></li>
      <li class="item"><a href="/c">C</a></li>
    </ul>
    <div id="dup"><span>one</span></div>
    <div id="dup"><span>two</span></div>
    <table><tr><td><button>Edit</button></td><td><button>Delete</button></td></tr></table>
  </div>
</body></html>`

func parse(t *testing.T, markup string) *dom.Node {
	t.Helper()
	root, err := dom.ParseString(markup)
	require.NoError(t, err)
	return root
}

func queryOne(t *testing.T, scope *dom.Node, sel string, idx int) *dom.Node {
	t.Helper()
	nodes, err := dom.Query(scope, sel)
	require.NoError(t, err)
	require.Greater(t, len(nodes), idx)
	return nodes[idx]
}

func TestSynthesize_ResolvesToOriginatingNode(t *testing.T) {
	root := parse(t, navPage)
	s := New(root, FullPageDepth)

	for _, n := range root.Descendants() {
		sel, ok := s.Synthesize(n)
		require.True(t, ok, "no unique selector for <%s> %q", n.Tag, n.Text)

		got, err := dom.Query(root, sel)
		require.NoError(t, err, sel)
		require.Len(t, got, 1, sel)
		assert.Same(t, n, got[0], sel)
	}
}

func TestSynthesize_Shapes(t *testing.T) {
	root := parse(t, navPage)
	s := New(root, FullPageDepth)

	t.Run("unique id short-circuits", func(t *testing.T) {
		sel, ok := s.Synthesize(queryOne(t, root, "#app", 0))
		assert.True(t, ok)
		assert.Equal(t, "#app", sel)
	})

	t.Run("state and framework classes are dropped", func(t *testing.T) {
		sel, ok := s.Synthesize(queryOne(t, root, "a", 1))
		assert.True(t, ok)
		assert.Equal(t, "li.item:nth-child(2) > a", sel)
	})

	t.Run("duplicated ids never anchor", func(t *testing.T) {
		sel, ok := s.Synthesize(queryOne(t, root, "span", 1))
		assert.True(t, ok)
		assert.NotContains(t, sel, "#dup")
	})

	t.Run("positional qualifier disambiguates same-tag siblings", func(t *testing.T) {
		sel, ok := s.Synthesize(queryOne(t, root, "button", 1))
		assert.True(t, ok)
		assert.Contains(t, sel, ":nth-child(2)")
	})
}

func TestSynthesize_DepthCapReturnsBestEffort(t *testing.T) {
	root := parse(t, `<html><body>
		<section><p><b>x</b></p></section>
		<section><p><b>y</b></p></section>
	</body></html>`)

	sel, ok := New(root, 2).Synthesize(queryOne(t, root, "b", 0))
	assert.False(t, ok)
	assert.Equal(t, "p > b", sel)

	sel, ok = New(root, FullPageDepth).Synthesize(queryOne(t, root, "b", 0))
	assert.True(t, ok)
	assert.Equal(t, "section:nth-child(1) > p > b", sel)
}

func TestSynthesize_PopupScopeIsAnchored(t *testing.T) {
	root := parse(t, `<html><body>
		<div class="modal" id="m1"><button class="ok">OK</button></div>
		<div class="modal"><button class="ok">OK</button></div>
	</body></html>`)

	overlay := queryOne(t, root, "div.modal", 1)
	target := queryOne(t, overlay, "button", 0)

	sel, ok := New(overlay, PopupDepth).Synthesize(target)
	require.True(t, ok)
	assert.Equal(t, "div.modal:nth-child(2) button.ok", sel)

	got, err := dom.Query(root, sel)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, target, got[0])
}

func TestSynthesize_Document(t *testing.T) {
	root := parse(t, navPage)
	sel, ok := New(root, FullPageDepth).Synthesize(root)
	assert.False(t, ok)
	assert.Empty(t, sel)
}

func TestStableClasses(t *testing.T) {
	got := StableClasses([]string{"ng-star", "active", "btn", "_x1", "css-1a2b", "md:flex", "primary", "extra"})
	assert.Equal(t, []string{"btn", "primary"}, got)
}

func TestFallbacks(t *testing.T) {
	testCases := []struct {
		name string
		sel  string
		want []string
	}{
		{
			name: "positional chain",
			sel:  "#nav > ul > li:nth-child(2) > a",
			want: []string{
				"#nav > ul > li:nth-child(2) > a",
				"#nav > ul > li > a",
				"ul > li:nth-child(2) > a",
				"li:nth-child(2) > a",
				"a",
			},
		},
		{
			name: "single segment",
			sel:  "button.primary",
			want: []string{"button.primary"},
		},
		{
			name: "positional only",
			sel:  "tr:nth-child(3)",
			want: []string{"tr:nth-child(3)", "tr"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Fallbacks(tc.sel))
		})
	}
}

func TestShortenChain(t *testing.T) {
	assert.Nil(t, ShortenChain("a"))
	assert.Equal(t, []string{"b > c", "c"}, ShortenChain("a > b > c"))
}
