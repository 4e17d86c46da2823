// internal/dom/render.go
package dom

import (
	"html"
	"sort"
	"strings"
)

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// OuterHTML re-serializes n and its subtree. The tree keeps no text nodes,
// so text is emitted for leaf elements only. Attributes are written in name
// order, which keeps the output stable across snapshots.
func (n *Node) OuterHTML() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	if n.IsDocument() {
		for _, c := range n.Children {
			c.render(b)
		}
		return
	}
	b.WriteByte('<')
	b.WriteString(n.Tag)
	names := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		b.WriteByte(' ')
		b.WriteString(k)
		if v := n.Attrs[k]; v != "" {
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(v))
			b.WriteByte('"')
		}
	}
	b.WriteByte('>')
	if voidTags[n.Tag] {
		return
	}
	if len(n.Children) == 0 {
		b.WriteString(html.EscapeString(n.Text))
	}
	for _, c := range n.Children {
		c.render(b)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteByte('>')
}
