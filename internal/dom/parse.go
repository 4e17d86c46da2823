// internal/dom/parse.go
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

const (
	maxTextLen   = 100
	maxMarkupLen = 200
)

// markupTags are the controls whose outer HTML is retained on the node.
var markupTags = map[string]bool{
	"input": true, "select": true, "textarea": true, "button": true,
}

// Parse builds a layout-less tree from HTML markup. It is used for offline
// analysis and fixtures; live pages are read through FromSnapshot.
func Parse(r io.Reader) (*Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	root := &Node{Index: -1}
	counter := 0
	convertChildren(doc, root, &counter)
	return root, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(markup string) (*Node, error) {
	return Parse(strings.NewReader(markup))
}

func convertChildren(src *html.Node, dst *Node, counter *int) {
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		n := &Node{
			Tag:    strings.ToLower(c.Data),
			Attrs:  make(map[string]string, len(c.Attr)),
			Parent: dst,
			Index:  *counter,
		}
		*counter++
		for _, a := range c.Attr {
			n.Attrs[strings.ToLower(a.Key)] = a.Val
		}
		applyIdentity(n)
		n.Text = Truncate(collapseSpace(textContent(c)), maxTextLen)
		if markupTags[n.Tag] {
			n.Markup = Truncate(render(c), maxMarkupLen)
		}
		dst.Children = append(dst.Children, n)
		convertChildren(c, n, counter)
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
			b.WriteByte(' ')
			return
		}
		if cur.Type == html.ElementNode && (cur.Data == "script" || cur.Data == "style") {
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
