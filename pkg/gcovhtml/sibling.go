package gcovhtml

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Sibling is the node that follows a lineNum marker. It is one of
// TextContainer, LineBreak, Raw or Missing.
type Sibling interface {
	sibling()
}

// TextContainer is an inline span holding "<label>: <code>".
type TextContainer struct{ Node *html.Node }

// LineBreak is a <br>; the line text is spread over the nodes after it.
type LineBreak struct{ Node *html.Node }

// Raw is any other node, usually bare text.
type Raw struct{ Node *html.Node }

// Missing means the marker is the last node of its parent.
type Missing struct{}

func (TextContainer) sibling() {}
func (LineBreak) sibling()     {}
func (Raw) sibling()           {}
func (Missing) sibling()       {}

// Classify wraps n in the matching Sibling variant.
func Classify(n *html.Node) Sibling {
	switch {
	case n == nil:
		return Missing{}
	case isElement(n, atom.Span):
		return TextContainer{Node: n}
	case isElement(n, atom.Br):
		return LineBreak{Node: n}
	default:
		return Raw{Node: n}
	}
}

func isElement(n *html.Node, a atom.Atom) bool {
	return n.Type == html.ElementNode && n.DataAtom == a
}

func isMarker(n *html.Node) bool {
	if !isElement(n, atom.Span) {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, class := range strings.Fields(attr.Val) {
			if class == "lineNum" {
				return true
			}
		}
	}
	return false
}

// strippedText joins the whitespace-trimmed text fragments below n,
// dropping fragments that trim to nothing.
func strippedText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// nodeString is the text of a text node, or the rendered markup of anything
// else.
func nodeString(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

// trailingText concatenates the nodes after br up to the next span.
func trailingText(br *html.Node) string {
	var b strings.Builder
	for s := br.NextSibling; s != nil && !isElement(s, atom.Span); s = s.NextSibling {
		b.WriteString(nodeString(s))
	}
	return b.String()
}
