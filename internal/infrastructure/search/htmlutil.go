package search

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// matcher selects element nodes
type matcher func(n *html.Node) bool

func parseHTML(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

// findAll returns every element under root accepted by match, in document
// order. Matched nodes are not searched further.
func findAll(root *html.Node, match matcher) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// findFirst returns the first element under root accepted by any matcher,
// trying the matchers in order
func findFirst(root *html.Node, matchers ...matcher) *html.Node {
	for _, match := range matchers {
		if found := first(root, match); found != nil {
			return found
		}
	}
	return nil
}

func first(n *html.Node, match matcher) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := first(c, match); found != nil {
			return found
		}
	}
	return nil
}

// ancestor returns the nearest enclosing element accepted by match
func ancestor(n *html.Node, match matcher) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return p
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textOf returns the visible text of n with whitespace collapsed
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func byTag(tags ...atom.Atom) matcher {
	return func(n *html.Node) bool {
		for _, t := range tags {
			if n.DataAtom == t {
				return true
			}
		}
		return false
	}
}

func byClass(classes ...string) matcher {
	return func(n *html.Node) bool {
		for _, c := range classes {
			if hasClass(n, c) {
				return true
			}
		}
		return false
	}
}

func byTagClass(tag atom.Atom, class string) matcher {
	return func(n *html.Node) bool {
		return n.DataAtom == tag && hasClass(n, class)
	}
}

func byAttr(key string) matcher {
	return func(n *html.Node) bool {
		return hasAttr(n, key)
	}
}
