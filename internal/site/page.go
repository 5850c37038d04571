package site

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/value"
)

// PreprocessPage rewrites a rendered page fragment. Input is
// {html, pagesURL}; pagesURL is the URL prefix of Markdown sources, such as
// "/pages".
//
//   - Anchors get class "link". Links to sources ("/pages/a/index.md#x")
//     become site paths ("/a#x"); other local links produce a warning.
//   - h2 to h6 get an id and their content is wrapped in a self-link.
//   - A blockquote opening with a lone code span holding a selector
//     ("aside.note#tip") becomes that element.
var PreprocessPage = build.NewService("PreprocessPage", true, func(_ context.Context, in value.Value, rc *build.RunContext) (value.Value, error) {
	_, f, err := fields(in, "html", "pagesURL")
	if err != nil {
		return nil, err
	}
	root, err := parseFragment(f[0], atom.Body)
	if err != nil {
		return nil, err
	}
	sourceLink, err := regexp.Compile(`^(` + regexp.QuoteMeta(strings.TrimSuffix(f[1], "/")) + `/.*\.md)(#.*)?$`)
	if err != nil {
		return nil, err
	}

	for _, n := range elements(root, atom.A) {
		addClass(n, "link")
		if href, ok := attr(n, "href"); ok {
			rewriteLink(rc, n, href, f[1], sourceLink)
		}
	}
	for _, n := range elements(root, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6) {
		linkHeading(n)
	}
	for _, n := range elements(root, atom.Blockquote) {
		expandBlockquote(rc, n)
	}

	out, err := renderChildren(root)
	if err != nil {
		return nil, err
	}
	return value.String(out), nil
})

func rewriteLink(rc *build.RunContext, n *html.Node, href, pagesURL string, sourceLink *regexp.Regexp) {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "#") {
		return
	}
	m := sourceLink.FindStringSubmatch(href)
	if m == nil {
		rc.Warn("link %q does not match %s", href, sourceLink)
		return
	}
	path := strings.TrimPrefix(m[1], strings.TrimSuffix(pagesURL, "/"))
	path = strings.TrimSuffix(path, ".md")
	path = strings.TrimSuffix(path, "/index")
	if path == "" {
		path = "/"
	}
	setAttr(n, "href", path+m[2])
}

func linkHeading(n *html.Node) {
	id := Slug(textContent(n))
	setAttr(n, "id", id)
	a := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr:     []html.Attribute{{Key: "href", Val: "#" + id}},
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		a.AppendChild(c)
		c = next
	}
	n.AppendChild(a)
}

var selectorPattern = regexp.MustCompile(`^([a-z][a-z0-9-]*)((?:[.#][A-Za-z_][A-Za-z0-9_-]*)*)$`)
var selectorPart = regexp.MustCompile(`[.#][A-Za-z_][A-Za-z0-9_-]*`)

func expandBlockquote(rc *build.RunContext, quote *html.Node) {
	p := firstElement(quote)
	if p == nil || p.DataAtom != atom.P {
		return
	}
	code := onlyElement(p)
	if code == nil || code.DataAtom != atom.Code {
		return
	}
	selector := strings.TrimSpace(textContent(code))
	m := selectorPattern.FindStringSubmatch(selector)
	if m == nil {
		rc.Warn("blockquote selector %q is not a tag with optional classes and id", selector)
		return
	}

	el := &html.Node{Type: html.ElementNode, Data: m[1], DataAtom: atom.Lookup([]byte(m[1]))}
	var classes []string
	for _, part := range selectorPart.FindAllString(m[2], -1) {
		if part[0] == '.' {
			classes = append(classes, part[1:])
			continue
		}
		if _, ok := attr(el, "id"); ok {
			rc.Warn("blockquote selector %q has more than one id", selector)
			return
		}
		setAttr(el, "id", part[1:])
	}
	if len(classes) > 0 {
		setAttr(el, "class", strings.Join(classes, " "))
	}

	quote.RemoveChild(p)
	for c := quote.FirstChild; c != nil; {
		next := c.NextSibling
		quote.RemoveChild(c)
		el.AppendChild(c)
		c = next
	}
	quote.Parent.InsertBefore(el, quote)
	quote.Parent.RemoveChild(quote)
}

// ApplyLayout places {content} inside the <main> element of {layout}.
var ApplyLayout = build.NewService("ApplyLayout", true, func(_ context.Context, in value.Value, _ *build.RunContext) (value.Value, error) {
	_, f, err := fields(in, "layout", "content")
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(f[0]))
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	mains := elements(doc, atom.Main)
	if len(mains) == 0 {
		return nil, fmt.Errorf("layout has no <main> element")
	}
	slot := mains[0]
	for slot.FirstChild != nil {
		slot.RemoveChild(slot.FirstChild)
	}
	nodes, err := html.ParseFragment(strings.NewReader(f[1]), slot)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	for _, n := range nodes {
		slot.AppendChild(n)
	}

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return nil, err
	}
	return value.String(b.String()), nil
})

func parseFragment(src string, parent atom.Atom) (*html.Node, error) {
	root := &html.Node{Type: html.ElementNode, Data: parent.String(), DataAtom: parent}
	nodes, err := html.ParseFragment(strings.NewReader(src), root)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

func renderChildren(n *html.Node) (string, error) {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// elements returns the descendants of n with any of the given tags, in
// document order. The slice is collected before callers mutate the tree.
func elements(n *html.Node, tags ...atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && slices.Contains(tags, c.DataAtom) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// onlyElement returns the single element child of n, provided every other
// child is whitespace.
func onlyElement(n *html.Node) *html.Node {
	var found *html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			if found != nil {
				return nil
			}
			found = c
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return nil
			}
		}
	}
	return found
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func addClass(n *html.Node, class string) {
	existing, _ := attr(n, "class")
	if slices.Contains(strings.Fields(existing), class) {
		return
	}
	setAttr(n, "class", strings.TrimSpace(existing+" "+class))
}
