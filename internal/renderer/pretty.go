package renderer

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const indentUnit = "  "

// Elements whose content is emitted exactly as parsed.
var verbatim = map[atom.Atom]bool{
	atom.Pre:      true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Textarea: true,
}

var inline = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Br: true, atom.Button: true,
	atom.Cite: true, atom.Code: true, atom.Em: true, atom.I: true, atom.Img: true,
	atom.Input: true, atom.Kbd: true, atom.Label: true, atom.Mark: true, atom.Q: true,
	atom.S: true, atom.Small: true, atom.Span: true, atom.Strong: true, atom.Sub: true,
	atom.Sup: true, atom.Time: true, atom.U: true,
}

var void = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true, atom.Embed: true,
	atom.Hr: true, atom.Img: true, atom.Input: true, atom.Link: true, atom.Meta: true,
	atom.Source: true, atom.Track: true, atom.Wbr: true,
}

// Pretty re-indents an HTML document, one block element per line. Runs of
// inline content stay on a single line and verbatim elements are untouched.
func Pretty(src []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}

	p := &printer{}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if err := p.node(c, 0); err != nil {
			return nil, err
		}
	}
	return p.buf.Bytes(), nil
}

type printer struct {
	buf bytes.Buffer
}

func (p *printer) line(depth int, s string) {
	p.buf.WriteString(strings.Repeat(indentUnit, depth))
	p.buf.WriteString(s)
	p.buf.WriteByte('\n')
}

func (p *printer) node(n *html.Node, depth int) error {
	switch n.Type {
	case html.DoctypeNode:
		p.line(depth, "<!DOCTYPE "+n.Data+">")
	case html.CommentNode:
		p.line(depth, "<!--"+n.Data+"-->")
	case html.TextNode:
		if text := collapse(n.Data); text != "" {
			p.line(depth, html.EscapeString(text))
		}
	case html.ElementNode:
		return p.element(n, depth)
	}
	return nil
}

func (p *printer) element(n *html.Node, depth int) error {
	if verbatim[n.DataAtom] || (n.FirstChild != nil && inlineOnly(n)) {
		var b bytes.Buffer
		if err := html.Render(&b, n); err != nil {
			return err
		}
		p.line(depth, b.String())
		return nil
	}

	open := openTag(n)
	if void[n.DataAtom] {
		p.line(depth, open)
		return nil
	}
	if n.FirstChild == nil {
		p.line(depth, open+"</"+n.Data+">")
		return nil
	}

	p.line(depth, open)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := p.node(c, depth+1); err != nil {
			return err
		}
	}
	p.line(depth, "</"+n.Data+">")
	return nil
}

func openTag(n *html.Node) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		if a.Namespace != "" {
			b.WriteString(a.Namespace)
			b.WriteByte(':')
		}
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	return b.String()
}

// inlineOnly reports whether every descendant of n is text or an inline
// element.
func inlineOnly(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
		case html.ElementNode:
			if !inline[c.DataAtom] || !inlineOnly(c) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
