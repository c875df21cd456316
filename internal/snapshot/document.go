// Package snapshot assembles the order-flow analysis document. The document
// is built as a tree of tagged nodes and rendered by a single formatter, so
// the child ordering, attribute ordering and numeric precision the output
// promises are enforced in one place.
package snapshot

import (
	"strings"
)

// Attr is one rendered attribute. Order of attributes on a node is the order
// they were added.
type Attr struct {
	Key   string
	Value string
}

// Node is one element of the document tree. A node carries either text or
// children, never both.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

func El(name string) *Node {
	return &Node{Name: name}
}

func (n *Node) Attr(key, value string) *Node {
	n.Attrs = append(n.Attrs, Attr{Key: key, Value: value})
	return n
}

func (n *Node) Add(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// Leaf appends a text-only child element.
func (n *Node) Leaf(name, text string) *Node {
	n.Children = append(n.Children, &Node{Name: name, Text: text})
	return n
}

// Render serializes the tree with two-space indentation. Elements without
// text or children self-close.
func (n *Node) Render() string {
	var b strings.Builder
	n.render(&b, 0)
	return b.String()
}

func (n *Node) render(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent)
	b.WriteByte('<')
	b.WriteString(n.Name)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(escape(a.Value))
		b.WriteByte('"')
	}

	switch {
	case len(n.Children) > 0:
		b.WriteString(">\n")
		for _, c := range n.Children {
			c.render(b, depth+1)
			b.WriteByte('\n')
		}
		b.WriteString(indent)
		b.WriteString("</")
		b.WriteString(n.Name)
		b.WriteByte('>')
	case n.Text != "":
		b.WriteByte('>')
		b.WriteString(escape(n.Text))
		b.WriteString("</")
		b.WriteString(n.Name)
		b.WriteByte('>')
	default:
		b.WriteString(" />")
	}
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escape(s string) string {
	return escaper.Replace(s)
}
