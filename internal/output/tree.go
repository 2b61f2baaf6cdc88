package output

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// node is a minimal element tree; the engine's result layout is loose enough
// that fixed struct bindings would reject valid documents.
type node struct {
	name     string
	text     string
	parent   *node
	children []*node
}

func parseTree(raw string) (*node, error) {
	dec := xml.NewDecoder(strings.NewReader(raw))
	root := &node{}
	cur := root
	sawElement := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, parent: cur}
			cur.children = append(cur.children, n)
			cur = n
			sawElement = true
		case xml.EndElement:
			cur.text = strings.TrimSpace(cur.text)
			cur = cur.parent
		case xml.CharData:
			cur.text += string(t)
		}
	}
	if !sawElement {
		return nil, errors.New("no XML elements")
	}
	return root, nil
}

// findAll returns every descendant named name in document order.
func (n *node) findAll(name string) []*node {
	var out []*node
	for _, c := range n.children {
		if strings.EqualFold(c.name, name) {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// find returns the first descendant named name.
func (n *node) find(name string) *node {
	for _, c := range n.children {
		if strings.EqualFold(c.name, name) {
			return c
		}
		if f := c.find(name); f != nil {
			return f
		}
	}
	return nil
}

// childText returns the text of the first descendant named name.
func (n *node) childText(name string) (string, bool) {
	c := n.find(name)
	if c == nil {
		return "", false
	}
	return c.text, true
}

func (n *node) within(name string) bool {
	for p := n.parent; p != nil; p = p.parent {
		if strings.EqualFold(p.name, name) {
			return true
		}
	}
	return false
}
