// Package xmldom is a minimal, local-name-addressable XML DOM built on
// encoding/xml. It exists to give the imf package a concrete
// implementation of the Element interface it otherwise treats as an
// external collaborator (spec §1: "XML tokenization ... a generic XML
// DOM is assumed").
package xmldom

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/mebox/imfdemux"
)

// Node is one element of the parsed document tree. Node satisfies
// imf.Element structurally (LocalName/Text/Attr/Children).
type Node struct {
	local    string
	attrs    []xml.Attr
	text     strings.Builder
	children []*Node
}

// LocalName returns the element's name with any namespace prefix removed.
func (n *Node) LocalName() string { return n.local }

// Text returns the concatenation of all text-node children.
func (n *Node) Text() string { return n.text.String() }

// Attr returns the value of the named attribute, matched by local name and
// ignoring namespace, the same rule applied to elements.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Children returns the element's child elements in document order.
func (n *Node) Children() []imf.Element {
	out := make([]imf.Element, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

var _ imf.Element = (*Node)(nil)

// Parse reads a complete XML document from r and returns its root element.
// Non-UTF-8 encodings declared in the XML prolog (legacy ST 429-9 asset
// maps in the wild commonly declare ISO-8859-1) are transcoded on the fly
// via golang.org/x/net/html/charset.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *Node
		stack []*Node
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmldom: parse: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{local: t.Name.Local, attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("xmldom: parse: empty document")
	}
	return root, nil
}
