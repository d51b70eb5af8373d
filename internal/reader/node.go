package reader

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	epubNamespace = "http://www.idpf.org/2007/ops"
	xmlNamespace  = "http://www.w3.org/XML/1998/namespace"
)

// NodeKind classifies a markup tree node.
type NodeKind int

const (
	DocumentNode NodeKind = iota
	ElementNode
	TextNode
	CommentNode
	OtherNode
)

// Node is the minimal tree the extractor walks. Any markup parser can back it.
type Node interface {
	Kind() NodeKind
	// Tag is the lower-case element name, empty for non-elements.
	Tag() string
	// Text is the character data of a text node.
	Text() string
	Attr(key string) string
	Children() []Node
}

// ParseHTML parses markup leniently and returns the document root.
func ParseHTML(markup []byte) (Node, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil, errors.Wrap(err, "parse markup")
	}
	return htmlNode{doc}, nil
}

type htmlNode struct {
	n *html.Node
}

func (h htmlNode) Kind() NodeKind {
	switch h.n.Type {
	case html.DocumentNode:
		return DocumentNode
	case html.ElementNode:
		return ElementNode
	case html.TextNode:
		return TextNode
	case html.CommentNode:
		return CommentNode
	default:
		return OtherNode
	}
}

func (h htmlNode) Tag() string {
	if h.n.Type != html.ElementNode {
		return ""
	}
	return h.n.Data
}

func (h htmlNode) Text() string {
	if h.n.Type != html.TextNode {
		return ""
	}
	return h.n.Data
}

func (h htmlNode) Attr(key string) string {
	for _, a := range h.n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func (h htmlNode) Children() []Node {
	var out []Node
	for c := h.n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, htmlNode{c})
	}
	return out
}

// ParseXHTML parses well-formed XHTML. Unlike ParseHTML it honours
// self-closing tags on any element, so "<script/>" or "<title/>" stay empty.
// HTML named entities are accepted.
func ParseXHTML(markup []byte) (Node, error) {
	d := xml.NewDecoder(bytes.NewReader(markup))
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	root := &xmlNode{kind: DocumentNode}
	stack := []*xmlNode{root}
	elements := 0
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "parse xhtml")
		}

		parent := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			el := &xmlNode{
				kind:  ElementNode,
				tag:   strings.ToLower(t.Name.Local),
				attrs: make(map[string]string, len(t.Attr)),
			}
			for _, a := range t.Attr {
				el.attrs[attrKey(a.Name)] = a.Value
			}
			parent.children = append(parent.children, el)
			stack = append(stack, el)
			elements++
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			parent.children = append(parent.children, &xmlNode{kind: TextNode, text: string(t)})
		case xml.Comment:
			parent.children = append(parent.children, &xmlNode{kind: CommentNode, text: string(t)})
		}
	}
	if len(stack) != 1 || elements == 0 {
		return nil, errors.New("parse xhtml: no root element")
	}
	return root, nil
}

func attrKey(name xml.Name) string {
	switch name.Space {
	case epubNamespace, "epub":
		return "epub:" + name.Local
	case xmlNamespace, "xml":
		return "xml:" + name.Local
	}
	return name.Local
}

type xmlNode struct {
	kind     NodeKind
	tag      string
	text     string
	attrs    map[string]string
	children []Node
}

func (x *xmlNode) Kind() NodeKind         { return x.kind }
func (x *xmlNode) Tag() string            { return x.tag }
func (x *xmlNode) Text() string           { return x.text }
func (x *xmlNode) Attr(key string) string { return x.attrs[key] }
func (x *xmlNode) Children() []Node       { return x.children }
