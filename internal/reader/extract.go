// Package reader turns content document markup into ordered paragraphs and
// sentences.
package reader

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"template": true,
	"noscript": true,
	"head":     true,
	"title":    true,
}

var blockTags = map[string]bool{
	"body": true, "p": true, "div": true, "li": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"td": true, "th": true, "caption": true, "dd": true, "dt": true,
	"section": true, "article": true, "aside": true, "header": true, "footer": true,
	"figure": true, "figcaption": true, "pre": true, "ul": true, "ol": true,
	"table": true, "tr": true, "hr": true,
}

// Extract returns the paragraphs of a content document in reading order.
// Well-formed documents are read as XHTML; anything else goes through the
// lenient HTML parser. Unparsable markup yields no paragraphs.
func Extract(markup []byte) []string {
	root, err := ParseXHTML(markup)
	if err != nil {
		if root, err = ParseHTML(markup); err != nil {
			return nil
		}
	}
	return ExtractNode(root)
}

// ExtractNode collects block text from any Node tree.
func ExtractNode(root Node) []string {
	var (
		paragraphs []string
		buf        strings.Builder
	)

	flush := func() {
		if p := collapse(buf.String()); p != "" {
			paragraphs = append(paragraphs, p)
		}
		buf.Reset()
	}

	var walk func(Node)
	walk = func(n Node) {
		switch n.Kind() {
		case CommentNode, OtherNode:
			return
		case TextNode:
			buf.WriteString(n.Text())
			return
		case ElementNode:
			tag := n.Tag()
			if skipTags[tag] || isPageBreak(n) {
				return
			}
			if tag == "br" {
				buf.WriteByte(' ')
				return
			}
			if blockTags[tag] {
				flush()
				for _, c := range n.Children() {
					walk(c)
				}
				flush()
				return
			}
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}

	walk(root)
	flush()
	return paragraphs
}

func isPageBreak(n Node) bool {
	return strings.Contains(n.Attr("epub:type"), "pagebreak") ||
		strings.Contains(n.Attr("role"), "doc-pagebreak")
}

// collapse squeezes whitespace runs (NBSP included) to single spaces and
// normalises to NFC.
func collapse(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return norm.NFC.String(s)
}
