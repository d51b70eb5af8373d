package epub

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// NavEntry is one top-level table of contents entry.
type NavEntry struct {
	Title          string
	TargetPath     string
	TargetFragment string
}

// NCX XML structures for parsing toc.ncx
type ncx struct {
	XMLName xml.Name `xml:"ncx"`
	NavMap  struct {
		NavPoints []navPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type navPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

// ParseNCX parses a legacy NCX tree. Only top-level navPoints are returned;
// nested points are sub-sections of the same document.
func ParseNCX(ncxPath string, data []byte) ([]NavEntry, error) {
	var doc ncx
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse ncx %s", ncxPath)
	}

	entries := make([]NavEntry, 0, len(doc.NavMap.NavPoints))
	for _, np := range doc.NavMap.NavPoints {
		if e, ok := newEntry(ncxPath, np.Label, np.Content.Src); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// ParseNavDocument parses an XHTML navigation document and returns the
// top-level items of its table of contents list.
func ParseNavDocument(navPath string, data []byte) ([]NavEntry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "parse nav %s", navPath)
	}

	nav := findNav(doc)
	if nav == nil {
		return nil, errors.Errorf("nav %s: no toc nav element", navPath)
	}
	ol := findElement(nav, "ol")
	if ol == nil {
		return nil, errors.Errorf("nav %s: toc has no list", navPath)
	}

	var entries []NavEntry
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		a := childElement(li, "a")
		if a == nil {
			continue
		}
		if e, ok := newEntry(navPath, nodeText(a), attr(a, "href")); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// LoadNavigation reads whichever navigation descriptor the package declares,
// preferring the format that matches its version.
func LoadNavigation(r EntryReader, pkg *Package) ([]NavEntry, error) {
	type source struct {
		path  string
		parse func(string, []byte) ([]NavEntry, error)
	}
	sources := []source{{pkg.NCXPath, ParseNCX}, {pkg.NavPath, ParseNavDocument}}
	if pkg.IsEPUB3() {
		sources[0], sources[1] = sources[1], sources[0]
	}

	lastErr := ErrNoNavigation
	for _, s := range sources {
		if s.path == "" {
			continue
		}
		data, err := r.ReadEntry(s.path)
		if err != nil {
			lastErr = err
			continue
		}
		entries, err := s.parse(s.path, data)
		if err != nil {
			lastErr = err
			continue
		}
		if len(entries) > 0 {
			return entries, nil
		}
	}
	return nil, lastErr
}

func newEntry(docPath, title, href string) (NavEntry, bool) {
	if href == "" || isExternal(href) {
		return NavEntry{}, false
	}
	target, fragment := resolve(docPath, href)
	if target == "" {
		return NavEntry{}, false
	}
	return NavEntry{
		Title:          strings.Join(strings.Fields(title), " "),
		TargetPath:     target,
		TargetFragment: fragment,
	}, true
}

func findNav(doc *html.Node) *html.Node {
	var firstNav, tocNav *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if tocNav != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "nav" {
			if firstNav == nil {
				firstNav = n
			}
			for _, a := range n.Attr {
				if (a.Key == "epub:type" || a.Key == "type" || a.Key == "role") && strings.Contains(a.Val, "toc") {
					tocNav = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if tocNav != nil {
		return tocNav
	}
	return firstNav
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func childElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
