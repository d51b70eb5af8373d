package epub

import (
	"encoding/xml"
	"strings"

	"github.com/pkg/errors"
)

const ncxMediaType = "application/x-dtbncx+xml"

// Package is the parsed package descriptor.
type Package struct {
	Path       string
	Version    string
	Title      string
	Author     string
	Language   string
	Identifier string

	CoverPath      string
	CoverMediaType string
	NavPath        string
	NCXPath        string

	Manifest map[string]ManifestItem
	Spine    []SpineItem
}

// ManifestItem is one file declared by the package.
type ManifestItem struct {
	ID         string
	Path       string
	MediaType  string
	Properties []string
}

// HasProperty reports whether the item declares the given property.
func (m ManifestItem) HasProperty(prop string) bool {
	for _, p := range m.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

// SpineItem is one entry of the reading order.
type SpineItem struct {
	ID        string
	Path      string
	MediaType string
	Linear    bool
}

type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Title      []dcElement `xml:"title"`
		Creator    []dcElement `xml:"creator"`
		Language   []dcElement `xml:"language"`
		Identifier []dcElement `xml:"identifier"`
		Meta       []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type dcElement struct {
	Text string `xml:",chardata"`
}

// ParsePackage parses the package descriptor stored at opfPath.
func ParsePackage(opfPath string, data []byte) (*Package, error) {
	var opf opfPackage
	if err := xml.Unmarshal(data, &opf); err != nil {
		return nil, errors.Wrapf(ErrPackageParse, "parse %s: %v", opfPath, err)
	}

	pkg := &Package{
		Path:       opfPath,
		Version:    strings.TrimSpace(opf.Version),
		Title:      first(opf.Metadata.Title),
		Author:     first(opf.Metadata.Creator),
		Language:   first(opf.Metadata.Language),
		Identifier: first(opf.Metadata.Identifier),
		Manifest:   make(map[string]ManifestItem, len(opf.Manifest.Items)),
	}

	// Manifest order is kept so that property lookups are deterministic.
	order := make([]string, 0, len(opf.Manifest.Items))
	for _, it := range opf.Manifest.Items {
		if it.ID == "" {
			continue
		}
		p, _ := resolve(opfPath, it.Href)
		pkg.Manifest[it.ID] = ManifestItem{
			ID:         it.ID,
			Path:       p,
			MediaType:  strings.TrimSpace(it.MediaType),
			Properties: strings.Fields(it.Properties),
		}
		order = append(order, it.ID)
	}

	for _, ref := range opf.Spine.ItemRefs {
		item, ok := pkg.Manifest[ref.IDRef]
		if !ok {
			continue
		}
		pkg.Spine = append(pkg.Spine, SpineItem{
			ID:        item.ID,
			Path:      item.Path,
			MediaType: item.MediaType,
			Linear:    strings.TrimSpace(ref.Linear) != "no",
		})
	}
	if len(pkg.Spine) == 0 {
		return nil, errors.Wrapf(ErrPackageParse, "%s: empty spine", opfPath)
	}

	for _, id := range order {
		item := pkg.Manifest[id]
		if pkg.NavPath == "" && item.HasProperty("nav") {
			pkg.NavPath = item.Path
		}
		if pkg.CoverPath == "" && item.HasProperty("cover-image") {
			pkg.CoverPath = item.Path
			pkg.CoverMediaType = item.MediaType
		}
	}

	if item, ok := pkg.Manifest[opf.Spine.Toc]; ok {
		pkg.NCXPath = item.Path
	} else {
		for _, id := range order {
			if item := pkg.Manifest[id]; item.MediaType == ncxMediaType {
				pkg.NCXPath = item.Path
				break
			}
		}
	}

	if pkg.CoverPath == "" {
		for _, m := range opf.Metadata.Meta {
			if m.Name != "cover" || m.Content == "" {
				continue
			}
			if item, ok := pkg.Manifest[m.Content]; ok {
				pkg.CoverPath = item.Path
				pkg.CoverMediaType = item.MediaType
				break
			}
			// A few producers put the href rather than the id in the meta.
			p, _ := resolve(opfPath, m.Content)
			for _, id := range order {
				if item := pkg.Manifest[id]; item.Path == p {
					pkg.CoverPath = item.Path
					pkg.CoverMediaType = item.MediaType
					break
				}
			}
			break
		}
	}

	return pkg, nil
}

// Narratable returns the spine items that belong to the linear reading order.
func (p *Package) Narratable() []SpineItem {
	out := make([]SpineItem, 0, len(p.Spine))
	for _, s := range p.Spine {
		if s.Linear {
			out = append(out, s)
		}
	}
	return out
}

// Item looks up a manifest item by id, linear or not.
func (p *Package) Item(id string) (ManifestItem, bool) {
	item, ok := p.Manifest[id]
	return item, ok
}

// IsEPUB3 reports whether the descriptor declares a 3.x package.
func (p *Package) IsEPUB3() bool {
	return strings.HasPrefix(p.Version, "3")
}

func first(els []dcElement) string {
	for _, e := range els {
		if s := strings.Join(strings.Fields(e.Text), " "); s != "" {
			return s
		}
	}
	return ""
}
