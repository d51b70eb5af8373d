// Package epub parses the package and navigation descriptors of an EPUB container.
package epub

import (
	"encoding/xml"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Descriptor errors.
var (
	ErrPackageParse = errors.New("epub: package descriptor missing or invalid")
	ErrNoNavigation = errors.New("epub: no usable navigation descriptor")
)

// ContainerPath is the fixed location of the pointer to the package descriptor.
const ContainerPath = "META-INF/container.xml"

const packageMediaType = "application/oebps-package+xml"

// EntryReader is the slice of the archive reader the parsers need.
type EntryReader interface {
	ReadEntry(name string) ([]byte, error)
}

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// RootfilePath reads the container pointer file and returns the package descriptor path.
func RootfilePath(r EntryReader) (string, error) {
	data, err := r.ReadEntry(ContainerPath)
	if err != nil {
		return "", errors.Wrapf(ErrPackageParse, "read %s: %v", ContainerPath, err)
	}

	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", errors.Wrapf(ErrPackageParse, "parse %s: %v", ContainerPath, err)
	}

	var fallback string
	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath == "" {
			continue
		}
		if rf.MediaType == packageMediaType {
			return rf.FullPath, nil
		}
		if fallback == "" {
			fallback = rf.FullPath
		}
	}
	if fallback == "" {
		return "", errors.Wrap(ErrPackageParse, "no rootfile in container")
	}
	return fallback, nil
}

// resolve joins an href found in the document at docPath into a container path.
// The fragment, if any, is returned separately.
func resolve(docPath, href string) (string, string) {
	href = strings.TrimSpace(href)
	fragment := ""
	if i := strings.Index(href, "#"); i != -1 {
		fragment = href[i+1:]
		href = href[:i]
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	if href == "" {
		return "", fragment
	}

	joined := path.Join(path.Dir(docPath), href)
	return strings.TrimPrefix(joined, "/"), fragment
}

func isExternal(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	return err == nil && u.Scheme != ""
}
