// Package archive provides read access to the zip container that holds an EPUB.
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Archive-level errors.
var (
	ErrContainerCorrupt = errors.New("archive: container is not a valid zip archive")
	ErrEntryNotFound    = errors.New("archive: entry not found")
)

// Reader resolves container paths to their raw bytes.
type Reader struct {
	zr     *zip.Reader
	closer io.Closer
	files  map[string]*zip.File
	folded map[string]*zip.File
}

// Open opens a container from a path on disk.
func Open(filename string) (*Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}

	r, err := New(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// FromBytes opens a container held in memory.
func FromBytes(data []byte) (*Reader, error) {
	return New(bytes.NewReader(data), int64(len(data)))
}

// New opens a container from an io.ReaderAt.
func New(ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errors.Wrap(ErrContainerCorrupt, err.Error())
	}

	r := &Reader{
		zr:     zr,
		files:  make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := normalize(f.Name)
		if _, exists := r.files[name]; !exists {
			r.files[name] = f
		}
		lower := strings.ToLower(name)
		if _, exists := r.folded[lower]; !exists {
			r.folded[lower] = f
		}
	}
	return r, nil
}

// Entries returns every file path in the container, sorted.
func (r *Reader) Entries() []string {
	out := make([]string, 0, len(r.files))
	for name := range r.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether the container holds the given path.
func (r *Reader) Has(name string) bool {
	return r.lookup(name) != nil
}

// ReadEntry returns the decompressed bytes stored at name.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	f := r.lookup(name)
	if f == nil {
		return nil, errors.Wrapf(ErrEntryNotFound, "%q", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(ErrContainerCorrupt, "open %q: %v", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(ErrContainerCorrupt, "read %q: %v", name, err)
	}
	return data, nil
}

// Close releases the underlying file, if the reader owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) lookup(name string) *zip.File {
	name = normalize(name)
	if f, ok := r.files[name]; ok {
		return f
	}
	// Some producers disagree with their own manifests about case.
	return r.folded[strings.ToLower(name)]
}

// normalize turns an href or zip entry name into a canonical container path.
func normalize(name string) string {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

// Sniff reports the media type detected from the leading bytes of a file.
func Sniff(head []byte) string {
	return mimetype.Detect(head).String()
}

// IsZip reports whether the leading bytes look like a zip-based container.
func IsZip(head []byte) bool {
	for m := mimetype.Detect(head); m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}
