package library

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/metcalfc/narr/internal/archive"
	"github.com/metcalfc/narr/internal/epub"
	"github.com/metcalfc/narr/internal/store/memstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type entry struct {
	name, body string
}

func buildEPUB(t *testing.T, entries ...entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	mw, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, err = mw.Write([]byte("application/epub+zip"))
	require.NoError(t, err)

	for _, e := range entries {
		fw, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`

const contentOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>A Study</dc:title>
    <dc:creator>A. Conan Doyle</dc:creator>
    <meta name="cover" content="cover"/>
  </metadata>
  <manifest>
    <item id="c2" href="Text/two.xhtml" media-type="application/xhtml+xml"/>
    <item id="c1" href="Text/one.xhtml" media-type="application/xhtml+xml"/>
    <item id="blank" href="Text/blank.xhtml" media-type="application/xhtml+xml"/>
    <item id="notes" href="Text/notes.xhtml" media-type="application/xhtml+xml"/>
    <item id="gone" href="Text/gone.xhtml" media-type="application/xhtml+xml"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="cover" href="Images/cover.png"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="c1"/>
    <itemref idref="notes" linear="no"/>
    <itemref idref="c2"/>
    <itemref idref="blank"/>
    <itemref idref="gone"/>
  </spine>
</package>`

const tocNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1"><navLabel><text>Part One</text></navLabel><content src="Text/one.xhtml"/>
      <navPoint id="n1a"><navLabel><text>Nested</text></navLabel><content src="Text/two.xhtml"/></navPoint>
    </navPoint>
  </navMap>
</ncx>`

const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00"

func sampleEPUB(t *testing.T) []byte {
	return buildEPUB(t,
		entry{"META-INF/container.xml", containerXML},
		entry{"OEBPS/content.opf", contentOPF},
		entry{"OEBPS/toc.ncx", tocNCX},
		entry{"OEBPS/Images/cover.png", pngHeader},
		entry{"OEBPS/Text/one.xhtml", `<html><body><h1>Part One</h1><p>Mr. Holmes sat. He smoked.</p></body></html>`},
		entry{"OEBPS/Text/two.xhtml", `<html><head><script src="x.js"/></head><body><p>It was 221.5 paces away! Wasn't it?</p><script>x()</script></body></html>`},
		entry{"OEBPS/Text/blank.xhtml", `<html><body><img src="x.png"/></body></html>`},
		entry{"OEBPS/Text/notes.xhtml", `<html><body><p>Skipped notes.</p></body></html>`},
	)
}

func TestAssemble(t *testing.T) {
	narratable := []epub.SpineItem{
		{ID: "a", Path: "OEBPS/Text/a.xhtml"},
		{ID: "b", Path: "OEBPS/Text/b.xhtml"},
		{ID: "c", Path: "OEBPS/Text/c.xhtml"},
	}
	nav := []epub.NavEntry{
		{Title: "", TargetPath: "OEBPS/Text/a.xhtml"},
		{Title: "Alpha", TargetPath: "OEBPS/Text/a.xhtml", TargetFragment: "top"},
		{Title: "Alpha again", TargetPath: "OEBPS/Text/a.xhtml"},
		{Title: "Bravo", TargetPath: "Elsewhere/b.xhtml"},
	}
	sentences := [][]string{{"One."}, nil, {"Three.", "Four."}}

	chapters := Assemble("book", narratable, nav, sentences)
	require.Len(t, chapters, 3)

	assert.Equal(t, "Alpha", chapters[0].Title)
	assert.Equal(t, "Bravo", chapters[1].Title)
	assert.Equal(t, "Chapter 3", chapters[2].Title)

	for i, c := range chapters {
		assert.Equal(t, i, c.SpineIndex)
		assert.Equal(t, "book", c.BookID)
		assert.Equal(t, ChapterID("book", i), c.ID)
		assert.Equal(t, narratable[i].Path, c.SourceRef)
		assert.Equal(t, narratable[i].ID, c.SpineItemID)
	}
	assert.NotNil(t, chapters[1].Sentences)
	assert.Empty(t, chapters[1].Sentences)
	assert.Equal(t, []string{"Three.", "Four."}, chapters[2].Sentences)
}

func TestAssemble_NoNavigation(t *testing.T) {
	narratable := []epub.SpineItem{{ID: "x", Path: "x.xhtml"}, {ID: "y", Path: "y.xhtml"}}
	chapters := Assemble("book", narratable, nil, nil)
	require.Len(t, chapters, 2)
	assert.Equal(t, "Chapter 1", chapters[0].Title)
	assert.Equal(t, "Chapter 2", chapters[1].Title)
}

func TestChapterID(t *testing.T) {
	assert.Equal(t, ChapterID("abc", 1), ChapterID("abc", 1))
	assert.NotEqual(t, ChapterID("abc", 1), ChapterID("abc", 2))
	assert.NotEqual(t, ChapterID("abc", 1), ChapterID("abd", 1))
	assert.Len(t, ChapterID("abc", 1), 36)
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("Hello, World!"))
	assert.Len(t, a, 32)
	assert.Equal(t, a, ContentHash([]byte("Hello, World!")))
	assert.NotEqual(t, a, ContentHash([]byte("Different content")))
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	core, logs := observer.New(zap.WarnLevel)
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	im := NewImporter(s, WithLogger(zap.New(core)), WithWorkers(2), WithClock(func() time.Time { return at }))

	data := sampleEPUB(t)
	report, err := im.Import(ctx, "/books/study.epub", data)
	require.NoError(t, err)

	book := report.Book
	assert.Equal(t, ContentHash(data), book.ID)
	assert.Equal(t, "A Study", book.Title)
	assert.Equal(t, "A. Conan Doyle", book.Author)
	assert.Equal(t, "OEBPS/Images/cover.png", book.CoverRef)
	assert.Equal(t, "image/png", book.CoverMediaType)
	assert.Equal(t, "/books/study.epub", book.SourcePath)
	assert.Equal(t, at, book.ImportedAt)
	assert.Equal(t, 4, book.ChapterCount)

	chapters, err := s.GetChapters(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 4)

	assert.Equal(t, "Part One", chapters[0].Title)
	assert.Equal(t, []string{"Part One", "Mr. Holmes sat.", "He smoked."}, chapters[0].Sentences)

	// Nested navigation points never name a chapter.
	assert.Equal(t, "Chapter 2", chapters[1].Title)
	assert.Equal(t, []string{"It was 221.5 paces away!", "Wasn't it?"}, chapters[1].Sentences)

	assert.Equal(t, "Chapter 3", chapters[2].Title)
	assert.Empty(t, chapters[2].Sentences)

	assert.Equal(t, "Chapter 4", chapters[3].Title)
	assert.Empty(t, chapters[3].Sentences)

	// The empty document and the missing one are warnings, in spine order.
	require.Len(t, report.Warnings, 2)
	assert.True(t, errors.Is(report.Warnings[0], ErrNoText))
	assert.Contains(t, report.Warnings[0].Error(), "document blank")
	assert.True(t, errors.Is(report.Warnings[1], archive.ErrEntryNotFound))
	assert.Equal(t, 2, logs.FilterMessage("import warning").Len())

	stored, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.ChapterCount)
}

func TestImport_Deterministic(t *testing.T) {
	ctx := context.Background()
	data := sampleEPUB(t)

	first, err := NewImporter(memstore.New(), WithWorkers(1)).Process(ctx, "a.epub", data)
	require.NoError(t, err)
	second, err := NewImporter(memstore.New(), WithWorkers(8)).Process(ctx, "a.epub", data)
	require.NoError(t, err)

	assert.Equal(t, first.Chapters, second.Chapters)
	assert.Equal(t, first.Book.ID, second.Book.ID)
}

func TestImport_PackageParseFailure(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	data := buildEPUB(t, entry{"OEBPS/Text/one.xhtml", "<p>orphan</p>"})

	report, err := NewImporter(s).Import(ctx, "/tmp/broken-book.epub", data)
	require.NoError(t, err)

	assert.False(t, report.Narratable())
	assert.Equal(t, "broken-book", report.Book.Title)
	assert.Equal(t, 0, report.Book.ChapterCount)
	require.Len(t, report.Warnings, 1)
	assert.True(t, errors.Is(report.Warnings[0], epub.ErrPackageParse))

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	chapters, err := s.GetChapters(ctx, report.Book.ID)
	require.NoError(t, err)
	assert.Empty(t, chapters)
}

func TestImport_CorruptContainer(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	_, err := NewImporter(s).Import(ctx, "notes.txt", []byte("just some text, not a container"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrContainerCorrupt))

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.epub")
	require.NoError(t, os.WriteFile(path, sampleEPUB(t), 0644))

	report, err := NewImporter(memstore.New()).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, report.Book.SourcePath)
	assert.True(t, report.Narratable())

	_, err = NewImporter(memstore.New()).ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.epub"))
	assert.Error(t, err)
}
