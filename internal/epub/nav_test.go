package epub

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="p1" playOrder="1">
      <navLabel><text>Prologue</text></navLabel>
      <content src="Text/prologue.xhtml"/>
    </navPoint>
    <navPoint id="p2" playOrder="2">
      <navLabel><text>Part
        One</text></navLabel>
      <content src="Text/part1.xhtml#start"/>
      <navPoint id="p3" playOrder="3">
        <navLabel><text>Nested</text></navLabel>
        <content src="Text/nested.xhtml"/>
      </navPoint>
    </navPoint>
    <navPoint id="p4" playOrder="4">
      <navLabel><text>Website</text></navLabel>
      <content src="https://example.com/"/>
    </navPoint>
  </navMap>
</ncx>`

const testNav = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<body>
<nav epub:type="landmarks"><ol><li><a href="../Text/cover.xhtml">Cover</a></li></ol></nav>
<nav epub:type="toc">
  <ol>
    <li><a href="../Text/one.xhtml">Chapter <em>One</em></a></li>
    <li>
      <a href="../Text/two.xhtml#s1">Chapter Two</a>
      <ol>
        <li><a href="../Text/two-a.xhtml">Sub A</a></li>
      </ol>
    </li>
    <li><span>Heading only</span></li>
    <li><a href="mailto:someone@example.com">Mail</a></li>
  </ol>
</nav>
</body>
</html>`

func TestParseNCX(t *testing.T) {
	entries, err := ParseNCX("OEBPS/toc.ncx", []byte(testNCX))
	require.NoError(t, err)

	assert.Equal(t, []NavEntry{
		{Title: "Prologue", TargetPath: "OEBPS/Text/prologue.xhtml"},
		{Title: "Part One", TargetPath: "OEBPS/Text/part1.xhtml", TargetFragment: "start"},
	}, entries)
}

func TestParseNCX_Invalid(t *testing.T) {
	_, err := ParseNCX("toc.ncx", []byte("<ncx><navMap>"))
	assert.Error(t, err)
}

func TestParseNavDocument(t *testing.T) {
	entries, err := ParseNavDocument("OEBPS/Nav/nav.xhtml", []byte(testNav))
	require.NoError(t, err)

	assert.Equal(t, []NavEntry{
		{Title: "Chapter One", TargetPath: "OEBPS/Text/one.xhtml"},
		{Title: "Chapter Two", TargetPath: "OEBPS/Text/two.xhtml", TargetFragment: "s1"},
	}, entries)
}

func TestParseNavDocument_NoToc(t *testing.T) {
	_, err := ParseNavDocument("nav.xhtml", []byte("<html><body><p>nothing</p></body></html>"))
	assert.Error(t, err)
}

func TestLoadNavigation(t *testing.T) {
	files := mapReader{
		"OEBPS/toc.ncx":       testNCX,
		"OEBPS/Nav/nav.xhtml": testNav,
	}

	t.Run("epub3 prefers nav document", func(t *testing.T) {
		pkg := &Package{Version: "3.0", NavPath: "OEBPS/Nav/nav.xhtml", NCXPath: "OEBPS/toc.ncx"}
		entries, err := LoadNavigation(files, pkg)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "Chapter One", entries[0].Title)
	})

	t.Run("epub2 prefers ncx", func(t *testing.T) {
		pkg := &Package{Version: "2.0", NavPath: "OEBPS/Nav/nav.xhtml", NCXPath: "OEBPS/toc.ncx"}
		entries, err := LoadNavigation(files, pkg)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "Prologue", entries[0].Title)
	})

	t.Run("falls back to the other format", func(t *testing.T) {
		pkg := &Package{Version: "3.0", NavPath: "OEBPS/missing.xhtml", NCXPath: "OEBPS/toc.ncx"}
		entries, err := LoadNavigation(files, pkg)
		require.NoError(t, err)
		assert.Equal(t, "Prologue", entries[0].Title)
	})

	t.Run("nothing declared", func(t *testing.T) {
		entries, err := LoadNavigation(files, &Package{Version: "2.0"})
		assert.Empty(t, entries)
		assert.True(t, errors.Is(err, ErrNoNavigation))
	})

	t.Run("declared but unreadable", func(t *testing.T) {
		entries, err := LoadNavigation(files, &Package{Version: "2.0", NCXPath: "gone.ncx"})
		assert.Empty(t, entries)
		assert.Error(t, err)
	})
}
