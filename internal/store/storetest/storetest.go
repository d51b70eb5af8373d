// Package storetest is a conformance suite every store backend runs.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

var epoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// Book returns a populated book record for tests.
func Book(id string, importedAt time.Time) *models.Book {
	return &models.Book{
		ID:             id,
		Title:          "Title " + id,
		Author:         "Author " + id,
		CoverRef:       "OEBPS/cover.jpg",
		CoverMediaType: "image/jpeg",
		SourcePath:     "/books/" + id + ".epub",
		ImportedAt:     importedAt,
		ChapterCount:   2,
	}
}

// Chapter returns a chapter record for tests.
func Chapter(bookID string, index int, sentences ...string) *models.Chapter {
	if sentences == nil {
		sentences = []string{}
	}
	return &models.Chapter{
		ID:          bookID + "-" + string(rune('a'+index)),
		BookID:      bookID,
		SpineIndex:  index,
		SpineItemID: "item" + string(rune('a'+index)),
		Title:       "Chapter " + string(rune('A'+index)),
		SourceRef:   "OEBPS/Text/" + string(rune('a'+index)) + ".xhtml",
		Sentences:   sentences,
	}
}

// Run exercises the full store contract.
func Run(t *testing.T, open Opener) {
	t.Run("books", func(t *testing.T) { testBooks(t, open(t)) })
	t.Run("chapters", func(t *testing.T) { testChapters(t, open(t)) })
	t.Run("positions", func(t *testing.T) { testPositions(t, open(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDelete(t, open(t)) })
}

func testBooks(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.GetBook(ctx, "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	second := Book("b2", epoch.Add(time.Hour))
	first := Book("b1", epoch)
	require.NoError(t, s.PutBook(ctx, second))
	require.NoError(t, s.PutBook(ctx, first))

	got, err := s.GetBook(ctx, "b1")
	require.NoError(t, err)
	AssertBook(t, first, got)

	books, err = s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "b1", books[0].ID)
	assert.Equal(t, "b2", books[1].ID)

	// Re-importing overwrites rather than duplicates.
	first.Title = "Renamed"
	require.NoError(t, s.PutBook(ctx, first))
	books, err = s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	got, err = s.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
}

func testChapters(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	chapters, err := s.GetChapters(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, chapters)

	require.NoError(t, s.PutBook(ctx, Book("b1", epoch)))
	in := []*models.Chapter{
		Chapter("b1", 2, "Last one."),
		Chapter("b1", 0, "First.", "Second."),
		Chapter("b1", 1),
	}
	require.NoError(t, s.PutChapters(ctx, "b1", in))

	got, err := s.GetChapters(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.SpineIndex)
	}
	AssertChapter(t, in[1], got[0])
	AssertChapter(t, in[2], got[1])
	assert.NotNil(t, got[1].Sentences)
	assert.Empty(t, got[1].Sentences)

	// Callers mutating returned records must not affect the store.
	got[0].Sentences[0] = "mutated"
	again, err := s.GetChapters(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "First.", again[0].Sentences[0])

	// A second put replaces the whole set.
	require.NoError(t, s.PutChapters(ctx, "b1", []*models.Chapter{Chapter("b1", 0, "Only.")}))
	got, err = s.GetChapters(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Only."}, got[0].Sentences)

	// Books do not see each other's chapters.
	require.NoError(t, s.PutBook(ctx, Book("b2", epoch)))
	require.NoError(t, s.PutChapters(ctx, "b2", []*models.Chapter{Chapter("b2", 0, "Other.")}))
	got, err = s.GetChapters(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].BookID)
}

func testPositions(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.GetPosition(ctx, "b1")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	require.NoError(t, s.PutPosition(ctx, &models.Position{BookID: "b1", ChapterIndex: 1, SentenceIndex: 4, UpdatedAt: epoch}))
	pos, err := s.GetPosition(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, pos.ChapterIndex)
	assert.Equal(t, 4, pos.SentenceIndex)
	assert.True(t, epoch.Equal(pos.UpdatedAt), "updated at %v", pos.UpdatedAt)

	// Overwritten, not appended.
	later := epoch.Add(time.Minute)
	require.NoError(t, s.PutPosition(ctx, &models.Position{BookID: "b1", ChapterIndex: 2, SentenceIndex: 0, UpdatedAt: later}))
	pos, err = s.GetPosition(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, pos.ChapterIndex)
	assert.Equal(t, 0, pos.SentenceIndex)
	assert.True(t, later.Equal(pos.UpdatedAt))
}

func testDelete(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	for _, id := range []string{"b1", "b2"} {
		require.NoError(t, s.PutBook(ctx, Book(id, epoch)))
		require.NoError(t, s.PutChapters(ctx, id, []*models.Chapter{Chapter(id, 0, "One."), Chapter(id, 1, "Two.")}))
		require.NoError(t, s.PutPosition(ctx, &models.Position{BookID: id, ChapterIndex: 1, UpdatedAt: epoch}))
	}

	require.NoError(t, s.DeleteBook(ctx, "b1"))

	_, err := s.GetBook(ctx, "b1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.GetPosition(ctx, "b1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	chapters, err := s.GetChapters(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, chapters)

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "b2", books[0].ID)

	chapters, err = s.GetChapters(ctx, "b2")
	require.NoError(t, err)
	assert.Len(t, chapters, 2)
	_, err = s.GetPosition(ctx, "b2")
	assert.NoError(t, err)

	err = s.DeleteBook(ctx, "b1")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

// AssertBook compares two books field by field; timestamps compare by instant.
func AssertBook(t *testing.T, want, got *models.Book) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Author, got.Author)
	assert.Equal(t, want.CoverRef, got.CoverRef)
	assert.Equal(t, want.CoverMediaType, got.CoverMediaType)
	assert.Equal(t, want.SourcePath, got.SourcePath)
	assert.Equal(t, want.ChapterCount, got.ChapterCount)
	assert.True(t, want.ImportedAt.Equal(got.ImportedAt), "imported at %v, want %v", got.ImportedAt, want.ImportedAt)
}

// AssertChapter compares two chapters field by field.
func AssertChapter(t *testing.T, want, got *models.Chapter) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.BookID, got.BookID)
	assert.Equal(t, want.SpineIndex, got.SpineIndex)
	assert.Equal(t, want.SpineItemID, got.SpineItemID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.SourceRef, got.SourceRef)
	assert.Equal(t, want.Sentences, got.Sentences)
}
