// Package store defines the record store the importer and the narration
// engine persist through. Backends live in sub-packages.
package store

import (
	"context"
	"sort"

	"github.com/metcalfc/narr/internal/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a book or position is absent.
var ErrNotFound = errors.New("store: record not found")

// Store persists books, their chapters and their playback positions.
type Store interface {
	PutBook(ctx context.Context, book *models.Book) error
	GetBook(ctx context.Context, id string) (*models.Book, error)
	ListBooks(ctx context.Context) ([]*models.Book, error)

	// PutChapters replaces every chapter of the book.
	PutChapters(ctx context.Context, bookID string, chapters []*models.Chapter) error
	// GetChapters returns the chapters ordered by spine index, or an empty
	// slice for an unknown book.
	GetChapters(ctx context.Context, bookID string) ([]*models.Chapter, error)

	PutPosition(ctx context.Context, pos *models.Position) error
	GetPosition(ctx context.Context, bookID string) (*models.Position, error)

	// DeleteBook removes the book with its chapters and position.
	DeleteBook(ctx context.Context, bookID string) error

	Close() error
}

// SortBooks orders books by import time, oldest first.
func SortBooks(books []*models.Book) {
	sort.SliceStable(books, func(i, j int) bool {
		if !books[i].ImportedAt.Equal(books[j].ImportedAt) {
			return books[i].ImportedAt.Before(books[j].ImportedAt)
		}
		return books[i].ID < books[j].ID
	})
}

// SortChapters orders chapters by spine index.
func SortChapters(chapters []*models.Chapter) {
	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].SpineIndex < chapters[j].SpineIndex
	})
}

// CloneChapter returns a deep copy so callers cannot alias stored sentences.
func CloneChapter(c *models.Chapter) *models.Chapter {
	out := *c
	out.Sentences = append(make([]string, 0, len(c.Sentences)), c.Sentences...)
	return &out
}
