// Package memstore is an in-process store used by tests and the silent player.
package memstore

import (
	"context"
	"sync"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
)

// Store keeps every record in maps guarded by a RWMutex.
type Store struct {
	mu        sync.RWMutex
	books     map[string]models.Book
	chapters  map[string][]*models.Chapter
	positions map[string]models.Position
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		books:     make(map[string]models.Book),
		chapters:  make(map[string][]*models.Chapter),
		positions: make(map[string]models.Position),
	}
}

func (s *Store) PutBook(_ context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[book.ID] = *book
	return nil
}

func (s *Store) GetBook(_ context.Context, id string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "book %s", id)
	}
	return &b, nil
}

func (s *Store) ListBooks(_ context.Context) ([]*models.Book, error) {
	s.mu.RLock()
	out := make([]*models.Book, 0, len(s.books))
	for _, b := range s.books {
		b := b
		out = append(out, &b)
	}
	s.mu.RUnlock()

	store.SortBooks(out)
	return out, nil
}

func (s *Store) PutChapters(_ context.Context, bookID string, chapters []*models.Chapter) error {
	cp := make([]*models.Chapter, len(chapters))
	for i, c := range chapters {
		cp[i] = store.CloneChapter(c)
	}
	store.SortChapters(cp)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[bookID] = cp
	return nil
}

func (s *Store) GetChapters(_ context.Context, bookID string) ([]*models.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.chapters[bookID]
	out := make([]*models.Chapter, len(stored))
	for i, c := range stored {
		out[i] = store.CloneChapter(c)
	}
	return out, nil
}

func (s *Store) PutPosition(_ context.Context, pos *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.BookID] = *pos
	return nil
}

func (s *Store) GetPosition(_ context.Context, bookID string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[bookID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "position %s", bookID)
	}
	return &p, nil
}

func (s *Store) DeleteBook(_ context.Context, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[bookID]; !ok {
		return errors.Wrapf(store.ErrNotFound, "book %s", bookID)
	}
	delete(s.books, bookID)
	delete(s.chapters, bookID)
	delete(s.positions, bookID)
	return nil
}

func (s *Store) Close() error { return nil }
