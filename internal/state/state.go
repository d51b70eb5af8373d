// Package state is the default record store: a single JSON document in the
// data directory, rewritten on every change.
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
)

const stateFileName = "library.json"

type document struct {
	Books     map[string]models.Book       `json:"books"`
	Chapters  map[string][]*models.Chapter `json:"chapters"`
	Positions map[string]models.Position   `json:"positions"`
}

// Store manages the persistent library file.
type Store struct {
	path string
	data document
	mu   sync.RWMutex
}

var _ store.Store = (*Store)(nil)

// Open creates or loads the library file in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}

	s := &Store{path: filepath.Join(dir, stateFileName)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultDir returns XDG_STATE_HOME/narr or ~/.local/state/narr
func DefaultDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "narr")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "narr")
}

// Path is the location of the library file.
func (s *Store) Path() string { return s.path }

func (s *Store) PutBook(_ context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Books[book.ID] = *book
	return s.save()
}

func (s *Store) GetBook(_ context.Context, id string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.data.Books[id]; ok {
		return &b, nil
	}
	return nil, errors.Wrapf(store.ErrNotFound, "book %s", id)
}

func (s *Store) ListBooks(_ context.Context) ([]*models.Book, error) {
	s.mu.RLock()
	out := make([]*models.Book, 0, len(s.data.Books))
	for _, b := range s.data.Books {
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
	s.data.Chapters[bookID] = cp
	return s.save()
}

func (s *Store) GetChapters(_ context.Context, bookID string) ([]*models.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.data.Chapters[bookID]
	out := make([]*models.Chapter, len(stored))
	for i, c := range stored {
		out[i] = store.CloneChapter(c)
	}
	return out, nil
}

func (s *Store) PutPosition(_ context.Context, pos *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Positions[pos.BookID] = *pos
	return s.save()
}

func (s *Store) GetPosition(_ context.Context, bookID string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.data.Positions[bookID]; ok {
		return &p, nil
	}
	return nil, errors.Wrapf(store.ErrNotFound, "position %s", bookID)
}

// DeleteBook removes the book, its chapters and its position.
func (s *Store) DeleteBook(_ context.Context, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Books[bookID]; !ok {
		return errors.Wrapf(store.ErrNotFound, "book %s", bookID)
	}
	delete(s.data.Books, bookID)
	delete(s.data.Chapters, bookID)
	delete(s.data.Positions, bookID)
	return s.save()
}

func (s *Store) Close() error { return nil }

func (s *Store) load() error {
	s.data = document{
		Books:     make(map[string]models.Book),
		Chapters:  make(map[string][]*models.Chapter),
		Positions: make(map[string]models.Position),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WithStack(err)
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return errors.Wrapf(err, "parse %s", s.path)
	}
	// A file written by hand may omit sections.
	if s.data.Books == nil {
		s.data.Books = make(map[string]models.Book)
	}
	if s.data.Chapters == nil {
		s.data.Chapters = make(map[string][]*models.Chapter)
	}
	if s.data.Positions == nil {
		s.data.Positions = make(map[string]models.Position)
	}
	return nil
}

// save replaces the library file atomically.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, s.path))
}
