// Package pebblestore keeps the library in a Pebble LSM key-value store.
//
// Key schema:
//   - book:<id>     -> Book JSON
//   - chapters:<id> -> []Chapter JSON, spine order
//   - position:<id> -> Position JSON
package pebblestore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
)

const (
	bookPrefix     = "book:"
	chaptersPrefix = "chapters:"
	positionPrefix = "position:"
)

// Store implements store.Store on Pebble.
type Store struct {
	db *pebble.DB
	// mu serialises read-modify-write sequences such as DeleteBook.
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database directory at path.
func Open(path string) (*Store, error) {
	return open(path, &pebble.Options{})
}

// OpenInMemory returns a store backed by an in-memory filesystem.
func OpenInMemory() (*Store, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(path string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PebbleDB")
	}
	return &Store{db: db}, nil
}

func (p *Store) Close() error {
	return errors.WithStack(p.db.Close())
}

func (p *Store) PutBook(_ context.Context, book *models.Book) error {
	return p.setJSON(bookPrefix+book.ID, book)
}

func (p *Store) GetBook(_ context.Context, id string) (*models.Book, error) {
	var book models.Book
	if err := p.getJSON(bookPrefix+id, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (p *Store) ListBooks(_ context.Context) ([]*models.Book, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(bookPrefix),
		UpperBound: prefixEnd(bookPrefix),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer iter.Close()

	books := make([]*models.Book, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var book models.Book
		if err := json.Unmarshal(iter.Value(), &book); err != nil {
			return nil, errors.Wrapf(err, "decode %s", iter.Key())
		}
		books = append(books, &book)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.WithStack(err)
	}

	store.SortBooks(books)
	return books, nil
}

func (p *Store) PutChapters(_ context.Context, bookID string, chapters []*models.Chapter) error {
	rows := make([]*models.Chapter, len(chapters))
	for i, c := range chapters {
		rows[i] = store.CloneChapter(c)
	}
	store.SortChapters(rows)
	return p.setJSON(chaptersPrefix+bookID, rows)
}

func (p *Store) GetChapters(_ context.Context, bookID string) ([]*models.Chapter, error) {
	chapters := make([]*models.Chapter, 0)
	err := p.getJSON(chaptersPrefix+bookID, &chapters)
	if errors.Is(err, store.ErrNotFound) {
		return chapters, nil
	}
	if err != nil {
		return nil, err
	}
	return chapters, nil
}

func (p *Store) PutPosition(_ context.Context, pos *models.Position) error {
	return p.setJSON(positionPrefix+pos.BookID, pos)
}

func (p *Store) GetPosition(_ context.Context, bookID string) (*models.Position, error) {
	var pos models.Position
	if err := p.getJSON(positionPrefix+bookID, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// DeleteBook removes all three keys of a book in one batch.
func (p *Store) DeleteBook(_ context.Context, bookID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, closer, err := p.db.Get([]byte(bookPrefix + bookID))
	if err == pebble.ErrNotFound {
		return errors.Wrapf(store.ErrNotFound, "book %s", bookID)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	closer.Close()

	b := p.db.NewBatch()
	defer b.Close()
	for _, prefix := range []string{bookPrefix, chaptersPrefix, positionPrefix} {
		if err := b.Delete([]byte(prefix+bookID), nil); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(b.Commit(pebble.Sync))
}

func (p *Store) setJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(p.db.Set([]byte(key), data, pebble.Sync))
}

func (p *Store) getJSON(key string, v interface{}) error {
	value, closer, err := p.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return errors.Wrap(store.ErrNotFound, key)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	defer closer.Close()

	// value is only valid until closer.Close.
	return errors.Wrapf(json.Unmarshal(value, v), "decode %s", key)
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}
