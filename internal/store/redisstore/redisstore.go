// Package redisstore keeps the library in Redis as JSON values.
//
// Keys, under a configurable prefix:
//   - <prefix>books         -> set of book ids
//   - <prefix>book:<id>     -> Book JSON
//   - <prefix>chapters:<id> -> []Chapter JSON
//   - <prefix>position:<id> -> Position JSON
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "narr:"

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements store.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// Open connects and pings the server.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) booksKey() string             { return s.prefix + "books" }
func (s *Store) bookKey(id string) string     { return s.prefix + "book:" + id }
func (s *Store) chaptersKey(id string) string { return s.prefix + "chapters:" + id }
func (s *Store) positionKey(id string) string { return s.prefix + "position:" + id }

func (s *Store) PutBook(ctx context.Context, book *models.Book) error {
	data, err := json.Marshal(book)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.bookKey(book.ID), data, 0)
		pipe.SAdd(ctx, s.booksKey(), book.ID)
		return nil
	})
	return errors.Wrap(err, "failed to store book")
}

func (s *Store) GetBook(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	if err := s.getJSON(ctx, s.bookKey(id), &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]*models.Book, error) {
	ids, err := s.client.SMembers(ctx, s.booksKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list books")
	}

	books := make([]*models.Book, 0, len(ids))
	if len(ids) == 0 {
		return books, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.bookKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load books")
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// The index can briefly outlive a deleted record.
			continue
		}
		var book models.Book
		if err := json.Unmarshal([]byte(raw), &book); err != nil {
			return nil, errors.Wrapf(err, "decode %s", keys[i])
		}
		books = append(books, &book)
	}

	store.SortBooks(books)
	return books, nil
}

func (s *Store) PutChapters(ctx context.Context, bookID string, chapters []*models.Chapter) error {
	rows := make([]*models.Chapter, len(chapters))
	for i, c := range chapters {
		rows[i] = store.CloneChapter(c)
	}
	store.SortChapters(rows)

	data, err := json.Marshal(rows)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(s.client.Set(ctx, s.chaptersKey(bookID), data, 0).Err(), "failed to store chapters")
}

func (s *Store) GetChapters(ctx context.Context, bookID string) ([]*models.Chapter, error) {
	chapters := make([]*models.Chapter, 0)
	err := s.getJSON(ctx, s.chaptersKey(bookID), &chapters)
	if errors.Is(err, store.ErrNotFound) {
		return chapters, nil
	}
	if err != nil {
		return nil, err
	}
	return chapters, nil
}

func (s *Store) PutPosition(ctx context.Context, pos *models.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(s.client.Set(ctx, s.positionKey(pos.BookID), data, 0).Err(), "failed to store position")
}

func (s *Store) GetPosition(ctx context.Context, bookID string) (*models.Position, error) {
	var pos models.Position
	if err := s.getJSON(ctx, s.positionKey(bookID), &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *Store) DeleteBook(ctx context.Context, bookID string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.booksKey(), bookID)
		pipe.Del(ctx, s.bookKey(bookID), s.chaptersKey(bookID), s.positionKey(bookID))
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete book")
	}
	if removed.Val() == 0 {
		return errors.Wrapf(store.ErrNotFound, "book %s", bookID)
	}
	return nil
}

func (s *Store) Close() error {
	return errors.WithStack(s.client.Close())
}

func (s *Store) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return errors.Wrap(store.ErrNotFound, key)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to get %s", key)
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decode %s", key)
}
