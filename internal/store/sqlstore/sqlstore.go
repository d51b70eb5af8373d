// Package sqlstore keeps the library in SQLite through bun.
package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/metcalfc/narr/internal/store/sqlstore/migrations"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

type logQueryHook struct {
	log *zap.Logger
}

func (*logQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *logQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	qh.log.Debug("query",
		zap.String("query", event.Query),
		zap.Duration("took", time.Since(event.StartTime)),
		zap.Error(event.Err))
}

// Store is a bun-backed record store.
type Store struct {
	db *bun.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at dsn and migrates it.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if dsn == MemoryDSN {
		// Every connection to :memory: is a separate database.
		sqldb.SetMaxOpenConns(1)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if log != nil && log.Core().Enabled(zap.DebugLevel) {
		db.AddQueryHook(&logQueryHook{log.Named("sql")})
	}

	if dsn != MemoryDSN {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to enable WAL mode")
		}
	}

	if _, err := migrations.BringUpToDate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) PutBook(ctx context.Context, book *models.Book) error {
	_, err := s.db.NewInsert().
		Model(book).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("author = EXCLUDED.author").
		Set("cover_ref = EXCLUDED.cover_ref").
		Set("cover_media_type = EXCLUDED.cover_media_type").
		Set("source_path = EXCLUDED.source_path").
		Set("imported_at = EXCLUDED.imported_at").
		Set("chapter_count = EXCLUDED.chapter_count").
		Exec(ctx)
	return errors.WithStack(err)
}

func (s *Store) GetBook(ctx context.Context, id string) (*models.Book, error) {
	book := new(models.Book)
	err := s.db.NewSelect().Model(book).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrNotFound, "book %s", id)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return book, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]*models.Book, error) {
	books := make([]*models.Book, 0)
	if err := s.db.NewSelect().Model(&books).Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	store.SortBooks(books)
	return books, nil
}

// PutChapters deletes all existing chapters for a book and inserts new ones.
func (s *Store) PutChapters(ctx context.Context, bookID string, chapters []*models.Chapter) error {
	rows := make([]*models.Chapter, len(chapters))
	for i, c := range chapters {
		rows[i] = store.CloneChapter(c)
		rows[i].BookID = bookID
	}

	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.Chapter)(nil)).
			Where("book_id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = tx.NewInsert().Model(&rows).Exec(ctx)
		return errors.WithStack(err)
	})
}

func (s *Store) GetChapters(ctx context.Context, bookID string) ([]*models.Chapter, error) {
	chapters := make([]*models.Chapter, 0)
	err := s.db.NewSelect().
		Model(&chapters).
		Where("book_id = ?", bookID).
		Order("spine_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, c := range chapters {
		if c.Sentences == nil {
			c.Sentences = []string{}
		}
	}
	return chapters, nil
}

func (s *Store) PutPosition(ctx context.Context, pos *models.Position) error {
	_, err := s.db.NewInsert().
		Model(pos).
		On("CONFLICT (book_id) DO UPDATE").
		Set("chapter_index = EXCLUDED.chapter_index").
		Set("sentence_index = EXCLUDED.sentence_index").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return errors.WithStack(err)
}

func (s *Store) GetPosition(ctx context.Context, bookID string) (*models.Position, error) {
	pos := new(models.Position)
	err := s.db.NewSelect().Model(pos).Where("book_id = ?", bookID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrNotFound, "position %s", bookID)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pos, nil
}

// DeleteBook removes the book row and cascades to chapters and position.
func (s *Store) DeleteBook(ctx context.Context, bookID string) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.Book)(nil)).
			Where("id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.Wrapf(store.ErrNotFound, "book %s", bookID)
		}

		_, err = tx.NewDelete().
			Model((*models.Chapter)(nil)).
			Where("book_id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewDelete().
			Model((*models.Position)(nil)).
			Where("book_id = ?", bookID).
			Exec(ctx)
		return errors.WithStack(err)
	})
}

func (s *Store) Close() error {
	return errors.WithStack(s.db.Close())
}
