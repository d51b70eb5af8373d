package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE books (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				author TEXT NOT NULL,
				cover_ref TEXT NOT NULL,
				cover_media_type TEXT NOT NULL,
				source_path TEXT NOT NULL,
				imported_at TIMESTAMPTZ NOT NULL,
				chapter_count INTEGER NOT NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE chapters (
				id TEXT PRIMARY KEY,
				book_id TEXT NOT NULL,
				spine_index INTEGER NOT NULL,
				spine_item_id TEXT NOT NULL,
				title TEXT NOT NULL,
				source_ref TEXT NOT NULL,
				sentences TEXT NOT NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_chapters_book_spine ON chapters(book_id, spine_index)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE positions (
				book_id TEXT PRIMARY KEY,
				chapter_index INTEGER NOT NULL,
				sentence_index INTEGER NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)
`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"positions", "chapters", "books"} {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
