// Package models holds the records shared by the import pipeline, the record
// stores and the narration engine.
package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Book is one imported container.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID             string    `bun:",pk" json:"id"`
	Title          string    `bun:",notnull" json:"title"`
	Author         string    `bun:",notnull" json:"author"`
	CoverRef       string    `bun:",notnull" json:"cover_ref,omitempty"`
	CoverMediaType string    `bun:",notnull" json:"cover_media_type,omitempty"`
	SourcePath     string    `bun:",notnull" json:"source_path"`
	ImportedAt     time.Time `bun:",notnull" json:"imported_at"`
	ChapterCount   int       `bun:",notnull" json:"chapter_count"`
}

// Chapter is one narratable spine document. Sentences is never nil.
type Chapter struct {
	bun.BaseModel `bun:"table:chapters,alias:ch"`

	ID          string   `bun:",pk" json:"id"`
	BookID      string   `bun:",notnull" json:"book_id"`
	SpineIndex  int      `bun:",notnull" json:"spine_index"`
	SpineItemID string   `bun:",notnull" json:"spine_item_id"`
	Title       string   `bun:",notnull" json:"title"`
	SourceRef   string   `bun:",notnull" json:"source_ref"`
	Sentences   []string `bun:",notnull,type:json" json:"sentences"`
}

// Position is the durable cursor of a book.
type Position struct {
	bun.BaseModel `bun:"table:positions,alias:p"`

	BookID        string    `bun:",pk" json:"book_id"`
	ChapterIndex  int       `bun:",notnull" json:"chapter_index"`
	SentenceIndex int       `bun:",notnull" json:"sentence_index"`
	UpdatedAt     time.Time `bun:",notnull" json:"updated_at"`
}

// Clamp returns p with both indices forced into the valid range for chapters.
// A book without chapters clamps to (0, 0).
func (p Position) Clamp(chapters []*Chapter) Position {
	if len(chapters) == 0 {
		p.ChapterIndex, p.SentenceIndex = 0, 0
		return p
	}
	p.ChapterIndex = clamp(p.ChapterIndex, len(chapters))
	p.SentenceIndex = clamp(p.SentenceIndex, len(chapters[p.ChapterIndex].Sentences))
	return p
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
