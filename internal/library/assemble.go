// Package library runs the import pipeline: container, descriptors, content
// extraction and chapter assembly.
package library

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/metcalfc/narr/internal/epub"
	"github.com/metcalfc/narr/internal/models"
)

var chapterNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/metcalfc/narr/chapters"))

// ContentHash identifies a container by its bytes. Re-importing the same file
// yields the same book id.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16]) // First 16 bytes = 32 hex chars
}

// ChapterID derives a stable id from the book and spine position.
func ChapterID(bookID string, spineIndex int) string {
	return uuid.NewSHA1(chapterNamespace, []byte(fmt.Sprintf("%s/%d", bookID, spineIndex))).String()
}

// Assemble produces one chapter per narratable spine item, in spine order.
// sentences[i] holds the tokenized text of narratable[i].
func Assemble(bookID string, narratable []epub.SpineItem, nav []epub.NavEntry, sentences [][]string) []*models.Chapter {
	titles := titleIndex(nav)

	chapters := make([]*models.Chapter, 0, len(narratable))
	for i, item := range narratable {
		title := fmt.Sprintf("Chapter %d", i+1)
		if t, ok := titles[item.Path]; ok {
			title = t
		} else if t, ok := titles[path.Base(item.Path)]; ok {
			title = t
		}

		var s []string
		if i < len(sentences) {
			s = sentences[i]
		}
		if s == nil {
			s = []string{}
		}

		chapters = append(chapters, &models.Chapter{
			ID:          ChapterID(bookID, i),
			BookID:      bookID,
			SpineIndex:  i,
			SpineItemID: item.ID,
			Title:       title,
			SourceRef:   item.Path,
			Sentences:   s,
		})
	}
	return chapters
}

// titleIndex maps target paths, and their base names as a fallback, to the
// first navigation title that points at them.
func titleIndex(nav []epub.NavEntry) map[string]string {
	result := make(map[string]string)
	for _, e := range nav {
		if e.Title == "" || e.TargetPath == "" {
			continue
		}
		if _, exists := result[e.TargetPath]; !exists {
			result[e.TargetPath] = e.Title
		}
	}
	// Base names go in second so that they never shadow a full path.
	for _, e := range nav {
		if e.Title == "" || e.TargetPath == "" {
			continue
		}
		base := path.Base(e.TargetPath)
		if _, exists := result[base]; !exists {
			result[base] = e.Title
		}
	}
	return result
}
