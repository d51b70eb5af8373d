package pebblestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/store"
	"github.com/metcalfc/narr/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := OpenInMemory()
		require.NoError(t, err)
		return s
	})
}

func TestOpenOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "pebble")

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.PutBook(ctx, storetest.Book("b1", time.Now())))
	require.NoError(t, s.PutChapters(ctx, "b1", []*models.Chapter{storetest.Chapter("b1", 0, "Kept.")}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	chapters, err := s.GetChapters(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, []string{"Kept."}, chapters[0].Sentences)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("book;"), prefixEnd("book:"))
}
