package state

import (
	"context"
	"os"
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
		s, err := Open(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestDefaultDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmpDir)
	assert.Equal(t, filepath.Join(tmpDir, "narr"), DefaultDir())

	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", tmpDir)
	assert.Equal(t, filepath.Join(tmpDir, ".local", "state", "narr"), DefaultDir())
}

func TestStorePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	store1, err := Open(dir)
	require.NoError(t, err)
	book := storetest.Book("abc", at)
	require.NoError(t, store1.PutBook(ctx, book))
	require.NoError(t, store1.PutChapters(ctx, "abc", []*models.Chapter{storetest.Chapter("abc", 0, "Hello.")}))
	require.NoError(t, store1.PutPosition(ctx, &models.Position{BookID: "abc", SentenceIndex: 0, UpdatedAt: at}))

	// A new instance loads what the first one wrote.
	store2, err := Open(dir)
	require.NoError(t, err)

	got, err := store2.GetBook(ctx, "abc")
	require.NoError(t, err)
	storetest.AssertBook(t, book, got)

	chapters, err := store2.GetChapters(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, []string{"Hello."}, chapters[0].Sentences)

	_, err = store2.GetPosition(ctx, "abc")
	require.NoError(t, err)

	_, err = os.Stat(store2.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestOpenCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte("{not json"), 0644))

	_, err := Open(dir)
	assert.Error(t, err)
}

func TestOpenPartialFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte(`{"books": null}`), 0644))

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.PutPosition(context.Background(), &models.Position{BookID: "x"}))
	require.NoError(t, s.PutBook(context.Background(), storetest.Book("x", time.Now())))
}
