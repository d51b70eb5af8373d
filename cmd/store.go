package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/metcalfc/narr/internal/config"
	"github.com/metcalfc/narr/internal/models"
	"github.com/metcalfc/narr/internal/state"
	"github.com/metcalfc/narr/internal/store"
	"github.com/metcalfc/narr/internal/store/memstore"
	"github.com/metcalfc/narr/internal/store/pebblestore"
	"github.com/metcalfc/narr/internal/store/redisstore"
	"github.com/metcalfc/narr/internal/store/sqlstore"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Store.Type {
	case config.StoreFile:
		return state.Open(cfg.StorePath())
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath()), 0755); err != nil {
			return nil, errors.WithStack(err)
		}
		return sqlstore.Open(ctx, cfg.StorePath(), log)
	case config.StorePebble:
		return pebblestore.Open(cfg.StorePath())
	case config.StoreRedis:
		return redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
	case config.StoreMemory:
		return memstore.New(), nil
	}
	return nil, errors.Errorf("unknown store type %q", cfg.Store.Type)
}

// resolveBook finds a book by ID, unique ID prefix, or case-insensitive title.
func resolveBook(ctx context.Context, s store.Store, ref string) (*models.Book, error) {
	book, err := s.GetBook(ctx, ref)
	if err == nil {
		return book, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	books, err := s.ListBooks(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*models.Book
	for _, b := range books {
		if strings.HasPrefix(b.ID, ref) || strings.EqualFold(b.Title, ref) {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errors.Wrapf(store.ErrNotFound, "no book matches %q", ref)
	case 1:
		return matches[0], nil
	}

	ids := make([]string, len(matches))
	for i, b := range matches {
		ids[i] = shortID(b.ID)
	}
	sort.Strings(ids)
	return nil, errors.Errorf("%q matches %d books: %s", ref, len(matches), strings.Join(ids, ", "))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
