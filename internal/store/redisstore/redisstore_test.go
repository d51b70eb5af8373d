package redisstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/metcalfc/narr/internal/store"
	"github.com/metcalfc/narr/internal/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// openTest connects to NARR_TEST_REDIS_ADDR under a unique prefix and removes
// every key it wrote when the test ends.
func openTest(t *testing.T) store.Store {
	t.Helper()

	addr := os.Getenv("NARR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NARR_TEST_REDIS_ADDR not set, skipping redis tests")
	}

	prefix := "narrtest:" + uuid.NewString() + ":"
	s, err := Open(context.Background(), Options{Addr: addr, Prefix: prefix})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		keys, err := client.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, openTest)
}

func TestOpenUnreachable(t *testing.T) {
	_, err := Open(context.Background(), Options{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
