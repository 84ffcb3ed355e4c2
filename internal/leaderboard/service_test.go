package leaderboard_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botirjon13/oyin-backent/internal/domain"
	"github.com/botirjon13/oyin-backent/internal/leaderboard"
	"github.com/botirjon13/oyin-backent/internal/testutil"
	appredis "github.com/botirjon13/oyin-backent/pkg/redis"
)

func setupCache(t *testing.T) (*leaderboard.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := appredis.New(context.Background(), appredis.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return leaderboard.NewCache(client), mr
}

func seedPlayers(store *testutil.MemStore, scores ...int64) {
	for i, score := range scores {
		id := domain.GuestIdentity(fmt.Sprintf("g%d", i))
		store.SeedAccount(id, fmt.Sprintf("player%d", i), 0)
		_, _ = store.SaveScore(context.Background(), nil, id, score, 0)
	}
}

func TestTopOrdersByScore(t *testing.T) {
	store := testutil.NewMemStore()
	seedPlayers(store, 100, 900, 400)

	svc := leaderboard.NewService(nil, store, nil, nil, 10, time.Minute, nil)

	entries, err := svc.Top(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(900), entries[0].Score)
	assert.Equal(t, int64(400), entries[1].Score)
	assert.Equal(t, int64(100), entries[2].Score)
}

func TestTopHonorsLimit(t *testing.T) {
	store := testutil.NewMemStore()
	seedPlayers(store, 10, 20, 30, 40, 50)

	svc := leaderboard.NewService(nil, store, nil, nil, 3, time.Minute, nil)

	entries, err := svc.Top(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, int64(50), entries[0].Score)
}

func TestTopUsesGuestAvatarFallback(t *testing.T) {
	store := testutil.NewMemStore()
	seedPlayers(store, 100)

	svc := leaderboard.NewService(nil, store, nil, nil, 10, time.Minute, nil)

	entries, err := svc.Top(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "assets/avatars/1.png", entries[0].AvatarURL)
}

func TestTopServesFromCache(t *testing.T) {
	store := testutil.NewMemStore()
	seedPlayers(store, 100, 200)

	cache, _ := setupCache(t)
	svc := leaderboard.NewService(nil, store, cache, nil, 10, time.Minute, nil)

	first, err := svc.Top(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	// a new score does not show until the TTL passes
	seedPlayers(store, 999)

	second, err := svc.Top(context.Background())
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Equal(t, first[0].Score, second[0].Score)
}

func TestTopRefreshesAfterTTL(t *testing.T) {
	store := testutil.NewMemStore()
	seedPlayers(store, 100, 200)

	cache, mr := setupCache(t)
	svc := leaderboard.NewService(nil, store, cache, nil, 10, time.Second, nil)

	_, err := svc.Top(context.Background())
	require.NoError(t, err)

	seedPlayers(store, 999)
	mr.FastForward(2 * time.Second)

	refreshed, err := svc.Top(context.Background())
	require.NoError(t, err)
	require.Len(t, refreshed, 3)
	assert.Equal(t, int64(999), refreshed[0].Score)
}

func TestCacheInvalidate(t *testing.T) {
	store := testutil.NewMemStore()
	seedPlayers(store, 100)

	cache, _ := setupCache(t)
	svc := leaderboard.NewService(nil, store, cache, nil, 10, time.Minute, nil)

	_, err := svc.Top(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(context.Background()))

	seedPlayers(store, 500)
	entries, err := svc.Top(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
