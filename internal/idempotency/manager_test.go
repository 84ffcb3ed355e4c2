package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManager(t *testing.T) Manager {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return NewManager(NewRedisStore(client, nil), nil)
}

func TestExecuteRunsOperationOnce(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte(`{"ok":true}`), nil
	}

	first, err := m.Execute(ctx, "key-1", time.Minute, fn)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.JSONEq(t, `{"ok":true}`, string(first.Response))

	second, err := m.Execute(ctx, "key-1", time.Minute, fn)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.JSONEq(t, `{"ok":true}`, string(second.Response))

	assert.Equal(t, 1, calls)
}

func TestExecuteDistinctKeysRunIndependently(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("x"), nil
	}

	_, err := m.Execute(ctx, "key-a", time.Minute, fn)
	require.NoError(t, err)
	_, err = m.Execute(ctx, "key-b", time.Minute, fn)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestExecuteDoesNotMemoizeFailures(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := m.Execute(ctx, "key-1", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// the key is free again; a retry executes
	result, err := m.Execute(ctx, "key-1", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("recovered"), nil
	})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, "recovered", string(result.Response))
}

func TestRequestKeyIsStable(t *testing.T) {
	a := RequestKey("POST", "/api/exchange", "client-key")
	b := RequestKey("POST", "/api/exchange", "client-key")
	c := RequestKey("POST", "/api/exchange", "other-key")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
