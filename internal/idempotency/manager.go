// Package idempotency gives POST endpoints at-most-once semantics per
// client-supplied key: the first request executes and its response is
// replayed to duplicates. This protects against double-submitted exchange
// requests at the HTTP edge; the exchange transaction itself stays the
// authority on consistency.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrRequestInProgress = errors.New("request with this key is already in progress")

const (
	lockTTL      = 30 * time.Second
	pollInterval = 100 * time.Millisecond
)

// Operation produces the response payload to memoize under the key.
type Operation func(ctx context.Context) ([]byte, error)

// Result carries the response and whether it was replayed from the store.
type Result struct {
	Response  []byte
	FromCache bool
}

type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store Store
	log   *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store: store,
		log:   log,
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for {
		locked, err := m.store.Lock(ctx, key, lockTTL)
		if err != nil {
			return nil, err
		}

		if locked {
			return m.run(ctx, key, ttl, fn)
		}

		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		if record == nil {
			// Lock holder has not written its record yet; wait briefly.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
				continue
			}
		}

		switch record.Status {
		case StatusProcessing:
			return nil, ErrRequestInProgress
		case StatusCompleted:
			return &Result{Response: record.Response, FromCache: true}, nil
		default:
			return nil, ErrRequestInProgress
		}
	}
}

func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, lockTTL); err != nil {
		m.releaseLock(ctx, key)
		return nil, err
	}

	response, err := fn(ctx)
	if err != nil {
		// Failed operations are not memoized; the client may retry.
		m.releaseLock(ctx, key)
		if delErr := m.store.Delete(ctx, key); delErr != nil {
			m.log.Warn("failed to clear idempotency record", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: response}, ttl); err != nil {
		m.log.Error("failed to memoize idempotent response", slog.String("key", key), slog.Any("error", err))
	}
	m.releaseLock(ctx, key)

	return &Result{Response: response, FromCache: false}, nil
}

func (m *manager) releaseLock(ctx context.Context, key string) {
	if err := m.store.ReleaseLock(ctx, key); err != nil {
		m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
	}
}
