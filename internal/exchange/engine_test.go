package exchange_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botirjon13/oyin-backent/internal/credential"
	"github.com/botirjon13/oyin-backent/internal/domain"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/exchange"
	"github.com/botirjon13/oyin-backent/internal/testutil"
)

func newEngine(store *testutil.MemStore) *exchange.Engine {
	return exchange.NewEngine(store, store, store, store, credential.NewCodec(), nil)
}

func TestExchangeHappyPath(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.TelegramIdentity(1001)
	store.SeedAccount(player, "alice", 500)
	store.SeedOffer(1, "Free Coffee", 100, 10, true)

	receipt, err := newEngine(store).Exchange(context.Background(), player, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(400), receipt.DiamondsLeft)
	assert.Equal(t, domain.VoucherActive, receipt.Voucher.Status)
	assert.NotEmpty(t, receipt.Voucher.Token)
	assert.Regexp(t, `^OYIN-`, receipt.Voucher.Code)

	offer, _ := store.Offer(1)
	assert.Equal(t, int64(9), offer.Stock)

	acc, _ := store.Account(player)
	assert.Equal(t, int64(400), acc.Diamonds)
	assert.Equal(t, 1, store.VoucherCount())
}

func TestExchangeBusinessRejections(t *testing.T) {
	player := domain.TelegramIdentity(1001)

	tests := []struct {
		name    string
		seed    func(store *testutil.MemStore)
		offerID int64
		check   func(t *testing.T, err error)
	}{
		{
			name:    "unknown account",
			seed:    func(store *testutil.MemStore) { store.SeedOffer(1, "Coffee", 100, 5, true) },
			offerID: 1,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrAccountNotFound)
			},
		},
		{
			name: "unknown offer",
			seed: func(store *testutil.MemStore) {
				store.SeedAccount(player, "alice", 500)
			},
			offerID: 42,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrOfferNotFound)
			},
		},
		{
			name: "inactive offer",
			seed: func(store *testutil.MemStore) {
				store.SeedAccount(player, "alice", 500)
				store.SeedOffer(1, "Coffee", 100, 5, false)
			},
			offerID: 1,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrOfferNotFound)
			},
		},
		{
			name: "out of stock",
			seed: func(store *testutil.MemStore) {
				store.SeedAccount(player, "alice", 500)
				store.SeedOffer(1, "Coffee", 100, 0, true)
			},
			offerID: 1,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrOutOfStock)
			},
		},
		{
			name: "insufficient balance",
			seed: func(store *testutil.MemStore) {
				store.SeedAccount(player, "alice", 40)
				store.SeedOffer(1, "Coffee", 100, 5, true)
			},
			offerID: 1,
			check: func(t *testing.T, err error) {
				ibe, ok := domain.IsInsufficientBalance(err)
				require.True(t, ok)
				assert.Equal(t, int64(100), ibe.Need)
				assert.Equal(t, int64(40), ibe.Have)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemStore()
			tt.seed(store)

			_, err := newEngine(store).Exchange(context.Background(), player, tt.offerID)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestExchangeRejectionLeavesNoSideEffects(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.TelegramIdentity(1001)
	store.SeedAccount(player, "alice", 40)
	store.SeedOffer(1, "Coffee", 100, 5, true)

	_, err := newEngine(store).Exchange(context.Background(), player, 1)
	require.Error(t, err)

	acc, _ := store.Account(player)
	offer, _ := store.Offer(1)
	assert.Equal(t, int64(40), acc.Diamonds)
	assert.Equal(t, int64(5), offer.Stock)
	assert.Zero(t, store.VoucherCount())
}

func TestExchangeCredentialCollisionRetries(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.TelegramIdentity(1001)
	store.SeedAccount(player, "alice", 500)
	store.SeedOffer(1, "Coffee", 100, 5, true)

	// two collisions, third attempt lands
	store.FailInserts = 2

	receipt, err := newEngine(store).Exchange(context.Background(), player, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(400), receipt.DiamondsLeft)
}

func TestExchangeCredentialCollisionExhaustion(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.TelegramIdentity(1001)
	store.SeedAccount(player, "alice", 500)
	store.SeedOffer(1, "Coffee", 100, 5, true)

	store.FailInserts = 3

	_, err := newEngine(store).Exchange(context.Background(), player, 1)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.Retryable)

	// the whole transaction rolled back
	acc, _ := store.Account(player)
	assert.Equal(t, int64(500), acc.Diamonds)
	assert.Zero(t, store.VoucherCount())
}

// A burst of exchanges against one balance must debit exactly as many times
// as the balance affords, never below zero.
func TestConcurrentExchangesRespectBalance(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.TelegramIdentity(1001)
	store.SeedAccount(player, "alice", 250)
	store.SeedOffer(1, "Coffee", 100, 100, true)

	engine := newEngine(store)

	const attempts = 5
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = engine.Exchange(context.Background(), player, 1)
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		_, ok := domain.IsInsufficientBalance(err)
		require.True(t, ok, "unexpected error: %v", err)
		rejected++
	}

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 3, rejected)

	acc, _ := store.Account(player)
	assert.Equal(t, int64(50), acc.Diamonds)
	assert.Equal(t, 2, store.VoucherCount())
}

// A burst of exchanges against one unit of stock must mint exactly one
// voucher.
func TestConcurrentExchangesRespectStock(t *testing.T) {
	store := testutil.NewMemStore()
	store.SeedOffer(1, "Movie Ticket", 100, 1, true)

	players := make([]domain.Identity, 4)
	for i := range players {
		players[i] = domain.TelegramIdentity(int64(2000 + i))
		store.SeedAccount(players[i], "player", 1000)
	}

	engine := newEngine(store)
	errs := make([]error, len(players))

	var wg sync.WaitGroup
	for i, p := range players {
		wg.Add(1)
		go func(slot int, id domain.Identity) {
			defer wg.Done()
			_, errs[slot] = engine.Exchange(context.Background(), id, 1)
		}(i, p)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrOutOfStock)
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, store.VoucherCount())

	offer, _ := store.Offer(1)
	assert.Zero(t, offer.Stock)
}
