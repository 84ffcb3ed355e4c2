package redemption_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botirjon13/oyin-backent/internal/credential"
	"github.com/botirjon13/oyin-backent/internal/domain"
	"github.com/botirjon13/oyin-backent/internal/exchange"
	"github.com/botirjon13/oyin-backent/internal/redemption"
	"github.com/botirjon13/oyin-backent/internal/testutil"
)

// mintVoucher exchanges a seeded offer and returns the minted voucher.
func mintVoucher(t *testing.T, store *testutil.MemStore) domain.Voucher {
	t.Helper()

	player := domain.TelegramIdentity(1001)
	store.SeedAccount(player, "alice", 500)
	store.SeedOffer(1, "Free Coffee", 100, 5, true)

	engine := exchange.NewEngine(store, store, store, store, credential.NewCodec(), nil)
	receipt, err := engine.Exchange(context.Background(), player, 1)
	require.NoError(t, err)

	return receipt.Voucher
}

func TestConsumeFlipsVoucherOnce(t *testing.T) {
	store := testutil.NewMemStore()
	voucher := mintVoucher(t, store)
	svc := redemption.NewService(store, nil, store, nil)

	result, err := svc.Consume(context.Background(), voucher.Token)
	require.NoError(t, err)
	assert.False(t, result.AlreadyUsed)
	assert.Equal(t, voucher.Code, result.VoucherCode)
	assert.Equal(t, "Free Coffee", result.OfferTitle)

	// second consume reports already-used, does not fail
	again, err := svc.Consume(context.Background(), voucher.Token)
	require.NoError(t, err)
	assert.True(t, again.AlreadyUsed)
	assert.Equal(t, voucher.Code, again.VoucherCode)
}

func TestConsumeUnknownToken(t *testing.T) {
	store := testutil.NewMemStore()
	svc := redemption.NewService(store, nil, store, nil)

	_, err := svc.Consume(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, domain.ErrVoucherNotFound)
}

func TestConcurrentConsumesFlipExactlyOnce(t *testing.T) {
	store := testutil.NewMemStore()
	voucher := mintVoucher(t, store)
	svc := redemption.NewService(store, nil, store, nil)

	const attempts = 8
	results := make([]*redemption.ConsumeResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot], errs[slot] = svc.Consume(context.Background(), voucher.Token)
		}(i)
	}
	wg.Wait()

	var flips int
	for i, result := range results {
		require.NoError(t, errs[i])
		if !result.AlreadyUsed {
			flips++
		}
	}
	assert.Equal(t, 1, flips)
}

func TestLookupDoesNotMutate(t *testing.T) {
	store := testutil.NewMemStore()
	voucher := mintVoucher(t, store)
	svc := redemption.NewService(store, nil, store, nil)

	for i := 0; i < 3; i++ {
		found, err := svc.Lookup(context.Background(), voucher.Token)
		require.NoError(t, err)
		assert.Equal(t, domain.VoucherActive, found.Status)
		assert.False(t, found.UsedAt.Valid)
	}

	_, err := svc.Lookup(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, domain.ErrVoucherNotFound)
}

func TestConsumedStateSurvivesLookup(t *testing.T) {
	store := testutil.NewMemStore()
	voucher := mintVoucher(t, store)
	svc := redemption.NewService(store, nil, store, nil)

	_, err := svc.Consume(context.Background(), voucher.Token)
	require.NoError(t, err)

	found, err := svc.Lookup(context.Background(), voucher.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.VoucherUsed, found.Status)
	assert.True(t, found.UsedAt.Valid)
	firstUse := found.UsedAt.Time

	// repeat consumes leave the original timestamp intact
	_, err = svc.Consume(context.Background(), voucher.Token)
	require.NoError(t, err)

	found, err = svc.Lookup(context.Background(), voucher.Token)
	require.NoError(t, err)
	assert.Equal(t, firstUse, found.UsedAt.Time)
}

func TestHistoryListsOwnVouchers(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.TelegramIdentity(1001)
	other := domain.GuestIdentity("abc123")
	store.SeedAccount(player, "alice", 1000)
	store.SeedAccount(other, "bob", 1000)
	store.SeedOffer(1, "Free Coffee", 100, 10, true)

	engine := exchange.NewEngine(store, store, store, store, credential.NewCodec(), nil)
	for i := 0; i < 3; i++ {
		_, err := engine.Exchange(context.Background(), player, 1)
		require.NoError(t, err)
	}
	_, err := engine.Exchange(context.Background(), other, 1)
	require.NoError(t, err)

	svc := redemption.NewService(store, nil, store, nil)

	mine, err := svc.History(context.Background(), player)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
	for _, v := range mine {
		assert.Equal(t, player.Key(), v.Identity.Key())
		assert.Equal(t, "Free Coffee", v.OfferTitle)
	}

	theirs, err := svc.History(context.Background(), other)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}
