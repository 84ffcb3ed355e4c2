package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botirjon13/oyin-backent/internal/domain"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/ledger"
	"github.com/botirjon13/oyin-backent/internal/repository"
	"github.com/botirjon13/oyin-backent/internal/testutil"
)

func newService(store *testutil.MemStore) *ledger.Service {
	return ledger.NewService(store, nil, store, nil)
}

func TestRegisterTelegram(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newService(store)

	acc, err := svc.RegisterTelegram(context.Background(), 777, "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, "tg_777", acc.Identity.Key())
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, 3, acc.AvatarID)
	assert.False(t, acc.IsGuest)
	assert.Zero(t, acc.Diamonds)
}

func TestRegisterTelegramDefaults(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newService(store)

	acc, err := svc.RegisterTelegram(context.Background(), 777, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "Telegram User", acc.Username)
	assert.Equal(t, 1, acc.AvatarID)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newService(store)

	_, err := svc.RegisterTelegram(context.Background(), 0, "alice", 1)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "E100", appErr.Code)

	_, err = svc.RegisterGuest(context.Background(), "  ", "bob", 1)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "E100", appErr.Code)
}

func TestReRegisterKeepsProgress(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newService(store)

	first, err := svc.RegisterGuest(context.Background(), "abc123", "bob", 2)
	require.NoError(t, err)

	_, err = svc.SaveScore(context.Background(), first.Identity, 450)
	require.NoError(t, err)

	again, err := svc.RegisterGuest(context.Background(), "abc123", "bobby", 5)
	require.NoError(t, err)
	assert.Equal(t, "bobby", again.Username)
	assert.Equal(t, 5, again.AvatarID)
	assert.Equal(t, int64(450), again.BestScore)
}

func TestSaveScoreIsMonotonic(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.GuestIdentity("abc123")
	store.SeedAccount(player, "bob", 0)
	svc := newService(store)

	result, err := svc.SaveScore(context.Background(), player, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.HighScore)

	// a lower score never shrinks the stored best
	result, err = svc.SaveScore(context.Background(), player, 120)
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.HighScore)
	assert.Zero(t, result.DiamondsAwarded)
}

func TestSaveScoreAwardsDiamondsForImprovement(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.GuestIdentity("abc123")
	store.SeedAccount(player, "bob", 10)
	svc := newService(store)

	// 0 -> 350: three full hundreds of improvement
	result, err := svc.SaveScore(context.Background(), player, 350)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.DiamondsAwarded)
	assert.Equal(t, int64(13), result.Diamonds)

	// 350 -> 380: improvement below the award step
	result, err = svc.SaveScore(context.Background(), player, 380)
	require.NoError(t, err)
	assert.Zero(t, result.DiamondsAwarded)
	assert.Equal(t, int64(13), result.Diamonds)

	// 380 -> 580: two more hundreds
	result, err = svc.SaveScore(context.Background(), player, 580)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.DiamondsAwarded)
	assert.Equal(t, int64(15), result.Diamonds)
}

func TestSaveScoreUnknownAccount(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newService(store)

	_, err := svc.SaveScore(context.Background(), domain.GuestIdentity("ghost"), 100)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestSaveScoreClampsNegative(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.GuestIdentity("abc123")
	store.SeedAccount(player, "bob", 0)
	svc := newService(store)

	_, err := svc.SaveScore(context.Background(), player, 200)
	require.NoError(t, err)

	result, err := svc.SaveScore(context.Background(), player, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), result.HighScore)
	assert.Zero(t, result.DiamondsAwarded)
}

func TestEarnDiamonds(t *testing.T) {
	store := testutil.NewMemStore()
	player := domain.TelegramIdentity(777)
	store.SeedAccount(player, "alice", 5)
	svc := newService(store)

	balance, err := svc.EarnDiamonds(context.Background(), player, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	_, err = svc.EarnDiamonds(context.Background(), player, 0)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "E100", appErr.Code)

	_, err = svc.EarnDiamonds(context.Background(), domain.GuestIdentity("ghost"), 5)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

// rowLockedAccounts models Postgres row locking without serializing whole
// transactions: a locking read blocks until the transaction that holds the
// row writes, while a plain read proceeds immediately — and rendezvouses
// both savers so they would observe the same stale best score. Two saves of
// the same personal best therefore double-award unless the service reads
// the row under the lock.
type rowLockedAccounts struct {
	repository.AccountRepository

	mu   sync.Mutex
	row  sync.Mutex
	held int
	acc  domain.Account

	staleReads sync.WaitGroup
}

func newRowLockedAccounts(id domain.Identity) *rowLockedAccounts {
	s := &rowLockedAccounts{acc: domain.Account{Identity: id}}
	s.staleReads.Add(2)
	return s
}

func (s *rowLockedAccounts) RunTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return fn(nil)
}

func (s *rowLockedAccounts) FindByIdentityForUpdate(ctx context.Context, q repository.Querier, id domain.Identity) (*domain.Account, error) {
	s.row.Lock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.held++
	acc := s.acc
	return &acc, nil
}

func (s *rowLockedAccounts) FindByIdentity(ctx context.Context, q repository.Querier, id domain.Identity) (*domain.Account, error) {
	s.staleReads.Done()
	s.staleReads.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.acc
	return &acc, nil
}

func (s *rowLockedAccounts) SaveScore(ctx context.Context, q repository.Querier, id domain.Identity, score int64, bonusDiamonds int64) (int64, error) {
	s.mu.Lock()
	if score > s.acc.BestScore {
		s.acc.BestScore = score
	}
	s.acc.Diamonds += bonusDiamonds
	best := s.acc.BestScore

	// the write is the last statement of the save transaction, so it
	// releases the row lock taken by the locking read
	release := s.held > 0
	if release {
		s.held--
	}
	s.mu.Unlock()

	if release {
		s.row.Unlock()
	}
	return best, nil
}

func (s *rowLockedAccounts) diamonds() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Diamonds
}

func TestConcurrentSavesAwardImprovementOnce(t *testing.T) {
	player := domain.GuestIdentity("racer")
	store := newRowLockedAccounts(player)
	svc := ledger.NewService(store, nil, store, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = svc.SaveScore(context.Background(), player, 300)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// one 0 -> 300 improvement is worth exactly 3 diamonds, no matter how
	// the two saves interleave
	assert.Equal(t, int64(3), store.diamonds())
}
