// Package testutil provides in-memory fakes for the repository layer.
// MemStore serializes transactions with a mutex and rolls state back on
// failure, mirroring the atomicity the SQL stores get from Postgres.
package testutil

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/botirjon13/oyin-backent/internal/domain"
	"github.com/botirjon13/oyin-backent/internal/repository"
)

// MemStore implements TxRunner plus the account, offer and voucher
// repositories over plain maps.
type MemStore struct {
	mu sync.Mutex

	accounts map[string]*domain.Account
	offers   map[int64]*domain.Offer
	vouchers map[string]*domain.Voucher

	nextVoucherID int64

	// FailInserts forces the next N voucher inserts to report a duplicate
	// credential, for exercising the collision retry.
	FailInserts int
}

// NewMemStore builds an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[string]*domain.Account),
		offers:   make(map[int64]*domain.Offer),
		vouchers: make(map[string]*domain.Voucher),
	}
}

// SeedAccount adds an account with the given balance.
func (s *MemStore) SeedAccount(id domain.Identity, username string, diamonds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	telegramID, _ := id.TelegramID()
	s.accounts[id.Key()] = &domain.Account{
		Identity:     id,
		TelegramID:   telegramID,
		IsGuest:      id.Kind() == domain.IdentityGuest,
		Username:     username,
		AvatarID:     1,
		Diamonds:     diamonds,
		CreatedAt:    time.Now(),
		LastPlayedAt: time.Now(),
	}
}

// SeedOffer adds an offer to the catalog.
func (s *MemStore) SeedOffer(id int64, title string, cost, stock int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offers[id] = &domain.Offer{
		ID:        id,
		Title:     title,
		Cost:      cost,
		Active:    active,
		Stock:     stock,
		CreatedAt: time.Now(),
	}
}

// Account returns a copy of the stored account.
func (s *MemStore) Account(id domain.Identity) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id.Key()]
	if !ok {
		return domain.Account{}, false
	}
	return *acc, true
}

// Offer returns a copy of the stored offer.
func (s *MemStore) Offer(id int64) (domain.Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[id]
	if !ok {
		return domain.Offer{}, false
	}
	return *offer, true
}

// VoucherCount reports how many vouchers have been minted.
func (s *MemStore) VoucherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.vouchers)
}

// RunTx serializes the transaction and restores the previous state when fn
// fails, so a failed exchange leaves no partial effects behind. The callback
// receives a memTx marker so repository methods invoked inside it skip the
// mutex RunTx already holds.
func (s *MemStore) RunTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()

	if err := fn(memTx{}); err != nil {
		s.restoreLocked(snapshot)
		return err
	}

	return nil
}

// memTx tags queriers handed to RunTx callbacks. The fake never runs SQL,
// so the Querier methods only exist to satisfy the interface.
type memTx struct{}

func (memTx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	panic("memstore: raw sql is not supported")
}

func (memTx) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	panic("memstore: raw sql is not supported")
}

func (memTx) QueryRowContext(context.Context, string, ...any) *sql.Row {
	panic("memstore: raw sql is not supported")
}

// lock takes the store mutex unless q marks an already-locked transaction.
// It returns the matching unlock so callers can defer it.
func (s *MemStore) lock(q repository.Querier) func() {
	if _, inTx := q.(memTx); inTx {
		return func() {}
	}

	s.mu.Lock()
	return s.mu.Unlock
}

type memSnapshot struct {
	accounts map[string]domain.Account
	offers   map[int64]domain.Offer
	vouchers map[string]domain.Voucher
	nextID   int64
}

func (s *MemStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		accounts: make(map[string]domain.Account, len(s.accounts)),
		offers:   make(map[int64]domain.Offer, len(s.offers)),
		vouchers: make(map[string]domain.Voucher, len(s.vouchers)),
		nextID:   s.nextVoucherID,
	}
	for k, v := range s.accounts {
		snap.accounts[k] = *v
	}
	for k, v := range s.offers {
		snap.offers[k] = *v
	}
	for k, v := range s.vouchers {
		snap.vouchers[k] = *v
	}
	return snap
}

func (s *MemStore) restoreLocked(snap memSnapshot) {
	s.accounts = make(map[string]*domain.Account, len(snap.accounts))
	s.offers = make(map[int64]*domain.Offer, len(snap.offers))
	s.vouchers = make(map[string]*domain.Voucher, len(snap.vouchers))
	s.nextVoucherID = snap.nextID

	for k, v := range snap.accounts {
		acc := v
		s.accounts[k] = &acc
	}
	for k, v := range snap.offers {
		offer := v
		s.offers[k] = &offer
	}
	for k, v := range snap.vouchers {
		voucher := v
		s.vouchers[k] = &voucher
	}
}

// --- AccountRepository ---

func (s *MemStore) Upsert(ctx context.Context, q repository.Querier, acc *domain.Account) (*domain.Account, error) {
	defer s.lock(q)()

	existing, ok := s.accounts[acc.Identity.Key()]
	if !ok {
		created := *acc
		created.CreatedAt = time.Now()
		created.LastPlayedAt = time.Now()
		s.accounts[acc.Identity.Key()] = &created
		result := created
		return &result, nil
	}

	existing.Username = acc.Username
	existing.AvatarID = acc.AvatarID
	existing.LastPlayedAt = time.Now()
	result := *existing
	return &result, nil
}

func (s *MemStore) FindByIdentity(ctx context.Context, q repository.Querier, id domain.Identity) (*domain.Account, error) {
	defer s.lock(q)()

	acc, ok := s.accounts[id.Key()]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	result := *acc
	return &result, nil
}

// FindByIdentityForUpdate behaves like FindByIdentity; RunTx's mutex already
// gives transactions the serialization the SQL store gets from FOR UPDATE.
func (s *MemStore) FindByIdentityForUpdate(ctx context.Context, q repository.Querier, id domain.Identity) (*domain.Account, error) {
	return s.FindByIdentity(ctx, q, id)
}

func (s *MemStore) LockBalance(ctx context.Context, q repository.Querier, id domain.Identity) (int64, error) {
	defer s.lock(q)()

	acc, ok := s.accounts[id.Key()]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	return acc.Diamonds, nil
}

func (s *MemStore) Debit(ctx context.Context, q repository.Querier, id domain.Identity, amount int64) (int64, error) {
	defer s.lock(q)()

	acc, ok := s.accounts[id.Key()]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	acc.Diamonds -= amount
	return acc.Diamonds, nil
}

func (s *MemStore) Credit(ctx context.Context, q repository.Querier, id domain.Identity, amount int64) (int64, error) {
	defer s.lock(q)()

	acc, ok := s.accounts[id.Key()]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	acc.Diamonds += amount
	return acc.Diamonds, nil
}

func (s *MemStore) SaveScore(ctx context.Context, q repository.Querier, id domain.Identity, score int64, bonusDiamonds int64) (int64, error) {
	defer s.lock(q)()

	acc, ok := s.accounts[id.Key()]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}

	if score > acc.BestScore {
		acc.BestScore = score
	}
	acc.Diamonds += bonusDiamonds
	acc.LastPlayedAt = time.Now()
	return acc.BestScore, nil
}

func (s *MemStore) Top(ctx context.Context, q repository.Querier, limit int) ([]domain.LeaderboardEntry, error) {
	defer s.lock(q)()

	entries := make([]domain.LeaderboardEntry, 0, len(s.accounts))
	for _, acc := range s.accounts {
		entries = append(entries, domain.LeaderboardEntry{
			Nickname:     acc.Username,
			AvatarID:     acc.AvatarID,
			Score:        acc.BestScore,
			IsGuest:      acc.IsGuest,
			TelegramID:   acc.TelegramID,
			LastPlayedAt: acc.LastPlayedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].LastPlayedAt.After(entries[j].LastPlayedAt)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// --- OfferRepository ---

func (s *MemStore) ListActive(ctx context.Context, q repository.Querier) ([]domain.Offer, error) {
	defer s.lock(q)()

	offers := make([]domain.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		if o.Redeemable() {
			offers = append(offers, *o)
		}
	}

	sort.Slice(offers, func(i, j int) bool { return offers[i].Cost < offers[j].Cost })
	return offers, nil
}

func (s *MemStore) LockForExchange(ctx context.Context, q repository.Querier, offerID int64) (*domain.Offer, error) {
	defer s.lock(q)()

	offer, ok := s.offers[offerID]
	if !ok || !offer.Active {
		return nil, domain.ErrOfferNotFound
	}
	result := *offer
	return &result, nil
}

func (s *MemStore) DecrementStock(ctx context.Context, q repository.Querier, offerID int64) error {
	defer s.lock(q)()

	offer, ok := s.offers[offerID]
	if !ok {
		return domain.ErrOfferNotFound
	}
	offer.Stock--
	return nil
}

// --- VoucherRepository ---

func (s *MemStore) Insert(ctx context.Context, q repository.Querier, v *domain.Voucher) (*domain.Voucher, error) {
	defer s.lock(q)()

	if s.FailInserts > 0 {
		s.FailInserts--
		return nil, repository.ErrDuplicate
	}

	if _, exists := s.vouchers[v.Token]; exists {
		return nil, repository.ErrDuplicate
	}
	for _, stored := range s.vouchers {
		if stored.Code == v.Code {
			return nil, repository.ErrDuplicate
		}
	}

	s.nextVoucherID++
	created := *v
	created.ID = s.nextVoucherID
	created.Status = domain.VoucherActive
	created.CreatedAt = time.Now()
	s.vouchers[created.Token] = &created

	result := created
	return &result, nil
}

func (s *MemStore) FindByToken(ctx context.Context, q repository.Querier, token string) (*domain.Voucher, error) {
	defer s.lock(q)()

	v, ok := s.vouchers[token]
	if !ok {
		return nil, domain.ErrVoucherNotFound
	}

	result := *v
	if offer, exists := s.offers[v.OfferID]; exists {
		result.OfferTitle = offer.Title
	}
	return &result, nil
}

func (s *MemStore) MarkUsed(ctx context.Context, q repository.Querier, token string) (bool, error) {
	defer s.lock(q)()

	v, ok := s.vouchers[token]
	if !ok || v.Status != domain.VoucherActive {
		return false, nil
	}

	v.Status = domain.VoucherUsed
	v.UsedAt.Valid = true
	v.UsedAt.Time = time.Now()
	return true, nil
}

func (s *MemStore) ListByAccount(ctx context.Context, q repository.Querier, id domain.Identity) ([]domain.Voucher, error) {
	defer s.lock(q)()

	vouchers := make([]domain.Voucher, 0)
	for _, v := range s.vouchers {
		if v.Identity.Key() != id.Key() {
			continue
		}

		item := *v
		if offer, exists := s.offers[v.OfferID]; exists {
			item.OfferTitle = offer.Title
		}
		vouchers = append(vouchers, item)
	}

	sort.Slice(vouchers, func(i, j int) bool { return vouchers[i].ID > vouchers[j].ID })
	return vouchers, nil
}
