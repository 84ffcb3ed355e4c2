// Package ledger provides the account-facing operations: registration,
// score saving and diamond accrual.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/botirjon13/oyin-backent/internal/domain"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/repository"
)

const (
	defaultTelegramName = "Telegram User"
	defaultGuestName    = "Guest"
	defaultAvatarID     = 1

	// One diamond per this many points of personal-best improvement.
	diamondsPerScorePoints = 100
)

// ScoreResult reports a saved score: the stored (monotonic) high score and
// any diamonds awarded for the improvement.
type ScoreResult struct {
	HighScore       int64
	DiamondsAwarded int64
	Diamonds        int64
}

// Service implements registration and ledger mutations over the account
// repository.
type Service struct {
	tx       repository.TxRunner
	db       repository.Querier
	accounts repository.AccountRepository
	log      *slog.Logger
}

// NewService builds the ledger service.
func NewService(tx repository.TxRunner, db repository.Querier, accounts repository.AccountRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		tx:       tx,
		db:       db,
		accounts: accounts,
		log:      log,
	}
}

// RegisterTelegram upserts a Telegram-linked account. Re-registration
// refreshes the username and avatar and bumps last-played; it never resets
// score or balance.
func (s *Service) RegisterTelegram(ctx context.Context, telegramID int64, username string, avatarID int) (*domain.Account, error) {
	if telegramID <= 0 {
		return nil, apperrors.NewValidationError("telegram_id must be positive")
	}

	acc := &domain.Account{
		Identity:   domain.TelegramIdentity(telegramID),
		TelegramID: telegramID,
		IsGuest:    false,
		Username:   orDefault(username, defaultTelegramName),
		AvatarID:   orDefaultAvatar(avatarID),
	}

	return s.upsert(ctx, acc)
}

// RegisterGuest upserts a locally identified guest account.
func (s *Service) RegisterGuest(ctx context.Context, guestID, username string, avatarID int) (*domain.Account, error) {
	if strings.TrimSpace(guestID) == "" {
		return nil, apperrors.NewValidationError("guest_id is required")
	}

	acc := &domain.Account{
		Identity: domain.GuestIdentity(guestID),
		IsGuest:  true,
		Username: orDefault(username, defaultGuestName),
		AvatarID: orDefaultAvatar(avatarID),
	}

	return s.upsert(ctx, acc)
}

func (s *Service) upsert(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	saved, err := s.accounts.Upsert(ctx, s.db, acc)
	if err != nil {
		s.logError("register", acc.Identity, err)
		return nil, wrapStoreFault(err)
	}

	s.log.Info("account registered",
		slog.String("identity", saved.Identity.Key()),
		slog.String("kind", string(saved.Identity.Kind())),
	)

	return saved, nil
}

// SaveScore keeps best scores monotonic and awards diamonds for new personal
// bests. The read-compare-award runs inside one transaction with the account
// row locked so concurrent saves cannot double-award the same improvement.
func (s *Service) SaveScore(ctx context.Context, id domain.Identity, score int64) (*ScoreResult, error) {
	if score < 0 {
		score = 0
	}

	var result *ScoreResult

	err := s.tx.RunTx(ctx, func(q repository.Querier) error {
		acc, err := s.accounts.FindByIdentityForUpdate(ctx, q, id)
		if err != nil {
			return err
		}

		var bonus int64
		if score > acc.BestScore {
			bonus = (score - acc.BestScore) / diamondsPerScorePoints
		}

		best, err := s.accounts.SaveScore(ctx, q, id, score, bonus)
		if err != nil {
			return err
		}

		result = &ScoreResult{
			HighScore:       best,
			DiamondsAwarded: bonus,
			Diamonds:        acc.Diamonds + bonus,
		}
		return nil
	})
	if err != nil {
		s.logError("save_score", id, err)
		return nil, wrapStoreFault(err)
	}

	return result, nil
}

// EarnDiamonds credits gameplay earnings and returns the new balance.
func (s *Service) EarnDiamonds(ctx context.Context, id domain.Identity, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperrors.NewValidationError("amount must be positive")
	}

	balance, err := s.accounts.Credit(ctx, s.db, id, amount)
	if err != nil {
		s.logError("earn_diamonds", id, err)
		return 0, wrapStoreFault(err)
	}

	return balance, nil
}

// Account returns the current ledger row for an identity.
func (s *Service) Account(ctx context.Context, id domain.Identity) (*domain.Account, error) {
	acc, err := s.accounts.FindByIdentity(ctx, s.db, id)
	if err != nil {
		return nil, wrapStoreFault(err)
	}

	return acc, nil
}

func (s *Service) logError(operation string, id domain.Identity, err error) {
	if s == nil || s.log == nil || err == nil {
		return
	}
	if errors.Is(err, domain.ErrAccountNotFound) {
		return
	}

	s.log.Error("ledger operation failed",
		slog.String("operation", operation),
		slog.String("identity", id.Key()),
		slog.Any("error", err),
	)
}

func wrapStoreFault(err error) error {
	if err == nil || errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	return apperrors.NewStoreError(err)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func orDefaultAvatar(id int) int {
	if id <= 0 {
		return defaultAvatarID
	}
	return id
}
