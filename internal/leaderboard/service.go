// Package leaderboard serves the public top-N score listing, with Redis
// caching and optional Telegram profile photo enrichment.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/botirjon13/oyin-backent/internal/domain"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/repository"
	"github.com/botirjon13/oyin-backent/pkg/metrics"
)

const (
	DefaultLimit    = 10
	defaultCacheTTL = 30 * time.Second
)

// Service reads the leaderboard. Entries come from the accounts table,
// pass through avatar enrichment and are cached whole.
type Service struct {
	db       repository.Querier
	accounts repository.AccountRepository
	cache    *Cache
	avatars  AvatarResolver
	limit    int
	cacheTTL time.Duration
	log      *slog.Logger
}

// NewService builds the leaderboard service. cache and avatars may be nil,
// disabling the respective enrichment.
func NewService(
	db repository.Querier,
	accounts repository.AccountRepository,
	cache *Cache,
	avatars AvatarResolver,
	limit int,
	cacheTTL time.Duration,
	log *slog.Logger,
) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		db:       db,
		accounts: accounts,
		cache:    cache,
		avatars:  avatars,
		limit:    limit,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// Top returns the best players, served from cache when fresh.
func (s *Service) Top(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if cached, err := s.cache.Get(ctx); err == nil && cached != nil {
		metrics.RecordLeaderboardCache("hit")
		return cached, nil
	} else if err != nil {
		// Cache trouble must not break the read path.
		s.log.Warn("leaderboard cache read failed", slog.Any("error", err))
	}
	metrics.RecordLeaderboardCache("miss")

	entries, err := s.accounts.Top(ctx, s.db, s.limit)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.NewStoreError(err)
	}

	for i := range entries {
		entries[i].AvatarURL = s.avatarURL(entries[i])
	}

	if err := s.cache.Set(ctx, entries, s.cacheTTL); err != nil {
		s.log.Warn("leaderboard cache write failed", slog.Any("error", err))
	}

	return entries, nil
}

// avatarURL prefers a Telegram profile photo for linked accounts and falls
// back to the bundled avatar asset.
func (s *Service) avatarURL(e domain.LeaderboardEntry) string {
	if s.avatars != nil && !e.IsGuest && e.TelegramID > 0 {
		url, err := s.avatars.ResolveAvatar(e.TelegramID)
		if err != nil {
			if !errors.Is(err, apperrors.ErrCircuitOpen) {
				s.log.Warn("avatar resolution failed",
					slog.Int64("telegram_id", e.TelegramID),
					slog.Any("error", err),
				)
			}
		} else if url != "" {
			return url
		}
	}

	avatarID := e.AvatarID
	if avatarID <= 0 {
		avatarID = 1
	}

	return fmt.Sprintf("assets/avatars/%d.png", avatarID)
}
