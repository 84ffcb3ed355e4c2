// Package catalog exposes read access to the reward offer catalog.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/botirjon13/oyin-backent/internal/domain"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/repository"
)

// Service lists what players can currently redeem. Catalog mutation happens
// only through migrations (seeding) and successful exchanges (stock).
type Service struct {
	db     repository.Querier
	offers repository.OfferRepository
	log    *slog.Logger
}

// NewService builds the catalog read service.
func NewService(db repository.Querier, offers repository.OfferRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{db: db, offers: offers, log: log}
}

// ActiveOffers returns redeemable offers ordered by cost. The query is
// read-only and idempotent, so transient store faults are retried with
// backoff before surfacing.
func (s *Service) ActiveOffers(ctx context.Context) ([]domain.Offer, error) {
	var offers []domain.Offer

	err := apperrors.WithRetry(ctx, func() error {
		listed, err := s.offers.ListActive(ctx, s.db)
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return err
			}
			return apperrors.NewStoreError(err)
		}

		offers = listed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return offers, nil
}
