// Package redemption governs the single transition an issued voucher may
// undergo: active -> used, at most once.
package redemption

import (
	"context"
	"errors"
	"log/slog"

	"github.com/botirjon13/oyin-backent/internal/domain"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/repository"
	"github.com/botirjon13/oyin-backent/pkg/metrics"
)

// ConsumeResult reports the voucher's identity after a consume action.
// AlreadyUsed distinguishes the call that fired the transition from
// duplicates, which see the voucher's unchanged state.
type ConsumeResult struct {
	VoucherCode string
	OfferTitle  string
	AlreadyUsed bool
}

// Service is the redemption state machine over the voucher store. Consume
// relies on the store's atomic conditional update: two simultaneous consume
// calls on one token produce exactly one row update, and both callers see a
// consistent final state.
type Service struct {
	tx       repository.TxRunner
	db       repository.Querier
	vouchers repository.VoucherRepository
	log      *slog.Logger
}

// NewService builds the redemption service. db serves lock-free reads;
// consume transitions run through the transaction runner.
func NewService(tx repository.TxRunner, db repository.Querier, vouchers repository.VoucherRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		tx:       tx,
		db:       db,
		vouchers: vouchers,
		log:      log,
	}
}

// Consume fires the active -> used transition for the voucher identified by
// token. It is idempotent: consuming an already-used voucher is not an error,
// it returns the voucher with AlreadyUsed set and leaves used_at untouched.
func (s *Service) Consume(ctx context.Context, token string) (*ConsumeResult, error) {
	var result *ConsumeResult

	err := s.tx.RunTx(ctx, func(q repository.Querier) error {
		flipped, err := s.vouchers.MarkUsed(ctx, q, token)
		if err != nil {
			return err
		}

		voucher, err := s.vouchers.FindByToken(ctx, q, token)
		if err != nil {
			return err
		}

		if flipped {
			metrics.RecordVoucherTransition(string(domain.VoucherActive), string(domain.VoucherUsed))
			s.log.Info("voucher consumed",
				slog.String("voucher_code", voucher.Code),
				slog.Int64("offer_id", voucher.OfferID),
			)
		}

		result = &ConsumeResult{
			VoucherCode: voucher.Code,
			OfferTitle:  voucher.OfferTitle,
			AlreadyUsed: !flipped,
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreFault(err)
	}

	return result, nil
}

// Lookup returns a voucher's current state without touching it, for UIs that
// display a voucher without spending it. Any number of lookups leave status
// and used_at unchanged.
func (s *Service) Lookup(ctx context.Context, token string) (*domain.Voucher, error) {
	voucher, err := s.vouchers.FindByToken(ctx, s.db, token)
	if err != nil {
		return nil, wrapStoreFault(err)
	}

	return voucher, nil
}

// History lists every voucher an account ever exchanged, newest first.
func (s *Service) History(ctx context.Context, id domain.Identity) ([]domain.Voucher, error) {
	vouchers, err := s.vouchers.ListByAccount(ctx, s.db, id)
	if err != nil {
		return nil, wrapStoreFault(err)
	}

	return vouchers, nil
}

func wrapStoreFault(err error) error {
	if err == nil || errors.Is(err, domain.ErrVoucherNotFound) {
		return err
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	return apperrors.NewStoreError(err)
}
