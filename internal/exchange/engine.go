// Package exchange implements the transactional conversion of diamond
// balance plus offer stock into an issued voucher.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/botirjon13/oyin-backent/internal/credential"
	"github.com/botirjon13/oyin-backent/internal/domain"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/repository"
	"github.com/botirjon13/oyin-backent/pkg/metrics"
)

// credentialAttempts bounds regeneration after a token/code unique-constraint
// collision before the operation is reported as a transient failure.
const credentialAttempts = 3

// Receipt is the result of a successful exchange: the minted voucher plus the
// account's post-transaction diamond balance.
type Receipt struct {
	Voucher      domain.Voucher
	DiamondsLeft int64
}

// Engine performs the exchange as one atomic transaction. All correctness
// under concurrency comes from the transactional boundary: the account and
// offer rows are locked up front (always in that order, so two exchanges can
// never deadlock on each other), and every failure path rolls the whole
// transaction back. The engine never retries a failed debit internally --
// blind retries of a non-idempotent debit are the caller's to avoid, and the
// transient errors it returns are safe to retry whole precisely because no
// partial effect survives.
type Engine struct {
	tx       repository.TxRunner
	accounts repository.AccountRepository
	offers   repository.OfferRepository
	vouchers repository.VoucherRepository
	codec    credential.Generator
	log      *slog.Logger
}

// NewEngine wires the exchange engine with its stores and credential codec.
func NewEngine(
	tx repository.TxRunner,
	accounts repository.AccountRepository,
	offers repository.OfferRepository,
	vouchers repository.VoucherRepository,
	codec credential.Generator,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		tx:       tx,
		accounts: accounts,
		offers:   offers,
		vouchers: vouchers,
		codec:    codec,
		log:      log,
	}
}

// Exchange debits the account, decrements offer stock and mints a voucher,
// atomically. Business rejections (unknown account or offer, empty stock,
// insufficient balance) come back as typed domain errors with no side
// effects; store faults come back as retryable application errors.
func (e *Engine) Exchange(ctx context.Context, id domain.Identity, offerID int64) (*Receipt, error) {
	start := time.Now()

	receipt, err := e.exchange(ctx, id, offerID)

	metrics.RecordExchange(outcomeLabel(err), time.Since(start))

	if err == nil {
		e.log.Info("exchange completed",
			slog.String("identity", id.Key()),
			slog.Int64("offer_id", offerID),
			slog.String("voucher_code", receipt.Voucher.Code),
			slog.Int64("diamonds_left", receipt.DiamondsLeft),
		)
	}

	return receipt, err
}

func (e *Engine) exchange(ctx context.Context, id domain.Identity, offerID int64) (*Receipt, error) {
	if id.IsZero() {
		return nil, domain.ErrAccountNotFound
	}

	var receipt *Receipt

	err := e.tx.RunTx(ctx, func(q repository.Querier) error {
		balance, err := e.accounts.LockBalance(ctx, q, id)
		if err != nil {
			return err
		}

		offer, err := e.offers.LockForExchange(ctx, q, offerID)
		if err != nil {
			return err
		}

		if offer.Stock <= 0 {
			return domain.ErrOutOfStock
		}

		if balance < offer.Cost {
			return &domain.InsufficientBalanceError{Need: offer.Cost, Have: balance}
		}

		remaining, err := e.accounts.Debit(ctx, q, id, offer.Cost)
		if err != nil {
			return err
		}

		if err := e.offers.DecrementStock(ctx, q, offer.ID); err != nil {
			return err
		}

		voucher, err := e.mintVoucher(ctx, q, id, offer)
		if err != nil {
			return err
		}

		receipt = &Receipt{Voucher: *voucher, DiamondsLeft: remaining}
		return nil
	})
	if err != nil {
		return nil, wrapStoreFault(err)
	}

	return receipt, nil
}

// mintVoucher generates credentials and inserts the voucher row, regenerating
// on the rare unique-constraint collision. The store's constraints, not the
// generator, are authoritative for uniqueness.
func (e *Engine) mintVoucher(ctx context.Context, q repository.Querier, id domain.Identity, offer *domain.Offer) (*domain.Voucher, error) {
	var lastErr error

	for attempt := 0; attempt < credentialAttempts; attempt++ {
		token, err := e.codec.Token()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		code, err := e.codec.VoucherCode(offer.Title)
		if err != nil {
			return nil, fmt.Errorf("generate voucher code: %w", err)
		}

		voucher, err := e.vouchers.Insert(ctx, q, &domain.Voucher{
			Identity:   id,
			OfferID:    offer.ID,
			OfferTitle: offer.Title,
			Token:      token,
			Code:       code,
			Status:     domain.VoucherActive,
		})
		if err == nil {
			voucher.OfferTitle = offer.Title
			return voucher, nil
		}

		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}

		lastErr = err
		e.log.Warn("voucher credential collision, regenerating",
			slog.Int("attempt", attempt+1),
			slog.Int64("offer_id", offer.ID),
		)
	}

	return nil, apperrors.NewCredentialError(lastErr)
}

// wrapStoreFault leaves business outcomes untouched and classifies anything
// else as a retryable store fault.
func wrapStoreFault(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrOfferNotFound) ||
		errors.Is(err, domain.ErrOutOfStock) {
		return err
	}
	if _, ok := domain.IsInsufficientBalance(err); ok {
		return err
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	return apperrors.NewStoreError(err)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrOfferNotFound):
		return "offer_not_found"
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	default:
		if _, ok := domain.IsInsufficientBalance(err); ok {
			return "insufficient_balance"
		}
		return "error"
	}
}
