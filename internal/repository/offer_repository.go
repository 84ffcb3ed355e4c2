package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/botirjon13/oyin-backent/internal/domain"
)

// OfferRepository defines persistence operations for the reward catalog.
type OfferRepository interface {
	ListActive(ctx context.Context, q Querier) ([]domain.Offer, error)
	LockForExchange(ctx context.Context, q Querier, offerID int64) (*domain.Offer, error)
	DecrementStock(ctx context.Context, q Querier, offerID int64) error
}

type offerRepository struct {
	log *slog.Logger
}

// NewOfferRepository creates a SQL-backed offer repository.
func NewOfferRepository(log *slog.Logger) OfferRepository {
	return &offerRepository{log: log}
}

// ListActive returns every offer players may currently redeem.
func (r *offerRepository) ListActive(ctx context.Context, q Querier) ([]domain.Offer, error) {
	const query = `
		SELECT id, title, cost, active, stock, created_at
		FROM offers
		WHERE active AND stock > 0
		ORDER BY cost ASC, id ASC
	`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		r.logError("list_active", 0, err)
		return nil, fmt.Errorf("select offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		var o domain.Offer
		if err := rows.Scan(&o.ID, &o.Title, &o.Cost, &o.Active, &o.Stock, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer rows: %w", err)
	}

	return offers, nil
}

// LockForExchange reads an active offer under a row-level lock so concurrent
// exchanges against the same offer serialize on its stock. Inactive and
// missing offers are indistinguishable to the caller.
func (r *offerRepository) LockForExchange(ctx context.Context, q Querier, offerID int64) (*domain.Offer, error) {
	const query = `
		SELECT id, title, cost, active, stock, created_at
		FROM offers
		WHERE id = $1 AND active
		FOR UPDATE
	`

	var o domain.Offer
	err := q.QueryRowContext(ctx, query, offerID).Scan(&o.ID, &o.Title, &o.Cost, &o.Active, &o.Stock, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOfferNotFound
		}
		r.logError("lock_for_exchange", offerID, err)
		return nil, fmt.Errorf("lock offer: %w", err)
	}

	return &o, nil
}

// DecrementStock consumes one unit of stock. The caller must hold the row
// lock and have verified stock > 0; the CHECK constraint is the final guard.
func (r *offerRepository) DecrementStock(ctx context.Context, q Querier, offerID int64) error {
	const query = `
		UPDATE offers
		SET stock = stock - 1
		WHERE id = $1
	`

	res, err := q.ExecContext(ctx, query, offerID)
	if err != nil {
		r.logError("decrement_stock", offerID, err)
		return fmt.Errorf("decrement offer stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement offer stock result: %w", err)
	}
	if affected == 0 {
		return domain.ErrOfferNotFound
	}

	return nil
}

func (r *offerRepository) logError(operation string, offerID int64, err error) {
	if r == nil || r.log == nil || err == nil {
		return
	}

	r.log.Error("offer repository operation failed",
		slog.String("operation", operation),
		slog.Int64("offer_id", offerID),
		slog.Any("error", err),
	)
}
