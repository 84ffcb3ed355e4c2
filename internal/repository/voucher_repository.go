package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/botirjon13/oyin-backent/internal/domain"
)

// VoucherRepository defines persistence operations for issued redemption
// credentials.
type VoucherRepository interface {
	Insert(ctx context.Context, q Querier, v *domain.Voucher) (*domain.Voucher, error)
	FindByToken(ctx context.Context, q Querier, token string) (*domain.Voucher, error)
	MarkUsed(ctx context.Context, q Querier, token string) (bool, error)
	ListByAccount(ctx context.Context, q Querier, id domain.Identity) ([]domain.Voucher, error)
}

type voucherRepository struct {
	log *slog.Logger
}

// NewVoucherRepository creates a SQL-backed voucher repository.
func NewVoucherRepository(log *slog.Logger) VoucherRepository {
	return &voucherRepository{log: log}
}

// Insert persists a freshly minted voucher. A collision on the token or code
// unique constraints surfaces as ErrDuplicate so the engine can regenerate
// credentials.
func (r *voucherRepository) Insert(ctx context.Context, q Querier, v *domain.Voucher) (*domain.Voucher, error) {
	const query = `
		INSERT INTO vouchers (identity, offer_id, token, code, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	saved := *v
	if saved.Status == "" {
		saved.Status = domain.VoucherActive
	}

	err := q.QueryRowContext(ctx, query,
		v.Identity.Key(),
		v.OfferID,
		v.Token,
		v.Code,
		saved.Status,
	).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		r.logError("insert", v.Identity.Key(), err)
		return nil, fmt.Errorf("insert voucher: %w", err)
	}

	return &saved, nil
}

// FindByToken loads a voucher (with its offer title) by the capability token.
// Reading never changes voucher state.
func (r *voucherRepository) FindByToken(ctx context.Context, q Querier, token string) (*domain.Voucher, error) {
	const query = `
		SELECT v.id, v.identity, v.offer_id, o.title, v.token, v.code, v.status, v.created_at, v.used_at
		FROM vouchers v
		JOIN offers o ON o.id = v.offer_id
		WHERE v.token = $1
	`

	v, err := scanVoucher(q.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVoucherNotFound
		}
		r.logError("find_by_token", "", err)
		return nil, fmt.Errorf("select voucher: %w", err)
	}

	return v, nil
}

// MarkUsed fires the active -> used transition as a single conditional
// update. It reports whether this call performed the transition; a false
// return with no error means the voucher was already used and used_at was
// left untouched. Two simultaneous calls therefore produce exactly one row
// update.
func (r *voucherRepository) MarkUsed(ctx context.Context, q Querier, token string) (bool, error) {
	const query = `
		UPDATE vouchers
		SET status = $2, used_at = now()
		WHERE token = $1 AND status = $3
	`

	res, err := q.ExecContext(ctx, query, token, domain.VoucherUsed, domain.VoucherActive)
	if err != nil {
		r.logError("mark_used", "", err)
		return false, fmt.Errorf("mark voucher used: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark voucher used result: %w", err)
	}

	return affected == 1, nil
}

// ListByAccount returns the full exchange history of one account, newest
// first.
func (r *voucherRepository) ListByAccount(ctx context.Context, q Querier, id domain.Identity) ([]domain.Voucher, error) {
	const query = `
		SELECT v.id, v.identity, v.offer_id, o.title, v.token, v.code, v.status, v.created_at, v.used_at
		FROM vouchers v
		JOIN offers o ON o.id = v.offer_id
		WHERE v.identity = $1
		ORDER BY v.created_at DESC, v.id DESC
	`

	rows, err := q.QueryContext(ctx, query, id.Key())
	if err != nil {
		r.logError("list_by_account", id.Key(), err)
		return nil, fmt.Errorf("select vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher row: %w", err)
		}
		vouchers = append(vouchers, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voucher rows: %w", err)
	}

	return vouchers, nil
}

func (r *voucherRepository) logError(operation, identity string, err error) {
	if r == nil || r.log == nil || err == nil {
		return
	}

	attrs := []any{
		slog.String("operation", operation),
		slog.Any("error", err),
	}
	if identity != "" {
		attrs = append(attrs, slog.String("identity", identity))
	}

	r.log.Error("voucher repository operation failed", attrs...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row rowScanner) (*domain.Voucher, error) {
	var (
		v      domain.Voucher
		key    string
		status string
	)

	if err := row.Scan(
		&v.ID,
		&key,
		&v.OfferID,
		&v.OfferTitle,
		&v.Token,
		&v.Code,
		&status,
		&v.CreatedAt,
		&v.UsedAt,
	); err != nil {
		return nil, err
	}

	id, err := domain.ParseIdentity(key)
	if err != nil {
		return nil, err
	}
	v.Identity = id
	v.Status = domain.VoucherStatus(status)

	return &v, nil
}
