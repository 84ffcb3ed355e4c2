package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/botirjon13/oyin-backent/internal/domain"
)

// AccountRepository defines persistence operations for player accounts.
type AccountRepository interface {
	Upsert(ctx context.Context, q Querier, acc *domain.Account) (*domain.Account, error)
	FindByIdentity(ctx context.Context, q Querier, id domain.Identity) (*domain.Account, error)
	FindByIdentityForUpdate(ctx context.Context, q Querier, id domain.Identity) (*domain.Account, error)
	LockBalance(ctx context.Context, q Querier, id domain.Identity) (int64, error)
	Debit(ctx context.Context, q Querier, id domain.Identity, amount int64) (int64, error)
	Credit(ctx context.Context, q Querier, id domain.Identity, amount int64) (int64, error)
	SaveScore(ctx context.Context, q Querier, id domain.Identity, score int64, bonusDiamonds int64) (int64, error)
	Top(ctx context.Context, q Querier, limit int) ([]domain.LeaderboardEntry, error)
}

type accountRepository struct {
	log *slog.Logger
}

// NewAccountRepository creates a SQL-backed account repository.
func NewAccountRepository(log *slog.Logger) AccountRepository {
	return &accountRepository{log: log}
}

const accountColumns = `identity, COALESCE(telegram_id, 0), is_guest, username, avatar_id, best_score, diamonds, created_at, last_played_at`

// Upsert atomically inserts or refreshes an account keyed on the unique
// identity column, so concurrent first-time registrations cannot race into
// duplicate rows.
func (r *accountRepository) Upsert(ctx context.Context, q Querier, acc *domain.Account) (*domain.Account, error) {
	const query = `
		INSERT INTO accounts (identity, telegram_id, is_guest, username, avatar_id, last_played_at)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5, now())
		ON CONFLICT (identity) DO UPDATE SET
			username       = EXCLUDED.username,
			avatar_id      = EXCLUDED.avatar_id,
			last_played_at = now()
		RETURNING ` + accountColumns

	row := q.QueryRowContext(ctx, query,
		acc.Identity.Key(),
		acc.TelegramID,
		acc.IsGuest,
		acc.Username,
		acc.AvatarID,
	)

	saved, err := scanAccount(row)
	if err != nil {
		r.logError("upsert", acc.Identity, err)
		return nil, fmt.Errorf("upsert account: %w", err)
	}

	return saved, nil
}

// FindByIdentity retrieves one account by its identity key.
func (r *accountRepository) FindByIdentity(ctx context.Context, q Querier, id domain.Identity) (*domain.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE identity = $1
	`

	acc, err := scanAccount(q.QueryRowContext(ctx, query, id.Key()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		r.logError("find", id, err)
		return nil, fmt.Errorf("select account: %w", err)
	}

	return acc, nil
}

// FindByIdentityForUpdate retrieves one account under a row-level lock.
// Score saves read the current best through this so two concurrent saves of
// the same improvement serialize and only one of them computes a bonus.
func (r *accountRepository) FindByIdentityForUpdate(ctx context.Context, q Querier, id domain.Identity) (*domain.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE identity = $1
		FOR UPDATE
	`

	acc, err := scanAccount(q.QueryRowContext(ctx, query, id.Key()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		r.logError("find_for_update", id, err)
		return nil, fmt.Errorf("lock account: %w", err)
	}

	return acc, nil
}

// LockBalance reads the diamond balance under a row-level lock, serializing
// concurrent exchanges against the same account for the rest of the
// transaction.
func (r *accountRepository) LockBalance(ctx context.Context, q Querier, id domain.Identity) (int64, error) {
	const query = `
		SELECT diamonds
		FROM accounts
		WHERE identity = $1
		FOR UPDATE
	`

	var diamonds int64
	if err := q.QueryRowContext(ctx, query, id.Key()).Scan(&diamonds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}
		r.logError("lock_balance", id, err)
		return 0, fmt.Errorf("lock account balance: %w", err)
	}

	return diamonds, nil
}

// Debit subtracts amount diamonds and returns the remaining balance. The
// caller must hold the row lock and have verified the balance; the CHECK
// constraint on the column is the final guard against overdraft.
func (r *accountRepository) Debit(ctx context.Context, q Querier, id domain.Identity, amount int64) (int64, error) {
	const query = `
		UPDATE accounts
		SET diamonds = diamonds - $2
		WHERE identity = $1
		RETURNING diamonds
	`

	var remaining int64
	if err := q.QueryRowContext(ctx, query, id.Key(), amount).Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}
		r.logError("debit", id, err)
		return 0, fmt.Errorf("debit account: %w", err)
	}

	return remaining, nil
}

// Credit adds amount diamonds and returns the new balance.
func (r *accountRepository) Credit(ctx context.Context, q Querier, id domain.Identity, amount int64) (int64, error) {
	const query = `
		UPDATE accounts
		SET diamonds = diamonds + $2
		WHERE identity = $1
		RETURNING diamonds
	`

	var balance int64
	if err := q.QueryRowContext(ctx, query, id.Key(), amount).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}
		r.logError("credit", id, err)
		return 0, fmt.Errorf("credit account: %w", err)
	}

	return balance, nil
}

// SaveScore keeps the best score monotonic (GREATEST) and credits any bonus
// diamonds in the same statement. It returns the stored high score.
func (r *accountRepository) SaveScore(ctx context.Context, q Querier, id domain.Identity, score int64, bonusDiamonds int64) (int64, error) {
	const query = `
		UPDATE accounts
		SET best_score     = GREATEST(best_score, $2),
		    diamonds       = diamonds + $3,
		    last_played_at = now()
		WHERE identity = $1
		RETURNING best_score
	`

	var best int64
	if err := q.QueryRowContext(ctx, query, id.Key(), score, bonusDiamonds).Scan(&best); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}
		r.logError("save_score", id, err)
		return 0, fmt.Errorf("save score: %w", err)
	}

	return best, nil
}

// Top returns the leaderboard read model ordered by score, most recent play
// breaking ties.
func (r *accountRepository) Top(ctx context.Context, q Querier, limit int) ([]domain.LeaderboardEntry, error) {
	const query = `
		SELECT username, avatar_id, best_score, is_guest, COALESCE(telegram_id, 0), last_played_at
		FROM accounts
		ORDER BY best_score DESC, last_played_at DESC
		LIMIT $1
	`

	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		r.logError("top", domain.Identity{}, err)
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Nickname, &e.AvatarID, &e.Score, &e.IsGuest, &e.TelegramID, &e.LastPlayedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard rows: %w", err)
	}

	return entries, nil
}

func (r *accountRepository) logError(operation string, id domain.Identity, err error) {
	if r == nil || r.log == nil || err == nil {
		return
	}

	r.log.Error("account repository operation failed",
		slog.String("operation", operation),
		slog.String("identity", id.Key()),
		slog.Any("error", err),
	)
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		acc domain.Account
		key string
	)

	if err := row.Scan(
		&key,
		&acc.TelegramID,
		&acc.IsGuest,
		&acc.Username,
		&acc.AvatarID,
		&acc.BestScore,
		&acc.Diamonds,
		&acc.CreatedAt,
		&acc.LastPlayedAt,
	); err != nil {
		return nil, err
	}

	id, err := domain.ParseIdentity(key)
	if err != nil {
		return nil, err
	}
	acc.Identity = id

	return &acc, nil
}
