package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

const pgErrUniqueViolation = "23505"

// WalletRepository implements usecase.WalletRepository.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

const walletColumns = `id, user_id, balance, locked_balance, currency, ledger_account_id, created_at, updated_at`

// Create inserts a wallet. The unique index on user_id enforces one wallet
// per user; a violation surfaces as ErrWalletExists.
func (r *WalletRepository) Create(ctx context.Context, tx usecase.Transaction, wallet *domain.Wallet) error {
	_, err := txConn(tx).Exec(ctx, `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wallet.ID,
		wallet.UserID,
		decimalToNumeric(wallet.Balance),
		decimalToNumeric(wallet.LockedBalance),
		wallet.Currency,
		wallet.LedgerAccountID,
		timeToPgTimestamptz(wallet.CreatedAt),
		timeToPgTimestamptz(wallet.UpdatedAt),
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return domain.ErrWalletExists
	}

	return err
}

// GetByUserID retrieves a wallet by user ID.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

// GetByUserIDForUpdate retrieves a wallet with a FOR UPDATE lock so concurrent
// mutations of the same wallet serialize for the transaction's lifetime.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error) {
	return scanWallet(txConn(tx).QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

// UpdateBalances writes both balances of a locked wallet row.
func (r *WalletRepository) UpdateBalances(ctx context.Context, tx usecase.Transaction, id string, balance, locked decimal.Decimal, updatedAt time.Time) error {
	tag, err := txConn(tx).Exec(ctx, `
		UPDATE wallets SET balance = $2, locked_balance = $3, updated_at = $4 WHERE id = $1`,
		id, decimalToNumeric(balance), decimalToNumeric(locked), timeToPgTimestamptz(updatedAt))
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}

	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		wallet               domain.Wallet
		balance, locked      pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&wallet.ID,
		&wallet.UserID,
		&balance,
		&locked,
		&wallet.Currency,
		&wallet.LedgerAccountID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}

		return nil, err
	}

	wallet.Balance = numericToDecimal(balance)
	wallet.LockedBalance = numericToDecimal(locked)
	wallet.CreatedAt = createdAt.Time
	wallet.UpdatedAt = updatedAt.Time

	return &wallet, nil
}
