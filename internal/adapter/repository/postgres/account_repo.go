package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, code, name, type, normal_balance, currency, is_system_account, is_active, created_at, updated_at`

// Create inserts a new account inside the given transaction.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	_, err := txConn(tx).Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID,
		account.Code,
		account.Name,
		string(account.Type),
		string(account.NormalBalance),
		account.Currency,
		account.IsSystemAccount,
		account.IsActive,
		timeToPgTimestamptz(account.CreatedAt),
		timeToPgTimestamptz(account.UpdatedAt),
	)

	return err
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByCode retrieves an account by its chart code.
func (r *AccountRepository) GetByCode(ctx context.Context, code string) (*domain.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
}

// GetByCodeTx retrieves an account by code inside the given transaction, so a
// create can check-then-insert against concurrent writers.
func (r *AccountRepository) GetByCodeTx(ctx context.Context, tx usecase.Transaction, code string) (*domain.Account, error) {
	return scanAccount(txConn(tx).QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
}

// ListActive lists all active accounts ordered by code.
func (r *AccountRepository) ListActive(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}

		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// SetActive flips the account activation flag.
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, timeToPgTimestamptz(updatedAt))
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account              domain.Account
		accType, normal      string
		createdAt, updatedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&account.ID,
		&account.Code,
		&account.Name,
		&accType,
		&normal,
		&account.Currency,
		&account.IsSystemAccount,
		&account.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}

		return nil, err
	}

	account.Type = domain.AccountType(accType)
	account.NormalBalance = domain.NormalBalance(normal)
	account.CreatedAt = createdAt.Time
	account.UpdatedAt = updatedAt.Time

	return &account, nil
}

// Type conversion helpers.
func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric

	_ = n.Scan(d.String())

	return n
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}

	d, _ := decimal.NewFromString(n.Int.String())
	if n.Exp != 0 {
		d = d.Shift(n.Exp)
	}

	return d
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
