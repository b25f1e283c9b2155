package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

// WalletTransactionRepository implements usecase.WalletTransactionRepository.
type WalletTransactionRepository struct {
	pool *pgxpool.Pool
}

// NewWalletTransactionRepository creates a new WalletTransactionRepository.
func NewWalletTransactionRepository(pool *pgxpool.Pool) *WalletTransactionRepository {
	return &WalletTransactionRepository{pool: pool}
}

const walletTxColumns = `id, wallet_id, type, amount, balance_before, balance_after, status,
	description, reference_type, reference_id, ledger_transaction_id, created_at`

// Create appends a wallet audit record. The partial unique index on
// (reference_type, reference_id) backs the dedupe guard; a violation here
// means two writers raced past the in-transaction existence check.
func (r *WalletTransactionRepository) Create(ctx context.Context, tx usecase.Transaction, wt *domain.WalletTransaction) error {
	_, err := txConn(tx).Exec(ctx, `
		INSERT INTO wallet_transactions (`+walletTxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		wt.ID,
		wt.WalletID,
		string(wt.Type),
		decimalToNumeric(wt.Amount),
		decimalToNumeric(wt.BalanceBefore),
		decimalToNumeric(wt.BalanceAfter),
		wt.Status,
		wt.Description,
		nullableString(wt.ReferenceType),
		nullableString(wt.ReferenceID),
		wt.LedgerTransactionID,
		timeToPgTimestamptz(wt.CreatedAt),
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return domain.ErrDuplicateReference
	}

	return err
}

// ExistsByReference reports whether a wallet transaction with the given
// reference already exists. Runs inside the caller's transaction so the check
// sits behind the wallet row lock.
func (r *WalletTransactionRepository) ExistsByReference(ctx context.Context, tx usecase.Transaction, referenceType, referenceID string) (bool, error) {
	var exists bool

	err := txConn(tx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM wallet_transactions
			WHERE reference_type = $1 AND reference_id = $2
		)`, referenceType, referenceID).Scan(&exists)

	return exists, err
}

// ListByWallet returns one page of a wallet's history, newest first, with the
// total count matching the filter.
func (r *WalletTransactionRepository) ListByWallet(ctx context.Context, walletID string, filter domain.HistoryFilter, limit, offset int) ([]*domain.WalletTransaction, int64, error) {
	where := `WHERE wallet_id = $1`
	args := []any{walletID}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where += ` AND type = $` + strconv.Itoa(len(args))
	}

	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where += ` AND created_at >= $` + strconv.Itoa(len(args))
	}

	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + walletTxColumns + ` FROM wallet_transactions ` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) +
		` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*domain.WalletTransaction

	for rows.Next() {
		wt, err := scanWalletTransaction(rows)
		if err != nil {
			return nil, 0, err
		}

		items = append(items, wt)
	}

	return items, total, rows.Err()
}

func scanWalletTransaction(row pgx.Row) (*domain.WalletTransaction, error) {
	var (
		wt             domain.WalletTransaction
		txType         string
		amount         pgtype.Numeric
		before, after  pgtype.Numeric
		refType, refID *string
		createdAt      pgtype.Timestamptz
	)

	err := row.Scan(
		&wt.ID,
		&wt.WalletID,
		&txType,
		&amount,
		&before,
		&after,
		&wt.Status,
		&wt.Description,
		&refType,
		&refID,
		&wt.LedgerTransactionID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	wt.Type = domain.WalletTransactionType(txType)
	wt.Amount = numericToDecimal(amount)
	wt.BalanceBefore = numericToDecimal(before)
	wt.BalanceAfter = numericToDecimal(after)
	wt.CreatedAt = createdAt.Time

	if refType != nil {
		wt.ReferenceType = *refType
	}

	if refID != nil {
		wt.ReferenceID = *refID
	}

	return &wt, nil
}

// nullableString maps the empty string to SQL NULL so the partial unique
// index on references only covers real references.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
