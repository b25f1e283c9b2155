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

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `id, transaction_number, transaction_date, type, status, description,
	reference_type, reference_id, voided_by, void_reason, voided_at, created_at`

const entryColumns = `id, transaction_id, account_id, entry_type, amount, currency, created_at`

// CreateHeader inserts a transaction header inside the given transaction.
func (r *TransactionRepository) CreateHeader(ctx context.Context, tx usecase.Transaction, txn *domain.Transaction) error {
	_, err := txConn(tx).Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		txn.ID,
		txn.TransactionNumber,
		timeToPgTimestamptz(txn.Date),
		txn.Type,
		string(txn.Status),
		txn.Description,
		txn.ReferenceType,
		txn.ReferenceID,
		txn.VoidedBy,
		txn.VoidReason,
		timePtrToPgTimestamptz(txn.VoidedAt),
		timeToPgTimestamptz(txn.CreatedAt),
	)

	return err
}

// CreateEntry inserts an entry line inside the given transaction.
func (r *TransactionRepository) CreateEntry(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	_, err := txConn(tx).Exec(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID,
		entry.TransactionID,
		entry.AccountID,
		string(entry.EntryType),
		decimalToNumeric(entry.Amount),
		entry.Currency,
		timeToPgTimestamptz(entry.CreatedAt),
	)

	return err
}

// GetByID retrieves a transaction header by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// GetEntries retrieves all entries of a transaction.
func (r *TransactionRepository) GetEntries(ctx context.Context, transactionID string) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM entries WHERE transaction_id = $1 ORDER BY created_at, id`,
		transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// MarkVoided flips the transaction status to voided. The entries stay in
// place; balance queries exclude them by joining on the header status.
func (r *TransactionRepository) MarkVoided(ctx context.Context, tx usecase.Transaction, id, voidedBy, reason string, at time.Time) error {
	tag, err := txConn(tx).Exec(ctx, `
		UPDATE transactions
		SET status = 'voided', voided_by = $2, void_reason = $3, voided_at = $4
		WHERE id = $1 AND status = 'posted'`,
		id, voidedBy, reason, timeToPgTimestamptz(at))
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}

	return nil
}

// EntrySums returns total debits and credits posted to an account up to asOf,
// excluding voided transactions.
func (r *TransactionRepository) EntrySums(ctx context.Context, accountID string, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debits, credits pgtype.Numeric

	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(e.amount) FILTER (WHERE e.entry_type = 'debit'), 0),
			COALESCE(SUM(e.amount) FILTER (WHERE e.entry_type = 'credit'), 0)
		FROM entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = $1
		  AND t.status <> 'voided'
		  AND ($2::timestamptz IS NULL OR e.created_at <= $2)`,
		accountID, timePtrToPgTimestamptz(asOf)).Scan(&debits, &credits)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return numericToDecimal(debits), numericToDecimal(credits), nil
}

// ListEntriesByAccount returns one page of an account's entries, newest first,
// with the total count.
func (r *TransactionRepository) ListEntriesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM entries WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := collectEntries(rows)

	return entries, total, err
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn             domain.Transaction
		status          string
		date, createdAt pgtype.Timestamptz
		voidedAt        pgtype.Timestamptz
	)

	err := row.Scan(
		&txn.ID,
		&txn.TransactionNumber,
		&date,
		&txn.Type,
		&status,
		&txn.Description,
		&txn.ReferenceType,
		&txn.ReferenceID,
		&txn.VoidedBy,
		&txn.VoidReason,
		&voidedAt,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}

		return nil, err
	}

	txn.Status = domain.TransactionStatus(status)
	txn.Date = date.Time
	txn.CreatedAt = createdAt.Time

	if voidedAt.Valid {
		txn.VoidedAt = &voidedAt.Time
	}

	return &txn, nil
}

func collectEntries(rows pgx.Rows) ([]*domain.Entry, error) {
	var entries []*domain.Entry

	for rows.Next() {
		var (
			entry     domain.Entry
			entryType string
			amount    pgtype.Numeric
			createdAt pgtype.Timestamptz
		)

		if err := rows.Scan(
			&entry.ID,
			&entry.TransactionID,
			&entry.AccountID,
			&entryType,
			&amount,
			&entry.Currency,
			&createdAt,
		); err != nil {
			return nil, err
		}

		entry.EntryType = domain.EntryType(entryType)
		entry.Amount = numericToDecimal(amount)
		entry.CreatedAt = createdAt.Time

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func timePtrToPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}

	return pgtype.Timestamptz{Time: *t, Valid: true}
}
