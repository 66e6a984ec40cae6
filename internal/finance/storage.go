package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const transactionColumns = `id, user_id, exchange, account_id, category_id, currency1, value1, currency2, value2,
	description, reference, is_automatic, transaction_date, created_at`

// Storage reads and writes the ledger tables
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a Storage
func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// ListTransactions returns up to PageSize+1 rows so callers can tell whether
// another page exists
func (s *Storage) ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	var (
		conditions = []string{"user_id = ?"}
		args       = []any{filter.UserID}
	)

	if filter.Exchange != "" {
		conditions = append(conditions, "exchange = ?")
		args = append(args, filter.Exchange)
	}
	if filter.Currency != "" {
		conditions = append(conditions, "(currency1 = ? OR currency2 = ?)")
		args = append(args, filter.Currency, filter.Currency)
	}
	if filter.AccountID != nil {
		conditions = append(conditions, "account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, "category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if !filter.ShowAutomatic {
		conditions = append(conditions, "is_automatic = FALSE")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	args = append(args, pageSize+1, filter.Skip)

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s
		ORDER BY transaction_date DESC, id DESC LIMIT ? OFFSET ?`,
		transactionColumns, strings.Join(conditions, " AND "))

	var transactions []Transaction
	if err := s.db.SelectContext(ctx, &transactions, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactions, nil
}

// GetTransaction loads one of the user's transactions
func (s *Storage) GetTransaction(ctx context.Context, userID, id int64) (*Transaction, error) {
	var tx Transaction
	query := s.db.Rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ? AND id = ?`)
	if err := s.db.GetContext(ctx, &tx, query, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// InsertTransaction stores a transaction and returns it as saved
func (s *Storage) InsertTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	query := s.db.Rebind(`INSERT INTO transactions
		(user_id, exchange, account_id, category_id, currency1, value1, currency2, value2,
		 description, reference, is_automatic, transaction_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		tx.UserID, tx.Exchange, tx.AccountID, tx.CategoryID, tx.Currency1, tx.Value1, tx.Currency2, tx.Value2,
		tx.Description, tx.Reference, tx.IsAutomatic, tx.TransactionDate, tx.CreatedAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return s.GetTransaction(ctx, tx.UserID, id)
}

// DeleteTransaction removes one of the user's transactions
func (s *Storage) DeleteTransaction(ctx context.Context, userID, id int64) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM transactions WHERE user_id = ? AND id = ?`), userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// Exchanges lists the distinct exchanges of the user's transactions
func (s *Storage) Exchanges(ctx context.Context, userID int64) ([]string, error) {
	var exchanges []string
	query := s.db.Rebind(`SELECT DISTINCT exchange FROM transactions WHERE user_id = ? ORDER BY exchange ASC`)
	if err := s.db.SelectContext(ctx, &exchanges, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	return exchanges, nil
}

// Currencies lists every currency seen on either side of the user's transactions
func (s *Storage) Currencies(ctx context.Context, userID int64) ([]string, error) {
	var currencies []string
	query := s.db.Rebind(`SELECT currency1 AS currency FROM transactions WHERE user_id = ?
		UNION
		SELECT currency2 AS currency FROM transactions WHERE user_id = ? AND currency2 IS NOT NULL
		ORDER BY currency ASC`)
	if err := s.db.SelectContext(ctx, &currencies, query, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", err)
	}
	return currencies, nil
}

// ExchangeAccounts lists the distinct (exchange, account) pairs of the user's transactions
func (s *Storage) ExchangeAccounts(ctx context.Context, userID int64) ([]ExchangeAccount, error) {
	var pairs []ExchangeAccount
	query := s.db.Rebind(`SELECT DISTINCT exchange, account_id FROM transactions WHERE user_id = ?
		ORDER BY exchange ASC, account_id ASC`)
	if err := s.db.SelectContext(ctx, &pairs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list exchange accounts: %w", err)
	}
	return pairs, nil
}

// FinanceAccounts lists the user's finance accounts by title
func (s *Storage) FinanceAccounts(ctx context.Context, userID int64) ([]Titled, error) {
	return s.titled(ctx, "finance_accounts", userID)
}

// Categories lists the user's finance categories by title
func (s *Storage) Categories(ctx context.Context, userID int64) ([]Titled, error) {
	return s.titled(ctx, "finance_categories", userID)
}

func (s *Storage) titled(ctx context.Context, table string, userID int64) ([]Titled, error) {
	var rows []Titled
	query := s.db.Rebind(`SELECT id, user_id, title FROM ` + table + ` WHERE user_id = ? ORDER BY title ASC, id ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return rows, nil
}
