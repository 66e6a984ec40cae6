// Package finance implements the transactions ledger: listing with filters,
// filter options, manual entries and deletion.
package finance

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ManualExchange is the exchange recorded for user-entered transactions
const ManualExchange = "account"

// DefaultPageSize is the number of transactions per page
const DefaultPageSize = 50

// ErrTransactionNotFound is returned when the transaction is missing or not the user's
var ErrTransactionNotFound = errors.New("transaction not found")

// ValidationError rejects one field of a manual transaction
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Transaction is a row of the ledger
type Transaction struct {
	ID              int64               `db:"id"`
	UserID          int64               `db:"user_id"`
	Exchange        string              `db:"exchange"`
	AccountID       int64               `db:"account_id"`
	CategoryID      int64               `db:"category_id"`
	Currency1       string              `db:"currency1"`
	Value1          decimal.Decimal     `db:"value1"`
	Currency2       sql.NullString      `db:"currency2"`
	Value2          decimal.NullDecimal `db:"value2"`
	Description     string              `db:"description"`
	Reference       string              `db:"reference"`
	IsAutomatic     bool                `db:"is_automatic"`
	TransactionDate time.Time           `db:"transaction_date"`
	CreatedAt       time.Time           `db:"created_at"`
}

// Titled is a finance account or category
type Titled struct {
	ID     int64  `db:"id"`
	UserID int64  `db:"user_id"`
	Title  string `db:"title"`
}

// Filter narrows a transaction listing. Nil pointers mean no filter.
type Filter struct {
	UserID        int64
	Exchange      string
	Currency      string
	AccountID     *int64
	CategoryID    *int64
	ShowAutomatic bool
	Skip          int
	PageSize      int
}

// ExchangeAccount is a distinct (exchange, account) pair seen in the ledger
type ExchangeAccount struct {
	Exchange  string `db:"exchange"`
	AccountID int64  `db:"account_id"`
}

// TransactionView is a transaction with its display names resolved
type TransactionView struct {
	Transaction
	ExchangeName  string
	AccountTitle  string
	CategoryTitle string
}

// Page is one page of a listing
type Page struct {
	Transactions []TransactionView
	Skip         int
	PageSize     int
	HasPrevious  bool
	HasNext      bool
}

// ExchangeOption is an exchange the user has transactions on
type ExchangeOption struct {
	Key  string
	Name string
}

// AccountOption is an account the user has transactions on
type AccountOption struct {
	Exchange  string
	AccountID int64
	Title     string
}

// FilterOptions are the values a listing can be filtered by
type FilterOptions struct {
	Exchanges       []ExchangeOption
	Currencies      []string
	Accounts        []AccountOption
	FinanceAccounts []Titled
	Categories      []Titled
}

// ManualTransaction is the raw input of a user-entered transaction
type ManualTransaction struct {
	Date        string
	AccountID   int64
	CategoryID  int64
	Description string
	Reference   string
	Value1      string
	Currency1   string
	Value2      string
	Currency2   string
}
