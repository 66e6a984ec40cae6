package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/accounts"
	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/shopspring/decimal"
)

const (
	automaticDescription = "(generated automatically)"
	untitled             = "(untitled)"
	unknownTitle         = "(unknown)"
	dateLayout           = "2006-01-02"
)

// DefaultCurrencies are the currencies accepted on manual transactions
var DefaultCurrencies = []string{
	"btc", "ltc", "nmc", "ppc", "ftc", "xpm", "nvc", "trc", "dog", "mec", "xrp", "dgc", "wdc", "ixc",
	"vtc", "net", "hbn", "bc1", "drk", "vrc", "nxt", "rdd", "via", "nsr",
	"usd", "gbp", "eur", "cad", "aud", "nzd", "cny", "pln", "ils", "krw", "sgd", "ghs",
}

// AccountReader loads rows of failure-tracked account tables
type AccountReader interface {
	Get(ctx context.Context, table string, id int64) (*accounts.Account, error)
}

// Config holds service settings
type Config struct {
	Currencies        []string
	AddressCurrencies []string
	Now               func() time.Time
}

// Service implements the transactions pages
type Service struct {
	storage           *Storage
	catalog           *accounts.Catalog
	accounts          AccountReader
	currencies        []string
	addressCurrencies []string
	now               func() time.Time
	logger            *slog.Logger
}

// NewService creates a Service
func NewService(storage *Storage, catalog *accounts.Catalog, reader AccountReader, cfg Config, logger *slog.Logger) *Service {
	currencies := cfg.Currencies
	if len(currencies) == 0 {
		currencies = DefaultCurrencies
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		storage:           storage,
		catalog:           catalog,
		accounts:          reader,
		currencies:        currencies,
		addressCurrencies: cfg.AddressCurrencies,
		now:               now,
		logger:            logger,
	}
}

// Currencies lists the currencies accepted on manual transactions
func (s *Service) Currencies() []string {
	return slices.Clone(s.currencies)
}

// ListTransactions returns one page of the user's ledger, newest first
func (s *Service) ListTransactions(ctx context.Context, filter Filter) (*Page, error) {
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	if filter.PageSize <= 0 {
		filter.PageSize = DefaultPageSize
	}

	rows, err := s.storage.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}

	hasNext := len(rows) > filter.PageSize
	if hasNext {
		rows = rows[:filter.PageSize]
	}

	lookup, err := s.newTitleLookup(ctx, filter.UserID)
	if err != nil {
		return nil, err
	}

	views := make([]TransactionView, 0, len(rows))
	for _, row := range rows {
		view := TransactionView{
			Transaction:   row,
			ExchangeName:  s.exchangeName(row.Exchange),
			AccountTitle:  lookup.account(ctx, row.Exchange, row.AccountID),
			CategoryTitle: lookup.category(row.CategoryID),
		}
		if row.IsAutomatic {
			view.Description = automaticDescription
			view.Reference = strconv.FormatInt(row.ID, 10)
		}
		views = append(views, view)
	}

	return &Page{
		Transactions: views,
		Skip:         filter.Skip,
		PageSize:     filter.PageSize,
		HasPrevious:  filter.Skip > 0,
		HasNext:      hasNext,
	}, nil
}

// FilterOptions collects the values the user's ledger can be filtered by
func (s *Service) FilterOptions(ctx context.Context, userID int64) (*FilterOptions, error) {
	exchanges, err := s.storage.Exchanges(ctx, userID)
	if err != nil {
		return nil, err
	}
	currencies, err := s.storage.Currencies(ctx, userID)
	if err != nil {
		return nil, err
	}
	pairs, err := s.storage.ExchangeAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	lookup, err := s.newTitleLookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	options := &FilterOptions{
		Currencies:      currencies,
		FinanceAccounts: lookup.financeAccounts,
		Categories:      lookup.categories,
	}
	for _, exchange := range exchanges {
		options.Exchanges = append(options.Exchanges, ExchangeOption{Key: exchange, Name: s.exchangeName(exchange)})
	}
	for _, pair := range pairs {
		options.Accounts = append(options.Accounts, AccountOption{
			Exchange:  pair.Exchange,
			AccountID: pair.AccountID,
			Title:     lookup.account(ctx, pair.Exchange, pair.AccountID),
		})
	}
	return options, nil
}

// AddManual validates and stores a user-entered transaction
func (s *Service) AddManual(ctx context.Context, userID int64, input ManualTransaction) (*Transaction, error) {
	now := s.now().UTC()

	date := now.Truncate(24 * time.Hour)
	if input.Date != "" {
		parsed, err := time.Parse(dateLayout, input.Date)
		if err != nil {
			return nil, &ValidationError{Field: "date", Message: fmt.Sprintf("Invalid date '%s'", input.Date)}
		}
		date = parsed
	}

	if input.AccountID != 0 {
		if err := s.requireOwned(ctx, s.storage.FinanceAccounts, userID, input.AccountID, "account_id", "Could not find finance account %d"); err != nil {
			return nil, err
		}
	}
	if input.CategoryID != 0 {
		if err := s.requireOwned(ctx, s.storage.Categories, userID, input.CategoryID, "category_id", "Could not find finance category %d"); err != nil {
			return nil, err
		}
	}

	value1, currency1, err := s.parseAmount(input.Value1, input.Currency1, "value1", "currency1")
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		UserID:          userID,
		Exchange:        ManualExchange,
		AccountID:       input.AccountID,
		CategoryID:      input.CategoryID,
		Currency1:       currency1,
		Value1:          value1,
		Description:     strings.TrimSpace(input.Description),
		Reference:       strings.TrimSpace(input.Reference),
		TransactionDate: date,
		CreatedAt:       now,
	}

	if input.Value2 != "" || input.Currency2 != "" {
		value2, currency2, err := s.parseAmount(input.Value2, input.Currency2, "value2", "currency2")
		if err != nil {
			return nil, err
		}
		tx.Value2 = decimal.NewNullDecimal(value2)
		tx.Currency2 = sql.NullString{String: currency2, Valid: true}
	}

	saved, err := s.storage.InsertTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Manual transaction added",
		slog.Int64("transaction_id", saved.ID),
		slog.Int64("user_id", userID),
		slog.String("currency", saved.Currency1),
	)
	return saved, nil
}

// DeleteTransaction removes one of the user's transactions
func (s *Service) DeleteTransaction(ctx context.Context, userID, id int64) error {
	if err := s.storage.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("Transaction deleted",
		slog.Int64("transaction_id", id),
		slog.Int64("user_id", userID),
	)
	return nil
}

func (s *Service) parseAmount(value, currency, valueField, currencyField string) (decimal.Decimal, string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Decimal{}, "", &ValidationError{Field: valueField, Message: "Value is required"}
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, "", &ValidationError{Field: valueField, Message: fmt.Sprintf("Invalid value '%s'", value)}
	}

	currency = strings.ToLower(strings.TrimSpace(currency))
	if !slices.Contains(s.currencies, currency) {
		return decimal.Decimal{}, "", &ValidationError{Field: currencyField, Message: fmt.Sprintf("Invalid currency '%s'", currency)}
	}
	return amount, currency, nil
}

func (s *Service) requireOwned(ctx context.Context, list func(context.Context, int64) ([]Titled, error), userID, id int64, field, format string) error {
	rows, err := list(ctx, userID)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(rows, func(row Titled) bool { return row.ID == id }) {
		return &ValidationError{Field: field, Message: fmt.Sprintf(format, id)}
	}
	return nil
}

func (s *Service) exchangeName(exchange string) string {
	switch {
	case exchange == ManualExchange:
		return "Finance account"
	case slices.Contains(s.addressCurrencies, exchange):
		return strings.ToUpper(exchange) + " address"
	default:
		return accounts.ExchangeName(exchange)
	}
}

// accountTable maps a transaction's exchange to the table its account lives in
func (s *Service) accountTable(exchange string) (string, bool) {
	if slices.Contains(s.addressCurrencies, exchange) {
		exchange = "address_" + exchange
	}
	kind, ok := s.catalog.Lookup(exchange)
	if !ok {
		return "", false
	}
	return kind.Table, true
}

type titleLookup struct {
	service         *Service
	financeAccounts []Titled
	categories      []Titled
	cache           map[string]string
}

func (s *Service) newTitleLookup(ctx context.Context, userID int64) (*titleLookup, error) {
	financeAccounts, err := s.storage.FinanceAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	categories, err := s.storage.Categories(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &titleLookup{
		service:         s,
		financeAccounts: financeAccounts,
		categories:      categories,
		cache:           make(map[string]string),
	}, nil
}

func (l *titleLookup) account(ctx context.Context, exchange string, id int64) string {
	if exchange == ManualExchange {
		if id == 0 {
			return ""
		}
		return findTitle(l.financeAccounts, id, unknownTitle)
	}

	table, ok := l.service.accountTable(exchange)
	if !ok {
		return ""
	}

	key := fmt.Sprintf("%s/%d", table, id)
	if title, ok := l.cache[key]; ok {
		return title
	}

	title := untitled
	account, err := l.service.accounts.Get(ctx, table, id)
	switch {
	case err == nil:
		if account.Title != "" {
			title = account.Title
		} else if account.Address.Valid && account.Address.String != "" {
			title = account.Address.String
		}
	case errors.Is(err, domain.ErrAccountNotFound):
	default:
		l.service.logger.Warn("Failed to load transaction account",
			slog.String("table", table),
			slog.Int64("account_id", id),
			slog.String("error", err.Error()),
		)
	}
	l.cache[key] = title
	return title
}

func (l *titleLookup) category(id int64) string {
	if id == 0 {
		return ""
	}
	return findTitle(l.categories, id, unknownTitle)
}

func findTitle(rows []Titled, id int64, fallback string) string {
	for _, row := range rows {
		if row.ID == id {
			if row.Title == "" {
				return untitled
			}
			return row.Title
		}
	}
	return fallback
}
