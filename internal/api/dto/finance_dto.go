package dto

import (
	"bytes"
	"encoding/json"

	"github.com/cuongbtq/openclerk/internal/finance"
	"github.com/cuongbtq/openclerk/internal/graphs"
	"github.com/shopspring/decimal"
)

type ListTransactionsRequest struct {
	Exchange      string `form:"exchange"`
	Currency      string `form:"currency"`
	AccountID     *int64 `form:"account_id"`
	CategoryID    *int64 `form:"category_id"`
	ShowAutomatic *bool  `form:"show_automatic"`
	Filter        string `form:"filter"`
	Skip          int    `form:"skip" binding:"gte=0"`
}

type TransactionDTO struct {
	ID            int64               `json:"id"`
	Date          string              `json:"date"`
	Exchange      string              `json:"exchange"`
	ExchangeName  string              `json:"exchange_name"`
	AccountID     int64               `json:"account_id"`
	AccountTitle  string              `json:"account_title,omitempty"`
	CategoryID    int64               `json:"category_id"`
	CategoryTitle string              `json:"category_title,omitempty"`
	Description   string              `json:"description"`
	Reference     string              `json:"reference"`
	Currency1     string              `json:"currency1"`
	Value1        decimal.Decimal     `json:"value1"`
	Currency2     *string             `json:"currency2"`
	Value2        decimal.NullDecimal `json:"value2"`
	IsAutomatic   bool                `json:"is_automatic"`
}

type ListTransactionsResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
	Skip         int              `json:"skip"`
	PageSize     int              `json:"page_size"`
	HasPrevious  bool             `json:"has_previous"`
	HasNext      bool             `json:"has_next"`
}

type CreateTransactionRequest struct {
	Date        string `json:"date"`
	AccountID   int64  `json:"account_id" binding:"gte=0"`
	CategoryID  int64  `json:"category_id" binding:"gte=0"`
	Description string `json:"description" binding:"max=255"`
	Reference   string `json:"reference" binding:"max=255"`
	Value1      string `json:"value1" binding:"required"`
	Currency1   string `json:"currency1" binding:"required"`
	Value2      string `json:"value2"`
	Currency2   string `json:"currency2"`
}

func (r *CreateTransactionRequest) Manual() finance.ManualTransaction {
	return finance.ManualTransaction{
		Date:        r.Date,
		AccountID:   r.AccountID,
		CategoryID:  r.CategoryID,
		Description: r.Description,
		Reference:   r.Reference,
		Value1:      r.Value1,
		Currency1:   r.Currency1,
		Value2:      r.Value2,
		Currency2:   r.Currency2,
	}
}

type OptionDTO struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type AccountOptionDTO struct {
	Exchange  string `json:"exchange"`
	AccountID int64  `json:"account_id"`
	Title     string `json:"title"`
}

type TitledDTO struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type FilterOptionsResponse struct {
	Exchanges       []OptionDTO        `json:"exchanges"`
	Currencies      []string           `json:"currencies"`
	Accounts        []AccountOptionDTO `json:"accounts"`
	FinanceAccounts []TitledDTO        `json:"finance_accounts"`
	Categories      []TitledDTO        `json:"categories"`
	Accepted        []string           `json:"accepted_currencies"`
}

func NewTransactionDTO(tx *finance.Transaction) TransactionDTO {
	out := TransactionDTO{
		ID:          tx.ID,
		Date:        tx.TransactionDate.UTC().Format("2006-01-02"),
		Exchange:    tx.Exchange,
		AccountID:   tx.AccountID,
		CategoryID:  tx.CategoryID,
		Description: tx.Description,
		Reference:   tx.Reference,
		Currency1:   tx.Currency1,
		Value1:      tx.Value1,
		Value2:      tx.Value2,
		IsAutomatic: tx.IsAutomatic,
	}
	if tx.Currency2.Valid {
		currency := tx.Currency2.String
		out.Currency2 = &currency
	}
	return out
}

func NewTransactionViewDTO(view *finance.TransactionView) TransactionDTO {
	out := NewTransactionDTO(&view.Transaction)
	out.ExchangeName = view.ExchangeName
	out.AccountTitle = view.AccountTitle
	out.CategoryTitle = view.CategoryTitle
	return out
}

func NewFilterOptionsResponse(options *finance.FilterOptions, accepted []string) FilterOptionsResponse {
	resp := FilterOptionsResponse{
		Exchanges:       make([]OptionDTO, 0, len(options.Exchanges)),
		Currencies:      options.Currencies,
		Accounts:        make([]AccountOptionDTO, 0, len(options.Accounts)),
		FinanceAccounts: titled(options.FinanceAccounts),
		Categories:      titled(options.Categories),
		Accepted:        accepted,
	}
	if resp.Currencies == nil {
		resp.Currencies = []string{}
	}
	for _, e := range options.Exchanges {
		resp.Exchanges = append(resp.Exchanges, OptionDTO{Key: e.Key, Name: e.Name})
	}
	for _, a := range options.Accounts {
		resp.Accounts = append(resp.Accounts, AccountOptionDTO{Exchange: a.Exchange, AccountID: a.AccountID, Title: a.Title})
	}
	return resp
}

func titled(rows []finance.Titled) []TitledDTO {
	out := make([]TitledDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, TitledDTO{ID: row.ID, Title: row.Title})
	}
	return out
}

// Size accepts a JSON number or a numeric string
type Size string

func (s *Size) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Size(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = Size(n.String())
	return nil
}

type CreateGraphRequest struct {
	PageID    int64  `json:"page_id" binding:"required,gt=0"`
	GraphType string `json:"graph_type" binding:"required"`
	Width     Size   `json:"width"`
	Height    Size   `json:"height"`
}

type GraphDTO struct {
	ID        int64  `json:"id"`
	PageID    int64  `json:"page_id"`
	PageOrder int    `json:"page_order"`
	GraphType string `json:"graph_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func NewGraphDTO(g *graphs.Graph) GraphDTO {
	return GraphDTO{
		ID:        g.ID,
		PageID:    g.PageID,
		PageOrder: g.PageOrder,
		GraphType: g.GraphType,
		Width:     g.Width,
		Height:    g.Height,
	}
}
