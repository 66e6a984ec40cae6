package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/openclerk/internal/api/dto"
	"github.com/cuongbtq/openclerk/internal/finance"
	"github.com/gin-gonic/gin"
)

// ListTransactions handles GET /api/v1/transactions
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID := currentUser(c)
	h.logger.Info("ListTransactions called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int64("user_id", userID),
	)

	var req dto.ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	// submitting the filter form without the checkbox hides automatic rows
	showAutomatic := !c.Request.URL.Query().Has("filter")
	if req.ShowAutomatic != nil {
		showAutomatic = *req.ShowAutomatic
	}

	page, err := h.finance.ListTransactions(c.Request.Context(), finance.Filter{
		UserID:        userID,
		Exchange:      req.Exchange,
		Currency:      req.Currency,
		AccountID:     req.AccountID,
		CategoryID:    req.CategoryID,
		ShowAutomatic: showAutomatic,
		Skip:          req.Skip,
	})
	if err != nil {
		respondError(c, h.logger, "list transactions", err)
		return
	}

	resp := dto.ListTransactionsResponse{
		Transactions: make([]dto.TransactionDTO, 0, len(page.Transactions)),
		Skip:         page.Skip,
		PageSize:     page.PageSize,
		HasPrevious:  page.HasPrevious,
		HasNext:      page.HasNext,
	}
	for i := range page.Transactions {
		resp.Transactions = append(resp.Transactions, dto.NewTransactionViewDTO(&page.Transactions[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// FilterOptions handles GET /api/v1/transactions/options
func (h *TransactionHandler) FilterOptions(c *gin.Context) {
	userID := currentUser(c)

	options, err := h.finance.FilterOptions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "load filter options", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewFilterOptionsResponse(options, h.finance.Currencies()))
}

// CreateTransaction handles POST /api/v1/transactions
// Adds a manual transaction
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID := currentUser(c)
	h.logger.Info("CreateTransaction called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int64("user_id", userID),
	)

	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	tx, err := h.finance.AddManual(c.Request.Context(), userID, req.Manual())
	if err != nil {
		respondError(c, h.logger, "create transaction", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewTransactionDTO(tx))
}

// DeleteTransaction handles DELETE /api/v1/transactions/:id
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID := currentUser(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "id must be a positive integer",
		})
		return
	}

	h.logger.Info("DeleteTransaction called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int64("user_id", userID),
		slog.Int64("transaction_id", id),
	)

	if err := h.finance.DeleteTransaction(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.logger, "delete transaction", err)
		return
	}

	c.Status(http.StatusNoContent)
}
