package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/openclerk/internal/finance"
	"github.com/cuongbtq/openclerk/internal/graphs"
	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps domain errors to JSON error responses
func respondError(c *gin.Context, logger *slog.Logger, action string, err error) {
	var (
		financeInvalid *finance.ValidationError
		graphInvalid   *graphs.ValidationError
		pageErr        *graphs.PageError
		jobErr         *domain.JobError
	)

	switch {
	case errors.As(err, &financeInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": financeInvalid.Message, "field": financeInvalid.Field})
	case errors.As(err, &graphInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": graphInvalid.Message, "field": graphInvalid.Field})
	case errors.As(err, &jobErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": jobErr.Message})
	case errors.As(err, &pageErr):
		c.JSON(http.StatusNotFound, gin.H{"error": pageErr.Error()})
	case errors.Is(err, finance.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrJobAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "Job is already executing"})
	default:
		logger.Error("Failed to "+action, slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}
