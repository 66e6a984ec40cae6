package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/openclerk/internal/api/dto"
	"github.com/cuongbtq/openclerk/internal/graphs"
	"github.com/gin-gonic/gin"
)

// CreateGraph handles POST /api/v1/graphs
func (h *GraphHandler) CreateGraph(c *gin.Context) {
	userID := currentUser(c)
	h.logger.Info("CreateGraph called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int64("user_id", userID),
	)

	var req dto.CreateGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	graph, err := h.graphs.AddGraph(c.Request.Context(), userID, graphs.NewGraph{
		PageID:    req.PageID,
		GraphType: req.GraphType,
		Width:     string(req.Width),
		Height:    string(req.Height),
	})
	if err != nil {
		respondError(c, h.logger, "add graph", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewGraphDTO(graph))
}

// ListGraphs handles GET /api/v1/graph_pages/:page_id/graphs
func (h *GraphHandler) ListGraphs(c *gin.Context) {
	userID := currentUser(c)
	pageID, err := strconv.ParseInt(c.Param("page_id"), 10, 64)
	if err != nil || pageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "page_id must be a positive integer",
		})
		return
	}

	list, err := h.graphs.ListGraphs(c.Request.Context(), userID, pageID)
	if err != nil {
		respondError(c, h.logger, "list graphs", err)
		return
	}

	resp := make([]dto.GraphDTO, 0, len(list))
	for i := range list {
		resp = append(resp, dto.NewGraphDTO(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"graphs": resp})
}

// GraphTypes handles GET /api/v1/graphs/types
func (h *GraphHandler) GraphTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": h.graphs.Types()})
}
