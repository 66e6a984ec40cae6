package router

import (
	"net/http"

	"github.com/cuongbtq/openclerk/internal/api/handler"
	"github.com/cuongbtq/openclerk/internal/observability"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.DBClient != nil {
			if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "openclerk-api",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "openclerk-api",
		})
	})

	r.GET("/metrics", gin.WrapH(observability.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	transactionHandler := handler.NewTransactionHandler(deps)
	graphHandler := handler.NewGraphHandler(deps)

	v1 := r.Group("/api/v1")
	{
		transactions := v1.Group("/transactions", UserMiddleware())
		{
			transactions.GET("", transactionHandler.ListTransactions)
			transactions.GET("/options", transactionHandler.FilterOptions)
			transactions.POST("", transactionHandler.CreateTransaction)
			transactions.DELETE("/:id", transactionHandler.DeleteTransaction)
		}

		graphs := v1.Group("", UserMiddleware())
		{
			graphs.GET("/graphs/types", graphHandler.GraphTypes)
			graphs.POST("/graphs", graphHandler.CreateGraph)
			graphs.GET("/graph_pages/:page_id/graphs", graphHandler.ListGraphs)
		}

		jobs := v1.Group("/jobs", BatchKeyMiddleware(deps.Keys, deps.Logger))
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/run", jobHandler.RunJob)
		}
	}

	return r
}
