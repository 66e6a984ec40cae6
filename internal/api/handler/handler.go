package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/openclerk/internal/finance"
	"github.com/cuongbtq/openclerk/internal/graphs"
	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/jobs/registry"
	"github.com/cuongbtq/openclerk/internal/jobs/storage"
	"github.com/cuongbtq/openclerk/shared/database"
	"github.com/cuongbtq/openclerk/shared/rabbitmq"
	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user id
const UserIDKey = "user_id"

// JobStore is the part of the job table the admin API uses
type JobStore interface {
	Enqueue(ctx context.Context, job *domain.NewJob, now time.Time) (*domain.Job, error)
	GetJobByID(ctx context.Context, jobID int64) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

// JobTypeResolver rejects job types no handler exists for
type JobTypeResolver interface {
	Resolve(jobType string) (registry.Handler, error)
}

// RunPublisher queues run requests for the worker
type RunPublisher interface {
	PublishJSON(ctx context.Context, route rabbitmq.Route, v any) error
}

// KeyVerifier checks the automation key guarding the job admin routes
type KeyVerifier interface {
	Verify(key string) error
}

// Dependencies holds all dependencies needed by handlers. Publisher and
// JobTypes may be nil; a nil Keys locks the job admin routes.
type Dependencies struct {
	Logger    *slog.Logger
	DBClient  *database.Client
	Jobs      JobStore
	JobTypes  JobTypeResolver
	Publisher RunPublisher
	RunRoute  rabbitmq.Route
	Finance   *finance.Service
	Graphs    *graphs.Service
	Keys      KeyVerifier
	Now       func() time.Time
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	jobs      JobStore
	jobTypes  JobTypeResolver
	publisher RunPublisher
	runRoute  rabbitmq.Route
	now       func() time.Time
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &JobHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		jobTypes:  deps.JobTypes,
		publisher: deps.Publisher,
		runRoute:  deps.RunRoute,
		now:       now,
	}
}

// TransactionHandler handles the transactions pages
type TransactionHandler struct {
	logger  *slog.Logger
	finance *finance.Service
}

// NewTransactionHandler creates a new TransactionHandler instance
func NewTransactionHandler(deps *Dependencies) *TransactionHandler {
	return &TransactionHandler{logger: deps.Logger, finance: deps.Finance}
}

// GraphHandler handles graph widgets
type GraphHandler struct {
	logger *slog.Logger
	graphs *graphs.Service
}

// NewGraphHandler creates a new GraphHandler instance
func NewGraphHandler(deps *Dependencies) *GraphHandler {
	return &GraphHandler{logger: deps.Logger, graphs: deps.Graphs}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(UserIDKey)
}
