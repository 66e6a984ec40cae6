package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/openclerk/internal/api/dto"
	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/jobs/storage"
	"github.com/cuongbtq/openclerk/internal/observability"
	"github.com/gin-gonic/gin"
)

const (
	defaultJobPageSize = 20
	maxJobPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
// Queues a job for the batch runner
func (h *JobHandler) CreateJob(c *gin.Context) {
	h.logger.Info("CreateJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if h.jobTypes != nil {
		if _, err := h.jobTypes.Resolve(req.JobType); err != nil {
			respondError(c, h.logger, "resolve job type", err)
			return
		}
	}

	priority := req.Priority
	if priority == 0 {
		priority = domain.PriorityNormal
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), &domain.NewJob{
		JobType:   req.JobType,
		UserID:    req.UserID,
		ArgID:     req.ArgID,
		Priority:  priority,
		IsTestJob: req.IsTestJob,
	}, h.now())
	if err != nil {
		respondError(c, h.logger, "create job", err)
		return
	}

	observability.JobsEnqueued.WithLabelValues(job.JobType).Inc()

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	h.logger.Info("GetJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int64("job_id", jobID),
	)

	job, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "get job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	h.logger.Info("ListJobs called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
	)

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	switch req.State {
	case "", domain.StatePending, domain.StateExecuting, domain.StateExecuted, domain.StateFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "state must be one of pending, executing, executed, failed",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultJobPageSize
	}
	if req.PageSize > maxJobPageSize {
		req.PageSize = maxJobPageSize
	}

	beforeID, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		UserID:   req.UserID,
		JobType:  req.JobType,
		State:    req.State,
		PageSize: req.PageSize,
		BeforeID: beforeID,
	})
	if err != nil {
		respondError(c, h.logger, "list jobs", err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, dto.NewJobDTO(&jobs[i]))
	}
	if hasMore {
		resp.NextCursor = EncodeJobCursor(jobs[len(jobs)-1].ID)
	}

	c.JSON(http.StatusOK, resp)
}

// RunJob handles POST /api/v1/jobs/:job_id/run
// Publishes a run request for the worker daemon
func (h *JobHandler) RunJob(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	h.logger.Info("RunJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int64("job_id", jobID),
	)

	var req dto.RunJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Run queue is not configured",
		})
		return
	}

	if _, err := h.jobs.GetJobByID(c.Request.Context(), jobID); err != nil {
		respondError(c, h.logger, "get job", err)
		return
	}

	err := h.publisher.PublishJSON(c.Request.Context(), h.runRoute, domain.RunRequest{
		JobID: jobID,
		Force: req.Force,
	})
	if err != nil {
		h.logger.Error("Failed to publish run request",
			slog.Int64("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to queue run request",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.RunJobResponse{
		JobID:  jobID,
		Force:  req.Force,
		Status: "queued",
	})
}

func (h *JobHandler) parseJobID(c *gin.Context) (int64, bool) {
	raw := c.Param("job_id")
	jobID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || jobID <= 0 {
		h.logger.Error("Invalid job_id format", slog.String("job_id", raw))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a positive integer",
		})
		return 0, false
	}
	return jobID, true
}
