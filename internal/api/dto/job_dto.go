package dto

import (
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
)

type CreateJobRequest struct {
	JobType   string `json:"job_type" binding:"required"`
	UserID    int64  `json:"user_id" binding:"gte=0"`
	ArgID     int64  `json:"arg_id" binding:"gte=0"`
	Priority  int    `json:"priority" binding:"gte=0"`
	IsTestJob bool   `json:"is_test_job"`
}

type ListJobsRequest struct {
	UserID   int64  `form:"user_id"`
	JobType  string `form:"job_type"`
	State    string `form:"state"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type RunJobRequest struct {
	Force bool `json:"force"`
}

type RunJobResponse struct {
	JobID  int64  `json:"job_id"`
	Force  bool   `json:"force"`
	Status string `json:"status"`
}

type JobDTO struct {
	ID               int64      `json:"id"`
	JobType          string     `json:"job_type"`
	UserID           int64      `json:"user_id"`
	ArgID            int64      `json:"arg_id"`
	Priority         int        `json:"priority"`
	State            string     `json:"state"`
	IsTimeout        bool       `json:"is_timeout"`
	IsTestJob        bool       `json:"is_test_job"`
	IsRecent         bool       `json:"is_recent"`
	ExecutionCount   int        `json:"execution_count"`
	ExecutionStarted *time.Time `json:"execution_started,omitempty"`
	ExecutedAt       *time.Time `json:"executed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func NewJobDTO(job *domain.Job) JobDTO {
	return JobDTO{
		ID:               job.ID,
		JobType:          job.JobType,
		UserID:           job.UserID,
		ArgID:            job.ArgID,
		Priority:         job.Priority,
		State:            job.State(),
		IsTimeout:        job.IsTimeout,
		IsTestJob:        job.IsTestJob,
		IsRecent:         job.IsRecent,
		ExecutionCount:   job.ExecutionCount,
		ExecutionStarted: job.ExecutionStarted,
		ExecutedAt:       job.ExecutedAt,
		CreatedAt:        job.CreatedAt,
	}
}
