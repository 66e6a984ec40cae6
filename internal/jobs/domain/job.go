package domain

import "time"

// Job is a row of the jobs table
type Job struct {
	ID               int64      `db:"id" json:"id"`
	JobType          string     `db:"job_type" json:"job_type"`
	UserID           int64      `db:"user_id" json:"user_id"`
	ArgID            int64      `db:"arg_id" json:"arg_id"`
	Priority         int        `db:"priority" json:"priority"`
	IsExecuting      bool       `db:"is_executing" json:"is_executing"`
	IsExecuted       bool       `db:"is_executed" json:"is_executed"`
	IsError          bool       `db:"is_error" json:"is_error"`
	IsTimeout        bool       `db:"is_timeout" json:"is_timeout"`
	IsTestJob        bool       `db:"is_test_job" json:"is_test_job"`
	IsRecent         bool       `db:"is_recent" json:"is_recent"`
	ExecutionCount   int        `db:"execution_count" json:"execution_count"`
	ExecutionStarted *time.Time `db:"execution_started" json:"execution_started,omitempty"`
	ExecutedAt       *time.Time `db:"executed_at" json:"executed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// NewJob holds the fields a caller chooses when queueing a job
type NewJob struct {
	JobType   string
	UserID    int64
	ArgID     int64
	Priority  int
	IsTestJob bool
}

// Default priorities, lower runs first
const (
	PriorityHigh   = 5
	PriorityNormal = 10
	PriorityLow    = 20
)

// State summarises the job flags for listings
func (j *Job) State() string {
	switch {
	case j.IsExecuting:
		return StateExecuting
	case j.IsExecuted && j.IsError:
		return StateFailed
	case j.IsExecuted:
		return StateExecuted
	default:
		return StatePending
	}
}

// Job states derived from flags
const (
	StatePending   = "pending"
	StateExecuting = "executing"
	StateExecuted  = "executed"
	StateFailed    = "failed"
)

// RunRequest asks the worker to execute one runner invocation
type RunRequest struct {
	JobID       int64    `json:"job_id,omitempty"`
	Force       bool     `json:"force,omitempty"`
	JobTypes    []string `json:"job_types,omitempty"`
	DeliveryTag uint64   `json:"-"`
	Source      string   `json:"-"`
}
