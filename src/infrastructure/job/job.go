package job

import (
	"context"
	"time"
)

// Status defines the lifecycle state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarted   Status = "started"
	StatusRetry     Status = "retry"
	StatusProgress  Status = "progress"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusStarted, StatusRetry, StatusProgress,
		StatusSuccess, StatusFailure, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Priority is advisory only; it affects external queue ordering.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Type categorizes a job
type Type string

const (
	TypeVideoGeneration Type = "video_generation"
	TypeVideoProcessing Type = "video_processing"
	TypeImageProcessing Type = "image_processing"
	TypeCleanup         Type = "cleanup"
	TypeGeneral         Type = "general"
)

func (t Type) Valid() bool {
	switch t {
	case TypeVideoGeneration, TypeVideoProcessing, TypeImageProcessing,
		TypeCleanup, TypeGeneral:
		return true
	}
	return false
}

// DefaultMaxRetries bounds transient poll failures before a job is
// marked failed.
const DefaultMaxRetries = 3

// Progress reports partial completion of a running job
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Result is set once, when a job reaches a terminal status
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Job is a durable record of one unit of asynchronous work. Its ID
// doubles as the correlation key for the external operation it tracks.
type Job struct {
	ID         string         `json:"id"`
	Type       Type           `json:"job_type"`
	Name       string         `json:"job_name"`
	Status     Status         `json:"status"`
	Priority   Priority       `json:"priority"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	Progress   *Progress      `json:"progress,omitempty"`
	Result     *Result        `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	Retries    int `json:"retries"`
	MaxRetries int `json:"max_retries"`
	RetryDelay int `json:"retry_delay,omitempty"` // seconds
}

// Filter is an exact-match filter set for listing jobs. Zero values
// are ignored.
type Filter struct {
	EntityID   string
	EntityType string
	Type       Type
	Status     Status
}

// Repository is the record-store contract the registry persists
// through. Get returns (nil, nil) when no job exists with the id.
type Repository interface {
	Insert(ctx context.Context, j *Job) (string, error)
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Find(ctx context.Context, f Filter, offset, limit int) ([]Job, error)
	Count(ctx context.Context, f Filter) (int64, error)
}

// PollMessage is the unit of scheduled poll work, published once per
// poll attempt. Delivery is at-least-once; handlers must tolerate
// duplicates.
type PollMessage struct {
	JobID       string `json:"job_id"`
	Model       string `json:"model"`
	OperationID string `json:"operation_id"`
}

// Scheduler enqueues a poll attempt for later execution.
type Scheduler interface {
	SchedulePoll(ctx context.Context, m PollMessage, delay time.Duration) error
}
