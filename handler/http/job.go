package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediaflow/src/infrastructure/job"
)

type createJobRequest struct {
	JobType    string         `json:"job_type"`
	JobName    string         `json:"job_name"`
	Priority   string         `json:"priority"`
	EntityID   string         `json:"entity_id"`
	EntityType string         `json:"entity_type"`
	Metadata   map[string]any `json:"metadata"`
	MaxRetries int            `json:"max_retries"`
	RetryDelay int            `json:"retry_delay"`
	ExpiresAt  *time.Time     `json:"expires_at"`
}

type createJobResponse struct {
	Response
	JobID string `json:"job_id"`
}

func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, &job.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	id, err := h.registry.Create(c.Request.Context(), job.CreateParams{
		Type:       job.Type(req.JobType),
		Name:       req.JobName,
		Priority:   job.Priority(req.Priority),
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Metadata:   req.Metadata,
		MaxRetries: req.MaxRetries,
		RetryDelay: req.RetryDelay,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		sendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createJobResponse{
		Response: Response{Success: true, Message: "job created"},
		JobID:    id,
	})
}

type jobResponse struct {
	Response
	Job *job.Job `json:"job"`
}

func (h *Handler) GetJob(c *gin.Context) {
	j, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobResponse{
		Response: Response{Success: true, Message: "ok"},
		Job:      j,
	})
}

type listJobsRequest struct {
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	JobType    string `json:"job_type"`
	Status     string `json:"status"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

type listJobsResponse struct {
	Response
	Jobs     []job.Job `json:"jobs"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

func (h *Handler) ListJobs(c *gin.Context) {
	var req listJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, &job.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	jobs, total, err := h.registry.List(c.Request.Context(), job.Filter{
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Type:       job.Type(req.JobType),
		Status:     job.Status(req.Status),
	}, req.Page, req.PageSize)
	if err != nil {
		sendError(c, err)
		return
	}
	if jobs == nil {
		// An empty page serializes as [] rather than null.
		jobs = []job.Job{}
	}

	c.JSON(http.StatusOK, listJobsResponse{
		Response: Response{Success: true, Message: "ok"},
		Jobs:     jobs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

type updateJobRequest struct {
	JobName  *string        `json:"job_name"`
	Status   *string        `json:"status"`
	Priority *string        `json:"priority"`
	Progress *job.Progress  `json:"progress"`
	Metadata map[string]any `json:"metadata"`
	Result   *job.Result    `json:"result"`
}

func (h *Handler) UpdateJob(c *gin.Context) {
	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, &job.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	params := job.UpdateParams{
		Name:     req.JobName,
		Progress: req.Progress,
		Metadata: req.Metadata,
		Result:   req.Result,
	}
	if req.Status != nil {
		status := job.Status(*req.Status)
		params.Status = &status
	}
	if req.Priority != nil {
		priority := job.Priority(*req.Priority)
		params.Priority = &priority
	}

	j, err := h.registry.Update(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobResponse{
		Response: Response{Success: true, Message: "job updated"},
		Job:      j,
	})
}
