package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mediaflow/src/core/generation"
	"mediaflow/src/core/signedurl"
	"mediaflow/src/infrastructure/job"
)

type Handler struct {
	registry   *job.Registry
	dispatcher *generation.Dispatcher
	urls       *signedurl.Service
}

func NewHandler(registry *job.Registry, dispatcher *generation.Dispatcher, urls *signedurl.Service) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		urls:       urls,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	// Job routes
	api.POST("/jobs", h.CreateJob)
	api.GET("/jobs/:id", h.GetJob)
	api.POST("/jobs/list", h.ListJobs)
	api.PATCH("/jobs/:id", h.UpdateJob)

	// Generation routes
	api.POST("/generations", h.Generate)

	// Media routes
	api.GET("/media/url", h.GetMediaURL)
}

// Response is the uniform envelope returned by every endpoint
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func sendError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var validationErr *job.ValidationError
	var modelErr *generation.UnsupportedModelError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &modelErr):
		status = http.StatusBadRequest
	case errors.Is(err, job.ErrJobNotFound):
		status = http.StatusNotFound
	}

	c.JSON(status, Response{
		Success: false,
		Message: err.Error(),
	})
}
