package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mediaflow/src/infrastructure/job"
)

const (
	defaultURLTTL = 15 * time.Minute
	maxURLTTL     = 24 * time.Hour
)

type mediaURLResponse struct {
	Response
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// GetMediaURL returns a presigned read URL for a stored artifact,
// served from the URL cache when a live one exists.
func (h *Handler) GetMediaURL(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		sendError(c, &job.ValidationError{Field: "path", Message: "must not be empty"})
		return
	}

	ttl := defaultURLTTL
	if raw := c.Query("ttl"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			sendError(c, &job.ValidationError{Field: "ttl", Message: "must be a positive number of seconds"})
			return
		}
		ttl = time.Duration(seconds) * time.Second
		if ttl > maxURLTTL {
			ttl = maxURLTTL
		}
	}

	url, err := h.urls.GetOrCreate(c.Request.Context(), path, ttl)
	if err != nil {
		sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, mediaURLResponse{
		Response:  Response{Success: true, Message: "ok"},
		URL:       url,
		ExpiresIn: int(ttl.Seconds()),
	})
}
