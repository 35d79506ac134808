package http

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"mediaflow/src/core/generation"
	"mediaflow/src/infrastructure/job"
)

type generateRequest struct {
	Kind       string         `json:"kind"`
	Model      string         `json:"model"`
	Prompt     string         `json:"prompt"`
	Params     map[string]any `json:"params"`
	EntityID   string         `json:"entity_id"`
	EntityType string         `json:"entity_type"`
}

type generateResponse struct {
	Response
	JobID string `json:"job_id,omitempty"`
	Data  string `json:"data,omitempty"` // base64, sync path only
	MIME  string `json:"mime_type,omitempty"`
}

// Generate dispatches a generation request. Synchronous providers
// answer with the artifact inline; asynchronous ones answer with the
// id of the job tracking the operation.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, &job.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	kind := generation.Kind(req.Kind)
	if kind == "" {
		kind = generation.KindVideo
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), generation.Request{
		Kind:       kind,
		Model:      req.Model,
		Prompt:     req.Prompt,
		Params:     req.Params,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
	})
	if err != nil {
		sendError(c, err)
		return
	}

	if result.Artifact != nil {
		c.JSON(http.StatusOK, generateResponse{
			Response: Response{Success: true, Message: "generated"},
			Data:     base64.StdEncoding.EncodeToString(result.Artifact.Data),
			MIME:     result.Artifact.MIME,
		})
		return
	}

	c.JSON(http.StatusOK, generateResponse{
		Response: Response{Success: true, Message: "generation started"},
		JobID:    result.JobID,
	})
}
