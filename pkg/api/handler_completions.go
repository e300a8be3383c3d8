package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// ImportCompletionRequest is the body of POST /v1/completions: an
// already-computed completion record for shadow testing.
type ImportCompletionRequest struct {
	ID              string             `json:"id,omitempty"`
	AgentID         string             `json:"agent_id"`
	Version         models.Version     `json:"version"`
	Input           models.AgentInput  `json:"input"`
	Output          models.AgentOutput `json:"output"`
	Messages        []models.Message   `json:"messages,omitempty"`
	CostUSD         float64            `json:"cost_usd,omitempty"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
}

// importCompletionHandler handles POST /v1/completions.
func (s *Server) importCompletionHandler(c *echo.Context) error {
	var req ImportCompletionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	completion := &models.AgentCompletion{
		AgentID:         req.AgentID,
		Version:         req.Version,
		Input:           req.Input,
		Output:          req.Output,
		Messages:        req.Messages,
		CostUSD:         req.CostUSD,
		DurationSeconds: req.DurationSeconds,
		Metadata:        req.Metadata,
	}
	if req.ID != "" {
		id, err := models.ParseCompletionID(req.ID)
		if err != nil {
			return apperr.BadRequest("%v", err)
		}
		completion.ID = id
	}

	tenant := tenantFrom(c)
	imported, err := s.completions.Import(c.Request().Context(), tenant.UID, completion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, importResponse(imported))
}

// getCompletionHandler handles GET /v1/completions/:id.
func (s *Server) getCompletionHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	completion, err := s.completions.Get(c.Request().Context(), tenant.UID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, completionResponse(completion))
}

func importResponse(completion *models.AgentCompletion) map[string]any {
	return map[string]any{
		"id":  completion.ID.String(),
		"url": completion.URL(),
	}
}

func completionResponse(completion *models.AgentCompletion) map[string]any {
	version := map[string]any{
		"id":    completion.VersionID,
		"model": completion.Version.Model,
	}
	return map[string]any{
		"id":               completion.ID.String(),
		"url":              completion.URL(),
		"agent_id":         completion.AgentID,
		"created_at":       completion.CreatedAt(),
		"version":          version,
		"input":            completion.Input,
		"output":           completion.Output,
		"messages":         completion.Messages,
		"status":           completion.Status,
		"cost_usd":         completion.CostUSD,
		"duration_seconds": completion.DurationSeconds,
		"traces":           completion.Traces,
		"from_cache":       completion.FromCache,
		"source":           completion.Source,
		"metadata":         completion.Metadata,
	}
}
