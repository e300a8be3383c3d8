package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// CreateExperimentRequest is the body of POST /v1/experiments.
type CreateExperimentRequest struct {
	ID          string         `json:"id,omitempty"`
	AgentID     string         `json:"agent_id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Author      string         `json:"author,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (s *Server) createExperimentHandler(c *echo.Context) error {
	var req CreateExperimentRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	experiment, err := s.experiments.Create(c.Request().Context(), tenant.UID, &models.Experiment{
		ID:          req.ID,
		AgentID:     req.AgentID,
		Title:       req.Title,
		Description: req.Description,
		Author:      req.Author,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, experiment)
}

func (s *Server) getExperimentHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	experiment, err := s.experiments.Get(c.Request().Context(), tenant.UID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, experiment)
}

func (s *Server) listExperimentsHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	experiments, next, err := s.experiments.List(c.Request().Context(), tenant.UID,
		c.QueryParam("agent_id"), c.QueryParam("cursor"), queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pageResponse(experiments, next))
}

func (s *Server) deleteExperimentHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	if err := s.experiments.Delete(c.Request().Context(), tenant.UID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// AddExperimentInputsRequest is the body of POST /v1/experiments/:id/inputs.
type AddExperimentInputsRequest struct {
	Inputs []models.ExperimentInput `json:"inputs"`
}

func (s *Server) addExperimentInputsHandler(c *echo.Context) error {
	var req AddExperimentInputsRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	inserted, err := s.experiments.AddInputs(c.Request().Context(), tenant.UID, c.Param("id"), req.Inputs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"inserted": stringSlice(inserted)})
}

// AddExperimentVersionsRequest is the body of POST /v1/experiments/:id/versions.
type AddExperimentVersionsRequest struct {
	Versions []models.ExperimentVersion `json:"versions"`
}

func (s *Server) addExperimentVersionsHandler(c *echo.Context) error {
	var req AddExperimentVersionsRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	inserted, err := s.experiments.AddVersions(c.Request().Context(), tenant.UID, c.Param("id"), req.Versions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"inserted": stringSlice(inserted)})
}

// AddExperimentCompletionsRequest is the body of POST
// /v1/experiments/:id/completions.
type AddExperimentCompletionsRequest struct {
	Completions []models.ExperimentOutput `json:"completions"`
}

func (s *Server) addExperimentCompletionsHandler(c *echo.Context) error {
	var req AddExperimentCompletionsRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	inserted, err := s.experiments.AddCompletions(c.Request().Context(), tenant.UID, c.Param("id"), req.Completions)
	if err != nil {
		return err
	}
	ids := make([]string, len(inserted))
	for i, id := range inserted {
		ids[i] = id.String()
	}
	return c.JSON(http.StatusOK, map[string]any{"inserted": ids})
}

// queryLimit parses the page-size query parameter, defaulting to 30.
func queryLimit(c *echo.Context) int {
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			return n
		}
	}
	return 30
}

func pageResponse[T any](items []T, next string) map[string]any {
	resp := map[string]any{"items": items}
	if next != "" {
		resp["next_cursor"] = next
	}
	return resp
}

// stringSlice keeps empty id lists rendering as [] instead of null.
func stringSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
