package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// CreateAgentRequest is the body of POST /v1/agents.
type CreateAgentRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (s *Server) createAgentHandler(c *echo.Context) error {
	var req CreateAgentRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	agent, err := s.agents.Create(c.Request().Context(), tenant.UID, &models.Agent{Slug: req.ID, Name: req.Name})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agent)
}

func (s *Server) listAgentsHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	agents, err := s.agents.List(c.Request().Context(), tenant.UID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": agents})
}
