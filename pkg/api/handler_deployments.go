package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// UpsertDeploymentRequest is the body of POST /v1/deployments.
type UpsertDeploymentRequest struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Version   models.Version `json:"version"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedBy string         `json:"created_by,omitempty"`
}

func (s *Server) upsertDeploymentHandler(c *echo.Context) error {
	var req UpsertDeploymentRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	deployment, err := s.deployments.Upsert(c.Request().Context(), tenant.UID, &models.Deployment{
		ID:        req.ID,
		AgentID:   req.AgentID,
		Version:   req.Version,
		Metadata:  req.Metadata,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deployment)
}

func (s *Server) getDeploymentHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	deployment, err := s.deployments.Get(c.Request().Context(), tenant.UID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deployment)
}

func (s *Server) listDeploymentsHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	deployments, next, err := s.deployments.List(c.Request().Context(), tenant.UID,
		c.QueryParam("agent_id"), c.QueryParam("cursor"), queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pageResponse(deployments, next))
}

func (s *Server) archiveDeploymentHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	if err := s.deployments.Archive(c.Request().Context(), tenant.UID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
