package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// CreateAnnotationRequest is the body of POST /v1/annotations.
type CreateAnnotationRequest struct {
	ID       string                  `json:"id,omitempty"`
	Target   models.AnnotationTarget `json:"target"`
	Author   string                  `json:"author_name,omitempty"`
	Text     string                  `json:"text,omitempty"`
	Metric   *models.Metric          `json:"metric,omitempty"`
	Metadata map[string]any          `json:"metadata,omitempty"`
}

func (s *Server) createAnnotationHandler(c *echo.Context) error {
	var req CreateAnnotationRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	annotation, err := s.annotations.Create(c.Request().Context(), tenant.UID, &models.Annotation{
		ID:       req.ID,
		Target:   req.Target,
		Author:   req.Author,
		Text:     req.Text,
		Metric:   req.Metric,
		Metadata: req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, annotation)
}

func (s *Server) listAnnotationsHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	annotations, err := s.annotations.List(c.Request().Context(), tenant.UID,
		c.QueryParam("completion_id"), c.QueryParam("experiment_id"), queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": annotations})
}

func (s *Server) deleteAnnotationHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	if err := s.annotations.Delete(c.Request().Context(), tenant.UID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
