package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/template"
)

// ExtractVariablesRequest is the body of POST /v1/utils/extract_variables.
type ExtractVariablesRequest struct {
	Messages   []models.Message `json:"messages"`
	BaseSchema map[string]any   `json:"base_schema,omitempty"`
}

// extractVariablesHandler derives a JSON-Schema for the variables
// referenced by the templated messages, along with the index of the last
// message that uses a template.
func (s *Server) extractVariablesHandler(c *echo.Context) error {
	var req ExtractVariablesRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}
	if len(req.Messages) == 0 {
		return apperr.BadRequest("messages are required")
	}

	schema, lastTemplated := template.SchemaFromMessages(req.Messages, req.BaseSchema)
	return c.JSON(http.StatusOK, map[string]any{
		"schema":               schema,
		"last_templated_index": lastTemplated,
	})
}
