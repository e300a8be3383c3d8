package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/storage"
)

// CreateViewRequest is the body of POST /v1/views.
type CreateViewRequest struct {
	Title    string        `json:"title"`
	Query    string        `json:"query,omitempty"`
	Graph    *models.Graph `json:"graph,omitempty"`
	FolderID string        `json:"folder_id,omitempty"`
	Position int           `json:"position,omitempty"`
}

// UpdateViewRequest is the body of PATCH /v1/views/:id. Absent fields are
// left unchanged.
type UpdateViewRequest struct {
	Title    *string       `json:"title,omitempty"`
	Query    *string       `json:"query,omitempty"`
	Graph    *models.Graph `json:"graph,omitempty"`
	FolderID *string       `json:"folder_id,omitempty"`
	Position *int          `json:"position,omitempty"`
}

// QueryRequest is the body of POST /v1/views/query.
type QueryRequest struct {
	Query string `json:"query"`
}

func (s *Server) createViewHandler(c *echo.Context) error {
	var req CreateViewRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	view, err := s.views.CreateView(c.Request().Context(), tenant.UID, &models.View{
		Title:    req.Title,
		Query:    req.Query,
		Graph:    req.Graph,
		FolderID: req.FolderID,
		Position: req.Position,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) updateViewHandler(c *echo.Context) error {
	var req UpdateViewRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	err := s.views.UpdateView(c.Request().Context(), tenant.UID, c.Param("id"), storage.ViewPatch{
		Title:    req.Title,
		Query:    req.Query,
		Graph:    req.Graph,
		FolderID: req.FolderID,
		Position: req.Position,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listViewsHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	views, err := s.views.ListViews(c.Request().Context(), tenant.UID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": views})
}

func (s *Server) deleteViewHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	if err := s.views.DeleteView(c.Request().Context(), tenant.UID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) queryViewHandler(c *echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	rows, err := s.views.Query(c.Request().Context(), tenant.UID, req.Query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"rows": rows})
}

// CreateFolderRequest is the body of POST /v1/view-folders.
type CreateFolderRequest struct {
	Name string `json:"name"`
}

func (s *Server) createFolderHandler(c *echo.Context) error {
	var req CreateFolderRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	folder, err := s.views.CreateFolder(c.Request().Context(), tenant.UID, &models.ViewFolder{Name: req.Name})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, folder)
}

func (s *Server) listFoldersHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	folders, err := s.views.ListFolders(c.Request().Context(), tenant.UID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": folders})
}

func (s *Server) deleteFolderHandler(c *echo.Context) error {
	tenant := tenantFrom(c)
	if err := s.views.DeleteFolder(c.Request().Context(), tenant.UID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
