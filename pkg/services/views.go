package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/storage"
)

// ViewStore is the slice of the relational store views need.
type ViewStore interface {
	CreateView(ctx context.Context, tenantUID int64, v *models.View) error
	UpdateView(ctx context.Context, tenantUID int64, id string, patch storage.ViewPatch) error
	ListViews(ctx context.Context, tenantUID int64) ([]models.View, error)
	DeleteView(ctx context.Context, tenantUID int64, id string) error
	CreateFolder(ctx context.Context, tenantUID int64, f *models.ViewFolder) error
	ListFolders(ctx context.Context, tenantUID int64) ([]models.ViewFolder, error)
	DeleteFolder(ctx context.Context, tenantUID int64, id string) error
}

// QueryStore runs tenant-scoped SQL against the analytical store.
type QueryStore interface {
	EnsureReadonlyUser(ctx context.Context, tenantUID int64) error
	RawQuery(ctx context.Context, tenantUID int64, query string) ([]map[string]any, error)
}

// ViewService manages saved analytical queries and their folders, and runs
// view SQL through the tenant's read-only analytical user.
type ViewService struct {
	store     ViewStore
	analytics QueryStore
}

// NewViewService builds a ViewService.
func NewViewService(store ViewStore, analytics QueryStore) *ViewService {
	return &ViewService{store: store, analytics: analytics}
}

// CreateView saves a view. An empty folder id places it in the implicit
// root folder.
func (s *ViewService) CreateView(ctx context.Context, tenantUID int64, v *models.View) (*models.View, error) {
	if v.Title == "" {
		return nil, apperr.BadRequest("view requires a title")
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if err := s.store.CreateView(ctx, tenantUID, v); err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateView applies a partial update.
func (s *ViewService) UpdateView(ctx context.Context, tenantUID int64, id string, patch storage.ViewPatch) error {
	return s.store.UpdateView(ctx, tenantUID, id, patch)
}

// ListViews returns every view, grouped by folder then position.
func (s *ViewService) ListViews(ctx context.Context, tenantUID int64) ([]models.View, error) {
	return s.store.ListViews(ctx, tenantUID)
}

// DeleteView removes a view.
func (s *ViewService) DeleteView(ctx context.Context, tenantUID int64, id string) error {
	return s.store.DeleteView(ctx, tenantUID, id)
}

// CreateFolder adds a view folder.
func (s *ViewService) CreateFolder(ctx context.Context, tenantUID int64, f *models.ViewFolder) (*models.ViewFolder, error) {
	if f.Name == "" {
		return nil, apperr.BadRequest("folder requires a name")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := s.store.CreateFolder(ctx, tenantUID, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ListFolders returns the tenant's folders followed by the implicit root
// folder, which always exists and holds views with no explicit folder.
func (s *ViewService) ListFolders(ctx context.Context, tenantUID int64) ([]models.ViewFolder, error) {
	folders, err := s.store.ListFolders(ctx, tenantUID)
	if err != nil {
		return nil, err
	}
	return append(folders, models.ViewFolder{TenantUID: tenantUID}), nil
}

// DeleteFolder removes a folder; its views fall back to the root folder.
func (s *ViewService) DeleteFolder(ctx context.Context, tenantUID int64, id string) error {
	if id == "" {
		return apperr.BadRequest("the root folder cannot be deleted")
	}
	return s.store.DeleteFolder(ctx, tenantUID, id)
}

// Query runs arbitrary SQL through the tenant's read-only analytical user.
// The row policy on that user is the isolation boundary, so injection in
// the query text cannot reach another tenant's rows.
func (s *ViewService) Query(ctx context.Context, tenantUID int64, query string) ([]map[string]any, error) {
	if query == "" {
		return nil, apperr.BadRequest("query must not be empty")
	}
	if err := s.analytics.EnsureReadonlyUser(ctx, tenantUID); err != nil {
		return nil, err
	}
	return s.analytics.RawQuery(ctx, tenantUID, query)
}
