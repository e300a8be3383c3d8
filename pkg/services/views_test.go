package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/storage"
)

type fakeViewStore struct {
	views   []models.View
	folders []models.ViewFolder
}

func (s *fakeViewStore) CreateView(ctx context.Context, tenantUID int64, v *models.View) error {
	s.views = append(s.views, *v)
	return nil
}

func (s *fakeViewStore) UpdateView(ctx context.Context, tenantUID int64, id string, patch storage.ViewPatch) error {
	return nil
}

func (s *fakeViewStore) ListViews(ctx context.Context, tenantUID int64) ([]models.View, error) {
	return s.views, nil
}

func (s *fakeViewStore) DeleteView(ctx context.Context, tenantUID int64, id string) error {
	return nil
}

func (s *fakeViewStore) CreateFolder(ctx context.Context, tenantUID int64, f *models.ViewFolder) error {
	s.folders = append(s.folders, *f)
	return nil
}

func (s *fakeViewStore) ListFolders(ctx context.Context, tenantUID int64) ([]models.ViewFolder, error) {
	return s.folders, nil
}

func (s *fakeViewStore) DeleteFolder(ctx context.Context, tenantUID int64, id string) error {
	return nil
}

type fakeQueryStore struct {
	ensured []int64
	queries []string
	rows    []map[string]any
}

func (s *fakeQueryStore) EnsureReadonlyUser(ctx context.Context, tenantUID int64) error {
	s.ensured = append(s.ensured, tenantUID)
	return nil
}

func (s *fakeQueryStore) RawQuery(ctx context.Context, tenantUID int64, query string) ([]map[string]any, error) {
	s.queries = append(s.queries, query)
	return s.rows, nil
}

func TestListFolders_AppendsImplicitRoot(t *testing.T) {
	store := &fakeViewStore{folders: []models.ViewFolder{{ID: "f1", Name: "My folder"}}}
	svc := NewViewService(store, &fakeQueryStore{})

	folders, err := svc.ListFolders(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "f1", folders[0].ID)
	assert.Empty(t, folders[1].ID, "root folder comes last")
}

func TestListFolders_RootAlwaysPresent(t *testing.T) {
	svc := NewViewService(&fakeViewStore{}, &fakeQueryStore{})

	folders, err := svc.ListFolders(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Empty(t, folders[0].ID)
}

func TestDeleteFolder_RootRejected(t *testing.T) {
	svc := NewViewService(&fakeViewStore{}, &fakeQueryStore{})
	err := svc.DeleteFolder(context.Background(), 1, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}

func TestCreateView_GeneratesID(t *testing.T) {
	store := &fakeViewStore{}
	svc := NewViewService(store, &fakeQueryStore{})

	v, err := svc.CreateView(context.Background(), 1, &models.View{Title: "Costs by agent"})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)

	_, err = svc.CreateView(context.Background(), 1, &models.View{})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}

func TestQuery_RunsThroughReadonlyUser(t *testing.T) {
	analytics := &fakeQueryStore{rows: []map[string]any{{"count": uint64(3)}}}
	svc := NewViewService(&fakeViewStore{}, analytics)

	rows, err := svc.Query(context.Background(), 42, "SELECT count() AS count FROM completions")
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, analytics.ensured, "readonly user is ensured before the query")
	assert.Len(t, rows, 1)

	_, err = svc.Query(context.Background(), 42, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}
