package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

type fakeCompletionRecordStore struct {
	stored []*models.AgentCompletion
}

func (s *fakeCompletionRecordStore) StoreCompletion(ctx context.Context, c *models.AgentCompletion) error {
	s.stored = append(s.stored, c)
	return nil
}

func (s *fakeCompletionRecordStore) CompletionByID(ctx context.Context, tenantUID int64, id uuid.UUID) (*models.AgentCompletion, error) {
	for _, c := range s.stored {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, apperr.NotFound("completion", "completion %s not found", id)
}

func importable() *models.AgentCompletion {
	return &models.AgentCompletion{
		AgentID: "shadow-agent",
		Input: models.AgentInput{
			Messages: []models.Message{{Role: models.RoleUser, Content: "ping"}},
		},
		Version: models.Version{Model: "gpt-4o-mini"},
		Output: models.AgentOutput{
			Messages: []models.Message{{Role: models.RoleAssistant, Content: "pong"}},
		},
	}
}

func TestImport_ComputesIdentifiers(t *testing.T) {
	store := &fakeCompletionRecordStore{}
	svc := NewCompletionService(store)

	in := importable()
	in.CostUSD = 1.0
	c, err := svc.Import(context.Background(), 1, in)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), c.ID.Version())
	assert.Len(t, c.Input.ID, 32)
	assert.Len(t, c.VersionID, 32)
	assert.Equal(t, models.CompletionSuccess, c.Status)
	assert.Equal(t, 1.0, c.CostUSD, "declared cost is stored as-is")
	require.Len(t, store.stored, 1)
}

func TestImport_RejectsNonV7ID(t *testing.T) {
	svc := NewCompletionService(&fakeCompletionRecordStore{})

	c := importable()
	c.ID = uuid.New() // v4
	_, err := svc.Import(context.Background(), 1, c)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}

func TestImport_FailureStatusFromError(t *testing.T) {
	svc := NewCompletionService(&fakeCompletionRecordStore{})

	c := importable()
	c.Output = models.AgentOutput{Error: &models.OutputError{Message: "upstream timeout"}}
	imported, err := svc.Import(context.Background(), 1, c)
	require.NoError(t, err)
	assert.Equal(t, models.CompletionFailure, imported.Status)
}

func TestGet_AcceptsExternalID(t *testing.T) {
	store := &fakeCompletionRecordStore{}
	svc := NewCompletionService(store)

	c, err := svc.Import(context.Background(), 1, importable())
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), 1, "anotherai/completion/"+c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = svc.Get(context.Background(), 1, "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}
