package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

type fakeAnnotationStore struct {
	stored  []*models.Annotation
	deleted []string
}

func (s *fakeAnnotationStore) StoreAnnotation(ctx context.Context, tenantUID int64, a *models.Annotation) error {
	s.stored = append(s.stored, a)
	return nil
}

func (s *fakeAnnotationStore) ListAnnotations(ctx context.Context, tenantUID int64, completionID, experimentID string, limit int) ([]models.Annotation, error) {
	out := make([]models.Annotation, len(s.stored))
	for i, a := range s.stored {
		out[i] = *a
	}
	return out, nil
}

func (s *fakeAnnotationStore) DeleteAnnotation(ctx context.Context, tenantUID int64, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func TestAnnotationCreate(t *testing.T) {
	store := &fakeAnnotationStore{}
	svc := NewAnnotationService(store)

	a, err := svc.Create(context.Background(), 1, &models.Annotation{
		Target: models.AnnotationTarget{CompletionID: "anotherai/completion/0198b2c0-0000-7000-8000-000000000000"},
		Metric: &models.Metric{Name: "helpfulness", Value: 0.9},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "0198b2c0-0000-7000-8000-000000000000", a.Target.CompletionID, "external prefix is stripped")
}

func TestAnnotationCreate_Validation(t *testing.T) {
	svc := NewAnnotationService(&fakeAnnotationStore{})

	tests := []struct {
		name       string
		annotation models.Annotation
	}{
		{"no target", models.Annotation{Text: "nice"}},
		{"both targets", models.Annotation{
			Target: models.AnnotationTarget{CompletionID: "c", ExperimentID: "e"},
			Text:   "nice",
		}},
		{"no content", models.Annotation{
			Target: models.AnnotationTarget{CompletionID: "c"},
		}},
		{"unnamed metric", models.Annotation{
			Target: models.AnnotationTarget{CompletionID: "c"},
			Metric: &models.Metric{Value: 1.0},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), 1, &tt.annotation)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
		})
	}
}

func TestAnnotationDelete_StripsPrefix(t *testing.T) {
	store := &fakeAnnotationStore{}
	svc := NewAnnotationService(store)

	require.NoError(t, svc.Delete(context.Background(), 1, "anotherai/annotation/ann-1"))
	assert.Equal(t, []string{"ann-1"}, store.deleted)
}
