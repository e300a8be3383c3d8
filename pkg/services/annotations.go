package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// AnnotationStore persists annotations in the analytical store.
type AnnotationStore interface {
	StoreAnnotation(ctx context.Context, tenantUID int64, a *models.Annotation) error
	ListAnnotations(ctx context.Context, tenantUID int64, completionID, experimentID string, limit int) ([]models.Annotation, error)
	DeleteAnnotation(ctx context.Context, tenantUID int64, id string) error
}

// AnnotationService manages ratings and comments on completions and
// experiments.
type AnnotationService struct {
	analytics AnnotationStore
}

// NewAnnotationService builds an AnnotationService.
func NewAnnotationService(analytics AnnotationStore) *AnnotationService {
	return &AnnotationService{analytics: analytics}
}

// Create stores an annotation. Exactly one of completion_id or
// experiment_id must be set on the target.
func (s *AnnotationService) Create(ctx context.Context, tenantUID int64, a *models.Annotation) (*models.Annotation, error) {
	a.Target.CompletionID = models.ParseExternalID(models.KindCompletion, a.Target.CompletionID)
	a.Target.ExperimentID = models.ParseExternalID(models.KindExperiment, a.Target.ExperimentID)
	if (a.Target.CompletionID == "") == (a.Target.ExperimentID == "") {
		return nil, apperr.BadRequest("annotation target requires exactly one of completion_id or experiment_id")
	}
	if a.Text == "" && a.Metric == nil {
		return nil, apperr.BadRequest("annotation requires text or a metric")
	}
	if a.Metric != nil && a.Metric.Name == "" {
		return nil, apperr.BadRequest("annotation metric requires a name")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := s.analytics.StoreAnnotation(ctx, tenantUID, a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns annotations filtered by completion or experiment.
func (s *AnnotationService) List(ctx context.Context, tenantUID int64, completionID, experimentID string, limit int) ([]models.Annotation, error) {
	return s.analytics.ListAnnotations(ctx, tenantUID,
		models.ParseExternalID(models.KindCompletion, completionID),
		models.ParseExternalID(models.KindExperiment, experimentID),
		limit)
}

// Delete removes an annotation.
func (s *AnnotationService) Delete(ctx context.Context, tenantUID int64, id string) error {
	return s.analytics.DeleteAnnotation(ctx, tenantUID, models.ParseExternalID(models.KindAnnotation, id))
}
