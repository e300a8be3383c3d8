package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/runner"
	"github.com/anotherai-dev/anotherai/pkg/tasks"
)

// ExperimentStore is the slice of the relational store experiments need.
type ExperimentStore interface {
	CreateExperiment(ctx context.Context, tenantUID int64, e *models.Experiment) error
	ExperimentByID(ctx context.Context, tenantUID int64, id string) (*models.Experiment, error)
	ListExperiments(ctx context.Context, tenantUID int64, agentID, cursor string, limit int) ([]models.Experiment, string, error)
	DeleteExperiment(ctx context.Context, tenantUID int64, id string) error
	AddExperimentInputs(ctx context.Context, tenantUID int64, experimentID string, inputs []models.ExperimentInput) ([]string, error)
	AddExperimentVersions(ctx context.Context, tenantUID int64, experimentID string, versions []models.ExperimentVersion) ([]string, error)
	AddExperimentCompletions(ctx context.Context, tenantUID int64, experimentID string, outputs []models.ExperimentOutput) ([]uuid.UUID, error)
	StartExperimentCompletion(ctx context.Context, tenantUID int64, experimentID string, completionID uuid.UUID) error
	CompleteExperimentCompletion(ctx context.Context, tenantUID int64, experimentID string, completionID uuid.UUID) error
}

// RecordStore resolves content-addressed versions and inputs.
type RecordStore interface {
	VersionByID(ctx context.Context, tenantUID int64, id string) (*models.Version, error)
	InputByID(ctx context.Context, tenantUID int64, id string) (*models.AgentInput, error)
}

// ExperimentService composes experiments and executes their completions.
// Composition (add inputs/versions/completions) is idempotent: duplicates
// are silently ignored and only newly inserted ids are returned.
type ExperimentService struct {
	store     ExperimentStore
	analytics RecordStore
	runner    *runner.Runner
	publisher Publisher
	logger    *slog.Logger
}

// NewExperimentService builds an ExperimentService.
func NewExperimentService(store ExperimentStore, analytics RecordStore, r *runner.Runner, publisher Publisher) *ExperimentService {
	return &ExperimentService{
		store:     store,
		analytics: analytics,
		runner:    r,
		publisher: publisher,
		logger:    slog.Default(),
	}
}

// Create registers a new experiment.
func (s *ExperimentService) Create(ctx context.Context, tenantUID int64, e *models.Experiment) (*models.Experiment, error) {
	e.ID = models.ParseExternalID(models.KindExperiment, e.ID)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.AgentID == "" {
		return nil, apperr.BadRequest("experiment requires an agent_id")
	}
	if err := s.store.CreateExperiment(ctx, tenantUID, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get fetches one experiment with its inputs, versions and outputs.
func (s *ExperimentService) Get(ctx context.Context, tenantUID int64, id string) (*models.Experiment, error) {
	return s.store.ExperimentByID(ctx, tenantUID, models.ParseExternalID(models.KindExperiment, id))
}

// List pages experiments, newest first.
func (s *ExperimentService) List(ctx context.Context, tenantUID int64, agentID, cursor string, limit int) ([]models.Experiment, string, error) {
	return s.store.ListExperiments(ctx, tenantUID, agentID, cursor, limit)
}

// Delete removes an experiment.
func (s *ExperimentService) Delete(ctx context.Context, tenantUID int64, id string) error {
	return s.store.DeleteExperiment(ctx, tenantUID, models.ParseExternalID(models.KindExperiment, id))
}

// AddInputs registers inputs on the experiment and returns the ids that
// were not already present.
func (s *ExperimentService) AddInputs(ctx context.Context, tenantUID int64, experimentID string, inputs []models.ExperimentInput) ([]string, error) {
	return s.store.AddExperimentInputs(ctx, tenantUID, models.ParseExternalID(models.KindExperiment, experimentID), inputs)
}

// AddVersions registers versions on the experiment and returns the ids
// that were not already present.
func (s *ExperimentService) AddVersions(ctx context.Context, tenantUID int64, experimentID string, versions []models.ExperimentVersion) ([]string, error) {
	return s.store.AddExperimentVersions(ctx, tenantUID, models.ParseExternalID(models.KindExperiment, experimentID), versions)
}

// AddCompletions registers (input, version, completion) triples and
// schedules a background run for each newly inserted one. Completion ids
// must be fresh UUIDv7s; the scheduled run stores its record under them.
func (s *ExperimentService) AddCompletions(ctx context.Context, tenantUID int64, experimentID string, outputs []models.ExperimentOutput) ([]uuid.UUID, error) {
	experimentID = models.ParseExternalID(models.KindExperiment, experimentID)
	for i := range outputs {
		if outputs[i].CompletionID == uuid.Nil {
			outputs[i].CompletionID = models.NewCompletionID()
		}
	}
	inserted, err := s.store.AddExperimentCompletions(ctx, tenantUID, experimentID, outputs)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.ExperimentOutput, len(outputs))
	for _, o := range outputs {
		byID[o.CompletionID] = o
	}
	for _, id := range inserted {
		o := byID[id]
		err := s.publisher.Publish(ctx, tasks.TaskStartExperimentCompletion, tasks.StartExperimentCompletionPayload{
			TenantUID:    tenantUID,
			ExperimentID: experimentID,
			CompletionID: id,
			VersionID:    o.VersionID,
			InputID:      o.InputID,
		})
		if err != nil {
			// The triple is registered; a re-add replays the schedule.
			s.logger.Warn("Failed to schedule experiment completion",
				"experiment_id", experimentID, "completion_id", id, "error", err)
		}
	}
	return inserted, nil
}

// ExecuteExperimentCompletion runs one pre-registered completion inside an
// experiment. It satisfies the task registry's executor. A second start of
// the same completion reports duplicate_value and is dropped as fatal so
// the at-least-once bus cannot double-run it.
func (s *ExperimentService) ExecuteExperimentCompletion(ctx context.Context, tenantUID int64, experimentID string, completionID uuid.UUID) error {
	if err := s.store.StartExperimentCompletion(ctx, tenantUID, experimentID, completionID); err != nil {
		if apperr.CodeOf(err) == apperr.CodeDuplicateValue {
			s.logger.Info("Experiment completion already started, skipping",
				"experiment_id", experimentID, "completion_id", completionID)
			return nil
		}
		return err
	}

	exp, err := s.store.ExperimentByID(ctx, tenantUID, experimentID)
	if err != nil {
		return err
	}
	var output *models.ExperimentOutput
	for i := range exp.Outputs {
		if exp.Outputs[i].CompletionID == completionID {
			output = &exp.Outputs[i]
			break
		}
	}
	if output == nil {
		return apperr.NotFound("output", "completion %s is not registered on experiment %s", completionID, experimentID).AsFatal()
	}

	version, err := s.analytics.VersionByID(ctx, tenantUID, output.VersionID)
	if err != nil {
		return err
	}
	input, err := s.analytics.InputByID(ctx, tenantUID, output.InputID)
	if err != nil {
		return err
	}

	_, runErr := s.runner.Run(ctx, runner.RunRequest{
		TenantUID:    tenantUID,
		AgentID:      exp.AgentID,
		CompletionID: completionID,
		Version:      *version,
		Input:        *input,
		UseCache:     runner.UseCacheNever,
		Source:       models.SourceAPI,
		Metadata:     map[string]any{"experiment_id": models.ExternalID(models.KindExperiment, experimentID)},
	})
	if runErr != nil {
		// The failure record was emitted; the slot is still terminal.
		s.logger.Warn("Experiment completion failed",
			"experiment_id", experimentID, "completion_id", completionID, "error", runErr)
	}

	if err := s.store.CompleteExperimentCompletion(ctx, tenantUID, experimentID, completionID); err != nil {
		if apperr.CodeOf(err) == apperr.CodeDuplicateValue {
			return nil
		}
		return fmt.Errorf("marking experiment completion terminal: %w", err)
	}
	return nil
}
