package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
	"github.com/anotherai-dev/anotherai/pkg/runner"
	"github.com/anotherai-dev/anotherai/pkg/tasks"
)

type fakeExperimentStore struct {
	experiment *models.Experiment
	inserted   []uuid.UUID
	started    map[uuid.UUID]bool
	completed  map[uuid.UUID]bool
}

func (s *fakeExperimentStore) CreateExperiment(ctx context.Context, tenantUID int64, e *models.Experiment) error {
	s.experiment = e
	return nil
}

func (s *fakeExperimentStore) ExperimentByID(ctx context.Context, tenantUID int64, id string) (*models.Experiment, error) {
	if s.experiment == nil || s.experiment.ID != id {
		return nil, apperr.NotFound("experiment", "experiment %s not found", id)
	}
	return s.experiment, nil
}

func (s *fakeExperimentStore) ListExperiments(ctx context.Context, tenantUID int64, agentID, cursor string, limit int) ([]models.Experiment, string, error) {
	return nil, "", nil
}

func (s *fakeExperimentStore) DeleteExperiment(ctx context.Context, tenantUID int64, id string) error {
	return nil
}

func (s *fakeExperimentStore) AddExperimentInputs(ctx context.Context, tenantUID int64, experimentID string, inputs []models.ExperimentInput) ([]string, error) {
	return nil, nil
}

func (s *fakeExperimentStore) AddExperimentVersions(ctx context.Context, tenantUID int64, experimentID string, versions []models.ExperimentVersion) ([]string, error) {
	return nil, nil
}

func (s *fakeExperimentStore) AddExperimentCompletions(ctx context.Context, tenantUID int64, experimentID string, outputs []models.ExperimentOutput) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(outputs))
	for _, o := range outputs {
		ids = append(ids, o.CompletionID)
	}
	s.inserted = ids
	return ids, nil
}

func (s *fakeExperimentStore) StartExperimentCompletion(ctx context.Context, tenantUID int64, experimentID string, completionID uuid.UUID) error {
	if s.started == nil {
		s.started = map[uuid.UUID]bool{}
	}
	if s.started[completionID] {
		return apperr.Duplicate("completion %s already started", completionID)
	}
	s.started[completionID] = true
	return nil
}

func (s *fakeExperimentStore) CompleteExperimentCompletion(ctx context.Context, tenantUID int64, experimentID string, completionID uuid.UUID) error {
	if s.completed == nil {
		s.completed = map[uuid.UUID]bool{}
	}
	if s.completed[completionID] {
		return apperr.Duplicate("completion %s already completed", completionID)
	}
	s.completed[completionID] = true
	return nil
}

type fakeRecordStore struct {
	version *models.Version
	input   *models.AgentInput
}

func (s *fakeRecordStore) VersionByID(ctx context.Context, tenantUID int64, id string) (*models.Version, error) {
	if s.version == nil {
		return nil, apperr.NotFound("version", "version %s not found", id)
	}
	return s.version, nil
}

func (s *fakeRecordStore) InputByID(ctx context.Context, tenantUID int64, id string) (*models.AgentInput, error) {
	if s.input == nil {
		return nil, apperr.NotFound("input", "input %s not found", id)
	}
	return s.input, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *fakePublisher) Publish(ctx context.Context, taskName string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, taskName)
	return nil
}

type scriptedAdapter struct {
	text string
}

func (a *scriptedAdapter) Complete(ctx context.Context, req provider.Request) (*provider.LLMCompletion, error) {
	return &provider.LLMCompletion{
		Messages: []models.Message{{Role: models.RoleAssistant, Content: a.text}},
		Usage:    models.InferenceUsage{PromptTokens: 4, CompletionTokens: 2},
		Model:    req.Model,
		Provider: provider.Groq,
	}, nil
}

func (a *scriptedAdapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	out := make(chan provider.Chunk)
	close(out)
	return out, nil
}

func (a *scriptedAdapter) DefaultModel() string  { return "llama-3.3-70b" }
func (a *scriptedAdapter) RequiredEnv() []string { return nil }

type scriptedSource struct {
	adapter provider.Adapter
}

func (s *scriptedSource) Get(ctx context.Context, p provider.Provider) (provider.Adapter, error) {
	if p != provider.Groq {
		return nil, apperr.InvalidRunOptions("provider %q is not configured", p)
	}
	return s.adapter, nil
}

func (s *scriptedSource) Configured(p provider.Provider) bool { return p == provider.Groq }

type collectEmitter struct {
	mu      sync.Mutex
	records []*models.AgentCompletion
}

func (e *collectEmitter) EmitCompletion(c *models.AgentCompletion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, c)
}

func newExperimentFixture(t *testing.T) (*ExperimentService, *fakeExperimentStore, *fakePublisher, *collectEmitter) {
	t.Helper()
	store := &fakeExperimentStore{}
	emitter := &collectEmitter{}
	r := runner.New(runner.Options{
		Adapters: &scriptedSource{adapter: &scriptedAdapter{text: "hello"}},
		Emitter:  emitter,
	})
	publisher := &fakePublisher{}
	svc := NewExperimentService(store, &fakeRecordStore{
		version: &models.Version{Model: "llama-3.3-70b"},
		input:   &models.AgentInput{Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}}},
	}, r, publisher)
	return svc, store, publisher, emitter
}

func TestAddCompletions_SchedulesNewOnes(t *testing.T) {
	svc, _, publisher, _ := newExperimentFixture(t)

	inserted, err := svc.AddCompletions(context.Background(), 1, "exp-1", []models.ExperimentOutput{
		{InputID: "in1", VersionID: "v1"},
		{InputID: "in2", VersionID: "v1"},
	})
	require.NoError(t, err)
	assert.Len(t, inserted, 2)
	assert.Equal(t, []string{tasks.TaskStartExperimentCompletion, tasks.TaskStartExperimentCompletion}, publisher.published)
	for _, id := range inserted {
		assert.Equal(t, uuid.Version(7), id.Version())
	}
}

func TestExecuteExperimentCompletion(t *testing.T) {
	svc, store, _, emitter := newExperimentFixture(t)
	completionID := models.NewCompletionID()
	store.experiment = &models.Experiment{
		ID:      "exp-1",
		AgentID: "my-agent",
		Outputs: []models.ExperimentOutput{{InputID: "in1", VersionID: "v1", CompletionID: completionID}},
	}

	err := svc.ExecuteExperimentCompletion(context.Background(), 1, "exp-1", completionID)
	require.NoError(t, err)
	assert.True(t, store.started[completionID])
	assert.True(t, store.completed[completionID])

	require.Len(t, emitter.records, 1)
	assert.Equal(t, completionID, emitter.records[0].ID, "record keeps the pre-registered id")
	assert.Equal(t, "my-agent", emitter.records[0].AgentID)
}

func TestExecuteExperimentCompletion_SecondStartIsNoop(t *testing.T) {
	svc, store, _, emitter := newExperimentFixture(t)
	completionID := models.NewCompletionID()
	store.experiment = &models.Experiment{
		ID:      "exp-1",
		AgentID: "my-agent",
		Outputs: []models.ExperimentOutput{{InputID: "in1", VersionID: "v1", CompletionID: completionID}},
	}

	require.NoError(t, svc.ExecuteExperimentCompletion(context.Background(), 1, "exp-1", completionID))
	require.NoError(t, svc.ExecuteExperimentCompletion(context.Background(), 1, "exp-1", completionID))
	assert.Len(t, emitter.records, 1, "replayed task must not run the completion twice")
}

func TestExecuteExperimentCompletion_UnregisteredCompletion(t *testing.T) {
	svc, store, _, _ := newExperimentFixture(t)
	store.experiment = &models.Experiment{ID: "exp-1", AgentID: "my-agent"}

	err := svc.ExecuteExperimentCompletion(context.Background(), 1, "exp-1", models.NewCompletionID())
	require.Error(t, err)
	assert.True(t, apperr.IsFatal(err), "unregistered completion must not be retried")
}

func TestCreateExperiment_RequiresAgent(t *testing.T) {
	svc, _, _, _ := newExperimentFixture(t)
	_, err := svc.Create(context.Background(), 1, &models.Experiment{Title: "no agent"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}

func TestCreateExperiment_StripsExternalPrefix(t *testing.T) {
	svc, store, _, _ := newExperimentFixture(t)
	e, err := svc.Create(context.Background(), 1, &models.Experiment{
		ID:      "anotherai/experiment/exp-7",
		AgentID: "my-agent",
	})
	require.NoError(t, err)
	assert.Equal(t, "exp-7", e.ID)
	assert.Equal(t, "exp-7", store.experiment.ID)
}
