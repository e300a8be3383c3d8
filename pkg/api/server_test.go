package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/auth"
	"github.com/anotherai-dev/anotherai/pkg/config"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/services"
	"github.com/anotherai-dev/anotherai/pkg/storage"
)

type stubTenantStore struct {
	hash   string
	tenant models.Tenant
}

func (s *stubTenantStore) TenantByAPIKeyHash(ctx context.Context, hash string) (*models.Tenant, *models.APIKey, error) {
	if hash != s.hash {
		return nil, nil, apperr.InvalidToken("unknown api key")
	}
	t := s.tenant
	return &t, &models.APIKey{ID: "key_1", TenantUID: t.UID}, nil
}

func (s *stubTenantStore) TenantByOwner(ctx context.Context, orgID, ownerID string) (*models.Tenant, error) {
	return nil, apperr.NotFound("tenant", "no tenant for owner %s", ownerID)
}

func (s *stubTenantStore) CreateTenant(ctx context.Context, t *models.Tenant) error { return nil }

func (s *stubTenantStore) TouchAPIKey(ctx context.Context, keyID string, at time.Time) error {
	return nil
}

type stubViewStore struct {
	views   []models.View
	folders []models.ViewFolder
}

func (s *stubViewStore) CreateView(ctx context.Context, tenantUID int64, v *models.View) error {
	s.views = append(s.views, *v)
	return nil
}

func (s *stubViewStore) UpdateView(ctx context.Context, tenantUID int64, id string, patch storage.ViewPatch) error {
	return nil
}

func (s *stubViewStore) ListViews(ctx context.Context, tenantUID int64) ([]models.View, error) {
	return s.views, nil
}

func (s *stubViewStore) DeleteView(ctx context.Context, tenantUID int64, id string) error {
	return nil
}

func (s *stubViewStore) CreateFolder(ctx context.Context, tenantUID int64, f *models.ViewFolder) error {
	s.folders = append(s.folders, *f)
	return nil
}

func (s *stubViewStore) ListFolders(ctx context.Context, tenantUID int64) ([]models.ViewFolder, error) {
	return s.folders, nil
}

func (s *stubViewStore) DeleteFolder(ctx context.Context, tenantUID int64, id string) error {
	return nil
}

type stubQueryStore struct{}

func (s *stubQueryStore) EnsureReadonlyUser(ctx context.Context, tenantUID int64) error { return nil }

func (s *stubQueryStore) RawQuery(ctx context.Context, tenantUID int64, query string) ([]map[string]any, error) {
	return []map[string]any{}, nil
}

type stubCompletionStore struct {
	records map[uuid.UUID]models.AgentCompletion
}

func (s *stubCompletionStore) StoreCompletion(ctx context.Context, c *models.AgentCompletion) error {
	if s.records == nil {
		s.records = map[uuid.UUID]models.AgentCompletion{}
	}
	s.records[c.ID] = *c
	return nil
}

func (s *stubCompletionStore) CompletionByID(ctx context.Context, tenantUID int64, id uuid.UUID) (*models.AgentCompletion, error) {
	c, ok := s.records[id]
	if !ok {
		return nil, apperr.NotFound("completion", "completion %s not found", id)
	}
	return &c, nil
}

type stubDeploymentStore struct {
	deployments map[string]models.Deployment
}

func (s *stubDeploymentStore) UpsertDeployment(ctx context.Context, tenantUID int64, d *models.Deployment) error {
	if s.deployments == nil {
		s.deployments = map[string]models.Deployment{}
	}
	s.deployments[d.ID] = *d
	return nil
}

func (s *stubDeploymentStore) DeploymentByID(ctx context.Context, tenantUID int64, id string) (*models.Deployment, error) {
	d, ok := s.deployments[id]
	if !ok {
		return nil, apperr.NotFound("deployment", "deployment %s not found", id)
	}
	return &d, nil
}

func (s *stubDeploymentStore) ListDeployments(ctx context.Context, tenantUID int64, agentID, cursor string, limit int) ([]models.Deployment, string, error) {
	out := make([]models.Deployment, 0, len(s.deployments))
	for _, d := range s.deployments {
		out = append(out, d)
	}
	return out, "", nil
}

func (s *stubDeploymentStore) ArchiveDeployment(ctx context.Context, tenantUID int64, id string) error {
	return nil
}

type apiFixture struct {
	server      *Server
	apiKey      string
	tenant      models.Tenant
	tenantStore *stubTenantStore
	views       *stubViewStore
	completions *stubCompletionStore
	deployments *stubDeploymentStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	secret, _, hash, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	tenant := models.Tenant{UID: 7, Slug: "acme", OwnerID: "user_1", CreditsUSD: 5}
	tenantStore := &stubTenantStore{hash: hash, tenant: tenant}
	views := &stubViewStore{}
	completions := &stubCompletionStore{}
	deployments := &stubDeploymentStore{}

	verifier, err := auth.NewVerifier(context.Background(), config.AuthConfig{}, true)
	require.NoError(t, err)

	server := NewServer(Options{
		Authenticator: auth.New(tenantStore, verifier),
		Completions:   services.NewCompletionService(completions),
		Deployments:   services.NewDeploymentService(deployments),
		Views:         services.NewViewService(views, &stubQueryStore{}),
		AuthServerURL: "https://auth.example.com",
	})

	return &apiFixture{
		server:      server,
		apiKey:      secret,
		tenant:      tenant,
		tenantStore: tenantStore,
		views:       views,
		completions: completions,
		deployments: deployments,
	}
}

// do runs one authenticated request through the full middleware chain and
// decodes the JSON body.
func (f *apiFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func TestAuthentication_MissingHeader(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/views", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var envelope struct {
		Error struct {
			Code       string `json:"code"`
			StatusCode int    `json:"status_code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "invalid_token", envelope.Error.Code)
	require.Equal(t, http.StatusUnauthorized, envelope.Error.StatusCode)
}

func TestAuthentication_UnknownKey(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/views", nil)
	req.Header.Set("Authorization", "Bearer aai-not-a-real-key")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreditGate_BlocksExhaustedTenant(t *testing.T) {
	f := newAPIFixture(t)
	failedAt := time.Now()
	f.tenantStore.tenant.CreditsUSD = 0
	f.tenantStore.tenant.PaymentFailure = &failedAt

	rec, body := f.do(t, http.MethodPost, "/v1/chat/completions", map[string]any{
		"model":    "gpt-4o",
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "payment_required", errBody["code"])
}

func TestRequestID_EchoedBack(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/probes/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestRequestID_MintedWhenAbsent(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/probes/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
