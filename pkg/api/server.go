// Package api exposes the gateway's HTTP surface on echo: the
// OpenAI-compatible chat-completions endpoint, completion import/fetch,
// agents, views, experiments, deployments, annotations and the probe and
// OAuth discovery endpoints. Handlers bind, delegate to the service layer
// and map typed errors into the wire envelope; no business logic lives
// here.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/auth"
	"github.com/anotherai-dev/anotherai/pkg/runner"
	"github.com/anotherai-dev/anotherai/pkg/services"
)

// Server is the HTTP server.
type Server struct {
	echo *echo.Echo
	http *http.Server

	authenticator *auth.Authenticator
	runner        *runner.Runner
	publisher     services.Publisher

	agents      *services.AgentService
	completions *services.CompletionService
	deployments *services.DeploymentService
	experiments *services.ExperimentService
	views       *services.ViewService
	annotations *services.AnnotationService

	readiness []func(context.Context) error
	// authServerURL is the upstream the OAuth discovery endpoints redirect
	// to; empty disables the redirect (404).
	authServerURL string
}

// Options carries the server's dependencies.
type Options struct {
	Authenticator *auth.Authenticator
	Runner        *runner.Runner
	Publisher     services.Publisher

	Agents      *services.AgentService
	Completions *services.CompletionService
	Deployments *services.DeploymentService
	Experiments *services.ExperimentService
	Views       *services.ViewService
	Annotations *services.AnnotationService

	// Readiness checks run on /probes/readiness (store pings).
	Readiness     []func(context.Context) error
	AuthServerURL string
}

// NewServer builds the server and registers all routes.
func NewServer(opts Options) *Server {
	s := &Server{
		echo:          echo.New(),
		authenticator: opts.Authenticator,
		runner:        opts.Runner,
		publisher:     opts.Publisher,
		agents:        opts.Agents,
		completions:   opts.Completions,
		deployments:   opts.Deployments,
		experiments:   opts.Experiments,
		views:         opts.Views,
		annotations:   opts.Annotations,
		readiness:     opts.Readiness,
		authServerURL: opts.AuthServerURL,
	}
	s.echo.HTTPErrorHandler = errorHandler
	s.echo.Use(requestID(), accessLog(), requestMetrics(), securityHeaders())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo

	// Probes and discovery need no authentication.
	e.GET("/probes/health", s.healthHandler)
	e.HEAD("/probes/health", s.healthHandler)
	e.GET("/probes/readiness", s.readinessHandler)
	e.HEAD("/probes/readiness", s.readinessHandler)
	e.GET("/.well-known/oauth-protected-resource", s.protectedResourceHandler)
	e.GET("/.well-known/oauth-protected-resource/mcp", s.protectedResourceHandler)
	e.GET("/.well-known/oauth-authorization-server", s.authorizationServerHandler)
	e.GET("/.well-known/oauth-authorization-server/mcp", s.authorizationServerHandler)

	v1 := e.Group("/v1", s.authenticate())

	// Chat completions, including the two historical path aliases some
	// OpenAI clients produce from sloppy base-url joining.
	for _, path := range []string{"/chat/completions", "//chat/completions"} {
		v1.POST(path, s.chatCompletionsHandler, s.creditGate())
	}
	e.POST("/v1chat/completions", s.chatCompletionsHandler, s.authenticate(), s.creditGate())

	v1.GET("/models", s.listModelsHandler)
	v1.POST("/utils/extract_variables", s.extractVariablesHandler)

	v1.POST("/completions", s.importCompletionHandler)
	v1.GET("/completions/:id", s.getCompletionHandler)

	v1.GET("/agents", s.listAgentsHandler)
	v1.POST("/agents", s.createAgentHandler)

	v1.GET("/views", s.listViewsHandler)
	v1.POST("/views", s.createViewHandler)
	v1.PATCH("/views/:id", s.updateViewHandler)
	v1.DELETE("/views/:id", s.deleteViewHandler)
	v1.POST("/views/query", s.queryViewHandler)
	v1.GET("/view-folders", s.listFoldersHandler)
	v1.POST("/view-folders", s.createFolderHandler)
	v1.DELETE("/view-folders/:id", s.deleteFolderHandler)

	v1.GET("/experiments", s.listExperimentsHandler)
	v1.POST("/experiments", s.createExperimentHandler)
	v1.GET("/experiments/:id", s.getExperimentHandler)
	v1.DELETE("/experiments/:id", s.deleteExperimentHandler)
	v1.POST("/experiments/:id/inputs", s.addExperimentInputsHandler)
	v1.POST("/experiments/:id/versions", s.addExperimentVersionsHandler)
	v1.POST("/experiments/:id/completions", s.addExperimentCompletionsHandler)

	v1.GET("/deployments", s.listDeploymentsHandler)
	v1.POST("/deployments", s.upsertDeploymentHandler)
	v1.GET("/deployments/:id", s.getDeploymentHandler)
	v1.DELETE("/deployments/:id", s.archiveDeploymentHandler)

	v1.GET("/annotations", s.listAnnotationsHandler)
	v1.POST("/annotations", s.createAnnotationHandler)
	v1.DELETE("/annotations/:id", s.deleteAnnotationHandler)
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
