package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) healthHandler(c *echo.Context) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(http.StatusOK)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports ready once every registered dependency check
// (store pings) passes.
func (s *Server) readinessHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	for _, check := range s.readiness {
		if err := check(ctx); err != nil {
			if c.Request().Method == http.MethodHead {
				return c.NoContent(http.StatusServiceUnavailable)
			}
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(http.StatusOK)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// protectedResourceHandler serves the OAuth protected-resource descriptor
// used by MCP clients to locate the authorization server.
func (s *Server) protectedResourceHandler(c *echo.Context) error {
	scheme := "https"
	if c.Request().TLS == nil && c.Request().Header.Get("X-Forwarded-Proto") == "" {
		scheme = "http"
	}
	resource := scheme + "://" + c.Request().Host
	descriptor := map[string]any{
		"resource":                 resource,
		"bearer_methods_supported": []string{"header"},
	}
	if s.authServerURL != "" {
		descriptor["authorization_servers"] = []string{s.authServerURL}
	}
	return c.JSON(http.StatusOK, descriptor)
}

// authorizationServerHandler redirects OAuth metadata discovery to the
// upstream authorization server.
func (s *Server) authorizationServerHandler(c *echo.Context) error {
	if s.authServerURL == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no authorization server configured")
	}
	return c.Redirect(http.StatusTemporaryRedirect,
		s.authServerURL+"/.well-known/oauth-authorization-server")
}
