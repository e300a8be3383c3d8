package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/auth"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/tasks"
)

const tenantContextKey = "tenant"

// requestIDHeader carries the request correlation id in and out.
const requestIDHeader = "X-Request-Id"

// tenantFrom returns the authenticated tenant placed by the auth
// middleware.
func tenantFrom(c *echo.Context) *models.Tenant {
	t, _ := c.Get(tenantContextKey).(*models.Tenant)
	return t
}

// requestID echoes the caller's request id or mints one.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				var raw [8]byte
				if _, err := rand.Read(raw[:]); err == nil {
					id = hex.EncodeToString(raw[:])
				}
			}
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// accessLog emits one structured line per request.
func accessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)
			status := 0
			if res, uerr := echo.UnwrapResponse(c.Response()); uerr == nil {
				status = res.Status
			}
			if err != nil {
				status = apperr.StatusOf(err)
			}
			slog.Info("Request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(requestIDHeader))
			return err
		}
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// authenticate resolves the bearer token to a tenant and stores it on the
// request context. A user_connected task records activity off the request
// path.
func (s *Server) authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			tenant, err := s.authenticator.Authenticate(c.Request().Context(), c.Request().Header.Get("Authorization"))
			if err != nil {
				return err
			}
			c.Set(tenantContextKey, tenant)

			if s.publisher != nil {
				payload := tasks.UserConnectedPayload{TenantUID: tenant.UID, UserID: tenant.OwnerID}
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := s.publisher.Publish(ctx, tasks.TaskUserConnected, payload); err != nil {
						slog.Warn("Failed to publish user_connected", "tenant_uid", payload.TenantUID, "error", err)
					}
				}()
			}
			return next(c)
		}
	}
}

// creditGate rejects billable requests from tenants whose balance is
// exhausted after a failed payment.
func (s *Server) creditGate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			tenant := tenantFrom(c)
			if tenant == nil {
				return apperr.InvalidToken("request is not authenticated")
			}
			if err := auth.CheckCredits(tenant); err != nil {
				return err
			}
			return next(c)
		}
	}
}
