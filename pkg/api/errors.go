package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
)

// errorEnvelope is the wire form of every error response.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	ObjectType string `json:"object_type,omitempty"`
}

// errorHandler maps typed application errors into the error envelope.
// Unknown errors become opaque 500s; their detail goes to the log, not the
// wire.
func errorHandler(c *echo.Context, err error) {
	if res, uerr := echo.UnwrapResponse(c.Response()); uerr == nil && res.Committed {
		return
	}

	body := errorBody{
		Code:       string(apperr.CodeInternal),
		Message:    "internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	var ae *apperr.Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
		body.Code = string(ae.Code)
		body.Message = ae.Message
		body.StatusCode = ae.Status
		body.ObjectType = ae.ObjectType
	case errors.As(err, &he):
		body.Code = string(apperr.CodeBadRequest)
		if he.Code >= http.StatusInternalServerError {
			body.Code = string(apperr.CodeInternal)
		}
		body.StatusCode = he.Code
		body.Message = he.Message
	default:
		slog.Error("Unhandled request error",
			"method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
	}

	if body.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Request().Method, "path", c.Request().URL.Path,
			"status", body.StatusCode, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(body.StatusCode)
		return
	}
	_ = c.JSON(body.StatusCode, errorEnvelope{Error: body})
}
