package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		code      Code
		status    int
		retryable bool
	}{
		{"invalid_run_options", InvalidRunOptions("unknown model %q", "gpt-5000"), CodeInvalidRunOptions, http.StatusBadRequest, false},
		{"bad_request", BadRequest("missing variable"), CodeBadRequest, http.StatusBadRequest, false},
		{"invalid_file", InvalidFile("unsupported url"), CodeInvalidFile, http.StatusBadRequest, false},
		{"entity_too_large", EntityTooLarge("21 MiB"), CodeEntityTooLarge, http.StatusRequestEntityTooLarge, false},
		{"invalid_token", InvalidToken("bad signature"), CodeInvalidToken, http.StatusUnauthorized, false},
		{"object_not_found", NotFound("completion", "no such id"), CodeObjectNotFound, http.StatusNotFound, false},
		{"duplicate_value", Duplicate("output already set"), CodeDuplicateValue, http.StatusConflict, false},
		{"provider_transient", ProviderTransient(nil, "rate limited"), CodeProviderTransient, http.StatusBadGateway, true},
		{"provider_terminal", ProviderTerminal(http.StatusForbidden, nil, "quota"), CodeProviderTerminal, http.StatusForbidden, false},
		{"internal", Internal(nil, "boom"), CodeInternal, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			assert.Equal(t, tt.status, StatusOf(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestWrappedExtraction(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("calling provider: %w", ProviderTransient(cause, "network failure"))

	assert.Equal(t, CodeProviderTransient, CodeOf(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, cause))
}

func TestFatalMarker(t *testing.T) {
	err := Internal(nil, "schema drift").AsFatal()
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))

	assert.False(t, IsFatal(Internal(nil, "transient")))
}

func TestUnknownErrorDefaults(t *testing.T) {
	err := errors.New("plain")
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.False(t, IsRetryable(err))
}
