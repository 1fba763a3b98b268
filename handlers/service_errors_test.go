package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/firmauth/services"
	"github.com/upb/firmauth/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
		expectedCode   string
	}{
		{"invalid credentials", services.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized", "invalid_credentials"},
		{"expired", services.ErrExpired, http.StatusUnauthorized, "unauthorized", "expired"},
		{"revoked", services.ErrRevoked, http.StatusUnauthorized, "unauthorized", "revoked"},
		{"user inactive", services.ErrUserInactive, http.StatusUnauthorized, "unauthorized", "user_inactive"},
		{"permission denied", services.ErrPermissionDenied, http.StatusForbidden, "forbidden", "permission_denied"},
		{"tier insufficient", services.ErrTierInsufficient, http.StatusForbidden, "forbidden", "tier_insufficient"},
		{"escalation", services.ErrPermissionEscalation, http.StatusForbidden, "forbidden", "permission_escalation"},
		{"concurrency", services.NewConcurrencyExceeded(5), http.StatusTooManyRequests, "rate_limit_exceeded", "concurrency_exceeded"},
		{"key not found", services.ErrAPIKeyNotFound, http.StatusNotFound, "not_found", "api_key_not_found"},
		{"validation", services.ErrInvalidInput, http.StatusBadRequest, "bad_request", "validation"},
		{"firm not found is a 500", services.ErrFirmNotFound, http.StatusInternalServerError, "internal_error", ""},
		{"unknown error", errors.New("some unknown error"), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

			assert.Equal(t, tt.expectedError, response.Error)
			assert.Equal(t, tt.expectedCode, response.Code)
			assert.NotEmpty(t, response.Message)
		})
	}
}

func TestHandleServiceError_InternalHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, services.WrapInternal("quota store unavailable", errors.New("dial tcp 10.0.0.5:6379")), zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestHandleServiceError_QuotaSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, services.NewQuotaExceeded("minute", 60, 30), zap.NewNop())

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "quota_exceeded", response.Code)
	assert.Equal(t, float64(30), response.Details["limit"])
	assert.Equal(t, "minute", response.Details["window"])
}

func TestHandleServiceError_UnauthorizedChallenge(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, services.ErrMalformed, zap.NewNop())
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestHandleServiceErrorNil(t *testing.T) {
	w := httptest.NewRecorder()

	HandleServiceError(w, nil, zap.NewNop())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("custom validation error", func(t *testing.T) {
		err := &utils.ValidationError{
			Message: "Validation failed",
			Fields:  map[string]string{"email": "email is required"},
		}

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "bad_request", response.Error)
		assert.Equal(t, "email is required", response.Details["email"])
	})

	t.Run("generic error", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleValidationError(w, errors.New("generic validation error"), logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "generic validation error")
	})
}
