package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/upb/firmauth/services"
	"github.com/upb/firmauth/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. Internal errors
// are logged and surfaced with a generic message.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		logger.Error("unhandled error type", zap.Error(err))
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "", "An unexpected error occurred", nil, logger)
		return
	}

	code := string(domainErr.Code)

	switch domainErr.Type {
	case services.ErrorTypeNotFound:
		writeErrorResponse(w, http.StatusNotFound, "not_found", code, domainErr.Message, domainErr.Details, logger)

	case services.ErrorTypeValidation:
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", code, domainErr.Message, domainErr.Details, logger)

	case services.ErrorTypeUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", code, domainErr.Message, domainErr.Details, logger)

	case services.ErrorTypeForbidden:
		writeErrorResponse(w, http.StatusForbidden, "forbidden", code, domainErr.Message, domainErr.Details, logger)

	case services.ErrorTypeRateLimit:
		if retryAfter, ok := domainErr.Details["retry_after"]; ok {
			w.Header().Set("Retry-After", fmt.Sprint(retryAfter))
		}
		writeErrorResponse(w, http.StatusTooManyRequests, "rate_limit_exceeded", code, domainErr.Message, domainErr.Details, logger)

	default:
		logger.Error("internal server error",
			zap.String("code", code),
			zap.Error(err))
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "", "An internal error occurred", nil, logger)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, name, code, message string, details map[string]interface{}, logger *zap.Logger) {
	if len(details) == 0 {
		details = nil
	}
	if err := utils.WriteJSON(w, status, utils.ErrorResponse{
		Error:   name,
		Code:    code,
		Message: message,
		Details: details,
	}); err != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
