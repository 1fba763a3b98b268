package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error. It decides the transport status.
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeInternal     ErrorType = "internal"
)

// ErrorCode is the machine-readable kind of a failure, finer than ErrorType
type ErrorCode string

const (
	CodeInvalidCredentials   ErrorCode = "invalid_credentials"
	CodeExpired              ErrorCode = "expired"
	CodeMalformed            ErrorCode = "malformed"
	CodeRevoked              ErrorCode = "revoked"
	CodeInvalidTokenType     ErrorCode = "invalid_token_type"
	CodeInvalidAPIKey        ErrorCode = "invalid_api_key"
	CodeUserInactive         ErrorCode = "user_inactive"
	CodeFirmNotFound         ErrorCode = "firm_not_found"
	CodePermissionDenied     ErrorCode = "permission_denied"
	CodeTierInsufficient     ErrorCode = "tier_insufficient"
	CodePermissionEscalation ErrorCode = "permission_escalation"
	CodeQuotaExceeded        ErrorCode = "quota_exceeded"
	CodeConcurrencyExceeded  ErrorCode = "concurrency_exceeded"
	CodeAPIKeyNotFound       ErrorCode = "api_key_not_found"
	CodeValidation           ErrorCode = "validation"
	CodeInternal             ErrorCode = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Targets with a Code match on Code, others on Type.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of the error carrying an extra detail.
// Sentinels are shared, so they are never mutated in place.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// WithMessage returns a copy of the error with a more specific message
func (e *DomainError) WithMessage(message string) *DomainError {
	cp := *e
	cp.Message = message
	return &cp
}

// Wrap returns a copy of the error with err as the cause
func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Authentication errors
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, CodeInvalidCredentials, "invalid email or password", nil)
	ErrExpired            = NewDomainError(ErrorTypeUnauthorized, CodeExpired, "token has expired", nil)
	ErrMalformed          = NewDomainError(ErrorTypeUnauthorized, CodeMalformed, "token is malformed", nil)
	ErrRevoked            = NewDomainError(ErrorTypeUnauthorized, CodeRevoked, "token has been revoked", nil)
	ErrInvalidTokenType   = NewDomainError(ErrorTypeUnauthorized, CodeInvalidTokenType, "invalid token type", nil)
	ErrInvalidAPIKey      = NewDomainError(ErrorTypeUnauthorized, CodeInvalidAPIKey, "invalid or expired API key", nil)
	ErrUserInactive       = NewDomainError(ErrorTypeUnauthorized, CodeUserInactive, "user not found or inactive", nil)

	// Authorization errors
	ErrPermissionDenied     = NewDomainError(ErrorTypeForbidden, CodePermissionDenied, "insufficient permissions", nil)
	ErrTierInsufficient     = NewDomainError(ErrorTypeForbidden, CodeTierInsufficient, "subscription tier insufficient", nil)
	ErrPermissionEscalation = NewDomainError(ErrorTypeForbidden, CodePermissionEscalation, "cannot grant permissions you do not have", nil)

	// Rate limit errors
	ErrQuotaExceeded       = NewDomainError(ErrorTypeRateLimit, CodeQuotaExceeded, "rate limit exceeded", nil)
	ErrConcurrencyExceeded = NewDomainError(ErrorTypeRateLimit, CodeConcurrencyExceeded, "concurrent request limit exceeded", nil)

	// Not found errors
	ErrAPIKeyNotFound = NewDomainError(ErrorTypeNotFound, CodeAPIKeyNotFound, "API key not found", nil)

	// Validation errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, CodeValidation, "invalid input", nil)

	// Internal errors. A firm that vanished under an active user is a data problem, not a client one.
	ErrFirmNotFound = NewDomainError(ErrorTypeInternal, CodeFirmNotFound, "firm not found", nil)
	ErrInternal     = NewDomainError(ErrorTypeInternal, CodeInternal, "internal server error", nil)
)

// NewQuotaExceeded builds a quota error for the window that was violated
func NewQuotaExceeded(window string, retryAfterSeconds int64, limit int) *DomainError {
	return ErrQuotaExceeded.
		WithMessage(fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window)).
		WithDetail("window", window).
		WithDetail("retry_after", retryAfterSeconds).
		WithDetail("limit", limit)
}

// NewConcurrencyExceeded builds a concurrency error for the given cap
func NewConcurrencyExceeded(limit int) *DomainError {
	return ErrConcurrencyExceeded.
		WithMessage(fmt.Sprintf("concurrent request limit exceeded: %d", limit)).
		WithDetail("limit", limit)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrorTypeRateLimit
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the ErrorCode of a domain error, or empty string if not a domain error
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, CodeInternal, message, err)
}
