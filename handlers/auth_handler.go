package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	authz "github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/internal/observability"
	"github.com/upb/firmauth/middleware"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/services"
	authsvc "github.com/upb/firmauth/services/auth"
	"github.com/upb/firmauth/services/ratelimit"
	"github.com/upb/firmauth/utils"
	"go.uber.org/zap"
)

// AuthService is the subset of the auth service the handlers call
type AuthService interface {
	Login(ctx context.Context, req authsvc.LoginRequest) (*authsvc.LoginResponse, error)
	Renew(ctx context.Context, renewalToken string) (*authsvc.RefreshResponse, error)
	Logout(ctx context.Context, p authz.Principal, sessionToken, renewalToken string) error
	Profile(ctx context.Context, p authz.Principal) (*authsvc.ProfileResponse, error)
	AvailablePermissions(p authz.Principal) []models.PermissionInfo
	IssueAPIKey(ctx context.Context, p authz.Principal, req models.APIKeyRequest) (*models.CreatedAPIKey, error)
	ListAPIKeys(ctx context.Context, p authz.Principal) ([]models.APIKeySummary, error)
	RevokeAPIKey(ctx context.Context, p authz.Principal, keyID uuid.UUID) error
}

// QuotaReader exposes the quota table and counters
type QuotaReader interface {
	Policies() []models.RateLimitPolicy
	Policy(tier models.SubscriptionTier) models.RateLimitPolicy
	UsageSnapshot(ctx context.Context, id ratelimit.Identifier) (ratelimit.Usage, error)
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest optionally names a renewal token to revoke with the session
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// PermissionsResponse lists the caller's permissions
type PermissionsResponse struct {
	Role        models.Role             `json:"role"`
	Permissions []models.Permission     `json:"permissions"`
	Available   []models.PermissionInfo `json:"available"`
}

// RateLimitsResponse is the tier table with the caller's tier
type RateLimitsResponse struct {
	CurrentTier models.SubscriptionTier  `json:"current_tier"`
	Policies    []models.RateLimitPolicy `json:"policies"`
}

// UsageResponse is the caller's current quota usage
type UsageResponse struct {
	Tier   models.SubscriptionTier `json:"tier"`
	Usage  ratelimit.Usage         `json:"usage"`
	Limits models.RateLimitPolicy  `json:"limits"`
}

// AuthHandler handles the /auth endpoints
type AuthHandler struct {
	auth   AuthService
	quotas QuotaReader
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth AuthService, quotas QuotaReader, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		quotas: quotas,
		logger: logger,
	}
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	var req authsvc.LoginRequest
	if !h.decode(w, r, &req, logger) {
		return
	}

	resp, err := h.auth.Login(ctx, req)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, resp); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	var req RefreshRequest
	if !h.decode(w, r, &req, logger) {
		return
	}

	resp, err := h.auth.Renew(ctx, req.RefreshToken)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, resp); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleLogout handles POST /auth/logout. The bearer session token is
// denylisted, and the caller's renewal token too when the body names one.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, logger, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req LogoutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return
		}
	}

	if err := h.auth.Logout(r.Context(), p, middleware.BearerToken(r), req.RefreshToken); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Info("user logged out")
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{Message: "Successfully logged out"})
}

// HandleMe handles GET /auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, logger, ok := h.principal(w, r)
	if !ok {
		return
	}

	resp, err := h.auth.Profile(r.Context(), p)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	_ = utils.WriteOK(w, resp)
}

// HandlePermissions handles GET /auth/permissions
func (h *AuthHandler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	p, _, ok := h.principal(w, r)
	if !ok {
		return
	}

	_ = utils.WriteOK(w, PermissionsResponse{
		Role:        p.Role,
		Permissions: p.Permissions.Slice(),
		Available:   h.auth.AvailablePermissions(p),
	})
}

// HandleRateLimits handles GET /auth/rate-limits
func (h *AuthHandler) HandleRateLimits(w http.ResponseWriter, r *http.Request) {
	p, _, ok := h.principal(w, r)
	if !ok {
		return
	}

	_ = utils.WriteOK(w, RateLimitsResponse{
		CurrentTier: p.SubscriptionTier,
		Policies:    h.quotas.Policies(),
	})
}

// HandleUsage handles GET /auth/usage
func (h *AuthHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	p, logger, ok := h.principal(w, r)
	if !ok {
		return
	}

	usage, err := h.quotas.UsageSnapshot(r.Context(), ratelimit.ForPrincipal(p))
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	_ = utils.WriteOK(w, UsageResponse{
		Tier:   p.SubscriptionTier,
		Usage:  usage,
		Limits: h.quotas.Policy(p.SubscriptionTier),
	})
}

// HandleCreateAPIKey handles POST /auth/api-keys
func (h *AuthHandler) HandleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	p, logger, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req models.APIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	created, err := h.auth.IssueAPIKey(r.Context(), p, req)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	_ = utils.WriteCreated(w, created)
}

// HandleListAPIKeys handles GET /auth/api-keys
func (h *AuthHandler) HandleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	p, logger, ok := h.principal(w, r)
	if !ok {
		return
	}

	keys, err := h.auth.ListAPIKeys(r.Context(), p)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	_ = utils.WriteOK(w, keys)
}

// HandleRevokeAPIKey handles DELETE /auth/api-keys/{id}
func (h *AuthHandler) HandleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	p, logger, ok := h.principal(w, r)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, services.ErrAPIKeyNotFound, logger)
		return
	}

	if err := h.auth.RevokeAPIKey(r.Context(), p, keyID); err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	utils.WriteNoContent(w)
}

func (h *AuthHandler) principal(w http.ResponseWriter, r *http.Request) (authz.Principal, *zap.Logger, bool) {
	logger := observability.WithRequest(r.Context(), h.logger)
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		logger.Error("principal not found in context")
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return authz.Principal{}, logger, false
	}
	return p, logger, true
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}
