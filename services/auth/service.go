// Package auth implements login, token verification and renewal, session
// revocation, API key management and the permission and tier checks.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/firmauth/config"
	authz "github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/internal/observability"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/repositories"
	"github.com/upb/firmauth/services"
	"github.com/upb/firmauth/tokens"
	"go.uber.org/zap"
)

// denylistPrefix namespaces revoked tokens in the quota store
const denylistPrefix = "blacklist:"

// ActivityRecorder persists last-login and last-used timestamps
type ActivityRecorder interface {
	RecordLogin(ctx context.Context, userID uuid.UUID, at time.Time)
	RecordAPIKeyUse(ctx context.Context, keyID uuid.UUID, at time.Time)
}

// Deps holds everything the Service needs. All fields are required.
type Deps struct {
	Users     repositories.UserRepository
	Firms     repositories.FirmRepository
	APIKeys   repositories.APIKeyRepository
	TxManager repositories.TransactionManager
	Verifier  CredentialVerifier
	Codec     *tokens.Codec
	Store     repositories.QuotaStore
	Activity  ActivityRecorder
	Logger    *zap.Logger
	Config    config.AuthConfig
}

// Service is the authentication and authorization core
type Service struct {
	users     repositories.UserRepository
	firms     repositories.FirmRepository
	apiKeys   repositories.APIKeyRepository
	txManager repositories.TransactionManager
	verifier  CredentialVerifier
	codec     *tokens.Codec
	store     repositories.QuotaStore
	activity  ActivityRecorder
	logger    *zap.Logger
	cfg       config.AuthConfig

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a new auth Service
func NewService(d Deps) *Service {
	if d.Config.APIKeyPrefix == "" {
		d.Config.APIKeyPrefix = "alg_"
	}
	if d.Config.DefaultAPIKeyTTLDays == 0 {
		d.Config.DefaultAPIKeyTTLDays = models.DefaultAPIKeyTTLDays
	}
	return &Service{
		users:     d.Users,
		firms:     d.Firms,
		apiKeys:   d.APIKeys,
		txManager: d.TxManager,
		verifier:  d.Verifier,
		codec:     d.Codec,
		store:     d.Store,
		activity:  d.Activity,
		logger:    d.Logger,
		cfg:       d.Config,
	}
}

// LoginRequest is the body of a password login
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// LoginResponse carries the session and renewal tokens issued at login
type LoginResponse struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	TokenType    string             `json:"token_type"`
	ExpiresIn    int64              `json:"expires_in"`
	User         models.UserProfile `json:"user"`
	Firm         *models.Firm       `json:"firm"`
}

// RefreshResponse carries a renewed session token
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ProfileResponse is the current user's profile with their firm
type ProfileResponse struct {
	User           models.UserProfile   `json:"user"`
	Firm           *models.Firm         `json:"firm"`
	CredentialKind authz.CredentialKind `json:"credential_kind"`
}

// Authenticate checks an email and password. Every failure cause yields the
// same ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Spend the same hashing time as a real comparison.
			s.verifier.Verify(password, s.dummy())
			s.recordAttempt("password", services.ErrInvalidCredentials)
			return nil, services.ErrInvalidCredentials
		}
		s.logger.Error("failed to load user for login", zap.Error(err))
		return nil, services.WrapInternal("failed to load user", err)
	}

	if !user.IsActive || !s.verifier.Verify(password, user.PasswordHash) {
		s.recordAttempt("password", services.ErrInvalidCredentials)
		return nil, services.ErrInvalidCredentials
	}

	s.recordAttempt("password", nil)
	s.activity.RecordLogin(ctx, user.ID, s.codec.Now())
	return user, nil
}

// Login authenticates and issues a session and a renewal token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	firm, err := s.loadFirm(ctx, user.FirmID)
	if err != nil {
		return nil, err
	}

	principal := principalFor(user, firm, authz.CredentialSession)

	access, err := s.codec.Issue(principal, authz.CredentialSession, s.cfg.SessionTokenTTL)
	if err != nil {
		return nil, services.WrapInternal("failed to issue session token", err)
	}
	refresh, err := s.codec.Issue(principal, authz.CredentialRenewal, s.cfg.RenewalTokenTTL)
	if err != nil {
		return nil, services.WrapInternal("failed to issue renewal token", err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("firm_id", firm.ID.String()),
		zap.String("role", string(user.Role)))

	return &LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.SessionTokenTTL.Seconds()),
		User:         user.Profile(principal.Permissions.Slice()),
		Firm:         firm,
	}, nil
}

// VerifySession resolves a session token to a Principal. Only the denylist
// lookup touches the store; repositories are not consulted.
func (s *Service) VerifySession(ctx context.Context, token string) (authz.Principal, error) {
	p, err := s.verifySession(ctx, token)
	s.recordAttempt("session", err)
	return p, err
}

func (s *Service) verifySession(ctx context.Context, token string) (authz.Principal, error) {
	if err := s.checkDenylist(ctx, token); err != nil {
		return authz.Principal{}, err
	}

	claims, err := s.codec.Decode(token)
	if err != nil {
		return authz.Principal{}, err
	}
	if claims.Kind() != authz.CredentialSession {
		return authz.Principal{}, services.ErrInvalidTokenType
	}

	p, err := claims.Principal()
	if err != nil {
		return authz.Principal{}, services.ErrMalformed.Wrap(err)
	}
	return p, nil
}

// Renew exchanges a renewal token for a new session token built from the
// user's current role, permissions and firm tier.
func (s *Service) Renew(ctx context.Context, renewalToken string) (*RefreshResponse, error) {
	resp, err := s.renew(ctx, renewalToken)
	s.recordAttempt("renewal", err)
	return resp, err
}

func (s *Service) renew(ctx context.Context, renewalToken string) (*RefreshResponse, error) {
	if err := s.checkDenylist(ctx, renewalToken); err != nil {
		return nil, err
	}

	claims, err := s.codec.Decode(renewalToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind() != authz.CredentialRenewal {
		return nil, services.ErrInvalidTokenType
	}

	user, err := s.loadActiveUser(ctx, claims.ParsedUserID())
	if err != nil {
		return nil, err
	}
	firm, err := s.loadFirm(ctx, user.FirmID)
	if err != nil {
		return nil, err
	}

	access, err := s.codec.Issue(principalFor(user, firm, authz.CredentialSession), authz.CredentialSession, s.cfg.SessionTokenTTL)
	if err != nil {
		return nil, services.WrapInternal("failed to issue session token", err)
	}

	return &RefreshResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.cfg.SessionTokenTTL.Seconds()),
	}, nil
}

// RevokeSession denylists a token until its original expiry. Tokens that
// are already expired or malformed need no revocation and are ignored.
func (s *Service) RevokeSession(ctx context.Context, token string) error {
	claims, err := s.codec.Decode(token)
	if err != nil {
		if errors.Is(err, services.ErrExpired) || errors.Is(err, services.ErrMalformed) {
			return nil
		}
		return err
	}
	return s.denylist(ctx, token, claims)
}

// Logout revokes the caller's session token and, when given, a renewal
// token. A renewal token issued to another user is left alone.
func (s *Service) Logout(ctx context.Context, p authz.Principal, sessionToken, renewalToken string) error {
	if sessionToken != "" {
		if err := s.RevokeSession(ctx, sessionToken); err != nil {
			return err
		}
	}
	if renewalToken == "" {
		return nil
	}

	claims, err := s.codec.Decode(renewalToken)
	if err != nil {
		if errors.Is(err, services.ErrExpired) || errors.Is(err, services.ErrMalformed) {
			return nil
		}
		return err
	}
	if claims.UserID != p.UserID.String() {
		s.logger.Warn("ignoring renewal token of another user on logout",
			zap.String("user_id", p.UserID.String()),
			zap.String("token_user_id", claims.UserID))
		return nil
	}
	return s.denylist(ctx, renewalToken, claims)
}

func (s *Service) denylist(ctx context.Context, token string, claims *tokens.Claims) error {
	ttl := claims.RemainingTTL(s.codec.Now())
	ttl = time.Duration(math.Ceil(ttl.Seconds())) * time.Second
	if ttl < time.Second {
		ttl = time.Second
	}

	if err := s.store.SetWithTTL(ctx, denylistPrefix+token, "1", ttl); err != nil {
		s.logger.Error("failed to denylist token", zap.Error(err))
		return services.WrapInternal("failed to revoke token", err)
	}

	s.logger.Info("token revoked",
		zap.String("user_id", claims.UserID),
		zap.String("token_type", claims.TokenType),
		zap.Duration("ttl", ttl))
	return nil
}

// Profile re-reads the principal's user and firm
func (s *Service) Profile(ctx context.Context, p authz.Principal) (*ProfileResponse, error) {
	user, err := s.loadActiveUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	firm, err := s.loadFirm(ctx, user.FirmID)
	if err != nil {
		return nil, err
	}

	return &ProfileResponse{
		User:           user.Profile(s.EffectivePermissions(user.Role, user.CustomPermissions).Slice()),
		Firm:           firm,
		CredentialKind: p.CredentialKind,
	}, nil
}

// EffectivePermissions is the role's catalog entry plus custom grants
func (s *Service) EffectivePermissions(role models.Role, custom []models.Permission) authz.PermissionSet {
	return authz.EffectivePermissions(role, custom)
}

// RequirePermissions fails with ErrPermissionDenied naming the first permission p lacks
func (s *Service) RequirePermissions(p authz.Principal, perms ...models.Permission) error {
	missing := p.MissingPermissions(perms...)
	if len(missing) == 0 {
		return nil
	}
	return services.ErrPermissionDenied.
		WithMessage(fmt.Sprintf("permission required: %s", missing[0])).
		WithDetail("missing", models.PermissionStrings(missing))
}

// RequireTier fails with ErrTierInsufficient when p's firm is below min
func (s *Service) RequireTier(p authz.Principal, min models.SubscriptionTier) error {
	if p.HasTier(min) {
		return nil
	}
	return services.ErrTierInsufficient.
		WithMessage(fmt.Sprintf("subscription tier %s or higher required", min)).
		WithDetail("required", string(min)).
		WithDetail("current", string(p.SubscriptionTier))
}

// AvailablePermissions lists every permission with whether p holds it
func (s *Service) AvailablePermissions(p authz.Principal) []models.PermissionInfo {
	out := make([]models.PermissionInfo, len(models.AllPermissions))
	for i, perm := range models.AllPermissions {
		out[i] = models.PermissionInfo{
			Permission:  perm,
			Description: perm.Description(),
			Granted:     p.Permissions.Has(perm),
		}
	}
	return out
}

func (s *Service) checkDenylist(ctx context.Context, token string) error {
	revoked, err := s.store.Exists(ctx, denylistPrefix+token)
	if err != nil {
		s.logger.Error("denylist lookup failed", zap.Error(err))
		return services.WrapInternal("failed to check token revocation", err)
	}
	if revoked {
		return services.ErrRevoked
	}
	return nil
}

func (s *Service) loadActiveUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserInactive
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	if !user.IsActive {
		return nil, services.ErrUserInactive
	}
	return user, nil
}

func (s *Service) loadFirm(ctx context.Context, id uuid.UUID) (*models.Firm, error) {
	firm, err := s.firms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Error("firm missing for active user", zap.String("firm_id", id.String()))
			return nil, services.ErrFirmNotFound.Wrap(err)
		}
		return nil, services.WrapInternal("failed to load firm", err)
	}
	return firm, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.verifier.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("failed to prepare dummy password hash", zap.Error(err))
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) recordAttempt(method string, err error) {
	result := "success"
	if err != nil {
		if code := services.GetErrorCode(err); code != "" {
			result = string(code)
		} else {
			result = "error"
		}
	}
	observability.RecordAuthAttempt(method, result)
}

func principalFor(user *models.User, firm *models.Firm, kind authz.CredentialKind) authz.Principal {
	return authz.Principal{
		UserID:           user.ID,
		FirmID:           user.FirmID,
		Email:            user.Email,
		Role:             user.Role,
		Permissions:      authz.EffectivePermissions(user.Role, user.CustomPermissions),
		SubscriptionTier: firm.SubscriptionTier,
		CredentialKind:   kind,
	}
}
