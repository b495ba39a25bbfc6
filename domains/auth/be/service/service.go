package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xreason-ai/identity-core/domains/auth/be/token"
	tenantssvc "github.com/xreason-ai/identity-core/domains/tenants/be/service"
	userssvc "github.com/xreason-ai/identity-core/domains/users/be/service"
	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/metrics"
)

// CredentialVerifier checks a password (or delegates to an SSO provider) for
// the given email. Implementations return an error on mismatch; the service
// folds every failure into identity.ErrCredentials so callers cannot
// distinguish unknown users from wrong passwords.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) error
}

// VerifierFunc adapts a function to CredentialVerifier.
type VerifierFunc func(ctx context.Context, email, password string) error

func (f VerifierFunc) Verify(ctx context.Context, email, password string) error {
	return f(ctx, email, password)
}

// StaticVerifier holds plaintext credentials keyed by lowercase email. Dev
// and test use only.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(_ context.Context, email, password string) error {
	want, ok := v[strings.ToLower(strings.TrimSpace(email))]
	if !ok || want != password {
		return errors.New("credential mismatch")
	}
	return nil
}

// Service implements the server side of the session protocol: login issues a
// token, validate and refresh resolve it back into a session, logout revokes
// it.
type Service struct {
	users    userssvc.Service
	tenants  *tenantssvc.Service
	tokens   *token.Service
	verifier CredentialVerifier
	logger   *zap.Logger
}

// Config collects the service dependencies.
type Config struct {
	Users    userssvc.Service
	Tenants  *tenantssvc.Service
	Tokens   *token.Service
	Verifier CredentialVerifier
	Logger   *zap.Logger
}

// New constructs the auth Service.
func New(cfg Config) *Service {
	if cfg.Users == nil {
		panic("users service is required")
	}
	if cfg.Tenants == nil {
		panic("tenants service is required")
	}
	if cfg.Tokens == nil {
		panic("token service is required")
	}
	if cfg.Verifier == nil {
		panic("credential verifier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		users:    cfg.Users,
		tenants:  cfg.Tenants,
		tokens:   cfg.Tokens,
		verifier: cfg.Verifier,
		logger:   cfg.Logger,
	}
}

// Login verifies credentials and issues a session. The session's tenant is
// the explicitly requested one when present, otherwise the user's recorded
// active tenant, otherwise their first active membership. A user without any
// membership still gets a session with a nil tenant.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (identity.Session, error) {
	if err := s.verifier.Verify(ctx, creds.Email, creds.Password); err != nil {
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return identity.Session{}, fmt.Errorf("%w: verification failed", identity.ErrCredentials)
	}

	user, err := s.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, userssvc.ErrNotFound) {
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			return identity.Session{}, fmt.Errorf("%w: verification failed", identity.ErrCredentials)
		}
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return identity.Session{}, err
	}
	if !user.IsActive {
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return identity.Session{}, fmt.Errorf("%w: account disabled", identity.ErrCredentials)
	}

	tenant, err := s.selectTenant(ctx, user, creds.TenantID)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return identity.Session{}, err
	}

	signed, claims, err := s.tokens.Mint(user, tenant)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return identity.Session{}, err
	}

	if err := s.users.RecordLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("record login timestamp", zap.Error(err))
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.logger.Info("login", zap.String("user_id", user.ID.String()))

	return identity.Session{
		User:      user,
		Tenant:    tenant,
		Token:     signed,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Validate resolves a bearer token into a live session. Any verification
// failure, including revocation, maps to identity.ErrSessionExpired.
func (s *Service) Validate(ctx context.Context, raw string) (identity.Session, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return identity.Session{}, fmt.Errorf("%w: %v", identity.ErrSessionExpired, err)
	}

	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		return identity.Session{}, fmt.Errorf("%w: user gone", identity.ErrSessionExpired)
	}
	if !user.IsActive {
		return identity.Session{}, fmt.Errorf("%w: account disabled", identity.ErrSessionExpired)
	}

	return identity.Session{
		User:      user,
		Tenant:    s.resolveTenant(ctx, user, claims.TenantID),
		Token:     raw,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Refresh exchanges a still-valid token for a fresh one with a full TTL. The
// old token is revoked so it cannot be replayed.
func (s *Service) Refresh(ctx context.Context, raw string) (identity.Session, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		metrics.SessionRefreshesTotal.WithLabelValues("failure").Inc()
		return identity.Session{}, fmt.Errorf("%w: %v", identity.ErrSessionExpired, err)
	}

	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		metrics.SessionRefreshesTotal.WithLabelValues("failure").Inc()
		return identity.Session{}, fmt.Errorf("%w: user gone or disabled", identity.ErrSessionExpired)
	}

	tenant := s.resolveTenant(ctx, user, claims.TenantID)

	signed, newClaims, err := s.tokens.Mint(user, tenant)
	if err != nil {
		metrics.SessionRefreshesTotal.WithLabelValues("failure").Inc()
		return identity.Session{}, err
	}
	s.tokens.Revoke(claims)

	metrics.SessionRefreshesTotal.WithLabelValues("success").Inc()
	return identity.Session{
		User:      user,
		Tenant:    tenant,
		Token:     signed,
		ExpiresAt: newClaims.ExpiresAt,
	}, nil
}

// Logout revokes the token. Unknown or already-expired tokens are a no-op,
// so logout is idempotent.
func (s *Service) Logout(ctx context.Context, raw string) error {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return nil
	}
	s.tokens.Revoke(claims)
	s.logger.Info("logout", zap.String("user_id", claims.UserID.String()))
	return nil
}

func (s *Service) selectTenant(ctx context.Context, user identity.User, requested *uuid.UUID) (*identity.Tenant, error) {
	if requested != nil {
		if err := s.tenants.SwitchActive(ctx, user.ID, *requested); err != nil {
			return nil, err
		}
		t, err := s.tenants.Get(ctx, *requested)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	if active, err := s.tenants.ActiveTenant(ctx, user.ID); err != nil {
		return nil, err
	} else if active != nil && active.Status == identity.TenantActive {
		return active, nil
	}

	memberships, err := s.tenants.ListMemberships(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range memberships {
		if t.Status != identity.TenantActive {
			continue
		}
		if err := s.tenants.SwitchActive(ctx, user.ID, t.ID); err != nil {
			return nil, err
		}
		selected := t
		return &selected, nil
	}
	return nil, nil
}

// resolveTenant maps a token's tenant claim back to the record. The claim is
// not trusted on its own: the membership is re-checked on every resolution,
// so a tenant that has since vanished, gone inactive, or revoked the user's
// membership degrades to a tenantless session.
func (s *Service) resolveTenant(ctx context.Context, user identity.User, id *uuid.UUID) *identity.Tenant {
	if id == nil {
		return nil
	}
	member, err := s.tenants.IsMember(ctx, *id, user.ID)
	if err != nil || !member {
		return nil
	}
	t, err := s.tenants.Get(ctx, *id)
	if err != nil || t.Status != identity.TenantActive {
		return nil
	}
	return &t
}
