package token

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/metrics"
)

// DefaultTTL is the session token lifetime when the config leaves it unset.
const DefaultTTL = time.Hour

// Sentinel errors for token verification.
var (
	ErrInvalid = errors.New("token: invalid")
	ErrExpired = errors.New("token: expired")
	ErrRevoked = errors.New("token: revoked")
)

// Claims is the verified content of a session token.
type Claims struct {
	JTI       string
	UserID    uuid.UUID
	Email     string
	TenantID  *uuid.UUID
	ExpiresAt time.Time
}

// Service mints and verifies HS256 session tokens and keeps a revocation
// list. Revocations only need to outlive the token, so they are held in an
// expiring in-process cache rather than durable storage.
type Service struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	now     func() time.Time
	revoked *gocache.Cache
}

// Config for the token service.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// New constructs a token Service.
func New(cfg Config) *Service {
	if len(cfg.Secret) == 0 {
		panic("token secret is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "xreason-identity"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		secret:  cfg.Secret,
		issuer:  cfg.Issuer,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		revoked: gocache.New(cfg.TTL, 10*time.Minute),
	}
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Mint issues a token for the user, optionally bound to an active tenant.
func (s *Service) Mint(user identity.User, tenant *identity.Tenant) (string, Claims, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	jti := uuid.NewString()

	claims := jwtv5.MapClaims{
		"iss":   s.issuer,
		"sub":   user.ID.String(),
		"jti":   jti,
		"email": user.Email,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   exp.Unix(),
	}
	if tenant != nil {
		claims["tid"] = tenant.ID.String()
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(s.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}

	metrics.TokensIssuedTotal.Inc()

	out := Claims{JTI: jti, UserID: user.ID, Email: user.Email, ExpiresAt: exp}
	if tenant != nil {
		id := tenant.ID
		out.TenantID = &id
	}
	return signed, out, nil
}

// Verify parses and validates a token, rejecting revoked ones.
func (s *Service) Verify(raw string) (Claims, error) {
	parsed, err := jwtv5.Parse(raw, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwtv5.WithIssuer(s.issuer),
		jwtv5.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	mc, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return Claims{}, ErrInvalid
	}

	claims, err := claimsFromMap(mc)
	if err != nil {
		return Claims{}, err
	}
	if _, found := s.revoked.Get(claims.JTI); found {
		return Claims{}, ErrRevoked
	}
	return claims, nil
}

// Revoke blacklists the token's JTI until its natural expiry.
func (s *Service) Revoke(claims Claims) {
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return
	}
	s.revoked.Set(claims.JTI, struct{}{}, ttl)
}

func claimsFromMap(mc jwtv5.MapClaims) (Claims, error) {
	jti, _ := mc["jti"].(string)
	if jti == "" {
		return Claims{}, fmt.Errorf("%w: missing jti", ErrInvalid)
	}

	sub, _ := mc["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: bad subject", ErrInvalid)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, fmt.Errorf("%w: missing expiry", ErrInvalid)
	}

	claims := Claims{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: exp.Time,
	}
	if email, ok := mc["email"].(string); ok {
		claims.Email = email
	}
	if tid, ok := mc["tid"].(string); ok && tid != "" {
		parsed, err := uuid.Parse(tid)
		if err != nil {
			return Claims{}, fmt.Errorf("%w: bad tenant id", ErrInvalid)
		}
		claims.TenantID = &parsed
	}
	return claims, nil
}
