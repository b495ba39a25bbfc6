package authz

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/metrics"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

type ctxKey struct{}

// WithContext stores the AuthContext on the request context.
func WithContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromContext extracts the AuthContext and a boolean indicating presence.
func FromContext(ctx context.Context) (AuthContext, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return AuthContext{}, false
	}
	ac, ok := v.(AuthContext)
	return ac, ok
}

// ValidateFunc resolves a bearer token into a session, typically backed by
// the auth service or a session backend.
type ValidateFunc func(ctx context.Context, token string) (identity.Session, error)

// Middleware parses the bearer token, validates it, and attaches the
// resulting AuthContext to the request. Requests without a token pass
// through unauthenticated; handlers that need authentication use Require*.
func Middleware(validate ValidateFunc, resolver *rbac.Resolver) func(http.Handler) http.Handler {
	if validate == nil {
		panic("authz.Middleware: validate func must not be nil")
	}
	if resolver == nil {
		resolver = rbac.NewDefaultResolver()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractBearerToken(r)
			if !found {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := validate(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description="%s"`, err.Error()))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ac, err := NewContext(resolver, sess, sess.Tenant)
			if err != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
		})
	}
}

// RequireAuthenticated rejects requests lacking an AuthContext.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission gates an endpoint on a permission.
func RequirePermission(p rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := FromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if decision := ac.RequirePermission(p); !decision.Allowed {
				metrics.GuardDenialsTotal.WithLabelValues(string(p)).Inc()
				http.Error(w, decision.Reason, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractBearerToken pulls the bearer token from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}
