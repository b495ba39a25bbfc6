package authz

import (
	"fmt"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// Decision is the outcome of a guard check at a protected entry point.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns a permitting decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a rejecting decision with a caller-facing reason.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// AuthContext bundles the authenticated session with its effective
// permissions. It is passed explicitly to protected operations instead of
// being read from ambient state, so enforcement points are testable in
// isolation. The permission set is recomputed from the role at construction;
// the denormalized list on the user record is never trusted.
type AuthContext struct {
	User     identity.User
	Session  identity.Session
	Tenant   *identity.Tenant
	resolver *rbac.Resolver
	perms    map[rbac.Permission]struct{}
}

// NewContext builds an AuthContext for a session, resolving the effective
// permission set through the resolver. An unknown role is a programming
// error and fails construction.
func NewContext(resolver *rbac.Resolver, sess identity.Session, tenant *identity.Tenant) (AuthContext, error) {
	if resolver == nil {
		resolver = rbac.NewDefaultResolver()
	}
	resolved, err := resolver.Resolve(sess.User.Role)
	if err != nil {
		return AuthContext{}, fmt.Errorf("build auth context: %w", err)
	}

	perms := make(map[rbac.Permission]struct{}, len(resolved))
	for _, p := range resolved {
		perms[p] = struct{}{}
	}
	sess.User.Permissions = resolved

	return AuthContext{
		User:     sess.User,
		Session:  sess,
		Tenant:   tenant,
		resolver: resolver,
		perms:    perms,
	}, nil
}

// HasPermission reports whether the effective permission set contains p.
func (a AuthContext) HasPermission(p rbac.Permission) bool {
	_, ok := a.perms[p]
	return ok
}

// RequirePermission is the guard primitive for protected entry points.
func (a AuthContext) RequirePermission(p rbac.Permission) Decision {
	if a.HasPermission(p) {
		return Allow()
	}
	return Deny(fmt.Sprintf("role %q lacks permission %q", a.User.Role, p))
}

// RequireRole allows when the user's role equals or inherits from required.
func (a AuthContext) RequireRole(required rbac.Role) Decision {
	ok, err := a.resolver.HasRoleAtLeast(a.User.Role, required)
	if err != nil {
		return Deny(err.Error())
	}
	if !ok {
		return Deny(fmt.Sprintf("role %q does not satisfy required role %q", a.User.Role, required))
	}
	return Allow()
}

// RequireTenant allows only when an active tenant context is selected.
func (a AuthContext) RequireTenant() Decision {
	if a.Tenant == nil {
		return Deny("no tenant available")
	}
	if a.Tenant.Status != identity.TenantActive {
		return Deny(fmt.Sprintf("tenant %q is %s", a.Tenant.Slug, a.Tenant.Status))
	}
	return Allow()
}
