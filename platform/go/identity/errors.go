package identity

import "errors"

// Error taxonomy shared by the session and tenant-context managers.
// Authentication failures force a transition to the unauthenticated state;
// tenant-mutation failures leave existing state untouched.
var (
	// ErrCredentials signals a rejected login.
	ErrCredentials = errors.New("identity: invalid credentials")

	// ErrSessionExpired signals that validate or refresh failed and the
	// caller must re-authenticate.
	ErrSessionExpired = errors.New("identity: session expired")

	// ErrNotMember signals a tenant switch targeting a tenant outside the
	// user's membership set.
	ErrNotMember = errors.New("identity: not a member of tenant")

	// ErrTenantInactive signals a tenant switch targeting a suspended or
	// cancelled tenant.
	ErrTenantInactive = errors.New("identity: tenant is not active")

	// ErrNoTenantAvailable signals the terminal empty-membership state in
	// which all tenant-scoped operations are blocked.
	ErrNoTenantAvailable = errors.New("identity: no tenant available")

	// ErrDirectory wraps generic failures from the tenant directory.
	ErrDirectory = errors.New("identity: tenant directory failure")
)
