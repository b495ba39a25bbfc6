package session

import (
	"context"

	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// Backend is the external credential/session collaborator. Implementations
// map transport failures onto the identity error taxonomy: Login returns
// identity.ErrCredentials for rejected credentials, ValidateSession and
// RefreshSession return identity.ErrSessionExpired for dead sessions.
type Backend interface {
	// Login verifies credentials and issues a fresh session.
	Login(ctx context.Context, creds identity.Credentials) (identity.Session, error)

	// ValidateSession resolves a previously issued token back into a
	// session, typically during process bootstrap.
	ValidateSession(ctx context.Context, token string) (identity.Session, error)

	// RefreshSession exchanges the current token for a new one with a
	// pushed-out expiry. The returned session carries the same user.
	RefreshSession(ctx context.Context, token string) (identity.Session, error)

	// Logout invalidates the token server-side. Best effort: the manager
	// clears local state regardless of the outcome.
	Logout(ctx context.Context, token string) error
}
