package requesttrace

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/xreason-ai/identity-core/platform/go/authz"
)

type contextKey string

const ctxAuditInfo contextKey = "XREASON_REQUEST_TRACE"

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata needed for traceability and
// auditing. UserID and TenantID are set only when the actor carries them;
// RequestID is optional but encouraged.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *string
	TenantID  *string
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not
// present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}
	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an
// anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromAuthContext builds an AuditInfo from an authenticated request context.
func FromAuthContext(ac authz.AuthContext, requestID string) (AuditInfo, error) {
	if ac.User.ID == uuid.Nil {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	userID := ac.User.ID.String()
	audit := AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &userID,
		RequestID: requestID,
	}
	if ac.Tenant != nil {
		tenantID := ac.Tenant.ID.String()
		audit.TenantID = &tenantID
	}
	return audit, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests (e.g., login)
// where no user identity exists yet.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background work initiated by the service
// itself rather than a caller.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
