package tenantctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// CreateInput is the payload for registering a new tenant.
type CreateInput struct {
	Name             string                    `json:"name"`
	Slug             string                    `json:"slug"`
	Domain           *string                   `json:"domain,omitempty"`
	SubscriptionTier identity.SubscriptionTier `json:"subscriptionTier"`
}

// UpdateInput carries the mutable tenant fields; nil means leave unchanged.
type UpdateInput struct {
	Name             *string                    `json:"name,omitempty"`
	Domain           *string                    `json:"domain,omitempty"`
	SubscriptionTier *identity.SubscriptionTier `json:"subscriptionTier,omitempty"`
	Status           *identity.TenantStatus     `json:"status,omitempty"`
}

// Directory is the external tenant-directory collaborator. Implementations
// wrap transport failures in identity.ErrDirectory; membership and status
// violations reported server-side map to identity.ErrNotMember and
// identity.ErrTenantInactive.
type Directory interface {
	// ListMemberships returns the tenants the user belongs to, in
	// directory order. The order is the deterministic tie-break for
	// default tenant selection.
	ListMemberships(ctx context.Context, userID uuid.UUID) ([]identity.Tenant, error)

	// SwitchActive records tenantID as the caller's active context on the
	// backend side.
	SwitchActive(ctx context.Context, tenantID uuid.UUID) error

	Create(ctx context.Context, input CreateInput) (identity.Tenant, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (identity.Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
