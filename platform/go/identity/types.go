package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// SubscriptionTier labels the commercial plan attached to a tenant.
type SubscriptionTier string

const (
	TierStarter         SubscriptionTier = "starter"
	TierProfessional    SubscriptionTier = "professional"
	TierEnterprise      SubscriptionTier = "enterprise"
	TierMissionCritical SubscriptionTier = "mission_critical"
)

// TenantStatus captures the lifecycle state of a tenant. Only active tenants
// may be selected as the current context.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantCancelled TenantStatus = "cancelled"
)

// Tenant is an organizational boundary. All business data and permission
// checks are scoped to the currently active tenant.
type Tenant struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	Slug             string           `json:"slug"`
	Domain           *string          `json:"domain,omitempty"`
	SubscriptionTier SubscriptionTier `json:"subscriptionTier"`
	Status           TenantStatus     `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// User is the identity record owned by the authentication backend. The
// Permissions slice is denormalized from Role and must be treated as a cache:
// enforcement points recompute it through the rbac resolver rather than
// trusting a deserialized list.
type User struct {
	ID          uuid.UUID         `json:"id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Avatar      *string           `json:"avatar,omitempty"`
	Role        rbac.Role         `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
	IsActive    bool              `json:"isActive"`
	IsVerified  bool              `json:"isVerified"`
	LastLogin   *time.Time        `json:"lastLogin,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Session is the live authenticated context. Tenant is nil when the user has
// no membership yet; when set it must reference a tenant in the user's
// membership set.
type Session struct {
	User      User      `json:"user"`
	Tenant    *Tenant   `json:"tenant,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Credentials is the opaque payload handed to the authentication backend.
// How they are verified (hashing, SSO) is the backend's concern.
type Credentials struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	TenantID *uuid.UUID `json:"tenantId,omitempty"`
}
