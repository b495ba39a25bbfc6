package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/metrics"
	"github.com/xreason-ai/identity-core/platform/go/persistence"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// Errors returned by the service layer. Membership and status violations use
// the shared identity taxonomy so transports can translate them uniformly.
var (
	ErrNotFound     = errors.New("tenant not found")
	ErrConflictSlug = errors.New("tenant slug already exists")
	ErrInvalidInput = errors.New("invalid tenant input")
)

// Membership ties a user to a tenant with the role they hold inside it.
type Membership struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Role      rbac.Role
	CreatedAt time.Time
}

// CreateInput represents the request to register a tenant.
type CreateInput struct {
	Name             string
	Slug             string
	Domain           *string
	SubscriptionTier identity.SubscriptionTier
	CreatedBy        uuid.UUID
}

// UpdateInput represents mutable fields for a tenant; nil leaves a field unchanged.
type UpdateInput struct {
	Name             *string
	Domain           *string
	SubscriptionTier *identity.SubscriptionTier
	Status           *identity.TenantStatus
}

// Repository abstracts persistence for tenants, memberships, and each user's
// active-tenant selection. Delete cascades memberships and active selections.
type Repository interface {
	Create(ctx context.Context, t identity.Tenant) (identity.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (identity.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (identity.Tenant, error)
	Update(ctx context.Context, t identity.Tenant) (identity.Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddMember(ctx context.Context, m Membership) error
	RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error
	IsMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]identity.Tenant, error)

	GetActive(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error)
	SetActive(ctx context.Context, userID, tenantID uuid.UUID) error
	ClearActive(ctx context.Context, userID uuid.UUID) error
}

// Service provides the tenant directory operations.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// ListMemberships returns the tenants the user belongs to, in repository
// order. That order is the deterministic tie-break for default selection.
func (s *Service) ListMemberships(ctx context.Context, userID uuid.UUID) ([]identity.Tenant, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ActiveTenant resolves the user's recorded active tenant, or nil when none
// is selected.
func (s *Service) ActiveTenant(ctx context.Context, userID uuid.UUID) (*identity.Tenant, error) {
	id, ok, err := s.repo.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// SwitchActive records tenantID as the user's active context. The target must
// exist, the user must be a member, and the tenant must be active.
func (s *Service) SwitchActive(ctx context.Context, userID, tenantID uuid.UUID) error {
	t, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		metrics.TenantSwitchesTotal.WithLabelValues("error").Inc()
		return err
	}

	member, err := s.repo.IsMember(ctx, tenantID, userID)
	if err != nil {
		metrics.TenantSwitchesTotal.WithLabelValues("error").Inc()
		return err
	}
	if !member {
		metrics.TenantSwitchesTotal.WithLabelValues("not_member").Inc()
		return fmt.Errorf("%w: user %s is not a member of tenant %s", identity.ErrNotMember, userID, tenantID)
	}
	if t.Status != identity.TenantActive {
		metrics.TenantSwitchesTotal.WithLabelValues("inactive").Inc()
		return fmt.Errorf("%w: tenant %s is %s", identity.ErrTenantInactive, tenantID, t.Status)
	}

	if err := s.repo.SetActive(ctx, userID, tenantID); err != nil {
		metrics.TenantSwitchesTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.TenantSwitchesTotal.WithLabelValues("success").Inc()
	s.logger.Info("tenant switched", zap.String("user_id", userID.String()), zap.String("tenant_id", tenantID.String()))
	return nil
}

// Create registers a tenant. The creator becomes its owner and, when they had
// no active tenant yet, the new tenant becomes their active context.
func (s *Service) Create(ctx context.Context, input CreateInput) (identity.Tenant, error) {
	slug, err := persistence.NormalizeSlug(input.Slug)
	if err != nil {
		return identity.Tenant{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	tier := input.SubscriptionTier
	if tier == "" {
		tier = identity.TierStarter
	}
	if input.CreatedBy == uuid.Nil {
		return identity.Tenant{}, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	t := identity.Tenant{
		ID:               uuid.New(),
		Name:             input.Name,
		Slug:             slug,
		Domain:           input.Domain,
		SubscriptionTier: tier,
		Status:           identity.TenantActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return identity.Tenant{}, err
	}

	if err := s.repo.AddMember(ctx, Membership{
		TenantID:  created.ID,
		UserID:    input.CreatedBy,
		Role:      rbac.RoleOwner,
		CreatedAt: now,
	}); err != nil {
		return identity.Tenant{}, err
	}

	if _, hasActive, err := s.repo.GetActive(ctx, input.CreatedBy); err == nil && !hasActive {
		if err := s.repo.SetActive(ctx, input.CreatedBy, created.ID); err != nil {
			s.logger.Warn("set active tenant after create", zap.Error(err))
		}
	}

	return created, nil
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (identity.Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Update modifies mutable fields of a tenant.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (identity.Tenant, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return identity.Tenant{}, err
	}

	next := current
	if input.Name != nil {
		next.Name = *input.Name
	}
	if input.Domain != nil {
		next.Domain = input.Domain
	}
	if input.SubscriptionTier != nil {
		next.SubscriptionTier = *input.SubscriptionTier
	}
	if input.Status != nil {
		next.Status = *input.Status
	}
	next.UpdatedAt = time.Now().UTC()

	return s.repo.Update(ctx, next)
}

// Delete removes a tenant. The repository cascades memberships and clears any
// active selection that pointed at it; affected clients fall back to another
// membership on their side.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// AddMember enrolls a user into a tenant with the given role.
func (s *Service) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", rbac.ErrUnknownRole, role)
	}
	if _, err := s.repo.Get(ctx, tenantID); err != nil {
		return err
	}
	return s.repo.AddMember(ctx, Membership{
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
}

// IsMember reports whether the user holds a membership in the tenant.
func (s *Service) IsMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	return s.repo.IsMember(ctx, tenantID, userID)
}

// RemoveMember drops a user's membership. When the removed membership was the
// user's active tenant, the selection is cleared.
func (s *Service) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	if err := s.repo.RemoveMember(ctx, tenantID, userID); err != nil {
		return err
	}
	if active, ok, err := s.repo.GetActive(ctx, userID); err == nil && ok && active == tenantID {
		return s.repo.ClearActive(ctx, userID)
	}
	return nil
}
