package tenantctx

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// Manager owns the currently active organization and the list of
// organizations the current user may switch into. It depends on the session
// manager for the current user (fed through LoadMemberships/Reset) and on a
// Directory for everything else. Directory calls are made without holding the
// internal lock; state is swapped only after a call succeeds.
type Manager struct {
	dir    Directory
	logger *zap.Logger

	mu        sync.Mutex
	userID    uuid.UUID
	loaded    bool
	available []identity.Tenant
	active    *identity.Tenant

	// onActive is invoked after every active-tenant change, outside the
	// lock. Used to keep the session's carried tenant consistent.
	onActive func(*identity.Tenant)
}

// Config carries the Manager dependencies.
type Config struct {
	Directory Directory
	Logger    *zap.Logger

	// OnActiveChange observes active-tenant replacements (nil tenant means
	// the terminal no-tenant state).
	OnActiveChange func(*identity.Tenant)
}

// NewManager constructs a Manager. Directory is required.
func NewManager(cfg Config) *Manager {
	if cfg.Directory == nil {
		panic("tenant directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{dir: cfg.Directory, logger: cfg.Logger, onActive: cfg.OnActiveChange}
}

// LoadMemberships fetches the tenants the user belongs to and selects the
// active context: the session-carried tenant when it is an active-status
// membership, else the first active-status membership in directory order.
// Suspended or cancelled memberships are never selected, matching the switch
// and delete-cascade rules. With no selectable membership the manager enters
// the terminal no-tenant state and tenant-scoped operations are blocked
// until the next load.
func (m *Manager) LoadMemberships(ctx context.Context, user *identity.User, carried *identity.Tenant) error {
	if user == nil {
		return fmt.Errorf("%w: no authenticated user", identity.ErrDirectory)
	}

	tenants, err := m.dir.ListMemberships(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("%w: list memberships: %v", identity.ErrDirectory, err)
	}

	var active *identity.Tenant
	if carried != nil {
		for i := range tenants {
			if tenants[i].ID == carried.ID {
				if tenants[i].Status == identity.TenantActive {
					active = &tenants[i]
				}
				break
			}
		}
		if active == nil {
			m.logger.Warn("session carried tenant is not an active membership, falling back to default",
				zap.String("tenant_id", carried.ID.String()))
		}
	}
	if active == nil {
		for i := range tenants {
			if tenants[i].Status == identity.TenantActive {
				active = &tenants[i]
				break
			}
		}
	}

	m.mu.Lock()
	m.userID = user.ID
	m.loaded = true
	m.available = tenants
	if active != nil {
		copied := *active
		m.active = &copied
	} else {
		m.active = nil
	}
	snapshot := m.activeCopyLocked()
	m.mu.Unlock()

	m.notifyActive(snapshot)
	return nil
}

// Reset drops all tenant state; called when the user logs out.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.userID = uuid.Nil
	m.loaded = false
	m.available = nil
	m.active = nil
	m.mu.Unlock()
	m.notifyActive(nil)
}

// CurrentTenant returns a copy of the active tenant, or nil when none is
// selected.
func (m *Manager) CurrentTenant() *identity.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCopyLocked()
}

// AvailableTenants returns a copy of the membership list.
func (m *Manager) AvailableTenants() []identity.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]identity.Tenant, len(m.available))
	copy(out, m.available)
	return out
}

// SwitchTenant activates the tenant with the given id. The target must be a
// membership and must be active; the backend is informed first and the local
// reference is replaced only after it succeeds, so no caller ever observes a
// half-switched state. On failure the active tenant is unchanged.
func (m *Manager) SwitchTenant(ctx context.Context, tenantID uuid.UUID) error {
	m.mu.Lock()
	target, err := m.validateSwitchLocked(tenantID)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.dir.SwitchActive(ctx, tenantID); err != nil {
		return fmt.Errorf("%w: switch active: %v", identity.ErrDirectory, err)
	}

	m.mu.Lock()
	// Memberships may have changed while the call was in flight; the
	// invariant that the active tenant is a membership must hold.
	if _, err := m.validateSwitchLocked(tenantID); err != nil {
		m.mu.Unlock()
		return err
	}
	m.active = &target
	snapshot := m.activeCopyLocked()
	m.mu.Unlock()

	m.notifyActive(snapshot)
	return nil
}

// CreateTenant registers a new tenant and merges it into the membership list
// (the creator becomes a member).
func (m *Manager) CreateTenant(ctx context.Context, input CreateInput) (identity.Tenant, error) {
	created, err := m.dir.Create(ctx, input)
	if err != nil {
		return identity.Tenant{}, fmt.Errorf("%w: create tenant: %v", identity.ErrDirectory, err)
	}

	m.mu.Lock()
	m.mergeLocked(created)
	m.mu.Unlock()
	return created, nil
}

// UpdateTenant applies changes to a tenant and keeps the membership list and
// the active reference consistent for that id.
func (m *Manager) UpdateTenant(ctx context.Context, id uuid.UUID, input UpdateInput) (identity.Tenant, error) {
	updated, err := m.dir.Update(ctx, id, input)
	if err != nil {
		return identity.Tenant{}, fmt.Errorf("%w: update tenant: %v", identity.ErrDirectory, err)
	}

	m.mu.Lock()
	m.mergeLocked(updated)
	var snapshot *identity.Tenant
	activeChanged := false
	if m.active != nil && m.active.ID == updated.ID {
		copied := updated
		m.active = &copied
		snapshot = m.activeCopyLocked()
		activeChanged = true
	}
	m.mu.Unlock()

	if activeChanged {
		m.notifyActive(snapshot)
	}
	return updated, nil
}

// DeleteTenant removes a tenant. When the deleted tenant was the active one,
// the cascade re-selects a remaining active-status membership (directory
// order) or enters the terminal no-tenant state before returning, so no
// caller ever observes an active tenant pointing at a deleted id.
func (m *Manager) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	if err := m.dir.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete tenant: %v", identity.ErrDirectory, err)
	}

	m.mu.Lock()
	m.removeLocked(id)
	wasActive := m.active != nil && m.active.ID == id
	var next *identity.Tenant
	if wasActive {
		m.active = nil
		for i := range m.available {
			if m.available[i].Status == identity.TenantActive {
				copied := m.available[i]
				next = &copied
				break
			}
		}
	}
	m.mu.Unlock()

	if !wasActive {
		return nil
	}
	if next == nil {
		m.notifyActive(nil)
		return nil
	}
	if err := m.SwitchTenant(ctx, next.ID); err != nil {
		// The deletion itself succeeded; the context is left empty
		// rather than dangling on the deleted tenant.
		m.notifyActive(nil)
		return fmt.Errorf("reselect after delete: %w", err)
	}
	return nil
}

// validateSwitchLocked enforces the membership and status invariants.
func (m *Manager) validateSwitchLocked(tenantID uuid.UUID) (identity.Tenant, error) {
	if !m.loaded || len(m.available) == 0 {
		return identity.Tenant{}, identity.ErrNoTenantAvailable
	}
	for _, t := range m.available {
		if t.ID != tenantID {
			continue
		}
		if t.Status != identity.TenantActive {
			return identity.Tenant{}, fmt.Errorf("%w: tenant %s is %s", identity.ErrTenantInactive, t.Slug, t.Status)
		}
		return t, nil
	}
	return identity.Tenant{}, fmt.Errorf("%w: %s", identity.ErrNotMember, tenantID)
}

func (m *Manager) mergeLocked(t identity.Tenant) {
	for i := range m.available {
		if m.available[i].ID == t.ID {
			m.available[i] = t
			return
		}
	}
	m.available = append(m.available, t)
}

func (m *Manager) removeLocked(id uuid.UUID) {
	for i := range m.available {
		if m.available[i].ID == id {
			m.available = append(m.available[:i], m.available[i+1:]...)
			return
		}
	}
}

func (m *Manager) activeCopyLocked() *identity.Tenant {
	if m.active == nil {
		return nil
	}
	copied := *m.active
	return &copied
}

func (m *Manager) notifyActive(t *identity.Tenant) {
	if m.onActive != nil {
		m.onActive(t)
	}
}
