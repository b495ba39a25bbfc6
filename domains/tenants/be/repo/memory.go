package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/xreason-ai/identity-core/domains/tenants/be/service"
	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]identity.Tenant
	bySlug  map[string]uuid.UUID
	order   []uuid.UUID
	members map[uuid.UUID][]service.Membership
	active  map[uuid.UUID]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[uuid.UUID]identity.Tenant),
		bySlug:  make(map[string]uuid.UUID),
		members: make(map[uuid.UUID][]service.Membership),
		active:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, t identity.Tenant) (identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[t.Slug]; exists {
		return identity.Tenant{}, service.ErrConflictSlug
	}

	r.byID[t.ID] = t
	r.bySlug[t.Slug] = t.ID
	r.order = append(r.order, t.ID)
	return t, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (identity.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return identity.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) FindBySlug(ctx context.Context, slug string) (identity.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlug[slug]
	if !ok {
		return identity.Tenant{}, service.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) Update(ctx context.Context, t identity.Tenant) (identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[t.ID]
	if !ok {
		return identity.Tenant{}, service.ErrNotFound
	}
	if t.Slug != current.Slug {
		if _, exists := r.bySlug[t.Slug]; exists {
			return identity.Tenant{}, service.ErrConflictSlug
		}
		delete(r.bySlug, current.Slug)
		r.bySlug[t.Slug] = t.ID
	}

	r.byID[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}

	delete(r.byID, id)
	delete(r.bySlug, t.Slug)
	delete(r.members, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for userID, tenantID := range r.active {
		if tenantID == id {
			delete(r.active, userID)
		}
	}
	return nil
}

func (r *MemoryRepository) AddMember(ctx context.Context, m service.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.TenantID]; !ok {
		return service.ErrNotFound
	}
	for _, existing := range r.members[m.TenantID] {
		if existing.UserID == m.UserID {
			return nil
		}
	}
	r.members[m.TenantID] = append(r.members[m.TenantID], m)
	return nil
}

func (r *MemoryRepository) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.members[tenantID]
	for i, m := range list {
		if m.UserID == userID {
			r.members[tenantID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryRepository) IsMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.members[tenantID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// ListByUser returns memberships in tenant creation order so default
// selection is deterministic.
func (r *MemoryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]identity.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []identity.Tenant
	for _, id := range r.order {
		for _, m := range r.members[id] {
			if m.UserID == userID {
				out = append(out, r.byID[id])
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetActive(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[userID]
	return id, ok, nil
}

func (r *MemoryRepository) SetActive(ctx context.Context, userID, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[tenantID]; !ok {
		return service.ErrNotFound
	}
	r.active[userID] = tenantID
	return nil
}

func (r *MemoryRepository) ClearActive(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, userID)
	return nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
