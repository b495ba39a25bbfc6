package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// inMemoryRepo is a minimal in-memory impl of Repository for tests.
type inMemoryRepo struct {
	mu      sync.Mutex
	data    map[uuid.UUID]identity.Tenant
	order   []uuid.UUID
	members map[uuid.UUID][]Membership
	active  map[uuid.UUID]uuid.UUID
}

func newInMemoryRepo() *inMemoryRepo {
	return &inMemoryRepo{
		data:    make(map[uuid.UUID]identity.Tenant),
		members: make(map[uuid.UUID][]Membership),
		active:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *inMemoryRepo) Create(ctx context.Context, t identity.Tenant) (identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if existing.Slug == t.Slug {
			return identity.Tenant{}, ErrConflictSlug
		}
	}
	r.data[t.ID] = t
	r.order = append(r.order, t.ID)
	return t, nil
}

func (r *inMemoryRepo) Get(ctx context.Context, id uuid.UUID) (identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return identity.Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *inMemoryRepo) FindBySlug(ctx context.Context, slug string) (identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.data {
		if t.Slug == slug {
			return t, nil
		}
	}
	return identity.Tenant{}, ErrNotFound
}

func (r *inMemoryRepo) Update(ctx context.Context, t identity.Tenant) (identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[t.ID]; !ok {
		return identity.Tenant{}, ErrNotFound
	}
	r.data[t.ID] = t
	return t, nil
}

func (r *inMemoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
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

func (r *inMemoryRepo) AddMember(ctx context.Context, m Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.TenantID] = append(r.members[m.TenantID], m)
	return nil
}

func (r *inMemoryRepo) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.members[tenantID]
	for i, m := range list {
		if m.UserID == userID {
			r.members[tenantID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (r *inMemoryRepo) IsMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members[tenantID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]identity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []identity.Tenant
	for _, id := range r.order {
		for _, m := range r.members[id] {
			if m.UserID == userID {
				out = append(out, r.data[id])
				break
			}
		}
	}
	return out, nil
}

func (r *inMemoryRepo) GetActive(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[userID]
	return id, ok, nil
}

func (r *inMemoryRepo) SetActive(ctx context.Context, userID, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[userID] = tenantID
	return nil
}

func (r *inMemoryRepo) ClearActive(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, userID)
	return nil
}

func TestCreateMakesCreatorOwnerAndActive(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	creator := uuid.New()

	created, err := svc.Create(context.Background(), CreateInput{
		Name:      "Acme Corp",
		Slug:      "Acme-Corp",
		CreatedBy: creator,
	})
	require.NoError(t, err)
	require.Equal(t, "acme-corp", created.Slug)
	require.Equal(t, identity.TenantActive, created.Status)
	require.Equal(t, identity.TierStarter, created.SubscriptionTier)

	member, err := repo.IsMember(context.Background(), created.ID, creator)
	require.NoError(t, err)
	require.True(t, member)

	active, ok, err := repo.GetActive(context.Background(), creator)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.ID, active)
}

func TestCreateRejectsInvalidSlug(t *testing.T) {
	svc := New(newInMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Name:      "Bad",
		Slug:      "no spaces allowed",
		CreatedBy: uuid.New(),
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateKeepsExistingActiveSelection(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	creator := uuid.New()

	first, err := svc.Create(context.Background(), CreateInput{Name: "First", Slug: "first", CreatedBy: creator})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateInput{Name: "Second", Slug: "second", CreatedBy: creator})
	require.NoError(t, err)

	active, ok, err := repo.GetActive(context.Background(), creator)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, active)
}

func TestSwitchActiveRequiresMembership(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	owner := uuid.New()
	outsider := uuid.New()

	created, err := svc.Create(context.Background(), CreateInput{Name: "Acme", Slug: "acme", CreatedBy: owner})
	require.NoError(t, err)

	err = svc.SwitchActive(context.Background(), outsider, created.ID)
	require.ErrorIs(t, err, identity.ErrNotMember)

	_, ok, err := repo.GetActive(context.Background(), outsider)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSwitchActiveRejectsInactiveTenant(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	owner := uuid.New()

	created, err := svc.Create(context.Background(), CreateInput{Name: "Acme", Slug: "acme", CreatedBy: owner})
	require.NoError(t, err)

	suspended := identity.TenantSuspended
	_, err = svc.Update(context.Background(), created.ID, UpdateInput{Status: &suspended})
	require.NoError(t, err)

	err = svc.SwitchActive(context.Background(), owner, created.ID)
	require.ErrorIs(t, err, identity.ErrTenantInactive)
}

func TestSwitchActiveUnknownTenant(t *testing.T) {
	svc := New(newInMemoryRepo(), nil)

	err := svc.SwitchActive(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSwitchActiveRecordsSelection(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	owner := uuid.New()

	first, err := svc.Create(context.Background(), CreateInput{Name: "First", Slug: "first", CreatedBy: owner})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), CreateInput{Name: "Second", Slug: "second", CreatedBy: owner})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	require.NoError(t, svc.SwitchActive(context.Background(), owner, second.ID))

	active, err := svc.ActiveTenant(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, second.ID, active.ID)
}

func TestDeleteCascadesActiveSelection(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	owner := uuid.New()

	created, err := svc.Create(context.Background(), CreateInput{Name: "Acme", Slug: "acme", CreatedBy: owner})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))

	_, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrNotFound)

	active, err := svc.ActiveTenant(context.Background(), owner)
	require.NoError(t, err)
	require.Nil(t, active)

	tenants, err := svc.ListMemberships(context.Background(), owner)
	require.NoError(t, err)
	require.Empty(t, tenants)
}

func TestUpdateMergesFields(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	owner := uuid.New()

	created, err := svc.Create(context.Background(), CreateInput{Name: "Acme", Slug: "acme", CreatedBy: owner})
	require.NoError(t, err)

	name := "Acme Global"
	tier := identity.TierEnterprise
	updated, err := svc.Update(context.Background(), created.ID, UpdateInput{Name: &name, SubscriptionTier: &tier})
	require.NoError(t, err)
	require.Equal(t, "Acme Global", updated.Name)
	require.Equal(t, identity.TierEnterprise, updated.SubscriptionTier)
	require.Equal(t, created.Slug, updated.Slug)
	require.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestAddMemberValidatesRole(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	owner := uuid.New()

	created, err := svc.Create(context.Background(), CreateInput{Name: "Acme", Slug: "acme", CreatedBy: owner})
	require.NoError(t, err)

	err = svc.AddMember(context.Background(), created.ID, uuid.New(), rbac.Role("superuser"))
	require.ErrorIs(t, err, rbac.ErrUnknownRole)

	analyst := uuid.New()
	require.NoError(t, svc.AddMember(context.Background(), created.ID, analyst, rbac.RoleAnalyst))

	tenants, err := svc.ListMemberships(context.Background(), analyst)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
}

func TestRemoveMemberClearsActiveSelection(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	owner := uuid.New()

	created, err := svc.Create(context.Background(), CreateInput{Name: "Acme", Slug: "acme", CreatedBy: owner})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveMember(context.Background(), created.ID, owner))

	active, err := svc.ActiveTenant(context.Background(), owner)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestMembershipOrderIsStable(t *testing.T) {
	repo := newInMemoryRepo()
	svc := New(repo, nil)
	owner := uuid.New()

	names := []string{"alpha", "beta", "gamma"}
	for _, n := range names {
		_, err := svc.Create(context.Background(), CreateInput{Name: n, Slug: n, CreatedBy: owner})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	tenants, err := svc.ListMemberships(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, tenants, 3)
	for i, n := range names {
		require.Equal(t, n, tenants[i].Slug)
	}
}
