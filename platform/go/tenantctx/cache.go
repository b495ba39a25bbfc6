package tenantctx

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// DefaultMembershipTTL bounds how stale a cached membership list may get.
const DefaultMembershipTTL = 30 * time.Second

// CachedDirectory decorates a Directory with a TTL cache over membership
// lists. Mutating calls pass through and drop every cached list, since a
// tenant update is visible in all membership lists containing it.
type CachedDirectory struct {
	inner Directory
	cache *gocache.Cache
}

// NewCachedDirectory wraps inner with a membership cache. A non-positive ttl
// falls back to DefaultMembershipTTL.
func NewCachedDirectory(inner Directory, ttl time.Duration) *CachedDirectory {
	if inner == nil {
		panic("inner directory is required")
	}
	if ttl <= 0 {
		ttl = DefaultMembershipTTL
	}
	return &CachedDirectory{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (d *CachedDirectory) ListMemberships(ctx context.Context, userID uuid.UUID) ([]identity.Tenant, error) {
	key := userID.String()
	if cached, ok := d.cache.Get(key); ok {
		tenants := cached.([]identity.Tenant)
		out := make([]identity.Tenant, len(tenants))
		copy(out, tenants)
		return out, nil
	}

	tenants, err := d.inner.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	stored := make([]identity.Tenant, len(tenants))
	copy(stored, tenants)
	d.cache.Set(key, stored, gocache.DefaultExpiration)
	return tenants, nil
}

func (d *CachedDirectory) SwitchActive(ctx context.Context, tenantID uuid.UUID) error {
	return d.inner.SwitchActive(ctx, tenantID)
}

func (d *CachedDirectory) Create(ctx context.Context, input CreateInput) (identity.Tenant, error) {
	t, err := d.inner.Create(ctx, input)
	if err == nil {
		d.cache.Flush()
	}
	return t, err
}

func (d *CachedDirectory) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (identity.Tenant, error) {
	t, err := d.inner.Update(ctx, id, input)
	if err == nil {
		d.cache.Flush()
	}
	return t, err
}

func (d *CachedDirectory) Delete(ctx context.Context, id uuid.UUID) error {
	err := d.inner.Delete(ctx, id)
	if err == nil {
		d.cache.Flush()
	}
	return err
}
