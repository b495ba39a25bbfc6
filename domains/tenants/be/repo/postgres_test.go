package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	sqlassets "github.com/xreason-ai/identity-core/database"
	"github.com/xreason-ai/identity-core/domains/tenants/be/service"
	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/persistence"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

func newTestPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("identity"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	_, err = pool.Exec(ctx, sqlassets.UsersSQL)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, sqlassets.TenantsSQL)
	require.NoError(t, err)

	return pool
}

func seedUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, email, name) VALUES ($1, $2, $3)`, id, email, "Test User")
	require.NoError(t, err)
	return id
}

func newTenant(slug string) identity.Tenant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return identity.Tenant{
		ID:               uuid.New(),
		Name:             slug,
		Slug:             slug,
		SubscriptionTier: identity.TierStarter,
		Status:           identity.TenantActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestPostgresRepositoryTenantLifecycle(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := newTestPool(t, ctx)
	r := NewPostgresRepository(pool)

	tn, err := r.Create(ctx, newTenant("acme-co"))
	require.NoError(t, err)

	got, err := r.Get(ctx, tn.ID)
	require.NoError(t, err)
	require.Equal(t, "acme-co", got.Slug)

	bySlug, err := r.FindBySlug(ctx, "acme-co")
	require.NoError(t, err)
	require.Equal(t, tn.ID, bySlug.ID)

	_, err = r.Create(ctx, newTenant("acme-co"))
	require.ErrorIs(t, err, service.ErrConflictSlug)

	got.Name = "Acme Co."
	got.Status = identity.TenantSuspended
	got.UpdatedAt = got.UpdatedAt.Add(time.Minute)
	updated, err := r.Update(ctx, got)
	require.NoError(t, err)
	require.Equal(t, identity.TenantSuspended, updated.Status)
}

func TestPostgresRepositoryMembershipsAndActive(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := newTestPool(t, ctx)
	r := NewPostgresRepository(pool)

	userID := seedUser(t, ctx, pool, "member@example.com")

	first, err := r.Create(ctx, newTenant("first-co"))
	require.NoError(t, err)
	later := newTenant("second-co")
	later.CreatedAt = first.CreatedAt.Add(time.Second)
	second, err := r.Create(ctx, later)
	require.NoError(t, err)

	for _, tenantID := range []uuid.UUID{first.ID, second.ID} {
		require.NoError(t, r.AddMember(ctx, service.Membership{
			TenantID:  tenantID,
			UserID:    userID,
			Role:      rbac.RoleViewer,
			CreatedAt: time.Now().UTC(),
		}))
	}

	member, err := r.IsMember(ctx, first.ID, userID)
	require.NoError(t, err)
	require.True(t, member)

	listed, err := r.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, first.ID, listed[0].ID)

	_, ok, err := r.GetActive(ctx, userID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.SetActive(ctx, userID, first.ID))
	active, ok, err := r.GetActive(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, active)

	// Upsert replaces the selection.
	require.NoError(t, r.SetActive(ctx, userID, second.ID))
	active, ok, err = r.GetActive(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second.ID, active)

	// Deleting the tenant cascades membership and the active selection.
	require.NoError(t, r.Delete(ctx, second.ID))
	member, err = r.IsMember(ctx, second.ID, userID)
	require.NoError(t, err)
	require.False(t, member)
	_, ok, err = r.GetActive(ctx, userID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.RemoveMember(ctx, first.ID, userID))
	listed, err = r.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, listed)
}
