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

	return pool
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	r := NewPostgresRepository(newTestPool(t, ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	u := identity.User{
		ID:         uuid.New(),
		Email:      "Mixed.Case@Example.com",
		Name:       "Jane Doe",
		Role:       rbac.RoleAnalyst,
		IsActive:   true,
		IsVerified: false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := r.Create(ctx, u)
	require.NoError(t, err)

	got, err := r.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "mixed.case@example.com", got.Email)
	require.Equal(t, rbac.RoleAnalyst, got.Role)
	require.True(t, got.IsActive)

	// Lookup is case-insensitive.
	byEmail, err := r.GetByEmail(ctx, "MIXED.CASE@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	// Duplicate email, any casing, conflicts.
	dup := u
	dup.ID = uuid.New()
	dup.Email = "mixed.case@EXAMPLE.com"
	_, err = r.Create(ctx, dup)
	require.ErrorIs(t, err, ErrConflict)

	got.Name = "Jane Q. Doe"
	login := now.Add(time.Minute)
	got.LastLogin = &login
	got.UpdatedAt = now.Add(time.Minute)
	updated, err := r.Update(ctx, got)
	require.NoError(t, err)
	require.Equal(t, "Jane Q. Doe", updated.Name)

	reloaded, err := r.Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastLogin)

	require.NoError(t, r.Delete(ctx, u.ID))
	_, err = r.Get(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
