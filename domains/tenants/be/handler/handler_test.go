package handler

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xreason-ai/identity-core/domains/tenants/be/repo"
	"github.com/xreason-ai/identity-core/domains/tenants/be/service"
	"github.com/xreason-ai/identity-core/platform/go/authz"
	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
	"github.com/xreason-ai/identity-core/platform/go/tenantctx"
)

// newDirectory stands up the tenant endpoints behind the auth middleware and
// returns the HTTP directory client the tenant manager uses against them.
func newDirectory(t *testing.T, user identity.User) (*tenantctx.HTTPDirectory, *service.Service) {
	t.Helper()

	svc := service.New(repo.NewMemoryRepository(), nil)

	sessions := map[string]identity.Session{
		"test-token": {User: user, Token: "test-token"},
	}
	validate := func(ctx context.Context, token string) (identity.Session, error) {
		sess, ok := sessions[token]
		if !ok {
			return identity.Session{}, identity.ErrSessionExpired
		}
		return sess, nil
	}

	r := chi.NewRouter()
	r.Use(authz.Middleware(validate, rbac.NewDefaultResolver()))
	New(svc, nil).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	dir := tenantctx.NewHTTPDirectory(srv.URL, srv.Client(), func() (string, bool) {
		return "test-token", true
	})
	return dir, svc
}

func adminUser() identity.User {
	return identity.User{
		ID:       uuid.New(),
		Email:    "admin@example.com",
		Name:     "Admin",
		Role:     rbac.RoleAdmin,
		IsActive: true,
	}
}

func TestDirectoryListAndCreateOverHTTP(t *testing.T) {
	user := adminUser()
	dir, _ := newDirectory(t, user)
	ctx := context.Background()

	tenants, err := dir.ListMemberships(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, tenants)

	created, err := dir.Create(ctx, tenantctx.CreateInput{
		Name: "Acme",
		Slug: "acme",
	})
	require.NoError(t, err)
	require.Equal(t, "acme", created.Slug)

	tenants, err = dir.ListMemberships(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	require.Equal(t, created.ID, tenants[0].ID)
}

func TestDirectorySwitchMapsSentinelsOverHTTP(t *testing.T) {
	user := adminUser()
	dir, svc := newDirectory(t, user)
	ctx := context.Background()

	mine, err := svc.Create(ctx, service.CreateInput{Name: "Mine", Slug: "mine", CreatedBy: user.ID})
	require.NoError(t, err)

	foreign, err := svc.Create(ctx, service.CreateInput{Name: "Foreign", Slug: "foreign", CreatedBy: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, dir.SwitchActive(ctx, mine.ID))

	err = dir.SwitchActive(ctx, foreign.ID)
	require.ErrorIs(t, err, identity.ErrNotMember)

	suspended := identity.TenantSuspended
	_, err = svc.Update(ctx, mine.ID, service.UpdateInput{Status: &suspended})
	require.NoError(t, err)

	err = dir.SwitchActive(ctx, mine.ID)
	require.ErrorIs(t, err, identity.ErrTenantInactive)
}

func TestDirectoryUpdateAndDeleteOverHTTP(t *testing.T) {
	user := adminUser()
	dir, _ := newDirectory(t, user)
	ctx := context.Background()

	created, err := dir.Create(ctx, tenantctx.CreateInput{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)

	renamed := "Acme Holdings"
	updated, err := dir.Update(ctx, created.ID, tenantctx.UpdateInput{Name: &renamed})
	require.NoError(t, err)
	require.Equal(t, renamed, updated.Name)

	require.NoError(t, dir.Delete(ctx, created.ID))

	tenants, err := dir.ListMemberships(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, tenants)
}
