package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xreason-ai/identity-core/domains/auth/be/token"
	tenantsrepo "github.com/xreason-ai/identity-core/domains/tenants/be/repo"
	tenantssvc "github.com/xreason-ai/identity-core/domains/tenants/be/service"
	usersrepo "github.com/xreason-ai/identity-core/domains/users/be/repo"
	userssvc "github.com/xreason-ai/identity-core/domains/users/be/service"
	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

type fixture struct {
	svc     *Service
	users   userssvc.Service
	tenants *tenantssvc.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := userssvc.New(usersrepo.NewMemoryRepository(), nil)
	tenants := tenantssvc.New(tenantsrepo.NewMemoryRepository(), nil)
	tokens := token.New(token.Config{Secret: []byte("test-secret"), TTL: time.Hour})

	svc := New(Config{
		Users:   users,
		Tenants: tenants,
		Tokens:  tokens,
		Verifier: StaticVerifier{
			"jane@example.com": "hunter2",
		},
	})
	return &fixture{svc: svc, users: users, tenants: tenants}
}

func (f *fixture) seedUser(t *testing.T, role rbac.Role) identity.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), userssvc.CreateInput{
		Email: "jane@example.com",
		Name:  "Jane Doe",
		Role:  role,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) seedTenant(t *testing.T, slug string, owner uuid.UUID) identity.Tenant {
	t.Helper()
	created, err := f.tenants.Create(context.Background(), tenantssvc.CreateInput{
		Name:      slug,
		Slug:      slug,
		CreatedBy: owner,
	})
	require.NoError(t, err)
	return created
}

func TestLoginIssuesSessionWithActiveTenant(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, rbac.RoleAdmin)
	tenant := f.seedTenant(t, "acme", user.ID)

	sess, err := f.svc.Login(context.Background(), identity.Credentials{
		Email:    "jane@example.com",
		Password: "hunter2",
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, sess.User.ID)
	require.NotEmpty(t, sess.Token)
	require.NotNil(t, sess.Tenant)
	require.Equal(t, tenant.ID, sess.Tenant.ID)
	require.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	// Login stamps last_login.
	got, err := f.users.Get(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
}

func TestLoginWithoutMembershipYieldsTenantlessSession(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, rbac.RoleViewer)

	sess, err := f.svc.Login(context.Background(), identity.Credentials{
		Email:    "jane@example.com",
		Password: "hunter2",
	})
	require.NoError(t, err)
	require.Nil(t, sess.Tenant)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, rbac.RoleViewer)

	_, err := f.svc.Login(context.Background(), identity.Credentials{
		Email:    "jane@example.com",
		Password: "wrong",
	})
	require.ErrorIs(t, err, identity.ErrCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), identity.Credentials{
		Email:    "nobody@example.com",
		Password: "hunter2",
	})
	require.ErrorIs(t, err, identity.ErrCredentials)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, rbac.RoleViewer)

	inactive := false
	_, err := f.users.Update(context.Background(), user.ID, userssvc.UpdateInput{IsActive: &inactive})
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), identity.Credentials{
		Email:    "jane@example.com",
		Password: "hunter2",
	})
	require.ErrorIs(t, err, identity.ErrCredentials)
}

func TestLoginExplicitTenantRequiresMembership(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, rbac.RoleAdmin)
	_ = f.seedTenant(t, "mine", user.ID)

	foreign := f.seedTenant(t, "foreign", uuid.New())

	_, err := f.svc.Login(context.Background(), identity.Credentials{
		Email:    "jane@example.com",
		Password: "hunter2",
		TenantID: &foreign.ID,
	})
	require.ErrorIs(t, err, identity.ErrNotMember)
}

func TestValidateRoundTrip(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, rbac.RoleAnalyst)
	f.seedTenant(t, "acme", user.ID)

	sess, err := f.svc.Login(context.Background(), identity.Credentials{Email: "jane@example.com", Password: "hunter2"})
	require.NoError(t, err)

	restored, err := f.svc.Validate(context.Background(), sess.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, restored.User.ID)
	require.Equal(t, sess.Token, restored.Token)
	require.NotNil(t, restored.Tenant)
	require.Contains(t, restored.User.Permissions, rbac.PermExportAnalytics)
}

func TestValidateGarbageToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Validate(context.Background(), "garbage")
	require.ErrorIs(t, err, identity.ErrSessionExpired)
}

func TestValidateSurvivesTenantDeletion(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, rbac.RoleAdmin)
	tenant := f.seedTenant(t, "acme", user.ID)

	sess, err := f.svc.Login(context.Background(), identity.Credentials{Email: "jane@example.com", Password: "hunter2"})
	require.NoError(t, err)

	require.NoError(t, f.tenants.Delete(context.Background(), tenant.ID))

	restored, err := f.svc.Validate(context.Background(), sess.Token)
	require.NoError(t, err)
	require.Nil(t, restored.Tenant)
}

func TestValidateDropsTenantAfterMembershipRevoked(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, rbac.RoleAdmin)
	tenant := f.seedTenant(t, "acme", user.ID)

	sess, err := f.svc.Login(context.Background(), identity.Credentials{Email: "jane@example.com", Password: "hunter2"})
	require.NoError(t, err)
	require.NotNil(t, sess.Tenant)

	require.NoError(t, f.tenants.RemoveMember(context.Background(), tenant.ID, user.ID))

	// The token still carries the tenant claim, but the ex-member must not
	// get a session scoped to it.
	restored, err := f.svc.Validate(context.Background(), sess.Token)
	require.NoError(t, err)
	require.Nil(t, restored.Tenant)
}

func TestRefreshDropsTenantAfterMembershipRevoked(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, rbac.RoleAdmin)
	tenant := f.seedTenant(t, "acme", user.ID)

	sess, err := f.svc.Login(context.Background(), identity.Credentials{Email: "jane@example.com", Password: "hunter2"})
	require.NoError(t, err)

	require.NoError(t, f.tenants.RemoveMember(context.Background(), tenant.ID, user.ID))

	refreshed, err := f.svc.Refresh(context.Background(), sess.Token)
	require.NoError(t, err)
	require.Nil(t, refreshed.Tenant)

	// The rotated token must not resurrect the claim either.
	restored, err := f.svc.Validate(context.Background(), refreshed.Token)
	require.NoError(t, err)
	require.Nil(t, restored.Tenant)
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, rbac.RoleAdmin)
	f.seedTenant(t, "acme", user.ID)

	sess, err := f.svc.Login(context.Background(), identity.Credentials{Email: "jane@example.com", Password: "hunter2"})
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(context.Background(), sess.Token)
	require.NoError(t, err)
	require.NotEqual(t, sess.Token, refreshed.Token)
	require.Equal(t, user.ID, refreshed.User.ID)

	// Old token is revoked and can no longer be used.
	_, err = f.svc.Validate(context.Background(), sess.Token)
	require.ErrorIs(t, err, identity.ErrSessionExpired)

	_, err = f.svc.Validate(context.Background(), refreshed.Token)
	require.NoError(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, rbac.RoleViewer)

	sess, err := f.svc.Login(context.Background(), identity.Credentials{Email: "jane@example.com", Password: "hunter2"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), sess.Token))

	_, err = f.svc.Validate(context.Background(), sess.Token)
	require.ErrorIs(t, err, identity.ErrSessionExpired)

	// Idempotent, even for junk tokens.
	require.NoError(t, f.svc.Logout(context.Background(), sess.Token))
	require.NoError(t, f.svc.Logout(context.Background(), "garbage"))
}
