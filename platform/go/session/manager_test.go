package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// fakeBackend is a scriptable in-memory Backend.
type fakeBackend struct {
	mu          sync.Mutex
	loginErr    error
	validateErr error
	refreshErr  error
	logoutErr   error
	ttl         time.Duration
	user        identity.User
	tenant      *identity.Tenant

	logins    int
	refreshes int
	logouts   int
}

func newFakeBackend(ttl time.Duration) *fakeBackend {
	return &fakeBackend{
		ttl: ttl,
		user: identity.User{
			ID:       uuid.New(),
			Email:    "ana@example.com",
			Name:     "Ana",
			Role:     rbac.RoleAnalyst,
			IsActive: true,
		},
	}
}

func (b *fakeBackend) issue() identity.Session {
	return identity.Session{
		User:      b.user,
		Tenant:    b.tenant,
		Token:     "tok-" + uuid.NewString(),
		ExpiresAt: time.Now().Add(b.ttl),
	}
}

func (b *fakeBackend) Login(ctx context.Context, creds identity.Credentials) (identity.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logins++
	if b.loginErr != nil {
		return identity.Session{}, b.loginErr
	}
	return b.issue(), nil
}

func (b *fakeBackend) ValidateSession(ctx context.Context, token string) (identity.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.validateErr != nil {
		return identity.Session{}, b.validateErr
	}
	return b.issue(), nil
}

func (b *fakeBackend) RefreshSession(ctx context.Context, token string) (identity.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++
	if b.refreshErr != nil {
		return identity.Session{}, b.refreshErr
	}
	return b.issue(), nil
}

func (b *fakeBackend) Logout(ctx context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts++
	return b.logoutErr
}

func (b *fakeBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshes
}

// countingTokenStore records how many times a token reference is written.
type countingTokenStore struct {
	*MemoryTokenStore
	mu    sync.Mutex
	saves int
}

func (s *countingTokenStore) Save(token string) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.MemoryTokenStore.Save(token)
}

func (s *countingTokenStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// gatedBackend stalls its first Login on the release channel and then fails
// it; subsequent logins delegate to the embedded fake.
type gatedBackend struct {
	*fakeBackend
	entered chan struct{}
	release chan struct{}
	first   sync.Once
}

func (b *gatedBackend) Login(ctx context.Context, creds identity.Credentials) (identity.Session, error) {
	var stalled bool
	b.first.Do(func() { stalled = true })
	if stalled {
		close(b.entered)
		<-b.release
		return identity.Session{}, errors.New("upstream timeout")
	}
	return b.fakeBackend.Login(ctx, creds)
}

func TestRefreshDelay(t *testing.T) {
	now := time.Now()

	// expires in 10 minutes with a 5 minute margin: fire at now+5m.
	require.Equal(t, 5*time.Minute, refreshDelay(now.Add(10*time.Minute), now, 5*time.Minute))

	// Already inside the margin: refresh immediately.
	require.Equal(t, time.Duration(0), refreshDelay(now.Add(time.Minute), now, 5*time.Minute))
	require.Equal(t, time.Duration(0), refreshDelay(now.Add(-time.Minute), now, 5*time.Minute))
}

func TestLoginSuccessInstallsSession(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	tokens := NewMemoryTokenStore()
	m := NewManager(Config{Backend: backend, Tokens: tokens})

	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))
	require.True(t, m.IsAuthenticated())
	require.Equal(t, StateAuthenticated, m.State())

	user := m.CurrentUser()
	require.NotNil(t, user)
	require.Equal(t, "ana@example.com", user.Email)

	// Denormalized permissions recomputed from the role.
	resolved, err := rbac.NewDefaultResolver().Resolve(rbac.RoleAnalyst)
	require.NoError(t, err)
	require.Equal(t, resolved, user.Permissions)

	// Token reference persisted.
	token, ok, err := tokens.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.CurrentSession().Token, token)
}

func TestLoginFailureSurfacesErrorAndClearsState(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	backend.loginErr = identity.ErrCredentials
	m := NewManager(Config{Backend: backend})

	err := m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "wrong"})
	require.ErrorIs(t, err, identity.ErrCredentials)
	require.False(t, m.IsAuthenticated())
	require.Equal(t, StateUnauthenticated, m.State())
	require.Nil(t, m.CurrentUser())
}

func TestLoginPersistsTokenOnce(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	tokens := &countingTokenStore{MemoryTokenStore: NewMemoryTokenStore()}
	m := NewManager(Config{Backend: backend, Tokens: tokens})

	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))
	require.Equal(t, 1, tokens.saveCount())

	token, ok, err := tokens.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.CurrentSession().Token, token)
}

func TestSupersededLoginFailureKeepsNewSession(t *testing.T) {
	backend := &gatedBackend{
		fakeBackend: newFakeBackend(time.Hour),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	m := NewManager(Config{Backend: backend})

	var mu sync.Mutex
	var last State
	m.OnChange(func(s State, _ *identity.User) {
		mu.Lock()
		last = s
		mu.Unlock()
	})

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "stale"})
	}()
	<-backend.entered

	// A second login supersedes the stalled one.
	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))
	require.True(t, m.IsAuthenticated())

	close(backend.release)
	require.Error(t, <-firstDone)

	// The stale failure must neither tear down the winning session nor
	// announce a sign-out over it.
	require.True(t, m.IsAuthenticated())
	require.Equal(t, StateAuthenticated, m.State())
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, StateAuthenticated, last)
}

func TestBootstrapWithoutTokenIsNotAnError(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	m := NewManager(Config{Backend: backend})

	require.NoError(t, m.Bootstrap(context.Background()))
	require.Equal(t, StateUnauthenticated, m.State())
}

func TestBootstrapRestoresPersistedSession(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	tokens := NewMemoryTokenStore()
	require.NoError(t, tokens.Save("tok-persisted"))

	m := NewManager(Config{Backend: backend, Tokens: tokens})
	require.NoError(t, m.Bootstrap(context.Background()))
	require.True(t, m.IsAuthenticated())
}

func TestBootstrapRejectedSessionIsSilent(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	backend.validateErr = identity.ErrSessionExpired
	tokens := NewMemoryTokenStore()
	require.NoError(t, tokens.Save("tok-stale"))

	m := NewManager(Config{Backend: backend, Tokens: tokens})
	require.NoError(t, m.Bootstrap(context.Background()))
	require.Equal(t, StateUnauthenticated, m.State())

	// Stale reference dropped from the store.
	_, ok, err := tokens.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogoutClearsStateDespiteBackendFailure(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	backend.logoutErr = errors.New("network down")
	tokens := NewMemoryTokenStore()
	m := NewManager(Config{Backend: backend, Tokens: tokens})

	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))
	m.Logout(context.Background())

	require.Equal(t, StateUnauthenticated, m.State())
	require.Nil(t, m.CurrentSession())
	_, ok, err := tokens.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProactiveRefreshReplacesSessionInPlace(t *testing.T) {
	backend := newFakeBackend(150 * time.Millisecond)
	m := NewManager(Config{Backend: backend, RefreshMargin: 100 * time.Millisecond})

	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))
	first := m.CurrentSession()
	require.NotNil(t, first)

	require.Eventually(t, func() bool { return backend.refreshCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		s := m.CurrentSession()
		return s != nil && s.Token != first.Token
	}, 2*time.Second, 10*time.Millisecond)

	second := m.CurrentSession()
	require.Equal(t, first.User.ID, second.User.ID, "refresh must preserve identity")
	require.True(t, m.IsAuthenticated())
}

func TestRefreshFailureLogsOut(t *testing.T) {
	backend := newFakeBackend(120 * time.Millisecond)
	backend.refreshErr = errors.New("simulated network error")
	tokens := NewMemoryTokenStore()
	m := NewManager(Config{Backend: backend, Tokens: tokens, RefreshMargin: 100 * time.Millisecond})

	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))

	require.Eventually(t, func() bool { return m.State() == StateUnauthenticated }, 2*time.Second, 10*time.Millisecond)
	require.Nil(t, m.CurrentUser())

	// No refresh timer remains armed: the count stays where it stopped.
	count := backend.refreshCount()
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, count, backend.refreshCount())

	_, ok, err := tokens.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogoutCancelsPendingRefresh(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	m := NewManager(Config{Backend: backend, RefreshMargin: time.Hour - 50*time.Millisecond})

	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))
	m.Logout(context.Background())

	time.Sleep(150 * time.Millisecond)
	require.Zero(t, backend.refreshCount(), "stale refresh must not resurrect a dead session")
	require.Equal(t, StateUnauthenticated, m.State())
}

func TestExpiredSessionRetiresLazily(t *testing.T) {
	backend := newFakeBackend(30 * time.Millisecond)
	backend.refreshErr = errors.New("backend gone")
	m := NewManager(Config{Backend: backend, RefreshMargin: time.Nanosecond})

	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))

	require.Eventually(t, func() bool {
		s := m.State()
		return s == StateExpired || s == StateUnauthenticated
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, m.IsAuthenticated())
}

func TestOnChangeObserverSeesTransitions(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	m := NewManager(Config{Backend: backend})

	var mu sync.Mutex
	var states []State
	m.OnChange(func(s State, _ *identity.User) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))
	m.Logout(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []State{StateAuthenticating, StateAuthenticated, StateUnauthenticated}, states)
}

func TestSetTenantUpdatesSessionCopy(t *testing.T) {
	backend := newFakeBackend(time.Hour)
	m := NewManager(Config{Backend: backend})
	require.NoError(t, m.Login(context.Background(), identity.Credentials{Email: "ana@example.com", Password: "pw"}))

	tenant := identity.Tenant{ID: uuid.New(), Name: "Acme", Slug: "acme", Status: identity.TenantActive}
	m.SetTenant(&tenant)

	s := m.CurrentSession()
	require.NotNil(t, s.Tenant)
	require.Equal(t, tenant.ID, s.Tenant.ID)

	m.SetTenant(nil)
	require.Nil(t, m.CurrentSession().Tenant)
}
