package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// State enumerates the authentication lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
	StateExpired         State = "expired"
)

// DefaultRefreshMargin is the lead time before expiry at which a proactive
// refresh is scheduled, chosen so the exchange completes before the token
// dies under normal network latency.
const DefaultRefreshMargin = 5 * time.Minute

// ChangeFunc observes session transitions. It is invoked outside the manager
// lock with the new state and the current user (nil when unauthenticated).
type ChangeFunc func(State, *identity.User)

// Config carries the Manager dependencies.
type Config struct {
	Backend  Backend
	Tokens   TokenStore     // defaults to an in-memory store
	Resolver *rbac.Resolver // defaults to the built-in tables
	Logger   *zap.Logger    // defaults to a no-op logger

	// RefreshMargin overrides DefaultRefreshMargin when positive.
	RefreshMargin time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager owns the authentication lifecycle: login, logout, bootstrap from a
// persisted token, and proactive refresh. All state transitions are
// serialized through its public operations; collaborator calls are made
// without holding the internal lock.
type Manager struct {
	backend  Backend
	tokens   TokenStore
	resolver *rbac.Resolver
	logger   *zap.Logger
	margin   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	state   State
	session *identity.Session
	timer   *time.Timer
	// seq invalidates in-flight collaborator calls and pending refresh
	// timers whenever a new session generation begins.
	seq       uint64
	observers []ChangeFunc
}

// NewManager constructs a Manager. Backend is required.
func NewManager(cfg Config) *Manager {
	if cfg.Backend == nil {
		panic("session backend is required")
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewMemoryTokenStore()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = rbac.NewDefaultResolver()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		backend:  cfg.Backend,
		tokens:   cfg.Tokens,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
		margin:   cfg.RefreshMargin,
		now:      cfg.Now,
		state:    StateUnauthenticated,
	}
}

// OnChange registers an observer for session transitions. Register observers
// before the first operation; registration is not synchronized with
// in-flight transitions.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Bootstrap restores a previous session from the persisted token reference.
// Absence or staleness of a prior session is not an error condition; only
// storage faults are reported.
func (m *Manager) Bootstrap(ctx context.Context) error {
	token, ok, err := m.tokens.Load()
	if err != nil {
		return fmt.Errorf("load persisted token: %w", err)
	}
	if !ok {
		return nil
	}

	seq := m.beginAttempt()
	m.notify(StateAuthenticating, nil)

	sess, err := m.backend.ValidateSession(ctx, token)
	if err != nil {
		m.logger.Debug("persisted session rejected", zap.Error(err))
		m.abandonAttempt(seq, true)
		return nil
	}
	if err := m.install(seq, sess, false); err != nil {
		m.abandonAttempt(seq, true)
		return err
	}
	return nil
}

// Login authenticates against the backend and, on success, persists the token
// reference and enters the authenticated state. On failure the manager ends
// up unauthenticated and the reason is surfaced to the caller.
func (m *Manager) Login(ctx context.Context, creds identity.Credentials) error {
	seq := m.beginAttempt()
	m.notify(StateAuthenticating, nil)

	sess, err := m.backend.Login(ctx, creds)
	if err != nil {
		m.abandonAttempt(seq, false)
		return fmt.Errorf("login: %w", err)
	}
	return m.install(seq, sess, true)
}

// Logout invalidates the session with the backend on a best-effort basis and
// always clears local state. Backend failures are logged, never propagated.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	var token string
	if m.session != nil {
		token = m.session.Token
	}
	m.clearLocked(StateUnauthenticated)
	m.mu.Unlock()

	if token != "" {
		if err := m.backend.Logout(ctx, token); err != nil {
			m.logger.Warn("backend logout failed, local session cleared anyway", zap.Error(err))
		}
	}
	if err := m.tokens.Clear(); err != nil {
		m.logger.Warn("clear token reference", zap.Error(err))
	}
	m.notify(StateUnauthenticated, nil)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	return m.state
}

// IsAuthenticated reports whether a live session is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	return m.state == StateAuthenticated || m.state == StateRefreshing
}

// CurrentUser returns a copy of the authenticated user, or nil.
func (m *Manager) CurrentUser() *identity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	if m.session == nil {
		return nil
	}
	u := m.session.User
	return &u
}

// CurrentSession returns a copy of the live session, or nil.
func (m *Manager) CurrentSession() *identity.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// SetTenant records the active tenant on the session. The tenant context
// manager calls this after a validated switch so the session always reflects
// the current organizational context.
func (m *Manager) SetTenant(t *identity.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}
	if t == nil {
		m.session.Tenant = nil
		return
	}
	copied := *t
	m.session.Tenant = &copied
}

// beginAttempt invalidates any in-flight work and enters Authenticating.
func (m *Manager) beginAttempt() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.cancelTimerLocked()
	m.session = nil
	m.state = StateAuthenticating
	return m.seq
}

// abandonAttempt rolls an attempt back to Unauthenticated unless a newer
// generation has already taken over.
func (m *Manager) abandonAttempt(seq uint64, clearToken bool) {
	m.mu.Lock()
	current := m.seq == seq
	if current {
		m.clearLocked(StateUnauthenticated)
	}
	m.mu.Unlock()
	if !current {
		// A superseding generation owns the state now; a stale
		// unauthenticated event here would contradict it.
		return
	}
	if clearToken {
		if err := m.tokens.Clear(); err != nil {
			m.logger.Warn("clear token reference", zap.Error(err))
		}
	}
	m.notify(StateUnauthenticated, nil)
}

// install validates the incoming session, recomputes the denormalized
// permission list from the role, stores the session, and schedules the next
// refresh. The persisted token is updated by the caller when persist is set.
func (m *Manager) install(seq uint64, sess identity.Session, persist bool) error {
	perms, err := m.resolver.Resolve(sess.User.Role)
	if err != nil {
		// An unknown role on a backend-issued session is a programming
		// error somewhere in the pipeline; refuse the session.
		return fmt.Errorf("resolve permissions for role %q: %w", sess.User.Role, err)
	}
	if len(sess.User.Permissions) != len(perms) {
		m.logger.Debug("denormalized permission list stale, recomputed from role",
			zap.String("role", string(sess.User.Role)))
	}
	sess.User.Permissions = perms

	m.mu.Lock()
	if m.seq != seq {
		// A newer login/logout superseded this attempt mid-flight.
		m.mu.Unlock()
		return nil
	}
	m.session = &sess
	m.state = StateAuthenticated
	m.scheduleRefreshLocked(seq)
	user := sess.User
	m.mu.Unlock()

	if persist {
		if err := m.tokens.Save(sess.Token); err != nil {
			m.logger.Warn("persist token reference", zap.Error(err))
		}
	}
	m.notify(StateAuthenticated, &user)
	return nil
}

// scheduleRefreshLocked arranges a one-shot refresh ahead of expiry,
// replacing any previously scheduled timer. At most one refresh is pending
// per session generation.
func (m *Manager) scheduleRefreshLocked(seq uint64) {
	m.cancelTimerLocked()
	delay := refreshDelay(m.session.ExpiresAt, m.now(), m.margin)
	m.timer = time.AfterFunc(delay, func() { m.refresh(seq) })
}

// refresh exchanges the current token for a fresh one. On failure the session
// is dropped and the manager becomes unauthenticated; re-authentication is
// the caller's responsibility (no automatic retry).
func (m *Manager) refresh(seq uint64) {
	m.mu.Lock()
	if m.seq != seq || m.session == nil || m.state != StateAuthenticated {
		// Stale timer from a session that was replaced or torn down.
		m.mu.Unlock()
		return
	}
	m.state = StateRefreshing
	token := m.session.Token
	user := m.session.User
	m.mu.Unlock()
	m.notify(StateRefreshing, &user)

	sess, err := m.backend.RefreshSession(context.Background(), token)
	if err != nil {
		m.logger.Warn("session refresh failed", zap.Error(err))
		m.mu.Lock()
		current := m.seq == seq
		if current {
			m.clearLocked(StateUnauthenticated)
		}
		m.mu.Unlock()
		if current {
			if clearErr := m.tokens.Clear(); clearErr != nil {
				m.logger.Warn("clear token reference", zap.Error(clearErr))
			}
			m.notify(StateUnauthenticated, nil)
		}
		return
	}

	// Refresh preserves identity: same user, new token and expiry.
	if err := m.install(seq, sess, true); err != nil {
		m.logger.Warn("refreshed session rejected", zap.Error(err))
		m.mu.Lock()
		current := m.seq == seq
		if current {
			m.clearLocked(StateUnauthenticated)
		}
		m.mu.Unlock()
		if current {
			m.notify(StateUnauthenticated, nil)
		}
	}
}

// expireLocked lazily retires a session whose expiry passed without a
// successful refresh.
func (m *Manager) expireLocked() {
	if m.session == nil || m.state == StateRefreshing {
		return
	}
	if m.now().After(m.session.ExpiresAt) {
		m.clearLocked(StateExpired)
	}
}

func (m *Manager) clearLocked(next State) {
	m.seq++
	m.cancelTimerLocked()
	m.session = nil
	m.state = next
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) notify(state State, user *identity.User) {
	m.mu.Lock()
	observers := make([]ChangeFunc, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(state, user)
	}
}

// refreshDelay computes how long to wait before refreshing a session that
// expires at expiresAt: the remaining lifetime minus the margin, floored at
// zero so already-urgent sessions refresh immediately.
func refreshDelay(expiresAt, now time.Time, margin time.Duration) time.Duration {
	delay := expiresAt.Sub(now) - margin
	if delay < 0 {
		return 0
	}
	return delay
}
