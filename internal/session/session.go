// Package session resolves who the user is from the stored access token.
package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/apiclient"
	"github.com/xenking/kart-storefront/internal/domain/auth"
)

// State of a Manager.
type State int

const (
	Unresolved State = iota
	Resolving
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// ErrBadCredentials is returned by Login when the API rejects the
// username/password pair.
var ErrBadCredentials = errors.New("invalid username or password")

// TokenStore persists the access token.
type TokenStore interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Manager tracks the session state. It is safe for concurrent use.
type Manager struct {
	tokens TokenStore
	auth   auth.Authenticator
	lg     *zap.Logger

	mu    sync.Mutex
	state State
	user  *auth.User
}

// NewManager creates an Unresolved session. A nil lg disables logging.
func NewManager(tokens TokenStore, a auth.Authenticator, lg *zap.Logger) *Manager {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Manager{tokens: tokens, auth: a, lg: lg}
}

func (m *Manager) set(state State, u *auth.User) {
	m.mu.Lock()
	prev := m.state
	m.state, m.user = state, u
	m.mu.Unlock()

	if prev == state {
		return
	}
	fields := []zap.Field{zap.Stringer("from", prev), zap.Stringer("to", state)}
	if u != nil {
		fields = append(fields, zap.String("username", u.Username), zap.Bool("staff", u.IsStaff))
	}
	m.lg.Debug("Session state changed", fields...)
}

// Bootstrap resolves the stored token into a user. It runs once: calls
// after the first are no-ops. A token the API does not accept is cleared.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Unresolved {
		m.mu.Unlock()
		return nil
	}
	m.state = Resolving
	m.mu.Unlock()

	_, ok, err := m.tokens.Get(ctx)
	if err != nil {
		m.set(Anonymous, nil)
		return errors.Wrap(err, "read token")
	}
	if !ok {
		m.set(Anonymous, nil)
		return nil
	}

	u, err := m.auth.CurrentUser(ctx)
	if err != nil {
		m.lg.Info("Stored token rejected, signing out", zap.Error(err))
		if clearErr := m.tokens.Clear(ctx); clearErr != nil {
			m.lg.Warn("Clear token", zap.Error(clearErr))
		}
		m.set(Anonymous, nil)
		return nil
	}
	m.set(Authenticated, u)
	return nil
}

// Login exchanges credentials for a token, stores it and resolves the user.
// On failure the previous token and session are restored, so a mistyped
// password does not sign out the current user.
func (m *Manager) Login(ctx context.Context, username, password string) (*auth.User, error) {
	m.mu.Lock()
	prevState, prevUser := m.state, m.user
	m.mu.Unlock()

	prevToken, _, err := m.tokens.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read token")
	}
	stored := false
	fail := func(err error) (*auth.User, error) {
		if stored {
			if restoreErr := m.tokens.Set(ctx, prevToken); restoreErr != nil {
				m.lg.Warn("Restore token", zap.Error(restoreErr))
			}
		}
		m.set(prevState, prevUser)
		return nil, err
	}

	if prevState != Authenticated {
		m.set(Resolving, nil)
	}
	tokens, err := m.auth.Login(ctx, username, password)
	if err != nil {
		if rejected(err) {
			m.lg.Debug("Credentials rejected", zap.Error(err))
			return fail(ErrBadCredentials)
		}
		return fail(err)
	}
	stored = true
	if err := m.tokens.Set(ctx, tokens.Access); err != nil {
		return fail(errors.Wrap(err, "store token"))
	}

	u, err := m.auth.CurrentUser(ctx)
	if err != nil {
		return fail(err)
	}
	m.set(Authenticated, u)
	return u, nil
}

// Logout forgets the token. The session becomes Anonymous even when the
// token could not be removed from storage.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.tokens.Clear(ctx)
	m.set(Anonymous, nil)
	if err != nil {
		return errors.Wrap(err, "clear token")
	}
	return nil
}

// Expire drops the session after the API rejected the token mid-flight.
func (m *Manager) Expire(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		m.lg.Warn("Clear token", zap.Error(err))
	}
	m.set(Anonymous, nil)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns the signed-in user, or nil.
func (m *Manager) User() *auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Resolved reports whether the state is terminal.
func (m *Manager) Resolved() bool {
	s := m.State()
	return s == Authenticated || s == Anonymous
}

// Authenticated reports whether a user is signed in.
func (m *Manager) Authenticated() bool {
	return m.State() == Authenticated
}

// IsStaff reports whether the signed-in user is an administrator.
func (m *Manager) IsStaff() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Authenticated && m.user != nil && m.user.IsStaff
}

// Authorize returns nil when the session is signed in and, if staff is
// set, the user is an administrator.
func (m *Manager) Authorize(staff bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated || m.user == nil {
		return auth.ErrAuthRequired
	}
	if staff && !m.user.IsStaff {
		return auth.ErrForbidden
	}
	return nil
}

// rejected reports whether the token endpoint refused the credentials
// rather than failing to answer.
func rejected(err error) bool {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized
}
