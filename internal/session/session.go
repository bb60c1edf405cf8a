// Package session is the single source of truth for who the current user is.
// Each browser session owns one Session: the token pair held for that user,
// the identity decoded from the access token, and a lazily fetched profile.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"schoolportal/internal/api"
	"schoolportal/internal/model"
	"schoolportal/internal/store"
)

// ErrNoSession is returned when a cookie does not resolve to a live session.
var ErrNoSession = errors.New("session: no active session")

// Manager creates, resumes, and destroys portal sessions. It keeps one live
// Session per cookie value: all requests carrying the same cookie share that
// Session and its API client, so concurrent token refreshes coalesce instead
// of racing the rotating refresh token.
type Manager struct {
	store  *store.Store
	apiURL string

	mu   sync.Mutex
	live map[string]*Session
}

// NewManager wires the session layer to its durable store and the API origin.
func NewManager(st *store.Store, apiURL string) *Manager {
	return &Manager{store: st, apiURL: apiURL, live: make(map[string]*Session)}
}

// Session holds one authenticated user's state. All fields derive from the
// access token or the profile endpoint; nothing here is client-invented.
type Session struct {
	mgr *Manager
	id  string

	mu          sync.Mutex
	access      string
	refresh     string
	identity    model.Identity
	profile     *model.Profile
	profileBusy bool
	dead        bool

	client *api.Client
}

// bareClient is an unauthenticated client for login-type calls.
func (m *Manager) bareClient() *api.Client {
	return api.New(m.apiURL)
}

// Login exchanges credentials for tokens, persists them, and returns the new
// session. On failure nothing is stored and the server's error text is
// surfaced via *api.Error.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*Session, error) {
	pair, err := m.bareClient().Login(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}
	return m.adopt(pair)
}

// PasskeyLoginOptions starts the passkey ceremony for an identifier. The
// returned JSON goes straight to the browser's authenticator API.
func (m *Manager) PasskeyLoginOptions(ctx context.Context, identifier string) (json.RawMessage, error) {
	return m.bareClient().PasskeyLoginOptions(ctx, identifier)
}

// PasskeyLogin completes the passkey ceremony with the browser's assertion.
// On success it follows the same token-storage contract as Login.
func (m *Manager) PasskeyLogin(ctx context.Context, assertion json.RawMessage) (*Session, error) {
	pair, err := m.bareClient().PasskeyLoginVerify(ctx, assertion)
	if err != nil {
		return nil, err
	}
	return m.adopt(pair)
}

// adopt turns a freshly issued token pair into a durable session. The token
// must decode; a pair the portal cannot decode is never stored, so a session
// is either fully populated or absent.
func (m *Manager) adopt(pair api.TokenPair) (*Session, error) {
	identity, err := DecodeIdentity(pair.AccessToken)
	if err != nil {
		return nil, err
	}
	id, err := m.store.CreateSession(pair.AccessToken, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	sess := m.newSession(id, pair.AccessToken, pair.RefreshToken, identity)
	m.mu.Lock()
	m.live[id] = sess
	m.mu.Unlock()
	slog.Info("session created", "user", identity.UserID, "role", identity.Role)
	return sess, nil
}

// Resume returns the live session for a cookie value, rebuilding it from the
// store only when no live one exists. A stored token that no longer decodes
// tears the whole session down. Expiry is not checked here: an expired token
// fails downstream and takes the refresh path.
func (m *Manager) Resume(id string) (*Session, error) {
	m.mu.Lock()
	if sess := m.live[id]; sess != nil {
		if sess.Alive() {
			m.mu.Unlock()
			return sess, nil
		}
		delete(m.live, id)
	}
	m.mu.Unlock()

	row, err := m.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if row == nil {
		return nil, ErrNoSession
	}
	identity, err := DecodeIdentity(row.AccessToken)
	if err != nil {
		slog.Warn("stored token no longer decodes, destroying session", "error", err)
		_ = m.store.DeleteSession(id)
		return nil, ErrNoSession
	}

	sess := m.newSession(id, row.AccessToken, row.RefreshToken, identity)
	m.mu.Lock()
	defer m.mu.Unlock()
	// A concurrent resume of the same cookie may have won; everyone shares the
	// winner so only one client exists per session.
	if cur := m.live[id]; cur != nil && cur.Alive() {
		return cur, nil
	}
	m.live[id] = sess
	return sess, nil
}

func (m *Manager) newSession(id, access, refresh string, identity model.Identity) *Session {
	sess := &Session{
		mgr:      m,
		id:       id,
		access:   access,
		refresh:  refresh,
		identity: identity,
	}
	sess.client = api.New(m.apiURL,
		api.WithTokenSource(sess),
		api.WithAuthFailureHook(func() {
			if err := m.Logout(sess); err != nil {
				slog.Error("logout after auth failure", "error", err)
			}
		}),
	)
	return sess
}

// Logout destroys a session: durable row and in-memory fields both go. It is
// safe to call with nil or an already-dead session.
func (m *Manager) Logout(sess *Session) error {
	if sess == nil {
		return nil
	}
	m.mu.Lock()
	if m.live[sess.id] == sess {
		delete(m.live, sess.id)
	}
	m.mu.Unlock()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.dead {
		return nil
	}
	sess.dead = true
	sess.access = ""
	sess.refresh = ""
	sess.identity = model.Identity{}
	sess.profile = nil
	if err := m.store.DeleteSession(sess.id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// LogoutID destroys a session by cookie value alone, for requests that never
// resolved a full session.
func (m *Manager) LogoutID(id string) error {
	m.mu.Lock()
	sess := m.live[id]
	m.mu.Unlock()
	if sess != nil {
		return m.Logout(sess)
	}
	return m.store.DeleteSession(id)
}

// ID returns the cookie value identifying this session.
func (s *Session) ID() string { return s.id }

// API returns the authenticated client bound to this session's tokens.
func (s *Session) API() *api.Client { return s.client }

// Identity returns the claims decoded from the current access token.
func (s *Session) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Alive reports whether the session has not been logged out.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.dead
}

// AccessToken implements api.TokenSource.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// RefreshToken implements api.TokenSource.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

// SetTokens implements api.TokenSource: it persists a rotated pair and
// re-decodes the identity from the new access token.
func (s *Session) SetTokens(access, refresh string) error {
	identity, err := DecodeIdentity(access)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrNoSession
	}
	if err := s.mgr.store.UpdateTokens(s.id, access, refresh); err != nil {
		return err
	}
	s.access = access
	s.refresh = refresh
	s.identity = identity
	// Profile stays: it belongs to the user, not the token.
	return nil
}

// RefreshProfile fetches the extended profile and merges it over the token
// claims. A call while another is in flight returns the current snapshot
// instead of racing a duplicate request.
func (s *Session) RefreshProfile(ctx context.Context) (model.Profile, error) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return model.Profile{}, ErrNoSession
	}
	if s.profileBusy {
		merged := s.mergedLocked()
		s.mu.Unlock()
		return merged, nil
	}
	s.profileBusy = true
	s.mu.Unlock()

	fetched, err := s.client.Me(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileBusy = false
	if err != nil {
		return model.Profile{}, err
	}
	s.profile = &fetched
	return s.mergedLocked(), nil
}

// Profile returns the merged profile view: token claims as the base, fetched
// profile fields overlaid where non-absent. If the profile was never fetched,
// this fetches it once.
func (s *Session) Profile(ctx context.Context) (model.Profile, error) {
	s.mu.Lock()
	if s.profile != nil || s.profileBusy {
		merged := s.mergedLocked()
		s.mu.Unlock()
		return merged, nil
	}
	s.mu.Unlock()
	return s.RefreshProfile(ctx)
}

// mergedLocked builds the superset merge of identity and fetched profile.
// Callers must hold s.mu.
func (s *Session) mergedLocked() model.Profile {
	merged := model.Profile{
		ID:       s.identity.UserID,
		FullName: s.identity.FullName,
		Email:    s.identity.Email,
	}
	if s.profile == nil {
		return merged
	}
	p := *s.profile
	if p.ID != "" {
		merged.ID = p.ID
	}
	if p.FullName != "" {
		merged.FullName = p.FullName
	}
	if p.Email != "" {
		merged.Email = p.Email
	}
	merged.Phone = p.Phone
	merged.Address = p.Address
	merged.PhotoURL = p.PhotoURL
	merged.ClassName = p.ClassName
	return merged
}
