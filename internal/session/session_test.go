package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"schoolportal/internal/api"
	"schoolportal/internal/model"
	"schoolportal/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:", "test-secret")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// signToken builds a token shaped like the API's access tokens. The portal
// never verifies the signature, but real tokens are signed, so the fixture is.
func signToken(t *testing.T, sub, role, name, email string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":       sub,
		"role":      role,
		"full_name": name,
		"email":     email,
		"exp":       time.Now().Add(15 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("upstream-secret"))
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	return signed
}

// fakeAPI is a minimal upstream serving login, refresh, and profile.
type fakeAPI struct {
	t *testing.T

	mu      sync.Mutex
	profile model.Profile
	meHold  chan struct{} // when set, /auth/me blocks until closed
	meCalls int
}

func (f *fakeAPI) server(accessToken string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad form", http.StatusBadRequest)
				return
			}
			if r.PostForm.Get("username") != "ada" || r.PostForm.Get("password") != "pw" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail": "Invalid credentials"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(api.TokenPair{AccessToken: accessToken, RefreshToken: "refresh-1"})
		case "/auth/me":
			f.mu.Lock()
			hold := f.meHold
			f.meCalls++
			f.mu.Unlock()
			if hold != nil {
				<-hold
			}
			f.mu.Lock()
			profile := f.profile
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(profile)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLoginCreatesResumableSession(t *testing.T) {
	st := newTestStore(t)
	token := signToken(t, "u1", "teacher", "Ada Lovelace", "ada@school.test")
	f := &fakeAPI{t: t}
	srv := f.server(token)
	defer srv.Close()

	m := NewManager(st, srv.URL)

	sess, err := m.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	id := sess.Identity()
	if id.UserID != "u1" || id.Role != model.RoleTeacher {
		t.Errorf("identity = %+v, want u1/teacher", id)
	}
	if id.FullName != "Ada Lovelace" {
		t.Errorf("full name = %q", id.FullName)
	}

	// The same cookie value resumes to the same identity.
	resumed, err := m.Resume(sess.ID())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := resumed.Identity(); got != id {
		t.Errorf("resumed identity = %+v, want %+v", got, id)
	}
}

func TestLoginFailureStoresNothing(t *testing.T) {
	st := newTestStore(t)
	f := &fakeAPI{t: t}
	srv := f.server(signToken(t, "u1", "teacher", "Ada", ""))
	defer srv.Close()

	m := NewManager(st, srv.URL)

	_, err := m.Login(context.Background(), "ada", "wrong")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("Login error = %v, want 401 *Error", err)
	}
	if apiErr.Detail != "Invalid credentials" {
		t.Errorf("error detail = %q, want server text", apiErr.Detail)
	}

	count, err := st.SessionCount()
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if count != 0 {
		t.Errorf("SessionCount = %d after failed login, want 0", count)
	}
}

func TestUndecodableTokenNeverStored(t *testing.T) {
	st := newTestStore(t)
	f := &fakeAPI{t: t}
	srv := f.server("not-a-jwt")
	defer srv.Close()

	m := NewManager(st, srv.URL)

	if _, err := m.Login(context.Background(), "ada", "pw"); err == nil {
		t.Fatal("Login with undecodable token succeeded")
	}
	count, err := st.SessionCount()
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if count != 0 {
		t.Errorf("SessionCount = %d, want 0: a half-built session leaked", count)
	}
}

func TestResumeTearsDownCorruptSession(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, "http://unused.test")

	id, err := st.CreateSession("garbage-token", "refresh")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := m.Resume(id); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Resume(corrupt) = %v, want ErrNoSession", err)
	}

	// The corrupt row is gone, so the next resume misses cleanly.
	if _, err := m.Resume(id); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Resume = %v, want ErrNoSession", err)
	}
	count, err := st.SessionCount()
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if count != 0 {
		t.Errorf("SessionCount = %d, want 0", count)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	f := &fakeAPI{t: t}
	srv := f.server(signToken(t, "u1", "student", "Ada", ""))
	defer srv.Close()

	m := NewManager(st, srv.URL)
	sess, err := m.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := m.Logout(sess); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if sess.Alive() {
		t.Error("session alive after logout")
	}
	if sess.AccessToken() != "" || sess.RefreshToken() != "" {
		t.Error("tokens survive logout")
	}
	if _, err := m.Resume(sess.ID()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Resume after logout = %v, want ErrNoSession", err)
	}

	// Again, and with nil.
	if err := m.Logout(sess); err != nil {
		t.Errorf("second Logout: %v", err)
	}
	if err := m.Logout(nil); err != nil {
		t.Errorf("Logout(nil): %v", err)
	}
}

func TestSetTokensRotatesIdentityAndStore(t *testing.T) {
	st := newTestStore(t)
	f := &fakeAPI{t: t}
	srv := f.server(signToken(t, "u1", "student", "Ada", ""))
	defer srv.Close()

	m := NewManager(st, srv.URL)
	sess, err := m.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rotated := signToken(t, "u1", "student", "Ada L.", "ada@school.test")
	if err := sess.SetTokens(rotated, "refresh-2"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if got := sess.Identity().FullName; got != "Ada L." {
		t.Errorf("identity after rotation = %q, want re-decoded claims", got)
	}

	// The rotation is durable: a fresh resume sees the new pair.
	resumed, err := m.Resume(sess.ID())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.AccessToken() != rotated || resumed.RefreshToken() != "refresh-2" {
		t.Error("rotated pair not persisted")
	}

	// A pair that does not decode is rejected and nothing changes.
	if err := sess.SetTokens("garbage", "refresh-3"); err == nil {
		t.Fatal("SetTokens(garbage) succeeded")
	}
	if sess.AccessToken() != rotated {
		t.Error("failed rotation clobbered the stored token")
	}
}

func TestProfileMergeIsSuperset(t *testing.T) {
	st := newTestStore(t)
	f := &fakeAPI{t: t, profile: model.Profile{
		Phone:     "555-0101",
		Address:   "12 Byron Rd",
		ClassName: "7B",
	}}
	srv := f.server(signToken(t, "u1", "student", "Ada Lovelace", "ada@school.test"))
	defer srv.Close()

	m := NewManager(st, srv.URL)
	sess, err := m.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	got, err := sess.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	// Claims fill what the profile endpoint left empty.
	if got.ID != "u1" || got.FullName != "Ada Lovelace" || got.Email != "ada@school.test" {
		t.Errorf("merged identity fields = %+v", got)
	}
	// Fetched fields overlay.
	if got.Phone != "555-0101" || got.ClassName != "7B" {
		t.Errorf("merged profile fields = %+v", got)
	}

	// A second Profile call serves the cached merge without refetching.
	if _, err := sess.Profile(context.Background()); err != nil {
		t.Fatalf("second Profile: %v", err)
	}
	f.mu.Lock()
	calls := f.meCalls
	f.mu.Unlock()
	if calls != 1 {
		t.Errorf("/auth/me called %d times, want 1", calls)
	}
}

func TestRefreshProfileSuppressedWhileBusy(t *testing.T) {
	st := newTestStore(t)
	hold := make(chan struct{})
	f := &fakeAPI{t: t, meHold: hold, profile: model.Profile{Phone: "555-0101"}}
	srv := f.server(signToken(t, "u1", "parent", "Grace", "grace@school.test"))
	defer srv.Close()

	m := NewManager(st, srv.URL)
	sess, err := m.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := sess.RefreshProfile(context.Background())
		done <- err
	}()
	<-started
	// Wait for the in-flight request to reach the server.
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		calls := f.meCalls
		f.mu.Unlock()
		if calls == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first RefreshProfile never reached the server")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The overlapping call returns the current snapshot instead of queuing a
	// second fetch.
	snapshot, err := sess.RefreshProfile(context.Background())
	if err != nil {
		t.Fatalf("suppressed RefreshProfile: %v", err)
	}
	if snapshot.FullName != "Grace" {
		t.Errorf("snapshot = %+v, want claims-derived fields", snapshot)
	}
	if snapshot.Phone != "" {
		t.Errorf("snapshot phone = %q before fetch completed, want empty", snapshot.Phone)
	}

	close(hold)
	if err := <-done; err != nil {
		t.Fatalf("first RefreshProfile: %v", err)
	}
	f.mu.Lock()
	calls := f.meCalls
	f.mu.Unlock()
	if calls != 1 {
		t.Errorf("/auth/me called %d times, want 1", calls)
	}
}

func TestResumeSharesLiveSession(t *testing.T) {
	st := newTestStore(t)
	f := &fakeAPI{t: t}
	srv := f.server(signToken(t, "u1", "student", "Ada", ""))
	defer srv.Close()

	m := NewManager(st, srv.URL)
	sess, err := m.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	first, err := m.Resume(sess.ID())
	if err != nil {
		t.Fatalf("first Resume: %v", err)
	}
	second, err := m.Resume(sess.ID())
	if err != nil {
		t.Fatalf("second Resume: %v", err)
	}
	if first != sess || second != sess {
		t.Error("resumes built new sessions instead of sharing the live one")
	}

	// After logout the cookie resolves nothing, live cache included.
	if err := m.Logout(sess); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := m.Resume(sess.ID()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Resume after logout = %v, want ErrNoSession", err)
	}
}

// TestConcurrentRequestsShareOneRefresh drives two requests of the same
// browser session into simultaneous 401s against an upstream that rotates the
// refresh token on every exchange. Both must recover through a single refresh;
// a second refresh would present the consumed token, fail, and destroy a
// perfectly valid session.
func TestConcurrentRequestsShareOneRefresh(t *testing.T) {
	st := newTestStore(t)
	staleAccess := signToken(t, "u1", "student", "Ada", "")
	freshAccess := signToken(t, "u1", "student", "Ada L.", "")

	var (
		mu           sync.Mutex
		refreshCalls int
		firstRound   sync.WaitGroup
	)
	firstRound.Add(2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_ = r.ParseForm()
			_ = json.NewEncoder(w).Encode(api.TokenPair{AccessToken: staleAccess, RefreshToken: "refresh-1"})
		case "/auth/refresh":
			// Hold the exchange until both callers have taken their first 401,
			// so the test fails deterministically if they do not coalesce.
			firstRound.Wait()
			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			refreshCalls++
			calls := refreshCalls
			mu.Unlock()
			if calls > 1 || body.RefreshToken != "refresh-1" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail": "Refresh token already used"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(api.TokenPair{AccessToken: freshAccess, RefreshToken: "refresh-2"})
		case "/auth/me":
			if r.Header.Get("Authorization") != "Bearer "+freshAccess {
				firstRound.Done()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail": "Token expired"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(model.Profile{Phone: "555-0101"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := NewManager(st, srv.URL)
	sess, err := m.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Two requests of the same cookie, as two in-flight page loads would be.
	s1, err := m.Resume(sess.ID())
	if err != nil {
		t.Fatalf("Resume #1: %v", err)
	}
	s2, err := m.Resume(sess.ID())
	if err != nil {
		t.Fatalf("Resume #2: %v", err)
	}

	errs := make(chan error, 2)
	for _, s := range []*Session{s1, s2} {
		go func(s *Session) {
			_, err := s.API().Me(context.Background())
			errs <- err
		}(s)
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("request #%d failed: %v", i+1, err)
		}
	}

	mu.Lock()
	calls := refreshCalls
	mu.Unlock()
	if calls != 1 {
		t.Errorf("refresh called %d times, want 1", calls)
	}
	// The session survived the storm.
	if _, err := m.Resume(sess.ID()); err != nil {
		t.Errorf("Resume after concurrent refresh = %v, want live session", err)
	}
}

func TestDecodeIdentityRejectsPartial(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"not a token", func(t *testing.T) string { return "nope" }},
		{"unknown role", func(t *testing.T) string { return signToken(t, "u1", "janitor", "X", "") }},
		{"missing subject", func(t *testing.T) string { return signToken(t, "", "student", "X", "") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := DecodeIdentity(tt.token(t))
			if err == nil {
				t.Fatal("DecodeIdentity succeeded, want error")
			}
			if id != (model.Identity{}) {
				t.Errorf("partial identity returned: %+v", id)
			}
		})
	}
}
