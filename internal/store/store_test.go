package store

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T, secret string) *Store {
	t.Helper()
	s, err := New(":memory:", secret)
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t, "")

	id, err := s.CreateSession("access-1", "refresh-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if len(id) != 64 {
		t.Errorf("session id length = %d, want 64 hex chars", len(id))
	}

	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil {
		t.Fatal("GetSession returned nil for a live session")
	}
	if sess.AccessToken != "access-1" || sess.RefreshToken != "refresh-1" {
		t.Errorf("tokens = (%q, %q), want originals", sess.AccessToken, sess.RefreshToken)
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		t.Errorf("expires_at %v not after created_at %v", sess.ExpiresAt, sess.CreatedAt)
	}

	// Unknown cookie value is a miss, not an error.
	missing, err := s.GetSession("no-such-session")
	if err != nil {
		t.Fatalf("GetSession(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("GetSession(missing) = %+v, want nil", missing)
	}

	if err := s.DeleteSession(id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	gone, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession after delete: %v", err)
	}
	if gone != nil {
		t.Error("session still readable after delete")
	}

	// Deleting again is a no-op.
	if err := s.DeleteSession(id); err != nil {
		t.Errorf("DeleteSession(deleted): %v", err)
	}
}

func TestUpdateTokens(t *testing.T) {
	s := newTestStore(t, "")

	id, err := s.CreateSession("access-1", "refresh-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := s.UpdateTokens(id, "access-2", "refresh-2"); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}
	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.AccessToken != "access-2" || sess.RefreshToken != "refresh-2" {
		t.Errorf("tokens = (%q, %q), want rotated pair", sess.AccessToken, sess.RefreshToken)
	}

	if err := s.UpdateTokens("no-such-session", "a", "r"); err == nil {
		t.Error("UpdateTokens on missing session succeeded, want error")
	}
}

func TestExpiredSessionIsDropped(t *testing.T) {
	s := newTestStore(t, "")

	id, err := s.CreateSession("access-1", "refresh-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Backdate past the TTL.
	_, err = s.db.Exec(`UPDATE portal_sessions SET expires_at = ? WHERE id = ?`,
		time.Now().Add(-time.Hour), id)
	if err != nil {
		t.Fatalf("backdate session: %v", err)
	}

	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess != nil {
		t.Fatal("expired session still resumable")
	}

	// The expired row was deleted on read.
	count, err := s.SessionCount()
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if count != 0 {
		t.Errorf("SessionCount = %d after expired read, want 0", count)
	}
}

func TestCleanupExpired(t *testing.T) {
	s := newTestStore(t, "")

	live, err := s.CreateSession("a1", "r1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	stale, err := s.CreateSession("a2", "r2")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	_, err = s.db.Exec(`UPDATE portal_sessions SET expires_at = ? WHERE id = ?`,
		time.Now().Add(-time.Minute), stale)
	if err != nil {
		t.Fatalf("backdate session: %v", err)
	}

	n, err := s.CleanupExpired()
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupExpired deleted %d rows, want 1", n)
	}

	sess, err := s.GetSession(live)
	if err != nil {
		t.Fatalf("GetSession(live): %v", err)
	}
	if sess == nil {
		t.Error("live session removed by cleanup")
	}
}

func TestTokensSealedAtRest(t *testing.T) {
	s := newTestStore(t, "portal-secret")

	access := "eyJhbGciOiJIUzI1NiJ9.access-token"
	id, err := s.CreateSession(access, "refresh-token")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Read the raw column: the plaintext token must not appear on disk.
	var raw []byte
	if err := s.db.QueryRow(`SELECT access_token FROM portal_sessions WHERE id = ?`, id).Scan(&raw); err != nil {
		t.Fatalf("read raw token: %v", err)
	}
	if bytes.Contains(raw, []byte(access)) {
		t.Error("access token stored in the clear despite a configured secret")
	}

	// And it round-trips through GetSession.
	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.AccessToken != access {
		t.Errorf("unsealed token = %q, want original", sess.AccessToken)
	}
}

func TestSealerRoundTrip(t *testing.T) {
	sl, err := newSealer("secret")
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	plaintext := []byte("token-value")
	sealed, err := sl.seal(plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(sealed, plaintext) {
		t.Fatal("sealed output equals plaintext")
	}

	opened, err := sl.open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("open = %q, want %q", opened, plaintext)
	}

	// Wrong key fails closed.
	other, err := newSealer("different-secret")
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}
	if _, err := other.open(sealed); err == nil {
		t.Error("open with wrong key succeeded")
	}

	// Truncated input fails closed.
	if _, err := sl.open(sealed[:4]); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("open(truncated) = %v, want too-short error", err)
	}

	// Empty secret passes bytes through.
	plain, err := newSealer("")
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}
	passthrough, err := plain.seal(plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !bytes.Equal(passthrough, plaintext) {
		t.Errorf("passthrough seal = %q, want %q", passthrough, plaintext)
	}
}
