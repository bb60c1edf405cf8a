// Package store persists portal sessions: the opaque browser cookie value and
// the access/refresh tokens held for that user. Tokens are sealed at rest
// when a session secret is configured.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"schoolportal/internal/model"

	_ "modernc.org/sqlite"
)

const sessionTTL = 30 * 24 * time.Hour

type Store struct {
	db   *sql.DB
	seal *sealer
}

// New opens the session database. secret keys the at-rest token sealing; an
// empty secret stores tokens in the clear (local development only).
func New(dbPath, secret string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	sl, err := newSealer(secret)
	if err != nil {
		return nil, fmt.Errorf("init sealer: %w", err)
	}
	s := &Store{db: db, seal: sl}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS portal_sessions (
		id TEXT PRIMARY KEY,
		access_token BLOB NOT NULL,
		refresh_token BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession stores a new portal session and returns its cookie value.
func (s *Store) CreateSession(access, refresh string) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	sealedAccess, err := s.seal.seal([]byte(access))
	if err != nil {
		return "", err
	}
	sealedRefresh, err := s.seal.seal([]byte(refresh))
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO portal_sessions (id, access_token, refresh_token, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, sealedAccess, sealedRefresh, now, now.Add(sessionTTL),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetSession returns the session for the given cookie value, or nil if it
// does not exist or has expired.
func (s *Store) GetSession(id string) (*model.PortalSession, error) {
	var (
		sess                        model.PortalSession
		sealedAccess, sealedRefresh []byte
	)
	err := s.db.QueryRow(
		`SELECT id, access_token, refresh_token, created_at, expires_at FROM portal_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sealedAccess, &sealedRefresh, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteSession(id)
		return nil, nil
	}
	access, err := s.seal.open(sealedAccess)
	if err != nil {
		return nil, fmt.Errorf("unseal access token: %w", err)
	}
	refresh, err := s.seal.open(sealedRefresh)
	if err != nil {
		return nil, fmt.Errorf("unseal refresh token: %w", err)
	}
	sess.AccessToken = string(access)
	sess.RefreshToken = string(refresh)
	return &sess, nil
}

// UpdateTokens replaces the stored token pair after a refresh rotation.
func (s *Store) UpdateTokens(id, access, refresh string) error {
	sealedAccess, err := s.seal.seal([]byte(access))
	if err != nil {
		return err
	}
	sealedRefresh, err := s.seal.seal([]byte(refresh))
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE portal_sessions SET access_token = ?, refresh_token = ? WHERE id = ?`,
		sealedAccess, sealedRefresh, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM portal_sessions WHERE id = ?`, id)
	return err
}

// CleanupExpired removes all expired sessions and reports how many went away.
func (s *Store) CleanupExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM portal_sessions WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM portal_sessions`).Scan(&count)
	return count, err
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
