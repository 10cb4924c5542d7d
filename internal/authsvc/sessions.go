// internal/authsvc/sessions.go
package authsvc

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"anybook/internal/identity"
)

const sessionTTL = 24 * time.Hour

// sessionClaims is the JWT payload carried by session tokens.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// SessionManager tracks the acting session and mints the signed tokens that
// make a snapshot restorable. Restore refuses tokens it did not sign or that
// have expired, so a stale snapshot surfaces as an error rather than
// silently reinstating the wrong identity.
type SessionManager struct {
	mu      sync.Mutex
	secret  []byte
	current identity.Session
	active  bool
	now     func() time.Time
}

func NewSessionManager(secret []byte) *SessionManager {
	return &SessionManager{secret: secret, now: time.Now}
}

func (m *SessionManager) Current() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return uuid.Nil, false
	}
	return m.current.ID, true
}

func (m *SessionManager) Snapshot() identity.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return identity.Session{}
	}
	return m.current
}

func (m *SessionManager) Restore(s identity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s == (identity.Session{}) {
		m.current = identity.Session{}
		m.active = false
		return nil
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(s.Token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("session token no longer valid")
	}
	if claims.Subject != s.ID.String() {
		return fmt.Errorf("session token subject mismatch")
	}

	m.current = s
	m.active = true
	return nil
}

// Begin starts a session for id, minting a fresh token.
func (m *SessionManager) Begin(id uuid.UUID) error {
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(m.now().Add(sessionTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = identity.Session{ID: id, Token: signed}
	m.active = true
	return nil
}

// End clears the session.
func (m *SessionManager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = identity.Session{}
	m.active = false
}
