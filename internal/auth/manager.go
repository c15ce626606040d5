package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "socialcredit"

var (
	ErrStateNotFound = errors.New("oauth state not found or expired")
	ErrInvalidToken  = errors.New("invalid session token")
)

// Manager handles OAuth login state and session token issuance.
type Manager struct {
	secret []byte
	mu     sync.Mutex
	states map[string]time.Time
	ttl    time.Duration
}

// NewManager creates a Manager with the provided secret.
func NewManager(secret string) *Manager {
	if secret == "" {
		panic("auth manager requires non-empty secret")
	}
	return &Manager{
		secret: []byte(secret),
		states: make(map[string]time.Time),
		ttl:    10 * time.Minute,
	}
}

// CreateState registers a one-time OAuth state value.
func (m *Manager) CreateState() (string, time.Time, error) {
	id, err := randomID()
	if err != nil {
		return "", time.Time{}, err
	}
	expires := time.Now().Add(m.ttl)
	m.mu.Lock()
	m.states[id] = expires
	m.mu.Unlock()
	return id, expires, nil
}

// ConsumeState validates and removes an OAuth state value.
func (m *Manager) ConsumeState(state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	expires, ok := m.states[state]
	if !ok {
		return ErrStateNotFound
	}
	delete(m.states, state)
	if time.Now().After(expires) {
		return ErrStateNotFound
	}
	return nil
}

// SweepExpired drops abandoned OAuth states and returns how many were removed.
func (m *Manager) SweepExpired() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, expires := range m.states {
		if now.After(expires) {
			delete(m.states, id)
			removed++
		}
	}
	return removed
}

// IssueToken issues a signed HS256 session token for the user id.
func (m *Manager) IssueToken(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id required")
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ValidateToken validates and returns the embedded user id.
func (m *Manager) ValidateToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
