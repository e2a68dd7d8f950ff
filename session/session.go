// Package session provides API session management for the MyCoach backend.
//
// Sessions are stateless HS256 JWTs: the token carries the session and user
// identifiers, and validation needs no storage round trip.
//
//	strategy := session.NewHS256Strategy(secret, 24*time.Hour)
//	manager := session.NewManager(strategy)
//
//	sess, err := manager.Create(sessionID, userID)
//	token := sess.Token // send to client
//
//	sess, err = manager.Validate(token)
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session represents an authenticated API session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Strategy defines the interface for session token strategies.
type Strategy interface {
	Create(sessionID, userID string) (*Session, error)
	Validate(token string) (*Session, error)
}

// Claims represents the data stored in the JWT.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// JWTStrategy implements Strategy with HS256-signed JWTs.
type JWTStrategy struct {
	secret []byte
	expiry time.Duration
}

// NewHS256Strategy creates a JWT strategy signing with the given secret.
func NewHS256Strategy(secret string, expiry time.Duration) *JWTStrategy {
	return &JWTStrategy{secret: []byte(secret), expiry: expiry}
}

func (s *JWTStrategy) Create(sessionID, userID string) (*Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        sessionID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		IssuedAt:  now,
	}, nil
}

func (s *JWTStrategy) Validate(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("session: invalid token claims")
	}

	return &Session{
		ID:        claims.SessionID,
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
		IssuedAt:  claims.IssuedAt.Time,
	}, nil
}

// Manager handles session lifecycle operations, delegating token mechanics
// to the configured Strategy.
type Manager struct {
	strategy Strategy
}

// NewManager creates a new session Manager with the given strategy.
func NewManager(strategy Strategy) *Manager {
	return &Manager{strategy: strategy}
}

func (m *Manager) Create(sessionID, userID string) (*Session, error) {
	return m.strategy.Create(sessionID, userID)
}

func (m *Manager) Validate(token string) (*Session, error) {
	return m.strategy.Validate(token)
}
