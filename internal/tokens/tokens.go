// Package tokens issues and verifies the service's own HS256 bearer tokens.
// User tokens carry sub and email; edge node tokens also carry kind=edge and
// the bound team.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

var ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")

type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// IssueUser signs an access token for a human user.
func (m *Manager) IssueUser(sub, email string) (string, error) {
	return m.sign(jwt.MapClaims{"sub": sub, "email": email, "kind": string(models.PrincipalUser)})
}

// IssueEdge signs an access token for an edge node bound to teamID.
func (m *Manager) IssueEdge(nodeID, teamID string) (string, error) {
	return m.sign(jwt.MapClaims{"sub": nodeID, "team": teamID, "kind": string(models.PrincipalEdge)})
}

// TTL is the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) sign(claims jwt.MapClaims) (string, error) {
	now := m.now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(m.ttl).Unix()
	if m.issuer != "" {
		claims["iss"] = m.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify implements middleware.Verifier.
func (m *Manager) Verify(_ context.Context, raw string) (middleware.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) { return m.secret, nil }, opts...)
	if err != nil {
		return nil, err
	}
	return token(claims), nil
}

type token jwt.MapClaims

func (t token) Claims(v interface{}) error {
	b, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
