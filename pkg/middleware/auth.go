package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	claimsKey    = "claims"
	principalKey = "principal"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the
// provided verifier and resolves the caller into a models.Principal.
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			apperr.Respond(c, apperr.Unauthenticated("missing_token", "missing Authorization header"))
			return
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			apperr.Respond(c, apperr.Unauthenticated("invalid_token", "invalid Authorization header"))
			return
		}

		verified, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			apperr.Respond(c, apperr.Unauthenticated("invalid_token", "invalid token"))
			return
		}

		var claims map[string]interface{}
		if err := verified.Claims(&claims); err != nil {
			apperr.Respond(c, apperr.Unauthenticated("invalid_token", "failed to parse claims"))
			return
		}
		p, ok := principalFromClaims(claims)
		if !ok {
			apperr.Respond(c, apperr.Unauthenticated("invalid_token", "token has no usable subject"))
			return
		}

		c.Set(claimsKey, claims)
		SetPrincipal(c, p)
		c.Next()
	}
}

// principalFromClaims maps token claims to a principal. Edge tokens carry
// kind=edge and the bound team.
func principalFromClaims(claims map[string]interface{}) (models.Principal, bool) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return models.Principal{}, false
	}
	p := models.Principal{ID: sub, Kind: models.PrincipalUser}
	p.Email, _ = claims["email"].(string)
	if kind, _ := claims["kind"].(string); kind == string(models.PrincipalEdge) {
		p.Kind = models.PrincipalEdge
		p.TeamID, _ = claims["team"].(string)
		if p.TeamID == "" {
			return models.Principal{}, false
		}
	}
	return p, true
}

func SetPrincipal(c *gin.Context, p models.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the caller resolved by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

type chain []Verifier

// FirstOf tries each verifier in order and returns the first success. Nil
// entries are skipped.
func FirstOf(vers ...Verifier) Verifier {
	out := make(chain, 0, len(vers))
	for _, v := range vers {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (c chain) Verify(ctx context.Context, raw string) (Token, error) {
	err := errors.New("no verifier configured")
	for _, v := range c {
		var tok Token
		if tok, err = v.Verify(ctx, raw); err == nil {
			return tok, nil
		}
	}
	return nil, err
}
