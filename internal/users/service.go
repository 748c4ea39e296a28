package users

import (
	"context"
	"errors"
	"strings"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/models"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UpsertFromClaims creates or updates a user using token claims.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}, publicKey string) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" {
		return nil, apperr.Unauthenticated("missing_subject", "token has no subject")
	}
	u := &models.User{
		ID:        sub,
		Email:     normalizeEmail(email),
		PublicKey: strings.TrimSpace(publicKey),
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	u, err := s.repo.GetBySub(ctx, sub)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user_not_found", "user is not registered")
	}
	return u, err
}

// Resolve finds an invitee by id, falling back to email.
func (s *Service) Resolve(ctx context.Context, userID, email string) (*models.User, error) {
	var (
		u   *models.User
		err error
	)
	switch {
	case userID != "":
		u, err = s.repo.GetBySub(ctx, userID)
	case email != "":
		u, err = s.repo.GetByEmail(ctx, normalizeEmail(email))
	default:
		return nil, apperr.Invalid("missing_invitee", "userId or email is required")
	}
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user_not_found", "invitee is not registered")
	}
	return u, err
}

// PublicKeys returns the public key of every known id in one lookup.
func (s *Service) PublicKeys(ctx context.Context, ids []string) (map[string]*models.User, error) {
	return s.repo.GetMany(ctx, ids)
}
