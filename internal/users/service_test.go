package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/models"
)

type fakeRepo struct {
	lastUpsert *models.User
	upsertErr  error
	byEmail    map[string]*models.User
}

func (f *fakeRepo) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	f.lastUpsert = u
	// simulate repository behavior: ensure timestamps are set
	now := time.Now().UTC()
	if f.lastUpsert.CreatedAt.IsZero() {
		f.lastUpsert.CreatedAt = now
	}
	f.lastUpsert.UpdatedAt = now
	ret := *f.lastUpsert
	return &ret, f.upsertErr
}

func (f *fakeRepo) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == sub {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) GetMany(ctx context.Context, ids []string) (map[string]*models.User, error) {
	return nil, nil
}

func TestUpsertFromClaims(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	claims := map[string]interface{}{
		"sub":   "sub-123",
		"email": " X@Example.com ",
	}

	u, err := svc.UpsertFromClaims(ctx, claims, " pk-1 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "sub-123" {
		t.Fatalf("unexpected id: %s", u.ID)
	}
	if u.Email != "x@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if u.PublicKey != "pk-1" {
		t.Fatalf("unexpected public key: %q", u.PublicKey)
	}
	if repo.lastUpsert == nil {
		t.Fatal("expected repository UpsertBySub to be called")
	}
	if repo.lastUpsert.CreatedAt.After(repo.lastUpsert.UpdatedAt) {
		t.Fatalf("createdAt after updatedAt: %v > %v", repo.lastUpsert.CreatedAt, repo.lastUpsert.UpdatedAt)
	}

	// missing sub is an authentication problem, not a silent no-op
	_, err = svc.UpsertFromClaims(ctx, map[string]interface{}{"email": "y@e.com"}, "")
	if !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	bob := &models.User{ID: "u-bob", Email: "bob@example.com"}
	svc := NewService(&fakeRepo{byEmail: map[string]*models.User{bob.Email: bob}})
	ctx := context.Background()

	u, err := svc.Resolve(ctx, "", "BOB@example.com")
	if err != nil || u.ID != "u-bob" {
		t.Fatalf("resolve by email: %v %v", u, err)
	}
	u, err = svc.Resolve(ctx, "u-bob", "")
	if err != nil || u.Email != bob.Email {
		t.Fatalf("resolve by id: %v %v", u, err)
	}
	if _, err := svc.Resolve(ctx, "", "nobody@example.com"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "", ""); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}
