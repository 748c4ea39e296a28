package users

import (
	"context"
	"sync"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
)

// MemoryUserRepository keeps users in a map; used by default and in tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User)}
}

func (r *MemoryUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := r.users[u.ID]
	if !ok {
		existing = &models.User{ID: u.ID, CreatedAt: now}
		r.users[u.ID] = existing
	}
	existing.Email = u.Email
	if u.PublicKey != "" {
		existing.PublicKey = u.PublicKey
	}
	existing.UpdatedAt = now
	cp := *existing
	return &cp, nil
}

func (r *MemoryUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[sub]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) GetMany(ctx context.Context, ids []string) (map[string]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}
