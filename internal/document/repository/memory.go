package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/google/uuid"
)

// MemoryRepo is the in-memory document repository used by default and in tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*models.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*models.Document)}
}

func clone(d *models.Document) *models.Document {
	cp := *d
	cp.EncryptedDEK = append([]byte(nil), d.EncryptedDEK...)
	return &cp
}

func (m *MemoryRepo) Create(ctx context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.TeamID == d.TeamID && existing.FileName == d.FileName {
			return ErrConflict
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt
	m.store[d.ID] = clone(d)
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return clone(d), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) GetByTeamAndFileName(ctx context.Context, teamID, fileName string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.store {
		if d.TeamID == teamID && d.FileName == fileName {
			return clone(d), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) ListByTeam(ctx context.Context, teamID string) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Document{}
	for _, d := range m.store {
		if d.TeamID == teamID {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) GetMany(ctx context.Context, ids []string) (map[string]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*models.Document, len(ids))
	for _, id := range ids {
		if d, ok := m.store[id]; ok {
			out[id] = clone(d)
		}
	}
	return out, nil
}

func (m *MemoryRepo) SetDEKIfEmpty(ctx context.Context, id string, dek []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if len(d.EncryptedDEK) == 0 {
		d.EncryptedDEK = append([]byte(nil), dek...)
		d.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemoryRepo) UpdateDEKs(ctx context.Context, teamID string, deks map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range deks {
		d, ok := m.store[id]
		if !ok || d.TeamID != teamID {
			return ErrNotFound
		}
	}
	now := time.Now().UTC()
	for id, dek := range deks {
		d := m.store[id]
		d.EncryptedDEK = append([]byte(nil), dek...)
		d.UpdatedAt = now
	}
	return nil
}

func (m *MemoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}
