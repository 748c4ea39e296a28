package edgenode

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	nodes map[string]*models.EdgeNode
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nodes: make(map[string]*models.EdgeNode)}
}

func (r *MemoryRepository) Create(ctx context.Context, n *models.EdgeNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.nodes {
		if existing.SerialNumber == n.SerialNumber {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	cp := *n
	r.nodes[n.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.EdgeNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.nodes[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) GetBySerial(ctx context.Context, serial string) (*models.EdgeNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.SerialNumber == serial {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListByTeam(ctx context.Context, teamID string) ([]*models.EdgeNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*models.EdgeNode{}
	for _, n := range r.nodes {
		if n.TeamID == teamID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (r *MemoryRepository) UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range keys {
		n, ok := r.nodes[id]
		if !ok || n.TeamID != teamID {
			return ErrNotFound
		}
	}
	now := time.Now().UTC()
	for id, key := range keys {
		r.nodes[id].WrappedTeamKey = key
		r.nodes[id].UpdatedAt = now
	}
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return ErrNotFound
	}
	delete(r.nodes, id)
	return nil
}
