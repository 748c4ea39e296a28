package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
)

type memberKey struct{ teamID, userID string }

// MemoryRepo keeps teams and memberships in maps.
type MemoryRepo struct {
	mu      sync.RWMutex
	teams   map[string]*models.Team
	members map[memberKey]*models.Member
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		teams:   make(map[string]*models.Team),
		members: make(map[memberKey]*models.Member),
	}
}

func (m *MemoryRepo) CreateTeam(ctx context.Context, t *models.Team, owner *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[t.ID]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	owner.JoinedAt, owner.UpdatedAt = now, now
	tc, oc := *t, *owner
	m.teams[t.ID] = &tc
	m.members[memberKey{owner.TeamID, owner.UserID}] = &oc
	return nil
}

func (m *MemoryRepo) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryRepo) GetTeams(ctx context.Context, ids []string) ([]*models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Team{}
	for _, id := range ids {
		if t, ok := m.teams[id]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) DeleteTeam(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[id]; !ok {
		return ErrNotFound
	}
	delete(m.teams, id)
	return nil
}

func (m *MemoryRepo) AddMember(ctx context.Context, mem *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey{mem.TeamID, mem.UserID}
	if _, ok := m.members[k]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	mem.JoinedAt, mem.UpdatedAt = now, now
	cp := *mem
	m.members[k] = &cp
	return nil
}

func (m *MemoryRepo) GetMember(ctx context.Context, teamID, userID string) (*models.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[memberKey{teamID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *MemoryRepo) listWhere(match func(*models.Member) bool) []*models.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Member{}
	for _, mem := range m.members {
		if match(mem) {
			cp := *mem
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (m *MemoryRepo) ListMembers(ctx context.Context, teamID string) ([]*models.Member, error) {
	return m.listWhere(func(mem *models.Member) bool { return mem.TeamID == teamID }), nil
}

func (m *MemoryRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]*models.Member, error) {
	return m.listWhere(func(mem *models.Member) bool { return mem.UserID == userID }), nil
}

func (m *MemoryRepo) RemoveMember(ctx context.Context, teamID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey{teamID, userID}
	if _, ok := m.members[k]; !ok {
		return ErrNotFound
	}
	delete(m.members, k)
	return nil
}

func (m *MemoryRepo) UpdateRole(ctx context.Context, teamID, userID string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberKey{teamID, userID}]
	if !ok {
		return ErrNotFound
	}
	mem.Role = role
	mem.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID := range keys {
		if _, ok := m.members[memberKey{teamID, userID}]; !ok {
			return ErrNotFound
		}
	}
	now := time.Now().UTC()
	for userID, key := range keys {
		mem := m.members[memberKey{teamID, userID}]
		mem.WrappedTeamKey = key
		mem.UpdatedAt = now
	}
	return nil
}
