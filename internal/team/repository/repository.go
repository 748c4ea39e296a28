package repository

import (
	"context"
	"errors"

	"github.com/chunkvault/chunkvault/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Repository stores teams and their memberships.
type Repository interface {
	// CreateTeam stores t together with its owner membership.
	CreateTeam(ctx context.Context, t *models.Team, owner *models.Member) error
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	GetTeams(ctx context.Context, ids []string) ([]*models.Team, error)
	DeleteTeam(ctx context.Context, id string) error

	// AddMember fails with ErrConflict when (TeamID, UserID) already exists.
	AddMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, teamID, userID string) (*models.Member, error)
	ListMembers(ctx context.Context, teamID string) ([]*models.Member, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*models.Member, error)
	RemoveMember(ctx context.Context, teamID, userID string) error
	UpdateRole(ctx context.Context, teamID, userID string, role models.Role) error
	// UpdateWrappedKeys replaces the wrapped team key of every listed member.
	// An unknown member fails the call with ErrNotFound and nothing is written.
	UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error
}
