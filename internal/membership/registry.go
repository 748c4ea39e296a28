// Package membership is the single authorization oracle for team-scoped
// operations. It also enforces the owner invariants: the owner is never
// removed and never demoted.
package membership

import (
	"context"
	"errors"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/rbac"
	teamrepo "github.com/chunkvault/chunkvault/internal/team/repository"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/chunkvault/chunkvault/pkg/metrics"
)

// EdgeLookup resolves edge node principals.
type EdgeLookup interface {
	Get(ctx context.Context, id string) (*models.EdgeNode, error)
}

type Registry struct {
	repo  teamrepo.Repository
	edges EdgeLookup
}

func NewRegistry(repo teamrepo.Repository, edges EdgeLookup) *Registry {
	return &Registry{repo: repo, edges: edges}
}

var (
	errNotMember      = apperr.Forbidden("not_member", "you are not a member of this team")
	errTeamNotFound   = apperr.NotFound("team_not_found", "team does not exist")
	errMemberNotFound = apperr.NotFound("member_not_found", "member does not exist")
)

func (r *Registry) Team(ctx context.Context, teamID string) (*models.Team, error) {
	t, err := r.repo.GetTeam(ctx, teamID)
	if errors.Is(err, teamrepo.ErrNotFound) {
		return nil, errTeamNotFound
	}
	return t, err
}

// RoleOf returns the member's role or a Forbidden not_member error.
func (r *Registry) RoleOf(ctx context.Context, teamID, userID string) (models.Role, error) {
	m, err := r.repo.GetMember(ctx, teamID, userID)
	if errors.Is(err, teamrepo.ErrNotFound) {
		return "", errNotMember
	}
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

func (r *Registry) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	_, err := r.repo.GetMember(ctx, teamID, userID)
	if errors.Is(err, teamrepo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Registry) Member(ctx context.Context, teamID, userID string) (*models.Member, error) {
	m, err := r.repo.GetMember(ctx, teamID, userID)
	if errors.Is(err, teamrepo.ErrNotFound) {
		return nil, errMemberNotFound
	}
	return m, err
}

func (r *Registry) List(ctx context.Context, teamID string) ([]*models.Member, error) {
	return r.repo.ListMembers(ctx, teamID)
}

// Add fails with Conflict when the identity is already a member.
func (r *Registry) Add(ctx context.Context, teamID, userID string, role models.Role, wrappedKey string) (*models.Member, error) {
	if _, err := r.Team(ctx, teamID); err != nil {
		return nil, err
	}
	m := &models.Member{TeamID: teamID, UserID: userID, Role: role, WrappedTeamKey: wrappedKey}
	if err := r.repo.AddMember(ctx, m); err != nil {
		if errors.Is(err, teamrepo.ErrConflict) {
			return nil, apperr.Conflict("already_member", "user is already a member of this team")
		}
		return nil, err
	}
	return m, nil
}

func (r *Registry) Remove(ctx context.Context, teamID, userID string) error {
	t, err := r.Team(ctx, teamID)
	if err != nil {
		return err
	}
	if t.OwnerID == userID {
		return apperr.Forbidden("owner_protected", "the team owner cannot be removed")
	}
	if err := r.repo.RemoveMember(ctx, teamID, userID); err != nil {
		if errors.Is(err, teamrepo.ErrNotFound) {
			return errMemberNotFound
		}
		return err
	}
	return nil
}

func (r *Registry) SetRole(ctx context.Context, teamID, userID string, role models.Role) error {
	t, err := r.Team(ctx, teamID)
	if err != nil {
		return err
	}
	if t.OwnerID == userID && role != models.RoleAdmin {
		return apperr.Forbidden("owner_protected", "the team owner must remain ADMIN")
	}
	if err := r.repo.UpdateRole(ctx, teamID, userID, role); err != nil {
		if errors.Is(err, teamrepo.ErrNotFound) {
			return errMemberNotFound
		}
		return err
	}
	return nil
}

func (r *Registry) SetWrappedKey(ctx context.Context, teamID, userID, wrappedKey string) error {
	return r.SetWrappedKeys(ctx, teamID, map[string]string{userID: wrappedKey})
}

// SetWrappedKeys replaces several wrapped keys at once; an unknown member
// fails the whole call with NotFound.
func (r *Registry) SetWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error {
	if err := r.repo.UpdateWrappedKeys(ctx, teamID, keys); err != nil {
		if errors.Is(err, teamrepo.ErrNotFound) {
			return errMemberNotFound
		}
		return err
	}
	return nil
}

// Authorize is the gate every team-scoped operation passes through. For users
// it returns the caller's membership; for edge nodes it returns nil.
func (r *Registry) Authorize(ctx context.Context, teamID string, p models.Principal, action rbac.Action) (*models.Member, error) {
	if p.IsEdge() {
		return nil, r.authorizeEdge(ctx, teamID, p, action)
	}
	m, err := r.repo.GetMember(ctx, teamID, p.ID)
	if errors.Is(err, teamrepo.ErrNotFound) {
		return nil, deny(teamID, p, action, errNotMember)
	}
	if err != nil {
		return nil, err
	}
	if !rbac.Can(m.Role, action) {
		return nil, deny(teamID, p, action, roleError(m.Role, action))
	}
	return m, nil
}

func (r *Registry) authorizeEdge(ctx context.Context, teamID string, p models.Principal, action rbac.Action) error {
	if p.TeamID != teamID {
		return deny(teamID, p, action, errNotMember)
	}
	if !rbac.EdgeCan(action) {
		return deny(teamID, p, action, apperr.Forbidden("edge_read_only", "edge nodes may only read and sync"))
	}
	n, err := r.edges.Get(ctx, p.ID)
	if err != nil || n.TeamID != teamID {
		return deny(teamID, p, action, errNotMember)
	}
	return nil
}

// RequireOwner admits only the team owner.
func (r *Registry) RequireOwner(ctx context.Context, teamID string, p models.Principal) (*models.Team, error) {
	t, err := r.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if p.IsEdge() || t.OwnerID != p.ID {
		return nil, deny(teamID, p, "owner", apperr.Forbidden("owner_only", "only the team owner may do this"))
	}
	return t, nil
}

func roleError(role models.Role, action rbac.Action) error {
	if action == rbac.ActionUploadChunk && role == models.RoleAdmin {
		return apperr.Forbidden("admin_upload_forbidden", "admins manage keys and cannot upload data")
	}
	return apperr.Forbidden("insufficient_role", "your role does not allow this action")
}

func deny(teamID string, p models.Principal, action rbac.Action, err error) error {
	metrics.AuthzDenied.WithLabelValues(string(action)).Inc()
	logger.With("team", teamID, "principal", p.ID, "action", string(action)).Debugf("authorization denied: %v", err)
	return err
}
