package service

import (
	"context"
	"fmt"
	"time"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/rbac"
	"github.com/chunkvault/chunkvault/pkg/logger"
)

type InviteRequest struct {
	UserID           string `json:"userId"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	EncryptedTeamKey string `json:"encryptedTeamKey"`
}

type MemberView struct {
	UserID    string      `json:"userId"`
	Email     string      `json:"email,omitempty"`
	PublicKey string      `json:"publicKey,omitempty"`
	Role      models.Role `json:"role"`
	JoinedAt  time.Time   `json:"joinedAt"`
}

type RemainingMember struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	PublicKey string `json:"publicKey"`
}

type RemainingEdgeNode struct {
	NodeID    string `json:"nodeId"`
	PublicKey string `json:"publicKey"`
}

// KickResult lists who still holds the team key so the caller can rewrap it.
type KickResult struct {
	RemainingMembers   []RemainingMember   `json:"remainingMembers"`
	RemainingEdgeNodes []RemainingEdgeNode `json:"remainingEdgeNodes"`
}

// Invite adds a registered user to the team with the wrapped key the admin
// prepared for them.
func (s *Service) Invite(ctx context.Context, p models.Principal, teamID string, req InviteRequest) (*MemberView, error) {
	if _, err := s.d.Registry.Authorize(ctx, teamID, p, rbac.ActionInviteMember); err != nil {
		return nil, err
	}
	role := models.RoleMember
	if req.Role != "" {
		r, ok := models.ParseRole(req.Role)
		if !ok {
			return nil, apperr.Invalid("invalid_role", "role must be ADMIN or MEMBER")
		}
		role = r
	}
	if req.EncryptedTeamKey == "" {
		return nil, apperr.Invalid("missing_team_key", "encryptedTeamKey is required")
	}
	u, err := s.d.Users.Resolve(ctx, req.UserID, req.Email)
	if err != nil {
		return nil, err
	}
	m, err := s.d.Registry.Add(ctx, teamID, u.ID, role, req.EncryptedTeamKey)
	if err != nil {
		return nil, err
	}
	logger.With("team", teamID, "admin", p.ID, "user", u.ID).Infof("invited member as %s", role)
	return &MemberView{UserID: u.ID, Email: u.Email, PublicKey: u.PublicKey, Role: m.Role, JoinedAt: m.JoinedAt}, nil
}

// ListMembers returns the team's members with their public keys.
func (s *Service) ListMembers(ctx context.Context, p models.Principal, teamID string) ([]MemberView, error) {
	if _, err := s.d.Registry.Authorize(ctx, teamID, p, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.d.Registry.List(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	profiles, err := s.d.Users.PublicKeys(ctx, memberIDs(members))
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	out := make([]MemberView, 0, len(members))
	for _, m := range members {
		v := MemberView{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
		if u, ok := profiles[m.UserID]; ok {
			v.Email, v.PublicKey = u.Email, u.PublicKey
		}
		out = append(out, v)
	}
	return out, nil
}

// Kick removes a member. The caller is expected to rotate the team key for
// everyone listed in the result.
func (s *Service) Kick(ctx context.Context, p models.Principal, teamID, userID string) (*KickResult, error) {
	if _, err := s.d.Registry.Authorize(ctx, teamID, p, rbac.ActionKickMember); err != nil {
		return nil, err
	}
	if err := s.d.Registry.Remove(ctx, teamID, userID); err != nil {
		return nil, err
	}
	logger.With("team", teamID, "admin", p.ID, "user", userID).Infof("removed member")

	members, err := s.d.Registry.List(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list remaining members: %w", err)
	}
	profiles, err := s.d.Users.PublicKeys(ctx, memberIDs(members))
	if err != nil {
		return nil, fmt.Errorf("load public keys: %w", err)
	}
	res := &KickResult{
		RemainingMembers:   make([]RemainingMember, 0, len(members)),
		RemainingEdgeNodes: []RemainingEdgeNode{},
	}
	for _, m := range members {
		rm := RemainingMember{UserID: m.UserID}
		if u, ok := profiles[m.UserID]; ok {
			rm.Email, rm.PublicKey = u.Email, u.PublicKey
		}
		res.RemainingMembers = append(res.RemainingMembers, rm)
	}
	nodes, err := s.d.EdgeNodes.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list edge nodes: %w", err)
	}
	for _, n := range nodes {
		res.RemainingEdgeNodes = append(res.RemainingEdgeNodes, RemainingEdgeNode{NodeID: n.ID, PublicKey: n.PublicKey})
	}
	return res, nil
}

// ChangeRole sets a member's role. The owner always stays ADMIN.
func (s *Service) ChangeRole(ctx context.Context, p models.Principal, teamID, userID, role string) (models.Role, error) {
	if _, err := s.d.Registry.Authorize(ctx, teamID, p, rbac.ActionChangeRole); err != nil {
		return "", err
	}
	r, ok := models.ParseRole(role)
	if !ok {
		return "", apperr.Invalid("invalid_role", "role must be ADMIN or MEMBER")
	}
	if err := s.d.Registry.SetRole(ctx, teamID, userID, r); err != nil {
		return "", err
	}
	logger.With("team", teamID, "admin", p.ID, "user", userID).Infof("role changed to %s", r)
	return r, nil
}

func memberIDs(members []*models.Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}
