// Package service implements team lifecycle and membership management.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chunkvault/chunkvault/internal/apperr"
	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	"github.com/chunkvault/chunkvault/internal/membership"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/rbac"
	teamrepo "github.com/chunkvault/chunkvault/internal/team/repository"
	"github.com/chunkvault/chunkvault/internal/storage"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/google/uuid"
)

// Directory resolves invitees and batch-loads public keys.
type Directory interface {
	Resolve(ctx context.Context, userID, email string) (*models.User, error)
	PublicKeys(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// Documents is the document service surface team deletion fans out to.
type Documents interface {
	ListForTeam(ctx context.Context, teamID string) ([]*models.Document, error)
	Remove(ctx context.Context, doc *models.Document) (int64, error)
}

// EdgeNodes is the edge node store surface the team service needs.
type EdgeNodes interface {
	ListByTeam(ctx context.Context, teamID string) ([]*models.EdgeNode, error)
	Delete(ctx context.Context, id string) error
}

type Deps struct {
	Teams     teamrepo.Repository
	Registry  *membership.Registry
	Users     Directory
	Documents Documents
	EdgeNodes EdgeNodes
	Chunks    chunkrepo.Repository
	Blobs     storage.BlobStore
}

type Service struct {
	d Deps
}

func New(d Deps) *Service { return &Service{d: d} }

// TeamView is a team as seen by one of its members.
type TeamView struct {
	*models.Team
	Role             models.Role `json:"role,omitempty"`
	EncryptedTeamKey string      `json:"encryptedTeamKey,omitempty"`
}

type CreateRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	EncryptedTeamKey string `json:"encryptedTeamKey"`
}

func requireUser(p models.Principal) error {
	if p.IsEdge() || p.ID == "" {
		return apperr.Forbidden("user_only", "only users may do this")
	}
	return nil
}

// Create makes a new team owned by p, who joins as ADMIN.
func (s *Service) Create(ctx context.Context, p models.Principal, req CreateRequest) (*TeamView, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Invalid("missing_name", "name is required")
	}
	if req.EncryptedTeamKey == "" {
		return nil, apperr.Invalid("missing_team_key", "encryptedTeamKey is required")
	}
	t := &models.Team{ID: uuid.NewString(), Name: name, Description: strings.TrimSpace(req.Description), OwnerID: p.ID}
	owner := &models.Member{TeamID: t.ID, UserID: p.ID, Role: models.RoleAdmin, WrappedTeamKey: req.EncryptedTeamKey}
	if err := s.d.Teams.CreateTeam(ctx, t, owner); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	logger.With("team", t.ID, "owner", p.ID).Infof("created team %q", t.Name)
	return &TeamView{Team: t, Role: models.RoleAdmin, EncryptedTeamKey: owner.WrappedTeamKey}, nil
}

// List returns the teams p belongs to.
func (s *Service) List(ctx context.Context, p models.Principal) ([]TeamView, error) {
	if p.IsEdge() {
		t, err := s.Get(ctx, p, p.TeamID)
		if err != nil {
			return nil, err
		}
		return []TeamView{*t}, nil
	}
	memberships, err := s.d.Teams.ListMembershipsByUser(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	ids := make([]string, 0, len(memberships))
	byTeam := make(map[string]*models.Member, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.TeamID)
		byTeam[m.TeamID] = m
	}
	teams, err := s.d.Teams.GetTeams(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	out := make([]TeamView, 0, len(teams))
	for _, t := range teams {
		m := byTeam[t.ID]
		out = append(out, TeamView{Team: t, Role: m.Role, EncryptedTeamKey: m.WrappedTeamKey})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Get returns one team to a member or to an edge node bound to it.
func (s *Service) Get(ctx context.Context, p models.Principal, teamID string) (*TeamView, error) {
	t, err := s.d.Registry.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	m, err := s.d.Registry.Authorize(ctx, teamID, p, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	v := &TeamView{Team: t}
	if m != nil {
		v.Role, v.EncryptedTeamKey = m.Role, m.WrappedTeamKey
	}
	return v, nil
}

// Delete removes the team and everything it owns. The steps run in a fixed
// order and each is idempotent, so a failed deletion can be retried.
func (s *Service) Delete(ctx context.Context, p models.Principal, teamID string) error {
	t, err := s.d.Registry.RequireOwner(ctx, teamID, p)
	if err != nil {
		return err
	}
	log := logger.With("team", teamID, "owner", p.ID)
	steps := []struct {
		name string
		run  func() error
	}{
		{"documents", func() error { return s.deleteDocuments(ctx, teamID) }},
		{"chunks", func() error { return s.purgeChunks(ctx, teamID) }},
		{"edge_nodes", func() error { return s.deleteEdgeNodes(ctx, teamID) }},
		{"members", func() error { return s.deleteMembers(ctx, teamID, t.OwnerID) }},
		{"owner", func() error { return ignoreMissing(s.d.Teams.RemoveMember(ctx, teamID, t.OwnerID)) }},
		{"team", func() error { return ignoreMissing(s.d.Teams.DeleteTeam(ctx, teamID)) }},
	}
	for _, st := range steps {
		if err := st.run(); err != nil {
			log.Errorf("team deletion failed at step %s: %v", st.name, err)
			return fmt.Errorf("delete team step %s: %w", st.name, err)
		}
		log.Debugf("team deletion step %s done", st.name)
	}
	log.Infof("deleted team %q", t.Name)
	return nil
}

func ignoreMissing(err error) error {
	if errors.Is(err, teamrepo.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) deleteDocuments(ctx context.Context, teamID string) error {
	docs, err := s.d.Documents.ListForTeam(ctx, teamID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if _, err := s.d.Documents.Remove(ctx, doc); err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
	}
	return nil
}

func (s *Service) purgeChunks(ctx context.Context, teamID string) error {
	if s.d.Blobs != nil {
		all, err := s.d.Chunks.ListSinceTeam(ctx, teamID, 0)
		if err != nil {
			return err
		}
		for _, c := range all {
			if c.BlobKey == "" {
				continue
			}
			if err := s.d.Blobs.Delete(ctx, c.BlobKey); err != nil {
				return fmt.Errorf("blob %s: %w", c.BlobKey, err)
			}
		}
	}
	return s.d.Chunks.PurgeTeam(ctx, teamID)
}

func (s *Service) deleteEdgeNodes(ctx context.Context, teamID string) error {
	nodes, err := s.d.EdgeNodes.ListByTeam(ctx, teamID)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := s.d.EdgeNodes.Delete(ctx, n.ID); err != nil {
			return fmt.Errorf("edge node %s: %w", n.ID, err)
		}
	}
	return nil
}

func (s *Service) deleteMembers(ctx context.Context, teamID, ownerID string) error {
	members, err := s.d.Teams.ListMembers(ctx, teamID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.UserID == ownerID {
			continue
		}
		if err := ignoreMissing(s.d.Teams.RemoveMember(ctx, teamID, m.UserID)); err != nil {
			return fmt.Errorf("member %s: %w", m.UserID, err)
		}
	}
	return nil
}
