package edgenode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/rbac"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minAPITokenLen = 16

type Authorizer interface {
	Authorize(ctx context.Context, teamID string, p models.Principal, action rbac.Action) (*models.Member, error)
}

// TokenIssuer signs bearer tokens for edge nodes.
type TokenIssuer interface {
	IssueEdge(nodeID, teamID string) (string, error)
}

type RegisterRequest struct {
	SerialNumber     string `json:"serialNumber"`
	APIToken         string `json:"apiToken"`
	PublicKey        string `json:"publicKey"`
	TeamID           string `json:"teamId"`
	EncryptedTeamKey string `json:"encryptedTeamKey"`
}

type Service struct {
	repo   Repository
	authz  Authorizer
	tokens TokenIssuer
	cost   int
	// compared against when the serial is unknown so both paths cost the same
	dummyHash []byte
}

// NewService builds the service. cost is the bcrypt cost; 0 selects the default.
func NewService(repo Repository, authz Authorizer, tokens TokenIssuer, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("chunkvault-unknown-edge-node"), cost)
	return &Service{repo: repo, authz: authz, tokens: tokens, cost: cost, dummyHash: dummy}
}

// Register binds a new edge node to a team. Only team admins may do this.
func (s *Service) Register(ctx context.Context, p models.Principal, req RegisterRequest) (*models.EdgeNode, error) {
	if req.TeamID == "" {
		return nil, apperr.Invalid("missing_team_id", "teamId is required")
	}
	if _, err := s.authz.Authorize(ctx, req.TeamID, p, rbac.ActionRegisterEdgeNode); err != nil {
		return nil, err
	}
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	switch {
	case req.SerialNumber == "":
		return nil, apperr.Invalid("missing_serial", "serialNumber is required")
	case len(req.APIToken) < minAPITokenLen:
		return nil, apperr.Invalid("weak_api_token", fmt.Sprintf("apiToken must be at least %d characters", minAPITokenLen))
	case strings.TrimSpace(req.PublicKey) == "":
		return nil, apperr.Invalid("missing_public_key", "publicKey is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.APIToken), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash api token: %w", err)
	}
	n := &models.EdgeNode{
		ID:             uuid.NewString(),
		TeamID:         req.TeamID,
		SerialNumber:   req.SerialNumber,
		HashedToken:    string(hash),
		PublicKey:      strings.TrimSpace(req.PublicKey),
		WrappedTeamKey: req.EncryptedTeamKey,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, apperr.Conflict("serial_taken", "an edge node with this serial number is already registered")
		}
		return nil, fmt.Errorf("create edge node: %w", err)
	}
	logger.With("team", req.TeamID, "admin", p.ID, "node", n.ID).Infof("registered edge node %s", n.SerialNumber)
	return n, nil
}

// ExchangeToken trades a node's serial and API token for a bearer token.
func (s *Service) ExchangeToken(ctx context.Context, serial, apiToken string) (string, *models.EdgeNode, error) {
	errCreds := apperr.Unauthenticated("invalid_credentials", "unknown serial number or wrong api token")
	n, err := s.repo.GetBySerial(ctx, strings.TrimSpace(serial))
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(apiToken))
		return "", nil, errCreds
	}
	if err != nil {
		return "", nil, fmt.Errorf("lookup edge node: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(n.HashedToken), []byte(apiToken)) != nil {
		return "", nil, errCreds
	}
	tok, err := s.tokens.IssueEdge(n.ID, n.TeamID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return tok, n, nil
}

func (s *Service) node(ctx context.Context, id string) (*models.EdgeNode, error) {
	n, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("edge_node_not_found", "edge node does not exist")
	}
	return n, err
}

// TeamKey returns the node's wrapped team key to the node itself or to a
// team admin.
func (s *Service) TeamKey(ctx context.Context, p models.Principal, nodeID string) (string, error) {
	n, err := s.node(ctx, nodeID)
	if err != nil {
		return "", err
	}
	if p.IsEdge() {
		if p.ID != n.ID {
			return "", apperr.Forbidden("other_edge_node", "edge nodes may only read their own key")
		}
	} else if _, err := s.authz.Authorize(ctx, n.TeamID, p, rbac.ActionManageEdgeNode); err != nil {
		return "", err
	}
	if n.WrappedTeamKey == "" {
		return "", apperr.Conflict("team_key_missing", "no team key has been issued to this edge node yet")
	}
	return n.WrappedTeamKey, nil
}

// Delete unregisters a node. Only team admins may do this.
func (s *Service) Delete(ctx context.Context, p models.Principal, nodeID string) error {
	n, err := s.node(ctx, nodeID)
	if err != nil {
		return err
	}
	if _, err := s.authz.Authorize(ctx, n.TeamID, p, rbac.ActionManageEdgeNode); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, nodeID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete edge node: %w", err)
	}
	logger.With("team", n.TeamID, "admin", p.ID, "node", n.ID).Infof("deleted edge node %s", n.SerialNumber)
	return nil
}
