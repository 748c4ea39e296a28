// Package keyrotation replaces wrapped key material after membership changes.
// The server only stores what clients send; it never sees plaintext keys.
package keyrotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/chunkvault/chunkvault/internal/apperr"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	"github.com/chunkvault/chunkvault/internal/edgenode"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/rbac"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/chunkvault/chunkvault/pkg/metrics"
)

// Members is the part of the membership registry rotation needs.
type Members interface {
	Authorize(ctx context.Context, teamID string, p models.Principal, action rbac.Action) (*models.Member, error)
	List(ctx context.Context, teamID string) ([]*models.Member, error)
	SetWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error
}

// EdgeKeys is the part of the edge node store rotation needs.
type EdgeKeys interface {
	ListByTeam(ctx context.Context, teamID string) ([]*models.EdgeNode, error)
	UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error
}

type MemberKey struct {
	UserID           string `json:"userId"`
	EncryptedTeamKey string `json:"encryptedTeamKey"`
}

type EdgeNodeKey struct {
	NodeID           string `json:"nodeId"`
	EncryptedTeamKey string `json:"encryptedTeamKey"`
}

type RotateRequest struct {
	MemberKeys   []MemberKey   `json:"memberKeys"`
	EdgeNodeKeys []EdgeNodeKey `json:"edgeNodeKeys"`
}

type RotateResult struct {
	UpdatedMembers   int `json:"updatedMembers"`
	UpdatedEdgeNodes int `json:"updatedEdgeNodes"`
}

type DocumentKey struct {
	DocumentID      string `json:"documentId"`
	NewEncryptedDEK []byte `json:"newEncryptedDEK"`
}

type Service struct {
	members Members
	edges   EdgeKeys
	docs    docrepo.Repository
}

func New(members Members, edges EdgeKeys, docs docrepo.Repository) *Service {
	return &Service{members: members, edges: edges, docs: docs}
}

// RotateTeamKeys overwrites the wrapped team key of each listed member and
// edge node. Every target is checked before anything is written; an unknown
// identity fails the whole call with NotFound.
func (s *Service) RotateTeamKeys(ctx context.Context, p models.Principal, teamID string, req RotateRequest) (*RotateResult, error) {
	if _, err := s.members.Authorize(ctx, teamID, p, rbac.ActionRotateKeys); err != nil {
		return nil, err
	}
	if len(req.MemberKeys) == 0 && len(req.EdgeNodeKeys) == 0 {
		return nil, apperr.Invalid("missing_keys", "memberKeys or edgeNodeKeys is required")
	}

	memberKeys := make(map[string]string, len(req.MemberKeys))
	for _, k := range req.MemberKeys {
		if err := addKey(memberKeys, k.UserID, k.EncryptedTeamKey, "member"); err != nil {
			return nil, err
		}
	}
	edgeKeys := make(map[string]string, len(req.EdgeNodeKeys))
	for _, k := range req.EdgeNodeKeys {
		if err := addKey(edgeKeys, k.NodeID, k.EncryptedTeamKey, "edge node"); err != nil {
			return nil, err
		}
	}

	members, err := s.members.List(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	known := make(map[string]struct{}, len(members))
	for _, m := range members {
		known[m.UserID] = struct{}{}
	}
	for id := range memberKeys {
		if _, ok := known[id]; !ok {
			return nil, apperr.NotFound("member_not_found", fmt.Sprintf("%s is not a member of this team", id))
		}
	}
	if len(edgeKeys) > 0 {
		nodes, err := s.edges.ListByTeam(ctx, teamID)
		if err != nil {
			return nil, fmt.Errorf("list edge nodes: %w", err)
		}
		bound := make(map[string]struct{}, len(nodes))
		for _, n := range nodes {
			bound[n.ID] = struct{}{}
		}
		for id := range edgeKeys {
			if _, ok := bound[id]; !ok {
				return nil, apperr.NotFound("edge_node_not_found", fmt.Sprintf("edge node %s is not bound to this team", id))
			}
		}
	}

	if len(memberKeys) > 0 {
		if err := s.members.SetWrappedKeys(ctx, teamID, memberKeys); err != nil {
			return nil, err
		}
		metrics.KeyRotations.WithLabelValues("member").Add(float64(len(memberKeys)))
	}
	if len(edgeKeys) > 0 {
		if err := s.edges.UpdateWrappedKeys(ctx, teamID, edgeKeys); err != nil {
			if errors.Is(err, edgenode.ErrNotFound) {
				return nil, apperr.NotFound("edge_node_not_found", "edge node is not bound to this team")
			}
			return nil, fmt.Errorf("update edge node keys: %w", err)
		}
		metrics.KeyRotations.WithLabelValues("edge_node").Add(float64(len(edgeKeys)))
	}
	logger.With("team", teamID, "admin", p.ID).
		Infof("rotated team key for %d members and %d edge nodes", len(memberKeys), len(edgeKeys))
	return &RotateResult{UpdatedMembers: len(memberKeys), UpdatedEdgeNodes: len(edgeKeys)}, nil
}

func addKey(dst map[string]string, id, key, what string) error {
	if id == "" || key == "" {
		return apperr.Invalid("invalid_key_entry", what+" entries need an id and encryptedTeamKey")
	}
	if _, dup := dst[id]; dup {
		return apperr.Invalid("duplicate_key_entry", fmt.Sprintf("%s %s listed twice", what, id))
	}
	dst[id] = key
	return nil
}

// ReencryptDocumentKeys replaces the wrapped data key of each document.
// Chunk ciphertext is not touched. Documents of another team are rejected.
func (s *Service) ReencryptDocumentKeys(ctx context.Context, p models.Principal, teamID string, keys []DocumentKey) (int, error) {
	if _, err := s.members.Authorize(ctx, teamID, p, rbac.ActionReencryptKeys); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, apperr.Invalid("missing_documents", "documents is required")
	}
	deks := make(map[string][]byte, len(keys))
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if k.DocumentID == "" || len(k.NewEncryptedDEK) == 0 {
			return 0, apperr.Invalid("invalid_document_key", "entries need a documentId and newEncryptedDEK")
		}
		if _, dup := deks[k.DocumentID]; dup {
			return 0, apperr.Invalid("duplicate_document_key", fmt.Sprintf("document %s listed twice", k.DocumentID))
		}
		deks[k.DocumentID] = k.NewEncryptedDEK
		ids = append(ids, k.DocumentID)
	}

	docs, err := s.docs.GetMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load documents: %w", err)
	}
	for _, id := range ids {
		d, ok := docs[id]
		if !ok {
			return 0, apperr.NotFound("document_not_found", fmt.Sprintf("document %s does not exist", id))
		}
		if d.TeamID != teamID {
			return 0, apperr.Forbidden("cross_team_document", fmt.Sprintf("document %s belongs to another team", id))
		}
	}

	if err := s.docs.UpdateDEKs(ctx, teamID, deks); err != nil {
		if errors.Is(err, docrepo.ErrNotFound) {
			return 0, apperr.NotFound("document_not_found", "a document was removed during re-encryption")
		}
		return 0, fmt.Errorf("update document keys: %w", err)
	}
	metrics.KeyRotations.WithLabelValues("document_dek").Add(float64(len(deks)))
	logger.With("team", teamID, "admin", p.ID).Infof("re-encrypted %d document keys", len(deks))
	return len(deks), nil
}
