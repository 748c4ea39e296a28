// Package service lists and deletes document metadata records.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chunkvault/chunkvault/internal/apperr"
	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/rbac"
	"github.com/chunkvault/chunkvault/internal/storage"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/chunkvault/chunkvault/pkg/metrics"
)

type Authorizer interface {
	Authorize(ctx context.Context, teamID string, p models.Principal, action rbac.Action) (*models.Member, error)
}

// View is a document as listed to team members.
type View struct {
	ID           string    `json:"documentId"`
	FileName     string    `json:"fileName"`
	FileType     string    `json:"fileType,omitempty"`
	UploaderID   string    `json:"uploaderId"`
	EncryptedDEK []byte    `json:"encryptedDEK,omitempty"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Service struct {
	docs   docrepo.Repository
	chunks chunkrepo.Repository
	authz  Authorizer
	blobs  storage.BlobStore
}

// New builds the service. blobs may be nil when offload is disabled.
func New(docs docrepo.Repository, chunks chunkrepo.Repository, authz Authorizer, blobs storage.BlobStore) *Service {
	return &Service{docs: docs, chunks: chunks, authz: authz, blobs: blobs}
}

// List returns the team's documents with their latest chunk version.
func (s *Service) List(ctx context.Context, p models.Principal, teamID string) ([]View, error) {
	if _, err := s.authz.Authorize(ctx, teamID, p, rbac.ActionRead); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	versions, err := s.chunks.LatestVersions(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("latest versions: %w", err)
	}
	out := make([]View, 0, len(docs))
	for _, d := range docs {
		out = append(out, View{
			ID:           d.ID,
			FileName:     d.FileName,
			FileType:     d.FileType,
			UploaderID:   d.UploaderID,
			EncryptedDEK: d.EncryptedDEK,
			Version:      versions[d.ID],
			CreatedAt:    d.CreatedAt,
		})
	}
	return out, nil
}

// Delete tombstones every chunk of the document as one mutation and then
// removes the record. It returns the tombstone version, 0 if nothing was live.
func (s *Service) Delete(ctx context.Context, p models.Principal, teamID, documentID string) (int64, error) {
	if _, err := s.authz.Authorize(ctx, teamID, p, rbac.ActionDeleteDocument); err != nil {
		return 0, err
	}
	doc, err := s.docs.Get(ctx, documentID)
	if errors.Is(err, docrepo.ErrNotFound) || (err == nil && doc.TeamID != teamID) {
		return 0, apperr.NotFound("document_not_found", "document does not exist")
	}
	if err != nil {
		return 0, fmt.Errorf("load document: %w", err)
	}
	v, err := s.Remove(ctx, doc)
	if err != nil {
		return 0, err
	}
	logger.With("team", teamID, "document", documentID, "admin", p.ID).
		Infof("deleted document at version %d", v)
	return v, nil
}

// Remove performs the deletion without authorization. Team deletion calls it
// for each document after checking ownership itself.
func (s *Service) Remove(ctx context.Context, doc *models.Document) (int64, error) {
	ts, err := s.chunks.MarkDocumentDeleted(ctx, doc.TeamID, doc.ID)
	if err != nil {
		return 0, fmt.Errorf("tombstone document chunks: %w", err)
	}
	metrics.ChunkMutations.WithLabelValues("tombstone").Add(float64(ts.Count))
	if s.blobs != nil {
		for _, key := range ts.BlobKeys {
			if err := s.blobs.Delete(ctx, key); err != nil {
				logger.Warnf("failed to delete blob %s: %v", key, err)
			}
		}
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil && !errors.Is(err, docrepo.ErrNotFound) {
		return 0, fmt.Errorf("delete document record: %w", err)
	}
	return ts.Version, nil
}

// ListForTeam returns every document record of the team without authorization.
func (s *Service) ListForTeam(ctx context.Context, teamID string) ([]*models.Document, error) {
	return s.docs.ListByTeam(ctx, teamID)
}
