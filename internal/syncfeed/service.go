// Package syncfeed serves the incremental chunk and document feeds.
//
// Feeds are read-only and idempotent. Entries are ordered by version, so a
// client that stores the highest version it has seen and sends it back as the
// next watermark receives every later change exactly once, tombstones included.
package syncfeed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/chunkvault/chunkvault/internal/apperr"
	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/rbac"
	"github.com/chunkvault/chunkvault/internal/storage"
	"github.com/chunkvault/chunkvault/pkg/metrics"
)

type Authorizer interface {
	Authorize(ctx context.Context, teamID string, p models.Principal, action rbac.Action) (*models.Member, error)
}

// DocumentMeta is one entry of the document-level feed.
type DocumentMeta struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType,omitempty"`
	Version    int64  `json:"version"`
	UploaderID string `json:"uploaderId"`
}

type Service struct {
	chunks chunkrepo.Repository
	docs   docrepo.Repository
	authz  Authorizer
	blobs  storage.BlobStore
}

func New(chunks chunkrepo.Repository, docs docrepo.Repository, authz Authorizer, blobs storage.BlobStore) *Service {
	return &Service{chunks: chunks, docs: docs, authz: authz, blobs: blobs}
}

var errNegativeWatermark = apperr.Invalid("invalid_watermark", "lastVersion must not be negative")

// SyncDocument returns the changes to one document after watermark. A
// document whose record was already deleted still serves its tombstones.
func (s *Service) SyncDocument(ctx context.Context, p models.Principal, documentID string, watermark int64) ([]models.ChunkDelta, error) {
	if watermark < 0 {
		return nil, errNegativeWatermark
	}
	var (
		teamID   string
		entries  []*models.Chunk
		recorded bool
	)
	doc, err := s.docs.Get(ctx, documentID)
	switch {
	case err == nil:
		teamID, recorded = doc.TeamID, true
	case errors.Is(err, docrepo.ErrNotFound):
		all, err := s.chunks.ListSinceDocument(ctx, documentID, 0)
		if err != nil {
			return nil, fmt.Errorf("list chunks: %w", err)
		}
		if len(all) == 0 {
			return nil, apperr.NotFound("document_not_found", "document does not exist")
		}
		teamID = all[0].TeamID
		for _, c := range all {
			if c.Version > watermark {
				entries = append(entries, c)
			}
		}
	default:
		return nil, fmt.Errorf("load document: %w", err)
	}

	if _, err := s.authz.Authorize(ctx, teamID, p, rbac.ActionSync); err != nil {
		return nil, err
	}
	if recorded {
		if entries, err = s.chunks.ListSinceDocument(ctx, documentID, watermark); err != nil {
			return nil, fmt.Errorf("list chunks: %w", err)
		}
	}
	out, err := storage.Deltas(ctx, s.blobs, entries)
	if err != nil {
		return nil, err
	}
	metrics.SyncEntries.WithLabelValues("document").Add(float64(len(out)))
	return out, nil
}

// SyncTeam returns the changes to every document of the team after
// watermark, each tagged with its document's uploader. Uploaders are resolved
// with one batched lookup.
func (s *Service) SyncTeam(ctx context.Context, p models.Principal, teamID string, watermark int64) ([]models.ChunkDelta, error) {
	if watermark < 0 {
		return nil, errNegativeWatermark
	}
	if _, err := s.authz.Authorize(ctx, teamID, p, rbac.ActionSync); err != nil {
		return nil, err
	}
	entries, err := s.chunks.ListSinceTeam(ctx, teamID, watermark)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, c := range entries {
		if _, ok := seen[c.DocumentID]; !ok {
			seen[c.DocumentID] = struct{}{}
			ids = append(ids, c.DocumentID)
		}
	}
	docs := map[string]*models.Document{}
	if len(ids) > 0 {
		if docs, err = s.docs.GetMany(ctx, ids); err != nil {
			return nil, fmt.Errorf("resolve uploaders: %w", err)
		}
	}

	out, err := storage.Deltas(ctx, s.blobs, entries)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if d, ok := docs[out[i].DocumentID]; ok {
			out[i].CreatedBy = d.UploaderID
		}
	}
	metrics.SyncEntries.WithLabelValues("team").Add(float64(len(out)))
	return out, nil
}

// SyncDocumentMeta reports documents whose latest chunk version exceeds watermark.
func (s *Service) SyncDocumentMeta(ctx context.Context, p models.Principal, teamID string, watermark int64) ([]DocumentMeta, error) {
	if watermark < 0 {
		return nil, errNegativeWatermark
	}
	if _, err := s.authz.Authorize(ctx, teamID, p, rbac.ActionSync); err != nil {
		return nil, err
	}
	versions, err := s.chunks.LatestVersions(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("latest versions: %w", err)
	}
	docs, err := s.docs.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]DocumentMeta, 0)
	for _, d := range docs {
		v := versions[d.ID]
		if v <= watermark {
			continue
		}
		out = append(out, DocumentMeta{
			DocumentID: d.ID,
			FileName:   d.FileName,
			FileType:   d.FileType,
			Version:    v,
			UploaderID: d.UploaderID,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	metrics.SyncEntries.WithLabelValues("document_meta").Add(float64(len(out)))
	return out, nil
}
