// Package service implements the role-gated chunk write path and live listing.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chunkvault/chunkvault/internal/apperr"
	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/rbac"
	"github.com/chunkvault/chunkvault/internal/storage"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/chunkvault/chunkvault/pkg/metrics"
	"github.com/google/uuid"
)

// Authorizer is the membership oracle.
type Authorizer interface {
	Authorize(ctx context.Context, teamID string, p models.Principal, action rbac.Action) (*models.Member, error)
}

// ChunkInput is one chunk of an upload request.
type ChunkInput struct {
	Index           int
	Payload         []byte
	ExpectedVersion *int64
}

type UploadRequest struct {
	FileName     string
	FileType     string
	EncryptedDEK []byte
	Chunks       []ChunkInput
}

type ChunkRef struct {
	ChunkID    string `json:"chunkId"`
	ChunkIndex int    `json:"chunkIndex"`
	Version    int64  `json:"version"`
}

type UploadResult struct {
	DocumentID string     `json:"documentId"`
	Version    int64      `json:"version"`
	Chunks     []ChunkRef `json:"chunks"`
}

// Options wires optional blob offload. With a nil Blobs every payload is
// stored inline.
type Options struct {
	Blobs            storage.BlobStore
	OffloadThreshold int
}

type Service struct {
	chunks chunkrepo.Repository
	docs   docrepo.Repository
	authz  Authorizer
	opts   Options
}

func New(chunks chunkrepo.Repository, docs docrepo.Repository, authz Authorizer, opts Options) *Service {
	return &Service{chunks: chunks, docs: docs, authz: authz, opts: opts}
}

var errDocumentNotFound = apperr.NotFound("document_not_found", "document does not exist")

// Upload writes a batch of chunks for the file named in req as one versioned
// mutation. The first upload of a file name creates the document; later
// uploads are only accepted from the original uploader.
func (s *Service) Upload(ctx context.Context, p models.Principal, teamID string, req UploadRequest) (*UploadResult, error) {
	if _, err := s.authz.Authorize(ctx, teamID, p, rbac.ActionUploadChunk); err != nil {
		return nil, err
	}
	req.FileName = strings.TrimSpace(req.FileName)
	if req.FileName == "" {
		return nil, apperr.Invalid("missing_file_name", "fileName is required")
	}
	if len(req.Chunks) == 0 {
		return nil, apperr.Invalid("missing_chunks", "at least one chunk is required")
	}
	if err := validateChunks(req.Chunks); err != nil {
		return nil, err
	}

	doc, created, err := s.resolveDocument(ctx, p, teamID, req)
	if err != nil {
		return nil, err
	}

	writes, offloaded, err := s.prepareWrites(ctx, teamID, doc.ID, req.Chunks)
	if err != nil {
		if created {
			s.discardDocument(ctx, doc)
		}
		return nil, err
	}
	res, err := s.chunks.Upsert(ctx, teamID, doc.ID, writes)
	if err != nil {
		s.deleteBlobs(ctx, offloaded)
		if created {
			s.discardDocument(ctx, doc)
		}
		switch {
		case errors.Is(err, chunkrepo.ErrVersionConflict):
			return nil, apperr.Conflict("version_conflict", "a chunk changed since the expected version")
		case errors.Is(err, chunkrepo.ErrInvalidWrite):
			return nil, errInvalidChunks
		}
		return nil, fmt.Errorf("upsert chunks: %w", err)
	}
	s.deleteBlobs(ctx, res.ReplacedBlobKeys)

	metrics.ChunkMutations.WithLabelValues("upsert").Add(float64(len(res.Chunks)))
	logger.With("team", teamID, "document", doc.ID, "uploader", p.ID).
		Infof("stored %d chunks at version %d", len(res.Chunks), res.Version)

	out := &UploadResult{DocumentID: doc.ID, Version: res.Version, Chunks: make([]ChunkRef, 0, len(res.Chunks))}
	for _, c := range res.Chunks {
		out.Chunks = append(out.Chunks, ChunkRef{ChunkID: c.ID, ChunkIndex: c.Index, Version: c.Version})
	}
	return out, nil
}

var errInvalidChunks = apperr.Invalid("invalid_chunks", "chunk indexes must be unique and non-negative")

// validateChunks rejects a batch the store would refuse before any document
// record or blob is written for it.
func validateChunks(in []ChunkInput) error {
	idx := make([]int, len(in))
	for i, c := range in {
		if len(c.Payload) == 0 {
			return apperr.Invalid("empty_chunk", fmt.Sprintf("chunk %d has no payload", c.Index))
		}
		idx[i] = c.Index
	}
	if err := chunkrepo.ValidateIndexes(idx); err != nil {
		return errInvalidChunks
	}
	return nil
}

// discardDocument removes a document record created by a batch that was then
// rejected. A record that meanwhile received chunks from another upload stays.
func (s *Service) discardDocument(ctx context.Context, doc *models.Document) {
	log := logger.With("team", doc.TeamID, "document", doc.ID)
	history, err := s.chunks.ListSinceDocument(ctx, doc.ID, 0)
	if err != nil {
		log.Warnf("keeping document after rejected batch: %v", err)
		return
	}
	if len(history) > 0 {
		return
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil && !errors.Is(err, docrepo.ErrNotFound) {
		log.Warnf("failed to remove document of rejected batch: %v", err)
	}
}

// resolveDocument reports created when this call inserted the record.
func (s *Service) resolveDocument(ctx context.Context, p models.Principal, teamID string, req UploadRequest) (*models.Document, bool, error) {
	doc, err := s.docs.GetByTeamAndFileName(ctx, teamID, req.FileName)
	if errors.Is(err, docrepo.ErrNotFound) {
		if len(req.EncryptedDEK) == 0 {
			return nil, false, apperr.Invalid("missing_encrypted_dek", "encryptedDEK is required for a new document")
		}
		doc = &models.Document{
			ID:           uuid.NewString(),
			TeamID:       teamID,
			UploaderID:   p.ID,
			FileName:     req.FileName,
			FileType:     req.FileType,
			EncryptedDEK: req.EncryptedDEK,
		}
		err = s.docs.Create(ctx, doc)
		if err == nil {
			return doc, true, nil
		}
		if !errors.Is(err, docrepo.ErrConflict) {
			return nil, false, fmt.Errorf("create document: %w", err)
		}
		// lost a creation race; continue with the winner's record
		doc, err = s.docs.GetByTeamAndFileName(ctx, teamID, req.FileName)
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup document: %w", err)
	}
	if doc.UploaderID != p.ID {
		return nil, false, apperr.Forbidden("not_uploader", "only the original uploader may modify this document")
	}
	if len(doc.EncryptedDEK) == 0 && len(req.EncryptedDEK) > 0 {
		if err := s.docs.SetDEKIfEmpty(ctx, doc.ID, req.EncryptedDEK); err != nil {
			return nil, false, fmt.Errorf("set document key: %w", err)
		}
	}
	return doc, false, nil
}

// prepareWrites offloads payloads above the threshold and returns the keys
// written so a failed upsert can remove them again.
func (s *Service) prepareWrites(ctx context.Context, teamID, docID string, in []ChunkInput) ([]chunkrepo.Write, []string, error) {
	writes := make([]chunkrepo.Write, 0, len(in))
	var offloaded []string
	for _, c := range in {
		w := chunkrepo.Write{Index: c.Index, Payload: c.Payload, ExpectedVersion: c.ExpectedVersion}
		if s.opts.Blobs != nil && s.opts.OffloadThreshold > 0 && len(c.Payload) > s.opts.OffloadThreshold {
			key := fmt.Sprintf("%s/%s/%d/%s", teamID, docID, c.Index, uuid.NewString())
			if err := s.opts.Blobs.Put(ctx, key, c.Payload); err != nil {
				s.deleteBlobs(ctx, offloaded)
				return nil, nil, fmt.Errorf("offload chunk %d: %w", c.Index, err)
			}
			offloaded = append(offloaded, key)
			w.Payload, w.BlobKey = nil, key
		}
		writes = append(writes, w)
	}
	return writes, offloaded, nil
}

func (s *Service) deleteBlobs(ctx context.Context, keys []string) {
	if s.opts.Blobs == nil {
		return
	}
	for _, k := range keys {
		if err := s.opts.Blobs.Delete(ctx, k); err != nil {
			logger.Warnf("failed to delete blob %s: %v", k, err)
		}
	}
}

func (s *Service) document(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if errors.Is(err, docrepo.ErrNotFound) {
		return nil, errDocumentNotFound
	}
	return doc, err
}

// ListLive returns the document's non-deleted chunks ordered by index.
func (s *Service) ListLive(ctx context.Context, p models.Principal, documentID string) ([]models.ChunkDelta, error) {
	doc, err := s.document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.Authorize(ctx, doc.TeamID, p, rbac.ActionRead); err != nil {
		return nil, err
	}
	list, err := s.chunks.ListLive(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return storage.Deltas(ctx, s.opts.Blobs, list)
}

// DeleteChunk tombstones one chunk and returns the version carrying the deletion.
func (s *Service) DeleteChunk(ctx context.Context, p models.Principal, documentID string, index int) (int64, error) {
	doc, err := s.document(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if _, err := s.authz.Authorize(ctx, doc.TeamID, p, rbac.ActionDeleteChunk); err != nil {
		return 0, err
	}
	errChunk := apperr.NotFound("chunk_not_found", fmt.Sprintf("chunk %d does not exist", index))
	ts, err := s.chunks.MarkDeleted(ctx, doc.TeamID, documentID, index)
	if errors.Is(err, chunkrepo.ErrNotFound) {
		return 0, errChunk
	}
	if err != nil {
		return 0, fmt.Errorf("tombstone chunk: %w", err)
	}
	s.deleteBlobs(ctx, ts.BlobKeys)
	metrics.ChunkMutations.WithLabelValues("tombstone").Add(float64(ts.Count))
	logger.With("team", doc.TeamID, "document", documentID, "admin", p.ID).
		Infof("tombstoned chunk %d at version %d", index, ts.Version)
	return ts.Version, nil
}
