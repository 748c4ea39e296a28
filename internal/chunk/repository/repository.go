// Package repository is the versioned chunk store.
//
// Every mutation draws one version from the owning team's sequence. All
// chunks written by one Upsert batch, or tombstoned by one
// MarkDocumentDeleted, share that version. Writers of one team are
// serialized on the sequence, so versions become visible in order and a
// reader that resubmits the highest version it has seen never skips a change.
package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/chunkvault/chunkvault/internal/models"
)

var (
	ErrNotFound        = errors.New("chunk not found")
	ErrVersionConflict = errors.New("chunk version conflict")
	ErrInvalidWrite    = errors.New("invalid chunk write")
)

// Write is one element of an upsert batch.
type Write struct {
	Index   int
	Payload []byte
	BlobKey string
	// ExpectedVersion turns the write into a compare-and-swap against the
	// version the caller last observed. 0 means the chunk must not exist yet.
	// nil applies the write unconditionally under the store's row lock.
	ExpectedVersion *int64
}

// UpsertResult describes an applied batch.
type UpsertResult struct {
	Version int64
	Chunks  []*models.Chunk
	// ReplacedBlobKeys lists offloaded objects that are no longer referenced.
	ReplacedBlobKeys []string
}

// Tombstone describes an applied delete. BlobKeys lists the offloaded
// objects of the chunks this call tombstoned, read under the same lock or
// transaction as the write.
type Tombstone struct {
	Version  int64
	Count    int
	BlobKeys []string
}

// Repository is implemented by the memory, Mongo and Postgres backends.
type Repository interface {
	// Upsert writes the batch as a single mutation; all or nothing.
	Upsert(ctx context.Context, teamID, documentID string, writes []Write) (*UpsertResult, error)
	// MarkDeleted tombstones one chunk. Tombstoning an already deleted chunk
	// returns its current version with Count 0 and no new mutation.
	MarkDeleted(ctx context.Context, teamID, documentID string, index int) (*Tombstone, error)
	// MarkDocumentDeleted tombstones every live chunk of the document as one
	// mutation. It returns version 0 when nothing was live.
	MarkDocumentDeleted(ctx context.Context, teamID, documentID string) (*Tombstone, error)
	Get(ctx context.Context, documentID string, index int) (*models.Chunk, error)
	// ListLive returns non-deleted chunks ordered by index.
	ListLive(ctx context.Context, documentID string) ([]*models.Chunk, error)
	// ListSinceDocument and ListSinceTeam return every chunk, tombstones
	// included, with version > watermark ordered by version ascending.
	ListSinceDocument(ctx context.Context, documentID string, watermark int64) ([]*models.Chunk, error)
	ListSinceTeam(ctx context.Context, teamID string, watermark int64) ([]*models.Chunk, error)
	// LatestVersions maps each document of the team to its highest chunk version.
	LatestVersions(ctx context.Context, teamID string) (map[string]int64, error)
	// PurgeTeam removes all chunks and the sequence of a deleted team.
	PurgeTeam(ctx context.Context, teamID string) error
}

// ValidateIndexes rejects an empty batch and negative or duplicate indexes.
func ValidateIndexes(indexes []int) error {
	if len(indexes) == 0 {
		return ErrInvalidWrite
	}
	seen := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		if i < 0 {
			return ErrInvalidWrite
		}
		if _, dup := seen[i]; dup {
			return ErrInvalidWrite
		}
		seen[i] = struct{}{}
	}
	return nil
}

// validateWrites runs ValidateIndexes before anything is applied.
func validateWrites(writes []Write) error {
	idx := make([]int, len(writes))
	for i, w := range writes {
		idx[i] = w.Index
	}
	return ValidateIndexes(idx)
}

// checkExpected applies the compare-and-swap rule for one write.
func checkExpected(w Write, existing *models.Chunk) error {
	if w.ExpectedVersion == nil {
		return nil
	}
	var current int64
	if existing != nil {
		current = existing.Version
	}
	if current != *w.ExpectedVersion {
		return ErrVersionConflict
	}
	return nil
}

func sortFeed(list []*models.Chunk) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Index < b.Index
	})
}

func sortByIndex(list []*models.Chunk) {
	sort.Slice(list, func(i, j int) bool { return list[i].Index < list[j].Index })
}

func cloneChunk(c *models.Chunk) *models.Chunk {
	cp := *c
	if c.Payload != nil {
		cp.Payload = append([]byte(nil), c.Payload...)
	}
	return &cp
}
