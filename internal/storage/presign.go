package storage

import (
	"context"
	"fmt"

	"github.com/chunkvault/chunkvault/internal/models"
)

// Deltas converts chunks to their wire form, presigning offloaded payloads.
// A nil store leaves BlobURL empty; tombstones are never presigned.
func Deltas(ctx context.Context, store BlobStore, chunks []*models.Chunk) ([]models.ChunkDelta, error) {
	out := make([]models.ChunkDelta, 0, len(chunks))
	for _, c := range chunks {
		d := models.ChunkDelta{
			DocumentID:    c.DocumentID,
			ChunkID:       c.ID,
			ChunkIndex:    c.Index,
			EncryptedBlob: c.Payload,
			Version:       c.Version,
			IsDeleted:     c.Deleted,
		}
		if c.BlobKey != "" && store != nil && !c.Deleted {
			url, err := store.PresignGet(ctx, c.BlobKey)
			if err != nil {
				return nil, fmt.Errorf("presign %s: %w", c.BlobKey, err)
			}
			d.BlobURL = url
		}
		out = append(out, d)
	}
	return out, nil
}
