package models

import "time"

// Chunk is one ciphertext slice of a document.
//
// Version is drawn from the owning team's sequence, so it increases on every
// mutation of the chunk and is comparable across all chunks of the team.
// Payload is nil when the ciphertext was offloaded to blob storage; BlobKey
// then names the object.
type Chunk struct {
	ID         string    `bson:"_id" json:"chunkId"`
	DocumentID string    `bson:"documentId" json:"documentId"`
	TeamID     string    `bson:"teamId" json:"teamId"`
	Index      int       `bson:"index" json:"chunkIndex"`
	Payload    []byte    `bson:"payload,omitempty" json:"encryptedBlob,omitempty"`
	BlobKey    string    `bson:"blobKey,omitempty" json:"-"`
	Version    int64     `bson:"version" json:"version"`
	Deleted    bool      `bson:"deleted" json:"isDeleted"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ChunkDelta is the wire form of a chunk in listings and sync feeds. Offloaded
// payloads are returned as a presigned BlobURL instead of inline ciphertext.
type ChunkDelta struct {
	DocumentID    string `json:"documentId"`
	ChunkID       string `json:"chunkId"`
	ChunkIndex    int    `json:"chunkIndex"`
	EncryptedBlob []byte `json:"encryptedBlob,omitempty"`
	BlobURL       string `json:"blobUrl,omitempty"`
	Version       int64  `json:"version"`
	IsDeleted     bool   `json:"isDeleted"`
	CreatedBy     string `json:"createdBy,omitempty"`
}
