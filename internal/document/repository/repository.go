package repository

import (
	"context"
	"errors"

	"github.com/chunkvault/chunkvault/internal/models"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document already exists")
)

// Repository persists document metadata. Ciphertext lives in the chunk store.
type Repository interface {
	// Create inserts d. (TeamID, FileName) is unique; a duplicate yields ErrConflict.
	Create(ctx context.Context, d *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	GetByTeamAndFileName(ctx context.Context, teamID, fileName string) (*models.Document, error)
	ListByTeam(ctx context.Context, teamID string) ([]*models.Document, error)
	// GetMany returns the documents that exist, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]*models.Document, error)
	// SetDEKIfEmpty stores dek only when the document has none yet.
	SetDEKIfEmpty(ctx context.Context, id string, dek []byte) error
	// UpdateDEKs replaces the wrapped data keys of documents in teamID. Every
	// id must belong to the team, otherwise nothing is written and
	// ErrNotFound is returned.
	UpdateDEKs(ctx context.Context, teamID string, deks map[string][]byte) error
	Delete(ctx context.Context, id string) error
}
