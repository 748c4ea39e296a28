package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chunkvault/chunkvault/internal/database"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/google/uuid"
)

const documentColumns = `id, team_id, uploader_id, file_name, file_type, encrypted_dek, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var d models.Document
	if err := row.Scan(&d.ID, &d.TeamID, &d.UploaderID, &d.FileName, &d.FileType,
		&d.EncryptedDEK, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresRepo) Create(ctx context.Context, d *models.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	query := `INSERT INTO documents (` + documentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.TeamID, d.UploaderID, d.FileName, d.FileType, d.EncryptedDEK, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *PostgresRepo) getOne(ctx context.Context, where string, args ...any) (*models.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*models.Document, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepo) GetByTeamAndFileName(ctx context.Context, teamID, fileName string) (*models.Document, error) {
	return r.getOne(ctx, `team_id = $1 AND file_name = $2`, teamID, fileName)
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	out := []*models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListByTeam(ctx context.Context, teamID string) ([]*models.Document, error) {
	return r.list(ctx, `SELECT `+documentColumns+` FROM documents WHERE team_id = $1 ORDER BY created_at DESC`, teamID)
}

func (r *PostgresRepo) GetMany(ctx context.Context, ids []string) (map[string]*models.Document, error) {
	out := make(map[string]*models.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in, args := database.InList(1, ids)
	list, err := r.list(ctx, `SELECT `+documentColumns+` FROM documents WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, d := range list {
		out[d.ID] = d
	}
	return out, nil
}

func (r *PostgresRepo) SetDEKIfEmpty(ctx context.Context, id string, dek []byte) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET encrypted_dek = $1, updated_at = $2
		WHERE id = $3 AND (encrypted_dek IS NULL OR length(encrypted_dek) = 0)`,
		dek, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set document key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err := r.Get(ctx, id)
		return err
	}
	return nil
}

func (r *PostgresRepo) UpdateDEKs(ctx context.Context, teamID string, deks map[string][]byte) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		now := time.Now().UTC()
		for id, dek := range deks {
			res, err := tx.ExecContext(ctx,
				`UPDATE documents SET encrypted_dek = $1, updated_at = $2 WHERE id = $3 AND team_id = $4`,
				dek, now, id, teamID)
			if err != nil {
				return fmt.Errorf("update document key: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
