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

// errNoop rolls back a transaction whose mutation turned out to be empty so
// the drawn version is not consumed by a row.
var errNoop = errors.New("noop")

const chunkColumns = `id, document_id, team_id, chunk_index, payload, blob_key, version, deleted, created_at, updated_at`

// PostgresRepo serializes writers of a team on the team_sequences row lock,
// which is held from version allocation until commit.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func nextVersion(ctx context.Context, tx database.DBTX, teamID string) (int64, error) {
	query := `INSERT INTO team_sequences (team_id, version) VALUES ($1, 1)
		ON CONFLICT (team_id) DO UPDATE SET version = team_sequences.version + 1
		RETURNING version`
	var v int64
	if err := tx.QueryRowContext(ctx, query, teamID).Scan(&v); err != nil {
		return 0, fmt.Errorf("allocate version: %w", err)
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var c models.Chunk
	if err := row.Scan(&c.ID, &c.DocumentID, &c.TeamID, &c.Index, &c.Payload, &c.BlobKey,
		&c.Version, &c.Deleted, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func getForUpdate(ctx context.Context, tx database.DBTX, documentID string, index int) (*models.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE document_id = $1 AND chunk_index = $2 FOR UPDATE`
	c, err := scanChunk(tx.QueryRowContext(ctx, query, documentID, index))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *PostgresRepo) Upsert(ctx context.Context, teamID, documentID string, writes []Write) (*UpsertResult, error) {
	if err := validateWrites(writes); err != nil {
		return nil, err
	}
	var res *UpsertResult
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		v, err := nextVersion(ctx, tx, teamID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		res = &UpsertResult{Version: v, Chunks: make([]*models.Chunk, 0, len(writes))}
		for _, w := range writes {
			existing, err := getForUpdate(ctx, tx, documentID, w.Index)
			if err != nil {
				return fmt.Errorf("read chunk %d: %w", w.Index, err)
			}
			if err := checkExpected(w, existing); err != nil {
				return err
			}
			c, err := applyWrite(ctx, tx, teamID, documentID, w, existing, v, now)
			if err != nil {
				return err
			}
			if existing != nil && existing.BlobKey != "" && existing.BlobKey != w.BlobKey {
				res.ReplacedBlobKeys = append(res.ReplacedBlobKeys, existing.BlobKey)
			}
			res.Chunks = append(res.Chunks, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func applyWrite(ctx context.Context, tx database.DBTX, teamID, documentID string, w Write, existing *models.Chunk, v int64, now time.Time) (*models.Chunk, error) {
	if existing == nil {
		c := &models.Chunk{ID: uuid.NewString(), DocumentID: documentID, TeamID: teamID, Index: w.Index,
			Payload: w.Payload, BlobKey: w.BlobKey, Version: v, CreatedAt: now, UpdatedAt: now}
		query := `INSERT INTO chunks (` + chunkColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $8)
			ON CONFLICT (document_id, chunk_index) DO NOTHING`
		res, err := tx.ExecContext(ctx, query, c.ID, documentID, teamID, w.Index, w.Payload, w.BlobKey, v, now)
		if err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", w.Index, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrVersionConflict
		}
		return c, nil
	}
	query := `UPDATE chunks SET payload = $1, blob_key = $2, version = $3, deleted = FALSE, updated_at = $4
		WHERE id = $5 AND version = $6`
	res, err := tx.ExecContext(ctx, query, w.Payload, w.BlobKey, v, now, existing.ID, existing.Version)
	if err != nil {
		return nil, fmt.Errorf("update chunk %d: %w", w.Index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrVersionConflict
	}
	c := *existing
	c.Payload, c.BlobKey, c.Version, c.Deleted, c.UpdatedAt = w.Payload, w.BlobKey, v, false, now
	return &c, nil
}

func (r *PostgresRepo) MarkDeleted(ctx context.Context, teamID, documentID string, index int) (*Tombstone, error) {
	var ts *Tombstone
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		v, err := nextVersion(ctx, tx, teamID)
		if err != nil {
			return err
		}
		c, err := getForUpdate(ctx, tx, documentID, index)
		if err != nil {
			return err
		}
		if c == nil || c.TeamID != teamID {
			return ErrNotFound
		}
		if c.Deleted {
			ts = &Tombstone{Version: c.Version}
			return errNoop
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE chunks SET deleted = TRUE, version = $1, updated_at = $2 WHERE id = $3`,
			v, time.Now().UTC(), c.ID)
		if err != nil {
			return fmt.Errorf("tombstone chunk: %w", err)
		}
		ts = &Tombstone{Version: v, Count: 1}
		if c.BlobKey != "" {
			ts.BlobKeys = []string{c.BlobKey}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoop) {
		return nil, err
	}
	return ts, nil
}

func (r *PostgresRepo) MarkDocumentDeleted(ctx context.Context, teamID, documentID string) (*Tombstone, error) {
	ts := &Tombstone{}
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		v, err := nextVersion(ctx, tx, teamID)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`UPDATE chunks SET deleted = TRUE, version = $1, updated_at = $2
			WHERE document_id = $3 AND team_id = $4 AND deleted = FALSE
			RETURNING blob_key`,
			v, time.Now().UTC(), documentID, teamID)
		if err != nil {
			return fmt.Errorf("tombstone document chunks: %w", err)
		}
		defer rows.Close()
		var keys []string
		n := 0
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return err
			}
			n++
			if key != "" {
				keys = append(keys, key)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if n == 0 {
			return errNoop
		}
		ts = &Tombstone{Version: v, Count: n, BlobKeys: keys}
		return nil
	})
	if err != nil && !errors.Is(err, errNoop) {
		return nil, err
	}
	return ts, nil
}

func (r *PostgresRepo) Get(ctx context.Context, documentID string, index int) (*models.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE document_id = $1 AND chunk_index = $2`
	c, err := scanChunk(r.db.QueryRowContext(ctx, query, documentID, index))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) ListLive(ctx context.Context, documentID string) ([]*models.Chunk, error) {
	return r.query(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = $1 AND deleted = FALSE ORDER BY chunk_index`, documentID)
}

func (r *PostgresRepo) ListSinceDocument(ctx context.Context, documentID string, watermark int64) ([]*models.Chunk, error) {
	return r.query(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = $1 AND version > $2 ORDER BY version, chunk_index`, documentID, watermark)
}

func (r *PostgresRepo) ListSinceTeam(ctx context.Context, teamID string, watermark int64) ([]*models.Chunk, error) {
	return r.query(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE team_id = $1 AND version > $2 ORDER BY version, document_id, chunk_index`, teamID, watermark)
}

func (r *PostgresRepo) query(ctx context.Context, query string, args ...any) ([]*models.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()
	out := []*models.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) LatestVersions(ctx context.Context, teamID string) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT document_id, MAX(version) FROM chunks WHERE team_id = $1 GROUP BY document_id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("latest versions: %w", err)
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var id string
		var v int64
		if err := rows.Scan(&id, &v); err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, rows.Err()
}

func (r *PostgresRepo) PurgeTeam(ctx context.Context, teamID string) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE team_id = $1`, teamID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM team_sequences WHERE team_id = $1`, teamID)
		return err
	})
}
