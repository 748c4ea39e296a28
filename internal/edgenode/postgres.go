package edgenode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chunkvault/chunkvault/internal/database"
	"github.com/chunkvault/chunkvault/internal/models"
)

const nodeColumns = `id, team_id, serial_number, hashed_token, public_key, wrapped_team_key, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanNode(row interface{ Scan(...any) error }) (*models.EdgeNode, error) {
	var n models.EdgeNode
	if err := row.Scan(&n.ID, &n.TeamID, &n.SerialNumber, &n.HashedToken, &n.PublicKey,
		&n.WrappedTeamKey, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *PostgresRepository) Create(ctx context.Context, n *models.EdgeNode) error {
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO edge_nodes (`+nodeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		n.ID, n.TeamID, n.SerialNumber, n.HashedToken, n.PublicKey, n.WrappedTeamKey, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert edge node: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg string) (*models.EdgeNode, error) {
	n, err := scanNode(r.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM edge_nodes WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.EdgeNode, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetBySerial(ctx context.Context, serial string) (*models.EdgeNode, error) {
	return r.getOne(ctx, `serial_number = $1`, serial)
}

func (r *PostgresRepository) ListByTeam(ctx context.Context, teamID string) ([]*models.EdgeNode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM edge_nodes WHERE team_id = $1 ORDER BY created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query edge nodes: %w", err)
	}
	defer rows.Close()
	out := []*models.EdgeNode{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		now := time.Now().UTC()
		for id, key := range keys {
			res, err := tx.ExecContext(ctx,
				`UPDATE edge_nodes SET wrapped_team_key = $1, updated_at = $2 WHERE id = $3 AND team_id = $4`,
				key, now, id, teamID)
			if err != nil {
				return fmt.Errorf("update edge node key: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM edge_nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete edge node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
