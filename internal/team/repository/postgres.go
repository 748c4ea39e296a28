package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chunkvault/chunkvault/internal/database"
	"github.com/chunkvault/chunkvault/internal/models"
)

const (
	teamColumns   = `id, name, description, owner_id, created_at`
	memberColumns = `team_id, user_id, role, wrapped_team_key, joined_at, updated_at`
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (*models.Team, error) {
	var t models.Team
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanMember(row rowScanner) (*models.Member, error) {
	var m models.Member
	var role string
	if err := row.Scan(&m.TeamID, &m.UserID, &role, &m.WrappedTeamKey, &m.JoinedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Role = models.Role(role)
	return &m, nil
}

func insertMember(ctx context.Context, db database.DBTX, m *models.Member) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO team_members (`+memberColumns+`) VALUES ($1, $2, $3, $4, $5, $5)`,
		m.TeamID, m.UserID, string(m.Role), m.WrappedTeamKey, m.JoinedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *PostgresRepo) CreateTeam(ctx context.Context, t *models.Team, owner *models.Member) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	owner.JoinedAt, owner.UpdatedAt = now, now
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO teams (`+teamColumns+`) VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.Name, t.Description, t.OwnerID, t.CreatedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert team: %w", err)
		}
		return insertMember(ctx, tx, owner)
	})
}

func (r *PostgresRepo) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	t, err := scanTeam(r.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *PostgresRepo) GetTeams(ctx context.Context, ids []string) ([]*models.Team, error) {
	out := []*models.Team{}
	if len(ids) == 0 {
		return out, nil
	}
	in, args := database.InList(1, ids)
	rows, err := r.db.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id IN (`+in+`) ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteTeam(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM teams WHERE id = $1`, id)
}

func execOne(ctx context.Context, db database.DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) AddMember(ctx context.Context, m *models.Member) error {
	now := time.Now().UTC()
	m.JoinedAt, m.UpdatedAt = now, now
	return insertMember(ctx, r.db, m)
}

func (r *PostgresRepo) GetMember(ctx context.Context, teamID, userID string) (*models.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *PostgresRepo) listMembers(ctx context.Context, where string, arg string) ([]*models.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM team_members WHERE `+where+` ORDER BY joined_at, user_id`, arg)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()
	out := []*models.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListMembers(ctx context.Context, teamID string) ([]*models.Member, error) {
	return r.listMembers(ctx, `team_id = $1`, teamID)
}

func (r *PostgresRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]*models.Member, error) {
	return r.listMembers(ctx, `user_id = $1`, userID)
}

func (r *PostgresRepo) RemoveMember(ctx context.Context, teamID, userID string) error {
	return execOne(ctx, r.db, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
}

func (r *PostgresRepo) UpdateRole(ctx context.Context, teamID, userID string, role models.Role) error {
	return execOne(ctx, r.db,
		`UPDATE team_members SET role = $1, updated_at = $2 WHERE team_id = $3 AND user_id = $4`,
		string(role), time.Now().UTC(), teamID, userID)
}

func (r *PostgresRepo) UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		now := time.Now().UTC()
		for userID, key := range keys {
			err := execOne(ctx, tx,
				`UPDATE team_members SET wrapped_team_key = $1, updated_at = $2 WHERE team_id = $3 AND user_id = $4`,
				key, now, teamID, userID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
