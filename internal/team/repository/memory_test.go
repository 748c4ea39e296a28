package repository

import (
	"context"
	"testing"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/stretchr/testify/require"
)

func seedTeam(t *testing.T, r *MemoryRepo) {
	t.Helper()
	err := r.CreateTeam(context.Background(),
		&models.Team{ID: "t1", Name: "Team", OwnerID: "a"},
		&models.Member{TeamID: "t1", UserID: "a", Role: models.RoleAdmin, WrappedTeamKey: "ka"})
	require.NoError(t, err)
}

func TestMemoryRepo_CreateTeamAddsOwner(t *testing.T) {
	r := NewMemoryRepo()
	seedTeam(t, r)
	ctx := context.Background()

	team, err := r.GetTeam(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "a", team.OwnerID)

	owner, err := r.GetMember(ctx, "t1", "a")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, owner.Role)
	require.Equal(t, "ka", owner.WrappedTeamKey)
}

func TestMemoryRepo_MemberLifecycle(t *testing.T) {
	r := NewMemoryRepo()
	seedTeam(t, r)
	ctx := context.Background()

	require.NoError(t, r.AddMember(ctx, &models.Member{TeamID: "t1", UserID: "m", Role: models.RoleMember}))
	require.ErrorIs(t, r.AddMember(ctx, &models.Member{TeamID: "t1", UserID: "m", Role: models.RoleMember}), ErrConflict)

	require.NoError(t, r.UpdateRole(ctx, "t1", "m", models.RoleAdmin))
	m, _ := r.GetMember(ctx, "t1", "m")
	require.Equal(t, models.RoleAdmin, m.Role)

	list, err := r.ListMembers(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	mine, err := r.ListMembershipsByUser(ctx, "m")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, r.RemoveMember(ctx, "t1", "m"))
	_, err = r.GetMember(ctx, "t1", "m")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.RemoveMember(ctx, "t1", "m"), ErrNotFound)
}

func TestMemoryRepo_UpdateWrappedKeysAllOrNothing(t *testing.T) {
	r := NewMemoryRepo()
	seedTeam(t, r)
	ctx := context.Background()
	require.NoError(t, r.AddMember(ctx, &models.Member{TeamID: "t1", UserID: "m", Role: models.RoleMember, WrappedTeamKey: "km"}))

	err := r.UpdateWrappedKeys(ctx, "t1", map[string]string{"a": "ka2", "ghost": "x"})
	require.ErrorIs(t, err, ErrNotFound)
	a, _ := r.GetMember(ctx, "t1", "a")
	require.Equal(t, "ka", a.WrappedTeamKey)

	require.NoError(t, r.UpdateWrappedKeys(ctx, "t1", map[string]string{"a": "ka2", "m": "km2"}))
	m, _ := r.GetMember(ctx, "t1", "m")
	require.Equal(t, "km2", m.WrappedTeamKey)
}

func TestMemoryRepo_GetTeamsSkipsMissing(t *testing.T) {
	r := NewMemoryRepo()
	seedTeam(t, r)
	teams, err := r.GetTeams(context.Background(), []string{"t1", "nope"})
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.NoError(t, r.DeleteTeam(context.Background(), "t1"))
	require.ErrorIs(t, r.DeleteTeam(context.Background(), "t1"), ErrNotFound)
}
