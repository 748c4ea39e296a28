package service

import (
	"context"
	"testing"

	"github.com/chunkvault/chunkvault/internal/apperr"
	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	docservice "github.com/chunkvault/chunkvault/internal/document/service"
	"github.com/chunkvault/chunkvault/internal/edgenode"
	"github.com/chunkvault/chunkvault/internal/membership"
	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/internal/storage"
	teamrepo "github.com/chunkvault/chunkvault/internal/team/repository"
	"github.com/chunkvault/chunkvault/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = models.Principal{ID: "alice", Kind: models.PrincipalUser}
	bob   = models.Principal{ID: "bob", Kind: models.PrincipalUser}
	carol = models.Principal{ID: "carol", Kind: models.PrincipalUser}
)

type fixture struct {
	svc    *Service
	teams  *teamrepo.MemoryRepo
	edges  *edgenode.MemoryRepository
	docs   *docrepo.MemoryRepo
	chunks *chunkrepo.MemoryRepo
	blobs  *storage.MemoryBlobStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		teams:  teamrepo.NewMemoryRepo(),
		edges:  edgenode.NewMemoryRepository(),
		docs:   docrepo.NewMemoryRepo(),
		chunks: chunkrepo.NewMemoryRepo(),
		blobs:  storage.NewMemoryBlobStore(),
	}
	userRepo := users.NewMemoryUserRepository()
	for _, u := range []*models.User{
		{ID: "alice", Email: "alice@example.com", PublicKey: "pk-alice"},
		{ID: "bob", Email: "bob@example.com", PublicKey: "pk-bob"},
		{ID: "carol", Email: "carol@example.com", PublicKey: "pk-carol"},
	} {
		_, err := userRepo.UpsertBySub(ctx, u)
		require.NoError(t, err)
	}
	reg := membership.NewRegistry(f.teams, f.edges)
	f.svc = New(Deps{
		Teams:     f.teams,
		Registry:  reg,
		Users:     users.NewService(userRepo),
		Documents: docservice.New(f.docs, f.chunks, reg, f.blobs),
		EdgeNodes: f.edges,
		Chunks:    f.chunks,
		Blobs:     f.blobs,
	})
	return f
}

func (f *fixture) team(t *testing.T) string {
	t.Helper()
	v, err := f.svc.Create(context.Background(), alice, CreateRequest{Name: " Lab ", EncryptedTeamKey: "wk-alice"})
	require.NoError(t, err)
	return v.ID
}

func TestCreateListGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.team(t)

	list, err := f.svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Lab", list[0].Name)
	assert.Equal(t, models.RoleAdmin, list[0].Role)
	assert.Equal(t, "wk-alice", list[0].EncryptedTeamKey)

	_, err = f.svc.Get(ctx, bob, id)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.Get(ctx, alice, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Create(ctx, alice, CreateRequest{Name: "x"})
	require.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = f.svc.Create(ctx, models.Principal{ID: "n", Kind: models.PrincipalEdge}, CreateRequest{Name: "x", EncryptedTeamKey: "k"})
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.team(t)

	m, err := f.svc.Invite(ctx, alice, id, InviteRequest{Email: "BOB@example.com", EncryptedTeamKey: "wk-bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob", m.UserID)
	assert.Equal(t, models.RoleMember, m.Role)

	_, err = f.svc.Invite(ctx, alice, id, InviteRequest{UserID: "bob", EncryptedTeamKey: "wk-bob"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Invite(ctx, bob, id, InviteRequest{UserID: "carol", EncryptedTeamKey: "k"})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Invite(ctx, alice, id, InviteRequest{Email: "ghost@example.com", EncryptedTeamKey: "k"})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Invite(ctx, alice, id, InviteRequest{UserID: "carol", Role: "owner", EncryptedTeamKey: "k"})
	require.ErrorIs(t, err, apperr.ErrInvalid)

	members, err := f.svc.ListMembers(ctx, bob, id)
	require.NoError(t, err)
	require.Len(t, members, 2)
	keys := map[string]string{}
	for _, m := range members {
		keys[m.UserID] = m.PublicKey
	}
	assert.Equal(t, map[string]string{"alice": "pk-alice", "bob": "pk-bob"}, keys)
}

func TestKickReturnsRemainingKeyHolders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.team(t)
	for _, u := range []string{"bob", "carol"} {
		_, err := f.svc.Invite(ctx, alice, id, InviteRequest{UserID: u, EncryptedTeamKey: "wk-" + u})
		require.NoError(t, err)
	}
	require.NoError(t, f.edges.Create(ctx, &models.EdgeNode{ID: "n1", TeamID: id, SerialNumber: "SN", PublicKey: "pk-n1"}))

	_, err := f.svc.Kick(ctx, bob, id, "carol")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.Kick(ctx, alice, id, "alice")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	res, err := f.svc.Kick(ctx, alice, id, "carol")
	require.NoError(t, err)
	got := map[string]string{}
	for _, m := range res.RemainingMembers {
		got[m.UserID] = m.PublicKey
	}
	assert.Equal(t, map[string]string{"alice": "pk-alice", "bob": "pk-bob"}, got)
	assert.Equal(t, []RemainingEdgeNode{{NodeID: "n1", PublicKey: "pk-n1"}}, res.RemainingEdgeNodes)

	_, err = f.svc.Kick(ctx, alice, id, "carol")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestChangeRoleKeepsOwnerAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.team(t)
	_, err := f.svc.Invite(ctx, alice, id, InviteRequest{UserID: "bob", EncryptedTeamKey: "k"})
	require.NoError(t, err)

	r, err := f.svc.ChangeRole(ctx, alice, id, "bob", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, r)

	_, err = f.svc.ChangeRole(ctx, bob, id, "alice", "MEMBER")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	m, err := f.teams.GetMember(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, m.Role)

	_, err = f.svc.ChangeRole(ctx, alice, id, "bob", "guest")
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestDeleteFansOutInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.team(t)
	_, err := f.svc.Invite(ctx, alice, id, InviteRequest{UserID: "bob", Role: "ADMIN", EncryptedTeamKey: "k"})
	require.NoError(t, err)
	require.NoError(t, f.edges.Create(ctx, &models.EdgeNode{ID: "n1", TeamID: id, SerialNumber: "SN"}))
	require.NoError(t, f.docs.Create(ctx, &models.Document{ID: "d1", TeamID: id, UploaderID: "bob", FileName: "a"}))
	require.NoError(t, f.blobs.Put(ctx, "blob", []byte("x")))
	_, err = f.chunks.Upsert(ctx, id, "d1", []chunkrepo.Write{{Index: 0, Payload: []byte("x")}, {Index: 1, BlobKey: "blob"}})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, bob, id), apperr.ErrForbidden)

	require.NoError(t, f.svc.Delete(ctx, alice, id))
	_, err = f.teams.GetTeam(ctx, id)
	require.ErrorIs(t, err, teamrepo.ErrNotFound)
	members, err := f.teams.ListMembers(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, members)
	nodes, err := f.edges.ListByTeam(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	_, err = f.docs.Get(ctx, "d1")
	require.ErrorIs(t, err, docrepo.ErrNotFound)
	left, err := f.chunks.ListSinceTeam(ctx, id, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Zero(t, f.blobs.Len())

	require.ErrorIs(t, f.svc.Delete(ctx, alice, id), apperr.ErrNotFound)
}
