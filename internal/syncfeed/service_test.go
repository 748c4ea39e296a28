package syncfeed

import (
	"context"
	"testing"

	"github.com/chunkvault/chunkvault/internal/apperr"
	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	"github.com/chunkvault/chunkvault/internal/edgenode"
	"github.com/chunkvault/chunkvault/internal/membership"
	"github.com/chunkvault/chunkvault/internal/models"
	teamrepo "github.com/chunkvault/chunkvault/internal/team/repository"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var (
	admin    = models.Principal{ID: "a", Kind: models.PrincipalUser}
	uploader = models.Principal{ID: "m", Kind: models.PrincipalUser}
	outsider = models.Principal{ID: "x", Kind: models.PrincipalUser}
	edge     = models.Principal{ID: "n1", Kind: models.PrincipalEdge, TeamID: "t1"}
)

type fixture struct {
	svc    *Service
	chunks *chunkrepo.MemoryRepo
	docs   *docrepo.MemoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	teams := teamrepo.NewMemoryRepo()
	require.NoError(t, teams.CreateTeam(ctx,
		&models.Team{ID: "t1", Name: "T", OwnerID: "a"},
		&models.Member{TeamID: "t1", UserID: "a", Role: models.RoleAdmin}))
	require.NoError(t, teams.AddMember(ctx, &models.Member{TeamID: "t1", UserID: "m", Role: models.RoleMember}))
	edges := edgenode.NewMemoryRepository()
	require.NoError(t, edges.Create(ctx, &models.EdgeNode{ID: "n1", TeamID: "t1", SerialNumber: "SN-1"}))

	f := &fixture{chunks: chunkrepo.NewMemoryRepo(), docs: docrepo.NewMemoryRepo()}
	f.svc = New(f.chunks, f.docs, membership.NewRegistry(teams, edges), nil)
	return f
}

func (f *fixture) upsert(t *testing.T, docID string, idx ...int) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.docs.Get(ctx, docID); err != nil {
		require.NoError(t, f.docs.Create(ctx, &models.Document{ID: docID, TeamID: "t1", UploaderID: "m", FileName: docID + ".pdf"}))
	}
	writes := make([]chunkrepo.Write, 0, len(idx))
	for _, i := range idx {
		writes = append(writes, chunkrepo.Write{Index: i, Payload: []byte{byte('a' + i)}})
	}
	_, err := f.chunks.Upsert(ctx, "t1", docID, writes)
	require.NoError(t, err)
}

type entry struct {
	Doc     string
	Index   int
	Version int64
	Deleted bool
	By      string
}

func summarize(in []models.ChunkDelta) []entry {
	out := make([]entry, 0, len(in))
	for _, d := range in {
		out = append(out, entry{Doc: d.DocumentID, Index: d.ChunkIndex, Version: d.Version, Deleted: d.IsDeleted, By: d.CreatedBy})
	}
	return out
}

func TestSyncDocumentScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upsert(t, "d1", 0, 1, 2)
	f.upsert(t, "d1", 1)
	_, err := f.chunks.MarkDeleted(ctx, "t1", "d1", 2)
	require.NoError(t, err)

	got, err := f.svc.SyncDocument(ctx, uploader, "d1", 0)
	require.NoError(t, err)
	want := []entry{
		{Doc: "d1", Index: 0, Version: 1},
		{Doc: "d1", Index: 1, Version: 2},
		{Doc: "d1", Index: 2, Version: 3, Deleted: true},
	}
	if diff := cmp.Diff(want, summarize(got)); diff != "" {
		t.Fatalf("feed mismatch (-want +got):\n%s", diff)
	}

	got, err = f.svc.SyncDocument(ctx, uploader, "d1", 1)
	require.NoError(t, err)
	if diff := cmp.Diff(want[1:], summarize(got)); diff != "" {
		t.Fatalf("feed after watermark 1 (-want +got):\n%s", diff)
	}

	got, err = f.svc.SyncDocument(ctx, uploader, "d1", 3)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWatermarkResubmissionHasNoGapsOrDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wm   int64
		seen []entry
	)
	pull := func() {
		got, err := f.svc.SyncTeam(ctx, admin, "t1", wm)
		require.NoError(t, err)
		for _, e := range summarize(got) {
			require.Greater(t, e.Version, wm)
			seen = append(seen, e)
		}
		if len(got) > 0 {
			wm = got[len(got)-1].Version
		}
	}

	f.upsert(t, "d1", 0, 1)
	pull()
	f.upsert(t, "d2", 0)
	f.upsert(t, "d1", 1)
	pull()
	_, err := f.chunks.MarkDocumentDeleted(ctx, "t1", "d2")
	require.NoError(t, err)
	pull()
	pull()

	want := []entry{
		{Doc: "d1", Index: 0, Version: 1, By: "m"},
		{Doc: "d1", Index: 1, Version: 1, By: "m"},
		{Doc: "d2", Index: 0, Version: 2, By: "m"},
		{Doc: "d1", Index: 1, Version: 3, By: "m"},
		{Doc: "d2", Index: 0, Version: 4, Deleted: true, By: "m"},
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("incremental feed (-want +got):\n%s", diff)
	}
}

func TestSyncTeamMatchesFullSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upsert(t, "d1", 0, 1, 2)
	f.upsert(t, "d2", 0)
	f.upsert(t, "d1", 2)

	got, err := f.svc.SyncTeam(ctx, edge, "t1", 0)
	require.NoError(t, err)
	sortByKey := cmpopts.SortSlices(func(a, b entry) bool {
		if a.Doc != b.Doc {
			return a.Doc < b.Doc
		}
		return a.Index < b.Index
	})
	want := []entry{
		{Doc: "d1", Index: 0, Version: 1, By: "m"},
		{Doc: "d1", Index: 1, Version: 1, By: "m"},
		{Doc: "d1", Index: 2, Version: 3, By: "m"},
		{Doc: "d2", Index: 0, Version: 2, By: "m"},
	}
	if diff := cmp.Diff(want, summarize(got), sortByKey); diff != "" {
		t.Fatalf("snapshot (-want +got):\n%s", diff)
	}
}

func TestSyncRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upsert(t, "d1", 0)

	_, err := f.svc.SyncDocument(ctx, outsider, "d1", 0)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.SyncTeam(ctx, outsider, "t1", 0)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.SyncTeam(ctx, models.Principal{ID: "n1", Kind: models.PrincipalEdge, TeamID: "t2"}, "t1", 0)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.SyncDocument(ctx, uploader, "nope", 0)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.SyncTeam(ctx, uploader, "t1", -1)
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestSyncDocumentServesTombstonesAfterRecordDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upsert(t, "d1", 0, 1)
	_, err := f.chunks.MarkDocumentDeleted(ctx, "t1", "d1")
	require.NoError(t, err)
	require.NoError(t, f.docs.Delete(ctx, "d1"))

	got, err := f.svc.SyncDocument(ctx, uploader, "d1", 1)
	require.NoError(t, err)
	want := []entry{
		{Doc: "d1", Index: 0, Version: 2, Deleted: true},
		{Doc: "d1", Index: 1, Version: 2, Deleted: true},
	}
	if diff := cmp.Diff(want, summarize(got)); diff != "" {
		t.Fatalf("tombstones (-want +got):\n%s", diff)
	}

	_, err = f.svc.SyncDocument(ctx, outsider, "d1", 0)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSyncDocumentMeta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upsert(t, "d1", 0)
	f.upsert(t, "d2", 0)
	f.upsert(t, "d1", 1)

	got, err := f.svc.SyncDocumentMeta(ctx, uploader, "t1", 1)
	require.NoError(t, err)
	want := []DocumentMeta{
		{DocumentID: "d2", FileName: "d2.pdf", Version: 2, UploaderID: "m"},
		{DocumentID: "d1", FileName: "d1.pdf", Version: 3, UploaderID: "m"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document feed (-want +got):\n%s", diff)
	}
}
