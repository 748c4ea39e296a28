package edgenode

import (
	"context"
	"testing"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &models.EdgeNode{ID: "n1", TeamID: "t1", SerialNumber: "SN-1"}))
	require.ErrorIs(t, r.Create(ctx, &models.EdgeNode{ID: "n2", TeamID: "t1", SerialNumber: "SN-1"}), ErrConflict)
	require.NoError(t, r.Create(ctx, &models.EdgeNode{ID: "n2", TeamID: "t2", SerialNumber: "SN-2"}))

	n, err := r.GetBySerial(ctx, "SN-2")
	require.NoError(t, err)
	require.Equal(t, "n2", n.ID)

	list, err := r.ListByTeam(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.ErrorIs(t, r.UpdateWrappedKeys(ctx, "t1", map[string]string{"n1": "a", "n2": "b"}), ErrNotFound)
	n, _ = r.Get(ctx, "n1")
	require.Empty(t, n.WrappedTeamKey)
	require.NoError(t, r.UpdateWrappedKeys(ctx, "t1", map[string]string{"n1": "a"}))
	n, _ = r.Get(ctx, "n1")
	require.Equal(t, "a", n.WrappedTeamKey)

	require.NoError(t, r.Delete(ctx, "n1"))
	require.ErrorIs(t, r.Delete(ctx, "n1"), ErrNotFound)
}
