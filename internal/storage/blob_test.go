package storage

import (
	"context"
	"testing"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBlobStore()
	require.NoError(t, s.Put(ctx, "t1/d1/0", []byte("cipher")))

	got, err := s.Get(ctx, "t1/d1/0")
	require.NoError(t, err)
	require.Equal(t, []byte("cipher"), got)

	url, err := s.PresignGet(ctx, "t1/d1/0")
	require.NoError(t, err)
	require.Equal(t, "memory://t1/d1/0", url)

	require.NoError(t, s.Delete(ctx, "t1/d1/0"))
	_, err = s.Get(ctx, "t1/d1/0")
	require.ErrorIs(t, err, ErrBlobNotFound)
	require.Zero(t, s.Len())
}

func TestNewMinIOStorageRequiresEndpoint(t *testing.T) {
	_, err := NewMinIOStorage(context.Background(), MinIOOptions{})
	require.Error(t, err)
}

func TestDeltasPresignsOffloadedChunks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBlobStore()
	require.NoError(t, s.Put(ctx, "big", []byte("xxxx")))

	out, err := Deltas(ctx, s, []*models.Chunk{
		{ID: "c0", DocumentID: "d", Index: 0, Payload: []byte("inline"), Version: 1},
		{ID: "c1", DocumentID: "d", Index: 1, BlobKey: "big", Version: 1},
	})
	require.NoError(t, err)
	require.Equal(t, []byte("inline"), out[0].EncryptedBlob)
	require.Empty(t, out[0].BlobURL)
	require.Equal(t, "memory://big", out[1].BlobURL)
	require.Nil(t, out[1].EncryptedBlob)

	_, err = Deltas(ctx, s, []*models.Chunk{{ID: "c2", BlobKey: "gone"}})
	require.ErrorIs(t, err, ErrBlobNotFound)
}
