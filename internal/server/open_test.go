package server

import (
	"context"
	"testing"

	"github.com/chunkvault/chunkvault/internal/config"
	"github.com/stretchr/testify/require"
)

func TestOpenStoresMemory(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: config.DriverMemory}}
	st, closeFn, err := OpenStores(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	require.NotNil(t, st.Chunks)
	require.NotNil(t, st.Teams)
	require.Nil(t, st.Ping)
}

func TestOpenStoresUnknownDriver(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "cassandra"}}
	_, _, err := OpenStores(context.Background(), cfg)
	require.ErrorContains(t, err, "cassandra")
}
