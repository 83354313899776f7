package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/metadata-scraper/internal/config"
	"github.com/JakeFAU/metadata-scraper/internal/storage/local"
	"github.com/JakeFAU/metadata-scraper/internal/storage/memory"
)

// TestOpenSelectsBackend verifies the configured backend is constructed.
func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()

	store, closeFn, err := Open(context.Background(), config.OutputConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.BlobStore{}, store)
	require.NoError(t, closeFn())

	store, closeFn, err = Open(context.Background(), config.OutputConfig{Backend: config.BackendLocal, LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &local.BlobStore{}, store)
	require.NoError(t, closeFn())
}

// TestOpenRejectsUnknownBackend verifies configuration mistakes surface.
func TestOpenRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	_, closeFn, err := Open(context.Background(), config.OutputConfig{Backend: "s3"})
	require.Error(t, err)
	require.NotNil(t, closeFn)
}
