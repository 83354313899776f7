// Package storage selects the blob store that receives output artifacts.
// Implementations live in the gcs, local and memory subpackages.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/JakeFAU/metadata-scraper/internal/config"
	"github.com/JakeFAU/metadata-scraper/internal/storage/gcs"
	"github.com/JakeFAU/metadata-scraper/internal/storage/local"
	"github.com/JakeFAU/metadata-scraper/internal/storage/memory"
)

// BlobStore persists an object and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Open builds the blob store named by cfg.Backend. The returned close func
// is never nil.
func Open(ctx context.Context, cfg config.OutputConfig) (BlobStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewBlobStore(), noop, nil
	case config.BackendLocal, "":
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, noop, fmt.Errorf("open local blob store: %w", err)
		}
		return store, noop, nil
	case config.BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, noop, fmt.Errorf("open gcs blob store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown output backend %q", cfg.Backend)
	}
}
