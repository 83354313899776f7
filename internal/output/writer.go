// Package output serializes the merged entity map and stores it through a
// blob store.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/entity"
	"github.com/JakeFAU/metadata-scraper/internal/hash/sha256"
	"github.com/JakeFAU/metadata-scraper/internal/metrics"
)

// DefaultContentType is used when the writer is not given one.
const DefaultContentType = "application/json; charset=utf-8"

// BlobStore persists an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Artifact describes a written document.
type Artifact struct {
	URI      string
	SHA256   string
	Bytes    int
	Entities int
}

// Writer encodes entity maps as indented JSON.
type Writer struct {
	store       BlobStore
	hasher      *sha256.Hasher
	contentType string
	logger      *zap.Logger
}

// NewWriter builds a Writer over store.
func NewWriter(store BlobStore, contentType string, logger *zap.Logger) *Writer {
	if contentType == "" {
		contentType = DefaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:       store,
		hasher:      sha256.New(),
		contentType: contentType,
		logger:      logger,
	}
}

// Encode renders m with two-space indentation. Keys are sorted, HTML is not
// escaped, and entries without fields carry an empty list.
func Encode(m entity.Map) ([]byte, error) {
	normalized := make(entity.Map, len(m))
	for name, entry := range m {
		if entry.Fields == nil {
			entry.Fields = []entity.Field{}
		}
		normalized[name] = entry
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("encode entity map: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes m and stores it at path.
func (w *Writer) Write(ctx context.Context, path string, m entity.Map) (Artifact, error) {
	data, err := Encode(m)
	if err != nil {
		return Artifact{}, err
	}
	digest, err := w.hasher.Hash(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("digest output: %w", err)
	}
	uri, err := w.store.PutObject(ctx, path, w.contentType, bytes.NewReader(data))
	if err != nil {
		return Artifact{}, fmt.Errorf("store output %s: %w", path, err)
	}
	metrics.ObserveOutputWrite(len(data))
	w.logger.Info("output written",
		zap.String("uri", uri),
		zap.Int("entities", len(m)),
		zap.Int("bytes", len(data)),
		zap.String("sha256", digest),
	)
	return Artifact{URI: uri, SHA256: digest, Bytes: len(data), Entities: len(m)}, nil
}
