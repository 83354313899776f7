package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func testClientOptions(srv *httptest.Server) []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(srv.URL), option.WithoutAuthentication()}
}

// TestPutObjectUploads verifies the multipart upload targets the prefixed key.
func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/docs-bucket/o")
		gotName = r.URL.Query().Get("name")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `{"CustomField":{}}`)
		fmt.Fprintf(w, `{"name":%q,"bucket":"docs-bucket"}`, gotName)
	}))
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(), testClientOptions(srv)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "docs-bucket", Prefix: "/exports/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "metadata-types.json", "application/json", strings.NewReader(`{"CustomField":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "gs://docs-bucket/exports/metadata-types.json", uri)
	assert.Equal(t, "exports/metadata-types.json", gotName)
	require.NoError(t, store.Close())
}

// TestOpenMissingBucket verifies bucket access is checked up front.
func TestOpenMissingBucket(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"Not Found"}}`)
	}))
	t.Cleanup(srv.Close)

	_, err := Open(context.Background(), Config{Bucket: "missing"}, testClientOptions(srv)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

// TestNewValidates verifies required arguments.
func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " / ", "", strings.NewReader("x"))
	require.Error(t, err)
}
