package store

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/gprimview/internal/core"
)

// fakeS3 answers the HEAD and GET requests the model store issues, using
// path-style addressing.
type fakeS3 struct {
	bucket    string
	objects   map[string]string
	forbidden map[string]bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if key == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if f.forbidden[key] {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	body, ok := f.objects[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h := w.Header()
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Content-Type", "application/octet-stream")
	h.Set("ETag", `"0123456789abcdef"`)
	h.Set("Last-Modified", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		io.WriteString(w, body)
	}
}

func newFakeMinio(t *testing.T, bucket, prefix string) *Minio {
	t.Helper()
	srv := httptest.NewServer(&fakeS3{
		bucket:    "models",
		objects:   map[string]string{"cad/parts/a.stl": "solid a\n", "root.stl": "solid r\n"},
		forbidden: map[string]bool{"cad/locked.stl": true},
	})
	t.Cleanup(srv.Close)

	s, err := NewMinio(context.Background(), MinioConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    bucket,
		Prefix:    prefix,
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return s
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestMinioPrefixedKey(t *testing.T) {
	s := newFakeMinio(t, "models", "cad")
	ctx := context.Background()

	assert.True(t, s.Exists(ctx, "parts/a.stl"))
	rc, err := s.Open(ctx, "parts/a.stl")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "solid a\n", string(data))

	assert.False(t, s.Exists(ctx, "root.stl"), "keys outside the prefix are not visible")
}

func TestMinioUnprefixedKey(t *testing.T) {
	s := newFakeMinio(t, "models", "")
	ctx := context.Background()

	assert.True(t, s.Exists(ctx, "root.stl"))
	assert.True(t, s.Exists(ctx, "cad/parts/a.stl"))
	rc, err := s.Open(ctx, "root.stl")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "solid r\n", string(data))
}

func TestMinioMissingKey(t *testing.T) {
	s := newFakeMinio(t, "models", "cad")
	buf := captureLog(t)
	ctx := context.Background()

	assert.False(t, s.Exists(ctx, "parts/missing.stl"))
	_, err := s.Open(ctx, "parts/missing.stl")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.Empty(t, buf.String(), "a missing key is not worth a warning")
}

func TestMinioStatFailureWarns(t *testing.T) {
	s := newFakeMinio(t, "models", "cad")
	buf := captureLog(t)

	assert.False(t, s.Exists(context.Background(), "locked.stl"))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "stat failed")
}

func TestMinioUnknownBucket(t *testing.T) {
	srv := httptest.NewServer(&fakeS3{bucket: "models"})
	t.Cleanup(srv.Close)

	_, err := NewMinio(context.Background(), MinioConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "other",
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
	})
	assert.ErrorContains(t, err, `bucket "other" does not exist`)
}
