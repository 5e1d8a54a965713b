package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/gprimview/internal/core"
)

func TestLocal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "parts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "parts", "a.stl"), []byte("solid a\n"), 0o644))
	outside := filepath.Join(filepath.Dir(root), "secret.stl")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
	t.Cleanup(func() { os.Remove(outside) })

	s, err := NewLocal(root)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, s.Exists(ctx, "parts/a.stl"))
	assert.False(t, s.Exists(ctx, "parts"), "directories are not models")
	assert.False(t, s.Exists(ctx, "parts/missing.stl"))
	assert.False(t, s.Exists(ctx, "../secret.stl"))

	rc, err := s.Open(ctx, "parts/a.stl")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "solid a\n", string(data))

	_, err = s.Open(ctx, "../secret.stl")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	_, err = s.Open(ctx, "nope.stl")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestNewLocalRejectsFiles(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := NewLocal(f)
	assert.Error(t, err)
	_, err = NewLocal(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
