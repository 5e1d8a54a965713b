// Package store resolves store-relative model paths to readable streams.
package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/core"
)

// Local serves model files from one directory tree.
type Local struct {
	root string
}

var _ core.ModelStore = (*Local)(nil)

func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "view dir %q", dir)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "view dir %q", dir)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("view dir %q is not a directory", dir)
	}
	return &Local{root: abs}, nil
}

// path maps file into the root; files outside the root are rejected.
func (s *Local) path(file string) (string, bool) {
	p := filepath.Join(s.root, filepath.FromSlash(file))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

func (s *Local) Open(_ context.Context, file string) (io.ReadCloser, error) {
	p, ok := s.path(file)
	if !ok {
		log.Warn().Str("module", "store.local").Str("file", file).Msg("path escapes view dir")
		return nil, errors.Wrap(core.ErrNotFound, file)
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(core.ErrNotFound, file)
		}
		return nil, errors.Wrapf(err, "open %s", file)
	}
	return f, nil
}

func (s *Local) Exists(_ context.Context, file string) bool {
	p, ok := s.path(file)
	if !ok {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
