package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/domain"
	"github.com/dkeye/gprimview/internal/stl"
)

// CSM views CAD-kernel models. Tessellation is delegated to an external
// command that reads the model on stdin and writes STL on stdout.
func CSM() Plugin {
	return Plugin{
		Name:       "csm",
		Package:    "opencsm",
		Extensions: []string{"csm"},
		Load: func(env Env) error {
			if env.Store == nil {
				return errors.New("no model store configured")
			}
			if env.CAD.Tessellator == "" {
				return errors.New("cad.tessellator is not configured")
			}
			if _, err := exec.LookPath(env.CAD.Tessellator); err != nil {
				return errors.Wrap(err, "cad tessellator")
			}
			return nil
		},
		New: func(env Env) (core.GeometrySource, error) {
			return &csmSource{
				store:  env.Store,
				cad:    env.CAD,
				parser: stl.NewParser(stl.Options{ExactBounds: true}),
			}, nil
		},
	}
}

type csmSource struct {
	store  core.ModelStore
	cad    CADConfig
	parser *stl.Parser
}

var _ core.ControlHandler = (*csmSource)(nil)

func (s *csmSource) Name() string { return "csm" }

func (s *csmSource) Supports(ctx context.Context, file string) bool {
	return domain.Ext(file) == "csm" && s.store.Exists(ctx, file)
}

func (s *csmSource) Populate(ctx context.Context, enc core.Encoder, file string) error {
	if s.cad.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cad.Timeout)
		defer cancel()
	}
	rc, err := s.store.Open(ctx, file)
	if err != nil {
		return err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.cad.Tessellator, "-")
	cmd.Stdin = rc
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "tessellate %s: %s", file, bytes.TrimSpace(stderr.Bytes()))
	}
	log.Debug().Str("module", "plugins.csm").Str("file", file).Int("bytes", stdout.Len()).Msg("tessellated")

	cam := core.DefaultCamera(0)
	cam.Eye = [3]float32{1, 0, 7}
	return loadSolids(enc, cam, s.parser, &stdout, domain.Stem(file))
}

// OnControl answers CAD command messages on the text channel.
func (s *csmSource) OnControl(_ context.Context, view core.GPrimLister, msg []byte) ([]byte, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, errors.Wrap(err, "bad control message")
	}
	switch env.Type {
	case "info":
		return json.Marshal(struct {
			Type   string   `json:"type"`
			Source string   `json:"source"`
			GPrims []string `json:"gprims"`
		}{"info", s.Name(), view.GPrims()})
	default:
		return nil, errors.Errorf("unknown command %q", env.Type)
	}
}
