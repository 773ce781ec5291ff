// Package profile loads the read-only client roster the weekly batch runs
// against. Profiles come from an external system; this package only reads.
package profile

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/weekly-intel/internal/model"
)

// Provider supplies client profiles to the orchestrator.
type Provider interface {
	Get(ctx context.Context, clientID string) (model.ClientProfile, error)
	List(ctx context.Context) ([]model.ClientProfile, error)
}

// ErrNotFound is returned when a client ID is not in the roster.
var ErrNotFound = eris.New("profile: client not found")

type roster struct {
	Clients []model.ClientProfile `yaml:"clients"`
}

// FileProvider reads profiles from a YAML roster file. The file is parsed
// once at construction; reruns pick up edits by rebuilding the provider.
type FileProvider struct {
	byID  map[string]model.ClientProfile
	order []string
}

// NewFileProvider loads and validates the roster at path.
func NewFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read roster %s", path)
	}
	return parseRoster(data)
}

func parseRoster(data []byte) (*FileProvider, error) {
	var r roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "profile: parse roster")
	}

	p := &FileProvider{byID: make(map[string]model.ClientProfile, len(r.Clients))}
	for _, c := range r.Clients {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, eris.New("profile: roster entry missing id")
		}
		if _, dup := p.byID[c.ID]; dup {
			return nil, eris.Errorf("profile: duplicate client id %q", c.ID)
		}
		p.byID[c.ID] = c
		p.order = append(p.order, c.ID)
	}
	return p, nil
}

func (p *FileProvider) Get(_ context.Context, clientID string) (model.ClientProfile, error) {
	c, ok := p.byID[clientID]
	if !ok {
		return model.ClientProfile{}, eris.Wrapf(ErrNotFound, "client %q", clientID)
	}
	return c, nil
}

// List returns all profiles in roster order.
func (p *FileProvider) List(_ context.Context) ([]model.ClientProfile, error) {
	out := make([]model.ClientProfile, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out, nil
}

// StaticProvider serves a fixed in-memory set of profiles. Used in tests
// and for single-client invocations that inline the profile.
type StaticProvider struct {
	Profiles []model.ClientProfile
}

func (s *StaticProvider) Get(_ context.Context, clientID string) (model.ClientProfile, error) {
	for _, c := range s.Profiles {
		if c.ID == clientID {
			return c, nil
		}
	}
	return model.ClientProfile{}, eris.Wrapf(ErrNotFound, "client %q", clientID)
}

func (s *StaticProvider) List(_ context.Context) ([]model.ClientProfile, error) {
	return s.Profiles, nil
}
