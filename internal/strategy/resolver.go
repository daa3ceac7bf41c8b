package strategy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
	"Detector/pkg/logger"
	"Detector/pkg/util"
)

// ConfigFunc supplies the compiled-in default configuration of a strategy.
type ConfigFunc func() (models.DetectorConfig, error)

// Definition is one entry of the strategy table.
type Definition struct {
	Name    string
	Factory detector.StrategyFactory
	Config  ConfigFunc
}

// Resolved is what a switch needs to build an engine.
type Resolved struct {
	Name       string
	Factory    detector.StrategyFactory
	Config     models.DetectorConfig
	ConfigPath string
}

// Resolver maps strategy names to factories and their configuration. A YAML
// file under the strategies path overrides the compiled-in ConfigFunc.
type Resolver struct {
	mu   sync.RWMutex
	defs map[string]Definition
	path string
	log  *logger.Logger
}

func NewResolver(path string, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{defs: make(map[string]Definition), path: path, log: log.With(logger.String("component", "strategy_resolver"))}
}

// Register adds def. Names are unique.
func (r *Resolver) Register(def Definition) error {
	if def.Name == "" || def.Factory == nil {
		return errors.New("strategy definition needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Name]; ok {
		return fmt.Errorf("strategy %q already registered", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// MustRegister panics on a duplicate name; meant for startup tables.
func (r *Resolver) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// candidates returns name, its kebab-case form and its lowercase form, deduplicated.
func candidates(name string) []string {
	out := []string{name}
	for _, c := range []string{util.KebabCase(name), strings.ToLower(name)} {
		dup := false
		for _, o := range out {
			if o == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func (r *Resolver) lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range candidates(name) {
		if def, ok := r.defs[c]; ok {
			return def, true
		}
	}
	for n, def := range r.defs {
		if strings.EqualFold(n, name) || util.KebabCase(n) == util.KebabCase(name) {
			return def, true
		}
	}
	return Definition{}, false
}

// Resolve finds the implementation and configuration for name.
func (r *Resolver) Resolve(name string) (*Resolved, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", models.ErrResolution)
	}
	def, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrResolution, name)
	}

	out := &Resolved{Name: def.Name, Factory: def.Factory}
	path, err := r.findConfigFile(name, def.Name)
	if err != nil {
		return nil, err
	}
	switch {
	case path != "":
		cfg, err := LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrConfig, name, err)
		}
		out.Config, out.ConfigPath = cfg, path
	case def.Config != nil:
		cfg, err := def.Config()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrConfig, name, err)
		}
		out.Config = cfg
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrConfig, name)
	}
	out.Config.Normalize()

	r.log.Info("strategy resolved",
		logger.String("name", name),
		logger.String("implementation", def.Name),
		logger.String("config", out.ConfigPath),
	)
	return out, nil
}

// findConfigFile looks for <path>/<n>/<n>.config.yaml then <path>/<n>.config.yaml
// for every candidate spelling of the requested and registered names.
func (r *Resolver) findConfigFile(names ...string) (string, error) {
	if r.path == "" {
		return "", nil
	}
	seen := map[string]bool{}
	for _, name := range names {
		for _, n := range candidates(name) {
			if seen[n] {
				continue
			}
			seen[n] = true
			for _, ext := range []string{".yaml", ".yml"} {
				for _, p := range []string{
					filepath.Join(r.path, n, n+".config"+ext),
					filepath.Join(r.path, n+".config"+ext),
				} {
					st, err := os.Stat(p)
					if err == nil && !st.IsDir() {
						return p, nil
					}
					if err != nil && !errors.Is(err, fs.ErrNotExist) {
						return "", fmt.Errorf("%w: stat %s: %w", models.ErrConfig, p, err)
					}
				}
			}
		}
	}
	return "", nil
}

// LoadConfigFile reads a strategy configuration. The document is either a bare
// detector config or one nested under a top-level "detector" key.
func LoadConfigFile(path string) (models.DetectorConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.DetectorConfig{}, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (models.DetectorConfig, error) {
	var probe map[string]yaml.Node
	if err := yaml.Unmarshal(b, &probe); err != nil {
		return models.DetectorConfig{}, fmt.Errorf("parse strategy config: %w", err)
	}

	var cfg models.DetectorConfig
	if err := defaults.Set(&cfg); err != nil {
		return models.DetectorConfig{}, fmt.Errorf("apply defaults: %w", err)
	}
	if node, ok := probe["detector"]; ok {
		if err := node.Decode(&cfg); err != nil {
			return models.DetectorConfig{}, fmt.Errorf("parse strategy config: %w", err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return models.DetectorConfig{}, fmt.Errorf("parse strategy config: %w", err)
	}
	return cfg, nil
}
