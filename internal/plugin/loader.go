package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"Detector/internal/domain/models"
	"Detector/pkg/logger"
)

// ErrUnknownEntrypoint reports a name missing from the entry point table.
var ErrUnknownEntrypoint = errors.New("unknown entrypoint")

// Host is the handle a bundle receives at init time.
type Host interface {
	ActiveDetectorView() (DetectorView, bool)
}

// InitFunc is a bundle entry point. opts come from the bundle manifest.
type InitFunc func(ctx context.Context, host Host, meta models.PluginMeta, opts map[string]any) (Plugin, error)

// Manifest is the on-disk description of an installed bundle.
type Manifest struct {
	GUID       string         `yaml:"guid"`
	Name       string         `yaml:"name"`
	Title      string         `yaml:"title"`
	Version    string         `yaml:"version"`
	Entrypoint string         `yaml:"entrypoint"`
	Options    map[string]any `yaml:"options"`
}

// ParseManifest decodes a bundle manifest and checks required fields.
func ParseManifest(b []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse bundle manifest: %w", err)
	}
	if m.Entrypoint == "" {
		return nil, fmt.Errorf("bundle manifest: entrypoint is required")
	}
	return &m, nil
}

// Loader turns GUID-addressed bundles into registered plugins. Bundles name an
// entry point from the table compiled into the binary.
type Loader struct {
	mu          sync.Mutex
	entrypoints map[string]InitFunc
	loaded      map[string]Plugin
	driver      *Driver
	log         *logger.Logger
}

func NewLoader(driver *Driver, log *logger.Logger) *Loader {
	return &Loader{
		entrypoints: make(map[string]InitFunc),
		loaded:      make(map[string]Plugin),
		driver:      driver,
		log:         log,
	}
}

// RegisterEntrypoint makes fn available to bundles under name.
func (l *Loader) RegisterEntrypoint(name string, fn InitFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entrypoints[name] = fn
}

// Load reads the bundle at path, evicts any previously loaded copy of guid and
// initializes the new one. The resulting plugin replaces the old one in the driver.
func (l *Loader) Load(ctx context.Context, guid, path string, host Host) (Plugin, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", guid, err)
	}
	m, err := ParseManifest(b)
	if err != nil {
		return nil, err
	}
	if m.GUID != "" && m.GUID != guid {
		return nil, fmt.Errorf("bundle %s: manifest guid %q does not match", guid, m.GUID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fn, ok := l.entrypoints[m.Entrypoint]
	if !ok {
		return nil, fmt.Errorf("bundle %s: %w %q", guid, ErrUnknownEntrypoint, m.Entrypoint)
	}

	if prev, ok := l.loaded[guid]; ok {
		delete(l.loaded, guid)
		l.driver.Remove(prev.Name())
		l.log.Info("evicted cached plugin bundle", logger.String("guid", guid), logger.String("plugin", prev.Name()))
	}

	meta := models.PluginMeta{
		GUID:    guid,
		Name:    m.Name,
		Title:   m.Title,
		Version: m.Version,
		Options: models.PluginOptions{RegistryType: models.RegistryTypeBundle},
	}
	p, err := fn(ctx, host, meta, m.Options)
	if err != nil {
		return nil, fmt.Errorf("init bundle %s: %w", guid, err)
	}

	l.loaded[guid] = p
	l.driver.Replace(p)
	l.log.Info("plugin bundle loaded",
		logger.String("guid", guid),
		logger.String("plugin", p.Name()),
		logger.String("version", m.Version),
	)
	return p, nil
}

// Build creates a fresh plugin for a configuration binding. The binding name
// selects the entry point and its options are passed through unchanged. The
// result is not registered; the detector does that during startup.
func (l *Loader) Build(ctx context.Context, host Host, b models.PluginBinding) (Plugin, error) {
	l.mu.Lock()
	fn, ok := l.entrypoints[b.Name]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("plugin %s: %w", b.Name, ErrUnknownEntrypoint)
	}

	p, err := fn(ctx, host, models.PluginMeta{GUID: b.GUID, Name: b.Name}, b.Options)
	if err != nil {
		return nil, fmt.Errorf("init plugin %s: %w", b.Name, err)
	}
	return p, nil
}

// Loaded returns the currently loaded instance for guid.
func (l *Loader) Loaded(guid string) (Plugin, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.loaded[guid]
	return p, ok
}
