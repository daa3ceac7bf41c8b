package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"Detector/internal/domain/models"
	"Detector/pkg/logger"
)

// InstallPlugin fetches guid from the registry, stores its bundle under the
// plugins directory and hot-loads it, replacing any loaded copy.
func (m *DetectorManager) InstallPlugin(ctx context.Context, userID, guid string) (*models.PluginMeta, error) {
	if err := checkGUID(guid); err != nil {
		return nil, err
	}
	if m.registry == nil || m.loader == nil || m.downloader == nil {
		return nil, fmt.Errorf("install %s: plugin registry is not configured: %w", guid, models.ErrUpstreamUnavailable)
	}

	meta, err := m.registry.GetPlugin(ctx, userID, guid)
	if err != nil {
		return nil, fmt.Errorf("install %s: %w", guid, err)
	}
	if meta.GUID == "" {
		meta.GUID = guid
	}

	switch meta.Options.RegistryType {
	case models.RegistryTypeBundle:
	default:
		return nil, fmt.Errorf("install %s: registry type %q: %w", guid, meta.Options.RegistryType, models.ErrUnsupportedPluginType)
	}
	if meta.Options.SourceURL == "" {
		return nil, fmt.Errorf("install %s: bundle has no source url: %w", guid, models.ErrUpstreamUnavailable)
	}

	body, err := m.downloader.Download(ctx, meta.Options.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("install %s: %w", guid, err)
	}
	path, err := m.writeBundle(guid, body)
	if err != nil {
		return nil, fmt.Errorf("install %s: %w", guid, err)
	}
	m.log.Info("plugin bundle saved", logger.String("guid", guid), logger.String("path", path))

	loaded, err := m.loader.Load(ctx, guid, path, m)
	if err != nil {
		m.metrics.RecordError("plugin_load")
		return nil, fmt.Errorf("install %s: %w", guid, err)
	}

	if m.store != nil {
		rec := models.InstalledPlugin{
			GUID:        guid,
			Name:        loaded.Name(),
			Version:     meta.Version,
			Path:        path,
			InstalledAt: m.now().UnixMilli(),
		}
		if err := m.store.Save(ctx, rec); err != nil {
			m.log.Warn("installed plugin not recorded", logger.String("guid", guid), logger.Error(err))
		}
	}
	return meta, nil
}

// writeBundle stores body at <pluginsDir>/<guid>.bundle through a temp file so
// a half-written bundle is never loaded.
func (m *DetectorManager) writeBundle(guid string, body []byte) (string, error) {
	if err := os.MkdirAll(m.pluginsDir, 0o755); err != nil {
		return "", fmt.Errorf("create plugins dir: %w", err)
	}
	path := filepath.Join(m.pluginsDir, guid+".bundle")
	tmp, err := os.CreateTemp(m.pluginsDir, guid+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	return path, nil
}

func checkGUID(guid string) error {
	if guid == "" || guid == "." || guid == ".." || strings.ContainsAny(guid, `/\`) {
		return fmt.Errorf("invalid plugin guid %q: %w", guid, models.ErrPluginNotFound)
	}
	return nil
}

// ReloadInstalledPlugins loads every bundle recorded in the store. Broken
// bundles are logged and skipped.
func (m *DetectorManager) ReloadInstalledPlugins(ctx context.Context) int {
	if m.store == nil || m.loader == nil {
		return 0
	}
	list, err := m.store.List(ctx)
	if err != nil {
		m.log.Warn("installed plugins unavailable", logger.Error(err))
		return 0
	}
	n := 0
	for _, rec := range list {
		if _, err := m.loader.Load(ctx, rec.GUID, rec.Path, m); err != nil {
			m.metrics.RecordError("plugin_load")
			m.log.Warn("installed plugin not reloaded",
				logger.String("guid", rec.GUID),
				logger.String("path", rec.Path),
				logger.Error(err),
			)
			continue
		}
		n++
	}
	if n > 0 {
		m.log.Info("installed plugins reloaded", logger.Int("count", n))
	}
	return n
}

// ListInstalledPlugins returns built-ins first, then registry entries whose
// GUID is not already listed.
func (m *DetectorManager) ListInstalledPlugins(ctx context.Context, userID string) []models.PluginSummary {
	out := make([]models.PluginSummary, 0, len(m.builtins))
	seen := make(map[string]struct{}, len(m.builtins))
	add := func(p models.PluginMeta) {
		if _, dup := seen[p.GUID]; dup {
			return
		}
		seen[p.GUID] = struct{}{}
		out = append(out, p.Summary())
	}
	for _, p := range m.builtins {
		add(p)
	}
	if m.registry != nil {
		dynamic, err := m.registry.ListPlugins(ctx, userID)
		if err != nil {
			m.log.Warn("plugin registry list failed", logger.Error(err))
		}
		for _, p := range dynamic {
			add(p)
		}
	}
	return out
}

// GetPluginDetails returns a built-in by GUID, else the registry record.
func (m *DetectorManager) GetPluginDetails(ctx context.Context, userID, guid string) (*models.PluginMeta, error) {
	for _, p := range m.builtins {
		if p.GUID == guid {
			cp := p
			cp.PluginAPI = models.APIPath(p.GUID)
			return &cp, nil
		}
	}
	if m.registry == nil {
		return nil, fmt.Errorf("plugin %s: %w", guid, models.ErrPluginNotFound)
	}
	meta, err := m.registry.GetPlugin(ctx, userID, guid)
	if err != nil {
		if !errors.Is(err, models.ErrPluginNotFound) {
			err = fmt.Errorf("%w: %w", models.ErrPluginNotFound, err)
		}
		return nil, err
	}
	cp := *meta
	cp.PluginAPI = models.APIPath(cp.GUID)
	return &cp, nil
}
