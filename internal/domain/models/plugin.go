package models

const (
	RegistryTypeBundle = "bundle"
	RegistryTypeNPM    = "npm"
)

// PluginMeta describes an installable extension.
type PluginMeta struct {
	GUID       string        `json:"studioGuid" validate:"required"`
	Name       string        `json:"name,omitempty"`
	Title      string        `json:"title"`
	Version    string        `json:"version"`
	Visibility string        `json:"visibility"`
	PluginAPI  string        `json:"pluginApi,omitempty"`
	Options    PluginOptions `json:"options"`
}

// PluginOptions is the distribution descriptor.
type PluginOptions struct {
	RegistryType string `json:"registryType"`
	SourceURL    string `json:"sourceUrl,omitempty"`
	PackageName  string `json:"packageName,omitempty"`
}

// PluginSummary is the list view returned to the control surface.
type PluginSummary struct {
	GUID       string `json:"guid"`
	Title      string `json:"title"`
	Version    string `json:"version"`
	Visibility string `json:"visibility"`
	APIPath    string `json:"apiPath"`
}

// InstalledPlugin is what the local plugin store remembers about a materialized bundle.
type InstalledPlugin struct {
	GUID        string `json:"guid"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Path        string `json:"path"`
	InstalledAt int64  `json:"installedAt"`
}

// APIPath returns the conventional HTTP mount point of a plugin.
func APIPath(guid string) string {
	return "/plugins-api/" + guid
}

// Summary converts meta into the list view.
func (m PluginMeta) Summary() PluginSummary {
	api := m.PluginAPI
	if api == "" {
		api = APIPath(m.GUID)
	}
	return PluginSummary{
		GUID:       m.GUID,
		Title:      m.Title,
		Version:    m.Version,
		Visibility: m.Visibility,
		APIPath:    api,
	}
}
