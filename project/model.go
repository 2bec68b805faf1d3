// Package project persists collected locations into project files and
// exports them for mapping tools. Two on-disk representations exist: the
// current single-document JSON format and the historical SQLite
// key/value format. Both load into the same Project, so nothing
// downstream branches on where a project came from.
package project

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
)

// Format names an on-disk project representation.
type Format string

const (
	// FormatModern is the single-document JSON format (*.json)
	FormatModern Format = "modern"

	// FormatLegacy is the historical SQLite key/value format
	// (*.db or extensionless)
	FormatLegacy Format = "legacy"
)

// FormatForPath maps a project path onto its on-disk format. Dispatch is
// centralized here so readers, writers, and the listing all agree.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatModern, nil
	case ".db", "":
		return FormatLegacy, nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidInput,
			"unrecognized project extension %q", filepath.Ext(path))
	}
}

// Project is the unit of persisted work: a named collection of
// standardized locations plus the targets, settings, and analysis state
// that produced them. The JSON tags are the modern document's top-level
// keys; selectedTargets predates the snake_case convention and stays as
// written in existing files.
//
// Projects own their location lists by value. Mutate only through Store
// operations, which bump ModifiedAt.
type Project struct {
	ID              string                     `json:"project_id"`
	Name            string                     `json:"name"`
	Target          string                     `json:"target,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	ModifiedAt      time.Time                  `json:"modified_at"`
	Locations       []geo.StandardizedLocation `json:"locations"`
	Metadata        map[string]interface{}     `json:"metadata,omitempty"`
	Notes           string                     `json:"notes,omitempty"`
	Tags            []string                   `json:"tags,omitempty"`
	Settings        map[string]interface{}     `json:"settings,omitempty"`
	PluginData      map[string]interface{}     `json:"plugin_data,omitempty"`
	SelectedTargets []geo.Target               `json:"selectedTargets,omitempty"`
	Analysis        map[string]interface{}     `json:"analysis,omitempty"`

	// Path is where the project lives on disk. Set by Load and Save,
	// never serialized into the document itself.
	Path string `json:"-"`
}

// LocationByID returns the stored location with the given ID.
func (p *Project) LocationByID(id string) (geo.StandardizedLocation, bool) {
	for i := range p.Locations {
		if p.Locations[i].ID == id {
			return p.Locations[i], true
		}
	}
	return geo.StandardizedLocation{}, false
}

// HasTarget reports whether a (plugin, external ID) pair is already
// among the selected targets.
func (p *Project) HasTarget(pluginName, externalID string) bool {
	for _, target := range p.SelectedTargets {
		if target.PluginName == pluginName && target.ExternalID == externalID {
			return true
		}
	}
	return false
}

// EnabledPlugins returns the plugin names recorded in settings, in
// stored order.
func (p *Project) EnabledPlugins() []string {
	raw, present := p.Settings[SettingEnabledPlugins]
	if !present {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []interface{}:
		// JSON decoding lands here
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Summary is one row of a project listing.
type Summary struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Format     Format    `json:"format"`
	Locations  int       `json:"locations"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Settings keys shared between the modern document and the legacy
// key/value mapping.
const (
	// SettingEnabledPlugins lists the plugin names active for this
	// project (the legacy enabledPlugins key)
	SettingEnabledPlugins = "enabled_plugins"

	// SettingView holds display state carried over from the legacy
	// viewSettings key
	SettingView = "view"
)
