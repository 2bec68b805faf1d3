// Package plugin provides the provider architecture for location sources.
//
// A plugin wraps one external source of geotagged records (a social
// network, a local photo archive, an export dump). Plugins are bound at
// compile time through driver factories and configured at runtime through
// per-plugin manifest directories.
//
// Architecture:
//   - Every plugin implements the same small Plugin interface
//   - Optional capabilities (activation, configuration schemas) are
//     separate interfaces detected by type assertion
//   - Plugins are isolated: they share nothing and are only reached
//     through the Registry
package plugin

import (
	"context"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/geo"
)

// Plugin is the capability set every location source must provide.
type Plugin interface {
	// Descriptor returns identifying information about this plugin
	Descriptor() Descriptor

	// IsConfigured reports whether the plugin has everything it needs to
	// run, with a human-readable reason when it does not. Never an error:
	// an unconfigured plugin is a normal state, not a failure.
	IsConfigured() (bool, string)

	// SearchForTargets resolves a free-form query into concrete targets
	// the plugin can later fetch locations for.
	SearchForTargets(ctx context.Context, query string) ([]geo.Target, error)

	// ReturnLocations fetches one page of raw records for a target.
	// The cursor in params is opaque plugin state from the previous page;
	// an empty cursor in the returned page means there are no more.
	ReturnLocations(ctx context.Context, target geo.Target, params FetchParams) (Page, error)
}

// Descriptor identifies a plugin. Created at discovery time from the
// manifest; immutable afterwards except through a re-scan.
type Descriptor struct {
	// Name is the unique plugin identifier (e.g. "bsky", "localfiles")
	Name string

	// Category groups plugins for listing ("social", "local", ...).
	// Defaults to "uncategorized" when the manifest declares none.
	Category string

	// Version is the plugin version (semver)
	Version string

	// Author is the plugin author/maintainer
	Author string

	// Description is a human-readable description
	Description string
}

// FetchParams carries pagination state into a ReturnLocations call.
type FetchParams struct {
	// Cursor is the opaque continuation handle from the previous page,
	// empty on the first call
	Cursor string

	// PageSize is the requested page size; plugins may return fewer
	PageSize int
}

// Page is one slice of a paginated fetch.
type Page struct {
	Records []geo.RawRecord

	// Cursor continues the fetch on the next call; empty ends it
	Cursor string
}

// Activatable is an optional interface for plugins that hold external
// state worth establishing eagerly (sessions, watchers). The fetch
// pipeline activates before the first page and deactivates when a run
// ends; plugins without it are used as-is.
type Activatable interface {
	Plugin

	// Activate prepares the plugin for use (login, open handles)
	Activate(ctx context.Context) error

	// Deactivate releases whatever Activate acquired
	Deactivate(ctx context.Context) error
}

// RateLimited is an optional interface for plugins that declare a
// request budget, usually passed through from their manifest. The fetch
// pipeline shares one limiter per rate-limited plugin so the budget
// holds across concurrent runs; plugins without it get a default budget.
type RateLimited interface {
	Plugin

	// RateLimit returns the declared budget
	RateLimit() RateLimit
}

// Configurable is an optional interface for plugins that expose their
// settings for inspection and editing. The returned store reads and
// writes the plugin's own sectioned config file; the schema describes
// the fields a settings UI should render.
type Configurable interface {
	Plugin

	// Config returns the plugin's settings store
	Config() *config.Store

	// ConfigSchema returns the configuration schema keyed by field name.
	// Keys live in the string_options or boolean_options section
	// depending on their declared type.
	ConfigSchema() map[string]ConfigField
}

// ConfigField describes a single configuration field for display and
// validation.
type ConfigField struct {
	Type        string // "string", "number", "boolean"
	Description string // Human-readable description
	Default     string // Default value as string
	Required    bool   // Whether IsConfigured should demand it
	Secret      bool   // Whether listings should mask the value
}
