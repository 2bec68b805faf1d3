package plugin

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/logger"
)

// Registry holds the discovered plugin set. It is constructed where the
// application wires its dependencies and passed to whoever needs plugins;
// there is no package-level instance.
//
// Reads are safe while a re-discovery runs: Discover builds the next set
// aside and swaps it in whole, so readers observe either the previous or
// the new complete set.
type Registry struct {
	mu          sync.RWMutex
	plugins     map[string]Plugin
	failures    []DiscoveryFailure
	hostVersion string
}

// DiscoveryFailure records one plugin that could not be loaded during a
// scan, with the manifest or directory that produced it.
type DiscoveryFailure struct {
	Path string
	Name string
	Err  error
}

// NewRegistry creates an empty registry. hostVersion is the application
// version manifests may constrain against.
func NewRegistry(hostVersion string) *Registry {
	return &Registry{
		plugins:     make(map[string]Plugin),
		hostVersion: hostVersion,
	}
}

// Discover scans the given directories for plugin manifests, instantiates
// their drivers, and replaces the registry contents with the result.
// Returns the number of plugins now registered.
//
// Scanning is non-recursive: each path's entries are examined, manifest
// files directly in the path (<name>.plugin.toml) load as-is, and each
// immediate subdirectory is probed for a plugin.toml / plugin.yaml. One
// bad plugin never aborts the scan; its failure is recorded and the rest
// continue. Re-running with the same paths is idempotent: same-name
// plugins replace, never duplicate.
func (r *Registry) Discover(paths []string) int {
	next := make(map[string]Plugin)
	var failures []DiscoveryFailure

	for _, path := range paths {
		for _, manifest := range scanPath(path, &failures) {
			plg, err := r.instantiate(manifest)
			if err != nil {
				failures = append(failures, DiscoveryFailure{
					Path: manifest.File,
					Name: manifest.Name,
					Err:  err,
				})
				logger.Warnw("Plugin failed to load",
					"name", manifest.Name,
					"manifest", manifest.File,
					"error", err)
				continue
			}
			if plg == nil {
				continue
			}
			next[manifest.Name] = plg
		}
	}

	r.mu.Lock()
	r.plugins = next
	r.failures = failures
	r.mu.Unlock()

	logger.Infow("Plugin discovery complete",
		"plugins", len(next),
		"failures", len(failures))

	return len(next)
}

// Register adds one plugin directly, bypassing discovery. Used when the
// caller constructs plugins itself (tests, embedded defaults).
func (r *Registry) Register(plg Plugin) error {
	if plg == nil {
		return errors.Wrap(errors.ErrInvalidInput, "nil plugin")
	}
	name := plg.Descriptor().Name
	if name == "" {
		return errors.Wrap(errors.ErrInvalidInput, "plugin has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[name]; exists {
		return errors.Newf("plugin already registered: %s", name)
	}
	r.plugins[name] = plg
	return nil
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plg, ok := r.plugins[name]
	return plg, ok
}

// All returns every registered plugin sorted by name.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(r.plugins))
	for _, plg := range r.plugins {
		out = append(out, plg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor().Name < out[j].Descriptor().Name
	})
	return out
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByCategory returns the plugins in one category, sorted by name.
func (r *Registry) ByCategory(category string) []Plugin {
	var out []Plugin
	for _, plg := range r.All() {
		if plg.Descriptor().Category == category {
			out = append(out, plg)
		}
	}
	return out
}

// Categories returns the sorted set of categories present.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, plg := range r.plugins {
		seen[plg.Descriptor().Category] = true
	}
	categories := make([]string, 0, len(seen))
	for category := range seen {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Failures returns the discovery failures from the most recent scan.
func (r *Registry) Failures() []DiscoveryFailure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DiscoveryFailure, len(r.failures))
	copy(out, r.failures)
	return out
}

// instantiate builds one plugin from its manifest. A nil return with nil
// error means the plugin is disabled.
func (r *Registry) instantiate(manifest *Manifest) (Plugin, error) {
	if !manifest.IsEnabled() {
		logger.Debugw("Skipping disabled plugin", "name", manifest.Name)
		return nil, nil
	}

	if err := r.validateHostVersion(manifest); err != nil {
		return nil, err
	}

	factory, ok := lookupFactory(manifest.Driver)
	if !ok {
		return nil, errors.Wrapf(errors.ErrDiscovery,
			"no driver %q compiled in (plugin %s)", manifest.Driver, manifest.Name)
	}

	store := config.NewStore(manifest.ConfigPath())
	plg, err := factory(manifest, store)
	if err != nil {
		return nil, errors.Wrapf(err, "driver %q failed to construct plugin %s",
			manifest.Driver, manifest.Name)
	}
	if plg == nil {
		return nil, errors.Wrapf(errors.ErrDiscovery,
			"driver %q returned no plugin for %s", manifest.Driver, manifest.Name)
	}
	return plg, nil
}

// validateHostVersion checks the manifest's host_version constraint
// against the running application version.
func (r *Registry) validateHostVersion(manifest *Manifest) error {
	if manifest.HostVersion == "" {
		return nil
	}

	hostVer, err := semver.NewVersion(r.hostVersion)
	if err != nil {
		// Dev builds carry a non-semver version; constraints cannot be
		// evaluated against them, so they pass
		logger.Debugw("Host version is not semver, skipping constraint check",
			"host_version", r.hostVersion,
			"plugin", manifest.Name)
		return nil
	}

	constraint, err := semver.NewConstraint(manifest.HostVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrDiscovery,
			"invalid host_version constraint %q in %s", manifest.HostVersion, manifest.File)
	}

	if !constraint.Check(hostVer) {
		return errors.Wrapf(errors.ErrDiscovery,
			"plugin %s requires host %s, running %s",
			manifest.Name, manifest.HostVersion, r.hostVersion)
	}
	return nil
}

// scanPath collects the manifests one configured directory offers.
func scanPath(root string, failures *[]DiscoveryFailure) []*Manifest {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// A configured-but-absent plugins dir is normal on fresh installs
			return nil
		}
		*failures = append(*failures, DiscoveryFailure{Path: root, Err: err})
		return nil
	}

	var manifests []*Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			if !isLooseManifest(entry.Name()) {
				continue
			}
			file := filepath.Join(root, entry.Name())
			manifest, err := LoadManifest(file)
			if err != nil {
				*failures = append(*failures, DiscoveryFailure{Path: file, Err: err})
				continue
			}
			manifests = append(manifests, manifest)
			continue
		}

		dir := filepath.Join(root, entry.Name())
		manifest, err := LoadManifestFromDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Directory without a manifest is not a plugin
				continue
			}
			*failures = append(*failures, DiscoveryFailure{Path: dir, Err: err})
			continue
		}
		manifests = append(manifests, manifest)
	}
	return manifests
}

// isLooseManifest matches manifest files placed directly in a plugins
// root rather than in their own directory.
func isLooseManifest(name string) bool {
	return strings.HasSuffix(name, ".plugin.toml") ||
		strings.HasSuffix(name, ".plugin.yaml") ||
		strings.HasSuffix(name, ".plugin.yml")
}
