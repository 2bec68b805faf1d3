package plugin

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/errors"
)

// Manifest file names probed inside each plugin directory, in order.
const (
	manifestTOML = "plugin.toml"
	manifestYAML = "plugin.yaml"
	manifestYML  = "plugin.yml"
)

// Manifest is the parsed per-plugin descriptor file. It names the
// compiled-in driver that implements the plugin and carries the metadata
// the registry exposes.
type Manifest struct {
	// Name is the plugin identifier; defaults to the directory name
	Name string `toml:"name" yaml:"name"`

	// Driver selects the compiled-in factory; defaults to Name
	Driver string `toml:"driver" yaml:"driver"`

	// Category groups the plugin in listings
	Category string `toml:"category" yaml:"category"`

	Version     string `toml:"version" yaml:"version"`
	Author      string `toml:"author" yaml:"author"`
	Description string `toml:"description" yaml:"description"`

	// HostVersion is a semver constraint on the application version;
	// empty accepts any host
	HostVersion string `toml:"host_version" yaml:"host_version"`

	// Enabled defaults to true when absent
	Enabled *bool `toml:"enabled" yaml:"enabled"`

	// RateLimit declares the provider's polite request budget
	RateLimit *RateLimit `toml:"rate_limit" yaml:"rate_limit"`

	// ConfigFile is the plugin's settings file relative to its
	// directory; defaults to "<name>.conf"
	ConfigFile string `toml:"config_file" yaml:"config_file"`

	// Labels override the derived display names of config keys
	Labels map[string]string `toml:"labels" yaml:"labels"`

	// Dir and File record where the manifest was found
	Dir  string `toml:"-" yaml:"-"`
	File string `toml:"-" yaml:"-"`
}

// RateLimit is a declared request budget: at most MaxCalls per trailing
// WindowSeconds.
type RateLimit struct {
	MaxCalls      int     `toml:"max_calls" yaml:"max_calls"`
	WindowSeconds float64 `toml:"window_seconds" yaml:"window_seconds"`
}

// IsEnabled reports the manifest's enabled flag, defaulting to true.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ConfigPath returns the absolute path of the plugin's settings file.
func (m *Manifest) ConfigPath() string {
	name := m.ConfigFile
	if name == "" {
		name = m.Name + ".conf"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.Dir, name)
}

// LabelFor returns the display label for a config key, preferring the
// manifest's labels table over the derived form.
func (m *Manifest) LabelFor(key string) string {
	if label, ok := m.Labels[key]; ok {
		return label
	}
	return config.LabelFor(key)
}

// LoadManifestFromDir loads the manifest in a plugin directory. Returns
// fs.ErrNotExist (wrapped) when the directory holds no manifest file, so
// discovery can tell "no plugin here" from "broken plugin".
func LoadManifestFromDir(dir string) (*Manifest, error) {
	file, err := locateManifestFile(dir)
	if err != nil {
		return nil, err
	}
	return loadManifest(file, filepath.Base(dir))
}

// LoadManifest parses one manifest file. The format follows the
// extension: .toml, or .yaml/.yml. A manifest that declares no name takes
// the file's base name (up to the first dot).
func LoadManifest(file string) (*Manifest, error) {
	base := filepath.Base(file)
	fallback := base
	if idx := strings.IndexByte(base, '.'); idx > 0 {
		fallback = base[:idx]
	}
	return loadManifest(file, fallback)
}

func loadManifest(file, fallbackName string) (*Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", file)
	}

	var manifest Manifest
	switch strings.ToLower(filepath.Ext(file)) {
	case ".toml":
		if err := toml.Unmarshal(data, &manifest); err != nil {
			return nil, errors.Wrapf(err, "failed to parse manifest %s", file)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, errors.Wrapf(err, "failed to parse manifest %s", file)
		}
	default:
		return nil, errors.Newf("unsupported manifest format: %s", file)
	}

	manifest.Dir = filepath.Dir(file)
	manifest.File = file

	if manifest.Name == "" {
		manifest.Name = fallbackName
	}
	if manifest.Driver == "" {
		manifest.Driver = manifest.Name
	}
	if manifest.Category == "" {
		manifest.Category = "uncategorized"
	}

	return &manifest, nil
}

// Descriptor derives the registry-facing descriptor from the manifest.
func (m *Manifest) Descriptor() Descriptor {
	return Descriptor{
		Name:        m.Name,
		Category:    m.Category,
		Version:     m.Version,
		Author:      m.Author,
		Description: m.Description,
	}
}

func locateManifestFile(dir string) (string, error) {
	candidates := []string{
		filepath.Join(dir, manifestTOML),
		filepath.Join(dir, manifestYAML),
		filepath.Join(dir, manifestYML),
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", errors.Wrapf(err, "failed to stat manifest %s", candidate)
		}
		if info.IsDir() {
			continue
		}
		return candidate, nil
	}

	return "", errors.Wrapf(fs.ErrNotExist, "no manifest in %s", dir)
}
