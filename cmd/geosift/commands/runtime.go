package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geosift/geosift/cache"
	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/plugin"
	"github.com/geosift/geosift/version"

	// Compiled-in plugin drivers register their factories on import
	_ "github.com/geosift/geosift/plugins/bsky"
	_ "github.com/geosift/geosift/plugins/dummy"
	_ "github.com/geosift/geosift/plugins/localfiles"
)

// loadRuntime loads configuration and runs plugin discovery over the
// configured search paths.
func loadRuntime() (*config.Config, *plugin.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	registry := plugin.NewRegistry(version.Get().Version)
	registry.Discover(pluginPaths(cfg))
	return cfg, registry, nil
}

// pluginPaths expands tildes in the configured plugin search paths.
func pluginPaths(cfg *config.Config) []string {
	paths := make([]string, 0, len(cfg.Plugins.Paths))
	for _, p := range cfg.Plugins.Paths {
		paths = append(paths, expandPath(p))
	}
	return paths
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// pluginEnabled applies the configured whitelist; an empty whitelist
// enables every discovered plugin.
func pluginEnabled(cfg *config.Config, name string) bool {
	if len(cfg.Plugins.Enabled) == 0 {
		return true
	}
	for _, enabled := range cfg.Plugins.Enabled {
		if enabled == name {
			return true
		}
	}
	return false
}

// newCacheManager builds the cache layer the configuration asks for.
func newCacheManager(cfg *config.Config) *cache.Manager {
	if cfg.Cache.Disabled {
		return cache.NewDisabledManager()
	}
	ttl := time.Duration(cfg.GetCacheTTLSeconds()) * time.Second
	return cache.NewManagerWithTTL(expandPath(cfg.GetCacheDir()), ttl)
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
