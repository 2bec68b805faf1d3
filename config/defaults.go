package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	geosiftDir := filepath.Join(home, ".geosift")

	// Workspace defaults
	v.SetDefault("workspace.projects_dir", filepath.Join(geosiftDir, "projects"))
	v.SetDefault("workspace.export_dir", ".")

	// Plugin system defaults
	v.SetDefault("plugins.paths", []string{
		filepath.Join(geosiftDir, "plugins"),
		"./plugins",
	})
	v.SetDefault("plugins.enabled", []string{})
	v.SetDefault("plugins.config_dir", geosiftDir)

	// Fetch defaults
	v.SetDefault("fetch.workers", 1)
	v.SetDefault("fetch.page_size", 100)
	v.SetDefault("fetch.max_items", 0)
	v.SetDefault("fetch.requests_per_minute", 30.0) // Polite default for services without a declared limit
	v.SetDefault("fetch.target_timeout_seconds", 0)
	v.SetDefault("fetch.queue_shutdown_seconds", 30)
	v.SetDefault("fetch.memory_warn_percent", 90.0)

	// Cache defaults
	v.SetDefault("cache.dir", filepath.Join(geosiftDir, "cache"))
	v.SetDefault("cache.ttl_seconds", 86400) // 24 hours
	v.SetDefault("cache.disabled", false)

	// Logging defaults
	v.SetDefault("log.theme", "everforest")
	v.SetDefault("log.json", false)
}

// BindEnvOverrides explicitly binds frequently overridden values to
// environment variables so they survive viper.Unmarshal.
func BindEnvOverrides(v *viper.Viper) {
	v.BindEnv("workspace.projects_dir", "GEOSIFT_PROJECTS_DIR")
	v.BindEnv("cache.dir", "GEOSIFT_CACHE_DIR")
	v.BindEnv("cache.disabled", "GEOSIFT_CACHE_DISABLED")
	v.BindEnv("plugins.config_dir", "GEOSIFT_PLUGINS_CONFIG_DIR")
	v.BindEnv("log.theme", "GEOSIFT_LOG_THEME")
}

// GetProjectsDir returns the configured projects directory
func (c *Config) GetProjectsDir() string {
	if c.Workspace.ProjectsDir == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".geosift", "projects")
	}
	return c.Workspace.ProjectsDir
}

// GetCacheDir returns the configured cache directory
func (c *Config) GetCacheDir() string {
	if c.Cache.Dir == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".geosift", "cache")
	}
	return c.Cache.Dir
}

// GetLogTheme returns the log theme (default: everforest)
func (c *Config) GetLogTheme() string {
	if c.Log.Theme == "" {
		return "everforest"
	}
	return c.Log.Theme
}

// GetFetchConfig returns the fetch configuration with defaults applied
// for zero values that have no meaningful zero semantics.
func (c *Config) GetFetchConfig() FetchConfig {
	cfg := c.Fetch

	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 100
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 30.0
	}
	if cfg.QueueShutdownSeconds == 0 {
		cfg.QueueShutdownSeconds = 30
	}
	if cfg.MemoryWarnPercent == 0 {
		cfg.MemoryWarnPercent = 90.0
	}

	return cfg
}

// GetCacheTTLSeconds returns the cache TTL, defaulting to 24 hours
func (c *Config) GetCacheTTLSeconds() int {
	if c.Cache.TTLSeconds == 0 {
		return 86400
	}
	return c.Cache.TTLSeconds
}
