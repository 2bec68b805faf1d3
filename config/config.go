package config

// Config represents the core GeoSift configuration
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Plugins   PluginsConfig   `mapstructure:"plugins"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
}

// WorkspaceConfig configures where GeoSift keeps project data on disk
type WorkspaceConfig struct {
	ProjectsDir string `mapstructure:"projects_dir"` // Directory holding project files (default: ~/.geosift/projects)
	ExportDir   string `mapstructure:"export_dir"`   // Default directory for exports (default: current directory)
}

// PluginsConfig configures the plugin system
type PluginsConfig struct {
	Paths     []string `mapstructure:"paths"`      // Plugin search paths (e.g., ["~/.geosift/plugins", "./plugins"])
	Enabled   []string `mapstructure:"enabled"`    // Whitelist of enabled plugins (empty = all discovered)
	ConfigDir string   `mapstructure:"config_dir"` // Directory holding plugins.toml (default: ~/.geosift)
}

// FetchConfig configures the fetch orchestrator and its worker queue
type FetchConfig struct {
	Workers              int     `mapstructure:"workers"`                // Concurrent target workers (default: 1)
	PageSize             int     `mapstructure:"page_size"`              // Records requested per page (default: 100)
	MaxItems             int     `mapstructure:"max_items"`              // Soft cap on records per run (0 = unlimited)
	RequestsPerMinute    float64 `mapstructure:"requests_per_minute"`    // Fallback rate limit when a plugin declares none (default: 30)
	TargetTimeoutSeconds int     `mapstructure:"target_timeout_seconds"` // Per-target deadline (0 = none)
	QueueShutdownSeconds int     `mapstructure:"queue_shutdown_seconds"` // Grace period when stopping the worker queue (default: 30)
	MemoryWarnPercent    float64 `mapstructure:"memory_warn_percent"`    // Warn when system memory use crosses this (default: 90)
}

// CacheConfig configures the fetch result cache
type CacheConfig struct {
	Dir        string `mapstructure:"dir"`         // Cache directory (default: ~/.geosift/cache)
	TTLSeconds int    `mapstructure:"ttl_seconds"` // Entry lifetime (default: 86400)
	Disabled   bool   `mapstructure:"disabled"`    // Bypass the cache entirely
}

// LogConfig configures logging output
type LogConfig struct {
	Theme string `mapstructure:"theme"` // Color theme: gruvbox, everforest
	JSON  bool   `mapstructure:"json"`  // Emit structured JSON instead of console output
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
