package config

import "github.com/geosift/geosift/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Fetch workers: 0 = default applied later, negative = invalid
	if c.Fetch.Workers < 0 {
		return errors.Newf("fetch.workers must be >= 0, got %d", c.Fetch.Workers)
	}

	// Page size: 0 = default, negative = invalid
	if c.Fetch.PageSize < 0 {
		return errors.Newf("fetch.page_size must be >= 0, got %d", c.Fetch.PageSize)
	}

	// Max items: 0 = unlimited, negative = invalid
	if c.Fetch.MaxItems < 0 {
		return errors.Newf("fetch.max_items must be >= 0, got %d", c.Fetch.MaxItems)
	}

	// Rate limit: 0 = default applied later, negative = invalid
	if c.Fetch.RequestsPerMinute < 0 {
		return errors.Newf("fetch.requests_per_minute must be >= 0, got %f", c.Fetch.RequestsPerMinute)
	}

	if c.Fetch.TargetTimeoutSeconds < 0 {
		return errors.Newf("fetch.target_timeout_seconds must be >= 0, got %d", c.Fetch.TargetTimeoutSeconds)
	}

	if c.Fetch.QueueShutdownSeconds < 0 {
		return errors.Newf("fetch.queue_shutdown_seconds must be >= 0, got %d", c.Fetch.QueueShutdownSeconds)
	}

	if c.Fetch.MemoryWarnPercent < 0 || c.Fetch.MemoryWarnPercent > 100 {
		return errors.Newf("fetch.memory_warn_percent must be between 0 and 100, got %f", c.Fetch.MemoryWarnPercent)
	}

	// Cache TTL: 0 = default applied later, negative = invalid
	if c.Cache.TTLSeconds < 0 {
		return errors.Newf("cache.ttl_seconds must be >= 0, got %d", c.Cache.TTLSeconds)
	}

	if c.Log.Theme != "" && c.Log.Theme != "gruvbox" && c.Log.Theme != "everforest" {
		return errors.Newf("log.theme must be one of gruvbox, everforest, got %q", c.Log.Theme)
	}

	return nil
}
