package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup",
			"path", back3,
			"error", err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// GetUserConfigPath returns the path to the user config file in ~/.geosift/geosift.toml
func GetUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".geosift", "geosift.toml")
}

// loadOrInitializeUserConfig loads the user config file, or starts an empty
// document if it doesn't exist yet.
func loadOrInitializeUserConfig() (map[string]interface{}, string, error) {
	configPath := GetUserConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	geosiftDir := filepath.Dir(configPath)
	if err := os.MkdirAll(geosiftDir, 0750); err != nil {
		return nil, "", errors.Wrap(err, "failed to create .geosift directory")
	}

	var config map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse user config")
		}
	} else {
		config = make(map[string]interface{})
	}

	return config, configPath, nil
}

// saveUserConfig writes the config document to disk with backup rotation
func saveUserConfig(config map[string]interface{}, configPath string) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write user config")
	}

	return nil
}

// SetValue updates a single dotted key (e.g. "cache.ttl_seconds") in the user
// config file, preserving every other section and key. Values already present
// under a different type for an intermediate section cause an error rather
// than silent replacement.
func SetValue(dottedKey string, value interface{}) error {
	parts := strings.Split(dottedKey, ".")
	if len(parts) == 0 || dottedKey == "" {
		return errors.Wrap(errors.ErrInvalidInput, "empty config key")
	}
	for _, p := range parts {
		if p == "" {
			return errors.Wrapf(errors.ErrInvalidInput, "malformed config key %q", dottedKey)
		}
	}

	config, configPath, err := loadOrInitializeUserConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load user config")
	}

	// Walk down to the owning section, creating tables as needed
	section := config
	for _, part := range parts[:len(parts)-1] {
		child, ok := section[part]
		if !ok {
			next := make(map[string]interface{})
			section[part] = next
			section = next
			continue
		}
		table, ok := child.(map[string]interface{})
		if !ok {
			return errors.Newf("config key %q is a value, not a section", part)
		}
		section = table
	}

	section[parts[len(parts)-1]] = value

	return saveUserConfig(config, configPath)
}

// UpdateCacheDisabled toggles cache.disabled in the user config
func UpdateCacheDisabled(disabled bool) error {
	return SetValue("cache.disabled", disabled)
}

// UpdateFetchWorkers updates fetch.workers in the user config
func UpdateFetchWorkers(workers int) error {
	return SetValue("fetch.workers", workers)
}

// UpdateLogTheme updates log.theme in the user config
func UpdateLogTheme(theme string) error {
	return SetValue("log.theme", theme)
}
