package project

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/db"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
)

// The legacy format is a SQLite file with a single key/value table.
// Values are JSON-encoded. Historical readers only know the ten original
// keys and ignore the rest, so the modern superset fields ride along
// under additional keys without breaking them.
const (
	legacySchema = `CREATE TABLE IF NOT EXISTS project_data (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

	legacyKeyName        = "projectName"
	legacyKeyKeywords    = "projectKeywords"
	legacyKeyDescription = "projectDescription"
	legacyKeyCreated     = "dateCreated"
	legacyKeyEdited      = "dateEdited"
	legacyKeyEnabled     = "enabledPlugins"
	legacyKeyTargets     = "selectedTargets"
	legacyKeyLocations   = "locations"
	legacyKeyView        = "viewSettings"
	legacyKeyAnalysis    = "analysis"

	legacyKeyID         = "projectId"
	legacyKeyTarget     = "projectTarget"
	legacyKeyMetadata   = "metadata"
	legacyKeyPluginData = "pluginData"
)

// Historical files wrote dates in a few shapes before the format
// settled on RFC 3339.
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (s *Store) loadLegacy(path string) (*Project, error) {
	database, err := db.OpenReadOnly(path, nil)
	if err != nil {
		return nil, errors.NewPersistenceError(err, path, string(FormatLegacy))
	}
	defer database.Close()

	values, err := readLegacyValues(database)
	if err != nil {
		return nil, errors.NewPersistenceError(err, path, string(FormatLegacy))
	}

	project := &Project{
		Locations: []geo.StandardizedLocation{},
		Settings:  map[string]interface{}{},
	}

	decode := func(key string, dst interface{}) error {
		raw, present := values[key]
		if !present || raw == "null" {
			return nil
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return errors.NewPersistenceError(
				errors.Wrapf(err, "bad value for key %s", key), path, string(FormatLegacy))
		}
		return nil
	}

	if err := decode(legacyKeyID, &project.ID); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyName, &project.Name); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyTarget, &project.Target); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyDescription, &project.Notes); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyKeywords, &project.Tags); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyTargets, &project.SelectedTargets); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyLocations, &project.Locations); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyAnalysis, &project.Analysis); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyMetadata, &project.Metadata); err != nil {
		return nil, err
	}
	if err := decode(legacyKeyPluginData, &project.PluginData); err != nil {
		return nil, err
	}

	if project.CreatedAt, err = decodeLegacyTime(values, legacyKeyCreated, path); err != nil {
		return nil, err
	}
	if project.ModifiedAt, err = decodeLegacyTime(values, legacyKeyEdited, path); err != nil {
		return nil, err
	}

	var enabled []interface{}
	if err := decode(legacyKeyEnabled, &enabled); err != nil {
		return nil, err
	}
	if len(enabled) > 0 {
		project.Settings[SettingEnabledPlugins] = enabled
	}

	var view map[string]interface{}
	if err := decode(legacyKeyView, &view); err != nil {
		return nil, err
	}
	if len(view) > 0 {
		project.Settings[SettingView] = view
	}

	// Files written before the ID key existed get a fresh one
	if project.ID == "" {
		project.ID = s.newID()
	}
	if project.Locations == nil {
		project.Locations = []geo.StandardizedLocation{}
	}
	return project, nil
}

func (s *Store) saveLegacy(p *Project, path string) error {
	fail := func(err error) error {
		return errors.NewPersistenceError(err, path, string(FormatLegacy))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".geosift-project-*")
	if err != nil {
		return fail(err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fail(err)
	}

	// SQLite treats the empty temp file as a fresh database
	database, err := db.Open(tmpPath, nil)
	if err != nil {
		os.Remove(tmpPath)
		return fail(err)
	}

	if err := writeLegacyValues(database, p); err != nil {
		database.Close()
		os.Remove(tmpPath)
		return fail(err)
	}
	if err := database.Close(); err != nil {
		os.Remove(tmpPath)
		return fail(err)
	}

	if err := os.Chmod(tmpPath, config.DefaultFilePermissions); err != nil {
		os.Remove(tmpPath)
		return fail(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fail(err)
	}
	return nil
}

func readLegacyValues(database *sql.DB) (map[string]string, error) {
	rows, err := database.Query("SELECT key, value FROM project_data")
	if err != nil {
		return nil, errors.Wrap(err, "read project_data")
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "scan project_data row")
		}
		values[key] = value
	}
	return values, rows.Err()
}

func writeLegacyValues(database *sql.DB, p *Project) error {
	if err := db.EnsureSchema(database, legacySchema); err != nil {
		return err
	}

	values, err := legacyValues(p)
	if err != nil {
		return err
	}

	tx, err := database.Begin()
	if err != nil {
		return errors.Wrap(err, "begin project write")
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO project_data (key, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare project write")
	}
	defer stmt.Close()

	for key, value := range values {
		if _, err := stmt.Exec(key, value); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "write key %s", key)
		}
	}
	return tx.Commit()
}

// legacyValues flattens a project into the key/value rows. The ten
// historical keys are always present; superset keys only when set.
func legacyValues(p *Project) (map[string]string, error) {
	values := make(map[string]string, 14)

	put := func(key string, v interface{}) error {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encode key %s", key)
		}
		values[key] = string(data)
		return nil
	}

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	targets := p.SelectedTargets
	if targets == nil {
		targets = []geo.Target{}
	}
	locations := p.Locations
	if locations == nil {
		locations = []geo.StandardizedLocation{}
	}

	enabled, present := p.Settings[SettingEnabledPlugins]
	if !present {
		enabled = []string{}
	}
	view, present := p.Settings[SettingView]
	if !present {
		view = map[string]interface{}{}
	}
	analysis := p.Analysis
	if analysis == nil {
		analysis = map[string]interface{}{}
	}

	steps := []struct {
		key   string
		value interface{}
	}{
		{legacyKeyName, p.Name},
		{legacyKeyKeywords, tags},
		{legacyKeyDescription, p.Notes},
		{legacyKeyCreated, p.CreatedAt},
		{legacyKeyEdited, p.ModifiedAt},
		{legacyKeyEnabled, enabled},
		{legacyKeyTargets, targets},
		{legacyKeyLocations, locations},
		{legacyKeyView, view},
		{legacyKeyAnalysis, analysis},
		{legacyKeyID, p.ID},
	}
	for _, step := range steps {
		if err := put(step.key, step.value); err != nil {
			return nil, err
		}
	}

	if p.Target != "" {
		if err := put(legacyKeyTarget, p.Target); err != nil {
			return nil, err
		}
	}
	if len(p.Metadata) > 0 {
		if err := put(legacyKeyMetadata, p.Metadata); err != nil {
			return nil, err
		}
	}
	if len(p.PluginData) > 0 {
		if err := put(legacyKeyPluginData, p.PluginData); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func decodeLegacyTime(values map[string]string, key, path string) (time.Time, error) {
	raw, present := values[key]
	if !present || raw == "null" {
		return time.Time{}, nil
	}

	var text string
	if err := json.Unmarshal([]byte(raw), &text); err != nil {
		return time.Time{}, errors.NewPersistenceError(
			errors.Wrapf(err, "bad value for key %s", key), path, string(FormatLegacy))
	}

	for _, layout := range legacyTimeLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.NewPersistenceError(
		errors.Newf("unparseable date %q for key %s", text, key), path, string(FormatLegacy))
}
