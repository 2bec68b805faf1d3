package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/logger"
)

// Store creates, loads, saves, and exports projects under a root
// directory. The root only anchors Create and List; Load and Save take
// explicit paths and work anywhere.
type Store struct {
	root  string
	now   func() time.Time
	newID func() string
}

// NewStore creates a project store rooted at the given directory.
func NewStore(root string) *Store {
	return NewStoreWithClock(root, time.Now, uuid.NewString)
}

// NewStoreWithClock creates a store with an injectable clock and ID
// source.
func NewStoreWithClock(root string, now func() time.Time, newID func() string) *Store {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Store{root: root, now: now, newID: newID}
}

// Root returns the store's project directory.
func (s *Store) Root() string {
	return s.root
}

// Create returns a new in-memory project. Nothing touches disk until
// Save; the default path places it under the store root in the modern
// format.
func (s *Store) Create(name string) *Project {
	now := s.now().UTC()
	return &Project{
		ID:         s.newID(),
		Name:       name,
		CreatedAt:  now,
		ModifiedAt: now,
		Locations:  []geo.StandardizedLocation{},
		Settings:   map[string]interface{}{},
		Path:       filepath.Join(s.root, fileNameFor(name)+".json"),
	}
}

// Load reads a project from disk, choosing the reader by the path's
// extension.
func (s *Store) Load(path string) (*Project, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewPersistenceError(err, path, string(format))
	}

	var project *Project
	switch format {
	case FormatModern:
		project, err = s.loadModern(path)
	case FormatLegacy:
		project, err = s.loadLegacy(path)
	}
	if err != nil {
		return nil, err
	}

	project.Path = path
	logger.Debugw("Project loaded",
		"path", path,
		"format", format,
		"locations", len(project.Locations))
	return project, nil
}

// Save writes the project in the format implied by the path's extension.
// An empty path falls back to the project's current path. On success the
// project's path is updated, so saving a legacy-loaded project to a
// .json path migrates it.
func (s *Store) Save(p *Project, path string) error {
	if path == "" {
		path = p.Path
	}
	if path == "" {
		return errors.Wrap(errors.ErrInvalidInput, "project has no path")
	}

	format, err := FormatForPath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), config.DefaultDirPermissions); err != nil {
		return errors.NewPersistenceError(err, path, string(format))
	}

	switch format {
	case FormatModern:
		err = s.saveModern(p, path)
	case FormatLegacy:
		err = s.saveLegacy(p, path)
	}
	if err != nil {
		return err
	}

	p.Path = path
	logger.Debugw("Project saved",
		"path", path,
		"format", format,
		"locations", len(p.Locations))
	return nil
}

// AddLocations appends copies of the given locations, assigning IDs
// where missing and dropping duplicates and out-of-range coordinates.
// Returns how many were added; any addition bumps ModifiedAt.
func (s *Store) AddLocations(p *Project, locations []geo.StandardizedLocation) int {
	seen := make(map[string]struct{}, len(p.Locations))
	for i := range p.Locations {
		seen[p.Locations[i].ID] = struct{}{}
	}

	added := 0
	for i := range locations {
		if !geo.ValidCoordinates(locations[i].Latitude, locations[i].Longitude) {
			logger.Debugw("Skipping location with out-of-range coordinates",
				"id", locations[i].ID,
				"latitude", locations[i].Latitude,
				"longitude", locations[i].Longitude)
			continue
		}

		loc := locations[i].Clone()
		if loc.ID == "" {
			loc.ID = s.newID()
		}
		if _, dup := seen[loc.ID]; dup {
			continue
		}
		seen[loc.ID] = struct{}{}
		p.Locations = append(p.Locations, loc)
		added++
	}

	if added > 0 {
		p.ModifiedAt = s.now().UTC()
	}
	return added
}

// SetName renames the project.
func (s *Store) SetName(p *Project, name string) {
	p.Name = name
	p.ModifiedAt = s.now().UTC()
}

// SetNotes replaces the project notes.
func (s *Store) SetNotes(p *Project, notes string) {
	p.Notes = notes
	p.ModifiedAt = s.now().UTC()
}

// SetSetting stores one settings key.
func (s *Store) SetSetting(p *Project, key string, value interface{}) {
	if p.Settings == nil {
		p.Settings = map[string]interface{}{}
	}
	p.Settings[key] = value
	p.ModifiedAt = s.now().UTC()
}

// AddTargets records targets on the project, skipping pairs already
// selected.
func (s *Store) AddTargets(p *Project, targets ...geo.Target) int {
	added := 0
	for _, target := range targets {
		if p.HasTarget(target.PluginName, target.ExternalID) {
			continue
		}
		p.SelectedTargets = append(p.SelectedTargets, target)
		added++
	}
	if added > 0 {
		p.ModifiedAt = s.now().UTC()
	}
	return added
}

// List scans the store root for loadable projects. Unreadable entries
// are skipped with a warning; one broken file never hides the rest.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read project directory %s", s.root)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(s.root, entry.Name())
		format, err := FormatForPath(path)
		if err != nil {
			continue
		}

		project, err := s.Load(path)
		if err != nil {
			logger.Warnw("Skipping unreadable project file",
				"path", path,
				"error", err)
			continue
		}

		summaries = append(summaries, Summary{
			Name:       project.Name,
			Path:       path,
			Format:     format,
			Locations:  len(project.Locations),
			ModifiedAt: project.ModifiedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries, nil
}

// Migrate loads a project from one path and saves it to another. Either
// direction works; the formats come from the extensions.
func (s *Store) Migrate(sourcePath, destPath string) error {
	project, err := s.Load(sourcePath)
	if err != nil {
		return err
	}
	if err := s.Save(project, destPath); err != nil {
		return err
	}

	logger.Infow("Project migrated",
		"source", sourcePath,
		"dest", destPath,
		"locations", len(project.Locations))
	return nil
}

func (s *Store) loadModern(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewPersistenceError(err, path, string(FormatModern))
	}

	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, errors.NewPersistenceError(err, path, string(FormatModern))
	}
	if project.Locations == nil {
		project.Locations = []geo.StandardizedLocation{}
	}
	if project.Settings == nil {
		project.Settings = map[string]interface{}{}
	}
	return &project, nil
}

func (s *Store) saveModern(p *Project, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.NewPersistenceError(err, path, string(FormatModern))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".geosift-project-*")
	if err != nil {
		return errors.NewPersistenceError(err, path, string(FormatModern))
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewPersistenceError(err, path, string(FormatModern))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewPersistenceError(err, path, string(FormatModern))
	}
	if err := os.Chmod(tmpPath, config.DefaultFilePermissions); err != nil {
		os.Remove(tmpPath)
		return errors.NewPersistenceError(err, path, string(FormatModern))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewPersistenceError(err, path, string(FormatModern))
	}
	return nil
}

// fileNameFor turns a project name into a usable file stem.
func fileNameFor(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, name)
	mapped = strings.Trim(mapped, "-")
	if mapped == "" {
		return "project"
	}
	return strings.ToLower(mapped)
}
