package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/logger"
)

// Section names every plugin config file understands. Plugins may carry
// additional sections; unknown sections and keys pass through untouched.
const (
	SectionStringOptions  = "string_options"
	SectionBooleanOptions = "boolean_options"
)

// Store persists one plugin's settings as named sections of a TOML document
// (string_options, boolean_options, and whatever else the plugin keeps
// there). Reads are deliberately forgiving: a missing or unparseable file
// behaves like an empty one, so callers never have to distinguish "no config
// yet" from "config exists but section is absent".
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by the TOML document at path.
// The file is created lazily on first Write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file backing this store.
func (s *Store) Path() string {
	return s.path
}

// Read returns the values in one section and whether that section exists.
// It never fails: missing files, unreadable files, and parse errors all
// come back as (empty, false).
func (s *Store) Read(section string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	values, ok := doc[section]
	if !ok {
		return map[string]string{}, false
	}
	return values, true
}

// ReadAll returns every section in the store keyed by section name.
func (s *Store) ReadAll() map[string]map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// StringOption reads a single key from the string_options section.
// Missing keys and missing sections both return "".
func (s *Store) StringOption(key string) string {
	values, _ := s.Read(SectionStringOptions)
	return values[key]
}

// BoolOption reads a single key from the boolean_options section and
// interprets it the way INI-style tooling does: "1", "true", "yes", and
// "on" are true, everything else (including a missing key) is false.
func (s *Store) BoolOption(key string) bool {
	values, ok := s.Read(SectionBooleanOptions)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(values[key])) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Sections returns the section names present in the store, sorted.
func (s *Store) Sections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Write merges values into the named section and persists the whole
// document. Keys absent from values keep their stored value; other sections
// are untouched. The previous file is rotated into a backup, and the new
// content lands via temp-file-then-rename so a crash cannot tear it.
func (s *Store) Write(section string, values map[string]string) error {
	if section == "" {
		return errors.Wrap(errors.ErrInvalidInput, "empty section name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()

	existing, ok := doc[section]
	if !ok {
		existing = make(map[string]string)
		doc[section] = existing
	}
	for k, v := range values {
		existing[k] = v
	}

	if err := os.MkdirAll(filepath.Dir(s.path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	if err := createBackup(s.path); err != nil {
		return errors.Wrap(err, "failed to back up plugin config")
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal plugin config")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".geosift-config-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp config file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write temp config file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close temp config file")
	}
	if err := os.Chmod(tmpPath, DefaultFilePermissions); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to set config permissions")
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to replace plugin config")
	}

	return nil
}

// load reads and parses the backing file. Callers must hold s.mu.
func (s *Store) load() map[string]map[string]string {
	doc := make(map[string]map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		logger.Warnw("Plugin config unreadable, treating as empty",
			"path", s.path,
			"error", err)
		return doc
	}

	for name, value := range raw {
		table, ok := value.(map[string]interface{})
		if !ok {
			// Top-level scalars have no owning section; skip them
			continue
		}
		section := make(map[string]string, len(table))
		for k, v := range table {
			if str, ok := scalarString(v); ok {
				section[k] = str
			}
		}
		doc[name] = section
	}

	return doc
}

// scalarString renders a TOML scalar as the string form plugins expect.
// Nested tables and arrays have no string form and are dropped.
func scalarString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	default:
		return "", false
	}
}

// LabelFor turns a stored key into a human-readable form for display:
// underscores become spaces and each word is capitalized, so "api_key"
// renders as "Api Key".
func LabelFor(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
