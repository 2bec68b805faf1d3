// Package localfiles ingests location files already on disk. It scans
// configured directories for .json, .geojson, and .csv files and emits
// their rows and features as raw records; nothing leaves the machine.
package localfiles

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/logger"
	"github.com/geosift/geosift/plugin"
)

// DriverName is the factory name manifests select this plugin by.
const DriverName = "localfiles"

const (
	// defaultPageSize is the record budget per page when the caller
	// passes no hint. Pages close on file boundaries, so they can run
	// over by one file's worth.
	defaultPageSize = 250

	// maxFileBytes guards against slurping a multi-gigabyte dump that
	// happens to carry an eligible extension.
	maxFileBytes = 32 << 20
)

func init() {
	plugin.RegisterFactory(DriverName, New)
}

// Plugin scans configured directories for location-bearing files.
type Plugin struct {
	manifest *plugin.Manifest
	store    *config.Store
}

// New builds the plugin around its manifest and settings store.
func New(manifest *plugin.Manifest, store *config.Store) (plugin.Plugin, error) {
	return &Plugin{manifest: manifest, store: store}, nil
}

func (p *Plugin) Descriptor() plugin.Descriptor {
	if p.manifest != nil {
		return p.manifest.Descriptor()
	}
	return plugin.Descriptor{
		Name:        DriverName,
		Category:    "local",
		Version:     "1.0.0",
		Description: "Scans local directories for location-bearing files",
	}
}

func (p *Plugin) IsConfigured() (bool, string) {
	paths := p.paths()
	if len(paths) == 0 {
		return false, "no scan paths configured"
	}
	if len(p.existingPaths()) == 0 {
		return false, "none of the configured scan paths exist"
	}
	return true, ""
}

func (p *Plugin) Config() *config.Store {
	return p.store
}

func (p *Plugin) ConfigSchema() map[string]plugin.ConfigField {
	return map[string]plugin.ConfigField{
		"paths": {
			Type:        "string",
			Description: "Comma-separated directories to scan for location files",
			Required:    true,
		},
	}
}

// RateLimit passes through the manifest's declared budget. Local disk
// reads need no real throttle, so the fallback is effectively unlimited.
func (p *Plugin) RateLimit() plugin.RateLimit {
	if p.manifest != nil && p.manifest.RateLimit != nil {
		return *p.manifest.RateLimit
	}
	return plugin.RateLimit{MaxCalls: 1000, WindowSeconds: 1}
}

// SearchForTargets returns the configured directories as targets. A
// non-empty query filters them by case-insensitive substring; an empty
// query lists them all.
func (p *Plugin) SearchForTargets(ctx context.Context, query string) ([]geo.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	var targets []geo.Target
	for _, dir := range p.existingPaths() {
		if query != "" && !strings.Contains(strings.ToLower(dir), query) {
			continue
		}
		targets = append(targets, geo.Target{
			PluginName:  p.Descriptor().Name,
			ExternalID:  dir,
			DisplayName: filepath.Base(dir),
		})
	}
	return targets, nil
}

// ReturnLocations pages through the target directory's eligible files.
// The cursor indexes into the walk's file list; the walk re-runs per
// page in lexical order, so cursors stay stable unless the tree changes
// mid-fetch. Unreadable or unparseable files are skipped, not fatal.
func (p *Plugin) ReturnLocations(ctx context.Context, target geo.Target, params plugin.FetchParams) (plugin.Page, error) {
	if err := ctx.Err(); err != nil {
		return plugin.Page{}, err
	}

	dir, err := p.resolveTarget(target)
	if err != nil {
		return plugin.Page{}, err
	}

	offset := 0
	if params.Cursor != "" {
		parsed, err := strconv.Atoi(params.Cursor)
		if err != nil || parsed < 0 {
			return plugin.Page{}, errors.Wrapf(errors.ErrInvalidInput, "bad cursor %q", params.Cursor)
		}
		offset = parsed
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	files, err := scanDir(dir)
	if err != nil {
		return plugin.Page{}, err
	}
	if offset >= len(files) {
		return plugin.Page{}, nil
	}

	var records []geo.RawRecord
	next := offset
	for next < len(files) && len(records) < pageSize {
		if err := ctx.Err(); err != nil {
			return plugin.Page{}, err
		}
		records = append(records, p.readFile(dir, files[next])...)
		next++
	}

	cursor := ""
	if next < len(files) {
		cursor = strconv.Itoa(next)
	}
	return plugin.Page{Records: records, Cursor: cursor}, nil
}

// resolveTarget accepts a target only when its path sits under one of
// the currently configured scan paths. Targets minted before a config
// change do not get to read arbitrary directories.
func (p *Plugin) resolveTarget(target geo.Target) (string, error) {
	dir := filepath.Clean(target.ExternalID)
	for _, root := range p.paths() {
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return dir, nil
		}
	}
	return "", errors.Wrapf(errors.ErrInvalidInput,
		"target %q is not under a configured scan path", target.ExternalID)
}

// readFile parses one file into raw records, attaching provenance. A
// file that cannot be read or parsed yields nothing.
func (p *Plugin) readFile(root, path string) []geo.RawRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warnw("Skipping unreadable location file",
			"path", path,
			"error", err)
		return nil
	}

	var records []geo.RawRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = parseCSV(data)
	default:
		records, err = parseJSON(data)
	}
	if err != nil {
		logger.Warnw("Skipping unparseable location file",
			"path", path,
			"error", err)
		return nil
	}

	annotate(records, root, path)
	return records
}

// scanDir walks one directory collecting eligible files. WalkDir's
// lexical order makes the result deterministic across calls. Dotfiles
// and dot-directories are skipped; unreadable subtrees log and continue.
func scanDir(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnw("Skipping unreadable path during scan",
				"path", path,
				"error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !eligible(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFileBytes {
			logger.Warnw("Skipping oversized location file",
				"path", path,
				"bytes", info.Size())
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", root)
	}
	return files, nil
}

func eligible(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".geojson", ".csv":
		return true
	}
	return false
}

// annotate attaches provenance without clobbering fields the file
// itself supplied. The mtime rides under the lowest-priority timestamp
// alias, so records carrying their own timestamp keep it.
func annotate(records []geo.RawRecord, root, path string) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	var mtime string
	if info, err := os.Stat(path); err == nil {
		mtime = info.ModTime().UTC().Format(time.RFC3339)
	}

	for _, rec := range records {
		if _, present := rec["source"]; !present {
			rec["source"] = DriverName
		}
		if _, present := rec["file"]; !present {
			rec["file"] = rel
		}
		if mtime != "" {
			if _, present := rec["modified"]; !present {
				rec["modified"] = mtime
			}
		}
	}
}

// paths splits and cleans the configured scan path list.
func (p *Plugin) paths() []string {
	if p.store == nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(p.store.StringOption("paths"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, filepath.Clean(part))
	}
	return out
}

// existingPaths filters the configured paths down to real directories.
func (p *Plugin) existingPaths() []string {
	var out []string
	for _, path := range p.paths() {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			out = append(out, path)
		}
	}
	return out
}

var (
	_ plugin.Plugin       = (*Plugin)(nil)
	_ plugin.Configurable = (*Plugin)(nil)
	_ plugin.RateLimited  = (*Plugin)(nil)
)
