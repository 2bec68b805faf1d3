package localfiles

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geosift/geosift/cache"
	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/fetch"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/plugin"
)

// writeScanFixture builds a directory tree with every shape the scanner
// must handle: CSV, GeoJSON, record arrays, project files, plus the
// files it must skip.
func writeScanFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) {
		t.Helper()
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("checkins.csv", "Name,Lat,Lng,Timestamp\n"+
		"Harbor Cafe,51.92,4.48,2024-03-05 10:00:00\n"+
		"Old Crane,51.93,4.49,2024-03-05 12:30:00\n")
	write("trip.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature",
			 "geometry": {"type": "Point", "coordinates": [4.46, 51.915]},
			 "properties": {"name": "Ferry Stop", "timestamp": "2024-03-06T09:00:00Z"}},
			{"type": "Feature",
			 "geometry": {"type": "Point", "coordinates": [4.47, 51.916]},
			 "properties": {"name": "Lock Gate"}},
			{"type": "Feature",
			 "geometry": {"type": "LineString",
			              "coordinates": [[4.4, 51.9], [4.5, 52.0]]},
			 "properties": {"name": "Canal Route"}}
		]
	}`)
	write("places.json", `[
		{"lat": 51.94, "lon": 4.5, "name": "Quay"},
		{"name": "lost", "note": "no coordinates"}
	]`)
	write("project.json", `{
		"project_id": "p1",
		"name": "Harbor Watch",
		"locations": [
			{"id": "loc-1", "latitude": 51.95, "longitude": 4.51,
			 "datetime": "2024-03-05T14:00:00Z", "shortName": "Dock"}
		]
	}`)
	write("nested/more.csv", "lat,lon,name\n51.96,4.52,Depot\n")
	write("notes.txt", "not a location file")
	write("broken.json", "{nope")
	write(".hidden.csv", "lat,lon\n1,2\n")
	write(".git/objects.json", `[{"lat": 1, "lon": 2}]`)

	return dir
}

func newConfiguredPlugin(t *testing.T, dirs ...string) plugin.Plugin {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "localfiles.toml"))
	require.NoError(t, store.Write(config.SectionStringOptions, map[string]string{
		"paths": strings.Join(dirs, ", "),
	}))
	plg, err := New(nil, store)
	require.NoError(t, err)
	return plg
}

func targetFor(dir string) geo.Target {
	return geo.Target{PluginName: DriverName, ExternalID: dir, DisplayName: filepath.Base(dir)}
}

// collectAll walks the cursor chain to exhaustion.
func collectAll(t *testing.T, plg plugin.Plugin, target geo.Target, pageSize int) ([]geo.RawRecord, int) {
	t.Helper()
	var records []geo.RawRecord
	cursor := ""
	pages := 0
	for {
		page, err := plg.ReturnLocations(context.Background(), target, plugin.FetchParams{
			Cursor:   cursor,
			PageSize: pageSize,
		})
		require.NoError(t, err)
		records = append(records, page.Records...)
		pages++
		if page.Cursor == "" {
			return records, pages
		}
		cursor = page.Cursor
	}
}

func TestIsConfigured(t *testing.T) {
	t.Run("no store", func(t *testing.T) {
		plg, err := New(nil, nil)
		require.NoError(t, err)
		configured, reason := plg.IsConfigured()
		assert.False(t, configured)
		assert.Contains(t, reason, "no scan paths")
	})

	t.Run("configured paths missing on disk", func(t *testing.T) {
		plg := newConfiguredPlugin(t, filepath.Join(t.TempDir(), "gone"))
		configured, reason := plg.IsConfigured()
		assert.False(t, configured)
		assert.Contains(t, reason, "exist")
	})

	t.Run("one existing path suffices", func(t *testing.T) {
		plg := newConfiguredPlugin(t, filepath.Join(t.TempDir(), "gone"), t.TempDir())
		configured, _ := plg.IsConfigured()
		assert.True(t, configured)
	})
}

func TestSearchForTargets(t *testing.T) {
	parent := t.TempDir()
	harbor := filepath.Join(parent, "harbor-photos")
	archive := filepath.Join(parent, "archive")
	require.NoError(t, os.Mkdir(harbor, 0o755))
	require.NoError(t, os.Mkdir(archive, 0o755))

	plg := newConfiguredPlugin(t, harbor, archive)

	t.Run("empty query lists all directories", func(t *testing.T) {
		targets, err := plg.SearchForTargets(context.Background(), "")
		require.NoError(t, err)
		assert.Len(t, targets, 2)
	})

	t.Run("query filters by substring", func(t *testing.T) {
		targets, err := plg.SearchForTargets(context.Background(), "HARBOR")
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, harbor, targets[0].ExternalID)
		assert.Equal(t, "harbor-photos", targets[0].DisplayName)
	})

	t.Run("no matches yields empty", func(t *testing.T) {
		targets, err := plg.SearchForTargets(context.Background(), "elsewhere")
		require.NoError(t, err)
		assert.Empty(t, targets)
	})
}

func TestReturnLocationsScansTree(t *testing.T) {
	dir := writeScanFixture(t)
	plg := newConfiguredPlugin(t, dir)

	records, _ := collectAll(t, plg, targetFor(dir), 0)
	require.Len(t, records, 8)

	names := make(map[string]bool)
	files := make(map[string]bool)
	for _, rec := range records {
		if name, ok := rec["name"].(string); ok {
			names[name] = true
		}
		if name, ok := rec["shortName"].(string); ok {
			names[name] = true
		}
		file, ok := rec["file"].(string)
		require.True(t, ok, "record missing file provenance")
		files[file] = true
		assert.Equal(t, DriverName, rec["source"])
	}

	for _, expected := range []string{"Harbor Cafe", "Ferry Stop", "Quay", "Dock", "Depot"} {
		assert.True(t, names[expected], "missing record %s", expected)
	}
	assert.True(t, files[filepath.Join("nested", "more.csv")])
	assert.False(t, files[".hidden.csv"], "dotfiles must not be scanned")
	assert.False(t, files[filepath.Join(".git", "objects.json")], "dot-directories must not be scanned")
}

func TestReturnLocationsPagination(t *testing.T) {
	dir := writeScanFixture(t)
	plg := newConfiguredPlugin(t, dir)

	t.Run("small pages close on file boundaries", func(t *testing.T) {
		records, pages := collectAll(t, plg, targetFor(dir), 1)
		assert.Len(t, records, 8)
		assert.Equal(t, 5, pages)
	})

	t.Run("large page takes everything at once", func(t *testing.T) {
		page, err := plg.ReturnLocations(context.Background(), targetFor(dir), plugin.FetchParams{PageSize: 100})
		require.NoError(t, err)
		assert.Len(t, page.Records, 8)
		assert.Empty(t, page.Cursor)
	})

	t.Run("cursor past the end returns an empty final page", func(t *testing.T) {
		page, err := plg.ReturnLocations(context.Background(), targetFor(dir), plugin.FetchParams{Cursor: "99"})
		require.NoError(t, err)
		assert.Empty(t, page.Records)
		assert.Empty(t, page.Cursor)
	})

	t.Run("rejects malformed cursor", func(t *testing.T) {
		_, err := plg.ReturnLocations(context.Background(), targetFor(dir), plugin.FetchParams{Cursor: "x"})
		assert.Error(t, err)
	})
}

func TestTargetScope(t *testing.T) {
	dir := writeScanFixture(t)
	plg := newConfiguredPlugin(t, dir)

	t.Run("subdirectory of a configured path is allowed", func(t *testing.T) {
		nested := filepath.Join(dir, "nested")
		records, _ := collectAll(t, plg, targetFor(nested), 0)
		require.Len(t, records, 1)
		assert.Equal(t, "Depot", records[0]["name"])
		assert.Equal(t, "more.csv", records[0]["file"])
	})

	t.Run("path outside every configured root is rejected", func(t *testing.T) {
		_, err := plg.ReturnLocations(context.Background(), targetFor(t.TempDir()), plugin.FetchParams{})
		assert.Error(t, err)
	})

	t.Run("sibling with shared name prefix is rejected", func(t *testing.T) {
		_, err := plg.ReturnLocations(context.Background(), targetFor(dir+"-other"), plugin.FetchParams{})
		assert.Error(t, err)
	})
}

// TestFullPipeline drives the scanner through the real orchestrator and
// standardizer: records without coordinates drop, everything else comes
// out canonical.
func TestFullPipeline(t *testing.T) {
	dir := writeScanFixture(t)
	plg := newConfiguredPlugin(t, dir)

	registry := plugin.NewRegistry("1.0.0")
	require.NoError(t, registry.Register(plg))
	orchestrator := fetch.NewOrchestrator(registry, cache.NewManager(t.TempDir()), geo.NewStandardizer())

	locations, err := orchestrator.Collect(context.Background(), DriverName, targetFor(dir), fetch.Options{})
	require.NoError(t, err)

	// 8 raw records minus the one without coordinates
	require.Len(t, locations, 7)

	byName := make(map[string]geo.StandardizedLocation)
	for _, loc := range locations {
		assert.True(t, geo.ValidCoordinates(loc.Latitude, loc.Longitude))
		assert.Equal(t, DriverName, loc.Source)
		require.NotNil(t, loc.Metadata)
		assert.NotEmpty(t, loc.Metadata["file"])
		byName[loc.ShortName] = loc
	}

	cafe, ok := byName["Harbor Cafe"]
	require.True(t, ok)
	assert.Equal(t, 51.92, cafe.Latitude)
	assert.Equal(t, 4.48, cafe.Longitude)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), cafe.TimestampUTC)

	dock, ok := byName["Dock"]
	require.True(t, ok)
	assert.Equal(t, "loc-1", dock.ID, "re-ingested project locations keep their IDs")
	assert.Equal(t, time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC), dock.TimestampUTC)

	// Lock Gate has no timestamp of its own, so the file mtime applies
	gate, ok := byName["Lock Gate"]
	require.True(t, ok)
	assert.False(t, gate.TimestampUTC.IsZero())
}
