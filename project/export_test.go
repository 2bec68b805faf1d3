package project

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/internal/geosifttest"
)

func exportProject(t *testing.T) (*Store, *Project) {
	t.Helper()
	store, _ := testStore(t)
	project := store.Create("Export Fixture")
	store.AddLocations(project, geosifttest.Locations(2))

	// Never resolved a position; every exporter must skip it
	project.Locations = append(project.Locations, geo.StandardizedLocation{
		ID: "no-coords", ShortName: "Unknown Spot",
	})
	return store, project
}

func TestParseExportFormat(t *testing.T) {
	for _, valid := range []string{"geojson", "csv", "kml"} {
		format, err := ParseExportFormat(valid)
		require.NoError(t, err)
		assert.Equal(t, ExportFormat(valid), format)
	}

	_, err := ParseExportFormat("shapefile")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestExportGeoJSON(t *testing.T) {
	store, project := exportProject(t)

	var buf bytes.Buffer
	require.NoError(t, store.Export(project, ExportGeoJSON, &buf))

	var collection struct {
		Type     string `json:"type"`
		Features []struct {
			Type     string `json:"type"`
			Geometry struct {
				Type        string     `json:"type"`
				Coordinates [2]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &collection))

	assert.Equal(t, "FeatureCollection", collection.Type)
	require.Len(t, collection.Features, 2, "the location without coordinates is skipped")

	first := collection.Features[0]
	assert.Equal(t, "Feature", first.Type)
	assert.Equal(t, "Point", first.Geometry.Type)
	assert.Equal(t, project.Locations[0].Longitude, first.Geometry.Coordinates[0], "longitude comes first")
	assert.Equal(t, project.Locations[0].Latitude, first.Geometry.Coordinates[1])
	assert.Equal(t, project.Locations[0].ID, first.Properties["id"])
	assert.Equal(t, "Checkin 0", first.Properties["name"])
}

func TestExportCSV(t *testing.T) {
	store, project := exportProject(t)
	project.Locations[0].Metadata = map[string]interface{}{"address": "1 Dock Road"}

	var buf bytes.Buffer
	require.NoError(t, store.Export(project, ExportCSV, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus the two locations with coordinates")

	assert.Equal(t, []string{"id", "latitude", "longitude", "timestamp", "source", "context", "address"}, records[0])
	assert.Equal(t, project.Locations[0].ID, records[1][0])
	assert.Equal(t, "40.7128", records[1][1])
	assert.Equal(t, "-74.006", records[1][2])
	assert.Equal(t, "2024-01-02T03:04:05Z", records[1][3])
	assert.Equal(t, "dummy", records[1][4])
	assert.Equal(t, "1 Dock Road", records[1][6])
	assert.Equal(t, "", records[2][6], "no address metadata leaves the column empty")
}

func TestExportKML(t *testing.T) {
	store, project := exportProject(t)
	project.Locations[0].ShortName = "Dock & Crane"

	var buf bytes.Buffer
	require.NoError(t, store.Export(project, ExportKML, &buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"), "starts with the XML declaration")
	assert.Contains(t, out, `xmlns="http://www.opengis.net/kml/2.2"`)
	assert.Contains(t, out, "<name>Export Fixture</name>")
	assert.Contains(t, out, "<name>Dock &amp; Crane</name>", "placemark names are escaped")
	assert.Contains(t, out, "<coordinates>-74.006,40.7128,0</coordinates>")
	assert.Contains(t, out, "<when>2024-01-02T03:04:05Z</when>")
	assert.Equal(t, 2, strings.Count(out, "<Placemark>"), "the location without coordinates is skipped")
}

func TestExportFile(t *testing.T) {
	store, project := exportProject(t)
	path := filepath.Join(t.TempDir(), "out.geojson")

	require.NoError(t, store.ExportFile(project, ExportGeoJSON, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FeatureCollection")
}

func TestExportUnknownFormat(t *testing.T) {
	store, project := exportProject(t)

	err := store.Export(project, ExportFormat("shapefile"), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestExportEmptyProject(t *testing.T) {
	store, _ := testStore(t)
	project := store.Create("Empty")

	var buf bytes.Buffer
	require.NoError(t, store.Export(project, ExportGeoJSON, &buf))
	assert.Contains(t, buf.String(), `"features": []`)
}
