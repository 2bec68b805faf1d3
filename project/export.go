package project

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/logger"
)

// ExportFormat names a serialization for Export.
type ExportFormat string

const (
	// ExportGeoJSON writes a FeatureCollection of Point features
	ExportGeoJSON ExportFormat = "geojson"

	// ExportCSV writes delimited text with a fixed column order
	ExportCSV ExportFormat = "csv"

	// ExportKML writes placemarks for Earth viewers
	ExportKML ExportFormat = "kml"
)

// ParseExportFormat maps user input onto an export format.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case ExportGeoJSON, ExportCSV, ExportKML:
		return ExportFormat(s), nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidInput,
			"unknown export format %q (geojson, csv, kml)", s)
	}
}

// Export serializes the project's locations. Locations without usable
// coordinates are skipped, never a failure.
func (s *Store) Export(p *Project, format ExportFormat, w io.Writer) error {
	locations := exportable(p)

	var err error
	switch format {
	case ExportGeoJSON:
		err = writeGeoJSON(p, locations, w)
	case ExportCSV:
		err = writeCSV(locations, w)
	case ExportKML:
		err = writeKML(p, locations, w)
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unknown export format %q", format)
	}
	if err != nil {
		return err
	}

	logger.Debugw("Project exported",
		"project", p.Name,
		"format", format,
		"locations", len(locations),
		"skipped", len(p.Locations)-len(locations))
	return nil
}

// ExportFile serializes to a file path.
func (s *Store) ExportFile(p *Project, format ExportFormat, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.NewPersistenceError(err, path, string(format))
	}

	if err := s.Export(p, format, file); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		return errors.NewPersistenceError(err, path, string(format))
	}
	return nil
}

// exportable filters out locations that never resolved a position.
func exportable(p *Project) []geo.StandardizedLocation {
	out := make([]geo.StandardizedLocation, 0, len(p.Locations))
	for i := range p.Locations {
		if p.Locations[i].HasCoordinates() {
			out = append(out, p.Locations[i])
		}
	}
	return out
}

type geoJSONGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   geoJSONGeometry        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

func writeGeoJSON(p *Project, locations []geo.StandardizedLocation, w io.Writer) error {
	collection := geoJSONCollection{
		Type:     "FeatureCollection",
		Features: make([]geoJSONFeature, 0, len(locations)),
	}

	for i := range locations {
		loc := &locations[i]
		properties := map[string]interface{}{
			"id":       loc.ID,
			"name":     loc.ShortName,
			"datetime": loc.TimestampUTC.UTC().Format(time.RFC3339),
		}
		if loc.Source != "" {
			properties["source"] = loc.Source
		}
		if loc.Context != "" {
			properties["context"] = loc.Context
		}

		collection.Features = append(collection.Features, geoJSONFeature{
			Type: "Feature",
			// GeoJSON coordinate order is [lon, lat]
			Geometry:   geoJSONGeometry{Type: "Point", Coordinates: [2]float64{loc.Longitude, loc.Latitude}},
			Properties: properties,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(collection); err != nil {
		return errors.Wrap(err, "encode GeoJSON")
	}
	return nil
}

var csvColumns = []string{"id", "latitude", "longitude", "timestamp", "source", "context", "address"}

func writeCSV(locations []geo.StandardizedLocation, w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvColumns); err != nil {
		return errors.Wrap(err, "write CSV header")
	}

	for i := range locations {
		loc := &locations[i]
		address := ""
		if v, present := loc.Metadata["address"]; present {
			if s, ok := v.(string); ok {
				address = s
			}
		}

		row := []string{
			loc.ID,
			strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
			strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
			loc.TimestampUTC.UTC().Format(time.RFC3339),
			loc.Source,
			loc.Context,
			address,
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrap(err, "write CSV row")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "flush CSV")
	}
	return nil
}

type kmlTimeStamp struct {
	When string `xml:"when"`
}

type kmlPoint struct {
	// Coordinates is "lon,lat,0"
	Coordinates string `xml:"coordinates"`
}

type kmlPlacemark struct {
	Name        string        `xml:"name"`
	Description string        `xml:"description,omitempty"`
	TimeStamp   *kmlTimeStamp `xml:"TimeStamp,omitempty"`
	Point       kmlPoint      `xml:"Point"`
}

type kmlDocumentBody struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlRoot struct {
	XMLName  xml.Name        `xml:"kml"`
	Xmlns    string          `xml:"xmlns,attr"`
	Document kmlDocumentBody `xml:"Document"`
}

func writeKML(p *Project, locations []geo.StandardizedLocation, w io.Writer) error {
	root := kmlRoot{
		Xmlns: "http://www.opengis.net/kml/2.2",
		Document: kmlDocumentBody{
			Name:       p.Name,
			Placemarks: make([]kmlPlacemark, 0, len(locations)),
		},
	}

	for i := range locations {
		loc := &locations[i]
		placemark := kmlPlacemark{
			Name:        loc.ShortName,
			Description: loc.Context,
			Point: kmlPoint{
				Coordinates: strconv.FormatFloat(loc.Longitude, 'f', -1, 64) + "," +
					strconv.FormatFloat(loc.Latitude, 'f', -1, 64) + ",0",
			},
		}
		if !loc.TimestampUTC.IsZero() {
			placemark.TimeStamp = &kmlTimeStamp{When: loc.TimestampUTC.UTC().Format(time.RFC3339)}
		}
		root.Document.Placemarks = append(root.Document.Placemarks, placemark)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "write KML header")
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(root); err != nil {
		return errors.Wrap(err, "encode KML")
	}
	if err := encoder.Close(); err != nil {
		return errors.Wrap(err, "finish KML")
	}
	// Encoder output ends without a newline
	_, err := io.WriteString(w, "\n")
	return err
}
