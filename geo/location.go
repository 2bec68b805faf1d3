// Package geo holds the data model shared across the ingestion pipeline:
// raw plugin output, the canonical standardized location, and the target
// handles plugins resolve queries into.
package geo

import (
	"math"
	"time"

	"github.com/geosift/geosift/errors"
)

// RawRecord is the untyped key/value shape plugins produce. Field names and
// value types are not guaranteed; the standardizer is the only component
// that interprets them.
type RawRecord map[string]interface{}

// Target is an opaque handle a plugin hands back to itself on a later
// location fetch. It has no meaning across plugins.
type Target struct {
	PluginName  string `json:"pluginName"`
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// StandardizedLocation is the canonical record every downstream consumer
// works with. JSON keys follow the project document format, so locations
// serialize directly into project files and map exports.
//
// Invariant: Latitude ∈ [-90, 90] and Longitude ∈ [-180, 180]. The
// standardizer drops records that cannot satisfy this, so a value of this
// type obtained from Standardize always holds it.
type StandardizedLocation struct {
	ID             string                 `json:"id"`
	Latitude       float64                `json:"latitude"`
	Longitude      float64                `json:"longitude"`
	TimestampUTC   time.Time              `json:"datetime"`
	Source         string                 `json:"source,omitempty"`
	Context        string                 `json:"context,omitempty"`
	InfowindowHTML string                 `json:"infowindow,omitempty"`
	ShortName      string                 `json:"shortName"`
	Metadata       map[string]interface{} `json:"attributes,omitempty"`
}

// ValidCoordinates reports whether lat/lon form a usable coordinate pair:
// finite and within WGS84 range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Validate checks the coordinate invariant on a location that arrived from
// outside the standardizer (a loaded project file, for example).
func (l *StandardizedLocation) Validate() error {
	if !ValidCoordinates(l.Latitude, l.Longitude) {
		return errors.Wrapf(errors.ErrInvalidInput,
			"coordinates out of range: (%v, %v)", l.Latitude, l.Longitude)
	}
	return nil
}

// HasCoordinates reports whether the location carries a real position.
// A zero on either axis reads as "never resolved": legacy files store zero
// for locations that failed geocoding, and exports skip those rather than
// plotting points on the equator or prime meridian.
func (l *StandardizedLocation) HasCoordinates() bool {
	return l.Latitude != 0 && l.Longitude != 0
}

// Clone returns a deep copy. Projects own their location lists by value, so
// additions go through Clone to keep callers from mutating stored entries.
func (l *StandardizedLocation) Clone() StandardizedLocation {
	out := *l
	if l.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(l.Metadata))
		for k, v := range l.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
