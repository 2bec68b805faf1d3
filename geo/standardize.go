package geo

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geosift/geosift/logger"
)

// Field alias orders. First match wins; the matched key is consumed and
// everything else passes through to the metadata bag untouched.
var (
	nameAliases      = []string{"name", "title", "location", "place", "address"}
	timestampAliases = []string{"timestamp", "date", "time", "created", "modified"}
	sourceAliases    = []string{"source", "plugin", "provider"}
)

// timestampLayouts are tried in order for string timestamp values before
// falling back to numeric epoch interpretation. Day-first beats month-first
// for ambiguous slash dates.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
}

// Standardizer converts raw plugin records into canonical locations.
// The zero value is not usable; construct with NewStandardizer. The clock
// and ID source are injectable so tests get fully deterministic output.
type Standardizer struct {
	now   func() time.Time
	newID func() string
}

// NewStandardizer returns a standardizer using the wall clock and random
// UUIDs.
func NewStandardizer() *Standardizer {
	return &Standardizer{now: time.Now, newID: uuid.NewString}
}

// NewStandardizerWithClock returns a standardizer whose "record has no
// parseable timestamp" fallback and generated IDs come from the given
// functions.
func NewStandardizerWithClock(now func() time.Time, newID func() string) *Standardizer {
	s := NewStandardizer()
	if now != nil {
		s.now = now
	}
	if newID != nil {
		s.newID = newID
	}
	return s
}

// Standardize maps one raw record to the canonical shape, or returns nil
// when the record has no usable coordinates. A nil result is filtering,
// not an error.
//
// Extraction order is fixed: coordinates from (lat, lon), then
// (latitude, longitude), then a GeoJSON-style coordinates array holding
// [lon, lat]. Name from name, title, location, place, address, defaulting
// to "Unnamed Location". Timestamps try each alias field against the
// layout list and then numeric epoch; when nothing parses the timestamp is
// the standardization time. Source from source, plugin, provider. Every
// field not claimed by one of those extractions is carried into Metadata
// unchanged, except keys with a leading underscore, which are private to
// the emitting plugin.
func (s *Standardizer) Standardize(rec RawRecord) *StandardizedLocation {
	if rec == nil {
		return nil
	}

	lat, lon, coordKeys, ok := extractCoordinates(rec)
	if !ok || !ValidCoordinates(lat, lon) {
		return nil
	}

	consumed := make(map[string]bool, len(coordKeys)+4)
	for _, k := range coordKeys {
		consumed[k] = true
	}

	name := "Unnamed Location"
	for _, key := range nameAliases {
		if v, present := rec[key]; present {
			if str, usable := scalarToString(v); usable && str != "" {
				name = str
				consumed[key] = true
				break
			}
		}
	}

	ts, tsKey, parsed := s.extractTimestamp(rec)
	if parsed {
		consumed[tsKey] = true
	}

	source := ""
	for _, key := range sourceAliases {
		if v, present := rec[key]; present {
			source, _ = scalarToString(v)
			consumed[key] = true
			break
		}
	}

	context := ""
	if v, present := rec["context"]; present {
		context, _ = scalarToString(v)
		consumed["context"] = true
	}

	infowindow := ""
	if v, present := rec["infowindow"]; present {
		infowindow, _ = scalarToString(v)
		consumed["infowindow"] = true
	}
	if infowindow == "" {
		infowindow = buildInfowindow(name, source, ts)
	}

	id := ""
	if v, present := rec["id"]; present {
		if str, usable := scalarToString(v); usable && str != "" {
			id = str
			consumed["id"] = true
		}
	}
	if id == "" {
		id = s.newID()
	}

	var metadata map[string]interface{}
	for key, value := range rec {
		if consumed[key] || strings.HasPrefix(key, "_") {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]interface{})
		}
		metadata[key] = value
	}

	return &StandardizedLocation{
		ID:             id,
		Latitude:       lat,
		Longitude:      lon,
		TimestampUTC:   ts,
		Source:         source,
		Context:        context,
		InfowindowHTML: infowindow,
		ShortName:      name,
		Metadata:       metadata,
	}
}

// StandardizeAll maps a batch of records, dropping the ones without
// coordinates. The input order is preserved.
func (s *Standardizer) StandardizeAll(records []RawRecord) []StandardizedLocation {
	out := make([]StandardizedLocation, 0, len(records))
	dropped := 0
	for _, rec := range records {
		loc := s.Standardize(rec)
		if loc == nil {
			dropped++
			continue
		}
		out = append(out, *loc)
	}
	if dropped > 0 {
		logger.Debugw("Records dropped during standardization",
			"dropped", dropped,
			"kept", len(out))
	}
	return out
}

// extractTimestamp walks the alias fields in order and, per field, the
// parse strategies in order. The first combination that yields a time wins.
// Returns the standardization time when nothing parses.
func (s *Standardizer) extractTimestamp(rec RawRecord) (time.Time, string, bool) {
	for _, key := range timestampAliases {
		v, present := rec[key]
		if !present {
			continue
		}
		if t, ok := parseTimestamp(v); ok {
			return t.UTC(), key, true
		}
	}
	return s.now().UTC(), "", false
}

// parseTimestamp interprets one raw value as a point in time.
func parseTimestamp(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, true
			}
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return epochTime(f), true
		}
		return time.Time{}, false
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return epochTime(f), true
		}
		return time.Time{}, false
	case float64:
		return epochTime(val), true
	case float32:
		return epochTime(float64(val)), true
	case int:
		return epochTime(float64(val)), true
	case int32:
		return epochTime(float64(val)), true
	case int64:
		return epochTime(float64(val)), true
	case uint:
		return epochTime(float64(val)), true
	case uint64:
		return epochTime(float64(val)), true
	default:
		return time.Time{}, false
	}
}

// epochTime converts a numeric epoch to a time. Magnitudes beyond 1e12 can
// only be millisecond timestamps; plain seconds will not reach that range
// for tens of thousands of years.
func epochTime(v float64) time.Time {
	if v > 1e12 || v < -1e12 {
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Unix(int64(v), 0).UTC()
}

// extractCoordinates tries the coordinate aliases in order and returns the
// pair plus the keys it consumed. A pair whose values cannot be read as
// numbers does not match; extraction moves on to the next alias.
func extractCoordinates(rec RawRecord) (lat, lon float64, keys []string, ok bool) {
	if latV, present := rec["lat"]; present {
		if lonV, present := rec["lon"]; present {
			if lat, lok := toFloat(latV); lok {
				if lon, lnok := toFloat(lonV); lnok {
					return lat, lon, []string{"lat", "lon"}, true
				}
			}
		}
	}

	if latV, present := rec["latitude"]; present {
		if lonV, present := rec["longitude"]; present {
			if lat, lok := toFloat(latV); lok {
				if lon, lnok := toFloat(lonV); lnok {
					return lat, lon, []string{"latitude", "longitude"}, true
				}
			}
		}
	}

	// GeoJSON order: [longitude, latitude]
	if coordsV, present := rec["coordinates"]; present {
		if coords, isList := coordsV.([]interface{}); isList && len(coords) >= 2 {
			if lon, lnok := toFloat(coords[0]); lnok {
				if lat, lok := toFloat(coords[1]); lok {
					return lat, lon, []string{"coordinates"}, true
				}
			}
		}
	}

	return 0, 0, nil, false
}

// toFloat reads a raw value as a float64. Strings are accepted because
// plugins scraping text sources routinely emit numbers as strings.
func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// scalarToString renders a scalar raw value as a string. Non-scalar values
// (nested maps, lists) have no string form here and report unusable.
func scalarToString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// buildInfowindow composes the map popup HTML for records whose plugin did
// not supply one.
func buildInfowindow(name, source string, ts time.Time) string {
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("<b>%s</b><br>Located via %s<br>at %s",
		html.EscapeString(name),
		html.EscapeString(source),
		ts.Format("2006-01-02 15:04:05"))
}
