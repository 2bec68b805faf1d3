package geo

import (
	"reflect"
	"testing"
	"time"
)

func fixedStandardizer() *Standardizer {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewStandardizerWithClock(
		func() time.Time { return now },
		func() string { return "00000000-0000-0000-0000-000000000000" },
	)
}

func TestStandardizeCoordinateAliases(t *testing.T) {
	s := fixedStandardizer()

	tests := []struct {
		name    string
		record  RawRecord
		wantLat float64
		wantLon float64
	}{
		{
			name:    "lat lon pair",
			record:  RawRecord{"lat": 51.5074, "lon": -0.1278},
			wantLat: 51.5074,
			wantLon: -0.1278,
		},
		{
			name:    "latitude longitude pair",
			record:  RawRecord{"latitude": 48.8566, "longitude": 2.3522},
			wantLat: 48.8566,
			wantLon: 2.3522,
		},
		{
			name:    "geojson coordinates lon first",
			record:  RawRecord{"coordinates": []interface{}{139.6917, 35.6895}},
			wantLat: 35.6895,
			wantLon: 139.6917,
		},
		{
			name:    "string coordinates",
			record:  RawRecord{"lat": "40.7128", "lon": "-74.0060"},
			wantLat: 40.7128,
			wantLon: -74.006,
		},
		{
			name:    "integer coordinates",
			record:  RawRecord{"lat": 52, "lon": 13},
			wantLat: 52,
			wantLon: 13,
		},
		{
			name: "lat lon wins over latitude longitude",
			record: RawRecord{
				"lat": 1.0, "lon": 2.0,
				"latitude": 3.0, "longitude": 4.0,
			},
			wantLat: 1.0,
			wantLon: 2.0,
		},
		{
			name: "unparseable lat lon falls through to latitude longitude",
			record: RawRecord{
				"lat": "north", "lon": "west",
				"latitude": 3.0, "longitude": 4.0,
			},
			wantLat: 3.0,
			wantLon: 4.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := s.Standardize(tt.record)
			if loc == nil {
				t.Fatal("Expected a location, got nil")
			}
			if loc.Latitude != tt.wantLat {
				t.Errorf("Latitude: expected %v, got %v", tt.wantLat, loc.Latitude)
			}
			if loc.Longitude != tt.wantLon {
				t.Errorf("Longitude: expected %v, got %v", tt.wantLon, loc.Longitude)
			}
		})
	}
}

func TestStandardizeDropsUnusableRecords(t *testing.T) {
	s := fixedStandardizer()

	tests := []struct {
		name   string
		record RawRecord
	}{
		{"nil record", nil},
		{"empty record", RawRecord{}},
		{"no coordinates", RawRecord{"name": "Somewhere", "date": "2024-01-02"}},
		{"lat without lon", RawRecord{"lat": 10.0}},
		{"latitude out of range", RawRecord{"lat": 91.0, "lon": 0.0}},
		{"longitude out of range", RawRecord{"lat": 0.0, "lon": -180.5}},
		{"not-a-number strings", RawRecord{"lat": "NaN", "lon": "12.0"}},
		{"coordinates too short", RawRecord{"coordinates": []interface{}{5.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if loc := s.Standardize(tt.record); loc != nil {
				t.Errorf("Expected nil, got %+v", loc)
			}
		})
	}
}

func TestStandardizeNameExtraction(t *testing.T) {
	s := fixedStandardizer()

	tests := []struct {
		name   string
		record RawRecord
		want   string
	}{
		{
			name:   "name field",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "name": "Cafe Central"},
			want:   "Cafe Central",
		},
		{
			name:   "name wins over title",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "name": "A", "title": "B"},
			want:   "A",
		},
		{
			name:   "empty name falls through to title",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "name": "", "title": "B"},
			want:   "B",
		},
		{
			name:   "address as last resort",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "address": "1 Main St"},
			want:   "1 Main St",
		},
		{
			name:   "placeholder when nothing names it",
			record: RawRecord{"lat": 1.0, "lon": 2.0},
			want:   "Unnamed Location",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := s.Standardize(tt.record)
			if loc == nil {
				t.Fatal("Expected a location, got nil")
			}
			if loc.ShortName != tt.want {
				t.Errorf("ShortName: expected %q, got %q", tt.want, loc.ShortName)
			}
		})
	}
}

func TestStandardizeTimestamps(t *testing.T) {
	s := fixedStandardizer()

	tests := []struct {
		name   string
		record RawRecord
		want   string
	}{
		{
			name:   "rfc3339 with zone",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "timestamp": "2024-01-02T03:04:05Z"},
			want:   "2024-01-02T03:04:05Z",
		},
		{
			name:   "rfc3339 with offset normalizes to utc",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "timestamp": "2024-01-02T05:04:05+02:00"},
			want:   "2024-01-02T03:04:05Z",
		},
		{
			name:   "naive iso treated as utc",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "timestamp": "2024-01-02T03:04:05"},
			want:   "2024-01-02T03:04:05Z",
		},
		{
			name:   "space separated datetime",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "date": "2024-01-02 03:04:05"},
			want:   "2024-01-02T03:04:05Z",
		},
		{
			name:   "bare date",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "date": "2024-01-02"},
			want:   "2024-01-02T00:00:00Z",
		},
		{
			name:   "day first slash date",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "date": "13/05/2024"},
			want:   "2024-05-13T00:00:00Z",
		},
		{
			name:   "ambiguous slash date reads day first",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "date": "01/02/2024"},
			want:   "2024-02-01T00:00:00Z",
		},
		{
			name:   "month first when day first cannot parse",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "date": "05/13/2024"},
			want:   "2024-05-13T00:00:00Z",
		},
		{
			name:   "epoch seconds",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "created": 1704164645},
			want:   "2024-01-02T03:04:05Z",
		},
		{
			name:   "epoch milliseconds",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "created": 1704164645000.0},
			want:   "2024-01-02T03:04:05Z",
		},
		{
			name:   "epoch seconds as string",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "time": "1704164645"},
			want:   "2024-01-02T03:04:05Z",
		},
		{
			name: "timestamp field wins over date",
			record: RawRecord{
				"lat": 1.0, "lon": 2.0,
				"timestamp": "2024-01-02T03:04:05Z",
				"date":      "1999-12-31",
			},
			want: "2024-01-02T03:04:05Z",
		},
		{
			name: "unparseable first field falls through to next",
			record: RawRecord{
				"lat": 1.0, "lon": 2.0,
				"timestamp": "yesterday-ish",
				"date":      "2024-01-02",
			},
			want: "2024-01-02T00:00:00Z",
		},
		{
			name:   "nothing parses falls back to now",
			record: RawRecord{"lat": 1.0, "lon": 2.0},
			want:   "2024-06-01T12:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := s.Standardize(tt.record)
			if loc == nil {
				t.Fatal("Expected a location, got nil")
			}
			if got := loc.TimestampUTC.Format(time.RFC3339); got != tt.want {
				t.Errorf("TimestampUTC: expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStandardizeSourceExtraction(t *testing.T) {
	s := fixedStandardizer()

	tests := []struct {
		name   string
		record RawRecord
		want   string
	}{
		{
			name:   "source field",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "source": "bsky"},
			want:   "bsky",
		},
		{
			name:   "source wins over plugin",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "source": "a", "plugin": "b"},
			want:   "a",
		},
		{
			name:   "provider as last resort",
			record: RawRecord{"lat": 1.0, "lon": 2.0, "provider": "exif"},
			want:   "exif",
		},
		{
			name:   "absent reads as empty",
			record: RawRecord{"lat": 1.0, "lon": 2.0},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := s.Standardize(tt.record)
			if loc == nil {
				t.Fatal("Expected a location, got nil")
			}
			if loc.Source != tt.want {
				t.Errorf("Source: expected %q, got %q", tt.want, loc.Source)
			}
		})
	}
}

func TestStandardizeMetadataPassthrough(t *testing.T) {
	s := fixedStandardizer()

	loc := s.Standardize(RawRecord{
		"lat":       1.0,
		"lon":       2.0,
		"name":      "Somewhere",
		"title":     "unused alias",
		"accuracy":  "high",
		"altitude":  120.5,
		"photo_url": "https://example.com/p.jpg",
		"_session":  "private",
	})
	if loc == nil {
		t.Fatal("Expected a location, got nil")
	}

	if _, found := loc.Metadata["lat"]; found {
		t.Error("Consumed coordinate key leaked into metadata")
	}
	if _, found := loc.Metadata["name"]; found {
		t.Error("Consumed name key leaked into metadata")
	}
	if loc.Metadata["title"] != "unused alias" {
		t.Errorf("Unmatched alias should pass through, got %v", loc.Metadata["title"])
	}
	if loc.Metadata["accuracy"] != "high" {
		t.Errorf("Unmapped field should pass through, got %v", loc.Metadata["accuracy"])
	}
	if loc.Metadata["altitude"] != 120.5 {
		t.Errorf("Unmapped numeric field should pass through, got %v", loc.Metadata["altitude"])
	}
	if loc.Metadata["photo_url"] != "https://example.com/p.jpg" {
		t.Errorf("Unmapped field should pass through, got %v", loc.Metadata["photo_url"])
	}
	if _, found := loc.Metadata["_session"]; found {
		t.Error("Underscore-prefixed key should not pass through")
	}
}

func TestStandardizeMetadataEmptyStaysNil(t *testing.T) {
	s := fixedStandardizer()

	loc := s.Standardize(RawRecord{"lat": 1.0, "lon": 2.0, "name": "X"})
	if loc == nil {
		t.Fatal("Expected a location, got nil")
	}
	if loc.Metadata != nil {
		t.Errorf("Fully-consumed record should leave Metadata nil, got %v", loc.Metadata)
	}
}

func TestStandardizeDeterminism(t *testing.T) {
	s := fixedStandardizer()
	record := RawRecord{
		"lat":    "40.7128",
		"lon":    "-74.0060",
		"title":  "NYC",
		"date":   "2024-01-02",
		"extra":  "kept",
		"source": "bsky",
	}

	first := s.Standardize(record)
	second := s.Standardize(record)
	if first == nil || second == nil {
		t.Fatal("Expected locations, got nil")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Same record should standardize identically:\n%+v\n%+v", first, second)
	}

	// With random IDs, everything except ID still matches
	r := NewStandardizer()
	a := r.Standardize(RawRecord{"lat": 1.0, "lon": 2.0, "name": "X", "date": "2024-01-02"})
	b := r.Standardize(RawRecord{"lat": 1.0, "lon": 2.0, "name": "X", "date": "2024-01-02"})
	if a.ID == b.ID {
		t.Error("Generated IDs should be unique per call")
	}
	a.ID = ""
	b.ID = ""
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Locations should differ only in ID:\n%+v\n%+v", a, b)
	}
}

func TestStandardizeIDHandling(t *testing.T) {
	s := fixedStandardizer()

	loc := s.Standardize(RawRecord{"lat": 1.0, "lon": 2.0, "id": "upstream-id"})
	if loc.ID != "upstream-id" {
		t.Errorf("Upstream ID should be reused, got %q", loc.ID)
	}
	if _, found := loc.Metadata["id"]; found {
		t.Error("Consumed id key leaked into metadata")
	}

	loc = s.Standardize(RawRecord{"lat": 1.0, "lon": 2.0})
	if loc.ID != "00000000-0000-0000-0000-000000000000" {
		t.Errorf("Missing ID should be generated, got %q", loc.ID)
	}
}

func TestStandardizeInfowindow(t *testing.T) {
	s := fixedStandardizer()

	loc := s.Standardize(RawRecord{
		"lat": 1.0, "lon": 2.0,
		"infowindow": "<b>custom</b>",
	})
	if loc.InfowindowHTML != "<b>custom</b>" {
		t.Errorf("Supplied infowindow should be kept verbatim, got %q", loc.InfowindowHTML)
	}

	loc = s.Standardize(RawRecord{
		"lat": 1.0, "lon": 2.0,
		"name":   "<script>x</script>",
		"source": "bsky",
		"date":   "2024-01-02",
	})
	want := "<b>&lt;script&gt;x&lt;/script&gt;</b><br>Located via bsky<br>at 2024-01-02 00:00:00"
	if loc.InfowindowHTML != want {
		t.Errorf("Composed infowindow mismatch:\nexpected %q\ngot      %q", want, loc.InfowindowHTML)
	}

	loc = s.Standardize(RawRecord{"lat": 1.0, "lon": 2.0, "date": "2024-01-02"})
	want = "<b>Unnamed Location</b><br>Located via unknown<br>at 2024-01-02 00:00:00"
	if loc.InfowindowHTML != want {
		t.Errorf("Sourceless infowindow mismatch:\nexpected %q\ngot      %q", want, loc.InfowindowHTML)
	}
}

func TestStandardizeContextField(t *testing.T) {
	s := fixedStandardizer()

	loc := s.Standardize(RawRecord{
		"lat": 1.0, "lon": 2.0,
		"context": "Posted from the office",
	})
	if loc.Context != "Posted from the office" {
		t.Errorf("Context mismatch, got %q", loc.Context)
	}
	if _, found := loc.Metadata["context"]; found {
		t.Error("Consumed context key leaked into metadata")
	}
}

func TestStandardizeEndToEnd(t *testing.T) {
	s := fixedStandardizer()

	loc := s.Standardize(RawRecord{
		"lat":   "40.7128",
		"lon":   "-74.0060",
		"title": "NYC",
		"date":  "2024-01-02",
	})
	if loc == nil {
		t.Fatal("Expected a location, got nil")
	}
	if loc.Latitude != 40.7128 {
		t.Errorf("Latitude: expected 40.7128, got %v", loc.Latitude)
	}
	if loc.Longitude != -74.006 {
		t.Errorf("Longitude: expected -74.006, got %v", loc.Longitude)
	}
	if loc.ShortName != "NYC" {
		t.Errorf("ShortName: expected NYC, got %q", loc.ShortName)
	}
	if got := loc.TimestampUTC.Format(time.RFC3339); got != "2024-01-02T00:00:00Z" {
		t.Errorf("TimestampUTC: expected 2024-01-02T00:00:00Z, got %s", got)
	}
	if loc.Metadata != nil {
		t.Errorf("All fields consumed, metadata should be nil, got %v", loc.Metadata)
	}
}

func TestStandardizeAll(t *testing.T) {
	s := fixedStandardizer()

	records := []RawRecord{
		{"lat": 1.0, "lon": 2.0, "name": "first"},
		{"name": "no coordinates"},
		{"lat": 3.0, "lon": 4.0, "name": "second"},
		{"lat": 99.0, "lon": 4.0, "name": "out of range"},
	}

	locations := s.StandardizeAll(records)
	if len(locations) != 2 {
		t.Fatalf("Expected 2 locations, got %d", len(locations))
	}
	if locations[0].ShortName != "first" || locations[1].ShortName != "second" {
		t.Errorf("Input order should be preserved, got %q then %q",
			locations[0].ShortName, locations[1].ShortName)
	}
}
