package geosifttest

import (
	"fmt"
	"time"

	"github.com/geosift/geosift/geo"
)

// FixtureEpoch is the timestamp of the first fixture record; each
// subsequent record is one hour later.
var FixtureEpoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// RawRecords returns n synthetic plugin records spread around lower
// Manhattan, one hour apart. The records carry the raw alias keys a
// provider would emit, so standardization stays part of the test.
func RawRecords(n int) []geo.RawRecord {
	records := make([]geo.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, geo.RawRecord{
			"lat":       40.7128 + float64(i)*0.001,
			"lon":       -74.0060 - float64(i)*0.001,
			"name":      fmt.Sprintf("Checkin %d", i),
			"timestamp": FixtureEpoch.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			"source":    "dummy",
		})
	}
	return records
}

// Locations returns n standardized locations with stable IDs, spread
// around lower Manhattan one hour apart.
func Locations(n int) []geo.StandardizedLocation {
	locations := make([]geo.StandardizedLocation, 0, n)
	for i := 0; i < n; i++ {
		locations = append(locations, geo.StandardizedLocation{
			ID:           fmt.Sprintf("loc-%04d", i),
			Latitude:     40.7128 + float64(i)*0.001,
			Longitude:    -74.0060 - float64(i)*0.001,
			TimestampUTC: FixtureEpoch.Add(time.Duration(i) * time.Hour),
			Source:       "dummy",
			ShortName:    fmt.Sprintf("Checkin %d", i),
		})
	}
	return locations
}

// Target returns a fixture target owned by the named plugin.
func Target(plugin string) geo.Target {
	return geo.Target{
		PluginName:  plugin,
		ExternalID:  "fixture-user",
		DisplayName: "Fixture User",
	}
}
