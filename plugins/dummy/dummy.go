// Package dummy is a deterministic location source. It talks to nothing:
// every target gets a reproducible ring of waypoints around a seed
// coordinate, which makes it the fixture provider for pipeline tests and
// a safe first plugin to try the tool with.
package dummy

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/plugin"
)

// DriverName is the factory name manifests select this plugin by.
const DriverName = "dummy"

const (
	defaultLatitude  = 52.3676 // Amsterdam
	defaultLongitude = 4.9041
	defaultPoints    = 25
	defaultPageSize  = 10
)

// timeBase anchors generated timestamps so output is reproducible.
var timeBase = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func init() {
	plugin.RegisterFactory(DriverName, New)
}

// Plugin generates waypoints around a configurable seed point.
type Plugin struct {
	manifest *plugin.Manifest
	store    *config.Store
}

// New builds the plugin. Both arguments may be nil; everything has a
// default.
func New(manifest *plugin.Manifest, store *config.Store) (plugin.Plugin, error) {
	return &Plugin{manifest: manifest, store: store}, nil
}

func (p *Plugin) Descriptor() plugin.Descriptor {
	if p.manifest != nil {
		return p.manifest.Descriptor()
	}
	return plugin.Descriptor{
		Name:        DriverName,
		Category:    "testing",
		Version:     "1.0.0",
		Description: "Deterministic location generator",
	}
}

// IsConfigured always accepts; the defaults need no setup.
func (p *Plugin) IsConfigured() (bool, string) {
	return true, ""
}

func (p *Plugin) Config() *config.Store {
	return p.store
}

func (p *Plugin) ConfigSchema() map[string]plugin.ConfigField {
	return map[string]plugin.ConfigField{
		"latitude": {
			Type:        "number",
			Description: "Seed latitude the waypoints circle around",
			Default:     strconv.FormatFloat(defaultLatitude, 'f', -1, 64),
		},
		"longitude": {
			Type:        "number",
			Description: "Seed longitude the waypoints circle around",
			Default:     strconv.FormatFloat(defaultLongitude, 'f', -1, 64),
		},
		"points": {
			Type:        "number",
			Description: "How many waypoints each target produces",
			Default:     strconv.Itoa(defaultPoints),
		},
	}
}

// SearchForTargets resolves any non-empty query to exactly one target.
func (p *Plugin) SearchForTargets(ctx context.Context, query string) ([]geo.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty search query")
	}

	return []geo.Target{{
		PluginName:  p.Descriptor().Name,
		ExternalID:  strings.ToLower(query),
		DisplayName: query,
	}}, nil
}

// ReturnLocations pages through the target's waypoint ring. The cursor
// is the next offset; identical inputs produce identical pages.
func (p *Plugin) ReturnLocations(ctx context.Context, target geo.Target, params plugin.FetchParams) (plugin.Page, error) {
	if err := ctx.Err(); err != nil {
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

	total := p.points()
	if offset >= total {
		return plugin.Page{}, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}

	seedLat, seedLon := p.seed()
	records := make([]geo.RawRecord, 0, end-offset)
	for i := offset; i < end; i++ {
		lat, lon := waypoint(seedLat, seedLon, target.ExternalID, i)
		records = append(records, geo.RawRecord{
			"lat":       lat,
			"lon":       lon,
			"name":      fmt.Sprintf("Waypoint %d", i+1),
			"timestamp": timeBase.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			"source":    DriverName,
			"sequence":  i,
		})
	}

	cursor := ""
	if end < total {
		cursor = strconv.Itoa(end)
	}
	return plugin.Page{Records: records, Cursor: cursor}, nil
}

func (p *Plugin) seed() (float64, float64) {
	lat, lon := defaultLatitude, defaultLongitude
	if p.store != nil {
		if v, err := strconv.ParseFloat(p.store.StringOption("latitude"), 64); err == nil {
			lat = v
		}
		if v, err := strconv.ParseFloat(p.store.StringOption("longitude"), 64); err == nil {
			lon = v
		}
	}
	if !geo.ValidCoordinates(lat, lon) {
		return defaultLatitude, defaultLongitude
	}
	return lat, lon
}

func (p *Plugin) points() int {
	if p.store != nil {
		if v, err := strconv.Atoi(p.store.StringOption("points")); err == nil && v > 0 {
			return v
		}
	}
	return defaultPoints
}

// waypoint places point i on an outward spiral whose phase is derived
// from the target, so different targets get different but stable rings.
func waypoint(seedLat, seedLon float64, externalID string, i int) (float64, float64) {
	h := fnv.New32a()
	h.Write([]byte(externalID))
	phase := float64(h.Sum32()%360) * math.Pi / 180

	angle := phase + float64(i)*math.Pi/8
	radius := 0.002 + 0.0005*float64(i)
	return seedLat + radius*math.Sin(angle), seedLon + radius*math.Cos(angle)
}

var (
	_ plugin.Plugin       = (*Plugin)(nil)
	_ plugin.Configurable = (*Plugin)(nil)
)
