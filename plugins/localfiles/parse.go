package localfiles

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"

	"github.com/geosift/geosift/geo"
)

// parseCSV maps each data row to a raw record keyed by the normalized
// header names. Values stay strings; the standardizer reads numeric
// strings as coordinates. Ragged rows are tolerated, empty cells are
// omitted.
func parseCSV(data []byte) ([]geo.RawRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
	}

	records := make([]geo.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := geo.RawRecord{}
		for i, value := range row {
			if i >= len(headers) || headers[i] == "" || value == "" {
				continue
			}
			rec[headers[i]] = value
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records, nil
}

// normalizeHeader lowercases a CSV header and folds the common longitude
// spellings onto the alias the standardizer knows.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	switch h {
	case "lng", "long":
		return "lon"
	}
	return h
}

// parseJSON accepts the JSON shapes location dumps come in: a bare
// array of records, a GeoJSON FeatureCollection or single Feature, a
// project-file-style object with a locations array, or a single record
// object.
func parseJSON(data []byte) ([]geo.RawRecord, error) {
	var list []map[string]interface{}
	if err := json.Unmarshal(data, &list); err == nil {
		records := make([]geo.RawRecord, 0, len(list))
		for _, obj := range list {
			records = append(records, geo.RawRecord(obj))
		}
		return records, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	switch obj["type"] {
	case "FeatureCollection":
		features, _ := obj["features"].([]interface{})
		return featureRecords(features), nil
	case "Feature":
		if rec, ok := featureRecord(obj); ok {
			return []geo.RawRecord{rec}, nil
		}
		return nil, nil
	}

	if locs, ok := obj["locations"].([]interface{}); ok {
		var records []geo.RawRecord
		for _, item := range locs {
			m, isMap := item.(map[string]interface{})
			if !isMap {
				continue
			}
			rec := geo.RawRecord(m)
			// Project files store these under keys the standardizer has
			// no alias for
			if dt, present := rec["datetime"]; present {
				if _, has := rec["timestamp"]; !has {
					rec["timestamp"] = dt
				}
			}
			if sn, present := rec["shortName"]; present {
				if _, has := rec["name"]; !has {
					rec["name"] = sn
				}
			}
			records = append(records, rec)
		}
		return records, nil
	}

	return []geo.RawRecord{geo.RawRecord(obj)}, nil
}

func featureRecords(features []interface{}) []geo.RawRecord {
	var records []geo.RawRecord
	for _, item := range features {
		feature, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if rec, ok := featureRecord(feature); ok {
			records = append(records, rec)
		}
	}
	return records
}

// featureRecord flattens one GeoJSON feature: properties become the
// record, the geometry's [lon, lat] pair rides under coordinates. Only
// Point geometries carry a single plottable position.
func featureRecord(feature map[string]interface{}) (geo.RawRecord, bool) {
	geom, ok := feature["geometry"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	if t, _ := geom["type"].(string); t != "" && t != "Point" {
		return nil, false
	}
	coords, ok := geom["coordinates"].([]interface{})
	if !ok || len(coords) < 2 {
		return nil, false
	}

	rec := geo.RawRecord{}
	if props, ok := feature["properties"].(map[string]interface{}); ok {
		for k, v := range props {
			rec[k] = v
		}
	}
	rec["coordinates"] = coords
	return rec, true
}
