package bsky

import (
	"regexp"
	"strconv"
	"strings"

	appbsky "github.com/bluesky-social/indigo/api/bsky"

	"github.com/geosift/geosift/geo"
)

// geoRefPattern matches a geo:<lat>,<lon> reference in a tag or inline
// in post text.
var geoRefPattern = regexp.MustCompile(`(?i)geo:(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)

// feedRecords flattens a feed page into raw records. Reposts are
// skipped: they carry someone else's position.
func feedRecords(feed []*appbsky.FeedDefs_FeedViewPost) []geo.RawRecord {
	records := make([]geo.RawRecord, 0, len(feed))
	for _, item := range feed {
		if item == nil || item.Post == nil || item.Reason != nil {
			continue
		}
		if rec, ok := postRecord(item.Post); ok {
			records = append(records, rec)
		}
	}
	return records
}

// postRecord maps one post view to a raw record. Coordinates appear
// only when the post carries a geo self-tag; the rest drop at
// standardization.
func postRecord(pv *appbsky.FeedDefs_PostView) (geo.RawRecord, bool) {
	if pv.Record == nil {
		return nil, false
	}
	post, ok := pv.Record.Val.(*appbsky.FeedPost)
	if !ok {
		return nil, false
	}

	rec := geo.RawRecord{
		"uri":       pv.Uri,
		"cid":       pv.Cid,
		"context":   post.Text,
		"timestamp": post.CreatedAt,
		"source":    DriverName,
	}
	if title := postTitle(post.Text); title != "" {
		rec["name"] = title
	}
	if pv.IndexedAt != "" {
		rec["indexed_at"] = pv.IndexedAt
	}
	if pv.LikeCount != nil {
		rec["likes"] = *pv.LikeCount
	}
	if pv.ReplyCount != nil {
		rec["replies"] = *pv.ReplyCount
	}
	if pv.RepostCount != nil {
		rec["reposts"] = *pv.RepostCount
	}

	if lat, lon, ok := extractGeo(post); ok {
		rec["lat"] = lat
		rec["lon"] = lon
	}
	return rec, true
}

// extractGeo finds a geo reference, preferring the post's tag list over
// a token embedded in the text.
func extractGeo(post *appbsky.FeedPost) (float64, float64, bool) {
	for _, tag := range post.Tags {
		if lat, lon, ok := parseGeoRef(tag); ok {
			return lat, lon, true
		}
	}
	return parseGeoRef(post.Text)
}

// parseGeoRef reads the first geo:<lat>,<lon> reference out of a
// string. Pairs outside WGS84 range do not count as a reference.
func parseGeoRef(s string) (float64, float64, bool) {
	m := geoRefPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	if !geo.ValidCoordinates(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

// postTitle condenses post text into a listing name.
func postTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	runes := []rune(title)
	if len(runes) > 60 {
		title = string(runes[:57]) + "..."
	}
	return title
}
