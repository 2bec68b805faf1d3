package bsky

import (
	"strings"
	"testing"

	appbsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geosift/geosift/internal/util"
)

func postView(text string, tags ...string) *appbsky.FeedDefs_PostView {
	return &appbsky.FeedDefs_PostView{
		Uri:       "at://did:plc:alice/app.bsky.feed.post/1",
		Cid:       "cid1",
		IndexedAt: "2024-03-05T18:25:00Z",
		LikeCount: util.Ptr(int64(3)),
		Record: &lexutil.LexiconTypeDecoder{Val: &appbsky.FeedPost{
			Text:      text,
			CreatedAt: "2024-03-05T18:21:00Z",
			Tags:      tags,
		}},
	}
}

func TestParseGeoRef(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		lat, lon float64
		ok       bool
	}{
		{"bare tag", "geo:51.92,4.48", 51.92, 4.48, true},
		{"inline in text", "sunset watch geo:51.92,4.48 tonight", 51.92, 4.48, true},
		{"uppercase scheme", "GEO:51.92,4.48", 51.92, 4.48, true},
		{"negative coordinates", "geo:-33.86,-151.21", -33.86, -151.21, true},
		{"integer coordinates", "geo:52,5", 52, 5, true},
		{"latitude out of range", "geo:91.5,0.0", 0, 0, false},
		{"longitude out of range", "geo:0.0,181.0", 0, 0, false},
		{"not a reference", "george:51.92", 0, 0, false},
		{"missing pair", "geo:51.92", 0, 0, false},
		{"empty", "", 0, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lat, lon, ok := parseGeoRef(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.lat, lat)
				assert.Equal(t, tc.lon, lon)
			}
		})
	}
}

func TestExtractGeo(t *testing.T) {
	t.Run("tag list wins over text", func(t *testing.T) {
		post := &appbsky.FeedPost{
			Text: "also mentions geo:10.0,20.0 inline",
			Tags: []string{"harbor", "geo:51.92,4.48"},
		}
		lat, lon, ok := extractGeo(post)
		require.True(t, ok)
		assert.Equal(t, 51.92, lat)
		assert.Equal(t, 4.48, lon)
	})

	t.Run("text is the fallback", func(t *testing.T) {
		post := &appbsky.FeedPost{Text: "checkin geo:51.93,4.49"}
		lat, lon, ok := extractGeo(post)
		require.True(t, ok)
		assert.Equal(t, 51.93, lat)
		assert.Equal(t, 4.49, lon)
	})

	t.Run("no reference anywhere", func(t *testing.T) {
		post := &appbsky.FeedPost{Text: "plain post", Tags: []string{"harbor"}}
		_, _, ok := extractGeo(post)
		assert.False(t, ok)
	})
}

func TestPostTitle(t *testing.T) {
	assert.Equal(t, "short post", postTitle("short  post"))
	assert.Equal(t, "a b c", postTitle("  a\nb\tc  "))
	assert.Equal(t, "", postTitle("   "))

	long := strings.Repeat("x", 80)
	title := postTitle(long)
	assert.Len(t, []rune(title), 60)
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestFeedRecords(t *testing.T) {
	t.Run("maps posts and skips reposts", func(t *testing.T) {
		feed := []*appbsky.FeedDefs_FeedViewPost{
			{Post: postView("tagged checkin", "geo:51.92,4.48")},
			{Post: postView("reposted elsewhere", "geo:1.0,2.0"),
				Reason: &appbsky.FeedDefs_FeedViewPost_Reason{}},
			nil,
			{Post: nil},
		}

		records := feedRecords(feed)
		require.Len(t, records, 1)
		assert.Equal(t, "tagged checkin", records[0]["name"])
		assert.Equal(t, 51.92, records[0]["lat"])
	})

	t.Run("record without a decoded post is skipped", func(t *testing.T) {
		feed := []*appbsky.FeedDefs_FeedViewPost{
			{Post: &appbsky.FeedDefs_PostView{Uri: "at://x", Cid: "c"}},
		}
		assert.Empty(t, feedRecords(feed))
	})

	t.Run("untagged post keeps its fields but no coordinates", func(t *testing.T) {
		records := feedRecords([]*appbsky.FeedDefs_FeedViewPost{
			{Post: postView("no location here")},
		})
		require.Len(t, records, 1)

		rec := records[0]
		assert.Equal(t, "no location here", rec["context"])
		assert.Equal(t, "2024-03-05T18:21:00Z", rec["timestamp"])
		assert.Equal(t, int64(3), rec["likes"])
		_, hasLat := rec["lat"]
		assert.False(t, hasLat)
	})
}
