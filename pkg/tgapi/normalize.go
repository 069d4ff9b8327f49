package tgapi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	defaultTitle  = "Unknown title"
	defaultArtist = "Unknown artist"
)

// Alternate field names used by different backend revisions, in order of
// preference.
var (
	idKeys      = []string{"id", "trackId", "_id"}
	titleKeys   = []string{"title", "name"}
	artistKeys  = []string{"artist", "artist_name", "author"}
	artworkKeys = []string{"cover_url", "artwork", "cover", "image"}
)

// NormalizeTrack converts a raw backend record into a Track, tolerating
// alternate field names and filling safe defaults. The returned Track has an
// empty ID when the record carries none.
func NormalizeTrack(raw map[string]interface{}) Track {
	t := Track{
		ID:         idString(first(raw, idKeys)),
		Title:      pick(first(raw, titleKeys), defaultTitle),
		Artist:     pick(first(raw, artistKeys), defaultArtist),
		ArtworkURL: pick(first(raw, artworkKeys), ""),
	}
	if secs, ok := seconds(raw["duration"]); ok && secs > 0 {
		t.Duration = time.Duration(secs * float64(time.Second))
	}
	return t
}

// NormalizeTracks normalizes every record and drops those without an id.
func NormalizeTracks(raw []map[string]interface{}) []Track {
	tracks := lo.Map(raw, func(r map[string]interface{}, _ int) Track {
		return NormalizeTrack(r)
	})
	return lo.Filter(tracks, func(t Track, _ int) bool {
		return t.ID != ""
	})
}

// decodeTrackList accepts either a bare JSON array or an object wrapping
// the array under items, tracks or results.
func decodeTrackList(body json.RawMessage) ([]Track, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []map[string]interface{}
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("failed to parse track list: %w", err)
		}
		return NormalizeTracks(items), nil
	}

	var wrapper struct {
		Items   []map[string]interface{} `json:"items"`
		Tracks  []map[string]interface{} `json:"tracks"`
		Results []map[string]interface{} `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse track list: %w", err)
	}

	switch {
	case wrapper.Items != nil:
		return NormalizeTracks(wrapper.Items), nil
	case wrapper.Tracks != nil:
		return NormalizeTracks(wrapper.Tracks), nil
	default:
		return NormalizeTracks(wrapper.Results), nil
	}
}

func first(raw map[string]interface{}, keys []string) interface{} {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// pick returns v when it is a non-blank string, fallback otherwise.
func pick(v interface{}, fallback string) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		if id == math.Trunc(id) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// seconds reads a duration given as a number or a numeric string.
func seconds(v interface{}) (float64, bool) {
	switch d := v.(type) {
	case float64:
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, false
		}
		return d, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil {
			return 0, false
		}
		return float64(n), true
	default:
		return 0, false
	}
}
