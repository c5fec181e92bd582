package deepstate

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// nameSeparator splits the localized variants of a feature name:
// "<ukrainian>///<english>///<russian>".
const nameSeparator = "///"

// datePlaceholder is replaced by YYYYMMDD in file patterns.
const datePlaceholder = "{date}"

// Territory is one kept polygon with its English class name.
type Territory struct {
	Name    string
	Polygon orb.Polygon
}

// englishName returns the second ///-separated part of a feature name.
func englishName(raw string) (string, bool) {
	parts := strings.Split(raw, nameSeparator)
	if len(parts) < 2 {
		return "", false
	}
	name := strings.TrimSpace(parts[1])
	return name, name != ""
}

// Extract keeps Polygon features whose English name is in keep. Other
// geometry types (including MultiPolygon) and unnamed features are dropped.
func Extract(fc *geojson.FeatureCollection, keep []string) []Territory {
	if fc == nil {
		return nil
	}
	var out []Territory
	for _, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			continue
		}
		name, ok := englishName(f.Properties.MustString("name", ""))
		if !ok || !slices.Contains(keep, name) {
			continue
		}
		out = append(out, Territory{Name: name, Polygon: poly})
	}
	return out
}

// Render encodes territories as a FeatureCollection with a "name" property.
func Render(ts []Territory) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, t := range ts {
		f := geojson.NewFeature(t.Polygon)
		f.Properties["name"] = t.Name
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode feature collection: %w", err)
	}
	return data, nil
}

// OutputName expands {date} in pattern with day as YYYYMMDD.
func OutputName(pattern string, day time.Time) string {
	return strings.ReplaceAll(pattern, datePlaceholder, day.Format("20060102"))
}

// SnapshotDate recovers the date from a file name produced by pattern.
// Patterns without {date} never match.
func SnapshotDate(pattern, name string) (time.Time, bool) {
	prefix, suffix, ok := strings.Cut(pattern, datePlaceholder)
	if !ok || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	if len(prefix)+len(suffix) > len(name) {
		return time.Time{}, false
	}
	day, err := time.Parse("20060102", name[len(prefix):len(name)-len(suffix)])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
