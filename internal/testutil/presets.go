package testutil

import (
	"encoding/json"
	"fmt"
)

// Square returns a closed counter-clockwise ring of side size with its
// lower-left corner at (lon, lat).
func Square(lon, lat, size float64) [][2]float64 {
	return [][2]float64{
		{lon, lat},
		{lon + size, lat},
		{lon + size, lat + size},
		{lon, lat + size},
		{lon, lat},
	}
}

// PolygonFeature renders a GeoJSON Feature with one exterior ring.
func PolygonFeature(name string, ring [][2]float64) string {
	return feature(name, "Polygon", [][][2]float64{ring})
}

// PointFeature renders a GeoJSON Point Feature.
func PointFeature(name string, lon, lat float64) string {
	return feature(name, "Point", [2]float64{lon, lat})
}

func feature(name, geomType string, coords any) string {
	f := map[string]any{
		"type":       "Feature",
		"properties": map[string]any{"name": name},
		"geometry":   map[string]any{"type": geomType, "coordinates": coords},
	}
	b, err := json.Marshal(f)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal feature: %v", err))
	}
	return string(b)
}

// FeatureCollection wraps pre-rendered features.
func FeatureCollection(features ...string) string {
	raw := make([]json.RawMessage, len(features))
	for i, f := range features {
		raw[i] = json.RawMessage(f)
	}
	b, err := json.Marshal(map[string]any{"type": "FeatureCollection", "features": raw})
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal collection: %v", err))
	}
	return string(b)
}

// DeepStateName builds the multi-language name the live map uses:
// "<ukrainian>///<english>///<russian>".
func DeepStateName(english string) string {
	return "Окуповано///" + english + "///Оккупировано"
}

// DeepStateResponse renders an API payload with features under "map".
func DeepStateResponse(features ...string) string {
	return fmt.Sprintf(`{"id":1700000000,"datetime":"2025-01-01T00:00:00Z","map":%s}`, FeatureCollection(features...))
}

// StandardDeepStateResponse is a payload with two kept polygons and three
// features the transformer must drop (a point, an unlisted name, a name
// without the english part).
func StandardDeepStateResponse() string {
	return DeepStateResponse(
		PolygonFeature(DeepStateName("Occupied"), Square(30, 45, 1)),
		PolygonFeature(DeepStateName("Occupied Crimea"), Square(33, 44, 2)),
		PointFeature(DeepStateName("Occupied"), 31, 46),
		PolygonFeature(DeepStateName("Liberated"), Square(35, 47, 1)),
		PolygonFeature("no separators", Square(36, 48, 1)),
	)
}
