package deepstate

import (
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/georefresh/internal/testutil"
)

func TestEnglishName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"Окуповано///Occupied///Оккупировано", "Occupied", true},
		{"a/// CADR and CALR ///b", "CADR and CALR", true},
		{"a///Occupied Crimea", "Occupied Crimea", true},
		{"no separator", "", false},
		{"a///   ///b", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := englishName(tc.raw)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestExtract(t *testing.T) {
	snap, err := decodeSnapshot([]byte(testutil.StandardDeepStateResponse()))
	require.NoError(t, err)

	got := Extract(snap.Map, []string{"CADR and CALR", "Occupied", "Occupied Crimea"})
	require.Len(t, got, 2)
	require.Equal(t, "Occupied", got[0].Name)
	require.Equal(t, "Occupied Crimea", got[1].Name)
	require.Len(t, got[0].Polygon[0], 5)

	require.Empty(t, Extract(nil, []string{"Occupied"}))
}

func TestExtract_DropsThirdDimension(t *testing.T) {
	payload := `{"map":{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"x///Occupied///y"},
		"geometry":{"type":"Polygon","coordinates":[[[30,45,100],[31,45,100],[31,46,100],[30,45,100]]]}}]}}`
	snap, err := decodeSnapshot([]byte(payload))
	require.NoError(t, err)

	got := Extract(snap.Map, []string{"Occupied"})
	require.Len(t, got, 1)
	require.Equal(t, 31.0, got[0].Polygon[0][1].Lon())
	require.Equal(t, 45.0, got[0].Polygon[0][1].Lat())
}

func TestRender(t *testing.T) {
	data, err := Render([]Territory{{Name: "Occupied", Polygon: squarePolygon(30, 45, 1)}})
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	require.Equal(t, "Occupied", fc.Features[0].Properties.MustString("name"))
	require.Equal(t, "Polygon", fc.Features[0].Geometry.GeoJSONType())
}

func TestOutputNameAndSnapshotDate(t *testing.T) {
	day := time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC)
	pattern := "deepstatemap_data_{date}.geojson"

	name := OutputName(pattern, day)
	require.Equal(t, "deepstatemap_data_20250309.geojson", name)

	got, ok := SnapshotDate(pattern, name)
	require.True(t, ok)
	require.Equal(t, "2025-03-09", got.Format("2006-01-02"))

	for _, bad := range []string{"deepstatemap_data_2025.geojson", "other_20250309.geojson", "deepstatemap_data_.geojson", "x"} {
		_, ok := SnapshotDate(pattern, bad)
		require.False(t, ok, bad)
	}

	_, ok = SnapshotDate("fixed.geojson", "fixed.geojson")
	require.False(t, ok, "patterns without {date} carry no date")
}
