package deepstate

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/georefresh/internal/testutil"
)

const pattern = "deepstatemap_data_{date}.geojson"

func squarePolygon(lon, lat, size float64) orb.Polygon {
	ring := make(orb.Ring, 0, 5)
	for _, p := range testutil.Square(lon, lat, size) {
		ring = append(ring, orb.Point{p[0], p[1]})
	}
	return orb.Polygon{ring}
}

func writeSnapshot(t *testing.T, dir, name string, ts ...Territory) {
	t.Helper()
	data, err := Render(ts)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func readRecords(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRowsFromFeatures(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	single := geojson.NewFeature(squarePolygon(0, 0, 2))
	single.Properties["name"] = "Occupied"
	multi := geojson.NewFeature(orb.MultiPolygon{squarePolygon(10, 10, 1), squarePolygon(20, 20, 1)})
	multi.Properties["name"] = "Occupied Crimea"
	fc.Append(single)
	fc.Append(multi)
	fc.Append(geojson.NewFeature(orb.Point{1, 1}))

	rows := RowsFromFeatures(fc, "2025-01-02")
	require.Len(t, rows, 3)

	require.Equal(t, "2025-01-02", rows[0].Date)
	require.InDelta(t, 1.0, rows[0].CentroidLat, 1e-9)
	require.InDelta(t, 1.0, rows[0].CentroidLon, 1e-9)
	require.InDelta(t, 4.0, rows[0].Area, 1e-9)
	require.True(t, strings.HasPrefix(rows[0].WKT, "POLYGON"), rows[0].WKT)
	require.Equal(t, "Occupied", rows[0].Name)

	require.Equal(t, "Occupied Crimea", rows[2].Name)
	require.InDelta(t, 20.5, rows[2].CentroidLon, 1e-9)
}

func TestUpdateCSV_CreatesThenSkipsKnownDates(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "aggregated_deepstatemap.csv")
	writeSnapshot(t, dir, "deepstatemap_data_20250101.geojson",
		Territory{Name: "Occupied", Polygon: squarePolygon(30, 45, 1)},
		Territory{Name: "Occupied Crimea", Polygon: squarePolygon(33, 44, 1)})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.geojson"), []byte("not parsed"), 0o644))

	added, err := UpdateCSV(dir, pattern, csvPath)
	require.NoError(t, err)
	require.Equal(t, 2, added)

	records := readRecords(t, csvPath)
	require.Equal(t, CSVHeader, records[0])
	require.Len(t, records, 3)
	require.Equal(t, "2025-01-01", records[1][0])
	require.Equal(t, "Occupied", records[1][5])

	// Same inputs again: nothing new.
	added, err = UpdateCSV(dir, pattern, csvPath)
	require.NoError(t, err)
	require.Zero(t, added)
	require.Len(t, readRecords(t, csvPath), 3)

	writeSnapshot(t, dir, "deepstatemap_data_20250102.geojson",
		Territory{Name: "Occupied", Polygon: squarePolygon(30, 45, 2)})
	added, err = UpdateCSV(dir, pattern, csvPath)
	require.NoError(t, err)
	require.Equal(t, 1, added)

	records = readRecords(t, csvPath)
	require.Len(t, records, 4)
	require.Equal(t, "2025-01-02", records[3][0])
}

func TestUpdateCSV_NoDataNoFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "agg.csv")

	added, err := UpdateCSV(dir, pattern, csvPath)
	require.NoError(t, err)
	require.Zero(t, added)
	_, err = os.Stat(csvPath)
	require.True(t, os.IsNotExist(err))
}

func TestUpdateCSV_RespectsExistingColumnOrder(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "agg.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,date\nOccupied,2024-12-31 00:00:00\n"), 0o644))
	writeSnapshot(t, dir, "deepstatemap_data_20241231.geojson", Territory{Name: "Occupied", Polygon: squarePolygon(0, 0, 1)})
	writeSnapshot(t, dir, "deepstatemap_data_20250101.geojson", Territory{Name: "Occupied", Polygon: squarePolygon(0, 0, 1)})

	added, err := UpdateCSV(dir, pattern, csvPath)
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Equal(t, [][]string{
		{"name", "date"},
		{"Occupied", "2024-12-31 00:00:00"},
		{"Occupied", "2025-01-01"},
	}, readRecords(t, csvPath))
}
