package deepstate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/zjrosen/georefresh/internal/log"
)

// CSVHeader is the column order of the aggregated CSV.
var CSVHeader = []string{"date", "centroid_lat", "centroid_lon", "area", "geometry_wkt", "name"}

// Row is one polygon of one daily snapshot.
type Row struct {
	Date        string // YYYY-MM-DD
	CentroidLat float64
	CentroidLon float64
	Area        float64 // planar, in squared degrees
	WKT         string
	Name        string
}

func (r Row) field(column string) string {
	switch column {
	case "date":
		return r.Date
	case "centroid_lat":
		return formatFloat(r.CentroidLat)
	case "centroid_lon":
		return formatFloat(r.CentroidLon)
	case "area":
		return formatFloat(r.Area)
	case "geometry_wkt":
		return r.WKT
	case "name":
		return r.Name
	}
	return ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RowsFromFeatures converts every polygon in fc into a row. Multipolygons
// contribute one row per member polygon; other geometries are skipped.
func RowsFromFeatures(fc *geojson.FeatureCollection, date string) []Row {
	var rows []Row
	for _, f := range fc.Features {
		var polys []orb.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{g}
		case orb.MultiPolygon:
			polys = g
		default:
			continue
		}
		name := f.Properties.MustString("name", "")
		for _, p := range polys {
			centroid, area := planar.CentroidArea(p)
			rows = append(rows, Row{
				Date:        date,
				CentroidLat: centroid.Lat(),
				CentroidLon: centroid.Lon(),
				Area:        math.Abs(area),
				WKT:         wkt.MarshalString(p),
				Name:        name,
			})
		}
	}
	return rows
}

// UpdateCSV appends rows for every snapshot in dir whose date is not yet in
// the CSV at csvPath. It returns the number of rows added. The file is
// replaced atomically.
func UpdateCSV(dir, pattern, csvPath string) (int, error) {
	header, records, err := readCSV(csvPath)
	if err != nil {
		return 0, err
	}
	existing := existingDates(header, records)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".geojson" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var added []Row
	for _, name := range names {
		day, ok := SnapshotDate(pattern, name)
		if !ok {
			continue
		}
		date := day.Format("2006-01-02")
		if existing[date] {
			log.Debug(log.CatFetch, "skipping snapshot, already aggregated", "file", name)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", name, err)
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return 0, fmt.Errorf("decode %s: %w", name, err)
		}
		rows := RowsFromFeatures(fc, date)
		log.Info(log.CatFetch, "aggregating snapshot", "file", name, "rows", len(rows))
		added = append(added, rows...)
	}

	if len(added) == 0 {
		if header == nil {
			log.Warn(log.CatFetch, "no data found to create initial CSV", "path", csvPath)
		} else {
			log.Info(log.CatFetch, "no new data to add", "path", csvPath)
		}
		return 0, nil
	}

	if header == nil {
		header = CSVHeader
	}
	for _, r := range added {
		record := make([]string, len(header))
		for i, col := range header {
			record[i] = r.field(col)
		}
		records = append(records, record)
	}
	if err := writeCSV(csvPath, header, records); err != nil {
		return 0, err
	}
	log.Info(log.CatFetch, "updated aggregated CSV", "path", csvPath, "added", len(added))
	return len(added), nil
}

// readCSV returns a nil header when the file does not exist.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return header, records, nil
}

// existingDates collects the YYYY-MM-DD prefix of the date column.
func existingDates(header []string, records [][]string) map[string]bool {
	col := -1
	for i, h := range header {
		if h == "date" {
			col = i
			break
		}
	}
	dates := make(map[string]bool)
	if col < 0 {
		return dates
	}
	for _, rec := range records {
		if col < len(rec) && len(rec[col]) >= 10 {
			dates[rec[col][:10]] = true
		}
	}
	return dates
}

func writeCSV(path string, header []string, records [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".aggregate-*.csv")
	if err != nil {
		return fmt.Errorf("create temp csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
