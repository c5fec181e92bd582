package deepstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/georefresh/internal/log"
)

// ErrNoTerritories is returned when the map has no kept polygons, which
// means the upstream format changed rather than that the data did.
var ErrNoTerritories = errors.New("no matching polygons in map")

// Options configures where and what the transformer writes.
type Options struct {
	OutputDir   string   // relative to the work dir
	FilePattern string   // e.g. deepstatemap_data_{date}.geojson
	CSVName     string   // empty disables aggregation
	Names       []string // English class names to keep
	Now         func() time.Time
}

// Transformer writes the daily snapshot and refreshes the aggregate CSV.
type Transformer struct {
	client *Client
	opts   Options
}

// NewTransformer creates a transformer that fetches through client.
func NewTransformer(client *Client, opts Options) *Transformer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Transformer{client: client, opts: opts}
}

// Name returns "deepstate".
func (t *Transformer) Name() string {
	return "deepstate"
}

// Prepare has nothing to install.
func (t *Transformer) Prepare(context.Context) error {
	if t.client == nil {
		return fmt.Errorf("deepstate: no client configured")
	}
	return nil
}

// Transform fetches the latest map and writes the snapshot for today.
func (t *Transformer) Transform(ctx context.Context, workDir string) error {
	dir := filepath.Join(workDir, filepath.FromSlash(t.opts.OutputDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	snap, err := t.client.FetchLatest(ctx)
	if err != nil {
		return err
	}

	territories := Extract(snap.Map, t.opts.Names)
	if len(territories) == 0 {
		return fmt.Errorf("%w (kept names: %v)", ErrNoTerritories, t.opts.Names)
	}
	data, err := Render(territories)
	if err != nil {
		return err
	}

	out := filepath.Join(dir, OutputName(t.opts.FilePattern, t.opts.Now()))
	if err := writeFileAtomic(out, data); err != nil {
		return err
	}
	log.Info(log.CatFetch, "wrote snapshot", "path", out, "polygons", len(territories))

	if t.opts.CSVName == "" {
		return nil
	}
	if _, err := UpdateCSV(dir, t.opts.FilePattern, filepath.Join(dir, t.opts.CSVName)); err != nil {
		return fmt.Errorf("aggregate csv: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
