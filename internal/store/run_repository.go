package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunRepository persists run records.
type RunRepository interface {
	// Save inserts the run or replaces the row with the same ID.
	Save(ctx context.Context, r *RunRecord) error
	Get(ctx context.Context, id string) (*RunRecord, error)
	// List returns runs for repo/branch, newest first. Empty repo lists all.
	List(ctx context.Context, f ListFilter) ([]*RunRecord, error)
}

// ListFilter narrows List.
type ListFilter struct {
	Repo    string
	Branch  string
	Outcome string
	Limit   int // <= 0 means 20
}

// runColumns is the list of columns to select for run queries.
const runColumns = `id, repo, branch, trigger_source, transformer, state, outcome, base_revision,
	commit_hash, candidate_hash, summary, error, started_at, finished_at`

// runRepository implements RunRepository using SQLite.
type runRepository struct {
	db *sql.DB
}

func newRunRepository(db *sql.DB) *runRepository {
	return &runRepository{db: db}
}

var _ RunRepository = (*runRepository)(nil)

func scanRun(scanner interface{ Scan(...any) error }) (*RunModel, error) {
	var m RunModel
	err := scanner.Scan(
		&m.ID, &m.Repo, &m.Branch, &m.Trigger, &m.Transformer, &m.State, &m.Outcome, &m.BaseRevision,
		&m.CommitHash, &m.CandidateHash, &m.Summary, &m.Error, &m.StartedAt, &m.FinishedAt,
	)
	return &m, err
}

func (r *runRepository) Save(ctx context.Context, rec *RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run id is required")
	}
	m := toRunModel(rec)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			transformer = excluded.transformer, state = excluded.state, outcome = excluded.outcome,
			base_revision = excluded.base_revision, commit_hash = excluded.commit_hash,
			candidate_hash = excluded.candidate_hash, summary = excluded.summary,
			error = excluded.error, finished_at = excluded.finished_at`,
		m.ID, m.Repo, m.Branch, m.Trigger, m.Transformer, m.State, m.Outcome, m.BaseRevision,
		m.CommitHash, m.CandidateHash, m.Summary, m.Error, m.StartedAt, m.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (r *runRepository) Get(ctx context.Context, id string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	m, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return m.toRecord(), nil
}

func (r *runRepository) List(ctx context.Context, f ListFilter) ([]*RunRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	var args []any
	if f.Repo != "" {
		query += ` AND repo = ?`
		args = append(args, f.Repo)
	}
	if f.Branch != "" {
		query += ` AND branch = ?`
		args = append(args, f.Branch)
	}
	if f.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, f.Outcome)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		m, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, m.toRecord())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return out, nil
}
