package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ArtifactStateRepository records what each path looked like when last
// published. It is informational; git HEAD stays the source of truth.
type ArtifactStateRepository interface {
	// Replace swaps the full state of repo/branch for states in one transaction.
	Replace(ctx context.Context, repo, branch string, states []ArtifactState) error
	List(ctx context.Context, repo, branch string) ([]ArtifactState, error)
}

type artifactStateRepository struct {
	db *sql.DB
}

func newArtifactStateRepository(db *sql.DB) *artifactStateRepository {
	return &artifactStateRepository{db: db}
}

var _ ArtifactStateRepository = (*artifactStateRepository)(nil)

func (r *artifactStateRepository) Replace(ctx context.Context, repo, branch string, states []ArtifactState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM artifact_states WHERE repo = ? AND branch = ?`, repo, branch); err != nil {
		return fmt.Errorf("failed to clear artifact states: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO artifact_states (repo, branch, path, hash, commit_hash, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range states {
		var runID *string
		if s.RunID != "" {
			runID = &s.RunID
		}
		if _, err := stmt.ExecContext(ctx, repo, branch, s.Path, s.Hash, s.CommitHash, runID, s.UpdatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert artifact state %s: %w", s.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artifact states: %w", err)
	}
	return nil
}

func (r *artifactStateRepository) List(ctx context.Context, repo, branch string) ([]ArtifactState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT path, hash, commit_hash, run_id, updated_at FROM artifact_states
		WHERE repo = ? AND branch = ? ORDER BY path`, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact states: %w", err)
	}
	defer rows.Close()

	var out []ArtifactState
	for rows.Next() {
		var (
			s       ArtifactState
			runID   *string
			updated int64
		)
		if err := rows.Scan(&s.Path, &s.Hash, &s.CommitHash, &runID, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan artifact state: %w", err)
		}
		if runID != nil {
			s.RunID = *runID
		}
		s.UpdatedAt = time.Unix(updated, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}
