package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/georefresh/internal/git"
	"github.com/zjrosen/georefresh/internal/presentation"
	"github.com/zjrosen/georefresh/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Long: `Show recorded runs for the current repository and branch, newest first.

Examples:
  georefresh history
  georefresh history --limit 50 --outcome failed
  georefresh history --git            # data commits on the branch instead
  georefresh history --json | jq '.[].outcome'`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "maximum number of entries")
	historyCmd.Flags().String("outcome", "", "only runs with this outcome: noop, committed or failed")
	historyCmd.Flags().Bool("git", false, "list commits on the branch instead of recorded runs")
	historyCmd.Flags().Bool("json", false, "print JSON")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	outcome, _ := cmd.Flags().GetString("outcome")
	fromGit, _ := cmd.Flags().GetBool("git")
	asJSON, _ := cmd.Flags().GetBool("json")

	cleanup, err := prepare()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	dir, err := repoDir(cfg)
	if err != nil {
		return err
	}
	executor := git.NewRealExecutor(dir)
	root, err := executor.GetRepoRoot(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}

	formatter := presentation.NewFormatter(cmd.OutOrStdout())

	if fromGit {
		commits, err := executor.GetCommitLog(ctx, "", limit)
		if err != nil {
			return err
		}
		dtos := presentation.FromCommits(commits)
		if asJSON {
			return formatter.FormatJSON(dtos)
		}
		return formatter.FormatCommits(dtos)
	}

	db, err := store.NewDB(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer func() { _ = db.Close() }()

	runs, err := db.RunRepository().List(ctx, store.ListFilter{
		Repo:    root,
		Branch:  cfg.Git.Branch,
		Outcome: outcome,
		Limit:   limit,
	})
	if err != nil {
		return err
	}
	dtos := presentation.FromRunRecords(runs)
	if asJSON {
		return formatter.FormatJSON(dtos)
	}
	return formatter.FormatRuns(dtos)
}
