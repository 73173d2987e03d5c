package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jupierce/covspelunk/pkg/store"
	"github.com/jupierce/covspelunk/pkg/trace"
)

var (
	indexForce bool

	indexCmd = &cobra.Command{
		Use:   "index <trace-log>",
		Short: "Store a parsed trace log in the SQLite trace index",
		Long: `Parse a trace log and store its records in the SQLite index (--db).

Change detection uses the MD5 hash of the log. An unchanged log is not
re-indexed unless --force is given. Re-indexing replaces the previous run of
the same log. Indexed logs can be reused with --from-index and exported with
'bigquery ingest'.`,
		Example: `  # Index a trace log
  covspelunk index trace.log

  # Force re-indexing into a specific database
  covspelunk index trace.log --db traces.db --force`,
		Args: cobra.ExactArgs(1),
		RunE: runIndex,
	}
)

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Re-index even when the log is unchanged")

	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tracePath := args[0]

	key, err := indexKey(tracePath)
	if err != nil {
		return err
	}

	inputHash, err := store.HashFile(tracePath)
	if err != nil {
		return fmt.Errorf("hash trace log: %w", err)
	}

	s, err := store.Open(cfg.Index.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	existing, err := s.RunFor(ctx, key)
	switch {
	case err == nil && existing.InputHash == inputHash && !indexForce:
		logger.Info("%s is unchanged since run %s, skipping (use --force to re-index)", tracePath, existing.ID)
		return nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	logger.Progress("Parsing trace log %s", tracePath)
	t, err := trace.ParseFile(tracePath)
	if err != nil {
		return err
	}

	run, err := s.SaveRun(ctx, key, inputHash, t)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	logger.Success("Indexed %d records from %d files as run %s in %s", run.RecordCount, len(t.Files()), run.ID, cfg.Index.DB)
	return nil
}
