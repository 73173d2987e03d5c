package main

import (
	"github.com/spf13/cobra"

	"github.com/jupierce/covspelunk/pkg/materialize"
)

var (
	materializeOutputRoot string
	materializeFromIndex  bool

	materializeCmd = &cobra.Command{
		Use:   "materialize <trace-log> <filter>",
		Short: "Write per-file \"lineno : code\" listings from a trace log",
		Long: `Parse a trace log of "path(lineno): code" records and, for every traced
path containing <filter>, write the path's records as "lineno : code" lines.

The output path is the traced path with the first occurrence of <filter>
removed (and one leading "/" dropped), placed under the output root. The
output root defaults to the directory holding the covspelunk binary.`,
		Example: `  # Listings for everything under /repo/mod, next to the binary
  covspelunk materialize trace.log /repo/mod

  # Into a chosen directory
  covspelunk materialize trace.log /repo/mod --output-root ./listings`,
		Args: cobra.ExactArgs(2),
		RunE: runMaterialize,
	}
)

func init() {
	materializeCmd.Flags().StringVar(&materializeOutputRoot, "output-root", "", "Directory receiving the listings (defaults to the binary's directory)")
	materializeCmd.Flags().BoolVar(&materializeFromIndex, "from-index", false, "Read records from the trace index instead of parsing the log")

	rootCmd.AddCommand(materializeCmd)
}

func runMaterialize(cmd *cobra.Command, args []string) error {
	tracePath, filter := args[0], args[1]

	outputRoot := stringFlag(cmd, "output-root", materializeOutputRoot, cfg.Trace.OutputRoot)
	if outputRoot == "" {
		dir, err := executableDir()
		if err != nil {
			return err
		}
		outputRoot = dir
	}

	t, err := loadTrace(cmd.Context(), tracePath, materializeFromIndex)
	if err != nil {
		return err
	}
	logger.Debug("Parsed %d records across %d files", t.Len(), len(t.Files()))

	sum, err := materialize.New(outputRoot, logger).Run(t, filter)
	if err != nil {
		return err
	}

	logger.Success("Materialized %s into %s", sum, outputRoot)
	return nil
}
