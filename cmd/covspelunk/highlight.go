package main

import (
	"github.com/spf13/cobra"

	"github.com/jupierce/covspelunk/pkg/highlight"
	"github.com/jupierce/covspelunk/pkg/trace"
)

var (
	highlightProfile   bool
	highlightFromIndex bool
	highlightSourceDir string
	highlightModule    string

	highlightCmd = &cobra.Command{
		Use:   "highlight <trace-log> <filter>",
		Short: "Render traced source files as HTML with traced lines highlighted",
		Long: `Parse a trace log and, for every traced path containing <filter>, read the
original source file from that path and render it as a self-contained HTML
table. Lines whose number was traced are highlighted.

Each rendering is written next to its source as <path>.html, overwriting any
previous rendering. Unlike materialize, the output root is not applied.

With --profile the first argument is a Go coverage profile
("go test -coverprofile") and executed lines are highlighted instead. Profile
file names are import paths: the module prefix (--module, or the module
directive of --source-dir/go.mod) is stripped and the rest is read from
--source-dir. Files that cannot be found there are skipped.`,
		Example: `  # Highlight traced lines of everything under /repo/mod
  covspelunk highlight trace.log /repo/mod

  # Highlight executed lines from a Go coverage profile
  covspelunk highlight --profile cover.out example.com/pkg --source-dir ~/src/pkg`,
		Args: cobra.ExactArgs(2),
		RunE: runHighlight,
	}
)

func init() {
	highlightCmd.Flags().BoolVar(&highlightProfile, "profile", false, "Treat the first argument as a Go coverage profile")
	highlightCmd.Flags().BoolVar(&highlightFromIndex, "from-index", false, "Read records from the trace index instead of parsing the log")
	highlightCmd.Flags().StringVar(&highlightSourceDir, "source-dir", ".", "Module checkout holding the profiled sources (with --profile)")
	highlightCmd.Flags().StringVar(&highlightModule, "module", "", "Module path stripped from profile file names (defaults to --source-dir/go.mod)")
	highlightCmd.MarkFlagsMutuallyExclusive("profile", "from-index")

	rootCmd.AddCommand(highlightCmd)
}

func runHighlight(cmd *cobra.Command, args []string) error {
	inputPath, filter := args[0], args[1]

	renderer := highlight.NewRenderer(logger)

	var (
		t   *trace.Trace
		err error
	)
	if highlightProfile {
		var src trace.ProfileSource
		src, err = trace.NewProfileSource(highlightSourceDir, highlightModule)
		if err != nil {
			return err
		}
		logger.Debug("Resolving module %q under %s", src.Module, src.Dir)
		renderer.WithSourceResolver(src.Resolve)

		logger.Progress("Parsing coverage profile %s", inputPath)
		t, err = trace.ParseProfileFile(inputPath)
	} else {
		t, err = loadTrace(cmd.Context(), inputPath, highlightFromIndex)
	}
	if err != nil {
		return err
	}

	sum, err := renderer.Run(t, filter)
	if err != nil {
		return err
	}

	logger.Success("Rendered %d files (%d skipped, %d without source)", sum.Files, sum.Skipped, sum.Missing)
	return nil
}
