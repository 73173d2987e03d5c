package main

import (
	"github.com/spf13/cobra"

	"github.com/jupierce/covspelunk/pkg/gcovhtml"
)

var (
	extractSourceRoot string
	extractTargetRoot string
	extractExt        string

	extractCmd = &cobra.Command{
		Use:   "extract",
		Short: "Recover plain source listings from gcov HTML reports",
		Long: `Walk the source root, convert every coverage report (files ending in the
report extension) into a plain-text listing of its source lines, and write it
under the target root at the same relative path with the extension removed.

A report whose line markup cannot be parsed stops the run.`,
		Example: `  # Convert preprocess_result/**.gcov.html into preprocess_code/
  covspelunk extract

  # Custom roots
  covspelunk extract --source-root reports/html --target-root reports/src`,
		Args: cobra.NoArgs,
		RunE: runExtract,
	}
)

func init() {
	extractCmd.Flags().StringVar(&extractSourceRoot, "source-root", "preprocess_result", "Directory tree holding the coverage reports")
	extractCmd.Flags().StringVar(&extractTargetRoot, "target-root", "preprocess_code", "Directory tree receiving the listings")
	extractCmd.Flags().StringVar(&extractExt, "ext", ".gcov.html", "Coverage report file extension")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ecfg := gcovhtml.Config{
		SourceRoot: stringFlag(cmd, "source-root", extractSourceRoot, cfg.Extract.SourceRoot),
		TargetRoot: stringFlag(cmd, "target-root", extractTargetRoot, cfg.Extract.TargetRoot),
		Ext:        stringFlag(cmd, "ext", extractExt, cfg.Extract.Ext),
	}

	logger.Progress("Extracting *%s from %s into %s", ecfg.Ext, ecfg.SourceRoot, ecfg.TargetRoot)

	sum, err := gcovhtml.NewExtractor(ecfg, logger).Run()
	if err != nil {
		return err
	}

	logger.Success("Extracted %s", sum)
	return nil
}
