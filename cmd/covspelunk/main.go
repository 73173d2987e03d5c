package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jupierce/covspelunk/pkg/config"
	"github.com/jupierce/covspelunk/pkg/log"
)

var (
	// Global flags
	configPath string
	verbosity  string
	logDir     string
	dbPath     string

	// Set up before any subcommand runs
	cfg    *config.Config
	logger *log.Logger

	// Root command
	rootCmd = &cobra.Command{
		Use:   "covspelunk",
		Short: "Turn gcov HTML reports and trace logs back into source listings",
		Long: `covspelunk is a set of batch tools for digging through compiler
coverage artifacts. It recovers plain source from gcov HTML reports, rebuilds
per-file listings from "path(line): code" trace logs, and re-renders traced
source files as HTML with the traced lines highlighted.

Settings come from --config (YAML), COVSPELUNK_* environment variables and
command flags, in increasing order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&verbosity, "verbosity", "info", "Log verbosity (error, info, debug, trace)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for a per-run log file (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "trace.db", "SQLite trace index used by index, --from-index and bigquery")
}

// setup loads configuration, applies explicitly set global flags on top of
// it and creates the logger.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("verbosity") {
		c.Verbosity = verbosity
	}
	if flags.Changed("log-dir") {
		c.LogDir = logDir
	}
	if flags.Changed("db") {
		c.Index.DB = dbPath
	}

	level, err := log.ParseLevel(c.Verbosity)
	if err != nil {
		return err
	}

	l, err := log.New(level, c.LogDir)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	cfg = c
	logger = l
	return nil
}

// stringFlag returns the flag value when it was set on the command line and
// fallback otherwise.
func stringFlag(cmd *cobra.Command, name, value, fallback string) string {
	if cmd.Flags().Changed(name) {
		return value
	}
	return fallback
}

// executableDir is the directory holding the running binary.
func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
