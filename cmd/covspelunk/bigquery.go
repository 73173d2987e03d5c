package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/spf13/cobra"
	"google.golang.org/api/googleapi"

	"github.com/jupierce/covspelunk/pkg/store"
	"github.com/jupierce/covspelunk/pkg/trace"
)

// BigQuery command flags
var (
	bqProject   string
	bqDataset   string
	bqPathGlobs []string
)

const traceLinesTable = "trace_lines"

// TraceLineRow is one trace record as stored in BigQuery.
type TraceLineRow struct {
	IngestionTime time.Time `bigquery:"ingestion_time"`
	RunID         string    `bigquery:"run_id"`
	TracePath     string    `bigquery:"trace_path"`
	SourcePath    string    `bigquery:"source_path"`
	LineNumber    int64     `bigquery:"line_number"`
	LineLabel     string    `bigquery:"line_label"`
	Code          string    `bigquery:"code"`
}

var bigqueryCmd = &cobra.Command{
	Use:   "bigquery",
	Short: "BigQuery operations",
	Long:  `Export indexed trace records to Google BigQuery for cross-log analysis.`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest indexed trace records into BigQuery",
	Long: `Ingest the latest run of every trace log in the SQLite index (--db) into
BigQuery.

Creates the trace_lines table (one row per trace record) in the specified
dataset. The dataset and table are created if they don't exist.`,
	Example: `  # Ingest everything in trace.db
  covspelunk bigquery --project my-project --dataset my_dataset ingest

  # Ingest only records of matching source paths
  covspelunk bigquery --project my-project --dataset my_dataset ingest \
    --path-glob '/repo/mod/*' --path-glob '/repo/lib/*.c'`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	bigqueryCmd.PersistentFlags().StringVar(&bqProject, "project", "", "GCP project ID (required)")
	bigqueryCmd.PersistentFlags().StringVar(&bqDataset, "dataset", "", "BigQuery dataset name (required)")
	bigqueryCmd.MarkPersistentFlagRequired("project")
	bigqueryCmd.MarkPersistentFlagRequired("dataset")

	ingestCmd.Flags().StringArrayVar(&bqPathGlobs, "path-glob", nil, "Source path glob patterns (repeatable, OR logic; all paths when omitted)")

	bigqueryCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(bigqueryCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ingestionTime := time.Now().UTC()

	logger.Info("Ingesting trace index: %s", cfg.Index.DB)
	logger.Info("BigQuery target: %s.%s", bqProject, bqDataset)
	logger.Info("Ingestion time: %s", ingestionTime.Format(time.RFC3339))

	s, err := store.Open(cfg.Index.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.Runs(ctx)
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	if len(runs) == 0 {
		logger.Warning("No indexed trace logs in %s", cfg.Index.DB)
		return nil
	}
	logger.Info("Loaded %d runs from index", len(runs))

	client, err := bigquery.NewClient(ctx, bqProject)
	if err != nil {
		return fmt.Errorf("create BigQuery client: %w", err)
	}
	defer client.Close()

	if err := ensureBQDatasetAndTable(ctx, client); err != nil {
		return fmt.Errorf("setup BigQuery: %w", err)
	}

	inserter := client.Dataset(bqDataset).Table(traceLinesTable).Inserter()

	var total, failed int
	for i, run := range runs {
		logger.Progress("[%d/%d] %s (%d records)", i+1, len(runs), run.TracePath, run.RecordCount)

		t, err := s.LoadTrace(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("load run %s: %w", run.ID, err)
		}

		rows := buildTraceLineRows(run, t, bqPathGlobs, ingestionTime)

		const batchSize = 500
		for start := 0; start < len(rows); start += batchSize {
			end := start + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			batch := make([]*TraceLineRow, 0, end-start)
			for j := start; j < end; j++ {
				batch = append(batch, &rows[j])
			}
			if err := inserter.Put(ctx, batch); err != nil {
				logger.Warning("batch insert failed at offset %d: %v", start, err)
				failed += len(batch)
				continue
			}
			total += len(batch)
		}
	}

	logger.Success("Ingestion complete: %d trace_lines rows (%d failed)", total, failed)
	return nil
}

// buildTraceLineRows flattens a run into rows, keeping only source paths
// matching one of globs. Labels that do not fit an int64 get line number -1.
func buildTraceLineRows(run store.Run, t *trace.Trace, globs []string, ingestionTime time.Time) []TraceLineRow {
	var rows []TraceLineRow
	for _, f := range t.Files() {
		if !matchesAnyGlob(f.Path, globs) {
			continue
		}
		for _, r := range f.Records {
			num, err := strconv.ParseInt(r.Line, 10, 64)
			if err != nil {
				num = -1
			}
			rows = append(rows, TraceLineRow{
				IngestionTime: ingestionTime,
				RunID:         run.ID,
				TracePath:     run.TracePath,
				SourcePath:    f.Path,
				LineNumber:    num,
				LineLabel:     r.Line,
				Code:          r.Code,
			})
		}
	}
	return rows
}

// matchesAnyGlob returns true if value matches any of the glob patterns (OR
// logic). No patterns match everything.
func matchesAnyGlob(value string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matched, _ := filepath.Match(p, value); matched {
			return true
		}
	}
	return false
}

// isAlreadyExists reports a 409 Conflict from the BigQuery API. Errors that
// are not *googleapi.Error fall back to the message text.
func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusConflict
	}
	msg := err.Error()
	return strings.Contains(msg, "Already Exists") ||
		strings.Contains(msg, "alreadyExists")
}

// ensureBQDatasetAndTable creates the dataset and table if they don't exist.
func ensureBQDatasetAndTable(ctx context.Context, client *bigquery.Client) error {
	dataset := client.Dataset(bqDataset)

	if err := dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("create dataset: %w", err)
		}
	} else {
		logger.Info("Created dataset %s.%s", bqProject, bqDataset)
	}

	schema := bigquery.Schema{
		{Name: "ingestion_time", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "run_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "trace_path", Type: bigquery.StringFieldType, Required: true},
		{Name: "source_path", Type: bigquery.StringFieldType, Required: true},
		{Name: "line_number", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "line_label", Type: bigquery.StringFieldType, Required: true},
		{Name: "code", Type: bigquery.StringFieldType},
	}

	table := dataset.Table(traceLinesTable)
	if err := table.Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Field: "ingestion_time",
		},
		Clustering: &bigquery.Clustering{
			Fields: []string{"run_id", "source_path"},
		},
	}); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("create %s table: %w", traceLinesTable, err)
		}
	} else {
		logger.Info("Created table %s", traceLinesTable)
	}

	return nil
}
