// Package store indexes parsed trace logs in a SQLite database so they can
// be re-materialized or exported without re-reading the log.
package store

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jupierce/covspelunk/pkg/trace"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// insertBatch bounds the rows per INSERT so the statement stays under the
// SQLite variable limit.
const insertBatch = 500

var ErrNotFound = errors.New("run not found")

// Run describes one indexed trace log.
type Run struct {
	ID          string `db:"id"`
	TracePath   string `db:"trace_path"`
	InputHash   string `db:"input_hash"`
	IngestedAt  string `db:"ingested_at"`
	RecordCount int    `db:"record_count"`
}

// IngestedTime parses IngestedAt.
func (r Run) IngestedTime() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.IngestedAt)
}

type Store struct {
	db  *sqlx.DB
	sq  sq.StatementBuilderType
	now func() time.Time
}

// Open opens or creates the database at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

		CREATE TABLE IF NOT EXISTS trace_runs (
			id           TEXT PRIMARY KEY,
			trace_path   TEXT NOT NULL UNIQUE,
			input_hash   TEXT NOT NULL,
			ingested_at  TEXT NOT NULL,
			record_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS trace_records (
			run_id     TEXT NOT NULL REFERENCES trace_runs(id) ON DELETE CASCADE,
			seq        INTEGER NOT NULL,
			path       TEXT NOT NULL,
			line_label TEXT NOT NULL,
			code       TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_trace_records_path ON trace_records(run_id, path);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM schema_version"); err != nil {
		return err
	}
	if count == 0 {
		_, err = db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		return err
	}

	var current int
	if err := db.Get(&current, "SELECT version FROM schema_version"); err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, schemaVersion)
	}
	return nil
}

// SaveRun stores t as the run for tracePath, replacing any earlier run of
// the same log.
func (s *Store) SaveRun(ctx context.Context, tracePath, inputHash string, t *trace.Trace) (Run, error) {
	run := Run{
		ID:          uuid.NewString(),
		TracePath:   tracePath,
		InputHash:   inputHash,
		IngestedAt:  s.now().Format(time.RFC3339Nano),
		RecordCount: t.Len(),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	del, args, err := s.sq.Delete("trace_runs").Where(sq.Eq{"trace_path": tracePath}).ToSql()
	if err != nil {
		return Run{}, err
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return Run{}, fmt.Errorf("delete previous run: %w", err)
	}

	ins, args, err := s.sq.Insert("trace_runs").
		Columns("id", "trace_path", "input_hash", "ingested_at", "record_count").
		Values(run.ID, run.TracePath, run.InputHash, run.IngestedAt, run.RecordCount).
		ToSql()
	if err != nil {
		return Run{}, err
	}
	if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	if err := s.insertRecords(ctx, tx, run.ID, t); err != nil {
		return Run{}, err
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

func (s *Store) insertRecords(ctx context.Context, tx *sqlx.Tx, runID string, t *trace.Trace) error {
	builder := s.newRecordInsert()
	pending := 0
	seq := 0

	flush := func() error {
		if pending == 0 {
			return nil
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
		builder = s.newRecordInsert()
		pending = 0
		return nil
	}

	for _, f := range t.Files() {
		for _, r := range f.Records {
			builder = builder.Values(runID, seq, f.Path, r.Line, r.Code)
			seq++
			pending++
			if pending == insertBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func (s *Store) newRecordInsert() sq.InsertBuilder {
	return s.sq.Insert("trace_records").Columns("run_id", "seq", "path", "line_label", "code")
}

func (s *Store) runQuery() sq.SelectBuilder {
	return s.sq.Select("id", "trace_path", "input_hash", "ingested_at", "record_count").From("trace_runs")
}

// RunFor returns the run indexed for tracePath, or ErrNotFound.
func (s *Store) RunFor(ctx context.Context, tracePath string) (Run, error) {
	query, args, err := s.runQuery().Where(sq.Eq{"trace_path": tracePath}).ToSql()
	if err != nil {
		return Run{}, err
	}

	var run Run
	if err := s.db.GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%s: %w", tracePath, ErrNotFound)
		}
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// Runs lists every indexed run ordered by trace path.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	query, args, err := s.runQuery().OrderBy("trace_path").ToSql()
	if err != nil {
		return nil, err
	}

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return runs, nil
}

// LoadTrace rebuilds the trace stored under runID.
func (s *Store) LoadTrace(ctx context.Context, runID string) (*trace.Trace, error) {
	query, args, err := s.sq.Select("path", "line_label", "code").
		From("trace_records").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	t := trace.New()
	for rows.Next() {
		var path string
		var r trace.Record
		if err := rows.Scan(&path, &r.Line, &r.Code); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		t.Add(path, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	t.Normalize()
	return t, nil
}

// HashFile returns the hex MD5 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
