package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jupierce/covspelunk/pkg/store"
	"github.com/jupierce/covspelunk/pkg/trace"
)

// indexKey is the path a trace log is indexed under.
func indexKey(tracePath string) (string, error) {
	abs, err := filepath.Abs(tracePath)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", tracePath, err)
	}
	return abs, nil
}

// loadTrace parses the trace log, or reads its indexed records when
// fromIndex is set.
func loadTrace(ctx context.Context, tracePath string, fromIndex bool) (*trace.Trace, error) {
	if !fromIndex {
		logger.Progress("Parsing trace log %s", tracePath)
		return trace.ParseFile(tracePath)
	}

	key, err := indexKey(tracePath)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Index.DB)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	run, err := s.RunFor(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s is not in %s; run 'covspelunk index %s' first", tracePath, cfg.Index.DB, tracePath)
	}
	if err != nil {
		return nil, err
	}

	logger.Progress("Loading run %s (%d records) from %s", run.ID, run.RecordCount, cfg.Index.DB)
	return s.LoadTrace(ctx, run.ID)
}
