// Package materialize writes per-file "lineno : code" listings from a
// parsed trace log.
package materialize

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"

	"github.com/jupierce/covspelunk/pkg/log"
	"github.com/jupierce/covspelunk/pkg/trace"
)

// Matches reports whether path is selected by filter. It is a plain
// substring test.
func Matches(path, filter string) bool {
	return strings.Contains(path, filter)
}

// RewritePath removes the first occurrence of filter from path, drops one
// leading separator and places the remainder under outputRoot.
func RewritePath(path, filter, outputRoot string) string {
	rel := strings.Replace(path, filter, "", 1)
	rel = strings.TrimPrefix(rel, "/")
	return filepath.Join(outputRoot, rel)
}

type Summary struct {
	Files   int
	Skipped int
	Lines   int
	Bytes   int64
}

func (s Summary) String() string {
	return fmt.Sprintf("%d files (%d skipped), %d lines, %s",
		s.Files, s.Skipped, s.Lines, humanize.Bytes(uint64(s.Bytes)))
}

type Materializer struct {
	outputRoot string
	log        *log.Logger
}

func New(outputRoot string, logger *log.Logger) *Materializer {
	return &Materializer{outputRoot: outputRoot, log: logger}
}

// Run writes one listing per traced path containing filter. Other paths are
// skipped without error.
func (m *Materializer) Run(t *trace.Trace, filter string) (Summary, error) {
	var sum Summary

	for _, f := range t.Files() {
		m.log.Debug("process %s, prefix %s", f.Path, filter)
		if !Matches(f.Path, filter) {
			sum.Skipped++
			continue
		}

		target := RewritePath(f.Path, filter, m.outputRoot)
		m.log.Info("handling %s", target)

		n, err := writeListing(target, f.Records)
		if err != nil {
			return sum, fmt.Errorf("materialize %s: %w", f.Path, err)
		}
		sum.Files++
		sum.Lines += len(f.Records)
		sum.Bytes += n
	}

	return sum, nil
}

func writeListing(path string, records []trace.Record) (n int64, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create listing: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	for _, r := range records {
		written, werr := fmt.Fprintf(w, "%s : %s\n", r.Line, r.Code)
		n += int64(written)
		if werr != nil {
			return n, werr
		}
	}
	return n, w.Flush()
}
