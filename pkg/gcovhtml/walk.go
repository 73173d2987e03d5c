package gcovhtml

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jupierce/covspelunk/pkg/log"
)

// Config names the directory trees the extractor reads and writes.
type Config struct {
	SourceRoot string
	TargetRoot string
	Ext        string
}

// Summary totals one extraction run.
type Summary struct {
	Reports int
	Lines   int
	Bytes   int64
}

func (s Summary) String() string {
	return fmt.Sprintf("%d reports, %d lines, %s", s.Reports, s.Lines, humanize.Bytes(uint64(s.Bytes)))
}

// Extractor mirrors a tree of coverage reports as plain source listings.
type Extractor struct {
	cfg Config
	log *log.Logger
}

func NewExtractor(cfg Config, logger *log.Logger) *Extractor {
	return &Extractor{cfg: cfg, log: logger}
}

// Run converts every report under the source root. Reports are visited in
// lexical order and the first failure stops the run.
func (e *Extractor) Run() (Summary, error) {
	var sum Summary

	err := filepath.WalkDir(e.cfg.SourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), e.cfg.Ext) {
			return nil
		}

		target, err := TargetPath(path, e.cfg.SourceRoot, e.cfg.TargetRoot, e.cfg.Ext)
		if err != nil {
			return err
		}

		lines, n, err := e.ExtractFile(path, target)
		if err != nil {
			return err
		}
		sum.Reports++
		sum.Lines += lines
		sum.Bytes += n
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("extract %s: %w", e.cfg.SourceRoot, err)
	}
	return sum, nil
}

// ExtractFile converts a single report at src into the listing at dst.
func (e *Extractor) ExtractFile(src, dst string) (int, int64, error) {
	e.log.Info("process %s", src)

	f, err := os.Open(src)
	if err != nil {
		return 0, 0, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	lines, err := ExtractLines(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", src, err)
	}

	n, err := WriteLines(dst, lines)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", src, err)
	}
	e.log.Debug("  wrote %d lines to %s", len(lines), dst)
	return len(lines), n, nil
}

// TargetPath maps a report path under sourceRoot onto targetRoot and strips
// the report extension.
func TargetPath(src, sourceRoot, targetRoot, ext string) (string, error) {
	rel, err := filepath.Rel(sourceRoot, src)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", src, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", src, sourceRoot)
	}
	return filepath.Join(targetRoot, strings.TrimSuffix(rel, ext)), nil
}
