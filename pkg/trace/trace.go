// Package trace parses trace logs whose lines carry "path(lineno): code"
// records and groups the records by source file.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
)

// recordPattern is matched in find-all mode against every log line. The
// path capture is lazy, so the first "(digits):" sequence ends it. The
// separator is any Unicode whitespace; line numbers are ASCII digits only.
var recordPattern = regexp.MustCompile(`(?P<path>.*?)\((?P<lineno>\d+)\):` + space + `(?P<code>.*)`)

// space matches one Unicode whitespace rune. RE2's \s is ASCII-only.
const space = `[\s\x{0b}\x{1c}-\x{1f}\x{85}\p{Z}]`

var (
	pathGroup   = recordPattern.SubexpIndex("path")
	linenoGroup = recordPattern.SubexpIndex("lineno")
	codeGroup   = recordPattern.SubexpIndex("code")
)

// Record is one traced source line. Line keeps the text form it was logged
// with.
type Record struct {
	Line string
	Code string
}

// File is every record logged for one source path.
type File struct {
	Path    string
	Records []Record
}

// HighlightSet holds line-number labels.
type HighlightSet map[string]struct{}

func (s HighlightSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Trace groups records by path, keeping paths in first-seen order.
type Trace struct {
	files []File
	index map[string]int
}

func New() *Trace {
	return &Trace{index: make(map[string]int)}
}

// Add appends r to the records of path. Call Normalize once done.
func (t *Trace) Add(path string, r Record) {
	i := t.ensure(path)
	t.files[i].Records = append(t.files[i].Records, r)
}

func (t *Trace) ensure(path string) int {
	i, ok := t.index[path]
	if !ok {
		i = len(t.files)
		t.index[path] = i
		t.files = append(t.files, File{Path: path})
	}
	return i
}

// Normalize drops duplicate records and orders each file by numeric line
// number. Records sharing a number but not the code are both kept.
func (t *Trace) Normalize() {
	for i := range t.files {
		recs := t.files[i].Records
		slices.SortFunc(recs, compareRecords)
		t.files[i].Records = slices.Compact(recs)
	}
}

func (t *Trace) Files() []File {
	return t.files
}

// Records returns the records of path, or nil when it was never logged.
func (t *Trace) Records(path string) []Record {
	i, ok := t.index[path]
	if !ok {
		return nil
	}
	return t.files[i].Records
}

// HighlightSet collects the line labels logged for path.
func (t *Trace) HighlightSet(path string) HighlightSet {
	set := make(HighlightSet)
	for _, r := range t.Records(path) {
		set[r.Line] = struct{}{}
	}
	return set
}

// Len is the total number of records across files.
func (t *Trace) Len() int {
	n := 0
	for _, f := range t.files {
		n += len(f.Records)
	}
	return n
}

// Parse reads a trace log. "\n", "\r\n" and a lone "\r" all end a line;
// lines without a record are skipped.
func Parse(r io.Reader) (*Trace, error) {
	t := New()
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadString('\n')
		for _, l := range splitLines(line) {
			for _, m := range recordPattern.FindAllStringSubmatch(l, -1) {
				t.Add(m[pathGroup], Record{Line: m[linenoGroup], Code: m[codeGroup]})
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read trace: %w", err)
		}
	}

	t.Normalize()
	return t, nil
}

// splitLines breaks s into lines ending in "\n", translating "\r\n" and
// "\r" terminators. The terminator stays on each line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

func compareRecords(a, b Record) int {
	if c := compareLineNumbers(a.Line, b.Line); c != 0 {
		return c
	}
	if c := strings.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	return strings.Compare(a.Code, b.Code)
}

// compareLineNumbers orders decimal strings by value without converting
// them, so arbitrarily long numbers cannot overflow.
func compareLineNumbers(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
