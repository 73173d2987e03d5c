// Package gcovhtml recovers source listings from gcov HTML coverage
// reports.
//
// Each source line of a report is a <span class="lineNum"> marker followed
// by a sibling carrying "<label>:<separator><code>". The extractor keeps
// everything after the separator.
package gcovhtml

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/multierr"
	"golang.org/x/net/html"
)

var (
	// ErrNoColon marks sibling text without a label separator.
	ErrNoColon = errors.New("no colon in line text")
	// ErrMissingSibling marks a lineNum marker with nothing after it.
	ErrMissingSibling = errors.New("marker has no sibling")
)

// Line is one extracted source line.
type Line struct {
	Text    string
	Missing bool
}

// ExtractLines returns one Line per lineNum marker, in document order.
func ExtractLines(r io.Reader) ([]Line, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var markers []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isMarker(n) {
			markers = append(markers, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	lines := make([]Line, 0, len(markers))
	for i, m := range markers {
		line, err := lineFor(Classify(m.NextSibling))
		if err != nil {
			return nil, fmt.Errorf("marker %d: %w", i+1, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func lineFor(s Sibling) (Line, error) {
	var raw string
	switch s := s.(type) {
	case Missing:
		return Line{Missing: true}, nil
	case TextContainer:
		raw = strippedText(s.Node)
	case LineBreak:
		raw = strings.TrimSpace(trailingText(s.Node))
	case Raw:
		raw = strings.TrimSpace(nodeString(s.Node))
	}

	text, err := afterLabel(raw)
	if err != nil {
		return Line{}, err
	}
	return Line{Text: text}, nil
}

// afterLabel drops everything up to the first colon plus the single
// separator character that follows it.
func afterLabel(s string) (string, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", fmt.Errorf("%w: %q", ErrNoColon, s)
	}
	rest := s[i+1:]
	if rest == "" {
		return "", nil
	}
	_, size := utf8.DecodeRuneInString(rest)
	return rest[size:], nil
}

// WriteLines writes lines to path, one per line, creating parent
// directories. A Missing line fails the write before anything is created.
func WriteLines(path string, lines []Line) (n int64, err error) {
	for i, l := range lines {
		if l.Missing {
			return 0, fmt.Errorf("line %d: %w", i+1, ErrMissingSibling)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create target directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create target file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	for _, l := range lines {
		written, werr := w.WriteString(l.Text + "\n")
		n += int64(written)
		if werr != nil {
			return n, fmt.Errorf("write %s: %w", path, werr)
		}
	}
	if err := w.Flush(); err != nil {
		return n, fmt.Errorf("flush %s: %w", path, err)
	}
	return n, nil
}
