// Package highlight re-renders source files as standalone HTML tables with
// traced lines highlighted.
package highlight

import (
	"bufio"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/jupierce/covspelunk/pkg/log"
	"github.com/jupierce/covspelunk/pkg/materialize"
	"github.com/jupierce/covspelunk/pkg/trace"
)

// row is one source line of the rendered table.
type row struct {
	Num         int
	Code        string
	Highlighted bool
}

var pageTemplate = template.Must(template.New("source").Parse(sourceTemplate))

// Render writes src as an HTML table. A line is highlighted when its
// 1-based number, in decimal, is in set. The output depends only on the
// arguments.
func Render(w io.Writer, title string, src io.Reader, set trace.HighlightSet) error {
	lines, err := readLines(src)
	if err != nil {
		return err
	}

	rows := make([]row, len(lines))
	hits := 0
	for i, l := range lines {
		num := i + 1
		rows[i] = row{Num: num, Code: l, Highlighted: set.Has(strconv.Itoa(num))}
		if rows[i].Highlighted {
			hits++
		}
	}

	data := struct {
		Title string
		Rows  []row
		Total int
		Hits  int
	}{
		Title: title,
		Rows:  rows,
		Total: len(rows),
		Hits:  hits,
	}

	if err := pageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}
	return nil
}

// OutputPath is where the rendering of path is written: next to the source,
// with ".html" appended.
func OutputPath(path string) string {
	return path + ".html"
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			lines = append(lines, line)
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
	}
}

type Summary struct {
	Files   int
	Skipped int
	Missing int
}

type Renderer struct {
	log     *log.Logger
	resolve func(string) string
}

func NewRenderer(logger *log.Logger) *Renderer {
	return &Renderer{log: logger}
}

// WithSourceResolver makes Run read each traced path from resolve(path)
// and skip paths whose resolved source does not exist.
func (r *Renderer) WithSourceResolver(resolve func(string) string) *Renderer {
	r.resolve = resolve
	return r
}

// Run renders every traced path containing filter, reading the source from
// the traced path itself unless a resolver is set. Existing output is
// overwritten.
func (r *Renderer) Run(t *trace.Trace, filter string) (Summary, error) {
	var sum Summary

	for _, f := range t.Files() {
		r.log.Debug("process %s, prefix %s", f.Path, filter)
		if !materialize.Matches(f.Path, filter) {
			sum.Skipped++
			continue
		}

		src := f.Path
		if r.resolve != nil {
			src = r.resolve(f.Path)
			if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
				r.log.Warning("no source for %s at %s, skipping", f.Path, src)
				sum.Missing++
				continue
			}
		}

		out := OutputPath(src)
		r.log.Info("handling %s", out)
		if err := r.renderFile(src, out, t.HighlightSet(f.Path)); err != nil {
			return sum, fmt.Errorf("highlight %s: %w", f.Path, err)
		}
		sum.Files++
	}

	return sum, nil
}

func (r *Renderer) renderFile(src, dst string, set trace.HighlightSet) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	w := bufio.NewWriter(out)
	if err := Render(w, src, in, set); err != nil {
		return err
	}
	return w.Flush()
}

const sourceTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #f5f5f5;
            margin: 20px;
        }

        .header {
            color: #333;
            margin-bottom: 12px;
        }

        .header .subtitle {
            color: #666;
            font-size: 13px;
        }

        table.source-code {
            border-collapse: collapse;
            background: white;
            font-family: 'SF Mono', Monaco, 'Cascadia Code', monospace;
            font-size: 12px;
        }

        td.line-num {
            color: #999;
            text-align: right;
            padding: 0 10px;
            border-right: 1px solid #ddd;
            user-select: none;
        }

        td.line-content {
            white-space: pre;
            padding: 0 10px;
        }

        tr.hit td {
            background: #fff3a8;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Title}}</h1>
        <div class="subtitle">{{.Hits}} of {{.Total}} lines highlighted</div>
    </div>
    <table class="source-code"><tbody>
{{range .Rows}}<tr{{if .Highlighted}} class="hit"{{end}}><td class="line-num" id="L{{.Num}}">{{.Num}}</td><td class="line-content">{{.Code}}</td></tr>
{{end}}</tbody></table>
</body>
</html>
`
