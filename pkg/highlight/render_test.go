package highlight

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/covspelunk/pkg/trace"
)

const source = "#include <stdio.h>\nint main() {\n  if (a && b) return 1;\n  return 0;\n}\n"

func TestRender(t *testing.T) {
	set := trace.HighlightSet{"2": {}, "4": {}, "99": {}}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "main.c", strings.NewReader(source), set))
	out := buf.String()

	assert.Contains(t, out, `<tr><td class="line-num" id="L1">1</td><td class="line-content">#include &lt;stdio.h&gt;</td></tr>`)
	assert.Contains(t, out, `<tr class="hit"><td class="line-num" id="L2">2</td><td class="line-content">int main() {</td></tr>`)
	assert.Contains(t, out, `<tr><td class="line-num" id="L3">3</td><td class="line-content">  if (a &amp;&amp; b) return 1;</td></tr>`)
	assert.Contains(t, out, `<tr class="hit"><td class="line-num" id="L4">4</td>`)
	assert.Contains(t, out, `<tr><td class="line-num" id="L5">5</td>`)
	assert.NotContains(t, out, `id="L6"`)
	assert.Contains(t, out, "2 of 5 lines highlighted")
	assert.Equal(t, 2, strings.Count(out, `<tr class="hit">`))
}

func TestRenderIsReproducible(t *testing.T) {
	set := trace.HighlightSet{"1": {}, "3": {}}

	var first, second bytes.Buffer
	require.NoError(t, Render(&first, "main.c", strings.NewReader(source), set))
	require.NoError(t, Render(&second, "main.c", strings.NewReader(source), set))

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestRenderLastLineWithoutNewline(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "x", strings.NewReader("a\r\nb"), nil))

	out := buf.String()
	assert.Contains(t, out, `id="L1">1</td><td class="line-content">a</td>`)
	assert.Contains(t, out, `id="L2">2</td><td class="line-content">b</td>`)
	assert.Contains(t, out, "0 of 2 lines highlighted")
}

func TestRenderEmptySource(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "empty.c", strings.NewReader(""), nil))
	assert.NotContains(t, buf.String(), "<tr")
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "/src/proj/foo.c.html", OutputPath("/src/proj/foo.c"))
}

func TestRendererRun(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "proj", "main.c")
	other := filepath.Join(dir, "vendor", "lib.c")
	require.NoError(t, os.MkdirAll(filepath.Dir(kept), 0755))
	require.NoError(t, os.MkdirAll(filepath.Dir(other), 0755))
	require.NoError(t, os.WriteFile(kept, []byte(source), 0644))
	require.NoError(t, os.WriteFile(other, []byte("int lib;\n"), 0644))

	log := kept + "(2): int main() {\n" +
		kept + "(4): return 0;\n" +
		other + "(1): int lib;\n"
	tr, err := trace.Parse(strings.NewReader(log))
	require.NoError(t, err)

	sum, err := NewRenderer(nil).Run(tr, "proj")
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 1, Skipped: 1}, sum)

	data, err := os.ReadFile(kept + ".html")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), `<tr class="hit">`))

	_, err = os.Stat(other + ".html")
	assert.True(t, os.IsNotExist(err))

	// A second run overwrites with identical bytes.
	_, err = NewRenderer(nil).Run(tr, "proj")
	require.NoError(t, err)
	again, err := os.ReadFile(kept + ".html")
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRendererRunMissingSource(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "proj", "gone.c")
	tr, err := trace.Parse(strings.NewReader(missing + "(1): x\n"))
	require.NoError(t, err)

	_, err = NewRenderer(nil).Run(tr, "proj")
	assert.Error(t, err)
}

func TestRendererRunProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com\n\ngo 1.22\n"), 0644))
	src := filepath.Join(dir, "pkg", "a.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	require.NoError(t, os.WriteFile(src, []byte("package pkg\n\nfunc A() int { return 1 }\n"), 0644))

	profile := filepath.Join(dir, "cover.out")
	require.NoError(t, os.WriteFile(profile, []byte("mode: set\n"+
		"example.com/pkg/a.go:3.14,3.26 1 1\n"+
		"example.com/gen/b.go:1.1,1.2 1 1\n"+
		"other.org/x/c.go:1.1,1.2 1 1\n"), 0644))

	tr, err := trace.ParseProfileFile(profile)
	require.NoError(t, err)
	ps, err := trace.NewProfileSource(dir, "")
	require.NoError(t, err)

	sum, err := NewRenderer(nil).WithSourceResolver(ps.Resolve).Run(tr, "example.com")
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 1, Skipped: 1, Missing: 1}, sum)

	data, err := os.ReadFile(src + ".html")
	require.NoError(t, err)
	out := string(data)
	assert.Equal(t, 1, strings.Count(out, `<tr class="hit">`))
	assert.Contains(t, out, `<tr class="hit"><td class="line-num" id="L3">3</td>`)
}
