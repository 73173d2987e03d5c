package gcovhtml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestTargetPath(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		want    string
		wantErr bool
	}{
		{
			name: "nested report",
			src:  "preprocess_result/clang/lib/Basic/Sanitizers.cpp.gcov.html",
			want: filepath.Join("preprocess_code", "clang", "lib", "Basic", "Sanitizers.cpp"),
		},
		{
			name: "top level report",
			src:  "preprocess_result/main.c.gcov.html",
			want: filepath.Join("preprocess_code", "main.c"),
		},
		{
			name:    "outside source root",
			src:     "elsewhere/main.c.gcov.html",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TargetPath(tc.src, "preprocess_result", "preprocess_code", ".gcov.html")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractorRun(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "html")
	dst := filepath.Join(root, "code")

	writeFile(t, filepath.Join(src, "lib", "a.c.gcov.html"),
		`<span class="lineNum">1</span><span>1: int a;</span><span class="lineNum">2</span><span>2: int b;</span>`)
	writeFile(t, filepath.Join(src, "b.h.gcov.html"),
		`<span class="lineNum">1</span><span>1: #pragma once</span>`)
	writeFile(t, filepath.Join(src, "index.html"), `<span class="lineNum">1</span><span>1: skipped</span>`)

	e := NewExtractor(Config{SourceRoot: src, TargetRoot: dst, Ext: ".gcov.html"}, nil)
	sum, err := e.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Reports)
	assert.Equal(t, 3, sum.Lines)
	assert.EqualValues(t, len("int a;\nint b;\n#pragma once\n"), sum.Bytes)

	data, err := os.ReadFile(filepath.Join(dst, "lib", "a.c"))
	require.NoError(t, err)
	assert.Equal(t, "int a;\nint b;\n", string(data))

	data, err = os.ReadFile(filepath.Join(dst, "b.h"))
	require.NoError(t, err)
	assert.Equal(t, "#pragma once\n", string(data))

	_, err = os.Stat(filepath.Join(dst, "index.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractorRunStopsOnMalformedReport(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "html")

	writeFile(t, filepath.Join(src, "a.c.gcov.html"), `<span class="lineNum">1</span><span>no label</span>`)

	e := NewExtractor(Config{SourceRoot: src, TargetRoot: filepath.Join(root, "code"), Ext: ".gcov.html"}, nil)
	_, err := e.Run()
	require.ErrorIs(t, err, ErrNoColon)
	assert.Contains(t, err.Error(), "a.c.gcov.html")
}

func TestExtractorRunMissingRoot(t *testing.T) {
	e := NewExtractor(Config{SourceRoot: filepath.Join(t.TempDir(), "absent"), TargetRoot: "x", Ext: ".gcov.html"}, nil)
	_, err := e.Run()
	assert.Error(t, err)
}

func TestSummaryString(t *testing.T) {
	s := Summary{Reports: 2, Lines: 10, Bytes: 2048}
	assert.Equal(t, "2 reports, 10 lines, 2.0 kB", s.String())
}
