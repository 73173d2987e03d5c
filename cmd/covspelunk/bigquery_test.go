package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/jupierce/covspelunk/pkg/store"
	"github.com/jupierce/covspelunk/pkg/trace"
)

func TestBuildTraceLineRows(t *testing.T) {
	tr, err := trace.Parse(strings.NewReader(
		"/repo/mod/a.c(10): int x;\n" +
			"/repo/mod/a.c(2): int y;\n" +
			"/repo/lib/b.c(99999999999999999999): huge\n"))
	require.NoError(t, err)

	run := store.Run{ID: "run-1", TracePath: "/logs/trace.log"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := buildTraceLineRows(run, tr, nil, now)
	require.Len(t, rows, 3)

	assert.Equal(t, TraceLineRow{
		IngestionTime: now,
		RunID:         "run-1",
		TracePath:     "/logs/trace.log",
		SourcePath:    "/repo/mod/a.c",
		LineNumber:    2,
		LineLabel:     "2",
		Code:          "int y;",
	}, rows[0])
	assert.EqualValues(t, 10, rows[1].LineNumber)
	assert.EqualValues(t, -1, rows[2].LineNumber)
	assert.Equal(t, "99999999999999999999", rows[2].LineLabel)

	filtered := buildTraceLineRows(run, tr, []string{"/repo/lib/*"}, now)
	require.Len(t, filtered, 1)
	assert.Equal(t, "/repo/lib/b.c", filtered[0].SourcePath)
}

func TestMatchesAnyGlob(t *testing.T) {
	assert.True(t, matchesAnyGlob("/repo/a.c", nil))
	assert.True(t, matchesAnyGlob("/repo/a.c", []string{"/other/*", "/repo/*.c"}))
	assert.False(t, matchesAnyGlob("/repo/sub/a.c", []string{"/repo/*.c"}))
}

func TestIsAlreadyExists(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict", &googleapi.Error{Code: http.StatusConflict, Message: "Already Exists: Dataset p:d"}, true},
		{"wrapped conflict", fmt.Errorf("create dataset: %w", &googleapi.Error{Code: http.StatusConflict}), true},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden, Message: "permission denied"}, false},
		{"untyped already exists", errors.New("Already Exists: Table p:d.trace_lines"), true},
		{"untyped 409 elsewhere in the text", errors.New("insert failed at row 409"), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isAlreadyExists(tc.err))
		})
	}
}
