package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/covspelunk/pkg/trace"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func parse(t *testing.T, log string) *trace.Trace {
	t.Helper()
	tr, err := trace.Parse(strings.NewReader(log))
	require.NoError(t, err)
	return tr
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tr := parse(t, "/b.c(10): y\n/a.c(2): x\n/b.c(3): z\n/b.c(3): zz\n")

	run, err := s.SaveRun(ctx, "trace.log", "abc", tr)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 4, run.RecordCount)
	_, err = run.IngestedTime()
	assert.NoError(t, err)

	got, err := s.RunFor(ctx, "trace.log")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	loaded, err := s.LoadTrace(ctx, run.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(tr.Files(), loaded.Files()); diff != "" {
		t.Errorf("LoadTrace() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRunReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.SaveRun(ctx, "trace.log", "h1", parse(t, "/a.c(1): x\n"))
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, "trace.log", "h2", parse(t, "/a.c(2): y\n"))
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, "other.log", "h3", parse(t, "/c.c(1): z\n"))
	require.NoError(t, err)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "other.log", runs[0].TracePath)
	assert.Equal(t, second.ID, runs[1].ID)
	assert.Equal(t, "h2", runs[1].InputHash)

	old, err := s.LoadTrace(ctx, first.ID)
	require.NoError(t, err)
	assert.Zero(t, old.Len())
}

func TestSaveRunManyRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var b strings.Builder
	for i := 1; i <= insertBatch*2+7; i++ {
		fmt.Fprintf(&b, "/big.c(%d): line %d\n", i, i)
	}
	tr := parse(t, b.String())

	run, err := s.SaveRun(ctx, "big.log", "h", tr)
	require.NoError(t, err)

	loaded, err := s.LoadTrace(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, insertBatch*2+7, loaded.Len())
	assert.Equal(t, tr.Records("/big.c"), loaded.Records("/big.c"))
}

func TestRunForNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.RunFor(context.Background(), "absent.log")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trace.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, "trace.log", "h", parse(t, "/a.c(1): x\n"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.RunFor(ctx, "trace.log")
	require.NoError(t, err)
	assert.Equal(t, 1, run.RecordCount)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	sum, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)

	_, err = HashFile(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
