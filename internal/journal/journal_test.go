package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipfile/internal/clipfmt"
	"go.klb.dev/clipfile/internal/fileop"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordOneRowPerResult(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	r := &fileop.Report{
		Intent: clipfmt.Cut,
		Dest:   "/dst",
		Results: []fileop.Result{
			{Op: fileop.OpMove, Source: "/src/a", Dest: "/dst"},
			{Op: fileop.OpMove, Source: "/src/b", Dest: "/dst", ExitCode: 1, Err: errors.New("mv: cannot stat")},
		},
	}
	at := time.UnixMilli(1_700_000_000_000)
	batch, err := db.record(ctx, r, at)
	require.NoError(t, err)
	require.NotEmpty(t, batch)

	entries, err := db.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first
	assert.Equal(t, "/src/b", entries[0].Source)
	assert.Equal(t, 1, entries[0].ExitCode)
	assert.Equal(t, "mv: cannot stat", entries[0].Error)
	assert.False(t, entries[0].OK())

	assert.Equal(t, "/src/a", entries[1].Source)
	assert.True(t, entries[1].OK())
	assert.Equal(t, fileop.OpMove, entries[1].Op)
	assert.Equal(t, "/dst", entries[1].Dest)

	for _, e := range entries {
		assert.Equal(t, batch, e.Batch)
		assert.True(t, at.Equal(e.At))
	}
}

func TestRecordBatchesAndLimit(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	for _, src := range []string{"/a", "/b", "/c"} {
		require.NoError(t, db.Record(ctx, &fileop.Report{
			Results: []fileop.Result{{Op: fileop.OpCopy, Source: src, Dest: "/d"}},
		}))
	}

	entries, err := db.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/c", entries[0].Source)
	assert.Equal(t, "/b", entries[1].Source)
	assert.NotEqual(t, entries[0].Batch, entries[1].Batch)
}

func TestRecordEmptyReport(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.Record(context.Background(), &fileop.Report{}))
	require.NoError(t, db.Record(context.Background(), nil))

	entries, err := db.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Record(context.Background(), &fileop.Report{
		Results: []fileop.Result{{Op: fileop.OpCopy, Source: "/a", Dest: "/d"}},
	}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	entries, err := db.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/state")
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/state", "clipfile", "journal.db"), p)
}
