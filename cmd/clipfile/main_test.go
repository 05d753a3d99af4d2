package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipfile/internal/clip"
	"go.klb.dev/clipfile/internal/clipfmt"
	"go.klb.dev/clipfile/internal/fileop"
	"go.klb.dev/clipfile/internal/ipc"
	"go.klb.dev/clipfile/internal/journal"
	"go.klb.dev/clipfile/internal/manifest"
	"go.klb.dev/clipfile/internal/message"
	"go.klb.dev/clipfile/internal/session"
)

// execute runs the CLI and returns stdout, stderr and the exit status.
func execute(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// isolate keeps config files, the control socket and the journal inside
// the test's temporary directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	sockDir, err := os.MkdirTemp("", "cf")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })
	t.Setenv("CLIPFILE_SOCKET", filepath.Join(sockDir, "c.sock"))
	return home
}

func TestUnknownAction(t *testing.T) {
	isolate(t)
	for _, args := range [][]string{
		{},
		{"somefile"},
		{"--copy", "--cut", "a"},
	} {
		out, _, code := execute(t, args...)
		assert.Equal(t, "Unknown action\n", out, args)
		assert.Equal(t, exitError, code, args)
	}
}

func TestIncorrectPaths(t *testing.T) {
	isolate(t)
	for _, args := range [][]string{
		{"copy", "/no/such/file", "--backend", "memory"},
		{"cut", "--backend", "memory"},
		{"--copy", "/no/such/file", "--backend", "memory"},
	} {
		out, _, code := execute(t, args...)
		assert.Equal(t, "Incorrect paths\n", out, args)
		assert.Equal(t, exitError, code, args)
	}
}

func TestCheckEmptyClipboard(t *testing.T) {
	isolate(t)
	for _, args := range [][]string{
		{"check", "--backend", "memory"},
		{"--check", "--backend", "memory"},
	} {
		out, _, code := execute(t, args...)
		assert.Equal(t, "0\n", out, args)
		assert.Equal(t, exitOK, code, args)
	}
}

func TestBackendFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("CLIPFILE_BACKEND", "carrier-pigeon")
	out, errOut, code := execute(t, "check")
	assert.Empty(t, out)
	assert.Contains(t, errOut, `unknown clipboard backend "carrier-pigeon"`)
	assert.Equal(t, exitError, code)
}

func TestBackendFromConfigFile(t *testing.T) {
	home := isolate(t)
	cfg := filepath.Join(home, "clipfile.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("backend = \"memory\"\n"), 0o644))

	out, _, code := execute(t, "check", "--config", cfg)
	assert.Equal(t, "0\n", out)
	assert.Equal(t, exitOK, code)
}

func TestPasteDestination(t *testing.T) {
	home := isolate(t)
	file := filepath.Join(home, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	for _, args := range [][]string{
		{"paste", "/no/such/dir", "--backend", "memory"},
		{"paste", file, "--backend", "memory"},
		{"--paste", "/no/such/dir", "--backend", "memory"},
	} {
		out, _, code := execute(t, args...)
		assert.Equal(t, "Incorrect destination\n", out, args)
		assert.Equal(t, exitError, code, args)
	}

	out, _, code := execute(t, "paste", home, "--backend", "memory", "--executor", "teleport")
	assert.Equal(t, "Unknown executor \"teleport\"\n", out)
	assert.Equal(t, exitError, code)
}

func TestPasteNothingOffered(t *testing.T) {
	home := isolate(t)
	out, _, code := execute(t, "paste", home, "--backend", "memory")
	assert.Empty(t, out)
	assert.Equal(t, exitOK, code)
}

func TestDestinationDefaultsToWorkingDir(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	t.Chdir(dir)

	got, err := destination(nil)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	got, err = destination([]string{manifest.URI(dir)})
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestVersion(t *testing.T) {
	out, _, code := execute(t, "version")
	assert.Equal(t, "clipfile dev\n", out)
	assert.Equal(t, exitOK, code)
}

func TestStatusAndReleaseWithoutOffer(t *testing.T) {
	isolate(t)

	out, _, code := execute(t, "status")
	assert.Equal(t, "No files on offer.\n", out)
	assert.Equal(t, exitOK, code)

	out, _, code = execute(t, "status", "--json")
	assert.Equal(t, "null\n", out)
	assert.Equal(t, exitOK, code)

	out, _, code = execute(t, "release")
	assert.Equal(t, "No files on offer.\n", out)
	assert.Equal(t, exitOK, code)
}

func TestStatusIgnoresStaleSocket(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(os.Getenv("CLIPFILE_SOCKET"), nil, 0o600))

	out, _, code := execute(t, "status")
	assert.Equal(t, "No files on offer.\n", out)
	assert.Equal(t, exitOK, code)

	out, _, code = execute(t, "release")
	assert.Equal(t, "No files on offer.\n", out)
	assert.Equal(t, exitOK, code)
}

// serveOffer runs a cut of paths on a private board and its control socket,
// the way runOffer does.
func serveOffer(t *testing.T, paths []string) <-chan error {
	t.Helper()
	b := clip.NewBoard()
	src, err := session.NewSource(b.Client("source"), clipfmt.Cut, manifest.Build(paths))
	require.NoError(t, err)

	ctx, release := context.WithCancel(context.Background())
	t.Cleanup(release)
	l, err := ipc.Listen()
	require.NoError(t, err)
	go func() { _ = ipc.Serve(ctx, l, offerHandler(src, release)) }()

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()
	require.Eventually(t, func() bool { return b.Owner() == "source" }, time.Second, time.Millisecond)
	return done
}

func TestStatusAndReleaseOfRunningOffer(t *testing.T) {
	home := isolate(t)
	a := filepath.Join(home, "a file")
	require.NoError(t, os.WriteFile(a, nil, 0o644))
	a, err := filepath.EvalSymlinks(a)
	require.NoError(t, err)
	done := serveOffer(t, []string{a})

	out, _, code := execute(t, "status")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Intent:")
	assert.Contains(t, out, "cut")
	assert.Contains(t, out, "  "+a+"\n")

	out, _, code = execute(t, "status", "--json")
	require.Equal(t, exitOK, code)
	var st message.OfferStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, []string{a}, st.Paths)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "offering", st.State)

	out, _, code = execute(t, "release")
	assert.Equal(t, "Released.\n", out)
	assert.Equal(t, exitOK, code)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("offer kept running after release")
	}
}

func TestHistory(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "journal.db")

	out, _, code := execute(t, "history", "--journal", path)
	assert.Equal(t, "No pastes recorded.\n", out)
	assert.Equal(t, exitOK, code)

	db, err := journal.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Record(context.Background(), &fileop.Report{
		Intent: clipfmt.Copy,
		Dest:   "/dst",
		Results: []fileop.Result{
			{Op: fileop.OpCopy, Source: "/src/a", Dest: "/dst"},
			{Op: fileop.OpCopy, Source: "/src/b", Dest: "/dst", ExitCode: 1, Err: assert.AnError},
		},
	}))
	require.NoError(t, db.Close())

	out, _, code = execute(t, "history", "--journal", path)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "WHEN")
	assert.Contains(t, out, "/src/a")
	assert.Contains(t, out, "exit 1")

	out, _, code = execute(t, "history", "--journal", path, "--json", "--limit", "1")
	require.Equal(t, exitOK, code)
	var list []historyEntry
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "/src/b", list[0].Source)
	assert.Equal(t, 1, list[0].ExitCode)

	out, _, code = execute(t, "history", "--journal", path, "--limit", "0")
	assert.Equal(t, "Incorrect limit\n", out)
	assert.Equal(t, exitError, code)
}

func TestFailedOpsError(t *testing.T) {
	err := &failedOpsError{failed: 1, total: 3, err: assert.AnError}
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "1 of 3 file operations failed")
}
