package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tempTree creates files under a fresh temp dir and returns the canonical
// dir path (macOS puts TempDir behind a /private symlink).
func tempTree(t *testing.T, names ...string) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
	}
	return dir
}

func TestResolve(t *testing.T) {
	dir := tempTree(t, "a.txt", "sub/b.txt", "with space.txt", "a?b+c")
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link")))

	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"absolute", filepath.Join(dir, "a.txt"), filepath.Join(dir, "a.txt"), true},
		{"dotdot", filepath.Join(dir, "sub", "..", "a.txt"), filepath.Join(dir, "a.txt"), true},
		{"symlink", filepath.Join(dir, "link"), filepath.Join(dir, "a.txt"), true},
		{"file scheme", "file://" + filepath.Join(dir, "a.txt"), filepath.Join(dir, "a.txt"), true},
		{"localhost", "file://localhost" + filepath.Join(dir, "a.txt"), filepath.Join(dir, "a.txt"), true},
		{"escaped uri", URI(filepath.Join(dir, "with space.txt")), filepath.Join(dir, "with space.txt"), true},
		{"raw uri with space", "file://" + filepath.Join(dir, "with space.txt"), filepath.Join(dir, "with space.txt"), true},
		{"raw uri with query and plus", "file://" + filepath.Join(dir, "a?b+c"), filepath.Join(dir, "a?b+c"), true},
		{"escaped uri with plus", URI(filepath.Join(dir, "a?b+c")), filepath.Join(dir, "a?b+c"), true},
		{"directory", filepath.Join(dir, "sub"), filepath.Join(dir, "sub"), true},
		{"missing", filepath.Join(dir, "missing.txt"), "", false},
		{"remote host", "file://elsewhere" + filepath.Join(dir, "a.txt"), "", false},
		{"empty", "", "", false},
		{"bare scheme", "file://", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRelative(t *testing.T) {
	dir := tempTree(t, "a.txt")
	t.Chdir(dir)

	got, ok := Resolve("a.txt")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "a.txt"), got)
}

func TestBuildKeepsOrderAndDropsMissing(t *testing.T) {
	dir := tempTree(t, "a.txt", "b.txt")
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	m := Build([]string{b, filepath.Join(dir, "missing.txt"), a, b})

	assert.Equal(t, []string{b, a, b}, m.Paths())
	assert.Equal(t, 3, m.Len())
}

func TestEncode(t *testing.T) {
	dir := tempTree(t, "a.txt", "missing-later.txt")
	a := filepath.Join(dir, "a.txt")

	t.Run("single", func(t *testing.T) {
		m := Build([]string{a, filepath.Join(dir, "missing.txt")})
		require.Equal(t, 1, m.Len())
		assert.Equal(t, "file://"+a, m.Encode())
	})

	t.Run("empty", func(t *testing.T) {
		var m Manifest
		assert.Equal(t, "", m.Encode())
		assert.True(t, Decode(m.Encode()).Empty())
	})

	t.Run("no trailing newline", func(t *testing.T) {
		m := Build([]string{a, a})
		assert.Equal(t, "file://"+a+"\nfile://"+a, m.Encode())
	})
}

func TestDecodeRoundTrip(t *testing.T) {
	dir := tempTree(t, "a.txt", "b c.txt", "100%.txt", "what?.txt", "sub/d.txt")
	m := Build([]string{
		filepath.Join(dir, "sub"),
		filepath.Join(dir, "b c.txt"),
		filepath.Join(dir, "100%.txt"),
		filepath.Join(dir, "what?.txt"),
		filepath.Join(dir, "a.txt"),
	})
	require.Equal(t, 5, m.Len())

	got := Decode(m.Encode())
	assert.True(t, m.Equal(got), "got %v", got.Paths())
}

func TestDecodeNewlineInName(t *testing.T) {
	dir := tempTree(t, "two\nlines.txt")
	m := Build([]string{filepath.Join(dir, "two\nlines.txt")})
	require.Equal(t, 1, m.Len())

	assert.NotContains(t, m.Encode(), "\n")
	assert.True(t, m.Equal(Decode(m.Encode())))
}

func TestDecodeShrinksWhenFilesVanish(t *testing.T) {
	dir := tempTree(t, "a.txt", "b.txt")
	m := Build([]string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")})
	body := m.Encode()

	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))

	assert.Equal(t, []string{filepath.Join(dir, "b.txt")}, Decode(body).Paths())
}

func TestDecodeTolerance(t *testing.T) {
	dir := tempTree(t, "a.txt", "b.txt")
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	body := "# comment\r\nfile://" + a + "\r\n\r\nfile://" + b + "\n"
	assert.Equal(t, []string{a, b}, Decode(body).Paths())
}
