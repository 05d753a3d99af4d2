package clipfmt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipfile/internal/manifest"
)

func fixture(t *testing.T, names ...string) (string, manifest.Manifest) {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, nil, 0o644))
		paths = append(paths, p)
	}
	return dir, manifest.Build(paths)
}

func TestRender(t *testing.T) {
	dir, m := fixture(t, "a.txt")
	a := filepath.Join(dir, "a.txt")

	tests := []struct {
		name   string
		intent Intent
		format Format
		want   string
		ok     bool
	}{
		{"native copy", Copy, FormatNative, "copy\nfile://" + a, true},
		{"native cut", Cut, FormatNative, "cut\nfile://" + a, true},
		{"uri list", Cut, FormatURIList, "file://" + a, true},
		{"utf8", Cut, FormatText, "file://" + a, true},
		{"text/plain alias", Copy, "text/plain;charset=utf-8", "file://" + a, true},
		{"unknown", Copy, "image/png", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := NewOffer(tt.intent, m).Render(tt.format)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.format, p.Format)
			assert.Equal(t, tt.want, string(p.Data))
		})
	}
}

func TestRenderEmptyManifest(t *testing.T) {
	p, ok := NewOffer(Copy, manifest.Manifest{}).Render(FormatNative)
	require.True(t, ok)
	assert.Equal(t, "copy\n", string(p.Data))

	intent, m, err := DecodeNative(p.Data)
	require.NoError(t, err)
	assert.Equal(t, Copy, intent)
	assert.True(t, m.Empty())
}

func TestNativeRoundTrip(t *testing.T) {
	_, m := fixture(t, "a.txt", "b.txt", "c d.txt")
	for _, intent := range []Intent{Copy, Cut} {
		t.Run(intent.String(), func(t *testing.T) {
			p, ok := NewOffer(intent, m).Render(FormatNative)
			require.True(t, ok)

			gotIntent, gotManifest, err := DecodeNative(p.Data)
			require.NoError(t, err)
			assert.Equal(t, intent, gotIntent)
			assert.True(t, m.Equal(gotManifest))
		})
	}
}

func TestDecodeNativeRejectsUnknownMarker(t *testing.T) {
	dir, _ := fixture(t, "a.txt")
	for _, marker := range []string{"move", "Copy", "copy ", "", "cutx"} {
		body := marker + "\nfile://" + filepath.Join(dir, "a.txt")
		_, _, err := DecodeNative([]byte(body))
		assert.ErrorIs(t, err, ErrUnknownIntent, "marker %q", marker)
	}
}

func TestDecodeNativeAcceptsCRLF(t *testing.T) {
	dir, _ := fixture(t, "a.txt")
	intent, m, err := DecodeNative([]byte("cut\r\nfile://" + filepath.Join(dir, "a.txt") + "\r\n"))
	require.NoError(t, err)
	assert.Equal(t, Cut, intent)
	assert.Equal(t, 1, m.Len())
}

func TestDecodeURIListIsCopy(t *testing.T) {
	_, m := fixture(t, "a.txt")
	intent, got := DecodeURIList([]byte(m.Encode()))
	assert.Equal(t, Copy, intent)
	assert.True(t, m.Equal(got))
}

func TestLooksNative(t *testing.T) {
	assert.True(t, LooksNative([]byte("copy\nfile:///a\nfile:///b")))
	assert.True(t, LooksNative([]byte("cut\nfile:///a")))
	assert.False(t, LooksNative([]byte("copy\n")))
	assert.False(t, LooksNative([]byte("copy")))
	assert.False(t, LooksNative([]byte("hello\nfile:///a")))
	assert.False(t, LooksNative([]byte("copy\nfile:///a\nnot a uri")))
}

func TestParseIntent(t *testing.T) {
	i, err := ParseIntent("cut")
	require.NoError(t, err)
	assert.Equal(t, Cut, i)
	assert.Equal(t, "cut", i.Marker())

	i, err = ParseIntent("copy")
	require.NoError(t, err)
	assert.Equal(t, Copy, i)
}
