package clip

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipfile/internal/clipfmt"
)

func staticServer(data map[clipfmt.Format]string) ServeFunc {
	return func(f clipfmt.Format) ([]byte, bool) {
		s, ok := data[f]
		return []byte(s), ok
	}
}

func TestBoardEmpty(t *testing.T) {
	ctx := context.Background()
	c := NewBoard().Client("reader")

	ts, err := c.Targets(ctx)
	require.NoError(t, err)
	assert.Empty(t, ts)

	_, err = c.Request(ctx, clipfmt.FormatNative)
	assert.ErrorIs(t, err, ErrNotOffered)
}

func TestBoardClaimAndRequest(t *testing.T) {
	ctx := context.Background()
	b := NewBoard()
	owner := b.Client("owner")
	reader := b.Client("reader")

	_, err := owner.Claim(ctx, []clipfmt.Format{clipfmt.FormatNative},
		staticServer(map[clipfmt.Format]string{clipfmt.FormatNative: "copy\nfile:///x"}))
	require.NoError(t, err)
	assert.Equal(t, "owner", b.Owner())

	ts, err := reader.Targets(ctx)
	require.NoError(t, err)
	assert.True(t, ts.Has(clipfmt.FormatNative))
	assert.Equal(t, []string{"x-special/gnome-copied-files"}, ts.Strings())

	data, err := reader.Request(ctx, clipfmt.FormatNative)
	require.NoError(t, err)
	assert.Equal(t, "copy\nfile:///x", string(data))

	_, err = reader.Request(ctx, clipfmt.FormatURIList)
	assert.ErrorIs(t, err, ErrNotOffered)
}

func TestBoardOwnershipLoss(t *testing.T) {
	ctx := context.Background()
	b := NewBoard()
	first := b.Client("first")
	second := b.Client("second")

	lost, err := first.Claim(ctx, []clipfmt.Format{clipfmt.FormatText}, textServer("one"))
	require.NoError(t, err)

	select {
	case <-lost:
		t.Fatal("lost before anyone else claimed")
	default:
	}

	require.NoError(t, second.SetText(ctx, ""))

	select {
	case <-lost:
	default:
		t.Fatal("first owner was not told it lost the clipboard")
	}
	assert.Equal(t, "second", b.Owner())

	ts, err := first.Targets(ctx)
	require.NoError(t, err)
	assert.False(t, ts.Has(clipfmt.FormatNative))
	assert.True(t, ts.Has(clipfmt.FormatText))
}

func TestBoardCloseReleases(t *testing.T) {
	ctx := context.Background()
	b := NewBoard()
	owner := b.Client("owner")

	lost, err := owner.Claim(ctx, []clipfmt.Format{clipfmt.FormatText}, textServer("x"))
	require.NoError(t, err)

	owner.Close()
	owner.Close()

	_, open := <-lost
	assert.False(t, open)
	assert.Equal(t, "", b.Owner())

	_, err = owner.Targets(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBoardCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBoard().Client("r").Targets(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	s, err := Open(KindMemory)
	require.NoError(t, err)
	defer s.Close()
	assert.Contains(t, s.Name(), "memory")

	_, err = Open("carrier-pigeon")
	assert.Error(t, err)
}
