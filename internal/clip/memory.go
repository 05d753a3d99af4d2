package clip

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"go.klb.dev/clipfile/internal/clipfmt"
)

// Board is an in-process clipboard with the same ownership rules as a
// desktop one: one owner at a time, and the previous owner is told when it
// is replaced. Each Client behaves like a separate process.
type Board struct {
	mu      sync.Mutex
	owner   *memClient
	formats []clipfmt.Format
	serve   ServeFunc
	lost    chan struct{}
}

// NewBoard returns an empty board.
func NewBoard() *Board { return &Board{} }

// NewMemory returns a Service on a private board. Used when no display is
// available: claims succeed but nothing outside the process can see them.
func NewMemory() Service { return NewBoard().Client("local") }

// Client returns a new handle on the board.
func (b *Board) Client(name string) Service { return &memClient{b: b, name: name} }

// Owner returns the name of the client currently owning the board, or "".
func (b *Board) Owner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner == nil {
		return ""
	}
	return b.owner.name
}

func (b *Board) claim(c *memClient, formats []clipfmt.Format, serve ServeFunc) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost != nil {
		close(b.lost)
	}
	b.owner = c
	b.formats = slices.Clone(formats)
	b.serve = serve
	b.lost = make(chan struct{})
	return b.lost
}

func (b *Board) release(c *memClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner != c {
		return
	}
	close(b.lost)
	b.owner, b.formats, b.serve, b.lost = nil, nil, nil, nil
}

type memClient struct {
	b      *Board
	name   string
	closed atomic.Bool
}

func (c *memClient) Name() string { return "memory (" + c.name + ")" }

func (c *memClient) Claim(_ context.Context, formats []clipfmt.Format, serve ServeFunc) (<-chan struct{}, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.b.claim(c, formats, serve), nil
}

func (c *memClient) Targets(ctx context.Context) (TargetSet, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return TargetSet(slices.Clone(c.b.formats)), nil
}

func (c *memClient) Request(ctx context.Context, f clipfmt.Format) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.b.mu.Lock()
	serve, formats := c.b.serve, c.b.formats
	c.b.mu.Unlock()

	if serve == nil || !slices.Contains(formats, f) {
		return nil, ErrNotOffered
	}
	data, ok := serve(f)
	if !ok {
		return nil, ErrNotOffered
	}
	return data, nil
}

func (c *memClient) SetText(ctx context.Context, text string) error {
	_, err := c.Claim(ctx, textFormats, textServer(text))
	return err
}

// Close drops ownership if held, like a process exiting.
func (c *memClient) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.b.release(c)
}
