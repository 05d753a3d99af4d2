// Package clip talks to the desktop clipboard on behalf of a file transfer.
// Open selects the implementation:
//
//	x11.go       X11 CLIPBOARD selection owner/requestor via github.com/jezek/xgb
//	wlcontrol.go Wayland data-control client (ext / wlr), every format at once
//	wayland.go   Wayland fallback via wl-copy / wl-paste (wl-clipboard)
//	portable.go  golang.design/x/clipboard, text-only emulation (macOS, Windows)
//	memory.go    in-process board, used headless and in tests
package clip

import (
	"context"
	"errors"
	"slices"

	"go.klb.dev/clipfile/internal/clipfmt"
)

var (
	// ErrNotOffered is returned by Request when the current owner does not
	// supply the requested format (or there is no owner at all).
	ErrNotOffered = errors.New("format not offered by clipboard owner")

	// ErrClosed is returned by operations on a closed Service.
	ErrClosed = errors.New("clipboard service closed")
)

// ServeFunc produces the bytes for one format on request. It must not block
// on I/O; it runs while a foreign reader waits for the reply.
type ServeFunc func(f clipfmt.Format) ([]byte, bool)

// TargetSet is the list of formats the current clipboard owner advertises.
type TargetSet []clipfmt.Format

// Has reports whether f is advertised.
func (ts TargetSet) Has(f clipfmt.Format) bool { return slices.Contains(ts, f) }

// Strings returns the format names, for logging.
func (ts TargetSet) Strings() []string {
	out := make([]string, len(ts))
	for i, f := range ts {
		out[i] = string(f)
	}
	return out
}

// Service is a handle on the desktop clipboard.
type Service interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Claim takes ownership of the clipboard, advertising formats and
	// answering requests with serve. The returned channel is closed when
	// another owner takes over.
	Claim(ctx context.Context, formats []clipfmt.Format, serve ServeFunc) (<-chan struct{}, error)

	// Targets asks the current owner which formats it offers. An empty
	// clipboard yields an empty set and no error.
	Targets(ctx context.Context) (TargetSet, error)

	// Request fetches the owner's content in format f.
	Request(ctx context.Context, f clipfmt.Format) ([]byte, error)

	// SetText replaces the clipboard content with plain text.
	SetText(ctx context.Context, text string) error

	// Close releases the connection and any ownership still held.
	Close()
}

// textServer answers every plain-text format with text.
func textServer(text string) ServeFunc {
	return func(f clipfmt.Format) ([]byte, bool) {
		if clipfmt.IsText(f) {
			return []byte(text), true
		}
		return nil, false
	}
}

var textFormats = []clipfmt.Format{clipfmt.FormatText, "text/plain;charset=utf-8", "text/plain"}
