// Package session runs the clipboard negotiation for a file transfer.
//
// A Source owns the clipboard and answers read requests from an immutable
// offer until another owner takes over. A Sink discovers what the current
// owner offers and, for a paste, fetches the native list and executes it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.klb.dev/clipfile/internal/clip"
	"go.klb.dev/clipfile/internal/clipfmt"
	"go.klb.dev/clipfile/internal/manifest"
)

// ErrEmptyManifest is returned when none of the given paths exist.
var ErrEmptyManifest = errors.New("no valid paths")

// Source offers a fixed set of files on the clipboard.
type Source struct {
	tracker
	svc   clip.Service
	offer clipfmt.Offer

	mu        sync.Mutex
	claimedAt time.Time
}

// NewSource prepares an offer of m with the given intent. It fails with
// ErrEmptyManifest before touching the clipboard if m is empty.
func NewSource(svc clip.Service, intent clipfmt.Intent, m manifest.Manifest) (*Source, error) {
	if m.Empty() {
		return nil, ErrEmptyManifest
	}
	s := &Source{
		svc:   svc,
		offer: clipfmt.NewOffer(intent, m),
	}
	s.log = slog.With("role", "source", "backend", svc.Name())
	return s, nil
}

// Offer returns the offer being served.
func (s *Source) Offer() clipfmt.Offer { return s.offer }

// Run claims the clipboard and serves requests until ownership is lost,
// which returns nil, or ctx ends, which returns ctx.Err().
func (s *Source) Run(ctx context.Context) error {
	lost, err := s.svc.Claim(ctx, clipfmt.Formats, s.serve)
	if err != nil {
		s.set(Failed)
		return fmt.Errorf("claim clipboard: %w", err)
	}
	s.mu.Lock()
	s.claimedAt = time.Now()
	s.mu.Unlock()
	s.set(OfferingAsSource)
	s.log.Info("offering files",
		"intent", s.offer.Intent(),
		"files", s.offer.Manifest().Len(),
	)

	select {
	case <-lost:
		s.set(OwnershipLost)
		s.log.Info("clipboard ownership lost")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) serve(f clipfmt.Format) ([]byte, bool) {
	p, ok := s.offer.Render(f)
	s.log.Debug("clipboard read request", "format", f, "served", ok, "bytes", len(p.Data))
	return p.Data, ok
}

// Status describes a running offer.
type Status struct {
	Intent    clipfmt.Intent
	Paths     []string
	Backend   string
	State     State
	ClaimedAt time.Time
}

// Status returns a snapshot of the offer for display.
func (s *Source) Status() Status {
	s.mu.Lock()
	claimed := s.claimedAt
	s.mu.Unlock()
	return Status{
		Intent:    s.offer.Intent(),
		Paths:     s.offer.Manifest().Paths(),
		Backend:   s.svc.Name(),
		State:     s.State(),
		ClaimedAt: claimed,
	}
}
