package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"go.klb.dev/clipfile/internal/clipfmt"
)

// waylandService drives wl-clipboard, the fallback when the compositor has
// no data-control manager. wl-copy can only offer one MIME type per
// process, so a claim offers the native format when asked to and the first
// servable format otherwise. A foreground wl-copy exits when another
// client takes the selection, which is the ownership-lost signal.
type waylandService struct {
	copyBin  string
	pasteBin string

	mu    sync.Mutex
	owner *exec.Cmd
}

func newWayland() (Service, error) {
	copyBin, err := exec.LookPath("wl-copy")
	if err != nil {
		return nil, fmt.Errorf("wayland: %w", err)
	}
	pasteBin, err := exec.LookPath("wl-paste")
	if err != nil {
		return nil, fmt.Errorf("wayland: %w", err)
	}
	return &waylandService{copyBin: copyBin, pasteBin: pasteBin}, nil
}

func (s *waylandService) Name() string { return "Wayland (wl-clipboard)" }

func (s *waylandService) Claim(_ context.Context, formats []clipfmt.Format, serve ServeFunc) (<-chan struct{}, error) {
	order := formats
	if slices.Contains(formats, clipfmt.FormatNative) {
		order = append([]clipfmt.Format{clipfmt.FormatNative}, formats...)
	}
	for _, f := range order {
		data, ok := serve(f)
		if !ok {
			continue
		}
		if len(formats) > 1 {
			slog.Warn("wl-clipboard offers a single format", "offered", f, "requested", len(formats))
		}
		return s.offer(f, data)
	}
	return nil, errors.New("wayland: nothing to offer")
}

func (s *waylandService) offer(f clipfmt.Format, data []byte) (<-chan struct{}, error) {
	cmd := exec.Command(s.copyBin, "--foreground", "--type", string(f))
	cmd.Stdin = bytes.NewReader(data)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("wayland: start wl-copy: %w", err)
	}

	s.mu.Lock()
	prev := s.owner
	s.owner = cmd
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Process.Kill()
	}

	lost := make(chan struct{})
	go func() {
		err := cmd.Wait()
		slog.Debug("wl-copy exited", "type", f, "err", err)
		s.mu.Lock()
		if s.owner == cmd {
			s.owner = nil
		}
		s.mu.Unlock()
		close(lost)
	}()
	return lost, nil
}

func (s *waylandService) Targets(ctx context.Context) (TargetSet, error) {
	out, err := exec.CommandContext(ctx, s.pasteBin, "--list-types").Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// "Nothing is copied" exits non-zero.
			return nil, nil
		}
		return nil, fmt.Errorf("wayland: wl-paste --list-types: %w", err)
	}
	var ts TargetSet
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ts = append(ts, clipfmt.Format(line))
		}
	}
	return ts, nil
}

func (s *waylandService) Request(ctx context.Context, f clipfmt.Format) ([]byte, error) {
	out, err := exec.CommandContext(ctx, s.pasteBin, "--no-newline", "--type", string(f)).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s", ErrNotOffered, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("wayland: wl-paste: %w", err)
	}
	return out, nil
}

func (s *waylandService) SetText(ctx context.Context, text string) error {
	if text == "" {
		if err := exec.CommandContext(ctx, s.copyBin, "--clear").Run(); err != nil {
			return fmt.Errorf("wayland: wl-copy --clear: %w", err)
		}
		return nil
	}
	cmd := exec.CommandContext(ctx, s.copyBin, "--type", "text/plain")
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("wayland: wl-copy: %w", err)
	}
	return nil
}

// Close stops a wl-copy still serving our offer.
func (s *waylandService) Close() {
	s.mu.Lock()
	cmd := s.owner
	s.owner = nil
	s.mu.Unlock()
	if cmd != nil {
		_ = cmd.Process.Kill()
	}
}
