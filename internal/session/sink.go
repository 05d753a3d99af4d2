package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.klb.dev/clipfile/internal/clip"
	"go.klb.dev/clipfile/internal/clipfmt"
	"go.klb.dev/clipfile/internal/fileop"
	"go.klb.dev/clipfile/internal/manifest"
)

// DefaultTimeout bounds each clipboard round trip of a Sink.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when the clipboard owner does not answer in time.
var ErrTimeout = errors.New("clipboard owner did not reply")

// Recorder receives the report of every executed paste.
type Recorder interface {
	Record(ctx context.Context, r *fileop.Report) error
}

// Sink reads a foreign clipboard offer.
type Sink struct {
	tracker
	svc         clip.Service
	exec        fileop.Executor
	timeout     time.Duration
	uriFallback bool
	recorder    Recorder
}

// Option configures a Sink.
type Option func(*Sink)

// WithTimeout sets the limit for each of the discovery and fetch steps.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithURIListFallback makes an owner that only offers text/uri-list count
// as offering files. Such a list is always pasted as a copy.
func WithURIListFallback(on bool) Option {
	return func(s *Sink) { s.uriFallback = on }
}

// WithRecorder reports executed pastes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Sink) { s.recorder = r }
}

// NewSink returns a Sink reading svc and executing with ex.
func NewSink(svc clip.Service, ex fileop.Executor, opts ...Option) *Sink {
	s := &Sink{svc: svc, exec: ex, timeout: DefaultTimeout}
	for _, o := range opts {
		o(s)
	}
	s.log = slog.With("role", "sink", "backend", svc.Name())
	return s
}

// Check reports whether the clipboard currently offers files. No content
// is transferred.
func (s *Sink) Check(ctx context.Context) (bool, error) {
	_, ok, err := s.discover(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		s.set(Completed)
	}
	return ok, nil
}

// Paste fetches the offered files and copies or moves them into dest. It
// returns a nil report when the clipboard offers no files. After a cut the
// clipboard is cleared so the same list is not moved twice.
func (s *Sink) Paste(ctx context.Context, dest string) (*fileop.Report, error) {
	format, ok, err := s.discover(ctx)
	if err != nil || !ok {
		return nil, err
	}

	s.set(RequestingContent)
	body, err := s.fetch(ctx, format)
	if err != nil {
		s.set(Failed)
		return nil, err
	}

	var (
		intent clipfmt.Intent
		m      manifest.Manifest
	)
	if format == clipfmt.FormatNative {
		intent, m, err = clipfmt.DecodeNative(body)
		if err != nil {
			s.set(Failed)
			return nil, fmt.Errorf("decode clipboard: %w", err)
		}
	} else {
		intent, m = clipfmt.DecodeURIList(body)
	}
	s.log.Info("pasting", "intent", intent, "files", m.Len(), "dest", dest)

	report := fileop.Run(ctx, s.exec, intent, m, dest)

	if intent == clipfmt.Cut && report.Succeeded() > 0 {
		if err := s.svc.SetText(ctx, ""); err != nil {
			s.log.Warn("could not clear clipboard after cut", "err", err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, report); err != nil {
			s.log.Warn("journal write failed", "err", err)
		}
	}
	if report.Err() != nil {
		s.set(Failed)
	} else {
		s.set(Completed)
	}
	return report, nil
}

// discover asks the owner for its targets and picks the format to read.
func (s *Sink) discover(ctx context.Context) (clipfmt.Format, bool, error) {
	s.set(DiscoveringTargets)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	targets, err := s.svc.Targets(ctx)
	if err != nil {
		s.set(Failed)
		return "", false, s.wrap(ctx, "query clipboard targets", err)
	}
	s.log.Debug("clipboard targets", "targets", targets.Strings())

	switch {
	case targets.Has(clipfmt.FormatNative):
		return clipfmt.FormatNative, true, nil
	case s.uriFallback && targets.Has(clipfmt.FormatURIList):
		return clipfmt.FormatURIList, true, nil
	}
	s.set(NoFilesOffered)
	return "", false, nil
}

func (s *Sink) fetch(ctx context.Context, format clipfmt.Format) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.svc.Request(ctx, format)
	if err != nil {
		return nil, s.wrap(ctx, "request clipboard content", err)
	}
	return body, nil
}

func (s *Sink) wrap(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w within %s", op, ErrTimeout, s.timeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
