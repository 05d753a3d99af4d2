// Package fileop performs the filesystem side of a paste: one copy or move
// per manifest entry, in order, each producing a Result.
package fileop

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/hashicorp/go-multierror"

	"go.klb.dev/clipfile/internal/clipfmt"
	"go.klb.dev/clipfile/internal/manifest"
)

// Op is the operation applied to one path.
type Op string

const (
	OpCopy Op = "copy"
	OpMove Op = "move"
)

// Result is the outcome of one copy or move.
type Result struct {
	Op     Op
	Source string
	Dest   string // destination directory
	// ExitCode is the primitive's exit status; -1 if it never ran.
	ExitCode int
	Err      error
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Executor copies or moves a single path into a destination directory.
type Executor interface {
	Copy(ctx context.Context, src, dstDir string) Result
	Move(ctx context.Context, src, dstDir string) Result
}

// Executor names accepted by New.
const (
	KindAuto   = "auto"
	KindExec   = "exec"
	KindNative = "native"
)

// New returns the executor named by kind. "auto" uses cp/mv except on
// Windows, which has neither.
func New(kind string) (Executor, error) {
	switch kind {
	case "", KindAuto:
		if runtime.GOOS == "windows" {
			return Native{}, nil
		}
		return NewExec(), nil
	case KindExec:
		return NewExec(), nil
	case KindNative:
		return Native{}, nil
	}
	return nil, fmt.Errorf("unknown executor %q", kind)
}

// Report aggregates the results of one paste.
type Report struct {
	Intent  clipfmt.Intent
	Dest    string
	Results []Result
}

// Succeeded returns how many operations succeeded.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the failed results in manifest order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Err returns every failure combined, or nil.
func (r *Report) Err() error {
	var merr *multierror.Error
	for _, res := range r.Results {
		if res.Err != nil {
			merr = multierror.Append(merr, res.Err)
		}
	}
	return merr.ErrorOrNil()
}

// Run applies intent to every entry of m, sequentially and in order. A
// failure does not stop the remaining entries.
func Run(ctx context.Context, ex Executor, intent clipfmt.Intent, m manifest.Manifest, dest string) *Report {
	r := &Report{Intent: intent, Dest: dest}
	for _, src := range m.Paths() {
		var res Result
		if intent == clipfmt.Cut {
			res = ex.Move(ctx, src, dest)
		} else {
			res = ex.Copy(ctx, src, dest)
		}
		if res.OK() {
			slog.Info("file operation", "op", res.Op, "src", src, "dest", dest)
		} else {
			slog.Error("file operation failed", "op", res.Op, "src", src, "dest", dest, "exit", res.ExitCode, "err", res.Err)
		}
		r.Results = append(r.Results, res)
	}
	return r
}
