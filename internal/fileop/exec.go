package fileop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// Exec runs external copy and move commands. Source and destination are
// passed as separate argv entries after "--", never through a shell.
type Exec struct {
	CopyCmd []string
	MoveCmd []string
}

// NewExec returns an Exec using "cp -r" and "mv".
func NewExec() *Exec {
	return &Exec{
		CopyCmd: []string{"cp", "-r"},
		MoveCmd: []string{"mv"},
	}
}

func (e *Exec) Copy(ctx context.Context, src, dstDir string) Result {
	return run(ctx, OpCopy, e.CopyCmd, src, dstDir)
}

func (e *Exec) Move(ctx context.Context, src, dstDir string) Result {
	return run(ctx, OpMove, e.MoveCmd, src, dstDir)
}

func run(ctx context.Context, op Op, base []string, src, dstDir string) Result {
	res := Result{Op: op, Source: src, Dest: dstDir, ExitCode: -1}
	if len(base) == 0 {
		res.Err = fmt.Errorf("%s %s: no command configured", op, src)
		return res
	}
	argv := append(slices.Clone(base), "--", src, dstDir)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		res.ExitCode = 0
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		res.Err = fmt.Errorf("%s %s: exit %d: %s", op, src, res.ExitCode, msg)
		return res
	}
	res.Err = fmt.Errorf("%s %s: %w", op, src, err)
	return res
}
