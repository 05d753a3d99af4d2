package fileop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Native copies and moves with the os package. A move that crosses
// filesystems falls back to copy + remove.
type Native struct{}

func (Native) Copy(ctx context.Context, src, dstDir string) Result {
	res := Result{Op: OpCopy, Source: src, Dest: dstDir}
	target := filepath.Join(dstDir, filepath.Base(src))
	if err := checkTarget(src, target); err != nil {
		res.ExitCode = 1
		res.Err = fmt.Errorf("copy %s: %w", src, err)
		return res
	}
	if err := copyRecursive(ctx, src, target); err != nil {
		res.ExitCode = 1
		res.Err = fmt.Errorf("copy %s: %w", src, err)
	}
	return res
}

func (Native) Move(ctx context.Context, src, dstDir string) Result {
	res := Result{Op: OpMove, Source: src, Dest: dstDir}
	target := filepath.Join(dstDir, filepath.Base(src))
	if err := checkTarget(src, target); err != nil {
		res.ExitCode = 1
		res.Err = fmt.Errorf("move %s: %w", src, err)
		return res
	}

	err := os.Rename(src, target)
	if err != nil && crossDevice(err) {
		err = copyRecursive(ctx, src, target)
		if err == nil {
			err = os.RemoveAll(src)
		}
	}
	if err != nil {
		res.ExitCode = 1
		res.Err = fmt.Errorf("move %s: %w", src, err)
	}
	return res
}

// checkTarget rejects pasting a path onto itself or into its own subtree.
func checkTarget(src, target string) error {
	if target == src {
		return errors.New("source and destination are the same file")
	}
	if strings.HasPrefix(target, src+string(filepath.Separator)) {
		return errors.New("cannot paste a directory into itself")
	}
	return nil
}

// copyRecursive copies a file, symlink or directory tree from src to dst.
func copyRecursive(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(link, dst)
	case info.IsDir():
		return copyDir(ctx, src, dst, info.Mode().Perm())
	default:
		return copyFile(src, dst, info.Mode().Perm())
	}
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyDir(ctx context.Context, src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(dst, mode); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyRecursive(ctx, filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
