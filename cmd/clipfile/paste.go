package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipfile/internal/fileop"
	"go.klb.dev/clipfile/internal/manifest"
	"go.klb.dev/clipfile/internal/session"
)

func newPasteCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "paste [destination]",
		Short: "Copy or move the files on the clipboard into a directory",
		Long: `Reads the files on the clipboard and copies them into destination
(default: the current directory), or moves them when they were cut. After a
cut the clipboard is cleared.

If the clipboard holds no files nothing happens. When some operations fail
the others still run; the failures are reported and the exit status is 2.

Every operation is recorded in the history database unless --no-journal is
given; see "clipfile history".`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runPaste(cmd, v, args) },
	}

	addClipboardFlags(cmd)
	addPasteFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runPaste(cmd *cobra.Command, v *viper.Viper, args []string) error {
	setupLogging(v, slog.LevelWarn)

	dest, err := destination(args)
	if err != nil {
		return err
	}
	ex, err := fileop.New(v.GetString("executor"))
	if err != nil {
		return inputErrorf("Unknown executor %q", v.GetString("executor"))
	}

	svc, err := openClipboard(v)
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := sinkOptions(v)
	if db := openJournal(v); db != nil {
		defer db.Close()
		opts = append(opts, session.WithRecorder(db))
	}

	report, err := session.NewSink(svc, ex, opts...).Paste(cmd.Context(), dest)
	if err != nil {
		return err
	}
	if report == nil {
		slog.Info("clipboard holds no files")
		return nil
	}
	if err := report.Err(); err != nil {
		return &failedOpsError{failed: len(report.Failed()), total: len(report.Results), err: err}
	}
	return nil
}

// destination resolves the paste target. It must be an existing directory.
func destination(args []string) (string, error) {
	target := "."
	if len(args) > 1 {
		return "", inputErrorf("Incorrect destination")
	}
	if len(args) == 1 && args[0] != "" {
		target = args[0]
	}
	dir, ok := manifest.Resolve(target)
	if !ok {
		return "", inputErrorf("Incorrect destination")
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return "", inputErrorf("Incorrect destination")
	}
	return dir, nil
}
