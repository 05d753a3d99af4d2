// clipfile: copy, cut and paste files through the desktop clipboard.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipfile/internal/clipfmt"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

// Exit statuses.
const (
	exitOK     = 0
	exitError  = 1
	exitFailed = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	var in *inputError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &in):
		fmt.Fprintln(stdout, in.msg)
		return exitError
	}
	fmt.Fprintf(stderr, "clipfile: %v\n", err)
	var failed *failedOpsError
	if errors.As(err, &failed) {
		return exitFailed
	}
	return exitError
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "clipfile",
		Short: "Copy, cut and paste files through the desktop clipboard",
		Long: `clipfile puts files on the desktop clipboard the way GNOME file managers
do (x-special/gnome-copied-files), so that a copy or cut in the terminal can
be pasted in Nautilus, Nemo or Caja and the other way round.

  clipfile copy <path>...     offer files for copying
  clipfile cut <path>...      offer files for moving
  clipfile check              print 1 if the clipboard holds files, else 0
  clipfile paste [dir]        copy or move the offered files into dir

The offering process stays in the foreground until another application
takes the clipboard (or "clipfile release" is run).

The flag forms --copy, --cut, --check and --paste are accepted as well.

Config file search order (first found wins):
  /etc/clipfile/clipfile.toml
  $HOME/.config/clipfile/clipfile.toml
  path supplied via --config

All flags can be set via CLIPFILE_<FLAG> env vars or config-file keys.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE:       func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:          func(cmd *cobra.Command, args []string) error { return runLegacy(cmd, v, args) },
	}

	f := root.Flags()
	f.Bool("copy", false, "same as the copy command")
	f.Bool("cut", false, "same as the cut command")
	f.Bool("check", false, "same as the check command")
	f.Bool("paste", false, "same as the paste command")
	addClipboardFlags(root)
	addPasteFlags(root)
	addLoggingFlags(root)
	addConfigFlag(root)

	root.AddCommand(
		newCopyCmd(),
		newCutCmd(),
		newCheckCmd(),
		newPasteCmd(),
		newStatusCmd(),
		newReleaseCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

// runLegacy dispatches the single-flag form: clipfile --copy a b.
func runLegacy(cmd *cobra.Command, v *viper.Viper, args []string) error {
	var actions []string
	for _, name := range []string{"copy", "cut", "check", "paste"} {
		if on, _ := cmd.Flags().GetBool(name); on {
			actions = append(actions, name)
		}
	}
	if len(actions) != 1 {
		return inputErrorf("Unknown action")
	}

	switch actions[0] {
	case "copy":
		return runOffer(cmd, v, clipfmt.Copy, args)
	case "cut":
		return runOffer(cmd, v, clipfmt.Cut, args)
	case "check":
		return runCheck(cmd, v)
	default:
		return runPaste(cmd, v, args)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipfile %s\n", Version)
		},
	}
}

// inputError is a problem with the command line. Its message is printed on
// stdout and the process exits 1 without touching the clipboard.
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func inputErrorf(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

// failedOpsError reports a paste that ran but had failing operations.
type failedOpsError struct {
	failed, total int
	err           error
}

func (e *failedOpsError) Error() string {
	return fmt.Sprintf("%d of %d file operations failed: %v", e.failed, e.total, e.err)
}

func (e *failedOpsError) Unwrap() error { return e.err }
