package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipfile/internal/session"
)

func newCheckCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print 1 if the clipboard holds copied files, 0 otherwise",
		Long: `Asks the clipboard owner which formats it offers and prints 1 when
files copied or cut by a file manager (or clipfile) are available, 0 when
not. Nothing is read from the clipboard besides the list of formats.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runCheck(cmd, v) },
	}

	addClipboardFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runCheck(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v, slog.LevelWarn)

	svc, err := openClipboard(v)
	if err != nil {
		return err
	}
	defer svc.Close()

	ok, err := session.NewSink(svc, nil, sinkOptions(v)...).Check(cmd.Context())
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(cmd.OutOrStdout(), 1)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), 0)
	}
	return nil
}
