package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"go.klb.dev/clipfile/internal/ipc"
	"go.klb.dev/clipfile/internal/message"
)

func newReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Stop a running copy or cut and give up the clipboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !ipc.IsRunning() {
				fmt.Fprintln(cmd.OutOrStdout(), "No files on offer.")
				return nil
			}
			_, err := ipc.Call(cmd.Context(), &message.Message{Type: message.TypeRelease})
			if errors.Is(err, ipc.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "No files on offer.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("release: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Released.")
			return nil
		},
	}
}
