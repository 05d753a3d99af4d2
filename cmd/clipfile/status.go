package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipfile/internal/ipc"
	"go.klb.dev/clipfile/internal/message"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the files offered by a running copy or cut",
		Long: `Asks the running "clipfile copy" or "clipfile cut" over the local control
socket which files it offers. Prints "No files on offer." when none is
running.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}

	cmd.Flags().Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	out := cmd.OutOrStdout()

	var offer *message.OfferStatus
	if ipc.IsRunning() {
		reply, err := ipc.Call(cmd.Context(), &message.Message{Type: message.TypeStatus})
		switch {
		case errors.Is(err, ipc.ErrNotRunning):
			// exited between the probe and the call
		case err != nil:
			return fmt.Errorf("status: %w", err)
		default:
			offer = reply.Offer
		}
	}

	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(offer)
	}
	if offer == nil {
		fmt.Fprintln(out, "No files on offer.")
		return nil
	}
	printStatus(out, offer)
	return nil
}

func printStatus(out io.Writer, o *message.OfferStatus) {
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Intent:\t%s\n", o.Intent)
	fmt.Fprintf(w, "Backend:\t%s\n", o.Backend)
	fmt.Fprintf(w, "State:\t%s\n", o.State)
	fmt.Fprintf(w, "PID:\t%d\n", o.PID)
	if !o.Since.IsZero() {
		fmt.Fprintf(w, "Since:\t%s (%s)\n", o.Since.Local().Format(time.RFC3339), humanize.Time(o.Since))
	}
	fmt.Fprintf(w, "Files:\t%s\n", humanize.Comma(int64(len(o.Paths))))
	_ = w.Flush()

	for _, p := range o.Paths {
		fmt.Fprintf(out, "  %s\n", p)
	}
}
