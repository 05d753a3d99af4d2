package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipfile/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent paste operations",
		Long: `Lists the file operations recorded by "clipfile paste", newest first.
Operations of one paste share a batch id.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runHistory(cmd, v) },
	}

	f := cmd.Flags()
	f.Int("limit", 20, "maximum number of operations to list")
	f.Bool("json", false, "output raw JSON")
	f.String("journal", "", "history database path (default $XDG_STATE_HOME/clipfile/journal.db)")
	addConfigFlag(cmd)

	return cmd
}

type historyEntry struct {
	Batch    string    `json:"batch"`
	At       time.Time `json:"at"`
	Op       string    `json:"op"`
	Source   string    `json:"source"`
	Dest     string    `json:"dest"`
	ExitCode int       `json:"exit_code"`
	Error    string    `json:"error,omitempty"`
}

func runHistory(cmd *cobra.Command, v *viper.Viper) error {
	limit := v.GetInt("limit")
	if limit <= 0 {
		return inputErrorf("Incorrect limit")
	}
	path, err := journalPath(v)
	if err != nil {
		return err
	}
	db, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		list := make([]historyEntry, 0, len(entries))
		for _, e := range entries {
			list = append(list, historyEntry{
				Batch: e.Batch, At: e.At, Op: string(e.Op),
				Source: e.Source, Dest: e.Dest, ExitCode: e.ExitCode, Error: e.Error,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No pastes recorded.")
		return nil
	}
	printHistory(out, entries)
	return nil
}

func printHistory(out io.Writer, entries []journal.Entry) {
	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "WHEN\tOP\tSOURCE\tDEST\tRESULT\n")
	_, _ = fmt.Fprintf(tw, "----\t--\t------\t----\t------\n")
	for _, e := range entries {
		result := "ok"
		if !e.OK() {
			result = fmt.Sprintf("exit %d: %s", e.ExitCode, e.Error)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(e.At), e.Op, e.Source, e.Dest, result)
	}
	_ = tw.Flush()
}
