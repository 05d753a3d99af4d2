package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipfile/internal/clipfmt"
	"go.klb.dev/clipfile/internal/ipc"
	"go.klb.dev/clipfile/internal/manifest"
	"go.klb.dev/clipfile/internal/message"
	"go.klb.dev/clipfile/internal/session"
)

func newCopyCmd() *cobra.Command {
	return newOfferCmd(clipfmt.Copy, "copy", "Offer files on the clipboard for copying",
		`Puts the given files on the clipboard as a copy. A file manager (or
"clipfile paste") pasting them duplicates the files.`)
}

func newCutCmd() *cobra.Command {
	return newOfferCmd(clipfmt.Cut, "cut", "Offer files on the clipboard for moving",
		`Puts the given files on the clipboard as a cut. A file manager (or
"clipfile paste") pasting them moves the files and clears the clipboard.`)
}

func newOfferCmd(intent clipfmt.Intent, use, short, long string) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   use + " <path>...",
		Short: short,
		Long: long + `

Paths that do not exist are skipped; if none remain, "Incorrect paths" is
printed and the command exits 1. Otherwise it stays in the foreground,
serving the clipboard until another application replaces its content, until
"clipfile release" is run, or until interrupted.`,
		Args:    cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runOffer(cmd, v, intent, args) },
	}

	addClipboardFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runOffer(cmd *cobra.Command, v *viper.Viper, intent clipfmt.Intent, args []string) error {
	setupLogging(v, slog.LevelInfo)

	m := manifest.Build(args)
	if m.Empty() {
		return inputErrorf("Incorrect paths")
	}

	svc, err := openClipboard(v)
	if err != nil {
		return err
	}
	defer svc.Close()

	src, err := session.NewSource(svc, intent, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, release := context.WithCancel(ctx)
	defer release()

	var wg sync.WaitGroup
	defer wg.Wait()
	if l, err := ipc.Listen(); err != nil {
		slog.Warn("control socket unavailable; status and release will not work", "err", err)
	} else {
		slog.Debug("control socket listening", "path", l.Path())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ipc.Serve(ctx, l, offerHandler(src, release)); err != nil {
				slog.Warn("control socket stopped", "err", err)
			}
		}()
	}

	err = src.Run(ctx)
	release()
	if errors.Is(err, context.Canceled) {
		slog.Info("offer released")
		return nil
	}
	return err
}

// offerHandler answers control requests for a running offer.
func offerHandler(src *session.Source, release context.CancelFunc) ipc.Handler {
	return func(req *message.Message) *message.Message {
		switch req.Type {
		case message.TypeStatus:
			st := src.Status()
			return &message.Message{
				Type: message.TypeStatusResponse,
				Offer: &message.OfferStatus{
					Intent:  st.Intent.String(),
					Paths:   st.Paths,
					Backend: st.Backend,
					State:   st.State.String(),
					PID:     os.Getpid(),
					Since:   st.ClaimedAt,
				},
			}
		case message.TypeRelease:
			slog.Info("release requested")
			release()
			return &message.Message{Type: message.TypeOK}
		}
		return nil
	}
}
