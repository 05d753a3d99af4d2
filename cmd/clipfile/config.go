package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipfile/internal/clip"
	"go.klb.dev/clipfile/internal/fileop"
	"go.klb.dev/clipfile/internal/journal"
	"go.klb.dev/clipfile/internal/logging"
	"go.klb.dev/clipfile/internal/session"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPFILE_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPFILE_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipfile")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipfile/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/clipfile", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for copy/cut, warn otherwise)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addClipboardFlags adds the flags selecting and tuning the clipboard backend.
func addClipboardFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend", clip.KindAuto, "clipboard backend: auto|x11|wayland|wl-clipboard|portable|memory")
	f.Duration("timeout", session.DefaultTimeout, "how long to wait for the clipboard owner to reply")
	f.Bool("uri-list-fallback", false, "treat a text/uri-list only clipboard as copied files")
}

// addPasteFlags adds the flags controlling how pasted files are handled.
func addPasteFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("executor", fileop.KindAuto, "file operation executor: auto|exec|native")
	f.String("journal", "", "history database path (default $XDG_STATE_HOME/clipfile/journal.db)")
	f.Bool("no-journal", false, "do not record pastes in the history database")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper, def slog.Level) {
	interactive := v.GetBool("no-background")
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"), def)
}

// openClipboard opens the configured backend.
func openClipboard(v *viper.Viper) (clip.Service, error) {
	svc, err := clip.Open(v.GetString("backend"))
	if err != nil {
		return nil, fmt.Errorf("clipboard: %w", err)
	}
	slog.Debug("clipboard backend", "name", svc.Name())
	return svc, nil
}

// sinkOptions maps configuration onto session options.
func sinkOptions(v *viper.Viper) []session.Option {
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}
	return []session.Option{
		session.WithTimeout(timeout),
		session.WithURIListFallback(v.GetBool("uri-list-fallback")),
	}
}

// journalPath returns the configured history database path.
func journalPath(v *viper.Viper) (string, error) {
	if p := v.GetString("journal"); p != "" {
		return p, nil
	}
	return journal.DefaultPath()
}

// openJournal opens the history database for recording. A journal that
// cannot be opened only costs the history, so it is logged and skipped.
func openJournal(v *viper.Viper) *journal.DB {
	if v.GetBool("no-journal") {
		return nil
	}
	path, err := journalPath(v)
	if err == nil {
		var db *journal.DB
		if db, err = journal.Open(path); err == nil {
			return db
		}
	}
	slog.Warn("history disabled", "err", err)
	return nil
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string, def slog.Level) {
	format := logging.ParseFormat(formatStr)
	if interactive {
		def = slog.LevelDebug
		if format == logging.FormatAuto {
			format = logging.FormatText
		}
	}
	logging.Setup(format, logging.ParseLevel(levelStr, def))
}
