package clip

import (
	"fmt"
	"log/slog"
	"os"
)

// Backend names accepted by Open.
const (
	KindAuto        = "auto"
	KindX11         = "x11"
	KindWayland     = "wayland"
	KindWLClipboard = "wl-clipboard"
	KindPortable    = "portable"
	KindMemory      = "memory"
)

// Open returns the clipboard backend named by kind. "auto" prefers X11
// whenever DISPLAY is set (XWayland bridges every format to Wayland
// clients), then the Wayland data-control protocol, then wl-clipboard,
// then the portable text clipboard, and finally an in-process board when
// no display is reachable.
func Open(kind string) (Service, error) {
	switch kind {
	case "", KindAuto:
		return openAuto(), nil
	case KindX11:
		return newX11()
	case KindWayland:
		return newDataControl()
	case KindWLClipboard:
		return newWayland()
	case KindPortable:
		return newPortable()
	case KindMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown clipboard backend %q", kind)
}

func openAuto() Service {
	if os.Getenv("DISPLAY") != "" {
		s, err := newX11()
		if err == nil {
			return s
		}
		slog.Debug("x11 backend unavailable", "err", err)
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		s, err := newDataControl()
		if err == nil {
			return s
		}
		slog.Debug("wayland data-control unavailable", "err", err)

		s, err = newWayland()
		if err == nil {
			slog.Warn("using wl-clipboard: only one format is offered per copy")
			return s
		}
		slog.Debug("wl-clipboard unavailable", "err", err)
	}
	s, err := newPortable()
	if err == nil {
		return s
	}
	slog.Warn("clipboard unavailable, using in-process clipboard", "err", err)
	return NewMemory()
}
