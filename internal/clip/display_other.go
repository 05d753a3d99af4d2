//go:build !(linux || freebsd || netbsd || openbsd || dragonfly)

package clip

import "errors"

func newX11() (Service, error) {
	return nil, errors.New("x11: not supported on this platform")
}

func newDataControl() (Service, error) {
	return nil, errors.New("wayland: not supported on this platform")
}
