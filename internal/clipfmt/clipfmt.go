// Package clipfmt implements the file clipboard interchange format shared
// with GNOME-family file managers.
//
// An Offer (intent + manifest) is rendered on demand into one of three
// equivalent representations:
//
//	x-special/gnome-copied-files   "copy\n" or "cut\n" followed by the URI list
//	text/uri-list                  the URI list alone
//	UTF8_STRING                    the URI list alone, for plain-text readers
//
// Only the native representation carries the intent; readers that only see
// a URI list must treat it as a copy.
package clipfmt

import (
	"errors"
	"fmt"
	"strings"

	"go.klb.dev/clipfile/internal/manifest"
)

// Format names a clipboard representation (an X11 target or MIME type).
type Format string

const (
	FormatNative  Format = "x-special/gnome-copied-files"
	FormatURIList Format = "text/uri-list"
	FormatText    Format = "UTF8_STRING"
)

// Formats is the set a source advertises, in advertisement order.
var Formats = []Format{FormatURIList, FormatNative, FormatText}

// textAliases are served the same bytes as FormatText.
var textAliases = map[Format]struct{}{
	FormatText:                 {},
	"STRING":                   {},
	"TEXT":                     {},
	"text/plain":               {},
	"text/plain;charset=utf-8": {},
	"text/plain;charset=UTF-8": {},
}

// IsText reports whether f is one of the plain-text target names.
func IsText(f Format) bool {
	_, ok := textAliases[f]
	return ok
}

// Intent says whether a transfer copies or moves its files.
type Intent int

const (
	Copy Intent = iota
	Cut
)

// ErrUnknownIntent is returned when the first line of a native body is
// neither "copy" nor "cut".
var ErrUnknownIntent = errors.New("unknown intent marker")

// Marker returns the intent's first-line marker.
func (i Intent) Marker() string {
	if i == Cut {
		return "cut"
	}
	return "copy"
}

func (i Intent) String() string { return i.Marker() }

// ParseIntent matches a marker line exactly.
func ParseIntent(marker string) (Intent, error) {
	switch marker {
	case "copy":
		return Copy, nil
	case "cut":
		return Cut, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownIntent, marker)
}

// Payload is one rendered representation of an Offer.
type Payload struct {
	Format Format
	Data   []byte
}

// Offer is what a clipboard owner hands out. Its fields are fixed at
// construction because foreign readers may request it at any time.
type Offer struct {
	intent   Intent
	manifest manifest.Manifest
}

// NewOffer returns an immutable offer for m.
func NewOffer(intent Intent, m manifest.Manifest) Offer {
	return Offer{intent: intent, manifest: m}
}

func (o Offer) Intent() Intent              { return o.intent }
func (o Offer) Manifest() manifest.Manifest { return o.manifest }

// Render produces the representation for f. It reports false for formats
// the offer cannot supply.
func (o Offer) Render(f Format) (Payload, bool) {
	list := o.manifest.Encode()
	switch {
	case f == FormatNative:
		return Payload{Format: f, Data: []byte(o.intent.Marker() + "\n" + list)}, true
	case f == FormatURIList, IsText(f):
		return Payload{Format: f, Data: []byte(list)}, true
	}
	return Payload{}, false
}

// DecodeNative parses an x-special/gnome-copied-files body. The marker line
// must match exactly; anything else is rejected with ErrUnknownIntent so a
// garbled clipboard never turns into a move.
func DecodeNative(body []byte) (Intent, manifest.Manifest, error) {
	marker, rest, _ := strings.Cut(string(body), "\n")
	intent, err := ParseIntent(strings.TrimSuffix(marker, "\r"))
	if err != nil {
		return 0, manifest.Manifest{}, err
	}
	return intent, manifest.Decode(rest), nil
}

// DecodeURIList parses a text/uri-list body. The result is always a copy.
func DecodeURIList(body []byte) (Intent, manifest.Manifest) {
	return Copy, manifest.Decode(string(body))
}

// LooksNative reports whether text is a well-formed native body: a known
// marker followed by at least one file URI. Used by backends that can only
// carry plain text.
func LooksNative(text []byte) bool {
	marker, rest, ok := strings.Cut(string(text), "\n")
	if !ok {
		return false
	}
	if _, err := ParseIntent(marker); err != nil {
		return false
	}
	for _, line := range strings.Split(rest, "\n") {
		if !strings.HasPrefix(line, manifest.Scheme) {
			return false
		}
	}
	return true
}
