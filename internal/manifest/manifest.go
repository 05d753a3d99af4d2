// Package manifest holds the ordered list of files taking part in a single
// clipboard transfer and its text/uri-list encoding.
//
// A Manifest only ever contains canonical absolute paths: every entry passes
// through Resolve on the way in, and entries that do not exist are dropped
// rather than failing the whole list.
package manifest

import (
	"log/slog"
	"slices"
	"strings"
)

// Manifest is an ordered, duplicate-tolerant list of resolved absolute
// paths. The zero value is an empty manifest. A Manifest is not modified
// after it has been built.
type Manifest struct {
	paths []string
}

// Build resolves each raw entry and keeps the ones that exist, in order.
func Build(raw []string) Manifest {
	var m Manifest
	for _, r := range raw {
		p, ok := Resolve(r)
		if !ok {
			slog.Debug("dropping unresolvable path", "path", r)
			continue
		}
		m.paths = append(m.paths, p)
	}
	return m
}

// Decode parses a newline-separated URI list. Each line is resolved again,
// so files deleted since the list was encoded silently disappear. Carriage
// returns, blank lines and '#' comment lines are ignored.
func Decode(body string) Manifest {
	lines := strings.Split(body, "\n")
	raw := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	return Build(raw)
}

// Encode returns one file:// URI per path joined by '\n', without a trailing
// newline. An empty manifest encodes to "".
func (m Manifest) Encode() string {
	uris := make([]string, len(m.paths))
	for i, p := range m.paths {
		uris[i] = URI(p)
	}
	return strings.Join(uris, "\n")
}

// Len returns the number of entries.
func (m Manifest) Len() int { return len(m.paths) }

// Empty reports whether the manifest has no entries.
func (m Manifest) Empty() bool { return len(m.paths) == 0 }

// Paths returns a copy of the entries in transfer order.
func (m Manifest) Paths() []string { return slices.Clone(m.paths) }

// Equal reports whether both manifests list the same paths in the same order.
func (m Manifest) Equal(other Manifest) bool { return slices.Equal(m.paths, other.paths) }
