package manifest

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// Scheme is the URI prefix every manifest entry carries on the wire.
const Scheme = "file://"

// Resolve turns a user-supplied path or file:// URI into a canonical absolute
// path with symlinks and ".." resolved. It reports false when the path does
// not exist or cannot be canonicalised; callers drop such entries.
func Resolve(p string) (string, bool) {
	if strings.HasPrefix(p, Scheme) {
		p = pathFromURI(p)
	}
	if p == "" {
		return "", false
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	return real, true
}

// pathFromURI extracts the local path from a file:// URI. Percent escapes are
// decoded; a URI that does not parse is treated as a literal "file://" prefix
// followed by a raw path. URIs naming a remote host yield "".
func pathFromURI(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return strings.TrimPrefix(s, Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return ""
	}
	p := u.Path
	// Raw (unescaped) URIs may carry '?' or '#' as part of the filename.
	if u.ForceQuery || u.RawQuery != "" {
		q, err := url.PathUnescape(u.RawQuery)
		if err != nil {
			q = u.RawQuery
		}
		p += "?" + q
	}
	if u.Fragment != "" {
		p += "#" + u.Fragment
	}
	if runtime.GOOS == "windows" {
		// file:///C:/dir → C:\dir
		if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
			p = p[1:]
		}
		p = filepath.FromSlash(p)
	}
	return p
}

// URI returns the file:// URI for an absolute path, percent-encoding any
// byte that is not valid in a URI path (spaces, '%', '?', '#', newlines).
func URI(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
