// Package ipc runs the local control socket of a running copy or cut.
//
// The process offering files listens on the socket so that other clipfile
// invocations can ask what is on offer (status) or make it give up the
// clipboard (release). Each connection carries one request and one reply in
// the newline-delimited JSON format of package wire.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.klb.dev/clipfile/internal/message"
	"go.klb.dev/clipfile/internal/wire"
)

const requestTimeout = 5 * time.Second

var (
	// ErrNotRunning is returned by Call when nothing listens on the socket.
	ErrNotRunning = errors.New("no clipfile offer is running")

	// ErrRemote wraps an ERROR reply.
	ErrRemote = errors.New("control request refused")
)

// SocketPath returns the path of the control socket:
//
//   - $CLIPFILE_SOCKET if set
//   - $XDG_RUNTIME_DIR/clipfile.sock
//   - $TMPDIR/clipfile-<uid>.sock otherwise
func SocketPath() string {
	if s := os.Getenv("CLIPFILE_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "clipfile.sock")
	}
	return filepath.Join(os.TempDir(), "clipfile-"+strconv.Itoa(os.Getuid())+".sock")
}

// IsRunning reports whether something is listening on the socket. It does a
// cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := net.DialTimeout("unix", SocketPath(), time.Second)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listener is the control socket of the current process.
type Listener struct {
	net.Listener
	path string
	info os.FileInfo
}

// Listen binds the control socket, replacing any socket file left by an
// earlier offer. Close removes the file only while it is still ours, so a
// newer offer's socket survives the older process exiting.
func Listen() (*Listener, error) {
	path := SocketPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ipc: %w", err)
	}
	_ = os.Remove(path)

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc listen %s: %w", path, err)
	}
	if ul, ok := l.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	_ = os.Chmod(path, 0o600)
	info, err := os.Stat(path)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("ipc: %w", err)
	}
	return &Listener{Listener: l, path: path, info: info}, nil
}

// Path returns the socket path.
func (l *Listener) Path() string { return l.path }

// Close stops listening and removes the socket file if it still belongs to l.
func (l *Listener) Close() error {
	err := l.Listener.Close()
	if cur, statErr := os.Stat(l.path); statErr == nil && os.SameFile(cur, l.info) {
		_ = os.Remove(l.path)
	}
	return err
}

// Handler answers one request. A nil reply is sent as an ERROR.
type Handler func(req *message.Message) *message.Message

// Serve accepts connections on l until ctx ends, answering each with h.
// PING is answered directly. Serve closes l before returning.
func Serve(ctx context.Context, l net.Listener, h Handler) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	defer l.Close()

	for {
		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ipc accept: %w", err)
		}
		go serveConn(c, h)
	}
}

func serveConn(c net.Conn, h Handler) {
	conn := wire.New(c)
	defer conn.Close()

	conn.SetReadDeadline(requestTimeout)
	req, err := conn.ReadMsg()
	if err != nil {
		slog.Debug("ipc read failed", "err", err)
		_ = conn.WriteMsg(message.Errorf("bad request: %v", err))
		return
	}
	slog.Debug("ipc request", "type", req.Type)

	var reply *message.Message
	if req.Type == message.TypePing {
		reply = &message.Message{Type: message.TypePong}
	} else {
		reply = h(req)
	}
	if reply == nil {
		reply = message.Errorf("unsupported request %q", req.Type)
	}
	if err := conn.WriteMsg(reply); err != nil {
		slog.Debug("ipc write failed", "err", err)
	}
}

// Call sends req to the running offer and returns its reply. An ERROR reply
// is returned together with an error wrapping ErrRemote.
func Call(ctx context.Context, req *message.Message) (*message.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", SocketPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(dl)
	}
	conn := wire.New(c)
	defer conn.Close()

	if err := conn.WriteMsg(req); err != nil {
		return nil, fmt.Errorf("ipc write: %w", err)
	}
	reply, err := conn.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("ipc read: %w", err)
	}
	if reply.Type == message.TypeError {
		return reply, fmt.Errorf("%w: %s", ErrRemote, reply.Error)
	}
	return reply, nil
}
