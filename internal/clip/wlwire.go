//go:build linux || freebsd || netbsd || openbsd || dragonfly

package clip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	wlHeaderSize = 8
	wlMaxFDs     = 28
	wlReadSize   = 4096
)

var errWlShort = errors.New("wayland: message shorter than its arguments")

// wlArgs builds the argument block of one request or event.
type wlArgs struct {
	b   []byte
	fds []int
}

func (a *wlArgs) putUint(v uint32) *wlArgs {
	a.b = binary.NativeEndian.AppendUint32(a.b, v)
	return a
}

// putString encodes s with its NUL terminator, padded to 32 bits.
func (a *wlArgs) putString(s string) *wlArgs {
	n := len(s) + 1
	a.putUint(uint32(n))
	a.b = append(a.b, s...)
	a.b = append(a.b, make([]byte, (n+3)&^3-len(s))...)
	return a
}

func (a *wlArgs) putFD(fd int) *wlArgs {
	a.fds = append(a.fds, fd)
	return a
}

// wlMessage is one decoded message. Arguments are consumed in order; the
// first decoding failure sticks in err.
type wlMessage struct {
	id     uint32
	opcode uint16
	body   []byte
	err    error
	wire   *wlWire
}

func (m *wlMessage) readUint() uint32 {
	if len(m.body) < 4 {
		m.err = errWlShort
		return 0
	}
	v := binary.NativeEndian.Uint32(m.body)
	m.body = m.body[4:]
	return v
}

func (m *wlMessage) readString() string {
	n := int(m.readUint())
	if n == 0 {
		return ""
	}
	padded := (n + 3) &^ 3
	if len(m.body) < padded {
		m.err = errWlShort
		return ""
	}
	s := string(m.body[:n-1])
	m.body = m.body[padded:]
	return s
}

// readFD takes the next descriptor received on the connection.
func (m *wlMessage) readFD() int {
	if len(m.wire.fds) == 0 {
		m.err = errors.New("wayland: expected a file descriptor")
		return -1
	}
	fd := m.wire.fds[0]
	m.wire.fds = m.wire.fds[1:]
	return fd
}

// wlWire frames Wayland messages on a unix socket. Writes may come from
// any goroutine; read is for a single reader.
type wlWire struct {
	conn *net.UnixConn
	wmu  sync.Mutex
	in   []byte
	fds  []int
}

// wlSocketPath locates the compositor socket the way libwayland does.
func wlSocketPath() (string, error) {
	name := os.Getenv("WAYLAND_DISPLAY")
	if name == "" {
		name = "wayland-0"
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return "", errors.New("wayland: XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(dir, name), nil
}

func dialWayland() (*wlWire, error) {
	path, err := wlSocketPath()
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("wayland: connect: %w", err)
	}
	return &wlWire{conn: conn}, nil
}

func (w *wlWire) write(id uint32, opcode uint16, a *wlArgs) error {
	if a == nil {
		a = &wlArgs{}
	}
	msg := make([]byte, wlHeaderSize, wlHeaderSize+len(a.b))
	binary.NativeEndian.PutUint32(msg, id)
	binary.NativeEndian.PutUint32(msg[4:], uint32(wlHeaderSize+len(a.b))<<16|uint32(opcode))
	msg = append(msg, a.b...)

	var oob []byte
	if len(a.fds) > 0 {
		oob = unix.UnixRights(a.fds...)
	}
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if _, _, err := w.conn.WriteMsgUnix(msg, oob, nil); err != nil {
		return fmt.Errorf("wayland: write: %w", err)
	}
	return nil
}

func (w *wlWire) read() (*wlMessage, error) {
	for {
		if len(w.in) >= wlHeaderSize {
			word := binary.NativeEndian.Uint32(w.in[4:])
			size := int(word >> 16)
			if size < wlHeaderSize {
				return nil, fmt.Errorf("wayland: bad message size %d", size)
			}
			if len(w.in) >= size {
				m := &wlMessage{
					id:     binary.NativeEndian.Uint32(w.in),
					opcode: uint16(word),
					body:   append([]byte(nil), w.in[wlHeaderSize:size]...),
					wire:   w,
				}
				w.in = w.in[size:]
				return m, nil
			}
		}

		buf := make([]byte, wlReadSize)
		oob := make([]byte, unix.CmsgSpace(wlMaxFDs*4))
		n, oobn, _, _, err := w.conn.ReadMsgUnix(buf, oob)
		if oobn > 0 {
			if perr := w.takeFDs(oob[:oobn]); perr != nil {
				return nil, perr
			}
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, io.EOF
		}
		w.in = append(w.in, buf[:n]...)
	}
}

func (w *wlWire) takeFDs(oob []byte) error {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("wayland: control message: %w", err)
	}
	for i := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsgs[i])
		if err != nil {
			continue
		}
		w.fds = append(w.fds, fds...)
	}
	return nil
}

// dropFDs closes descriptors nobody claimed. Reader goroutine only.
func (w *wlWire) dropFDs() {
	for _, fd := range w.fds {
		_ = unix.Close(fd)
	}
	w.fds = nil
}
