//go:build linux || freebsd || netbsd || openbsd || dragonfly

package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"go.klb.dev/clipfile/internal/clipfmt"
)

const (
	// maxPropertyLongs bounds a single GetProperty read (in 32-bit units).
	maxPropertyLongs = 1 << 24

	// changePropertyHeader is the fixed part of a ChangeProperty request.
	changePropertyHeader = 24

	// maxIncrBytes bounds an incremental transfer we are willing to receive.
	maxIncrBytes = 64 << 20
)

// x11Service owns or reads the CLIPBOARD selection through a hidden window.
// A single goroutine pumps X events: SelectionNotify replies are handed to
// the pending conversion, SelectionRequest is answered from the current
// claim, SelectionClear ends the claim and PropertyNotify drives INCR
// transfers in both directions.
type x11Service struct {
	conn *xgb.Conn
	win  xproto.Window
	done chan struct{}

	// chunk is the largest property payload one request can carry.
	chunk int

	clipboard xproto.Atom
	targets   xproto.Atom
	property  xproto.Atom
	incr      xproto.Atom

	atomMu sync.Mutex
	atoms  map[string]xproto.Atom
	names  map[xproto.Atom]string

	// convMu serialises conversions; notify is the reply slot of the one
	// in flight and propKick signals new data on our property.
	convMu   sync.Mutex
	notifyMu sync.Mutex
	notify   chan xproto.SelectionNotifyEvent
	propKick chan struct{}

	ownMu sync.Mutex
	owned *x11Claim

	outMu    sync.Mutex
	outgoing map[outKey]*outTransfer
}

type x11Claim struct {
	formats []xproto.Atom
	serve   ServeFunc
	lost    chan struct{}
}

// outKey identifies an INCR transfer we are sending.
type outKey struct {
	requestor xproto.Window
	property  xproto.Atom
}

type outTransfer struct {
	target xproto.Atom
	data   []byte
}

// maxPropertyBytes returns the largest 8-bit property a ChangeProperty can
// carry for a server accepting requests of maxRequestUnits 4-byte units.
// Larger replies go out as INCR.
func maxPropertyBytes(maxRequestUnits uint16) int {
	return int(maxRequestUnits)*4 - changePropertyHeader
}

func newX11() (Service, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("x11: connect: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	win, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("x11: window id: %w", err)
	}
	err = xproto.CreateWindowChecked(conn, screen.RootDepth, win, screen.Root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange},
	).Check()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("x11: create window: %w", err)
	}

	s := &x11Service{
		conn:     conn,
		win:      win,
		done:     make(chan struct{}),
		chunk:    maxPropertyBytes(setup.MaximumRequestLength),
		propKick: make(chan struct{}, 1),
		atoms:    make(map[string]xproto.Atom),
		names:    make(map[xproto.Atom]string),
		outgoing: make(map[outKey]*outTransfer),
	}
	for name, dst := range map[string]*xproto.Atom{
		"CLIPBOARD":          &s.clipboard,
		"TARGETS":            &s.targets,
		"CLIPFILE_SELECTION": &s.property,
		"INCR":               &s.incr,
	} {
		a, err := s.atom(name)
		if err != nil {
			conn.Close()
			return nil, err
		}
		*dst = a
	}

	go s.pump()
	return s, nil
}

func (s *x11Service) Name() string { return "X11 CLIPBOARD selection" }

func (s *x11Service) atom(name string) (xproto.Atom, error) {
	s.atomMu.Lock()
	defer s.atomMu.Unlock()
	if a, ok := s.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(s.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("x11: intern %s: %w", name, err)
	}
	s.atoms[name] = reply.Atom
	s.names[reply.Atom] = name
	return reply.Atom, nil
}

func (s *x11Service) atomName(a xproto.Atom) (string, error) {
	s.atomMu.Lock()
	defer s.atomMu.Unlock()
	if n, ok := s.names[a]; ok {
		return n, nil
	}
	reply, err := xproto.GetAtomName(s.conn, a).Reply()
	if err != nil {
		return "", fmt.Errorf("x11: atom name %d: %w", a, err)
	}
	s.names[a] = reply.Name
	s.atoms[reply.Name] = a
	return reply.Name, nil
}

func (s *x11Service) pump() {
	defer s.stop()
	for {
		ev, xerr := s.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			slog.Debug("x11 error", "err", xerr)
			continue
		}
		switch e := ev.(type) {
		case xproto.SelectionNotifyEvent:
			s.notifyMu.Lock()
			ch := s.notify
			s.notifyMu.Unlock()
			if ch != nil {
				select {
				case ch <- e:
				default:
				}
			}
		case xproto.SelectionRequestEvent:
			s.answer(e)
		case xproto.SelectionClearEvent:
			if e.Selection == s.clipboard {
				s.dropClaim()
			}
		case xproto.PropertyNotifyEvent:
			s.propertyChanged(e)
		}
	}
}

// stop runs when the connection is gone: nothing is owned any more.
func (s *x11Service) stop() {
	s.dropClaim()
	close(s.done)
}

// answer replies to a foreign reader's SelectionRequest.
func (s *x11Service) answer(e xproto.SelectionRequestEvent) {
	s.ownMu.Lock()
	c := s.owned
	s.ownMu.Unlock()

	prop := e.Property
	if prop == xproto.AtomNone {
		// Obsolete requestors leave the property empty.
		prop = e.Target
	}

	ok := false
	if c != nil && e.Selection == s.clipboard {
		if e.Target == s.targets {
			atoms := append([]xproto.Atom{s.targets}, c.formats...)
			buf := make([]byte, 4*len(atoms))
			for i, a := range atoms {
				xgb.Put32(buf[i*4:], uint32(a))
			}
			xproto.ChangeProperty(s.conn, xproto.PropModeReplace, e.Requestor, prop,
				xproto.AtomAtom, 32, uint32(len(atoms)), buf)
			ok = true
		} else if name, err := s.atomName(e.Target); err == nil {
			if data, served := c.serve(clipfmt.Format(name)); served {
				if len(data) > s.chunk {
					s.startIncr(e.Requestor, prop, e.Target, data)
				} else {
					xproto.ChangeProperty(s.conn, xproto.PropModeReplace, e.Requestor, prop,
						e.Target, 8, uint32(len(data)), data)
				}
				ok = true
				slog.Debug("served clipboard request", "target", name, "bytes", len(data))
			}
		}
	}
	if !ok {
		prop = xproto.AtomNone
	}

	notify := xproto.SelectionNotifyEvent{
		Time:      e.Time,
		Requestor: e.Requestor,
		Selection: e.Selection,
		Target:    e.Target,
		Property:  prop,
	}
	xproto.SendEvent(s.conn, false, e.Requestor, xproto.EventMaskNoEvent, string(notify.Bytes()))
}

// startIncr announces data too large for one request. The requestor
// deletes the INCR property to ask for each chunk; see continueIncr.
func (s *x11Service) startIncr(w xproto.Window, prop, target xproto.Atom, data []byte) {
	s.outMu.Lock()
	s.outgoing[outKey{w, prop}] = &outTransfer{target: target, data: data}
	s.outMu.Unlock()

	xproto.ChangeWindowAttributes(s.conn, w, xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange})
	size := make([]byte, 4)
	xgb.Put32(size, uint32(len(data)))
	xproto.ChangeProperty(s.conn, xproto.PropModeReplace, w, prop, s.incr, 32, 1, size)
	slog.Debug("incremental transfer started", "requestor", w, "bytes", len(data))
}

// continueIncr writes the next chunk of an outgoing transfer. The final,
// empty chunk ends it.
func (s *x11Service) continueIncr(w xproto.Window, prop xproto.Atom) {
	key := outKey{w, prop}
	s.outMu.Lock()
	t, ok := s.outgoing[key]
	if !ok {
		s.outMu.Unlock()
		return
	}
	n := min(len(t.data), s.chunk)
	chunk := t.data[:n]
	t.data = t.data[n:]
	if n == 0 {
		delete(s.outgoing, key)
	}
	s.outMu.Unlock()

	xproto.ChangeProperty(s.conn, xproto.PropModeReplace, w, prop, t.target, 8, uint32(n), chunk)
	if n == 0 {
		xproto.ChangeWindowAttributes(s.conn, w, xproto.CwEventMask, []uint32{xproto.EventMaskNoEvent})
		slog.Debug("incremental transfer finished", "requestor", w)
	}
}

func (s *x11Service) propertyChanged(e xproto.PropertyNotifyEvent) {
	if e.Window == s.win {
		if e.Atom == s.property && e.State == xproto.PropertyNewValue {
			select {
			case s.propKick <- struct{}{}:
			default:
			}
		}
		return
	}
	if e.State == xproto.PropertyDelete {
		s.continueIncr(e.Window, e.Atom)
	}
}

func (s *x11Service) dropClaim() {
	s.ownMu.Lock()
	c := s.owned
	s.owned = nil
	s.ownMu.Unlock()
	if c != nil {
		close(c.lost)
	}
}

func (s *x11Service) Claim(_ context.Context, formats []clipfmt.Format, serve ServeFunc) (<-chan struct{}, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	c := &x11Claim{serve: serve, lost: make(chan struct{})}
	for _, f := range formats {
		a, err := s.atom(string(f))
		if err != nil {
			return nil, err
		}
		c.formats = append(c.formats, a)
	}

	// Replacing our own claim ends the previous one.
	s.dropClaim()
	s.ownMu.Lock()
	s.owned = c
	s.ownMu.Unlock()

	if err := xproto.SetSelectionOwnerChecked(s.conn, s.win, s.clipboard, xproto.TimeCurrentTime).Check(); err != nil {
		s.dropClaim()
		return nil, fmt.Errorf("x11: set selection owner: %w", err)
	}
	reply, err := xproto.GetSelectionOwner(s.conn, s.clipboard).Reply()
	if err != nil {
		s.dropClaim()
		return nil, fmt.Errorf("x11: get selection owner: %w", err)
	}
	if reply.Owner != s.win {
		s.dropClaim()
		return nil, errors.New("x11: clipboard ownership refused")
	}
	return c.lost, nil
}

// answers reports whether ev is the reply to our conversion of target.
func (s *x11Service) answers(ev xproto.SelectionNotifyEvent, target xproto.Atom) bool {
	return ev.Requestor == s.win && ev.Selection == s.clipboard && ev.Target == target
}

// convert asks the selection owner for target and returns the property
// value it delivers, following INCR transfers.
func (s *x11Service) convert(ctx context.Context, target xproto.Atom) ([]byte, error) {
	s.convMu.Lock()
	defer s.convMu.Unlock()

	owner, err := xproto.GetSelectionOwner(s.conn, s.clipboard).Reply()
	if err != nil {
		return nil, fmt.Errorf("x11: get selection owner: %w", err)
	}
	if owner.Owner == xproto.WindowNone {
		return nil, ErrNotOffered
	}

	ch := make(chan xproto.SelectionNotifyEvent, 4)
	s.notifyMu.Lock()
	s.notify = ch
	s.notifyMu.Unlock()
	defer func() {
		s.notifyMu.Lock()
		s.notify = nil
		s.notifyMu.Unlock()
	}()

	xproto.ConvertSelection(s.conn, s.win, s.clipboard, target, s.property, xproto.TimeCurrentTime)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrClosed
		case ev := <-ch:
			if !s.answers(ev, target) {
				slog.Debug("x11: ignoring unrelated SelectionNotify", "target", ev.Target, "requestor", ev.Requestor)
				continue
			}
			if ev.Property == xproto.AtomNone {
				return nil, ErrNotOffered
			}
			return s.readProperty(ctx)
		}
	}
}

func (s *x11Service) readProperty(ctx context.Context) ([]byte, error) {
	select {
	case <-s.propKick:
	default:
	}
	reply, err := xproto.GetProperty(s.conn, true, s.win, s.property,
		xproto.GetPropertyTypeAny, 0, maxPropertyLongs).Reply()
	if err != nil {
		return nil, fmt.Errorf("x11: get property: %w", err)
	}
	if reply.Type != s.incr {
		return reply.Value, nil
	}
	// Deleting the INCR property above asked the owner for the first chunk.
	return s.readIncr(ctx)
}

func (s *x11Service) readIncr(ctx context.Context) ([]byte, error) {
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrClosed
		case <-s.propKick:
		}
		reply, err := xproto.GetProperty(s.conn, true, s.win, s.property,
			xproto.GetPropertyTypeAny, 0, maxPropertyLongs).Reply()
		if err != nil {
			return nil, fmt.Errorf("x11: get property: %w", err)
		}
		if reply.Type == xproto.AtomNone {
			continue
		}
		if len(reply.Value) == 0 {
			return buf, nil
		}
		buf = append(buf, reply.Value...)
		if len(buf) > maxIncrBytes {
			return nil, fmt.Errorf("x11: incremental transfer over %d bytes", maxIncrBytes)
		}
	}
}

func (s *x11Service) Targets(ctx context.Context) (TargetSet, error) {
	value, err := s.convert(ctx, s.targets)
	if errors.Is(err, ErrNotOffered) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ts TargetSet
	for i := 0; i+4 <= len(value); i += 4 {
		name, err := s.atomName(xproto.Atom(xgb.Get32(value[i:])))
		if err != nil {
			return nil, err
		}
		ts = append(ts, clipfmt.Format(name))
	}
	return ts, nil
}

func (s *x11Service) Request(ctx context.Context, f clipfmt.Format) ([]byte, error) {
	a, err := s.atom(string(f))
	if err != nil {
		return nil, err
	}
	return s.convert(ctx, a)
}

// SetText claims the selection with a text-only offer. Once the process
// exits the selection has no owner, which is how a paste clears it.
func (s *x11Service) SetText(ctx context.Context, text string) error {
	_, err := s.Claim(ctx, textFormats, textServer(text))
	return err
}

// Close disconnects; a claim still held ends with it.
func (s *x11Service) Close() {
	s.conn.Close()
	<-s.done
}
