//go:build linux || freebsd || netbsd || openbsd || dragonfly

package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"go.klb.dev/clipfile/internal/clipfmt"
)

// Object ids and opcodes of the core and data-control protocols we speak.
const (
	wlDisplayID = 1

	wlDisplaySync        = 0
	wlDisplayGetRegistry = 1
	wlDisplayEventError  = 0
	wlDisplayEventDelete = 1

	wlRegistryBind        = 0
	wlRegistryEventGlobal = 0

	wlCallbackEventDone = 0

	dcManagerCreateSource = 0
	dcManagerGetDevice    = 1

	dcDeviceSetSelection  = 0
	dcDeviceEventOffer    = 0
	dcDeviceEventSelected = 1
	dcDeviceEventFinished = 2

	dcSourceOffer         = 0
	dcSourceDestroy       = 1
	dcSourceEventSend     = 0
	dcSourceEventCanceled = 1

	dcOfferReceive    = 0
	dcOfferDestroy    = 1
	dcOfferEventOffer = 0
)

// Data-control managers in order of preference.
var dcManagers = []string{"ext_data_control_manager_v1", "zwlr_data_control_manager_v1"}

// wlClient dispatches events from one compositor connection to the
// handlers of the objects they address.
type wlClient struct {
	wire *wlWire
	done chan struct{}

	mu       sync.Mutex
	next     uint32
	handlers map[uint32]func(*wlMessage)
	err      error
}

func newWlClient(wire *wlWire) *wlClient {
	c := &wlClient{
		wire:     wire,
		done:     make(chan struct{}),
		next:     wlDisplayID + 1,
		handlers: make(map[uint32]func(*wlMessage)),
	}
	go c.loop()
	return c
}

// object allocates a client-side id whose events go to h.
func (c *wlClient) object(h func(*wlMessage)) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	if h != nil {
		c.handlers[id] = h
	}
	return id
}

// handle routes events for a compositor-created object.
func (c *wlClient) handle(id uint32, h func(*wlMessage)) {
	c.mu.Lock()
	c.handlers[id] = h
	c.mu.Unlock()
}

func (c *wlClient) forget(id uint32) {
	c.mu.Lock()
	delete(c.handlers, id)
	c.mu.Unlock()
}

func (c *wlClient) request(id uint32, opcode uint16, a *wlArgs) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.wire.write(id, opcode, a)
}

// roundtrip returns once the compositor has handled every earlier request.
func (c *wlClient) roundtrip(ctx context.Context) error {
	synced := make(chan struct{})
	cb := c.object(func(m *wlMessage) {
		if m.opcode == wlCallbackEventDone {
			close(synced)
		}
	})
	if err := c.request(wlDisplayID, wlDisplaySync, new(wlArgs).putUint(cb)); err != nil {
		c.forget(cb)
		return err
	}
	select {
	case <-synced:
		return nil
	case <-c.done:
		return c.failure()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wlClient) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func (c *wlClient) loop() {
	defer close(c.done)
	defer c.wire.dropFDs()
	for {
		m, err := c.wire.read()
		if err != nil {
			c.mu.Lock()
			if c.err == nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.err = err
			}
			c.mu.Unlock()
			return
		}
		if m.id == wlDisplayID {
			c.displayEvent(m)
			continue
		}
		c.mu.Lock()
		h := c.handlers[m.id]
		c.mu.Unlock()
		if h != nil {
			h(m)
		}
	}
}

func (c *wlClient) displayEvent(m *wlMessage) {
	switch m.opcode {
	case wlDisplayEventError:
		obj, code, msg := m.readUint(), m.readUint(), m.readString()
		err := fmt.Errorf("wayland: protocol error on object %d (code %d): %s", obj, code, msg)
		slog.Warn("wayland compositor reported an error", "err", err)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		_ = c.wire.conn.Close()
	case wlDisplayEventDelete:
		c.forget(m.readUint())
	}
}

func (c *wlClient) close() {
	_ = c.wire.conn.Close()
	<-c.done
}

type wlGlobal struct {
	name    uint32
	iface   string
	version uint32
}

// dataControlService owns and reads the Wayland selection through the
// data-control protocol, which lets a client without a surface offer
// every format at once.
type dataControlService struct {
	c       *wlClient
	iface   string
	manager uint32
	device  uint32

	mu        sync.Mutex
	offers    map[uint32][]clipfmt.Format
	selection uint32
	source    *dcSource
}

type dcSource struct {
	id    uint32
	serve ServeFunc
	lost  chan struct{}
	once  sync.Once
}

func (src *dcSource) end() { src.once.Do(func() { close(src.lost) }) }

func newDataControl() (Service, error) {
	wire, err := dialWayland()
	if err != nil {
		return nil, err
	}
	c := newWlClient(wire)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := setupDataControl(ctx, c)
	if err != nil {
		c.close()
		return nil, err
	}
	go func() {
		<-c.done
		s.endSource()
	}()
	return s, nil
}

func setupDataControl(ctx context.Context, c *wlClient) (*dataControlService, error) {
	var (
		gmu     sync.Mutex
		globals []wlGlobal
	)
	registry := c.object(func(m *wlMessage) {
		if m.opcode != wlRegistryEventGlobal {
			return
		}
		g := wlGlobal{name: m.readUint(), iface: m.readString(), version: m.readUint()}
		if m.err == nil {
			gmu.Lock()
			globals = append(globals, g)
			gmu.Unlock()
		}
	})
	if err := c.request(wlDisplayID, wlDisplayGetRegistry, new(wlArgs).putUint(registry)); err != nil {
		return nil, err
	}
	if err := c.roundtrip(ctx); err != nil {
		return nil, fmt.Errorf("wayland: registry: %w", err)
	}

	gmu.Lock()
	find := func(iface string) (wlGlobal, bool) {
		i := slices.IndexFunc(globals, func(g wlGlobal) bool { return g.iface == iface })
		if i < 0 {
			return wlGlobal{}, false
		}
		return globals[i], true
	}
	seat, hasSeat := find("wl_seat")
	var manager wlGlobal
	hasManager := false
	for _, name := range dcManagers {
		if manager, hasManager = find(name); hasManager {
			break
		}
	}
	gmu.Unlock()
	if !hasSeat {
		return nil, errors.New("wayland: compositor has no seat")
	}
	if !hasManager {
		return nil, errors.New("wayland: compositor lacks a data-control manager")
	}

	bind := func(g wlGlobal) (uint32, error) {
		id := c.object(nil)
		args := new(wlArgs).putUint(g.name).putString(g.iface).putUint(1).putUint(id)
		return id, c.request(registry, wlRegistryBind, args)
	}
	seatID, err := bind(seat)
	if err != nil {
		return nil, err
	}
	managerID, err := bind(manager)
	if err != nil {
		return nil, err
	}

	s := &dataControlService{
		c:       c,
		iface:   manager.iface,
		manager: managerID,
		offers:  make(map[uint32][]clipfmt.Format),
	}
	s.device = c.object(s.deviceEvent)
	if err := c.request(managerID, dcManagerGetDevice, new(wlArgs).putUint(s.device).putUint(seatID)); err != nil {
		return nil, err
	}
	if err := c.roundtrip(ctx); err != nil {
		return nil, fmt.Errorf("wayland: data device: %w", err)
	}
	return s, nil
}

func (s *dataControlService) Name() string { return "Wayland data-control (" + s.iface + ")" }

func (s *dataControlService) deviceEvent(m *wlMessage) {
	switch m.opcode {
	case dcDeviceEventOffer:
		id := m.readUint()
		s.mu.Lock()
		s.offers[id] = nil
		s.mu.Unlock()
		s.c.handle(id, func(m *wlMessage) { s.offerEvent(id, m) })
	case dcDeviceEventSelected:
		id := m.readUint()
		s.mu.Lock()
		prev := s.selection
		s.selection = id
		s.mu.Unlock()
		if prev != 0 && prev != id {
			s.dropOffer(prev)
		}
	case dcDeviceEventFinished:
		slog.Warn("wayland data device finished")
	}
}

func (s *dataControlService) offerEvent(id uint32, m *wlMessage) {
	if m.opcode != dcOfferEventOffer {
		return
	}
	mime := m.readString()
	if m.err != nil {
		return
	}
	s.mu.Lock()
	s.offers[id] = append(s.offers[id], clipfmt.Format(mime))
	s.mu.Unlock()
}

func (s *dataControlService) dropOffer(id uint32) {
	s.mu.Lock()
	delete(s.offers, id)
	s.mu.Unlock()
	s.c.forget(id)
	_ = s.c.request(id, dcOfferDestroy, nil)
}

func (s *dataControlService) sourceEvent(src *dcSource, m *wlMessage) {
	switch m.opcode {
	case dcSourceEventSend:
		mime := clipfmt.Format(m.readString())
		fd := m.readFD()
		if m.err != nil {
			if fd >= 0 {
				_ = unix.Close(fd)
			}
			return
		}
		go serveFD(fd, mime, src.serve)
	case dcSourceEventCanceled:
		src.end()
		s.mu.Lock()
		if s.source == src {
			s.source = nil
		}
		s.mu.Unlock()
		s.c.forget(src.id)
		_ = s.c.request(src.id, dcSourceDestroy, nil)
	}
}

// serveFD writes the reply for one paste and closes the pipe.
func serveFD(fd int, mime clipfmt.Format, serve ServeFunc) {
	f := os.NewFile(uintptr(fd), "wayland-send")
	defer f.Close()
	data, ok := serve(mime)
	if !ok {
		return
	}
	if _, err := f.Write(data); err != nil {
		slog.Debug("wayland: write selection", "type", mime, "err", err)
		return
	}
	slog.Debug("served clipboard request", "target", mime, "bytes", len(data))
}

func (s *dataControlService) endSource() {
	s.mu.Lock()
	src := s.source
	s.source = nil
	s.mu.Unlock()
	if src != nil {
		src.end()
	}
}

func (s *dataControlService) Claim(ctx context.Context, formats []clipfmt.Format, serve ServeFunc) (<-chan struct{}, error) {
	src := &dcSource{serve: serve, lost: make(chan struct{})}
	src.id = s.c.object(func(m *wlMessage) { s.sourceEvent(src, m) })
	if err := s.c.request(s.manager, dcManagerCreateSource, new(wlArgs).putUint(src.id)); err != nil {
		return nil, err
	}
	for _, f := range formats {
		if err := s.c.request(src.id, dcSourceOffer, new(wlArgs).putString(string(f))); err != nil {
			return nil, err
		}
	}

	// The compositor cancels a source we replace.
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
	if err := s.c.request(s.device, dcDeviceSetSelection, new(wlArgs).putUint(src.id)); err != nil {
		s.endSource()
		return nil, err
	}
	if err := s.c.roundtrip(ctx); err != nil {
		return nil, err
	}
	return src.lost, nil
}

// current returns the formats of the selection after the compositor has
// caught up with us.
func (s *dataControlService) current(ctx context.Context) (uint32, []clipfmt.Format, error) {
	if err := s.c.roundtrip(ctx); err != nil {
		return 0, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == 0 {
		return 0, nil, nil
	}
	return s.selection, slices.Clone(s.offers[s.selection]), nil
}

func (s *dataControlService) Targets(ctx context.Context) (TargetSet, error) {
	_, formats, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return TargetSet(formats), nil
}

func (s *dataControlService) Request(ctx context.Context, f clipfmt.Format) ([]byte, error) {
	offer, formats, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	if offer == 0 || !slices.Contains(formats, f) {
		return nil, ErrNotOffered
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("wayland: pipe: %w", err)
	}
	r := os.NewFile(uintptr(p[0]), "wayland-receive")
	defer r.Close()
	err = s.c.request(offer, dcOfferReceive, new(wlArgs).putString(string(f)).putFD(p[1]))
	_ = unix.Close(p[1])
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = r.SetReadDeadline(time.Now()) })
	defer stop()
	data, err := io.ReadAll(r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("wayland: read selection: %w", err)
	}
	return data, nil
}

// SetText offers text; an empty string clears the selection.
func (s *dataControlService) SetText(ctx context.Context, text string) error {
	if text != "" {
		_, err := s.Claim(ctx, textFormats, textServer(text))
		return err
	}
	s.endSource()
	if err := s.c.request(s.device, dcDeviceSetSelection, new(wlArgs).putUint(0)); err != nil {
		return err
	}
	return s.c.roundtrip(ctx)
}

// Close disconnects; the compositor drops a selection we still own.
func (s *dataControlService) Close() {
	s.c.close()
	s.endSource()
}
