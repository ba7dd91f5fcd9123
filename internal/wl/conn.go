package wl

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/k0kubun/pp"
	wayland "github.com/neurlang/wayland/wl"
	"github.com/neurlang/wayland/wlclient"
	"golang.org/x/sys/unix"
)

var ErrConnectionClosed = errors.New("wl: connection closed")

// ProtocolError is a fatal wl_display.error sent by the compositor.
type ProtocolError struct {
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wl: protocol error %d: %s", e.Code, e.Message)
}

// Conn is a compositor connection. Handler errors are collected while the
// library dispatches and handed back by the next read, roundtrip or
// DispatchPending.
type Conn struct {
	display *wayland.Display
	fd      int

	err    error
	events int
	closed bool

	// Trace logs every decoded event.
	Trace bool
}

// Dial connects to the compositor named by WAYLAND_DISPLAY.
func Dial() (*Conn, error) {
	display, err := wlclient.DisplayConnect(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to wayland display: %w", err)
	}
	c := &Conn{
		display: display,
		fd:      int(wlclient.DisplayGetFd(display)),
	}
	display.AddErrorHandler(c)
	return c, nil
}

func (c *Conn) HandleDisplayError(ev wayland.DisplayErrorEvent) {
	c.fail(&ProtocolError{Code: ev.Code, Message: ev.Message})
}

// Err returns the sticky connection error.
func (c *Conn) Err() error {
	return c.err
}

func (c *Conn) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func emit[E any](c *Conn, iface string, handler func(E) error, ev E) {
	c.events++
	if c.Trace {
		slog.Debug("Event", "package", "wl", "interface", iface, "event", pp.Sprint(ev))
	}
	if handler == nil {
		return
	}
	if err := handler(ev); err != nil {
		c.fail(err)
	}
}

func (c *Conn) check(err error) error {
	if err == nil {
		return c.err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.EPIPE) {
		err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	c.fail(err)
	return c.err
}

// Flush pushes queued requests to the compositor.
func (c *Conn) Flush() error {
	if c.closed {
		return ErrConnectionClosed
	}
	wlclient.DisplayFlush(c.display)
	return c.err
}

// DispatchPending returns how many events were dispatched since the last call
// together with the first handler error.
func (c *Conn) DispatchPending() (int, error) {
	n := c.events
	c.events = 0
	return n, c.err
}

// Poll waits up to timeout for the connection to become readable. A negative
// timeout blocks.
func (c *Conn) Poll(timeout time.Duration) (bool, error) {
	if c.closed {
		return false, ErrConnectionClosed
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, c.check(err)
		}
		if n > 0 && fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 && fds[0].Revents&unix.POLLIN == 0 {
			return false, c.check(ErrConnectionClosed)
		}
		return n > 0, nil
	}
}

// PrepareRead announces a read. The library reads whole messages, so the
// returned guard dispatches as it reads.
func (c *Conn) PrepareRead() (*ReadGuard, error) {
	if c.closed {
		return nil, ErrConnectionClosed
	}
	return &ReadGuard{conn: c}, c.err
}

// ReadGuard completes or abandons a read announced by PrepareRead.
type ReadGuard struct {
	conn *Conn
	done bool
}

// Read dispatches every message the socket holds.
func (g *ReadGuard) Read() error {
	if g.done {
		return nil
	}
	g.done = true
	for {
		if err := wlclient.DisplayDispatch(g.conn.display); err != nil {
			return g.conn.check(err)
		}
		if g.conn.err != nil {
			return g.conn.err
		}
		ready, err := g.conn.Poll(0)
		if err != nil || !ready {
			return err
		}
	}
}

func (g *ReadGuard) Cancel() {
	g.done = true
}

// Roundtrip blocks until the compositor has handled every request sent so far
// and the resulting events have been dispatched.
func (c *Conn) Roundtrip() error {
	if c.closed {
		return ErrConnectionClosed
	}
	return c.check(wlclient.DisplayRoundtrip(c.display))
}

// Close disconnects. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	wlclient.DisplayDisconnect(c.display)
	return nil
}

// GetRegistry creates the registry. Globals arrive on its Handler.
func (c *Conn) GetRegistry() (*Registry, error) {
	registry, err := c.display.GetRegistry()
	if err != nil {
		return nil, fmt.Errorf("unable to create registry: %w", err)
	}
	r := &Registry{conn: c, proxy: registry}
	registry.AddGlobalHandler(r)
	registry.AddGlobalRemoveHandler(r)
	return r, nil
}

// CallbackEvent is implemented by every wl_callback event.
type CallbackEvent interface{ isCallbackEvent() }

// CallbackDone carries the event serial for syncs and a millisecond timestamp for frames.
type CallbackDone struct {
	Data uint32
}

func (CallbackDone) isCallbackEvent() {}

// Callback is a one-shot wl_callback. The server destroys it after done.
type Callback struct {
	conn    *Conn
	Handler func(CallbackEvent) error
}

func newCallback(c *Conn, cb *wayland.Callback) *Callback {
	w := &Callback{conn: c}
	cb.AddDoneHandler(w)
	return w
}

func (cb *Callback) HandleCallbackDone(ev wayland.CallbackDoneEvent) {
	emit(cb.conn, "wl_callback", cb.Handler, CallbackEvent(CallbackDone{Data: ev.CallbackData}))
}
