// Package session drives the connection from an empty registry to a mapped
// toplevel that presents paced frames.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/k0kubun/pp"

	"github.com/ItsNotGoodName/wl-handmade/internal/core"
	"github.com/ItsNotGoodName/wl-handmade/internal/frame"
	"github.com/ItsNotGoodName/wl-handmade/internal/input"
	"github.com/ItsNotGoodName/wl-handmade/internal/shm"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
)

var ErrMissingGlobals = errors.New("compositor does not advertise required globals")

// SetupError is a failure before the event loop starts.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateRegistryBound
	StateSurfaceCreated
	StateConfigured
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateRegistryBound:
		return "registry-bound"
	case StateSurfaceCreated:
		return "surface-created"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RenderFunc fills a frame from the current logical key state.
type RenderFunc func(img frame.Image, keys input.KeyState)

type Options struct {
	Title  string
	AppID  string
	Width  int
	Height int
	Format wl.ShmFormat

	Allocator shm.Allocator
	Render    RenderFunc
	// Input receives keyboard events, nil ignores the keyboard.
	Input *input.Pipeline
	// Observer is handed to the frame manager and may be nil.
	Observer frame.Observer
}

type Session struct {
	opts    Options
	running *core.Flag

	conn     *wl.Conn
	registry *wl.Registry
	globals  Globals
	formats  []wl.ShmFormat

	surface    *wl.Surface
	xdgSurface *wl.XdgSurface
	toplevel   *wl.Toplevel
	keyboard   *wl.Keyboard
	pointer    *wl.Pointer

	frames *frame.Manager

	state  State
	width  int
	height int
}

// New wraps an established connection.
func New(conn *wl.Conn, running *core.Flag, opts Options) *Session {
	return &Session{
		opts:    opts,
		running: running,
		conn:    conn,
		globals: Globals{Advertised: make(map[uint32]wl.RegistryGlobal)},
		state:   StateConnected,
		width:   opts.Width,
		height:  opts.Height,
	}
}

// Connect dials the compositor named by the environment.
func Connect(running *core.Flag, opts Options) (*Session, error) {
	conn, err := wl.Dial()
	if err != nil {
		return nil, &SetupError{Step: "connect", Err: err}
	}
	return New(conn, running, opts), nil
}

func (s *Session) Conn() *wl.Conn {
	return s.conn
}

func (s *Session) State() State {
	return s.state
}

// Size returns the window size frames are drawn at.
func (s *Session) Size() (int, int) {
	return s.width, s.height
}

func (s *Session) Globals() *Globals {
	return &s.globals
}

// Frames returns the frame manager, nil before the registry is bound.
func (s *Session) Frames() *frame.Manager {
	return s.frames
}

// Formats returns the pixel formats the compositor advertised.
func (s *Session) Formats() []wl.ShmFormat {
	return s.formats
}

// Bootstrap binds the required globals, builds the toplevel and makes the
// initial commit. The first configure arrives through the event loop.
func (s *Session) Bootstrap() error {
	if s.state != StateConnected {
		return &SetupError{Step: "bootstrap", Err: fmt.Errorf("unexpected state %s", s.state)}
	}

	if err := s.bindGlobals(); err != nil {
		return err
	}
	s.state = StateRegistryBound

	if err := s.createToplevel(); err != nil {
		return &SetupError{Step: "surface", Err: err}
	}
	s.state = StateSurfaceCreated

	// Collects shm formats and seat capabilities.
	if err := s.conn.Roundtrip(); err != nil {
		return &SetupError{Step: "surface", Err: err}
	}
	if !slices.Contains(s.formats, s.opts.Format) {
		slog.Warn("Compositor did not advertise pixel format", "package", "session", "format", s.opts.Format, "advertised", s.formats)
	}
	return nil
}

func (s *Session) bindGlobals() error {
	registry, err := s.conn.GetRegistry()
	if err != nil {
		return &SetupError{Step: "registry", Err: err}
	}
	s.registry = registry
	registry.Handler = s.handleRegistry

	if err := s.conn.Roundtrip(); err != nil {
		return &SetupError{Step: "registry", Err: err}
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("Registry globals", "package", "session", "globals", pp.Sprint(s.globals.Advertised))
	}

	if missing := s.globals.Missing(); len(missing) > 0 {
		return &SetupError{Step: "registry", Err: fmt.Errorf("%w: %s", ErrMissingGlobals, strings.Join(missing, ", "))}
	}

	s.globals.Shm.Handler = s.handleShm
	s.globals.WmBase.Handler = s.handleWmBase
	s.globals.Seat.Handler = s.handleSeat
	return nil
}

func (s *Session) createToplevel() error {
	surface, err := s.globals.Compositor.CreateSurface()
	if err != nil {
		return err
	}
	surface.Handler = s.handleSurface
	s.surface = surface

	xdgSurface, err := s.globals.WmBase.GetXdgSurface(surface)
	if err != nil {
		return err
	}
	xdgSurface.Handler = s.handleXdgSurface
	s.xdgSurface = xdgSurface

	toplevel, err := xdgSurface.GetToplevel()
	if err != nil {
		return err
	}
	toplevel.Handler = s.handleToplevel
	s.toplevel = toplevel

	if err := toplevel.SetTitle(s.opts.Title); err != nil {
		return err
	}
	if s.opts.AppID != "" {
		if err := toplevel.SetAppID(s.opts.AppID); err != nil {
			return err
		}
	}

	s.frames = frame.NewManager(s.globals.Shm, surface, s.opts.Allocator, s.opts.Format, s.Size, s.render)
	s.frames.Observer = s.opts.Observer

	// A role without a buffer asks the compositor for the first configure.
	return surface.Commit()
}

func (s *Session) render(img frame.Image) {
	if s.opts.Render == nil {
		return
	}
	var keys input.KeyState
	if s.opts.Input != nil {
		keys = s.opts.Input.Keys()
	}
	s.opts.Render(img, keys)
}

// Close marks the session closed and lowers the running flag.
func (s *Session) Close() {
	if s.state != StateClosed {
		slog.Debug("Session closed", "package", "session", "from", s.state)
	}
	s.state = StateClosed
	s.running.Stop()
}

// Destroy releases every protocol object and the connection. Closers run in
// reverse, so objects go before the seat and the surface before its roles.
func (s *Session) Destroy() error {
	var closers core.Closers
	closers.Add(s.conn.Close)
	if s.conn.Err() == nil {
		closers.Add(s.conn.Flush)
		if s.globals.Seat != nil && s.globals.Seat.Version() >= 5 {
			closers.Add(s.globals.Seat.Release)
		}
		if s.keyboard != nil {
			closers.Add(s.keyboard.Release)
		}
		if s.pointer != nil {
			closers.Add(s.pointer.Release)
		}
		if s.surface != nil {
			closers.Add(s.surface.Destroy)
		}
		if s.xdgSurface != nil {
			closers.Add(s.xdgSurface.Destroy)
		}
		if s.toplevel != nil {
			closers.Add(s.toplevel.Destroy)
		}
		if s.frames != nil {
			closers.Add(s.frames.Close)
		}
	}
	return closers.Close()
}
