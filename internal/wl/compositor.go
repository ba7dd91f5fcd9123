package wl

import (
	"fmt"

	wayland "github.com/neurlang/wayland/wl"
)

// Compositor has no events.
type Compositor struct {
	conn    *Conn
	proxy   *wayland.Compositor
	version uint32
}

func (c *Compositor) Version() uint32 {
	return c.version
}

func (c *Compositor) CreateSurface() (*Surface, error) {
	surface, err := c.proxy.CreateSurface()
	if err != nil {
		return nil, fmt.Errorf("unable to create surface: %w", err)
	}
	s := &Surface{conn: c.conn, proxy: surface, version: c.version}
	surface.AddEnterHandler(s)
	surface.AddLeaveHandler(s)
	return s, nil
}

// SurfaceEvent is implemented by every wl_surface event.
type SurfaceEvent interface{ isSurfaceEvent() }

type SurfaceEnter struct{ Output uint32 }
type SurfaceLeave struct{ Output uint32 }

func (SurfaceEnter) isSurfaceEvent() {}
func (SurfaceLeave) isSurfaceEvent() {}

type Surface struct {
	conn    *Conn
	proxy   *wayland.Surface
	version uint32
	Handler func(SurfaceEvent) error
}

func (s *Surface) Version() uint32 {
	return s.version
}

func (s *Surface) HandleSurfaceEnter(ev wayland.SurfaceEnterEvent) {
	emit(s.conn, "wl_surface", s.Handler, SurfaceEvent(SurfaceEnter{Output: outputID(ev.Output)}))
}

func (s *Surface) HandleSurfaceLeave(ev wayland.SurfaceLeaveEvent) {
	emit(s.conn, "wl_surface", s.Handler, SurfaceEvent(SurfaceLeave{Output: outputID(ev.Output)}))
}

func outputID(o *wayland.Output) uint32 {
	if o == nil {
		return 0
	}
	return uint32(o.Id())
}

// Attach hands buffer to the compositor on the next commit, nil detaches.
func (s *Surface) Attach(buffer *Buffer, x, y int32) error {
	var proxy *wayland.Buffer
	if buffer != nil {
		proxy = buffer.proxy
	}
	return s.proxy.Attach(proxy, x, y)
}

func (s *Surface) Damage(x, y, width, height int32) error {
	return s.proxy.Damage(x, y, width, height)
}

// DamageBuffer needs wl_surface version 4.
func (s *Surface) DamageBuffer(x, y, width, height int32) error {
	return s.proxy.DamageBuffer(x, y, width, height)
}

// Frame requests a callback for when it is a good time to draw the next frame.
func (s *Surface) Frame() (*Callback, error) {
	cb, err := s.proxy.Frame()
	if err != nil {
		return nil, fmt.Errorf("unable to request frame callback: %w", err)
	}
	return newCallback(s.conn, cb), nil
}

func (s *Surface) Commit() error {
	return s.proxy.Commit()
}

func (s *Surface) Destroy() error {
	return s.proxy.Destroy()
}
