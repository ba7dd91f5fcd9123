package wl

import (
	"fmt"

	wayland "github.com/neurlang/wayland/wl"
)

const (
	opWmBaseDestroy       uint32 = 0
	opWmBaseGetXdgSurface uint32 = 2
	opWmBasePong          uint32 = 3

	evWmBasePing uint32 = 0
)

// WmBaseEvent is implemented by every xdg_wm_base event.
type WmBaseEvent interface{ isWmBaseEvent() }

// WmBasePing must be answered with Pong or the client is considered unresponsive.
type WmBasePing struct {
	Serial uint32
}

func (WmBasePing) isWmBaseEvent() {}

// WmBase is xdg_wm_base, registered on the library context as a custom proxy.
type WmBase struct {
	wayland.BaseProxy
	conn    *Conn
	version uint32
	Handler func(WmBaseEvent) error
}

func (w *WmBase) Version() uint32 {
	return w.version
}

func (w *WmBase) Dispatch(ev *wayland.Event) {
	switch ev.Opcode {
	case evWmBasePing:
		emit(w.conn, InterfaceWmBase, w.Handler, WmBaseEvent(WmBasePing{Serial: ev.Uint32()}))
	}
}

func (w *WmBase) GetXdgSurface(surface *Surface) (*XdgSurface, error) {
	x := &XdgSurface{conn: w.conn}
	w.Context().Register(x)
	if err := w.Context().SendRequest(w, opWmBaseGetXdgSurface, x, surface.proxy); err != nil {
		return nil, fmt.Errorf("unable to get xdg surface: %w", err)
	}
	return x, nil
}

func (w *WmBase) Pong(serial uint32) error {
	return w.Context().SendRequest(w, opWmBasePong, serial)
}

func (w *WmBase) Destroy() error {
	return w.Context().SendRequest(w, opWmBaseDestroy)
}

const (
	opXdgSurfaceDestroy           uint32 = 0
	opXdgSurfaceGetToplevel       uint32 = 1
	opXdgSurfaceSetWindowGeometry uint32 = 3
	opXdgSurfaceAckConfigure      uint32 = 4

	evXdgSurfaceConfigure uint32 = 0
)

// XdgSurfaceEvent is implemented by every xdg_surface event.
type XdgSurfaceEvent interface{ isXdgSurfaceEvent() }

// XdgSurfaceConfigure ends a configure sequence. It must be acknowledged
// before the next buffer is attached.
type XdgSurfaceConfigure struct {
	Serial uint32
}

func (XdgSurfaceConfigure) isXdgSurfaceEvent() {}

type XdgSurface struct {
	wayland.BaseProxy
	conn    *Conn
	Handler func(XdgSurfaceEvent) error
}

func (x *XdgSurface) Dispatch(ev *wayland.Event) {
	switch ev.Opcode {
	case evXdgSurfaceConfigure:
		emit(x.conn, "xdg_surface", x.Handler, XdgSurfaceEvent(XdgSurfaceConfigure{Serial: ev.Uint32()}))
	}
}

func (x *XdgSurface) GetToplevel() (*Toplevel, error) {
	t := &Toplevel{conn: x.conn}
	x.Context().Register(t)
	if err := x.Context().SendRequest(x, opXdgSurfaceGetToplevel, t); err != nil {
		return nil, fmt.Errorf("unable to get toplevel: %w", err)
	}
	return t, nil
}

func (x *XdgSurface) SetWindowGeometry(xx, y, width, height int32) error {
	return x.Context().SendRequest(x, opXdgSurfaceSetWindowGeometry, xx, y, width, height)
}

func (x *XdgSurface) AckConfigure(serial uint32) error {
	return x.Context().SendRequest(x, opXdgSurfaceAckConfigure, serial)
}

func (x *XdgSurface) Destroy() error {
	return x.Context().SendRequest(x, opXdgSurfaceDestroy)
}

const (
	opToplevelDestroy  uint32 = 0
	opToplevelSetTitle uint32 = 2
	opToplevelSetAppID uint32 = 3

	evToplevelConfigure       uint32 = 0
	evToplevelClose           uint32 = 1
	evToplevelConfigureBounds uint32 = 2
)

// ToplevelEvent is implemented by every xdg_toplevel event.
type ToplevelEvent interface{ isToplevelEvent() }

// ToplevelConfigure suggests a size. Zero width or height leaves the choice to the client.
type ToplevelConfigure struct {
	Width  int32
	Height int32
}

type ToplevelClose struct{}

type ToplevelConfigureBounds struct {
	Width  int32
	Height int32
}

func (ToplevelConfigure) isToplevelEvent()       {}
func (ToplevelClose) isToplevelEvent()           {}
func (ToplevelConfigureBounds) isToplevelEvent() {}

type Toplevel struct {
	wayland.BaseProxy
	conn    *Conn
	Handler func(ToplevelEvent) error
}

func (t *Toplevel) Dispatch(ev *wayland.Event) {
	switch ev.Opcode {
	case evToplevelConfigure:
		// The states array that follows is not used.
		emit(t.conn, "xdg_toplevel", t.Handler, ToplevelEvent(ToplevelConfigure{Width: ev.Int32(), Height: ev.Int32()}))
	case evToplevelClose:
		emit(t.conn, "xdg_toplevel", t.Handler, ToplevelEvent(ToplevelClose{}))
	case evToplevelConfigureBounds:
		emit(t.conn, "xdg_toplevel", t.Handler, ToplevelEvent(ToplevelConfigureBounds{Width: ev.Int32(), Height: ev.Int32()}))
	}
}

func (t *Toplevel) SetTitle(title string) error {
	return t.Context().SendRequest(t, opToplevelSetTitle, title)
}

func (t *Toplevel) SetAppID(appID string) error {
	return t.Context().SendRequest(t, opToplevelSetAppID, appID)
}

func (t *Toplevel) Destroy() error {
	return t.Context().SendRequest(t, opToplevelDestroy)
}
