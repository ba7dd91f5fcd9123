package wl

import (
	"fmt"

	wayland "github.com/neurlang/wayland/wl"
	"github.com/neurlang/wayland/wlclient"
)

// Interface names of the globals this client understands.
const (
	InterfaceCompositor = "wl_compositor"
	InterfaceShm        = "wl_shm"
	InterfaceSeat       = "wl_seat"
	InterfaceWmBase     = "xdg_wm_base"
)

// RegistryEvent is implemented by every wl_registry event.
type RegistryEvent interface{ isRegistryEvent() }

type RegistryGlobal struct {
	Name      uint32
	Interface string
	Version   uint32
}

type RegistryGlobalRemove struct {
	Name uint32
}

func (RegistryGlobal) isRegistryEvent()       {}
func (RegistryGlobalRemove) isRegistryEvent() {}

type Registry struct {
	conn    *Conn
	proxy   *wayland.Registry
	Handler func(RegistryEvent) error
}

func (r *Registry) HandleRegistryGlobal(ev wayland.RegistryGlobalEvent) {
	emit(r.conn, "wl_registry", r.Handler, RegistryEvent(RegistryGlobal{Name: ev.Name, Interface: ev.Interface, Version: ev.Version}))
}

func (r *Registry) HandleRegistryGlobalRemove(ev wayland.RegistryGlobalRemoveEvent) {
	emit(r.conn, "wl_registry", r.Handler, RegistryEvent(RegistryGlobalRemove{Name: ev.Name}))
}

// Negotiate picks the highest version both sides support.
func Negotiate(advertised, supported uint32) uint32 {
	return min(advertised, supported)
}

func (r *Registry) BindCompositor(name, version uint32) (*Compositor, error) {
	c := wlclient.RegistryBindCompositorInterface(r.proxy, name, version)
	if c == nil {
		return nil, fmt.Errorf("unable to bind %s", InterfaceCompositor)
	}
	return &Compositor{conn: r.conn, proxy: c, version: version}, nil
}

func (r *Registry) BindShm(name, version uint32) (*Shm, error) {
	proxy := wlclient.RegistryBindShmInterface(r.proxy, name, version)
	if proxy == nil {
		return nil, fmt.Errorf("unable to bind %s", InterfaceShm)
	}
	s := &Shm{conn: r.conn, proxy: proxy}
	proxy.AddFormatHandler(s)
	return s, nil
}

func (r *Registry) BindSeat(name, version uint32) (*Seat, error) {
	proxy := wlclient.RegistryBindSeatInterface(r.proxy, name, version)
	if proxy == nil {
		return nil, fmt.Errorf("unable to bind %s", InterfaceSeat)
	}
	s := &Seat{conn: r.conn, proxy: proxy, version: version}
	proxy.AddCapabilitiesHandler(s)
	proxy.AddNameHandler(s)
	return s, nil
}

// BindWmBase binds xdg_wm_base, which the core library does not model.
func (r *Registry) BindWmBase(name, version uint32) (*WmBase, error) {
	w := &WmBase{conn: r.conn, version: version}
	r.proxy.Context().Register(w)
	if err := r.proxy.Bind(name, InterfaceWmBase, version, w); err != nil {
		return nil, fmt.Errorf("unable to bind %s: %w", InterfaceWmBase, err)
	}
	return w, nil
}
