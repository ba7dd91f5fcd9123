package session

import (
	"sort"

	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
)

// Supported is the highest version of each global this client speaks.
var Supported = map[string]uint32{
	wl.InterfaceCompositor: 4,
	wl.InterfaceShm:        1,
	wl.InterfaceSeat:       5,
	wl.InterfaceWmBase:     2,
}

// Globals is the capability registry filled while the registry is enumerated.
type Globals struct {
	Advertised map[uint32]wl.RegistryGlobal

	Compositor *wl.Compositor
	Shm        *wl.Shm
	Seat       *wl.Seat
	WmBase     *wl.WmBase
}

func (g *Globals) bound(iface string) bool {
	switch iface {
	case wl.InterfaceCompositor:
		return g.Compositor != nil
	case wl.InterfaceShm:
		return g.Shm != nil
	case wl.InterfaceSeat:
		return g.Seat != nil
	case wl.InterfaceWmBase:
		return g.WmBase != nil
	default:
		return false
	}
}

// Missing lists the required interfaces that are still unbound.
func (g *Globals) Missing() []string {
	var missing []string
	for iface := range Supported {
		if !g.bound(iface) {
			missing = append(missing, iface)
		}
	}
	sort.Strings(missing)
	return missing
}

// Ready reports whether every required global is bound.
func (g *Globals) Ready() bool {
	return len(g.Missing()) == 0
}

// bind binds global if it is required and not bound yet.
func (g *Globals) bind(registry *wl.Registry, global wl.RegistryGlobal) (bool, error) {
	supported, ok := Supported[global.Interface]
	if !ok || g.bound(global.Interface) {
		return false, nil
	}

	version := wl.Negotiate(global.Version, supported)
	var err error
	switch global.Interface {
	case wl.InterfaceCompositor:
		g.Compositor, err = registry.BindCompositor(global.Name, version)
	case wl.InterfaceShm:
		g.Shm, err = registry.BindShm(global.Name, version)
	case wl.InterfaceSeat:
		g.Seat, err = registry.BindSeat(global.Name, version)
	case wl.InterfaceWmBase:
		g.WmBase, err = registry.BindWmBase(global.Name, version)
	}
	return err == nil, err
}
