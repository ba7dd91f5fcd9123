package session

import (
	"log/slog"

	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
)

func (s *Session) handleRegistry(ev wl.RegistryEvent) error {
	switch ev := ev.(type) {
	case wl.RegistryGlobal:
		s.globals.Advertised[ev.Name] = ev
		ok, err := s.globals.bind(s.registry, ev)
		if err != nil {
			return err
		}
		if ok {
			slog.Debug("Bound global", "package", "session", "interface", ev.Interface, "name", ev.Name, "version", ev.Version)
		}
	case wl.RegistryGlobalRemove:
		delete(s.globals.Advertised, ev.Name)
		slog.Debug("Global removed", "package", "session", "name", ev.Name)
	default:
	}
	return nil
}

func (s *Session) handleShm(ev wl.ShmEvent) error {
	switch ev := ev.(type) {
	case wl.ShmFormatEvent:
		s.formats = append(s.formats, ev.Format)
	default:
	}
	return nil
}

func (s *Session) handleWmBase(ev wl.WmBaseEvent) error {
	switch ev := ev.(type) {
	case wl.WmBasePing:
		return s.globals.WmBase.Pong(ev.Serial)
	default:
	}
	return nil
}

func (s *Session) handleSeat(ev wl.SeatEvent) error {
	switch ev := ev.(type) {
	case wl.SeatCapabilities:
		if ev.Capabilities.Has(wl.SeatCapabilityKeyboard) && s.keyboard == nil {
			keyboard, err := s.globals.Seat.GetKeyboard()
			if err != nil {
				return err
			}
			if s.opts.Input != nil {
				keyboard.Handler = s.opts.Input.Handle
			}
			s.keyboard = keyboard
			slog.Debug("Bound keyboard", "package", "session")
		}
		if ev.Capabilities.Has(wl.SeatCapabilityPointer) && s.pointer == nil {
			pointer, err := s.globals.Seat.GetPointer()
			if err != nil {
				return err
			}
			pointer.Handler = s.handlePointer
			s.pointer = pointer
			slog.Debug("Bound pointer", "package", "session")
		}
	case wl.SeatName:
		slog.Debug("Seat", "package", "session", "name", ev.Name)
	default:
	}
	return nil
}

func (s *Session) handlePointer(ev wl.PointerEvent) error {
	switch ev := ev.(type) {
	case wl.PointerButton:
		slog.Debug("Pointer button", "package", "session", "button", ev.Button, "state", ev.State)
	default:
	}
	return nil
}

func (s *Session) handleSurface(ev wl.SurfaceEvent) error {
	switch ev := ev.(type) {
	case wl.SurfaceEnter:
		slog.Debug("Surface entered output", "package", "session", "output", ev.Output)
	case wl.SurfaceLeave:
		slog.Debug("Surface left output", "package", "session", "output", ev.Output)
	default:
	}
	return nil
}

func (s *Session) handleXdgSurface(ev wl.XdgSurfaceEvent) error {
	switch ev := ev.(type) {
	case wl.XdgSurfaceConfigure:
		// The ack must go out before any buffer is attached.
		if err := s.xdgSurface.AckConfigure(ev.Serial); err != nil {
			return err
		}
		slog.Debug("Acked configure", "package", "session", "serial", ev.Serial, "width", s.width, "height", s.height)

		if s.state == StateSurfaceCreated {
			s.state = StateConfigured
			if err := s.frames.Start(); err != nil {
				return err
			}
			s.state = StateRunning
		}
	default:
	}
	return nil
}

func (s *Session) handleToplevel(ev wl.ToplevelEvent) error {
	switch ev := ev.(type) {
	case wl.ToplevelConfigure:
		if ev.Width > 0 && ev.Height > 0 {
			s.width, s.height = int(ev.Width), int(ev.Height)
		}
	case wl.ToplevelClose:
		slog.Debug("exit: close requested", "package", "session")
		s.Close()
	case wl.ToplevelConfigureBounds:
		slog.Debug("Toplevel bounds", "package", "session", "width", ev.Width, "height", ev.Height)
	default:
	}
	return nil
}
