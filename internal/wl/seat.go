package wl

import (
	"fmt"

	wayland "github.com/neurlang/wayland/wl"
	"golang.org/x/sys/unix"
)

// SeatCapability is a bitmask of the input devices behind a seat.
type SeatCapability uint32

const (
	SeatCapabilityPointer  SeatCapability = 1
	SeatCapabilityKeyboard SeatCapability = 2
	SeatCapabilityTouch    SeatCapability = 4
)

func (c SeatCapability) Has(o SeatCapability) bool {
	return c&o != 0
}

// SeatEvent is implemented by every wl_seat event.
type SeatEvent interface{ isSeatEvent() }

type SeatCapabilities struct {
	Capabilities SeatCapability
}

type SeatName struct {
	Name string
}

func (SeatCapabilities) isSeatEvent() {}
func (SeatName) isSeatEvent()         {}

type Seat struct {
	conn    *Conn
	proxy   *wayland.Seat
	version uint32
	Handler func(SeatEvent) error
}

func (s *Seat) Version() uint32 {
	return s.version
}

func (s *Seat) HandleSeatCapabilities(ev wayland.SeatCapabilitiesEvent) {
	emit(s.conn, "wl_seat", s.Handler, SeatEvent(SeatCapabilities{Capabilities: SeatCapability(ev.Capabilities)}))
}

func (s *Seat) HandleSeatName(ev wayland.SeatNameEvent) {
	emit(s.conn, "wl_seat", s.Handler, SeatEvent(SeatName{Name: ev.Name}))
}

func (s *Seat) GetKeyboard() (*Keyboard, error) {
	keyboard, err := s.proxy.GetKeyboard()
	if err != nil {
		return nil, fmt.Errorf("unable to get keyboard: %w", err)
	}
	k := &Keyboard{conn: s.conn, proxy: keyboard, version: s.version}
	keyboard.AddKeymapHandler(k)
	keyboard.AddEnterHandler(k)
	keyboard.AddLeaveHandler(k)
	keyboard.AddKeyHandler(k)
	keyboard.AddModifiersHandler(k)
	keyboard.AddRepeatInfoHandler(k)
	return k, nil
}

func (s *Seat) GetPointer() (*Pointer, error) {
	pointer, err := s.proxy.GetPointer()
	if err != nil {
		return nil, fmt.Errorf("unable to get pointer: %w", err)
	}
	p := &Pointer{conn: s.conn, proxy: pointer, version: s.version}
	pointer.AddButtonHandler(p)
	return p, nil
}

// Release needs wl_seat version 5.
func (s *Seat) Release() error {
	return s.proxy.Release()
}

// KeymapFormat describes the encoding of a keymap file.
type KeymapFormat uint32

const (
	KeymapFormatNoKeymap KeymapFormat = 0
	KeymapFormatXkbV1    KeymapFormat = 1
)

// KeyState is pressed or released.
type KeyState uint32

const (
	KeyStateReleased KeyState = 0
	KeyStatePressed  KeyState = 1
)

func (s KeyState) String() string {
	if s == KeyStatePressed {
		return "pressed"
	}
	return "released"
}

// KeyboardEvent is implemented by every wl_keyboard event.
type KeyboardEvent interface{ isKeyboardEvent() }

// KeyboardKeymap hands over a read-only keymap file. The receiver owns FD.
type KeyboardKeymap struct {
	Format KeymapFormat
	FD     int
	Size   uint32
}

type KeyboardEnter struct {
	Serial uint32
}

type KeyboardLeave struct {
	Serial uint32
}

// KeyboardKey carries a raw evdev scancode.
type KeyboardKey struct {
	Serial uint32
	Time   uint32
	Key    uint32
	State  KeyState
}

type KeyboardModifiers struct {
	Serial        uint32
	ModsDepressed uint32
	ModsLatched   uint32
	ModsLocked    uint32
	Group         uint32
}

type KeyboardRepeatInfo struct {
	Rate  int32
	Delay int32
}

func (KeyboardKeymap) isKeyboardEvent()     {}
func (KeyboardEnter) isKeyboardEvent()      {}
func (KeyboardLeave) isKeyboardEvent()      {}
func (KeyboardKey) isKeyboardEvent()        {}
func (KeyboardModifiers) isKeyboardEvent()  {}
func (KeyboardRepeatInfo) isKeyboardEvent() {}

type Keyboard struct {
	conn    *Conn
	proxy   *wayland.Keyboard
	version uint32
	Handler func(KeyboardEvent) error
}

func (k *Keyboard) HandleKeyboardKeymap(ev wayland.KeyboardKeymapEvent) {
	km := KeyboardKeymap{Format: KeymapFormat(ev.Format), FD: int(ev.Fd), Size: ev.Size}
	if k.Handler == nil {
		unix.Close(km.FD)
		return
	}
	emit(k.conn, "wl_keyboard", k.Handler, KeyboardEvent(km))
}

func (k *Keyboard) HandleKeyboardEnter(ev wayland.KeyboardEnterEvent) {
	emit(k.conn, "wl_keyboard", k.Handler, KeyboardEvent(KeyboardEnter{Serial: ev.Serial}))
}

func (k *Keyboard) HandleKeyboardLeave(ev wayland.KeyboardLeaveEvent) {
	emit(k.conn, "wl_keyboard", k.Handler, KeyboardEvent(KeyboardLeave{Serial: ev.Serial}))
}

func (k *Keyboard) HandleKeyboardKey(ev wayland.KeyboardKeyEvent) {
	emit(k.conn, "wl_keyboard", k.Handler, KeyboardEvent(KeyboardKey{Serial: ev.Serial, Time: ev.Time, Key: ev.Key, State: KeyState(ev.State)}))
}

func (k *Keyboard) HandleKeyboardModifiers(ev wayland.KeyboardModifiersEvent) {
	emit(k.conn, "wl_keyboard", k.Handler, KeyboardEvent(KeyboardModifiers{
		Serial:        ev.Serial,
		ModsDepressed: ev.ModsDepressed,
		ModsLatched:   ev.ModsLatched,
		ModsLocked:    ev.ModsLocked,
		Group:         ev.Group,
	}))
}

func (k *Keyboard) HandleKeyboardRepeatInfo(ev wayland.KeyboardRepeatInfoEvent) {
	emit(k.conn, "wl_keyboard", k.Handler, KeyboardEvent(KeyboardRepeatInfo{Rate: ev.Rate, Delay: ev.Delay}))
}

// Release needs wl_keyboard version 3.
func (k *Keyboard) Release() error {
	if k.version < 3 {
		return nil
	}
	return k.proxy.Release()
}

// PointerEvent is implemented by every wl_pointer event this client decodes.
type PointerEvent interface{ isPointerEvent() }

type PointerButton struct {
	Serial uint32
	Time   uint32
	Button uint32
	State  uint32
}

func (PointerButton) isPointerEvent() {}

type Pointer struct {
	conn    *Conn
	proxy   *wayland.Pointer
	version uint32
	Handler func(PointerEvent) error
}

func (p *Pointer) HandlePointerButton(ev wayland.PointerButtonEvent) {
	emit(p.conn, "wl_pointer", p.Handler, PointerEvent(PointerButton{Serial: ev.Serial, Time: ev.Time, Button: ev.Button, State: ev.State}))
}

// Release needs wl_pointer version 3.
func (p *Pointer) Release() error {
	if p.version < 3 {
		return nil
	}
	return p.proxy.Release()
}
