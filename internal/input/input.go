package input

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/ItsNotGoodName/wl-handmade/internal/core"
	"github.com/ItsNotGoodName/wl-handmade/internal/shm"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
	"github.com/ItsNotGoodName/wl-handmade/internal/xkb"
)

// Evdev codes sit 8 below XKB keycodes.
const KeycodeOffset = 8

// KeyState is the logical direction keys.
type KeyState struct {
	Up    bool
	Left  bool
	Right bool
	Down  bool
}

type Mode string

const (
	// ModeSymbol compiles the keymap and matches resolved symbols.
	ModeSymbol Mode = "symbol"
	// ModeRaw ignores the keymap and only watches for the quit key code.
	ModeRaw Mode = "raw"
)

// Bindings are the symbols driving each logical key.
type Bindings struct {
	Up    string
	Left  string
	Down  string
	Right string
	Quit  string
}

func DefaultBindings() Bindings {
	return Bindings{Up: "w", Left: "a", Down: "s", Right: "d", Quit: "q"}
}

type Options struct {
	Mode     Mode
	Bindings Bindings
	// QuitKeycode is the evdev code that quits in ModeRaw.
	QuitKeycode uint32
}

type Pipeline struct {
	opts    Options
	running *core.Flag

	keys KeyState
	// held maps a pressed key code to the key it drives, so the release
	// clears it whatever the modifiers are by then.
	held   map[uint32]*bool
	keymap *xkb.Keymap
	state  *xkb.State
}

func NewPipeline(opts Options, running *core.Flag) *Pipeline {
	if opts.Mode == "" {
		opts.Mode = ModeSymbol
	}
	return &Pipeline{opts: opts, running: running, held: make(map[uint32]*bool)}
}

// Keys returns a copy of the logical key state.
func (p *Pipeline) Keys() KeyState {
	return p.keys
}

// HasKeymap reports whether a keymap has been compiled.
func (p *Pipeline) HasKeymap() bool {
	return p.state != nil
}

// Handle is installed as the wl_keyboard handler.
func (p *Pipeline) Handle(ev wl.KeyboardEvent) error {
	switch ev := ev.(type) {
	case wl.KeyboardKeymap:
		return p.LoadKeymap(ev.Format, ev.FD, ev.Size)
	case wl.KeyboardModifiers:
		p.UpdateModifiers(ev.ModsDepressed, ev.ModsLatched, ev.ModsLocked, ev.Group)
	case wl.KeyboardKey:
		p.Key(ev.Key, ev.State)
	case wl.KeyboardLeave:
		p.keys = KeyState{}
		clear(p.held)
	case wl.KeyboardRepeatInfo:
		slog.Debug("Keyboard repeat info", "package", "input", "rate", ev.Rate, "delay", ev.Delay)
	default:
	}
	return nil
}

// LoadKeymap compiles the keymap behind fd and replaces the current decoder.
// The descriptor is always closed.
func (p *Pipeline) LoadKeymap(format wl.KeymapFormat, fd int, size uint32) error {
	defer unix.Close(fd)

	if p.opts.Mode == ModeRaw {
		return nil
	}
	if format != wl.KeymapFormatXkbV1 {
		slog.Debug("Ignoring keymap", "package", "input", "format", format)
		return nil
	}

	data, err := shm.MapReadOnly(fd, int(size))
	if err != nil {
		return fmt.Errorf("input: failed to map keymap: %w", err)
	}
	defer shm.Unmap(data)

	keymap, err := xkb.Compile(string(data))
	if err != nil {
		return fmt.Errorf("input: keymap compilation failed: %w", err)
	}

	p.keymap = keymap
	p.state = xkb.NewState(keymap)
	slog.Debug("Compiled keymap", "package", "input", "size", size, "keys", keymap.NumKeys())
	return nil
}

// UpdateModifiers applies group to the depressed, latched and locked layout alike.
func (p *Pipeline) UpdateModifiers(depressed, latched, locked, group uint32) {
	if p.state == nil {
		return
	}
	p.state.UpdateMask(depressed, latched, locked, group, group, group)
}

// Symbol resolves an evdev key code to the text it produces.
func (p *Pipeline) Symbol(key uint32) string {
	if p.state == nil {
		return ""
	}
	return p.state.KeyUTF8(key + KeycodeOffset)
}

// binding is the text of the key's symbol at the current level. Unlike Symbol
// it ignores Control, so Ctrl+q still matches q.
func (p *Pipeline) binding(key uint32) string {
	return xkb.KeysymUTF8(p.state.KeySym(key + KeycodeOffset))
}

// Key applies a press or release of an evdev key code.
func (p *Pipeline) Key(key uint32, state wl.KeyState) {
	pressed := state == wl.KeyStatePressed

	if p.opts.Mode == ModeRaw {
		if pressed && key == p.opts.QuitKeycode {
			slog.Debug("exit: quit key pressed", "package", "input", "key", key)
			p.running.Stop()
		}
		return
	}

	if !pressed {
		if field, ok := p.held[key]; ok {
			*field = false
			delete(p.held, key)
		}
		return
	}

	if p.state == nil {
		slog.Debug("Key before keymap", "package", "input", "key", key)
		return
	}

	sym := p.binding(key)
	b := p.opts.Bindings
	var field *bool
	switch {
	case sym == "":
	case sym == b.Quit:
		slog.Debug("exit: quit key pressed", "package", "input", "symbol", sym)
		p.running.Stop()
	case sym == b.Up:
		field = &p.keys.Up
	case sym == b.Left:
		field = &p.keys.Left
	case sym == b.Down:
		field = &p.keys.Down
	case sym == b.Right:
		field = &p.keys.Right
	}
	if field != nil {
		*field = true
		p.held[key] = field
	}
}
