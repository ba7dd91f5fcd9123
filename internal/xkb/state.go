package xkb

// State tracks the modifier and group state of one keyboard.
type State struct {
	keymap *Keymap

	depressed uint32
	latched   uint32
	locked    uint32
	group     int32
}

func NewState(keymap *Keymap) *State {
	return &State{keymap: keymap}
}

func (s *State) Keymap() *Keymap {
	return s.keymap
}

// UpdateMask replaces the modifier state with the values serialized by the compositor.
func (s *State) UpdateMask(depressedMods, latchedMods, lockedMods, depressedLayout, latchedLayout, lockedLayout uint32) {
	s.depressed = depressedMods
	s.latched = latchedMods
	s.locked = lockedMods
	s.group = int32(depressedLayout) + int32(latchedLayout) + int32(lockedLayout)
}

// Mods returns the effective modifier mask.
func (s *State) Mods() uint32 {
	return s.depressed | s.latched | s.locked
}

func (s *State) lookup(keycode uint32) (*group, uint32) {
	k, ok := s.keymap.keys[keycode]
	if !ok {
		return nil, 0
	}
	// Out of range groups wrap around.
	n := int32(len(k.groups))
	g := s.group % n
	if g < 0 {
		g += n
	}
	return &k.groups[g], s.Mods()
}

// KeySym returns the keysym name the key produces right now, or "" when the
// key has no symbol at the current level.
func (s *State) KeySym(keycode uint32) string {
	g, mods := s.lookup(keycode)
	if g == nil {
		return ""
	}
	level := g.typ.level(mods)
	if level >= len(g.syms) || g.syms[level] == "NoSymbol" {
		return ""
	}
	return g.syms[level]
}

// KeyUTF8 returns the text the key produces right now. Control is applied to
// ASCII letters when the key type does not consume it.
func (s *State) KeyUTF8(keycode uint32) string {
	sym := s.KeySym(keycode)
	if sym == "" {
		return ""
	}
	r, ok := keysymRune(sym)
	if !ok {
		return ""
	}

	g, mods := s.lookup(keycode)
	if mods&ModControl != 0 && g.typ.Mods&ModControl == 0 {
		if (r >= '@' && r < 0x7f) || r == ' ' {
			r &= 0x1f
		}
	}
	return string(r)
}
