// Package xkb compiles keymaps in the XKB text v1 format sent by compositors
// and resolves key codes to symbols under the current modifier state.
//
// Only what is needed to turn a key press into a keysym is understood:
// keycodes, aliases, key types and symbols. Compatibility maps, geometry and
// key actions are parsed past and ignored.
package xkb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoKeymap is returned when the input compiles to a keymap without keys.
var ErrNoKeymap = errors.New("xkb: no usable keymap")

// Real modifier masks.
const (
	ModShift   uint32 = 1 << 0
	ModLock    uint32 = 1 << 1
	ModControl uint32 = 1 << 2
	ModMod1    uint32 = 1 << 3
	ModMod2    uint32 = 1 << 4
	ModMod3    uint32 = 1 << 5
	ModMod4    uint32 = 1 << 6
	ModMod5    uint32 = 1 << 7
)

var realMods = map[string]uint32{
	"shift":   ModShift,
	"lock":    ModLock,
	"control": ModControl,
	"ctrl":    ModControl,
	"mod1":    ModMod1,
	"mod2":    ModMod2,
	"mod3":    ModMod3,
	"mod4":    ModMod4,
	"mod5":    ModMod5,
}

// Where the common virtual modifiers land unless the keymap says otherwise.
var defaultVirtualMods = map[string]uint32{
	"numlock":    ModMod2,
	"alt":        ModMod1,
	"meta":       ModMod1,
	"lalt":       ModMod1,
	"ralt":       ModMod1,
	"super":      ModMod4,
	"hyper":      ModMod4,
	"levelthree": ModMod5,
	"altgr":      ModMod5,
	"levelfive":  ModMod3,
	"lcontrol":   ModControl,
	"rcontrol":   ModControl,
}

// KeyType maps a modifier combination to a shift level.
type KeyType struct {
	Name   string
	Mods   uint32
	Levels map[uint32]int
}

func (t *KeyType) level(mods uint32) int {
	return t.Levels[mods&t.Mods]
}

type group struct {
	typeName string
	typ      *KeyType
	syms     []string
}

type key struct {
	name   string
	groups []group
}

// Keymap is immutable once compiled and may be shared by several States.
type Keymap struct {
	keys  map[uint32]*key
	types map[string]*KeyType
	vmods map[string]uint32
}

// NumKeys returns how many key codes carry symbols.
func (k *Keymap) NumKeys() int {
	return len(k.keys)
}

// Type returns the named key type.
func (k *Keymap) Type(name string) (*KeyType, bool) {
	t, ok := k.types[name]
	return t, ok
}

// Compile builds a keymap from XKB text. Anything after the first NUL byte is ignored.
func Compile(text string) (*Keymap, error) {
	if i := strings.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}

	toks, err := tokenize(text)
	if err != nil {
		return nil, err
	}

	c := &compiler{
		p:        parser{toks: toks},
		keycodes: make(map[string]uint32),
		aliases:  make(map[string]string),
		keymap: &Keymap{
			keys:  make(map[uint32]*key),
			types: make(map[string]*KeyType),
			vmods: make(map[string]uint32),
		},
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	if len(c.keymap.keys) == 0 {
		return nil, ErrNoKeymap
	}
	return c.keymap, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) is(text string) bool {
	t := p.peek()
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if t := p.next(); !((t.kind == tokPunct || t.kind == tokIdent) && t.text == text) {
		return &ParseError{Line: t.line, Msg: fmt.Sprintf("expected %q, got %s", text, t)}
	}
	return nil
}

func (p *parser) expectKind(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected %s, got %s", what, t)}
	}
	return t, nil
}

// skip consumes tokens until one of stops appears outside any brackets. The
// stop token itself is left in place.
func (p *parser) skip(stops string) error {
	depth := 0
	for {
		t := p.peek()
		if t.kind == tokEOF {
			return &ParseError{Line: t.line, Msg: "unexpected end of input"}
		}
		if t.kind == tokPunct {
			if depth == 0 && strings.Contains(stops, t.text) {
				return nil
			}
			switch t.text {
			case "{", "[", "(":
				depth++
			case "}", "]", ")":
				if depth == 0 {
					return &ParseError{Line: t.line, Msg: fmt.Sprintf("unbalanced %s", t)}
				}
				depth--
			}
		}
		p.next()
	}
}

func (p *parser) skipStatement() error {
	if err := p.skip(";"); err != nil {
		return err
	}
	p.next()
	return nil
}

type compiler struct {
	p        parser
	keycodes map[string]uint32
	aliases  map[string]string
	symbols  []pendingKey
	keymap   *Keymap

	// set by modExpr when a name resolves to no real modifier
	unmapped bool
}

type pendingKey struct {
	name   string
	line   int
	groups []group
}

func (c *compiler) compile() error {
	p := &c.p
	if p.accept("xkb_keymap") {
		if p.peek().kind == tokString {
			p.next()
		}
		if err := p.expect("{"); err != nil {
			return err
		}
		if err := c.sections("}"); err != nil {
			return err
		}
		if err := p.expect("}"); err != nil {
			return err
		}
		p.accept(";")
	} else if err := c.sections(""); err != nil {
		return err
	}
	if t := p.peek(); t.kind != tokEOF {
		return &ParseError{Line: t.line, Msg: fmt.Sprintf("unexpected %s after keymap", t)}
	}
	return c.link()
}

func (c *compiler) sections(end string) error {
	p := &c.p
	for {
		t := p.peek()
		if t.kind == tokEOF || (end != "" && p.is(end)) {
			return nil
		}
		// Section flags such as "default" or "partial".
		for t.kind == tokIdent && !strings.HasPrefix(t.text, "xkb_") {
			p.next()
			t = p.peek()
		}
		if t.kind != tokIdent {
			return &ParseError{Line: t.line, Msg: fmt.Sprintf("expected section, got %s", t)}
		}
		p.next()
		if p.peek().kind == tokString {
			p.next()
		}
		if err := p.expect("{"); err != nil {
			return err
		}

		var stmt func() error
		switch t.text {
		case "xkb_keycodes":
			stmt = c.keycodeStatement
		case "xkb_types":
			stmt = c.typeStatement
		case "xkb_symbols":
			stmt = c.symbolStatement
		default:
			stmt = p.skipStatement
		}
		for !p.is("}") {
			if p.peek().kind == tokEOF {
				return &ParseError{Line: p.peek().line, Msg: fmt.Sprintf("unterminated %s section", t.text)}
			}
			if err := stmt(); err != nil {
				return err
			}
		}
		p.next()
		if err := p.expect(";"); err != nil {
			return err
		}
	}
}

func (c *compiler) keycodeStatement() error {
	p := &c.p
	switch t := p.peek(); {
	case t.kind == tokKeyName:
		p.next()
		if err := p.expect("="); err != nil {
			return err
		}
		n, err := c.number()
		if err != nil {
			return err
		}
		c.keycodes[t.text] = n
		return p.expect(";")
	case t.kind == tokIdent && t.text == "alias":
		p.next()
		alias, err := p.expectKind(tokKeyName, "key name")
		if err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		real, err := p.expectKind(tokKeyName, "key name")
		if err != nil {
			return err
		}
		c.aliases[alias.text] = real.text
		return p.expect(";")
	default:
		return p.skipStatement()
	}
}

func (c *compiler) number() (uint32, error) {
	t, err := c.p.expectKind(tokNumber, "number")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(t.text, 0, 32)
	if err != nil {
		return 0, &ParseError{Line: t.line, Msg: fmt.Sprintf("invalid number %s", t)}
	}
	return uint32(n), nil
}

func (c *compiler) typeStatement() error {
	p := &c.p
	switch {
	case p.is("virtual_modifiers"):
		p.next()
		return c.virtualModifiers()
	case p.is("type"):
		p.next()
		name, err := p.expectKind(tokString, "type name")
		if err != nil {
			return err
		}
		if err := p.expect("{"); err != nil {
			return err
		}
		kt := &KeyType{Name: name.text, Levels: make(map[uint32]int)}
		for !p.is("}") {
			if err := c.typeField(kt); err != nil {
				return err
			}
		}
		p.next()
		c.keymap.types[kt.Name] = kt
		return p.expect(";")
	default:
		return p.skipStatement()
	}
}

func (c *compiler) virtualModifiers() error {
	p := &c.p
	for {
		t, err := p.expectKind(tokIdent, "virtual modifier")
		if err != nil {
			return err
		}
		if p.accept("=") {
			mask, err := c.modExpr()
			if err != nil {
				return err
			}
			c.keymap.vmods[strings.ToLower(t.text)] = mask
		} else if _, ok := c.keymap.vmods[strings.ToLower(t.text)]; !ok {
			c.keymap.vmods[strings.ToLower(t.text)] = defaultVirtualMods[strings.ToLower(t.text)]
		}
		if !p.accept(",") {
			return p.expect(";")
		}
	}
}

func (c *compiler) typeField(kt *KeyType) error {
	p := &c.p
	switch {
	case p.is("modifiers"):
		p.next()
		if err := p.expect("="); err != nil {
			return err
		}
		mask, err := c.modExpr()
		if err != nil {
			return err
		}
		kt.Mods = mask
		return p.expect(";")
	case p.is("map"):
		p.next()
		if err := p.expect("["); err != nil {
			return err
		}
		mask, err := c.modExpr()
		if err != nil {
			return err
		}
		if err := p.expect("]"); err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		unmapped := c.unmapped
		level, err := c.index("Level")
		if err != nil {
			return err
		}
		if !unmapped {
			kt.Levels[mask] = level
		}
		return p.expect(";")
	default:
		return p.skipStatement()
	}
}

// modExpr parses Shift+Lock style masks.
func (c *compiler) modExpr() (uint32, error) {
	p := &c.p
	var mask uint32
	c.unmapped = false
	for {
		t := p.next()
		switch t.kind {
		case tokIdent:
			name := strings.ToLower(t.text)
			switch {
			case name == "none":
			case name == "all" || name == "any":
				mask |= 0xff
			default:
				if m, ok := realMods[name]; ok {
					mask |= m
				} else if m := c.vmod(name); m != 0 {
					mask |= m
				} else {
					c.unmapped = true
				}
			}
		case tokNumber:
			n, err := strconv.ParseUint(t.text, 0, 32)
			if err != nil {
				return 0, &ParseError{Line: t.line, Msg: fmt.Sprintf("invalid mask %s", t)}
			}
			mask |= uint32(n)
		default:
			return 0, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected modifier, got %s", t)}
		}
		if !p.accept("+") {
			return mask, nil
		}
	}
}

func (c *compiler) vmod(name string) uint32 {
	if m, ok := c.keymap.vmods[name]; ok {
		return m
	}
	return defaultVirtualMods[name]
}

// index parses "Level2", "Group2" or "2" into a zero-based index.
func (c *compiler) index(prefix string) (int, error) {
	t := c.p.next()
	text := t.text
	if t.kind == tokIdent && strings.HasPrefix(strings.ToLower(text), strings.ToLower(prefix)) {
		text = text[len(prefix):]
	} else if t.kind != tokNumber {
		return 0, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected %s index, got %s", strings.ToLower(prefix), t)}
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 {
		return 0, &ParseError{Line: t.line, Msg: fmt.Sprintf("invalid %s index %s", strings.ToLower(prefix), t)}
	}
	return n - 1, nil
}

func (c *compiler) symbolStatement() error {
	p := &c.p
	if !p.is("key") {
		return p.skipStatement()
	}
	p.next()
	name, err := p.expectKind(tokKeyName, "key name")
	if err != nil {
		return err
	}
	if err := p.expect("{"); err != nil {
		return err
	}

	pk := pendingKey{name: name.text, line: name.line}
	implicit := 0
	for !p.is("}") {
		switch {
		case p.is("["):
			syms, err := c.symbolList()
			if err != nil {
				return err
			}
			pk.setSyms(implicit, syms)
			implicit++
		case p.is("symbols"):
			p.next()
			idx := implicit
			if p.accept("[") {
				if idx, err = c.index("Group"); err != nil {
					return err
				}
				if err := p.expect("]"); err != nil {
					return err
				}
			}
			if err := p.expect("="); err != nil {
				return err
			}
			syms, err := c.symbolList()
			if err != nil {
				return err
			}
			pk.setSyms(idx, syms)
			implicit = idx + 1
		case p.is("type"):
			p.next()
			idx := -1
			if p.accept("[") {
				if idx, err = c.index("Group"); err != nil {
					return err
				}
				if err := p.expect("]"); err != nil {
					return err
				}
			}
			if err := p.expect("="); err != nil {
				return err
			}
			typeName, err := p.expectKind(tokString, "type name")
			if err != nil {
				return err
			}
			pk.setType(idx, typeName.text)
		default:
			// actions, repeat, virtualMods and friends
			if err := p.skip(",}"); err != nil {
				return err
			}
		}
		if !p.accept(",") && !p.is("}") {
			t := p.peek()
			return &ParseError{Line: t.line, Msg: fmt.Sprintf("expected , or } in key <%s>, got %s", name.text, t)}
		}
	}
	p.next()
	c.symbols = append(c.symbols, pk)
	return p.expect(";")
}

func (c *compiler) symbolList() ([]string, error) {
	p := &c.p
	if err := p.expect("["); err != nil {
		return nil, err
	}
	var syms []string
	for !p.is("]") {
		t := p.next()
		switch t.kind {
		case tokIdent, tokNumber:
			syms = append(syms, t.text)
		case tokPunct:
			if t.text == "{" {
				// Multiple keysyms per level, keep the first.
				first := ""
				for !p.is("}") {
					s := p.next()
					if s.kind == tokEOF {
						return nil, &ParseError{Line: s.line, Msg: "unterminated keysym list"}
					}
					if first == "" && (s.kind == tokIdent || s.kind == tokNumber) {
						first = s.text
					}
				}
				p.next()
				syms = append(syms, first)
				break
			}
			fallthrough
		default:
			return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected keysym, got %s", t)}
		}
		if !p.accept(",") && !p.is("]") {
			t := p.peek()
			return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected , or ] in keysym list, got %s", t)}
		}
	}
	p.next()
	return syms, nil
}

func (k *pendingKey) grow(idx int) {
	for len(k.groups) <= idx {
		k.groups = append(k.groups, group{})
	}
}

func (k *pendingKey) setSyms(idx int, syms []string) {
	k.grow(idx)
	k.groups[idx].syms = syms
}

func (k *pendingKey) setType(idx int, name string) {
	if idx < 0 {
		k.grow(0)
		for i := range k.groups {
			k.groups[i].typeName = name
		}
		return
	}
	k.grow(idx)
	k.groups[idx].typeName = name
}

// link resolves key names to codes and assigns a type to every group.
func (c *compiler) link() error {
	for _, pk := range c.symbols {
		name := pk.name
		if real, ok := c.aliases[name]; ok {
			name = real
		}
		code, ok := c.keycodes[name]
		if !ok {
			// Symbols for keys the keycodes section does not define are dropped.
			continue
		}

		k := &key{name: name}
		for _, g := range pk.groups {
			if len(g.syms) == 0 {
				continue
			}
			t, ok := c.keymap.types[g.typeName]
			if !ok {
				if g.typeName != "" {
					t, ok = builtinType(g.typeName, c.keymap.vmods)
				}
				if !ok {
					t = c.automaticType(g.syms)
				}
			}
			g.typ = t
			k.groups = append(k.groups, g)
		}
		if len(k.groups) > 0 {
			c.keymap.keys[code] = k
		}
	}
	return nil
}

func (c *compiler) automaticType(syms []string) *KeyType {
	name := "ONE_LEVEL"
	switch {
	case len(syms) <= 1:
	case len(syms) == 2:
		switch {
		case isLowerUpper(syms[0], syms[1]):
			name = "ALPHABETIC"
		case isKeypad(syms[0]) || isKeypad(syms[1]):
			name = "KEYPAD"
		default:
			name = "TWO_LEVEL"
		}
	default:
		switch {
		case isLowerUpper(syms[0], syms[1]):
			name = "FOUR_LEVEL_ALPHABETIC"
			if len(syms) > 3 && !isLowerUpper(syms[2], syms[3]) {
				name = "FOUR_LEVEL_SEMIALPHABETIC"
			}
		case isKeypad(syms[0]) || isKeypad(syms[1]):
			name = "FOUR_LEVEL_KEYPAD"
		default:
			name = "FOUR_LEVEL"
		}
	}
	if t, ok := c.keymap.types[name]; ok {
		return t
	}
	t, _ := builtinType(name, c.keymap.vmods)
	return t
}

func isLowerUpper(lower, upper string) bool {
	l, lok := keysymRune(lower)
	u, uok := keysymRune(upper)
	return lok && uok && l != u && strings.ToUpper(string(l)) == string(u)
}

func isKeypad(sym string) bool {
	return strings.HasPrefix(sym, "KP_")
}

func builtinType(name string, vmods map[string]uint32) (*KeyType, bool) {
	vmod := func(n string) uint32 {
		if m, ok := vmods[n]; ok && m != 0 {
			return m
		}
		return defaultVirtualMods[n]
	}
	numLock := vmod("numlock")
	l3 := vmod("levelthree")

	t := &KeyType{Name: name, Levels: make(map[uint32]int)}
	switch name {
	case "ONE_LEVEL":
	case "TWO_LEVEL":
		t.Mods = ModShift
		t.Levels[ModShift] = 1
	case "ALPHABETIC":
		t.Mods = ModShift | ModLock
		t.Levels[ModShift] = 1
		t.Levels[ModLock] = 1
	case "KEYPAD":
		t.Mods = ModShift | numLock
		t.Levels[ModShift] = 1
		t.Levels[numLock] = 1
	case "FOUR_LEVEL":
		t.Mods = ModShift | l3
		t.Levels[ModShift] = 1
		t.Levels[l3] = 2
		t.Levels[ModShift|l3] = 3
	case "FOUR_LEVEL_ALPHABETIC":
		t.Mods = ModShift | ModLock | l3
		t.Levels[ModShift] = 1
		t.Levels[ModLock] = 1
		t.Levels[l3] = 2
		t.Levels[ModShift|l3] = 3
		t.Levels[ModLock|l3] = 3
		t.Levels[ModShift|ModLock|l3] = 2
	case "FOUR_LEVEL_SEMIALPHABETIC":
		t.Mods = ModShift | ModLock | l3
		t.Levels[ModShift] = 1
		t.Levels[ModLock] = 1
		t.Levels[l3] = 2
		t.Levels[ModShift|l3] = 3
		t.Levels[ModLock|l3] = 2
		t.Levels[ModShift|ModLock|l3] = 3
	case "FOUR_LEVEL_KEYPAD":
		t.Mods = ModShift | numLock | l3
		t.Levels[ModShift] = 1
		t.Levels[numLock] = 1
		t.Levels[l3] = 2
		t.Levels[ModShift|l3] = 3
		t.Levels[numLock|l3] = 3
		t.Levels[ModShift|numLock|l3] = 2
	default:
		return nil, false
	}
	return t, true
}
