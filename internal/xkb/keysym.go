package xkb

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

var namedKeysyms = map[string]rune{
	"space":        ' ',
	"exclam":       '!',
	"quotedbl":     '"',
	"numbersign":   '#',
	"dollar":       '$',
	"percent":      '%',
	"ampersand":    '&',
	"apostrophe":   '\'',
	"quoteright":   '\'',
	"parenleft":    '(',
	"parenright":   ')',
	"asterisk":     '*',
	"plus":         '+',
	"comma":        ',',
	"minus":        '-',
	"period":       '.',
	"slash":        '/',
	"colon":        ':',
	"semicolon":    ';',
	"less":         '<',
	"equal":        '=',
	"greater":      '>',
	"question":     '?',
	"at":           '@',
	"bracketleft":  '[',
	"backslash":    '\\',
	"bracketright": ']',
	"asciicircum":  '^',
	"underscore":   '_',
	"grave":        '`',
	"quoteleft":    '`',
	"braceleft":    '{',
	"bar":          '|',
	"braceright":   '}',
	"asciitilde":   '~',
	"nobreakspace": 0xa0,
	"section":      0xa7,
	"degree":       0xb0,
	"sterling":     0xa3,
	"EuroSign":     0x20ac,
	"ssharp":       0xdf,
	"adiaeresis":   0xe4,
	"Adiaeresis":   0xc4,
	"odiaeresis":   0xf6,
	"Odiaeresis":   0xd6,
	"udiaeresis":   0xfc,
	"Udiaeresis":   0xdc,
	"eacute":       0xe9,
	"Eacute":       0xc9,
	"egrave":       0xe8,
	"agrave":       0xe0,
	"ccedilla":     0xe7,
	"ntilde":       0xf1,
	"BackSpace":    '\b',
	"Tab":          '\t',
	"ISO_Left_Tab": '\t',
	"Return":       '\r',
	"Escape":       0x1b,
	"Delete":       0x7f,
	"KP_Space":     ' ',
	"KP_Tab":       '\t',
	"KP_Enter":     '\r',
	"KP_Equal":     '=',
	"KP_Multiply":  '*',
	"KP_Add":       '+',
	"KP_Separator": ',',
	"KP_Subtract":  '-',
	"KP_Decimal":   '.',
	"KP_Divide":    '/',
}

// keysymRune returns the character a keysym name stands for.
func keysymRune(name string) (rune, bool) {
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return r, true
	}
	if r, ok := namedKeysyms[name]; ok {
		return r, true
	}
	if strings.HasPrefix(name, "KP_") && len(name) == 4 && name[3] >= '0' && name[3] <= '9' {
		return rune(name[3]), true
	}
	if len(name) > 1 && name[0] == 'U' {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil && utf8.ValidRune(rune(v)) {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "0x") {
		v, err := strconv.ParseUint(name[2:], 16, 32)
		if err != nil {
			return 0, false
		}
		switch {
		case (v >= 0x20 && v <= 0x7e) || (v >= 0xa0 && v <= 0xff):
			return rune(v), true
		case v >= 0x01000100 && v <= 0x0110ffff:
			return rune(v - 0x01000000), true
		}
	}
	return 0, false
}

// KeysymUTF8 returns the text a keysym name produces, or "" for keysyms such
// as Shift_L that produce none.
func KeysymUTF8(name string) string {
	r, ok := keysymRune(name)
	if !ok {
		return ""
	}
	return string(r)
}
