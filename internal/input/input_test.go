package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ItsNotGoodName/wl-handmade/internal/core"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
	"github.com/ItsNotGoodName/wl-handmade/internal/xkb"
)

const (
	keyQ = 16
	keyW = 17
	keyA = 30
	keyS = 31
	keyD = 32
)

// keymapFD returns a descriptor the pipeline may close.
func keymapFD(t *testing.T, text string) (int, uint32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keymap")
	require.NoError(t, os.WriteFile(path, append([]byte(text), 0), 0600))
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	return fd, uint32(len(text) + 1)
}

func usKeymap(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile("../xkb/testdata/us.xkb")
	require.NoError(t, err)
	return string(b)
}

func newPipeline(t *testing.T) (*Pipeline, *core.Flag) {
	running := core.NewFlag()
	p := NewPipeline(Options{Mode: ModeSymbol, Bindings: DefaultBindings()}, running)
	fd, size := keymapFD(t, usKeymap(t))
	require.NoError(t, p.Handle(wl.KeyboardKeymap{Format: wl.KeymapFormatXkbV1, FD: fd, Size: size}))
	require.True(t, p.HasKeymap())
	return p, running
}

func press(p *Pipeline, key uint32) {
	p.Handle(wl.KeyboardKey{Key: key, State: wl.KeyStatePressed})
}

func release(p *Pipeline, key uint32) {
	p.Handle(wl.KeyboardKey{Key: key, State: wl.KeyStateReleased})
}

func TestPressRelease(t *testing.T) {
	p, running := newPipeline(t)

	press(p, keyA)
	assert.True(t, p.Keys().Left)
	release(p, keyA)
	assert.False(t, p.Keys().Left)
	assert.True(t, running.Running())
}

func TestSimultaneousKeys(t *testing.T) {
	p, _ := newPipeline(t)

	press(p, keyW)
	press(p, keyD)
	assert.Equal(t, KeyState{Up: true, Right: true}, p.Keys())

	press(p, keyS)
	release(p, keyW)
	assert.Equal(t, KeyState{Down: true, Right: true}, p.Keys())
}

func TestQuitWhileHolding(t *testing.T) {
	p, running := newPipeline(t)

	press(p, keyW)
	press(p, keyA)
	press(p, keyQ)
	assert.False(t, running.Running())
	assert.Equal(t, KeyState{Up: true, Left: true}, p.Keys())
}

func TestModifiersChangeSymbol(t *testing.T) {
	p, _ := newPipeline(t)

	p.Handle(wl.KeyboardModifiers{ModsDepressed: xkb.ModShift})
	assert.Equal(t, "A", p.Symbol(keyA))
	press(p, keyA)
	assert.False(t, p.Keys().Left)

	p.Handle(wl.KeyboardModifiers{})
	assert.Equal(t, "a", p.Symbol(keyA))
}

func TestReleaseAfterModifierChange(t *testing.T) {
	p, _ := newPipeline(t)

	press(p, keyW)
	p.Handle(wl.KeyboardModifiers{ModsDepressed: xkb.ModShift})
	assert.Equal(t, "W", p.Symbol(keyW))
	release(p, keyW)
	assert.Equal(t, KeyState{}, p.Keys())
}

func TestControlQuit(t *testing.T) {
	p, running := newPipeline(t)

	p.Handle(wl.KeyboardModifiers{ModsDepressed: xkb.ModControl})
	assert.Equal(t, "\x11", p.Symbol(keyQ))
	press(p, keyQ)
	assert.False(t, running.Running())
}

func TestLeaveClearsKeys(t *testing.T) {
	p, _ := newPipeline(t)
	press(p, keyW)
	press(p, keyD)
	require.NoError(t, p.Handle(wl.KeyboardLeave{}))
	assert.Equal(t, KeyState{}, p.Keys())
}

func TestKeyBeforeKeymap(t *testing.T) {
	running := core.NewFlag()
	p := NewPipeline(Options{Bindings: DefaultBindings()}, running)
	press(p, keyQ)
	press(p, keyW)
	assert.True(t, running.Running())
	assert.Equal(t, KeyState{}, p.Keys())
}

func TestKeymapReplaced(t *testing.T) {
	p, _ := newPipeline(t)

	fd, size := keymapFD(t, `xkb_keymap {
	xkb_keycodes { <AC01> = 38; };
	xkb_symbols { key <AC01> { [ d ] }; };
};`)
	require.NoError(t, p.LoadKeymap(wl.KeymapFormatXkbV1, fd, size))
	press(p, keyA)
	assert.Equal(t, KeyState{Right: true}, p.Keys())
}

func TestKeymapErrors(t *testing.T) {
	p := NewPipeline(Options{Bindings: DefaultBindings()}, core.NewFlag())

	fd, size := keymapFD(t, "xkb_keymap { xkb_keycodes { <A> = ; }; };")
	assert.Error(t, p.LoadKeymap(wl.KeymapFormatXkbV1, fd, size))
	assert.False(t, p.HasKeymap())

	fd, size = keymapFD(t, "")
	assert.ErrorIs(t, p.LoadKeymap(wl.KeymapFormatXkbV1, fd, size), xkb.ErrNoKeymap)

	fd, size = keymapFD(t, "anything")
	assert.NoError(t, p.LoadKeymap(wl.KeymapFormatNoKeymap, fd, size))
	assert.False(t, p.HasKeymap())
}

func TestRawMode(t *testing.T) {
	running := core.NewFlag()
	p := NewPipeline(Options{Mode: ModeRaw, QuitKeycode: keyQ}, running)

	fd, size := keymapFD(t, usKeymap(t))
	require.NoError(t, p.LoadKeymap(wl.KeymapFormatXkbV1, fd, size))
	assert.False(t, p.HasKeymap())

	press(p, keyA)
	assert.Equal(t, KeyState{}, p.Keys())
	release(p, keyQ)
	assert.True(t, running.Running())
	press(p, keyQ)
	assert.False(t, running.Running())
}
