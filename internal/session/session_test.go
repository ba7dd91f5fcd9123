package session

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ItsNotGoodName/wl-handmade/internal/core"
	"github.com/ItsNotGoodName/wl-handmade/internal/frame"
	"github.com/ItsNotGoodName/wl-handmade/internal/input"
	"github.com/ItsNotGoodName/wl-handmade/internal/shm"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
	"github.com/ItsNotGoodName/wl-handmade/internal/wltest"
)

type fixture struct {
	sess    *Session
	srv     *wltest.Server
	running *core.Flag
	input   *input.Pipeline
	renders int
}

func newFixture(t *testing.T, globals ...wltest.Global) *fixture {
	conn, srv := wltest.New(t, globals...)

	alloc := shm.NewAllocator()
	alloc.Dir = t.TempDir()

	fx := &fixture{srv: srv, running: core.NewFlag()}
	fx.input = input.NewPipeline(input.Options{Bindings: input.DefaultBindings()}, fx.running)
	fx.sess = New(conn, fx.running, Options{
		Title:     "Handmade Hero",
		AppID:     "wl-handmade",
		Width:     64,
		Height:    48,
		Format:    wl.ShmFormatXrgb8888,
		Allocator: alloc,
		Input:     fx.input,
		Render: func(img frame.Image, keys input.KeyState) {
			fx.renders++
		},
	})
	return fx
}

// roundtrip dispatches everything the server sent before the call.
func (fx *fixture) roundtrip(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.sess.Conn().Roundtrip())
}

// sync also waits for the requests handlers sent while dispatching.
func (fx *fixture) sync(t *testing.T) {
	t.Helper()
	wltest.Sync(t, fx.sess.Conn())
}

func TestBootstrap(t *testing.T) {
	fx := newFixture(t, wltest.DefaultGlobals()...)
	require.Equal(t, StateConnected, fx.sess.State())

	require.NoError(t, fx.sess.Bootstrap())
	assert.Equal(t, StateSurfaceCreated, fx.sess.State())
	assert.True(t, fx.sess.Globals().Ready())
	assert.Equal(t, []wl.ShmFormat{wl.ShmFormatArgb8888, wl.ShmFormatXrgb8888}, fx.sess.Formats())

	assert.Equal(t, 4, fx.srv.Count("wl_registry.bind"))
	assert.Equal(t, 0, fx.srv.Count("wl_surface.attach"))

	names := fx.srv.Names()
	for _, name := range []string{
		"wl_compositor.create_surface",
		"xdg_wm_base.get_xdg_surface",
		"xdg_surface.get_toplevel",
		"xdg_toplevel.set_title",
		"xdg_toplevel.set_app_id",
		"wl_surface.commit",
	} {
		assert.Contains(t, names, name)
	}
	title, _ := fx.srv.Last("xdg_toplevel.set_title")
	assert.Equal(t, []string{"Handmade Hero"}, title.Strings)

	// Bootstrap runs once.
	var serr *SetupError
	assert.ErrorAs(t, fx.sess.Bootstrap(), &serr)
}

func TestAckBeforeAttach(t *testing.T) {
	fx := newFixture(t, wltest.DefaultGlobals()...)
	require.NoError(t, fx.sess.Bootstrap())

	require.NoError(t, fx.srv.Configure(0, 0, 42))
	fx.sync(t)

	assert.Equal(t, StateRunning, fx.sess.State())
	assert.Equal(t, 1, fx.srv.Count("xdg_surface.ack_configure"))
	ack, ok := fx.srv.Last("xdg_surface.ack_configure")
	require.True(t, ok)
	assert.Equal(t, []uint32{42}, ack.Args)

	names := fx.srv.Names()
	ackAt := slices.Index(names, "xdg_surface.ack_configure")
	attachAt := slices.Index(names, "wl_surface.attach")
	require.NotEqual(t, -1, attachAt)
	assert.Less(t, ackAt, attachAt)

	assert.Equal(t, 1, fx.renders)
	assert.Equal(t, 1, fx.srv.PendingFrames())

	create, ok := fx.srv.Last("wl_shm_pool.create_buffer")
	require.True(t, ok)
	assert.Equal(t, []uint32{64, 48, 256}, create.Args[2:5])
}

func TestConfigureSize(t *testing.T) {
	fx := newFixture(t, wltest.DefaultGlobals()...)
	require.NoError(t, fx.sess.Bootstrap())

	require.NoError(t, fx.srv.Configure(800, 600, 1))
	fx.roundtrip(t)
	w, h := fx.sess.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	// Zero means the client decides.
	require.NoError(t, fx.srv.Configure(0, 600, 2))
	require.NoError(t, fx.srv.Configure(320, 0, 3))
	fx.roundtrip(t)
	w, h = fx.sess.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	// Later configures are acked but do not start another frame chain.
	fx.roundtrip(t)
	assert.Equal(t, 3, fx.srv.Count("xdg_surface.ack_configure"))
	assert.Equal(t, 1, fx.srv.PendingFrames())

	require.Equal(t, 1, fx.srv.DoneFrames(16))
	fx.sync(t)
	create, ok := fx.srv.Last("wl_shm_pool.create_buffer")
	require.True(t, ok)
	assert.Equal(t, []uint32{800, 600, 3200}, create.Args[2:5])
}

func TestPingPong(t *testing.T) {
	fx := newFixture(t, wltest.DefaultGlobals()...)
	require.NoError(t, fx.sess.Bootstrap())

	require.NoError(t, fx.srv.Send(fx.srv.Object("xdg_wm_base"), 0, uint32(77)))
	fx.sync(t)

	pong, ok := fx.srv.Last("xdg_wm_base.pong")
	require.True(t, ok)
	assert.Equal(t, []uint32{77}, pong.Args)
}

func TestCloseRequested(t *testing.T) {
	fx := newFixture(t, wltest.DefaultGlobals()...)
	require.NoError(t, fx.sess.Bootstrap())

	require.NoError(t, fx.srv.Send(fx.srv.Object("xdg_toplevel"), 1))
	fx.roundtrip(t)

	assert.False(t, fx.running.Running())
	assert.Equal(t, StateClosed, fx.sess.State())
}

func TestMissingGlobals(t *testing.T) {
	fx := newFixture(t,
		wltest.Global{Name: 1, Interface: "wl_compositor", Version: 4},
		wltest.Global{Name: 2, Interface: "wl_shm", Version: 1},
	)

	err := fx.sess.Bootstrap()
	var serr *SetupError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "registry", serr.Step)
	assert.ErrorIs(t, err, ErrMissingGlobals)
	assert.Contains(t, err.Error(), "wl_seat, xdg_wm_base")
	assert.Equal(t, []string{"wl_seat", "xdg_wm_base"}, fx.sess.Globals().Missing())
}

func TestVersionNegotiationAndUnknownGlobals(t *testing.T) {
	fx := newFixture(t,
		wltest.Global{Name: 1, Interface: "wl_compositor", Version: 6},
		wltest.Global{Name: 2, Interface: "wl_shm", Version: 2},
		wltest.Global{Name: 3, Interface: "wl_seat", Version: 3},
		wltest.Global{Name: 4, Interface: "xdg_wm_base", Version: 6},
		wltest.Global{Name: 5, Interface: "wp_viewporter", Version: 1},
		wltest.Global{Name: 6, Interface: "wl_seat", Version: 9},
	)
	require.NoError(t, fx.sess.Bootstrap())

	versions := make(map[string]uint32)
	for _, r := range fx.srv.Requests() {
		if r.Name == "wl_registry.bind" {
			versions[r.Strings[0]] = r.Args[1]
		}
	}
	assert.Equal(t, map[string]uint32{
		"wl_compositor": 4,
		"wl_shm":        1,
		"wl_seat":       3,
		"xdg_wm_base":   2,
	}, versions)
	assert.Len(t, fx.sess.Globals().Advertised, 6)
}

func TestSeatBindsOnce(t *testing.T) {
	fx := newFixture(t, wltest.DefaultGlobals()...)
	require.NoError(t, fx.sess.Bootstrap())

	seat := fx.srv.Object("wl_seat")
	caps := uint32(wl.SeatCapabilityKeyboard | wl.SeatCapabilityPointer)
	require.NoError(t, fx.srv.Send(seat, 0, caps))
	require.NoError(t, fx.srv.Send(seat, 0, caps))
	require.NoError(t, fx.srv.Send(seat, 1, "seat0"))
	fx.sync(t)

	assert.Equal(t, 1, fx.srv.Count("wl_seat.get_keyboard"))
	assert.Equal(t, 1, fx.srv.Count("wl_seat.get_pointer"))
}

func TestKeyboardReachesInput(t *testing.T) {
	fx := newFixture(t, wltest.DefaultGlobals()...)
	require.NoError(t, fx.sess.Bootstrap())

	require.NoError(t, fx.srv.Send(fx.srv.Object("wl_seat"), 0, uint32(wl.SeatCapabilityKeyboard)))
	fx.sync(t)
	keyboard := fx.srv.Object("wl_keyboard")
	require.NotZero(t, keyboard)

	b, err := os.ReadFile("../xkb/testdata/us.xkb")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keymap")
	require.NoError(t, os.WriteFile(path, append(b, 0), 0600))
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, fx.srv.Send(keyboard, 0, uint32(wl.KeymapFormatXkbV1), wltest.FD(fd), uint32(len(b)+1)))
	require.NoError(t, fx.srv.Send(keyboard, 3, uint32(1), uint32(0), uint32(17), uint32(wl.KeyStatePressed)))
	fx.roundtrip(t)
	assert.True(t, fx.input.Keys().Up)

	require.NoError(t, fx.srv.Send(keyboard, 3, uint32(2), uint32(0), uint32(16), uint32(wl.KeyStatePressed)))
	fx.roundtrip(t)
	assert.False(t, fx.running.Running())
}

func TestDestroy(t *testing.T) {
	fx := newFixture(t, wltest.DefaultGlobals()...)
	require.NoError(t, fx.sess.Bootstrap())
	caps := uint32(wl.SeatCapabilityKeyboard | wl.SeatCapabilityPointer)
	require.NoError(t, fx.srv.Send(fx.srv.Object("wl_seat"), 0, caps))
	require.NoError(t, fx.srv.Configure(0, 0, 5))
	fx.sync(t)

	require.NoError(t, fx.sess.Destroy())
	require.Eventually(t, func() bool {
		return fx.srv.Count("wl_seat.release") == 1
	}, time2s, tick)
	assert.Equal(t, 1, fx.srv.Count("wl_surface.destroy"))
	assert.Equal(t, 1, fx.srv.Count("xdg_toplevel.destroy"))
	assert.Equal(t, 1, fx.srv.Count("xdg_surface.destroy"))
	assert.Equal(t, 1, fx.srv.Count("wl_buffer.destroy"))
	assert.Equal(t, 1, fx.srv.Count("wl_keyboard.release"))
	assert.Equal(t, 1, fx.srv.Count("wl_pointer.release"))

	names := fx.srv.Names()
	assert.Less(t, slices.Index(names, "xdg_toplevel.destroy"), slices.Index(names, "wl_surface.destroy"))
	assert.Less(t, slices.Index(names, "wl_keyboard.release"), slices.Index(names, "wl_seat.release"))
}

func TestDestroySkipsSeatReleaseBeforeVersion5(t *testing.T) {
	fx := newFixture(t,
		wltest.Global{Name: 1, Interface: "wl_compositor", Version: 4},
		wltest.Global{Name: 2, Interface: "wl_shm", Version: 1},
		wltest.Global{Name: 3, Interface: "wl_seat", Version: 4},
		wltest.Global{Name: 4, Interface: "xdg_wm_base", Version: 2},
	)
	require.NoError(t, fx.sess.Bootstrap())
	require.NoError(t, fx.srv.Send(fx.srv.Object("wl_seat"), 0, uint32(wl.SeatCapabilityKeyboard)))
	fx.sync(t)

	require.NoError(t, fx.sess.Destroy())
	require.Eventually(t, func() bool {
		return fx.srv.Count("wl_surface.destroy") == 1
	}, time2s, tick)
	assert.Equal(t, 1, fx.srv.Count("wl_keyboard.release"))
	assert.Zero(t, fx.srv.Count("wl_seat.release"))
}

const (
	time2s = 2 * time.Second
	tick   = 10 * time.Millisecond
)
