package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ItsNotGoodName/wl-handmade/internal/shm"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
)

// BytesPerPixel of the 32-bit formats this package presents.
const BytesPerPixel = 4

var ErrInvalidGeometry = errors.New("frame: invalid geometry")

// Geometry describes the layout of one buffer.
type Geometry struct {
	Width  int
	Height int
	Stride int
	Size   int
}

func NewGeometry(width, height, bytesPerPixel int) Geometry {
	stride := width * bytesPerPixel
	return Geometry{
		Width:  width,
		Height: height,
		Stride: stride,
		Size:   height * stride,
	}
}

// Image is the pixel memory handed to a RenderFunc. It must not be retained
// after the call returns and holds whatever the previous owner left in it.
type Image struct {
	Pix    []byte
	Width  int
	Height int
	Stride int
}

type RenderFunc func(img Image)

// Observer is told about every presented frame and released buffer.
type Observer interface {
	FramePresented(outstanding int)
	BufferReleased(outstanding int)
	FrameTime(dt time.Duration)
}

// Buffer is a wl_buffer together with the mapping behind it.
type Buffer struct {
	*wl.Buffer
	Geometry

	data     []byte
	attached bool
}

// Bytes returns the mapped pixels.
func (b *Buffer) Bytes() []byte {
	return b.data
}

type Manager struct {
	shm     *wl.Shm
	surface *wl.Surface
	alloc   shm.Allocator
	format  wl.ShmFormat
	render  RenderFunc
	size    func() (int, int)

	// Observer may be nil.
	Observer Observer

	pending     *wl.Callback
	outstanding int
	live        map[*Buffer]struct{}
	timing      Timing
	frames      uint64
}

// NewManager draws on surface with render. size is asked for the window
// dimensions before every frame.
func NewManager(s *wl.Shm, surface *wl.Surface, alloc shm.Allocator, format wl.ShmFormat, size func() (int, int), render RenderFunc) *Manager {
	return &Manager{
		shm:     s,
		surface: surface,
		alloc:   alloc,
		format:  format,
		render:  render,
		size:    size,
		live:    make(map[*Buffer]struct{}),
	}
}

// Outstanding returns the number of attached buffers the compositor has not released.
func (m *Manager) Outstanding() int {
	return m.outstanding
}

// Frames returns the number of frames presented.
func (m *Manager) Frames() uint64 {
	return m.frames
}

// Started reports whether a frame callback is pending.
func (m *Manager) Started() bool {
	return m.pending != nil
}

// Produce allocates a fresh pool sized for g, carves one buffer out of it and
// renders into it. The pool is destroyed before returning, the mapping lives
// until the buffer is released.
func (m *Manager) Produce(g Geometry, render RenderFunc) (*Buffer, error) {
	if g.Width <= 0 || g.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, g.Width, g.Height)
	}
	if g.Size > math.MaxInt32 || g.Stride > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d bytes does not fit a pool", ErrInvalidGeometry, g.Size)
	}

	f, err := m.alloc.Allocate(g.Size)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := shm.Map(f, g.Size)
	if err != nil {
		return nil, err
	}

	wlBuffer, err := m.createBuffer(int(f.Fd()), g)
	if err != nil {
		shm.Unmap(data)
		return nil, err
	}

	b := &Buffer{Buffer: wlBuffer, Geometry: g, data: data}
	wlBuffer.Handler = func(wl.BufferEvent) error {
		return m.release(b)
	}
	m.live[b] = struct{}{}

	if render != nil {
		render(Image{Pix: data, Width: g.Width, Height: g.Height, Stride: g.Stride})
	}
	return b, nil
}

func (m *Manager) createBuffer(fd int, g Geometry) (_ *wl.Buffer, err error) {
	pool, err := m.shm.CreatePool(fd, int32(g.Size))
	if err != nil {
		return nil, err
	}
	defer func() {
		if derr := pool.Destroy(); derr != nil {
			err = errors.Join(err, derr)
		}
	}()

	return pool.CreateBuffer(0, int32(g.Width), int32(g.Height), int32(g.Stride), m.format)
}

// Present attaches b, damages the whole surface and commits.
func (m *Manager) Present(b *Buffer) error {
	if err := m.surface.Attach(b.Buffer, 0, 0); err != nil {
		return err
	}
	b.attached = true
	m.outstanding++

	if m.surface.Version() >= 4 {
		if err := m.surface.DamageBuffer(0, 0, int32(b.Width), int32(b.Height)); err != nil {
			return err
		}
	} else if err := m.surface.Damage(0, 0, int32(b.Width), int32(b.Height)); err != nil {
		return err
	}
	if err := m.surface.Commit(); err != nil {
		return err
	}

	m.frames++
	if m.Observer != nil {
		m.Observer.FramePresented(m.outstanding)
	}
	return nil
}

// release destroys the buffer the compositor handed back.
func (m *Manager) release(b *Buffer) error {
	if _, ok := m.live[b]; !ok {
		return nil
	}
	delete(m.live, b)

	if b.attached {
		b.attached = false
		m.outstanding--
	}
	if m.Observer != nil {
		m.Observer.BufferReleased(m.outstanding)
	}

	err := b.Destroy()
	if uerr := shm.Unmap(b.data); uerr != nil && err == nil {
		err = uerr
	}
	b.data = nil
	return err
}

// Start draws the first frame and requests the callback that paces the rest.
// It does nothing while a frame callback is pending.
func (m *Manager) Start() error {
	if m.pending != nil {
		return nil
	}
	return m.draw()
}

func (m *Manager) draw() error {
	width, height := m.size()
	b, err := m.Produce(NewGeometry(width, height, BytesPerPixel), m.render)
	if err != nil {
		return err
	}

	// The callback request must precede the commit it belongs to.
	cb, err := m.surface.Frame()
	if err != nil {
		return err
	}
	cb.Handler = m.frameDone
	m.pending = cb

	return m.Present(b)
}

func (m *Manager) frameDone(ev wl.CallbackEvent) error {
	done, ok := ev.(wl.CallbackDone)
	if !ok {
		return nil
	}
	m.pending = nil

	if dt, ok := m.timing.Observe(done.Data); ok {
		slog.Debug("Frame done", "package", "frame", "time", done.Data, "dt", dt)
		if m.Observer != nil {
			m.Observer.FrameTime(dt)
		}
	}
	return m.draw()
}

// Close destroys every buffer still alive and unmaps its memory.
func (m *Manager) Close() error {
	var err error
	for b := range m.live {
		err = errors.Join(err, b.Destroy(), shm.Unmap(b.data))
		b.data = nil
		delete(m.live, b)
	}
	m.outstanding = 0
	return err
}

// Timing turns consecutive frame callback timestamps into frame times.
type Timing struct {
	last uint32
	have bool
}

// Observe records a millisecond timestamp and returns the time since the
// previous one. The timestamp wraps around.
func (t *Timing) Observe(ms uint32) (time.Duration, bool) {
	last, have := t.last, t.have
	t.last, t.have = ms, true
	if !have {
		return 0, false
	}
	return time.Duration(ms-last) * time.Millisecond, true
}
