package wl

import (
	"fmt"

	wayland "github.com/neurlang/wayland/wl"
)

// ShmFormat is a wl_shm pixel format.
type ShmFormat uint32

const (
	ShmFormatArgb8888 ShmFormat = 0
	ShmFormatXrgb8888 ShmFormat = 1
)

func (f ShmFormat) String() string {
	switch f {
	case ShmFormatArgb8888:
		return "argb8888"
	case ShmFormatXrgb8888:
		return "xrgb8888"
	default:
		return fmt.Sprintf("0x%08x", uint32(f))
	}
}

// ShmEvent is implemented by every wl_shm event.
type ShmEvent interface{ isShmEvent() }

type ShmFormatEvent struct {
	Format ShmFormat
}

func (ShmFormatEvent) isShmEvent() {}

type Shm struct {
	conn    *Conn
	proxy   *wayland.Shm
	Handler func(ShmEvent) error
}

func (s *Shm) HandleShmFormat(ev wayland.ShmFormatEvent) {
	emit(s.conn, "wl_shm", s.Handler, ShmEvent(ShmFormatEvent{Format: ShmFormat(ev.Format)}))
}

// CreatePool shares fd with the compositor. The descriptor is sent with the
// request, so the caller may close fd right away.
func (s *Shm) CreatePool(fd int, size int32) (*ShmPool, error) {
	pool, err := s.proxy.CreatePool(uintptr(fd), size)
	if err != nil {
		return nil, fmt.Errorf("unable to create shm pool: %w", err)
	}
	return &ShmPool{conn: s.conn, proxy: pool}, nil
}

// ShmPool has no events.
type ShmPool struct {
	conn  *Conn
	proxy *wayland.ShmPool
}

func (p *ShmPool) CreateBuffer(offset, width, height, stride int32, format ShmFormat) (*Buffer, error) {
	buffer, err := p.proxy.CreateBuffer(offset, width, height, stride, uint32(format))
	if err != nil {
		return nil, fmt.Errorf("unable to create buffer: %w", err)
	}
	b := &Buffer{conn: p.conn, proxy: buffer}
	buffer.AddReleaseHandler(b)
	return b, nil
}

// Destroy releases the pool. Buffers created from it stay valid.
func (p *ShmPool) Destroy() error {
	return p.proxy.Destroy()
}

// BufferEvent is implemented by every wl_buffer event.
type BufferEvent interface{ isBufferEvent() }

// BufferRelease means the compositor no longer reads the buffer.
type BufferRelease struct{}

func (BufferRelease) isBufferEvent() {}

type Buffer struct {
	conn    *Conn
	proxy   *wayland.Buffer
	Handler func(BufferEvent) error
}

func (b *Buffer) HandleBufferRelease(wayland.BufferReleaseEvent) {
	emit(b.conn, "wl_buffer", b.Handler, BufferEvent(BufferRelease{}))
}

func (b *Buffer) ID() uint32 {
	return uint32(b.proxy.Id())
}

func (b *Buffer) Destroy() error {
	return b.proxy.Destroy()
}
