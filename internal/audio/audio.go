package audio

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/jfreymuth/pulse"
)

// BytesPerSample of the float32 samples exchanged with the render callback.
const BytesPerSample = 4

// SampleFunc fills buf with interleaved native-endian float32 samples.
type SampleFunc func(buf []byte, sampleRate, channels int)

// Observer is told the size of every request served.
type Observer interface {
	AudioRequested(bytes int)
}

type Bridge struct {
	render     SampleFunc
	sampleRate int
	channels   int

	// Observer may be nil.
	Observer Observer

	requests chan []float32
	replies  chan int
	closed   chan struct{}
	close    sync.Once

	scratch []byte
}

func NewBridge(render SampleFunc, sampleRate, channels int) *Bridge {
	return &Bridge{
		render:     render,
		sampleRate: sampleRate,
		channels:   channels,
		requests:   make(chan []float32),
		replies:    make(chan int, 1),
		closed:     make(chan struct{}),
	}
}

// Read is the stream's reader. It blocks until Iterate serves the request.
func (b *Bridge) Read(out []float32) (int, error) {
	select {
	case b.requests <- out:
	case <-b.closed:
		return 0, pulse.EndOfData
	}
	select {
	case n := <-b.replies:
		return n, nil
	case <-b.closed:
		return 0, pulse.EndOfData
	}
}

// Iterate serves at most one pending request without blocking and reports
// whether it did.
func (b *Bridge) Iterate() bool {
	select {
	case out := <-b.requests:
		b.serve(out)
		return true
	default:
		return false
	}
}

func (b *Bridge) serve(out []float32) {
	size := len(out) * BytesPerSample
	if cap(b.scratch) < size {
		b.scratch = make([]byte, size)
	}
	buf := b.scratch[:size]
	clear(buf)

	if b.render != nil {
		b.render(buf, b.sampleRate, b.channels)
	}
	for i := range out {
		out[i] = math.Float32frombits(binary.NativeEndian.Uint32(buf[i*BytesPerSample:]))
	}

	if b.Observer != nil {
		b.Observer.AudioRequested(size)
	}
	b.replies <- len(out)
}

// Close ends the stream at its next read.
func (b *Bridge) Close() {
	b.close.Do(func() { close(b.closed) })
}
