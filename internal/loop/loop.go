package loop

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ItsNotGoodName/wl-handmade/internal/core"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
)

// Guard is an announced read that must be either completed or cancelled.
type Guard interface {
	Read() error
	Cancel()
}

// Transport is the protocol side of the loop.
type Transport interface {
	Flush() error
	DispatchPending() (int, error)
	PrepareRead() (Guard, error)
	Poll(timeout time.Duration) (bool, error)
}

// Audio is stepped whenever the transport has nothing to read.
type Audio interface {
	Iterate() error
}

// Branch is what one iteration does after polling.
type Branch int

const (
	BranchRead Branch = iota
	BranchAudio
)

func (b Branch) String() string {
	if b == BranchRead {
		return "read"
	}
	return "audio"
}

// Policy picks the branch for one iteration from the transport readiness.
type Policy func(transportReady bool) Branch

// TransportFirst reads whenever the transport is ready and only steps audio
// otherwise. A transport that is always ready starves audio.
func TransportFirst(transportReady bool) Branch {
	if transportReady {
		return BranchRead
	}
	return BranchAudio
}

// Observer is told what each iteration did.
type Observer interface {
	ProtocolDispatched(events int)
	AudioIterated()
}

// Counters are totals since the scheduler was created.
type Counters struct {
	Iterations         uint64
	ProtocolDispatches uint64
	AudioIterations    uint64
	Events             uint64
}

type Scheduler struct {
	transport Transport
	audio     Audio
	running   *core.Flag

	// Policy defaults to TransportFirst.
	Policy Policy
	// PollTimeout bounds the readiness wait. Zero polls without blocking, or
	// blocks until readable when there is no audio.
	PollTimeout time.Duration
	// Observer may be nil.
	Observer Observer

	counters Counters
}

// New builds a scheduler. audio may be nil, the loop then blocks on the transport.
func New(transport Transport, audio Audio, running *core.Flag) *Scheduler {
	return &Scheduler{
		transport: transport,
		audio:     audio,
		running:   running,
		Policy:    TransportFirst,
	}
}

func (s *Scheduler) Counters() Counters {
	return s.counters
}

// Run iterates until the running flag is lowered or ctx is cancelled.
// Cancellation is a graceful stop.
func (s *Scheduler) Run(ctx context.Context) error {
	for s.running.Running() {
		select {
		case <-ctx.Done():
			slog.Debug("exit: context done", "package", "loop")
			s.running.Stop()
			return nil
		default:
		}

		if err := s.Step(); err != nil {
			s.running.Stop()
			return err
		}
	}
	return nil
}

// Step runs one iteration.
func (s *Scheduler) Step() error {
	s.counters.Iterations++

	if err := s.transport.Flush(); err != nil {
		return err
	}
	n, err := s.transport.DispatchPending()
	s.counters.Events += uint64(n)
	if err != nil {
		return err
	}
	if !s.running.Running() {
		return nil
	}

	guard, err := s.transport.PrepareRead()
	if err != nil {
		return err
	}

	timeout := s.PollTimeout
	if s.audio == nil && timeout == 0 {
		timeout = -1
	}
	ready, err := s.transport.Poll(timeout)
	if err != nil {
		guard.Cancel()
		return err
	}

	switch s.Policy(ready) {
	case BranchRead:
		if err := guard.Read(); err != nil {
			return err
		}
		n, err := s.transport.DispatchPending()
		s.counters.Events += uint64(n)
		s.counters.ProtocolDispatches++
		if s.Observer != nil {
			s.Observer.ProtocolDispatched(n)
		}
		return err
	default:
		guard.Cancel()
		if s.audio == nil {
			return nil
		}
		s.counters.AudioIterations++
		if s.Observer != nil {
			s.Observer.AudioIterated()
		}
		return s.audio.Iterate()
	}
}

// FromConn adapts a compositor connection to Transport.
func FromConn(conn *wl.Conn) Transport {
	return connTransport{conn}
}

type connTransport struct {
	*wl.Conn
}

func (c connTransport) PrepareRead() (Guard, error) {
	g, err := c.Conn.PrepareRead()
	if err != nil {
		return nil, err
	}
	return g, nil
}

// IsDisconnect reports whether err means the compositor went away.
func IsDisconnect(err error) bool {
	return errors.Is(err, wl.ErrConnectionClosed)
}
