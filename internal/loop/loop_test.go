package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsNotGoodName/wl-handmade/internal/core"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
	"github.com/ItsNotGoodName/wl-handmade/internal/wltest"
)

type fakeGuard struct {
	t *fakeTransport
}

func (g fakeGuard) Read() error {
	g.t.reads++
	g.t.queued++
	return nil
}

func (g fakeGuard) Cancel() {
	g.t.cancels++
}

// fakeTransport reports readiness from ready, indexed by poll count.
type fakeTransport struct {
	ready    func(poll int) bool
	flushErr error

	polls    int
	reads    int
	cancels  int
	queued   int
	timeouts []time.Duration
}

func (f *fakeTransport) Flush() error { return f.flushErr }

func (f *fakeTransport) DispatchPending() (int, error) {
	n := f.queued
	f.queued = 0
	return n, nil
}

func (f *fakeTransport) PrepareRead() (Guard, error) { return fakeGuard{t: f}, nil }

func (f *fakeTransport) Poll(timeout time.Duration) (bool, error) {
	f.timeouts = append(f.timeouts, timeout)
	ready := f.ready(f.polls)
	f.polls++
	return ready, nil
}

type fakeAudio struct {
	iterations int
}

func (a *fakeAudio) Iterate() error {
	a.iterations++
	return nil
}

func step(t *testing.T, s *Scheduler, n int) {
	for i := 0; i < n; i++ {
		require.NoError(t, s.Step())
	}
}

func TestTransportAlwaysReadyStarvesAudio(t *testing.T) {
	transport := &fakeTransport{ready: func(int) bool { return true }}
	audio := &fakeAudio{}
	s := New(transport, audio, core.NewFlag())

	const n = 100
	step(t, s, n)

	c := s.Counters()
	assert.Equal(t, uint64(n), c.ProtocolDispatches)
	assert.Equal(t, uint64(0), c.AudioIterations)
	assert.Equal(t, uint64(n), c.Events)
	assert.Equal(t, 0, audio.iterations)
	assert.Equal(t, n, transport.reads)
	assert.Equal(t, 0, transport.cancels)
}

func TestTransportReadyEveryOtherIteration(t *testing.T) {
	transport := &fakeTransport{ready: func(poll int) bool { return poll%2 == 0 }}
	audio := &fakeAudio{}
	s := New(transport, audio, core.NewFlag())

	const n = 100
	step(t, s, n)

	c := s.Counters()
	assert.Equal(t, uint64(n/2), c.ProtocolDispatches)
	assert.Equal(t, uint64(n/2), c.AudioIterations)
	assert.Equal(t, n/2, audio.iterations)
	// Every guard is either read or cancelled.
	assert.Equal(t, n, transport.reads+transport.cancels)
}

func TestIdleTransportFeedsAudio(t *testing.T) {
	transport := &fakeTransport{ready: func(int) bool { return false }}
	audio := &fakeAudio{}
	s := New(transport, audio, core.NewFlag())
	s.PollTimeout = 5 * time.Millisecond

	step(t, s, 10)
	assert.Equal(t, 10, audio.iterations)
	assert.Equal(t, 5*time.Millisecond, transport.timeouts[0])
}

func TestWithoutAudioBlocksOnTransport(t *testing.T) {
	transport := &fakeTransport{ready: func(poll int) bool { return poll%2 == 0 }}
	s := New(transport, nil, core.NewFlag())

	step(t, s, 4)
	assert.Equal(t, time.Duration(-1), transport.timeouts[0])
	assert.Equal(t, uint64(0), s.Counters().AudioIterations)
	assert.Equal(t, 2, transport.cancels)
}

func TestWithoutAudioHonorsTimeout(t *testing.T) {
	transport := &fakeTransport{ready: func(int) bool { return false }}
	s := New(transport, nil, core.NewFlag())
	s.PollTimeout = 100 * time.Millisecond

	step(t, s, 1)
	assert.Equal(t, 100*time.Millisecond, transport.timeouts[0])
}

func TestCustomPolicy(t *testing.T) {
	transport := &fakeTransport{ready: func(int) bool { return true }}
	audio := &fakeAudio{}
	s := New(transport, audio, core.NewFlag())
	s.Policy = func(bool) Branch { return BranchAudio }

	step(t, s, 3)
	assert.Equal(t, 3, audio.iterations)
	assert.Equal(t, 3, transport.cancels)
}

func TestRunStopsOnFlagAndError(t *testing.T) {
	running := core.NewFlag()
	transport := &fakeTransport{ready: func(poll int) bool {
		if poll == 9 {
			running.Stop()
		}
		return true
	}}
	s := New(transport, &fakeAudio{}, running)
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, uint64(10), s.Counters().Iterations)

	boom := errors.New("boom")
	running = core.NewFlag()
	s = New(&fakeTransport{ready: func(int) bool { return true }, flushErr: boom}, nil, running)
	assert.ErrorIs(t, s.Run(context.Background()), boom)
	assert.False(t, running.Running())
}

func TestRunStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	running := core.NewFlag()
	s := New(&fakeTransport{ready: func(int) bool { return false }}, &fakeAudio{}, running)
	require.NoError(t, s.Run(ctx))
	assert.False(t, running.Running())
	assert.Equal(t, uint64(0), s.Counters().Iterations)
}

func TestRunOverConnection(t *testing.T) {
	conn, srv := wltest.New(t, wltest.DefaultGlobals()...)
	registry, err := conn.GetRegistry()
	require.NoError(t, err)
	running := core.NewFlag()
	var globals int
	registry.Handler = func(wl.RegistryEvent) error {
		globals++
		if globals == len(wltest.DefaultGlobals()) {
			running.Stop()
		}
		return nil
	}

	audio := &fakeAudio{}
	s := New(FromConn(conn), audio, running)
	s.PollTimeout = time.Millisecond
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 4, globals)

	srv.Hangup()
	running = core.NewFlag()
	s = New(FromConn(conn), audio, running)
	err = s.Run(context.Background())
	assert.True(t, IsDisconnect(err))
}
