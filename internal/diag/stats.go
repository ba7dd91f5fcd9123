package diag

import (
	"sync/atomic"
	"time"
)

// Stats is written by the event loop and read by the HTTP server.
type Stats struct {
	framesPresented    atomic.Uint64
	outstandingBuffers atomic.Int64
	lastFrameTime      atomic.Int64
	protocolDispatches atomic.Uint64
	audioIterations    atomic.Uint64
	audioRequests      atomic.Uint64
	audioBytes         atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) FramePresented(outstanding int) {
	s.framesPresented.Add(1)
	s.outstandingBuffers.Store(int64(outstanding))
}

func (s *Stats) BufferReleased(outstanding int) {
	s.outstandingBuffers.Store(int64(outstanding))
}

func (s *Stats) FrameTime(dt time.Duration) {
	s.lastFrameTime.Store(int64(dt))
}

func (s *Stats) ProtocolDispatched(events int) {
	s.protocolDispatches.Add(uint64(events))
}

func (s *Stats) AudioIterated() {
	s.audioIterations.Add(1)
}

func (s *Stats) AudioRequested(bytes int) {
	s.audioRequests.Add(1)
	s.audioBytes.Add(uint64(bytes))
}

type Snapshot struct {
	FramesPresented    uint64  `json:"frames_presented" doc:"Frames attached and committed"`
	OutstandingBuffers int64   `json:"outstanding_buffers" doc:"Buffers held by the compositor"`
	LastFrameTimeMS    float64 `json:"last_frame_time_ms" doc:"Time between the last two frame callbacks"`
	ProtocolDispatches uint64  `json:"protocol_dispatches" doc:"Protocol events dispatched"`
	AudioIterations    uint64  `json:"audio_iterations" doc:"Loop iterations given to audio"`
	AudioRequests      uint64  `json:"audio_requests" doc:"Sample requests served"`
	AudioBytes         uint64  `json:"audio_bytes" doc:"Sample bytes rendered"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FramesPresented:    s.framesPresented.Load(),
		OutstandingBuffers: s.outstandingBuffers.Load(),
		LastFrameTimeMS:    float64(s.lastFrameTime.Load()) / float64(time.Millisecond),
		ProtocolDispatches: s.protocolDispatches.Load(),
		AudioIterations:    s.audioIterations.Load(),
		AudioRequests:      s.audioRequests.Load(),
		AudioBytes:         s.audioBytes.Load(),
	}
}
