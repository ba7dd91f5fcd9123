package audio

import (
	"fmt"
	"log/slog"

	"github.com/jfreymuth/pulse"
)

type Options struct {
	AppName    string
	SampleRate int
	Channels   int
	// Latency in seconds.
	Latency float64
}

// Player is a playback stream on the default PulseAudio server.
type Player struct {
	client *pulse.Client
	stream *pulse.PlaybackStream
	bridge *Bridge
}

// Open connects to the default server and starts pulling from bridge.
func Open(bridge *Bridge, opts Options) (*Player, error) {
	var layout pulse.PlaybackOption
	switch opts.Channels {
	case 1:
		layout = pulse.PlaybackMono
	case 2:
		layout = pulse.PlaybackStereo
	default:
		return nil, fmt.Errorf("audio: unsupported channel count %d", opts.Channels)
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName(opts.AppName))
	if err != nil {
		return nil, fmt.Errorf("audio: unable to connect to pulseaudio: %w", err)
	}

	stream, err := client.NewPlayback(
		pulse.Float32Reader(bridge.Read),
		layout,
		pulse.PlaybackSampleRate(opts.SampleRate),
		pulse.PlaybackLatency(opts.Latency),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("audio: unable to create playback stream: %w", err)
	}

	stream.Start()
	slog.Debug("Started playback", "package", "audio", "rate", opts.SampleRate, "channels", opts.Channels, "latency", opts.Latency)

	return &Player{client: client, stream: stream, bridge: bridge}, nil
}

// Iterate is one non-blocking step of the audio side of the event loop.
func (p *Player) Iterate() error {
	p.bridge.Iterate()
	return p.stream.Error()
}

func (p *Player) Close() error {
	p.bridge.Close()
	p.stream.Stop()
	p.stream.Close()
	p.client.Close()
	return nil
}
