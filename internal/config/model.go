package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ItsNotGoodName/wl-handmade/internal/core"
	"github.com/ItsNotGoodName/wl-handmade/internal/input"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
)

// Evdev KEY_Q.
const defaultQuitKeycode = 16

func DefaultConfig() Config {
	bindings := input.DefaultBindings()
	return Config{
		Window: Window{
			Title:  "Handmade Hero",
			AppID:  "wl-handmade",
			Width:  1920,
			Height: 1080,
			Format: "xrgb8888",
		},
		Audio: Audio{
			Enabled:    core.Pointer(true),
			SampleRate: 48000,
			Channels:   2,
			Latency:    0.05,
		},
		Input: Input{
			Mode:        string(input.ModeSymbol),
			QuitKeycode: defaultQuitKeycode,
			Bindings: Bindings{
				Up:    bindings.Up,
				Left:  bindings.Left,
				Down:  bindings.Down,
				Right: bindings.Right,
				Quit:  bindings.Quit,
			},
		},
	}
}

type Config struct {
	Window Window `yaml:"window"`
	Audio  Audio  `yaml:"audio"`
	Input  Input  `yaml:"input"`
	Loop   Loop   `yaml:"loop"`
	Debug  Debug  `yaml:"debug"`
}

type Window struct {
	Title  string `yaml:"title"`
	AppID  string `yaml:"app_id"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Format string `yaml:"format"` // [xrgb8888, argb8888]
}

type Audio struct {
	Enabled    *bool   `yaml:"enabled"`
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	Latency    float64 `yaml:"latency"` // seconds
}

type Input struct {
	Mode        string   `yaml:"mode"` // [symbol, raw]
	QuitKeycode uint32   `yaml:"quit_keycode"`
	Bindings    Bindings `yaml:"bindings"`
}

type Bindings struct {
	Up    string `yaml:"up"`
	Left  string `yaml:"left"`
	Down  string `yaml:"down"`
	Right string `yaml:"right"`
	Quit  string `yaml:"quit"`
}

type Loop struct {
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type Debug struct {
	Addr string `yaml:"addr"`
}

// Normalize fills zero fields from DefaultConfig and rejects invalid values.
func (c Config) Normalize() (Config, error) {
	d := DefaultConfig()

	c.Window.Title = core.Optional(c.Window.Title, d.Window.Title)
	c.Window.Width = core.Optional(c.Window.Width, d.Window.Width)
	c.Window.Height = core.Optional(c.Window.Height, d.Window.Height)
	c.Window.Format = strings.ToLower(core.Optional(c.Window.Format, d.Window.Format))
	if c.Audio.Enabled == nil {
		c.Audio.Enabled = d.Audio.Enabled
	}
	c.Audio.SampleRate = core.Optional(c.Audio.SampleRate, d.Audio.SampleRate)
	c.Audio.Channels = core.Optional(c.Audio.Channels, d.Audio.Channels)
	c.Audio.Latency = core.Optional(c.Audio.Latency, d.Audio.Latency)
	c.Input.Mode = strings.ToLower(core.Optional(c.Input.Mode, d.Input.Mode))
	c.Input.QuitKeycode = core.Optional(c.Input.QuitKeycode, d.Input.QuitKeycode)
	c.Input.Bindings.Up = core.Optional(c.Input.Bindings.Up, d.Input.Bindings.Up)
	c.Input.Bindings.Left = core.Optional(c.Input.Bindings.Left, d.Input.Bindings.Left)
	c.Input.Bindings.Down = core.Optional(c.Input.Bindings.Down, d.Input.Bindings.Down)
	c.Input.Bindings.Right = core.Optional(c.Input.Bindings.Right, d.Input.Bindings.Right)
	c.Input.Bindings.Quit = core.Optional(c.Input.Bindings.Quit, d.Input.Bindings.Quit)

	if c.Window.Width < 0 || c.Window.Height < 0 {
		return Config{}, fmt.Errorf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if _, err := c.Window.ShmFormat(); err != nil {
		return Config{}, err
	}
	if c.Audio.SampleRate < 0 {
		return Config{}, fmt.Errorf("invalid sample rate %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return Config{}, fmt.Errorf("invalid channel count %d: want 1 or 2", c.Audio.Channels)
	}
	if c.Audio.Latency < 0 {
		return Config{}, fmt.Errorf("invalid latency %v", c.Audio.Latency)
	}
	switch input.Mode(c.Input.Mode) {
	case input.ModeSymbol, input.ModeRaw:
	default:
		return Config{}, fmt.Errorf("invalid input mode %q", c.Input.Mode)
	}
	if c.Loop.PollTimeout < 0 {
		return Config{}, fmt.Errorf("invalid poll timeout %v", c.Loop.PollTimeout)
	}

	return c, nil
}

func (w Window) ShmFormat() (wl.ShmFormat, error) {
	switch w.Format {
	case "xrgb8888":
		return wl.ShmFormatXrgb8888, nil
	case "argb8888":
		return wl.ShmFormatArgb8888, nil
	default:
		return 0, fmt.Errorf("invalid pixel format %q", w.Format)
	}
}

func (a Audio) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

func (i Input) Options() input.Options {
	return input.Options{
		Mode: input.Mode(i.Mode),
		Bindings: input.Bindings{
			Up:    i.Bindings.Up,
			Left:  i.Bindings.Left,
			Down:  i.Bindings.Down,
			Right: i.Bindings.Right,
			Quit:  i.Bindings.Quit,
		},
		QuitKeycode: i.QuitKeycode,
	}
}
