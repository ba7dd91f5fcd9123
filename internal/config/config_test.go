package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsNotGoodName/wl-handmade/internal/input"
	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
)

func TestYAMLWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := NewStore(NewYAML(path))
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	cfg, err := store.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "Handmade Hero", cfg.Window.Title)
	assert.Equal(t, 1920, cfg.Window.Width)
	assert.True(t, cfg.Audio.IsEnabled())
	assert.Zero(t, cfg.Loop.PollTimeout)
}

func TestYAMLPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
window:
  width: 640
  format: ARGB8888
audio:
  enabled: false
input:
  mode: raw
  bindings:
    quit: Escape
loop:
  poll_timeout: 5ms
`), 0600))

	store, err := NewStore(NewYAML(path))
	require.NoError(t, err)
	cfg, err := store.GetConfig()
	require.NoError(t, err)

	assert.Equal(t, 640, cfg.Window.Width)
	assert.Equal(t, 1080, cfg.Window.Height)
	format, err := cfg.Window.ShmFormat()
	require.NoError(t, err)
	assert.Equal(t, wl.ShmFormatArgb8888, format)
	assert.False(t, cfg.Audio.IsEnabled())
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 5*time.Millisecond, cfg.Loop.PollTimeout)

	opts := cfg.Input.Options()
	assert.Equal(t, input.ModeRaw, opts.Mode)
	assert.Equal(t, "Escape", opts.Bindings.Quit)
	assert.Equal(t, "w", opts.Bindings.Up)
	assert.Equal(t, uint32(16), opts.QuitKeycode)
}

func TestYAMLDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window: [1, 2"), 0600))

	store, err := NewStore(NewYAML(path))
	require.NoError(t, err)
	_, err = store.GetConfig()
	assert.Error(t, err)
}

func TestUpdateConfigRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := NewStore(NewYAML(path))
	require.NoError(t, err)

	require.NoError(t, store.UpdateConfig(func(cfg Config) (Config, error) {
		cfg.Debug.Addr = "127.0.0.1:8080"
		cfg.Loop.PollTimeout = time.Millisecond
		return cfg, nil
	}))

	cfg, err := store.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Debug.Addr)
	assert.Equal(t, time.Millisecond, cfg.Loop.PollTimeout)
}

func TestNormalizeRejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"format":   func(c *Config) { c.Window.Format = "rgb565" },
		"channels": func(c *Config) { c.Audio.Channels = 6 },
		"mode":     func(c *Config) { c.Input.Mode = "chord" },
		"size":     func(c *Config) { c.Window.Width = -1 },
		"timeout":  func(c *Config) { c.Loop.PollTimeout = -time.Second },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := cfg.Normalize()
			assert.Error(t, err)
		})
	}
}

func TestMemoryStore(t *testing.T) {
	mem := NewMemory()
	store, err := NewStore(mem)
	require.NoError(t, err)

	ok, err := mem.Exists()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.UpdateConfig(func(cfg Config) (Config, error) {
		cfg.Window.Title = "test"
		return cfg, nil
	}))
	cfg, err := store.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Window.Title)
}
