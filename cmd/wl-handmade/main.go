package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/phsym/console-slog"

	"github.com/ItsNotGoodName/wl-handmade/internal/audio"
	"github.com/ItsNotGoodName/wl-handmade/internal/build"
	"github.com/ItsNotGoodName/wl-handmade/internal/config"
	"github.com/ItsNotGoodName/wl-handmade/internal/core"
	"github.com/ItsNotGoodName/wl-handmade/internal/diag"
	"github.com/ItsNotGoodName/wl-handmade/internal/game"
	"github.com/ItsNotGoodName/wl-handmade/internal/input"
	"github.com/ItsNotGoodName/wl-handmade/internal/loop"
	"github.com/ItsNotGoodName/wl-handmade/internal/session"
	"github.com/ItsNotGoodName/wl-handmade/internal/shm"
	"github.com/ItsNotGoodName/wl-handmade/pkg/sutureext"
)

// Without audio the loop still wakes this often to notice shutdown.
const idlePollTimeout = 250 * time.Millisecond

type Options struct {
	Debug     bool   `doc:"enable debug"`
	Config    string `doc:"config file" default:".wl-handmade.yaml"`
	NoAudio   bool   `doc:"disable audio playback"`
	DebugAddr string `doc:"diagnostics server address, overrides debug.addr"`
}

func main() {
	godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		if options.Debug {
			InitLogger(slog.LevelDebug)
		} else {
			InitLogger(slog.LevelInfo)
		}

		OnServe(hooks, func(ctx context.Context) error {
			return run(ctx, options)
		})
	})

	cli.Root().Version = build.Current.Version

	cli.Run()
}

func run(ctx context.Context, options *Options) error {
	configFilePath, err := filepath.Abs(options.Config)
	if err != nil {
		return err
	}

	store, err := config.NewStore(config.NewYAML(configFilePath))
	if err != nil {
		return err
	}

	cfg, err := store.GetConfig()
	if err != nil {
		return err
	}
	format, err := cfg.Window.ShmFormat()
	if err != nil {
		return err
	}

	running := core.NewFlag()
	stats := diag.NewStats()
	g := game.New()
	pipeline := input.NewPipeline(cfg.Input.Options(), running)

	sess, err := session.Connect(running, session.Options{
		Title:     cfg.Window.Title,
		AppID:     cfg.Window.AppID,
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		Format:    format,
		Allocator: shm.NewAllocator(),
		Render:    g.UpdateAndRender,
		Input:     pipeline,
		Observer:  stats,
	})
	if err != nil {
		return err
	}
	defer sess.Destroy()

	if os.Getenv("WAYLAND_DEBUG") != "" {
		sess.Conn().Trace = true
	}

	if err := sess.Bootstrap(); err != nil {
		return err
	}

	var source loop.Audio
	if cfg.Audio.IsEnabled() && !options.NoAudio {
		bridge := audio.NewBridge(g.PlaySound, cfg.Audio.SampleRate, cfg.Audio.Channels)
		bridge.Observer = stats
		player, err := audio.Open(bridge, audio.Options{
			AppName:    cfg.Window.Title,
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			Latency:    cfg.Audio.Latency,
		})
		if err != nil {
			slog.Warn("Continuing without audio", "error", err)
		} else {
			defer player.Close()
			source = player
		}
	}

	debugAddr := core.Optional(options.DebugAddr, cfg.Debug.Addr)
	if debugAddr != "" {
		super := sutureext.NewSimple("wl-handmade")
		sutureext.Add(super, diag.NewServer(debugAddr, stats))
		superCtx, cancel := context.WithCancel(ctx)
		errC := super.ServeBackground(superCtx)
		defer func() {
			cancel()
			<-errC
		}()
	}

	scheduler := loop.New(loop.FromConn(sess.Conn()), source, running)
	scheduler.PollTimeout = cfg.Loop.PollTimeout
	if source == nil && scheduler.PollTimeout == 0 {
		scheduler.PollTimeout = idlePollTimeout
	}
	scheduler.Observer = stats

	err = scheduler.Run(ctx)
	counters := scheduler.Counters()
	slog.Debug("Loop exited", "state", sess.State(), "iterations", counters.Iterations, "events", counters.Events, "audio", counters.AudioIterations)
	if loop.IsDisconnect(err) {
		return fmt.Errorf("compositor disconnected after %d iterations: %w", counters.Iterations, err)
	}
	return err
}

func InitLogger(level slog.Level) {
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level: level,
	})))
}

// OnServe runs serveFn until it returns, the CLI stops, or the process gets
// SIGINT or SIGTERM.
func OnServe(hooks humacli.Hooks, serveFn func(ctx context.Context) error) {
	stopC := make(chan struct{})
	hooks.OnStart(func() {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		errC := make(chan error, 1)

		go func() { errC <- serveFn(ctx) }()

		select {
		case <-stopC:
			cancel()
		case err := <-errC:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Fatal(err)
			}
			return
		}

		<-errC
		<-stopC
	})
	hooks.OnStop(func() {
		stopC <- struct{}{}
		stopC <- struct{}{}
	})
}
