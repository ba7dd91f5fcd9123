package diag

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ItsNotGoodName/wl-handmade/internal/build"
	"github.com/ItsNotGoodName/wl-handmade/pkg/chiext"
)

type StatsOutput struct {
	Body Snapshot
}

type BuildOutput struct {
	Body build.Build
}

// NewRouter returns the diagnostics API.
func NewRouter(stats *Stats) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chiext.Logger())
	r.Use(middleware.Recoverer)

	api := humachi.New(r, huma.DefaultConfig("wl-handmade", build.Current.Version))

	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/api/stats",
		Summary:     "Loop counters",
	}, func(ctx context.Context, input *struct{}) (*StatsOutput, error) {
		return &StatsOutput{Body: stats.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-build",
		Method:      http.MethodGet,
		Path:        "/api/build",
		Summary:     "Build information",
	}, func(ctx context.Context, input *struct{}) (*BuildOutput, error) {
		return &BuildOutput{Body: build.Current}, nil
	})

	return r
}

// Server serves the diagnostics API until its context is canceled.
type Server struct {
	addr    string
	handler http.Handler
}

func NewServer(addr string, stats *Stats) Server {
	return Server{
		addr:    addr,
		handler: NewRouter(stats),
	}
}

func (s Server) String() string {
	return "diag.Server"
}

func (s Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errC := make(chan error, 1)
	go func() { errC <- srv.Serve(ln) }()
	slog.Info("Diagnostics listening", "package", "diag", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
