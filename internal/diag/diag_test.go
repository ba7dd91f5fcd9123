package diag

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsNotGoodName/wl-handmade/internal/audio"
	"github.com/ItsNotGoodName/wl-handmade/internal/frame"
	"github.com/ItsNotGoodName/wl-handmade/internal/loop"
)

var (
	_ frame.Observer = (*Stats)(nil)
	_ loop.Observer  = (*Stats)(nil)
	_ audio.Observer = (*Stats)(nil)
)

func TestStatsSnapshot(t *testing.T) {
	s := NewStats()
	s.FramePresented(1)
	s.FramePresented(2)
	s.BufferReleased(1)
	s.FrameTime(16 * time.Millisecond)
	s.ProtocolDispatched(3)
	s.ProtocolDispatched(2)
	s.AudioIterated()
	s.AudioRequested(4096)

	assert.Equal(t, Snapshot{
		FramesPresented:    2,
		OutstandingBuffers: 1,
		LastFrameTimeMS:    16,
		ProtocolDispatches: 5,
		AudioIterations:    1,
		AudioRequests:      1,
		AudioBytes:         4096,
	}, s.Snapshot())
}

func TestRouterStats(t *testing.T) {
	s := NewStats()
	s.FramePresented(1)

	rec := httptest.NewRecorder()
	NewRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(1), got.FramesPresented)
	assert.Equal(t, int64(1), got.OutstandingBuffers)
}

func TestRouterBuild(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(NewStats()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/build", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "dev", got["version"])
}

func TestServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer("", NewStats())
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() { errC <- srv.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		res, err := http.Get("http://" + ln.Addr().String() + "/api/stats")
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errC:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
