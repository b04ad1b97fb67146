package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtask/relay/internal/logging"
	"github.com/wtask/relay/internal/relay"
	"github.com/wtask/relay/internal/transport/wsline"
)

type stubRelay struct {
	state    relay.State
	sessions int
}

func (s stubRelay) State() relay.State { return s.state }
func (s stubRelay) SessionCount() int  { return s.sessions }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		relay    stubRelay
		wantCode int
		want     HealthResponse
	}{
		{
			"listening",
			stubRelay{relay.StateListening, 3},
			http.StatusOK,
			HealthResponse{Status: "ok", State: "listening", Sessions: 3, Version: "1.0.0"},
		},
		{
			"stopped",
			stubRelay{relay.StateStopped, 0},
			http.StatusServiceUnavailable,
			HealthResponse{Status: "unavailable", State: "stopped", Sessions: 0, Version: "1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := NewServer(tt.relay, nil, "1.0.0", logging.Discard())

			rec := httptest.NewRecorder()
			api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var got HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetrics(t *testing.T) {
	api := NewServer(stubRelay{}, nil, "1.0.0", logging.Discard())

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_sessions_active")
}

func TestWebSocketDisabled(t *testing.T) {
	api := NewServer(stubRelay{}, nil, "1.0.0", logging.Discard())

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketClientGetsPacket(t *testing.T) {
	srv, err := relay.NewServer("",
		relay.WithBroadcastInterval(50*time.Millisecond),
		relay.WithWelcome("hi"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop() })

	ws := wsline.NewListener(&net.TCPAddr{}, nil, logging.Discard())
	go srv.Serve(ws)

	api := NewServer(srv, ws, "1.0.0", logging.Discard())
	httpSrv := httptest.NewServer(api.Handler())
	t.Cleanup(httpSrv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(msg))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("from browser")))

	_, msg, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "Messages: 1")
	assert.Contains(t, string(msg), ": from browser")
	assert.True(t, strings.HasPrefix(string(msg), "=== Broadcast ==="))
}

func TestServeAndShutdown(t *testing.T) {
	api := NewServer(stubRelay{state: relay.StateListening}, nil, "1.0.0", logging.Discard())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- api.Serve(l) }()

	url := "http://" + l.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, api.Shutdown(context.Background()))
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestShutdownWaitsWithCallerContext(t *testing.T) {
	if testing.Short() {
		t.Skip("holds request for several seconds")
	}
	api := NewServer(stubRelay{state: relay.StateListening}, nil, "1.0.0", logging.Discard())
	entered, release := make(chan struct{}), make(chan struct{})
	api.echo.GET("/slow", func(c echo.Context) error {
		close(entered)
		<-release
		return c.NoContent(http.StatusOK)
	})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- api.Serve(l) }()

	answered := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + l.Addr().String() + "/slow")
		if err != nil {
			answered <- 0
			return
		}
		resp.Body.Close()
		answered <- resp.StatusCode
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request was not served")
	}

	// in-flight request outlives any built-in limit, shutdown follows caller context only
	time.AfterFunc(6*time.Second, func() { close(release) })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, api.Shutdown(ctx))
	assert.Equal(t, http.StatusOK, <-answered)
	assert.NoError(t, <-served)
}

func TestShutdownExpiredContext(t *testing.T) {
	api := NewServer(stubRelay{state: relay.StateListening}, nil, "1.0.0", logging.Discard())
	entered, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	api.echo.GET("/slow", func(c echo.Context) error {
		close(entered)
		<-release
		return c.NoContent(http.StatusOK)
	})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go api.Serve(l)
	go func() {
		if resp, err := http.Get("http://" + l.Addr().String() + "/slow"); err == nil {
			resp.Body.Close()
		}
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request was not served")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, api.Shutdown(ctx), context.DeadlineExceeded)
}
