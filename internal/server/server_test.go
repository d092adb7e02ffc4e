package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/filebot/internal/server"
	"github.com/shashiranjanraj/filebot/pkg/app"
	"github.com/shashiranjanraj/filebot/pkg/router"
)

type fixture struct {
	app       *app.Application
	base      string
	cancel    context.CancelFunc
	stopped   chan struct{}
	serveErr  error
	shutdowns atomic.Int32
	active    atomic.Int32
	release   chan struct{}
	finished  atomic.Bool
}

func start(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{release: make(chan struct{}), stopped: make(chan struct{})}

	f.app = app.New("test").
		OnShutdown("count", func(context.Context) error {
			f.shutdowns.Add(1)
			return nil
		}).
		Routes(func(r *router.Router) {
			r.Get("/hello", "hello", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "hello")
			})
			r.Get("/panic", "panic", func(http.ResponseWriter, *http.Request) {
				panic("handler fault")
			})
			r.Get("/hang", "hang", func(w http.ResponseWriter, r *http.Request) {
				f.active.Add(1)
				defer f.active.Add(-1)
				<-r.Context().Done()
			})
			r.Get("/slow", "slow", func(w http.ResponseWriter, _ *http.Request) {
				<-f.release
				f.finished.Store(true)
				w.WriteHeader(http.StatusOK)
			})
		})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f.base = "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		f.serveErr = server.Serve(ctx, f.app, ln, server.Options{ShutdownTimeout: 5 * time.Second})
		close(f.stopped)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(f.base + "/hello")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond, "server did not accept connections in time")

	t.Cleanup(func() {
		cancel()
		select {
		case <-f.stopped:
		case <-time.After(5 * time.Second):
		}
	})
	return f
}

func TestServeRespondsWithWellFormedResponse(t *testing.T) {
	f := start(t)

	resp, err := http.Get(f.base + "/hello")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestFaultingRequestDoesNotBreakTheServer(t *testing.T) {
	f := start(t)

	resp, err := http.Get(f.base + "/panic")
	require.NoError(t, err)
	resp.Body.Close()
	assert.GreaterOrEqual(t, resp.StatusCode, 500)

	resp, err = http.Get(f.base + "/hello")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientAbortReleasesRequestScope(t *testing.T) {
	f := start(t)

	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/hang", nil)
		_, err := http.DefaultClient.Do(req)
		cancel()
		require.Error(t, err)
	}

	assert.Eventually(t, func() bool { return f.active.Load() == 0 },
		3*time.Second, 10*time.Millisecond, "aborted requests leaked their handlers")
}

func TestConcurrentRequestsDoNotSerialize(t *testing.T) {
	f := start(t)

	slow := make(chan int, 1)
	go func() {
		resp, err := http.Get(f.base + "/slow")
		if err != nil {
			slow <- 0
			return
		}
		resp.Body.Close()
		slow <- resp.StatusCode
	}()

	begin := time.Now()
	resp, err := http.Get(f.base + "/hello")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Less(t, time.Since(begin), time.Second)

	close(f.release)
	assert.Equal(t, http.StatusOK, <-slow)
}

func TestShutdownDrainsThenRunsHooksOnce(t *testing.T) {
	f := start(t)

	slow := make(chan int, 1)
	go func() {
		resp, err := http.Get(f.base + "/slow")
		if err != nil {
			slow <- 0
			return
		}
		resp.Body.Close()
		slow <- resp.StatusCode
	}()
	time.Sleep(50 * time.Millisecond)

	f.cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), f.shutdowns.Load(), "hooks ran before in-flight request finished")

	close(f.release)
	assert.Equal(t, http.StatusOK, <-slow)

	select {
	case <-f.stopped:
		assert.NoError(t, f.serveErr)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, f.finished.Load())
	assert.Equal(t, int32(1), f.shutdowns.Load())
}

func TestStartupFailureAbortsBeforeListening(t *testing.T) {
	boom := errors.New("cannot reach database")
	a := app.New("test").OnStartup("db", func(context.Context) error { return boom })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	err = server.Serve(context.Background(), a, ln, server.Options{})
	require.ErrorIs(t, err, boom)

	_, dialErr := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, dialErr, "listener should be closed after a failed startup")
}

func TestRunReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var stopped atomic.Int32
	a := app.New("test").OnShutdown("count", func(context.Context) error {
		stopped.Add(1)
		return nil
	})

	err = server.Run(context.Background(), a, ln.Addr().String(), server.Options{})
	require.Error(t, err)
	assert.Equal(t, int32(1), stopped.Load())
}
