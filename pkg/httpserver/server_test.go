package httpserver_test

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fangate/pkg/httpserver"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// runServer starts srv in the background and returns the channel Run's
// result arrives on.
func runServer(ctx context.Context, srv *httpserver.Server, handler http.Handler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, handler) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop in time")
		return nil
	}
}

func TestRunAndContextShutdown(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	srv := httpserver.New(httpserver.WithAddr(addr), httpserver.WithShutdownTimeout(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := runServer(ctx, srv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var resp *http.Response
	var err error
	for range 50 {
		resp, err = http.Get("http://" + addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err, "server did not start listening")
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	require.NoError(t, waitResult(t, done))
}

func TestManualShutdown(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := httpserver.New(
		httpserver.WithAddr(freeAddr(t)),
		httpserver.WithShutdownTimeout(100*time.Millisecond),
		httpserver.WithStartHook(func(_ *slog.Logger) { close(started) }),
	)

	done := runServer(context.Background(), srv, http.NewServeMux())
	<-started
	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, waitResult(t, done))

	// Repeated shutdown is a no-op.
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestStartErrors(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr(":invalid"))
	err := srv.Run(context.Background(), http.NewServeMux())
	assert.ErrorIs(t, err, httpserver.ErrStart)

	started := make(chan struct{})
	running := httpserver.New(
		httpserver.WithAddr(freeAddr(t)),
		httpserver.WithShutdownTimeout(50*time.Millisecond),
		httpserver.WithStartHook(func(_ *slog.Logger) { close(started) }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runServer(ctx, running, http.NewServeMux())
	<-started

	// A second Run on the same instance is rejected.
	err = running.Run(context.Background(), http.NewServeMux())
	assert.ErrorIs(t, err, httpserver.ErrStart)

	cancel()
	require.NoError(t, waitResult(t, done))
}

func TestLifecycleHooks(t *testing.T) {
	t.Parallel()

	var started, stopped atomic.Bool
	start := make(chan struct{})
	srv := httpserver.New(
		httpserver.WithAddr(freeAddr(t)),
		httpserver.WithShutdownTimeout(50*time.Millisecond),
		httpserver.WithStartHook(func(_ *slog.Logger) {
			started.Store(true)
			close(start)
		}),
		httpserver.WithStopHook(func(_ *slog.Logger) { stopped.Store(true) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := runServer(ctx, srv, http.NewServeMux())
	<-start
	cancel()
	require.NoError(t, waitResult(t, done))

	assert.True(t, started.Load())
	assert.True(t, stopped.Load())
}

func TestWithServerPrecedence(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	hs := &http.Server{ReadTimeout: time.Second}
	started := make(chan struct{})
	srv := httpserver.New(
		httpserver.WithServer(hs),
		httpserver.WithAddr(addr),
		httpserver.WithReadTimeout(5*time.Second),
		httpserver.WithShutdownTimeout(50*time.Millisecond),
		httpserver.WithStartHook(func(_ *slog.Logger) { close(started) }),
	)

	done := runServer(context.Background(), srv, http.NewServeMux())
	<-started
	// The value set on the instance wins over the option.
	assert.Equal(t, time.Second, hs.ReadTimeout)
	assert.Equal(t, addr, hs.Addr)
	assert.NotNil(t, hs.Handler)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, waitResult(t, done))
}

func TestOptionValidation(t *testing.T) {
	t.Parallel()

	for name, fn := range map[string]func(){
		"empty addr":       func() { httpserver.WithAddr("") },
		"read timeout":     func() { httpserver.WithReadTimeout(-time.Second) },
		"write timeout":    func() { httpserver.WithWriteTimeout(0) },
		"idle timeout":     func() { httpserver.WithIdleTimeout(-time.Second) },
		"shutdown timeout": func() { httpserver.WithShutdownTimeout(0) },
		"nil server":       func() { httpserver.WithServer(nil) },
		"nil start hook":   func() { httpserver.WithStartHook(nil) },
		"nil stop hook":    func() { httpserver.WithStopHook(nil) },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Panics(t, fn)
		})
	}

	assert.NotPanics(t, func() { httpserver.WithLogger(nil) })
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	hs := &http.Server{}
	started := make(chan struct{})
	srv := httpserver.NewFromConfig(httpserver.Config{
		Addr:            addr,
		ReadTimeout:     time.Second,
		WriteTimeout:    2 * time.Second,
		IdleTimeout:     3 * time.Second,
		ShutdownTimeout: 50 * time.Millisecond,
	},
		httpserver.WithServer(hs),
		httpserver.WithStartHook(func(_ *slog.Logger) { close(started) }),
	)

	done := runServer(context.Background(), srv, nil)
	<-started
	assert.Equal(t, addr, hs.Addr)
	assert.Equal(t, time.Second, hs.ReadTimeout)
	assert.Equal(t, 2*time.Second, hs.WriteTimeout)
	assert.Equal(t, 3*time.Second, hs.IdleTimeout)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, waitResult(t, done))
}
