package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Server. Options with invalid arguments panic at
// construction time rather than failing later at listen time.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("WithAddr: addr cannot be empty")
	}
	return func(s *Server) { s.addr = addr }
}

// WithReadTimeout caps reading the entire request, including the body.
func WithReadTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("WithReadTimeout: duration must be > 0")
	}
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout caps writing the response.
func WithWriteTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("WithWriteTimeout: duration must be > 0")
	}
	return func(s *Server) { s.writeTimeout = d }
}

// WithIdleTimeout caps keep-alive waits between requests.
func WithIdleTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("WithIdleTimeout: duration must be > 0")
	}
	return func(s *Server) { s.idleTimeout = d }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("WithShutdownTimeout: duration must be > 0")
	}
	return func(s *Server) { s.shutdownTimeout = d }
}

// WithServer reuses the provided http.Server instance. Its Handler and
// unset timeout fields are filled in by Run; fields already set win
// over the option values.
func WithServer(srv *http.Server) Option {
	if srv == nil {
		panic("WithServer: nil server")
	}
	return func(s *Server) { s.base = srv }
}

// WithLogger supplies the logger passed to lifecycle hooks. Nil means
// logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStartHook registers a callback that runs when the server begins
// listening.
func WithStartHook(h func(*slog.Logger)) Option {
	if h == nil {
		panic("WithStartHook: nil hook")
	}
	return func(s *Server) { s.startHooks = append(s.startHooks, h) }
}

// WithStopHook registers a callback that runs after the server shuts
// down.
func WithStopHook(h func(*slog.Logger)) Option {
	if h == nil {
		panic("WithStopHook: nil hook")
	}
	return func(s *Server) { s.stopHooks = append(s.stopHooks, h) }
}
