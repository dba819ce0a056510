package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Server runs an http.Server and shuts it down gracefully when the
// supplied context is cancelled or an interrupt/TERM signal arrives.
type Server struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	base            *http.Server
	startHooks      []func(*slog.Logger)
	stopHooks       []func(*slog.Logger)

	mu      sync.Mutex
	srv     *http.Server
	stopped sync.Once
}

// New returns a Server configured by opts. Options with invalid
// arguments panic.
func New(opts ...Option) *Server {
	s := &Server{
		addr:            ":8080",
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = newNoopLogger()
	}
	return s
}

// Run binds the listener and serves handler until the context is
// cancelled, a signal arrives, or serving fails. Bind and serve
// failures come back wrapped with ErrStart; a Server instance serves
// at most once.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, errors.New("server already started"))
	}
	srv := s.build(handler)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, err)
	}
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("http server listening", slog.String("addr", srv.Addr))
	for _, hook := range s.startHooks {
		hook(s.logger)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		_ = s.Shutdown(context.Background())
		err = <-serveErr
	case err = <-serveErr:
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrStart, err)
	}
	return nil
}

// build fills in the wrapped http.Server. Fields already set on a
// WithServer instance win over the option values.
func (s *Server) build(handler http.Handler) *http.Server {
	srv := s.base
	if srv == nil {
		srv = &http.Server{}
	}
	if srv.Addr == "" {
		srv.Addr = s.addr
	}
	if srv.ReadTimeout == 0 {
		srv.ReadTimeout = s.readTimeout
	}
	if srv.WriteTimeout == 0 {
		srv.WriteTimeout = s.writeTimeout
	}
	if srv.IdleTimeout == 0 {
		srv.IdleTimeout = s.idleTimeout
	}
	srv.Handler = handler
	return srv
}

// Shutdown drains in-flight requests within the configured deadline and
// runs the stop hooks. Only the first call acts; repeats return nil.
// Failures come back wrapped with ErrShutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopped.Do(func() {
		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()
		if srv == nil {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(ctx)

		for _, hook := range s.stopHooks {
			hook(s.logger)
		}
	})

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrShutdown, err)
	}
	return nil
}
