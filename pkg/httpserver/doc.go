// Package httpserver wraps net/http with graceful shutdown, configurable
// timeouts, lifecycle hooks, and health-check handlers. It is the serving
// layer under cmd/fangate.
//
// Run blocks until the context is cancelled or an interrupt/TERM signal
// arrives, then drains in-flight requests within the configured shutdown
// deadline. Construction goes through New or NewFromConfig with functional
// options (WithAddr, WithReadTimeout, WithLogger, ...). Start and stop
// hooks run around the listener lifecycle.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log, pool.Ping))
//	r.Mount("/billing", billingModule.Router())
//
//	srv := httpserver.NewFromConfig(cfg)
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown, so callers can distinguish them with errors.Is.
package httpserver
