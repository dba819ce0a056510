package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/fangate/pkg/logger"
)

// HealthCheckHandler builds a probe endpoint from dependency check
// functions. With no checks it answers 200 "ALIVE" and serves as a
// liveness probe. With checks it runs them in order and answers 200
// "READY", or 500 "NOT_READY" as soon as one fails. Failures are
// logged with the failing error.
func HealthCheckHandler(ctx context.Context, log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("NOT_READY"))
				return
			}
		}

		body := "READY"
		if len(checks) == 0 {
			body = "ALIVE"
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}
