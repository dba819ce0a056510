package pg

import "context"

// logger is the slice of *slog.Logger this package needs. Keeping it an
// interface avoids forcing a concrete logger on callers.
type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
