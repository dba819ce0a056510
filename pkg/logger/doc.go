// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// New creates a *slog.Logger configured by Option functions: output format
// (text or json), minimum level, static attributes applied to every record,
// and ContextExtractor callbacks that pull request-scoped values (such as a
// request id) out of the context every time Handle is invoked.
//
// Helper constructors in attr.go keep attribute naming consistent across the
// billing codebase: Error, SubscriptionID, SubscriberID, CreatorID, EventID,
// EventType, Tier and Component.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Environment, "fangate"),
//	    logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "subscription reconciled",
//	    logger.SubscriptionID(sub.ID),
//	    logger.EventType("payment.succeeded"),
//	)
//
// Error produces an attribute only when the supplied error is non-nil,
// allowing calls like log.Info("done", logger.Error(err)) without a nil
// check.
package logger
