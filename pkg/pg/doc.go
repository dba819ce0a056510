// Package pg provides utilities for interacting with PostgreSQL using the
// pgx/v5 driver: connection pooling with retry, goose schema migrations,
// health checks, and common error classification helpers.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    panic(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    panic(err)
//	}
//
//	store := entitlement.NewPGStore(pool)
//
// All configuration values come from environment variables; refer to the
// field tags in Config for variable names and defaults.
//
// Helpers such as [pg.IsDuplicateKeyError] and [pg.IsNotFoundError]
// unwrap pgx errors so business logic can classify failures without
// touching *pgconn.PgError directly.
package pg
