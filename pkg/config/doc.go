// Package config provides a type-safe, generic and cached way to load
// application configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
// values come from one or more .env files (falling back to the default
// .env in the working directory) and are parsed into any Go struct via
// `env` field tags. Each configuration type is parsed once per process
// and served from cache afterwards.
//
// # Usage
//
//	type DatabaseConfig struct {
//	    URL            string `env:"DATABASE_URL,required"`
//	    MigrationsPath string `env:"PG_MIGRATIONS_PATH" envDefault:"./migrations"`
//	}
//
//	var db DatabaseConfig
//	if err := config.Load(&db); err != nil {
//	    log.Fatalf("parsing env: %v", err)
//	}
//
// MustLoad panics on failure for configuration the process cannot start
// without. ResetCache clears the cache between tests. Sentinel errors
// ErrParsingConfig, ErrEnvFileNotLoaded and ErrNilPointer compare with
// errors.Is.
package config
