package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.Mutex
	cache   = make(map[string]any)

	defaultEnvLoaded sync.Once
)

// LoadEnv loads environment variables from the given .env files before
// any config structs are parsed. Variables already present in the
// process environment win over file values.
func LoadEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrEnvFileNotLoaded, err)
	}
	return nil
}

// Load parses environment variables into the provided configuration
// struct based on `env` field tags. Each config type is parsed once per
// process; later calls for the same type return the cached value. The
// default .env file is loaded lazily on first use and may be absent.
//
// Example:
//
//	type DatabaseConfig struct {
//		Host string `env:"DB_HOST" envDefault:"localhost"`
//		Port int    `env:"DB_PORT" envDefault:"5432"`
//		URL  string `env:"DATABASE_URL,required"`
//	}
//
//	var cfg DatabaseConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	defaultEnvLoaded.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	typeName := typeNameOf[T]()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[typeName]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	cache[typeName] = *v
	return nil
}

// MustLoad works like Load but panics on failure. Intended for
// configuration without which the application cannot start.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// ResetCache clears cached config values so tests can reload with
// different environment variables.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[string]any)
}

func typeNameOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
