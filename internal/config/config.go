// Package config resolves runtime configuration from environment
// variables, .env files, and flags bound through Viper.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/havenly/unitwise/pkg/errors"
	"github.com/havenly/unitwise/pkg/logging"
)

// Store backend names accepted by UNITWISE_STORE.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Defaults.
const (
	DefaultStore      = StoreSQLite
	DefaultDBPath     = "unitwise.db"
	DefaultListenAddr = ":8080"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Store selects the storage backend: "memory" or "sqlite".
	Store string

	// DBPath is the SQLite database path; ignored by the memory backend.
	DBPath string

	// ListenAddr is the review API's listen address.
	ListenAddr string
}

// Init loads .env files and binds environment variables. Call once at
// startup before Load.
func Init() {
	// A missing .env file is the normal case outside development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetEnvPrefix("UNITWISE")
	viper.AutomaticEnv()

	viper.SetDefault("store", DefaultStore)
	viper.SetDefault("db_path", DefaultDBPath)
	viper.SetDefault("listen_addr", DefaultListenAddr)
}

// Load resolves and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{
		Store:      GetString("store"),
		DBPath:     GetString("db_path"),
		ListenAddr: GetString("listen_addr"),
	}

	switch cfg.Store {
	case StoreMemory, StoreSQLite:
	default:
		return nil, errors.NewValidationError("store", cfg.Store,
			"unknown store backend, expected memory or sqlite")
	}
	if cfg.Store == StoreSQLite && cfg.DBPath == "" {
		return nil, errors.NewValidationError("db_path", cfg.DBPath,
			"sqlite backend requires a database path")
	}
	if cfg.ListenAddr == "" {
		return nil, errors.NewValidationError("listen_addr", cfg.ListenAddr,
			"listen address cannot be empty")
	}
	return cfg, nil
}

// GetString reads a key from Viper, falling back to the raw prefixed
// environment variable when Viper has no value bound.
func GetString(key string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return os.Getenv("UNITWISE_" + toEnvSuffix(key))
}

func toEnvSuffix(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
