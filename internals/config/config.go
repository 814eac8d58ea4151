package config

import (
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/tutuna/telex/internals/database"
	"github.com/tutuna/telex/internals/telex"
)

// Config holds the process settings, all read from TELEX_* variables.
type Config struct {
	Token     string            `env:"TELEX_BOT_TOKEN"`
	APIURL    string            `env:"TELEX_API_URL" envDefault:"https://api.telegram.org"`
	Timeout   time.Duration     `env:"TELEX_TIMEOUT" envDefault:"60s"`
	ChunkSize int               `env:"TELEX_CHUNK_SIZE" envDefault:"8192"`
	DB        database.DbParams `envPrefix:"TELEX_DB_"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read configuration")
	}
	if cfg.ChunkSize <= 0 {
		return nil, errors.Errorf("TELEX_CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Timeout < 0 {
		return nil, errors.Errorf("TELEX_TIMEOUT must not be negative, got %s", cfg.Timeout)
	}
	return cfg, nil
}

// Client builds a Bot API client from the configuration.
func (c *Config) Client() (*telex.Client, error) {
	return telex.New(c.Token,
		telex.WithBaseURL(c.APIURL),
		telex.WithHTTPClient(&http.Client{Timeout: c.Timeout}),
		telex.WithChunkSize(c.ChunkSize),
	)
}
