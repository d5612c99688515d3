package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configurable server parameters. Values are read from the
// environment (after an optional .env load in main) with the defaults below.
type Config struct {
	// DatabaseURL is the Postgres connection string. Required for the server;
	// the storage layer needs Postgres for advisory locks and ON CONFLICT dedup.
	DatabaseURL string `env:"DATABASE_URL"`

	// HTTPPort serves both the JSON API and the /ws websocket endpoint.
	HTTPPort int `env:"HTTP_PORT" envDefault:"3000"`

	// TurnExpirySeconds is how long players have to complete a turn. Historical
	// deployments ran with 50; 500 is the value the current rules settled on.
	TurnExpirySeconds int `env:"TURN_EXPIRY_SECONDS" envDefault:"500"`

	// MatchSampleSize is how many WAITING games a search samples before giving
	// up and creating a new game.
	MatchSampleSize int `env:"MATCH_SAMPLE_SIZE" envDefault:"5"`

	// SweepIntervalSeconds is how often the reconciler sweeps for games whose
	// turn deadline has passed.
	SweepIntervalSeconds int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"30"`

	// AuthSecret signs locally minted HS256 tokens (the /token dev endpoint).
	AuthSecret string `env:"AUTH_SECRET" envDefault:"secret"`

	// AuthJWKSURL, when set, switches token verification to an external JWKS
	// endpoint instead of the local secret.
	AuthJWKSURL string `env:"AUTH_JWKS_URL"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing config from environment: %w", err)
	}
	return &cfg, nil
}

// TurnExpiry returns the turn deadline window as a duration.
func (c *Config) TurnExpiry() time.Duration {
	return time.Duration(c.TurnExpirySeconds) * time.Second
}

// SweepInterval returns the reconciler sweep period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
