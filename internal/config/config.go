// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // ACTIVITY_TIMEZONE must resolve in minimal containers

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config is built once in main and passed to constructors.
type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Discord struct {
		Token   string `env:"DISCORD_TOKEN,required,notEmpty"`
		GuildID int64  `env:"GUILD_ID" envDefault:"559879519087886356"`
		AdminID int64  `env:"ADMIN_ID,required"`
		// LogFile receives the gateway library's debug log, truncated on
		// start. Empty keeps its warnings in the main log.
		LogFile string `env:"DISCORD_LOG_FILE"`
	}

	Server struct {
		Port int `env:"PORT" envDefault:"5000"`
	}

	Store struct {
		DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
		Timeout           time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`
		ReconnectInterval time.Duration `env:"RECONNECT_INTERVAL" envDefault:"1m"`
		WorkerPoolSize    int           `env:"WORKER_POOL_SIZE" envDefault:"8"`
		ActivityTimezone  string        `env:"ACTIVITY_TIMEZONE" envDefault:"America/New_York"`
	}

	Redis struct {
		Addr     string        `env:"REDIS_ADDR"`
		Password string        `env:"REDIS_PASSWORD"`
		DB       int           `env:"REDIS_DB" envDefault:"0"`
		TTL      time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	}
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal in production where variables are set directly.
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment into a Config and validates it.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.GuildID <= 0 {
		errs = append(errs, errors.New("GUILD_ID must be positive"))
	}
	if c.Discord.AdminID <= 0 {
		errs = append(errs, errors.New("ADMIN_ID must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Server.Port))
	}
	if c.Store.WorkerPoolSize <= 0 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be positive"))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.Store.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("RECONNECT_INTERVAL must be positive"))
	}
	if _, err := time.LoadLocation(c.Store.ActivityTimezone); err != nil {
		errs = append(errs, fmt.Errorf("ACTIVITY_TIMEZONE: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the fixed time zone used for activity timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Store.ActivityTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
