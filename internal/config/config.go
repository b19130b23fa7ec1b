package config

import (
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/STRATA/internal/integrate"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Integration struct {
		// Workers per run; 0 means one per CPU.
		Workers int `env:"INT_WORKERS" envDefault:"0"`
		// Calls is the default total sample budget.
		Calls int `env:"INT_CALLS" envDefault:"10000000"`
		// MaxCalls caps budgets accepted over the API.
		MaxCalls int `env:"INT_MAX_CALLS" envDefault:"100000000"`
		// Seed of 0 derives the base seed from the wall clock.
		Seed    int64  `env:"INT_SEED" envDefault:"0"`
		Combine string `env:"INT_COMBINE" envDefault:"mean"`
		// VEGAS engine knobs; 0 keeps the engine defaults.
		Iterations int     `env:"INT_ITERATIONS" envDefault:"0"`
		Bins       int     `env:"INT_BINS" envDefault:"0"`
		Alpha      float64 `env:"INT_ALPHA" envDefault:"0"`
	}
	Limits struct {
		RequestsPerSecond float64 `env:"LIMIT_RPS" envDefault:"50"`
		Burst             int     `env:"LIMIT_BURST" envDefault:"100"`
		// MaxInFlight bounds concurrently running jobs plus queued
		// requests; 0 disables the cap.
		MaxInFlight int `env:"LIMIT_MAX_IN_FLIGHT" envDefault:"32"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints env parsing cannot.
func (c *Config) Validate() error {
	if c.Integration.Calls <= 0 {
		return integrate.NewConfigErrorf("INT_CALLS", "must be positive, got %d", c.Integration.Calls)
	}
	if c.Integration.MaxCalls > 0 && c.Integration.Calls > c.Integration.MaxCalls {
		return integrate.NewConfigErrorf("INT_CALLS", "%d exceeds INT_MAX_CALLS %d", c.Integration.Calls, c.Integration.MaxCalls)
	}
	if c.Integration.Workers < 0 {
		return integrate.NewConfigErrorf("INT_WORKERS", "must not be negative, got %d", c.Integration.Workers)
	}
	if _, err := integrate.ParseCombineMode(c.Integration.Combine); err != nil {
		return err
	}
	return nil
}
