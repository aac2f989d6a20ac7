// Package config loads the service configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/baseball-sim/sim-engine/logger"
)

// Sentinel error kinds for this package
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Store kinds
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// FileEnv names the environment variable holding an optional YAML config path
const FileEnv = "SIM_CONFIG"

// Config contains process configuration
type Config struct {
	Port string `koanf:"port"`

	DBHost     string `koanf:"db_host"`
	DBPort     string `koanf:"db_port"`
	DBUser     string `koanf:"db_user"`
	DBPassword string `koanf:"db_password"`
	DBName     string `koanf:"db_name"`

	// Store selects where runs are persisted: memory or postgres.
	Store string `koanf:"store"`

	Workers int `koanf:"workers"`
	// SimulationRuns is the number of plate appearances a run uses when the request leaves it out.
	SimulationRuns int `koanf:"simulation_runs"`
	// MaxPlateAppearances caps a single run.
	MaxPlateAppearances int `koanf:"max_plate_appearances"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// ParamsPath optionally points at a YAML resolver calibration.
	ParamsPath string `koanf:"params_path"`
	// LeagueRatesPath optionally points at a JSON file of league outcome rates.
	LeagueRatesPath string `koanf:"league_rates_path"`

	// CORSOrigins is a comma separated list; "*" allows any origin.
	CORSOrigins string `koanf:"cors_origins"`
}

// New returns the defaults
func New() *Config {
	return &Config{
		Port:                "8081",
		DBHost:              "localhost",
		DBPort:              "5432",
		DBUser:              "baseball_user",
		DBPassword:          "baseball_pass",
		DBName:              "baseball_sim",
		Store:               StoreMemory,
		Workers:             runtime.NumCPU(),
		SimulationRuns:      1000,
		MaxPlateAppearances: 10_000_000,
		LogLevel:            "info",
		LogFormat:           "text",
		CORSOrigins:         "*",
	}
}

// envKeys are the environment variables Load reads, lowercased to koanf keys
var envKeys = map[string]bool{
	"port": true, "db_host": true, "db_port": true, "db_user": true, "db_password": true,
	"db_name": true, "store": true, "workers": true, "simulation_runs": true,
	"max_plate_appearances": true, "log_level": true, "log_format": true,
	"params_path": true, "league_rates_path": true, "cors_origins": true,
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New)
//  2. YAML file if SIM_CONFIG is set
//  3. env (PORT, DB_HOST, WORKERS, ...)
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if !envKeys[key] {
			return ""
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, "port must not be empty")
	}
	if c.Workers <= 0 {
		errs = append(errs, "workers must be positive")
	}
	if c.SimulationRuns <= 0 {
		errs = append(errs, "simulation_runs must be positive")
	}
	if c.MaxPlateAppearances < c.SimulationRuns {
		errs = append(errs, "max_plate_appearances must be at least simulation_runs")
	}
	if c.Store != StoreMemory && c.Store != StorePostgres {
		errs = append(errs, fmt.Sprintf("unknown store %q", c.Store))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// DatabaseURL builds the Postgres connection string
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   c.DBHost + ":" + c.DBPort,
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// AllowedOrigins splits CORSOrigins into a list, dropping empty entries
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
