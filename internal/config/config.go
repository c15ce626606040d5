package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when no config file is given; it may be absent.
	DefaultPath = "config/socialcredit.yaml"
	envPrefix   = "socialcredit"
)

// Config is the service configuration. Values come from built-in defaults,
// then the YAML file, then SOCIALCREDIT_* environment variables.
type Config struct {
	Environment string `yaml:"environment" envconfig:"ENVIRONMENT"`
	HTTPAddress string `yaml:"http_address" envconfig:"HTTP_ADDRESS"`
	FrontendURL string `yaml:"frontend_url" envconfig:"FRONTEND_URL"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFile     string `yaml:"log_file" envconfig:"LOG_FILE"`
	LogJSON     bool   `yaml:"log_json" envconfig:"LOG_JSON"`

	Store      StoreConfig      `yaml:"store" envconfig:"STORE"`
	Auth       AuthConfig       `yaml:"auth" envconfig:"AUTH"`
	Discord    DiscordConfig    `yaml:"discord" envconfig:"DISCORD"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Enrichment EnrichmentConfig `yaml:"enrichment" envconfig:"ENRICHMENT"`
	Jobs       JobsConfig       `yaml:"jobs" envconfig:"JOBS"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver              string `yaml:"driver" envconfig:"DRIVER"` // memory|sqlite|postgres
	Path                string `yaml:"path" envconfig:"SQLITE_PATH"`
	PostgresDSN         string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	MaxOpenConns        int    `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns        int    `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	ConnLifetimeMinutes int    `yaml:"conn_lifetime_minutes" envconfig:"CONN_LIFETIME_MINUTES"`
	ConnIdleMinutes     int    `yaml:"conn_idle_minutes" envconfig:"CONN_IDLE_MINUTES"`
}

type AuthConfig struct {
	Secret     string        `yaml:"secret" envconfig:"SECRET"`
	SessionTTL time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`
	APIKeySalt string        `yaml:"api_key_salt" envconfig:"API_KEY_SALT"`
	BcryptCost int           `yaml:"bcrypt_cost" envconfig:"BCRYPT_COST"`
}

type DiscordConfig struct {
	ClientID     string `yaml:"client_id" envconfig:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"CLIENT_SECRET"`
	RedirectURI  string `yaml:"redirect_uri" envconfig:"REDIRECT_URI"`
	BotToken     string `yaml:"bot_token" envconfig:"BOT_TOKEN"`
	APIBaseURL   string `yaml:"api_base_url" envconfig:"API_BASE_URL"`
	AuthURL      string `yaml:"auth_url" envconfig:"AUTH_URL"`
	TokenURL     string `yaml:"token_url" envconfig:"TOKEN_URL"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" envconfig:"ENABLED"`
	RequestsPerSecond float64 `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND"`
	Burst             float64 `yaml:"burst" envconfig:"BURST"`
}

type EnrichmentConfig struct {
	Workers int           `yaml:"workers" envconfig:"WORKERS"`
	Buffer  int           `yaml:"buffer" envconfig:"BUFFER"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// JobsConfig holds cron specs; an empty spec disables the job.
type JobsConfig struct {
	StateSweep    string `yaml:"state_sweep" envconfig:"STATE_SWEEP"`
	ServerRefresh string `yaml:"server_refresh" envconfig:"SERVER_REFRESH"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Environment: "dev",
		HTTPAddress: ":8000",
		FrontendURL: "http://localhost:5173",
		LogLevel:    "info",
		Store: StoreConfig{
			Driver:              "sqlite",
			Path:                DefaultStorePath(),
			MaxOpenConns:        20,
			MaxIdleConns:        5,
			ConnLifetimeMinutes: 60,
			ConnIdleMinutes:     10,
		},
		Auth: AuthConfig{
			SessionTTL: 24 * time.Hour,
			BcryptCost: 10,
		},
		Discord: DiscordConfig{
			RedirectURI: "http://localhost:8000/auth/discord/callback",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 2,
			Burst:             20,
		},
		Enrichment: EnrichmentConfig{
			Workers: 2,
			Buffer:  256,
			Timeout: 15 * time.Second,
		},
		Jobs: JobsConfig{
			StateSweep:    "@every 1m",
			ServerRefresh: "@every 6h",
		},
	}
}

// Load reads configuration from path (DefaultPath when empty) and the
// environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Defaults()
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			problems = append(problems, "store.path is required for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			problems = append(problems, "store.postgres_dsn is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		problems = append(problems, "auth.secret is required")
	}
	if c.Auth.SessionTTL <= 0 {
		problems = append(problems, "auth.session_ttl must be positive")
	}
	if c.IsProduction() && strings.TrimSpace(c.Auth.APIKeySalt) == "" {
		problems = append(problems, "auth.api_key_salt is required in production")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		problems = append(problems, "rate_limit needs positive requests_per_second and burst >= 1")
	}
	if c.Enrichment.Workers < 0 || c.Enrichment.Buffer < 0 {
		problems = append(problems, "enrichment sizes must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether the environment is a production one.
func (c Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "prod" || env == "production"
}

// DefaultStorePath returns the SQLite path under the user's home directory.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "data/socialcredit.db"
	}
	return home + "/.socialcredit/socialcredit.db"
}
