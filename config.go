package recordapi

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	// DefaultPort is the listen port when neither config nor PORT env set one
	DefaultPort = 3000

	// DefaultLoginRateLimit is the number of login attempts allowed per IP per window
	DefaultLoginRateLimit = 100

	// DefaultLoginRateWindow is the login throttle window
	DefaultLoginRateWindow = 15 * time.Minute
)

// Config holds the service configuration
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	// The PORT environment variable takes precedence when set.
	Port int `yaml:"port"`

	// SigningKey is the HMAC secret for token signing (required).
	SigningKey string `yaml:"signing_key"`

	// TokenTTL is how long issued tokens remain valid.
	// Default: 1 hour.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// RateLimit holds login throttle configuration
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Security holds security settings (secure by default)
	Security SecurityConfig `yaml:"security"`

	// Seed holds the users and records loaded into the in-memory store at startup
	Seed SeedConfig `yaml:"seed"`

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger `yaml:"-"`
}

// RateLimitConfig holds login rate limiting configuration
type RateLimitConfig struct {
	// Limit is the number of login requests allowed per IP per Window.
	// Default: 100.
	Limit int `yaml:"limit"`

	// Window is the throttle window. Default: 15 minutes.
	Window time.Duration `yaml:"window"`

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool `yaml:"trust_proxy"`
}

// SecurityConfig holds security settings (secure by default)
type SecurityConfig struct {
	// EnableAuditLogging enables security audit logging.
	// Logs login attempts, token rejections, and throttle events
	// (sensitive data hashed).
	EnableAuditLogging bool `yaml:"enable_audit_logging"`
}

// SeedConfig holds the startup dataset
type SeedConfig struct {
	Users   []SeedUser   `yaml:"users"`
	Records []SeedRecord `yaml:"records"`
}

// SeedUser is a user loaded at startup. The plaintext password is hashed
// with bcrypt before it reaches the store.
type SeedUser struct {
	ID       int64  `yaml:"id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SeedRecord is a record loaded at startup
type SeedRecord struct {
	Name string  `yaml:"name"`
	Age  float64 `yaml:"age"`
}

// DefaultSeed returns the built-in startup dataset used when the
// configuration provides none.
func DefaultSeed() SeedConfig {
	return SeedConfig{
		Users: []SeedUser{
			{ID: 1, Username: "user1", Password: "p"},
			{ID: 2, Username: "user2", Password: "password2"},
		},
		Records: []SeedRecord{
			{Name: "John Doe", Age: 25},
			{Name: "Jane Smith", Age: 30},
		},
	}
}

// applySecureDefaults applies secure-by-default configuration values
func applySecureDefaults(config *Config) *Config {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = time.Hour
	}
	if config.RateLimit.Limit == 0 {
		config.RateLimit.Limit = DefaultLoginRateLimit
	}
	if config.RateLimit.Window == 0 {
		config.RateLimit.Window = DefaultLoginRateWindow
	}
	if len(config.Seed.Users) == 0 && len(config.Seed.Records) == 0 {
		config.Seed = DefaultSeed()
	}
	return config
}

// LoadConfig reads a YAML configuration file and applies defaults.
// The PORT environment variable, when set, overrides the configured port.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyPortEnv(&cfg)
	return applySecureDefaults(&cfg), nil
}

// applyPortEnv overrides the configured port from the PORT environment variable
func applyPortEnv(cfg *Config) {
	raw := os.Getenv("PORT")
	if raw == "" {
		return
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return
	}
	cfg.Port = port
}
