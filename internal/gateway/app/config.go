package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/cryptox"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names an optional YAML file read before the environment.
const ConfigFileEnv = "CRAFTCONNECT_CONFIG"

// Development-only secrets, used when ENV=dev and nothing else is set.
const (
	devAccessSecret  = "craftconnect-dev-access-secret-not-for-production"
	devRefreshSecret = "craftconnect-dev-refresh-secret-not-for-production"
)

var (
	ErrMissingSecrets = errors.New("config: JWT_SECRET and JWT_REFRESH_SECRET are required")
	ErrSharedSecrets  = errors.New("config: JWT_SECRET and JWT_REFRESH_SECRET must differ")
	ErrWeakSecret     = errors.New("config: signing secrets must be at least 32 bytes outside dev")
)

type Config struct {
	JWTSecret        string        `yaml:"jwt_secret"`         // Required: access token signing secret
	JWTRefreshSecret string        `yaml:"jwt_refresh_secret"` // Required: refresh token signing secret, differs from JWTSecret
	AccessTTL        time.Duration `yaml:"access_ttl"`         // Optional: access token lifetime (default: 15m)
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`        // Optional: refresh token lifetime (default: 7d)
	IdentitySecret   string        `yaml:"identity_secret"`    // Optional: enables POST /auth/login

	DatabaseFile string `yaml:"database_file"` // Optional: path to SQLite database file (default: ./craftconnect.db)
	RedisURL     string `yaml:"redis_url"`     // Optional: redis revocations and event streams

	RazorpayKeyID     string `yaml:"razorpay_key_id"`
	RazorpayKeySecret string `yaml:"razorpay_key_secret"`
	PaymentAPIBase    string `yaml:"payment_api_base"`

	Env                  string        `yaml:"env"`                   // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        `yaml:"log_level"`             // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        `yaml:"log_format"`            // Log format (json, text) (default: json)
	Port                 int           `yaml:"port"`                  // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"` // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"` // Housekeeping interval (default: 1h)
}

func defaultConfig() Config {
	return Config{
		AccessTTL:            jwtx.DefaultAccessTokenTTL,
		RefreshTTL:           jwtx.DefaultRefreshTokenTTL,
		DatabaseFile:         "craftconnect.db",
		PaymentAPIBase:       "https://api.razorpay.com",
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: time.Hour,
	}
}

// LoadConfig builds the config from defaults, then the YAML file named by
// CRAFTCONNECT_CONFIG, then the environment. The result is validated.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTRefreshSecret = getEnvOrDefault("JWT_REFRESH_SECRET", cfg.JWTRefreshSecret)
	cfg.AccessTTL = getEnvDurationOrDefault("ACCESS_TOKEN_TTL", cfg.AccessTTL)
	cfg.RefreshTTL = getEnvDurationOrDefault("REFRESH_TOKEN_TTL", cfg.RefreshTTL)
	cfg.IdentitySecret = getEnvOrDefault("IDENTITY_SECRET", cfg.IdentitySecret)
	cfg.DatabaseFile = getEnvOrDefault("DATABASE_FILE", cfg.DatabaseFile)
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RazorpayKeyID = getEnvOrDefault("RAZORPAY_KEY_ID", cfg.RazorpayKeyID)
	cfg.RazorpayKeySecret = getEnvOrDefault("RAZORPAY_KEY_SECRET", cfg.RazorpayKeySecret)
	cfg.PaymentAPIBase = getEnvOrDefault("PAYMENT_API_BASE", cfg.PaymentAPIBase)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", cfg.HousekeepingInterval)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// IsDev reports whether the service runs in the dev environment.
func (c Config) IsDev() bool { return c.Env == "dev" }

// Validate checks the signing secrets. In dev, missing secrets fall back to
// fixed development values.
func (c *Config) Validate() error {
	if c.IsDev() {
		if c.JWTSecret == "" {
			c.JWTSecret = devAccessSecret
		}
		if c.JWTRefreshSecret == "" {
			c.JWTRefreshSecret = devRefreshSecret
		}
	}

	if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
		return ErrMissingSecrets
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return ErrSharedSecrets
	}
	if !c.IsDev() && (len(c.JWTSecret) < cryptox.MinSecretSize || len(c.JWTRefreshSecret) < cryptox.MinSecretSize) {
		return ErrWeakSecret
	}
	return nil
}

// CodecConfig turns the token settings into a jwtx.CodecConfig.
func (c Config) CodecConfig() jwtx.CodecConfig {
	return jwtx.CodecConfig{
		AccessSecret:  []byte(c.JWTSecret),
		RefreshSecret: []byte(c.JWTRefreshSecret),
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
