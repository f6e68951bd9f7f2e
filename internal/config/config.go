package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Store     StoreConfig
	Redis     RedisConfig
	API       APIConfig
	Server    ServerConfig
	Retention RetentionConfig
	Slack     SlackConfig
}

// StoreConfig holds conversation store connection settings. URL selects the
// backend: postgres:// / postgresql:// for the remote backend, a filesystem
// path (or file: URL) for the embedded SQLite backend.
type StoreConfig struct {
	URL       string
	AuthToken string //nolint:gosec // G117: store connection config
	MaxConns  int
}

// RedisConfig holds Redis pub/sub settings. Addr empty disables live tailing.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// APIConfig holds API authentication settings. Secret empty and KeyHash
// empty together disable authentication (local development).
type APIConfig struct {
	Secret   string //nolint:gosec // G117: JWT signing secret config
	TokenTTL time.Duration
	KeyHash  string // argon2id hash of the static API key
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// RetentionConfig holds message retention settings. TTL zero disables the
// sweeper.
type RetentionConfig struct {
	TTL      time.Duration
	Interval time.Duration
}

// SlackConfig holds Slack notification settings for retention reports.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (API secret, store auth token) must be set explicitly.
func Load() (*Config, error) {
	maxConns, err := getEnvInt("CONVLOG_STORE_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CONVLOG_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tokenTTL, err := getEnvDuration("CONVLOG_API_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CONVLOG_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CONVLOG_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimitRPS, err := getEnvFloat("CONVLOG_RATE_LIMIT_RPS", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimitBurst, err := getEnvInt("CONVLOG_RATE_LIMIT_BURST", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retentionTTL, err := getEnvDuration("CONVLOG_RETENTION_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retentionInterval, err := getEnvDuration("CONVLOG_RETENTION_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("CONVLOG_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Store: StoreConfig{
			URL:       getEnv("CONVLOG_STORE_URL", "./data/convlog.db"),
			AuthToken: getEnv("CONVLOG_STORE_AUTH_TOKEN", ""),
			MaxConns:  maxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CONVLOG_REDIS_ADDR", ""),
			Password: getEnv("CONVLOG_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		API: APIConfig{
			Secret:   getEnv("CONVLOG_API_SECRET", ""),
			TokenTTL: tokenTTL,
			KeyHash:  getEnv("CONVLOG_API_KEY_HASH", ""),
		},
		Server: ServerConfig{
			Addr:           getEnv("CONVLOG_SERVER_ADDR", ":8080"),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			CORSOrigins:    corsOrigins,
			RateLimitRPS:   rateLimitRPS,
			RateLimitBurst: rateLimitBurst,
		},
		Retention: RetentionConfig{
			TTL:      retentionTTL,
			Interval: retentionInterval,
		},
		Slack: SlackConfig{
			BotToken: getEnv("CONVLOG_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("CONVLOG_SLACK_CHANNEL", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("CONVLOG_STORE_URL must not be empty")
	}
	if c.Store.MaxConns < 1 || c.Store.MaxConns > math.MaxInt32 {
		return fmt.Errorf("CONVLOG_STORE_MAX_CONNS must be 1-%d, got %d", math.MaxInt32, c.Store.MaxConns)
	}

	// API secret has no insecure default; when set it must carry enough entropy.
	if c.API.Secret != "" && len(c.API.Secret) < 32 {
		return fmt.Errorf("CONVLOG_API_SECRET must be at least 32 characters")
	}
	if c.API.Secret == "" && c.API.KeyHash == "" {
		log.Warn().Msg("no CONVLOG_API_SECRET or CONVLOG_API_KEY_HASH set; API runs unauthenticated")
	}
	if c.API.TokenTTL <= 0 {
		return fmt.Errorf("CONVLOG_API_TOKEN_TTL must be positive, got %s", c.API.TokenTTL)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CONVLOG_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CONVLOG_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("CONVLOG_RATE_LIMIT_RPS must be positive, got %g", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("CONVLOG_RATE_LIMIT_BURST must be >= 1, got %d", c.Server.RateLimitBurst)
	}

	if c.Retention.TTL < 0 {
		return fmt.Errorf("CONVLOG_RETENTION_TTL must be >= 0, got %s", c.Retention.TTL)
	}
	if c.Retention.TTL > 0 && c.Retention.Interval <= 0 {
		return fmt.Errorf("CONVLOG_RETENTION_INTERVAL must be positive, got %s", c.Retention.Interval)
	}

	if c.Slack.BotToken != "" && c.Slack.Channel == "" {
		return fmt.Errorf("CONVLOG_SLACK_CHANNEL is required when CONVLOG_SLACK_BOT_TOKEN is set")
	}

	return nil
}

// RedactedURL returns the store URL with any userinfo password stripped,
// safe for logging.
func (c *StoreConfig) RedactedURL() string {
	u, err := url.Parse(c.URL)
	if err != nil || u.User == nil {
		return c.URL
	}
	u.User = url.User(u.User.Username())
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
