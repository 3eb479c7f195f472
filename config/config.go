// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// MemoryURL selects the in-process document store instead of MongoDB.
const MemoryURL = "memory://"

type Config struct {
	SecretKey    string `envconfig:"SECRET_KEY" required:"true"`
	DatabaseURL  string `envconfig:"DATABASE_URL" default:"mongodb://localhost:27017/jimgabang"`
	DatabaseName string `envconfig:"DATABASE_NAME"`
	Port         string `envconfig:"PORT" default:"8000"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000,http://jimgabang.store,https://jimgabang.store,http://www.jimgabang.store,https://www.jimgabang.store"`

	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	AdminToken string `envconfig:"ADMIN_TOKEN"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
	ReceiptSecret      string `envconfig:"RECEIPT_SECRET"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv()
}

// FromEnv decodes the process environment without touching .env.
func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	if c.SecretKey == "" {
		return Config{}, errors.New("config: SECRET_KEY must not be empty")
	}
	if c.ReceiptSecret == "" {
		c.ReceiptSecret = c.SecretKey
	}
	if c.RateLimitPerMinute <= 0 {
		return Config{}, errors.New("config: RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return Config{}, errors.New("config: token TTLs must be positive")
	}
	return c, nil
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// InMemory reports whether DatabaseURL selects the in-process store.
func (c Config) InMemory() bool { return c.DatabaseURL == MemoryURL }

// Database is DatabaseName, or the path of DatabaseURL when no name is set.
func (c Config) Database() string {
	if c.DatabaseName != "" {
		return c.DatabaseName
	}
	if u, err := url.Parse(c.DatabaseURL); err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return "jimgabang"
}
