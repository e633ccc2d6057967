// Package config loads runtime settings from the environment and an optional
// .env file using viper. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved, validated application configuration.
type Config struct {
	Port         int
	DatabasePath string
	LogLevel     slog.Level

	SecretKey                string
	JWTAlgorithm             string
	AccessTokenExpireMinutes int
	BcryptCost               int

	TokenEncryptionKey string

	DiscogsConsumerKey    string
	DiscogsConsumerSecret string
	DiscogsCallbackURL    string
	DiscogsUserAgent      string
	DiscogsHTTPTimeout    time.Duration

	OAuthStateTTL        time.Duration
	OAuthStateMaxEntries int
}

// AccessTokenTTL converts the configured minutes to a duration.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// DiscogsConfigured reports whether consumer credentials are present.
func (c *Config) DiscogsConfigured() bool {
	return c.DiscogsConsumerKey != "" && c.DiscogsConsumerSecret != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8000)
	v.SetDefault("DATABASE_PATH", "data/records.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SECRET_KEY", "")
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("ACCESS_TOKEN_EXPIRE_MINUTES", 30)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("TOKEN_ENCRYPTION_KEY", "")
	v.SetDefault("DISCOGS_CONSUMER_KEY", "")
	v.SetDefault("DISCOGS_CONSUMER_SECRET", "")
	v.SetDefault("DISCOGS_CALLBACK_URL", "http://localhost:8000/api/v1/discogs/callback")
	v.SetDefault("DISCOGS_USER_AGENT", "RecCollector/1.0")
	v.SetDefault("DISCOGS_HTTP_TIMEOUT", "15s")
	v.SetDefault("OAUTH_STATE_TTL", "15m")
	v.SetDefault("OAUTH_STATE_MAX_ENTRIES", 10000)
}

// Load reads configuration. envFile may be empty; a missing file is not an
// error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
			}
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                     v.GetInt("PORT"),
		DatabasePath:             v.GetString("DATABASE_PATH"),
		SecretKey:                v.GetString("SECRET_KEY"),
		JWTAlgorithm:             strings.ToUpper(v.GetString("JWT_ALGORITHM")),
		AccessTokenExpireMinutes: v.GetInt("ACCESS_TOKEN_EXPIRE_MINUTES"),
		BcryptCost:               v.GetInt("BCRYPT_COST"),
		TokenEncryptionKey:       v.GetString("TOKEN_ENCRYPTION_KEY"),
		DiscogsConsumerKey:       v.GetString("DISCOGS_CONSUMER_KEY"),
		DiscogsConsumerSecret:    v.GetString("DISCOGS_CONSUMER_SECRET"),
		DiscogsCallbackURL:       v.GetString("DISCOGS_CALLBACK_URL"),
		DiscogsUserAgent:         v.GetString("DISCOGS_USER_AGENT"),
		DiscogsHTTPTimeout:       v.GetDuration("DISCOGS_HTTP_TIMEOUT"),
		OAuthStateTTL:            v.GetDuration("OAUTH_STATE_TTL"),
		OAuthStateMaxEntries:     v.GetInt("OAUTH_STATE_MAX_ENTRIES"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}
	if len(c.SecretKey) < 16 {
		errs = append(errs, errors.New("SECRET_KEY must be at least 16 characters"))
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM must be HS256, HS384 or HS512, got %q", c.JWTAlgorithm))
	}
	if c.AccessTokenExpireMinutes <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}
	if c.TokenEncryptionKey == "" {
		errs = append(errs, errors.New("TOKEN_ENCRYPTION_KEY is required"))
	}
	if c.DiscogsHTTPTimeout <= 0 {
		errs = append(errs, errors.New("DISCOGS_HTTP_TIMEOUT must be positive"))
	}
	if c.OAuthStateTTL <= 0 {
		errs = append(errs, errors.New("OAUTH_STATE_TTL must be positive"))
	}
	if c.OAuthStateMaxEntries <= 0 {
		errs = append(errs, errors.New("OAUTH_STATE_MAX_ENTRIES must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
