// Package config provides environment-based configuration for the MyCoach
// backend.
//
// Configuration is loaded from environment variables using Viper, with
// sensible defaults for development. Key material is validated once at
// process start: a missing or malformed encryption key is a startup
// failure, never a per-request one.
//
// # Environment Variables
//
//   - DB_TYPE: Database type (sqlite, postgres, mysql). Default: sqlite
//   - DSN: Database connection string. Default: mycoach.db
//   - SKIP_AUTO_MIGRATE: Skip automatic database migrations. Default: false
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - PORT: HTTP server port. Default: 8080
//   - FIELD_ENCRYPTION_KEY: base64 32-byte key for the PII domain (required)
//   - TOKEN_ENCRYPTION_KEY: base64 32-byte key for the token domain (required)
//   - SESSION_SECRET: HS256 secret for API session tokens (required)
//   - SMS_ENDPOINT, SMS_API_KEY, SMS_FROM: SMS gateway settings
//   - SMS_APP_HASH: app-identifying suffix for client-side code auto-read
//   - REDIS_ADDR: optional Redis address for distributed rate limiting
//   - STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET, STRAVA_REDIRECT_URL: optional
//     OAuth settings for the Strava connection
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/gaelgael5/mycoach-sub001/privacy"
)

type Config struct {
	DBType          string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql
	DSN             string `mapstructure:"DSN"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	Port            int    `mapstructure:"PORT"`

	FieldEncryptionKey string `mapstructure:"FIELD_ENCRYPTION_KEY"`
	TokenEncryptionKey string `mapstructure:"TOKEN_ENCRYPTION_KEY"`

	SessionSecret string `mapstructure:"SESSION_SECRET"`

	SMSEndpoint string `mapstructure:"SMS_ENDPOINT"`
	SMSAPIKey   string `mapstructure:"SMS_API_KEY"`
	SMSFrom     string `mapstructure:"SMS_FROM"`
	SMSAppHash  string `mapstructure:"SMS_APP_HASH"`

	RedisAddr string `mapstructure:"REDIS_ADDR"`

	StravaClientID     string `mapstructure:"STRAVA_CLIENT_ID"`
	StravaClientSecret string `mapstructure:"STRAVA_CLIENT_SECRET"`
	StravaRedirectURL  string `mapstructure:"STRAVA_REDIRECT_URL"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("DB_TYPE", "sqlite")
	viper.SetDefault("DSN", "mycoach.db")
	viper.SetDefault("SKIP_AUTO_MIGRATE", false)
	viper.SetDefault("SMS_FROM", "MyCoach")

	// Viper only reads env vars for keys it knows about, so every optional
	// key gets an empty default.
	for _, key := range []string{
		"FIELD_ENCRYPTION_KEY", "TOKEN_ENCRYPTION_KEY", "SESSION_SECRET",
		"SMS_ENDPOINT", "SMS_API_KEY", "SMS_APP_HASH", "REDIS_ADDR",
		"STRAVA_CLIENT_ID", "STRAVA_CLIENT_SECRET", "STRAVA_REDIRECT_URL",
	} {
		viper.SetDefault(key, "")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// EncryptionKeys decodes and validates the configured key material. The
// returned keys are suitable for privacy.NewCipher; any problem is a
// *privacy.ConfigurationError.
func (c *Config) EncryptionKeys() (privacy.Keys, error) {
	return privacy.KeysFromBase64(c.FieldEncryptionKey, c.TokenEncryptionKey)
}

// Validate performs the one-time startup checks. It builds a throwaway
// cipher so that key problems surface here and not on the first request.
func (c *Config) Validate() error {
	keys, err := c.EncryptionKeys()
	if err != nil {
		return err
	}
	if _, err := privacy.NewCipher(keys); err != nil {
		return err
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("config: SESSION_SECRET is required")
	}
	return nil
}
