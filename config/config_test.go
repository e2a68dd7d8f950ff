package config

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/spf13/viper"

	"github.com/gaelgael5/mycoach-sub001/privacy"
)

func validKey(t *testing.T) string {
	t.Helper()
	key, err := privacy.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBType != "sqlite" {
		t.Errorf("DBType = %q, want sqlite", cfg.DBType)
	}
	if cfg.DSN != "mycoach.db" {
		t.Errorf("DSN = %q, want mycoach.db", cfg.DSN)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.SMSFrom != "MyCoach" {
		t.Errorf("SMSFrom = %q, want MyCoach", cfg.SMSFrom)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DSN", "host=db user=app dbname=mycoach")
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBType != "postgres" {
		t.Errorf("DBType = %q, want postgres", cfg.DBType)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q, want redis:6379", cfg.RedisAddr)
	}
}

func TestValidate(t *testing.T) {
	fieldKey := validKey(t)
	tokenKey := validKey(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg: Config{
				FieldEncryptionKey: fieldKey,
				TokenEncryptionKey: tokenKey,
				SessionSecret:      "s3cret",
			},
		},
		{
			name: "missing field key",
			cfg: Config{
				TokenEncryptionKey: tokenKey,
				SessionSecret:      "s3cret",
			},
			wantErr: true,
		},
		{
			name: "malformed key",
			cfg: Config{
				FieldEncryptionKey: "not base64!!",
				TokenEncryptionKey: tokenKey,
				SessionSecret:      "s3cret",
			},
			wantErr: true,
		},
		{
			name: "missing session secret",
			cfg: Config{
				FieldEncryptionKey: fieldKey,
				TokenEncryptionKey: tokenKey,
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateKeyErrorType(t *testing.T) {
	cfg := Config{
		FieldEncryptionKey: "short",
		TokenEncryptionKey: validKey(t),
		SessionSecret:      "s3cret",
	}

	var cfgErr *privacy.ConfigurationError
	if err := cfg.Validate(); !errors.As(err, &cfgErr) {
		t.Fatalf("Validate() = %v, want *privacy.ConfigurationError", err)
	}
}
