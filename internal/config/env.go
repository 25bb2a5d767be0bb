package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envOverrides are the secrets and deployment knobs read from the
// environment. Non-empty values replace what the config file says.
type envOverrides struct {
	JWTSecret     string `env:"LCORE_JWT_SECRET"`
	S3AccessKey   string `env:"LCORE_S3_ACCESS_KEY"`
	S3SecretKey   string `env:"LCORE_S3_SECRET_KEY"`
	RedisPassword string `env:"LCORE_REDIS_PASSWORD"`
	KeyPassphrase string `env:"LCORE_KEY_PASSPHRASE"`
	ServerAddr    string `env:"LCORE_SERVER_ADDR"`
	LogLevel      string `env:"LCORE_LOG_LEVEL"`
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	setIf(&cfg.Auth.JWTSecret, o.JWTSecret)
	setIf(&cfg.Vault.S3AccessKey, o.S3AccessKey)
	setIf(&cfg.Vault.S3SecretKey, o.S3SecretKey)
	setIf(&cfg.Settings.RedisPassword, o.RedisPassword)
	setIf(&cfg.Encryption.Passphrase, o.KeyPassphrase)
	setIf(&cfg.Server.Addr, o.ServerAddr)
	setIf(&cfg.Log.Level, o.LogLevel)
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
