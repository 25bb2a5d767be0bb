package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for lcore.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Log        LogConfig        `toml:"log"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Staging    StagingConfig    `toml:"staging"`
	Settings   SettingsConfig   `toml:"settings"`
	Metadata   MetadataConfig   `toml:"metadata"`
	Download   DownloadConfig   `toml:"download"`
	GC         GCConfig         `toml:"gc"`
	Auth       AuthConfig       `toml:"auth"`
	Launch     LaunchConfig     `toml:"launch"`
	Server     ServerConfig     `toml:"server"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `toml:"format"` // "tsv" (default), "console" or "json"
	Level  string `toml:"level"`  // "debug", "info" (default), "warn", "error"
}

// VaultConfig represents configuration for the artifact vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3PathStyle bool   `toml:"s3_path_style,omitempty"`
	// Static credentials; normally supplied through LCORE_S3_ACCESS_KEY and
	// LCORE_S3_SECRET_KEY rather than written to the file.
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig configures at-rest sealing of vault blobs.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	// Passphrase unlocks the private key. Only read from LCORE_KEY_PASSPHRASE.
	Passphrase string `toml:"-"`
}

// DatabaseConfig represents configuration for the metadata database.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StagingConfig configures the temporary write area used by artifact puts.
type StagingConfig struct {
	StagingDir string `toml:"staging_dir"`
	MaxSize    int64  `toml:"max_size"` // max bytes for a single blob; 0 means unlimited
}

// SettingsConfig selects the key/value settings backend.
type SettingsConfig struct {
	Type string `toml:"type"` // "database" (default), "redis" or "memory"

	// Redis-specific fields (only used when Type == "redis")
	RedisAddr   string `toml:"redis_addr,omitempty"`
	RedisDB     int    `toml:"redis_db,omitempty"`
	RedisPrefix string `toml:"redis_prefix,omitempty"`
	// RedisPassword is only read from LCORE_REDIS_PASSWORD.
	RedisPassword string `toml:"-"`
}

// MetadataConfig configures the remote version/loader metadata source.
type MetadataConfig struct {
	BaseURL   string   `toml:"base_url"`
	Timeout   Duration `toml:"timeout"`
	CacheSize int      `toml:"cache_size"`
	CacheTTL  Duration `toml:"cache_ttl"`
}

// DownloadConfig tunes profile downloads.
type DownloadConfig struct {
	Workers        int      `toml:"workers"`
	MaxAttempts    int      `toml:"max_attempts"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
	Timeout        Duration `toml:"timeout"` // per fetch request
}

// GCConfig tunes the artifact sweeper.
type GCConfig struct {
	Interval    Duration `toml:"interval"`
	GracePeriod Duration `toml:"grace_period"`
}

// AuthConfig selects the credential verifier and token lifetimes.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type AuthConfig struct {
	Type     string   `toml:"type"` // "any", "static" or "http"
	TokenTTL Duration `toml:"token_ttl"`
	JoinTTL  Duration `toml:"join_ttl"`
	// JWTSecret signs access tokens. Normally supplied through LCORE_JWT_SECRET.
	JWTSecret string `toml:"jwt_secret,omitempty"`

	// Static-specific fields (only used when Type == "static")
	Users []StaticUser `toml:"users,omitempty"`

	// HTTP-specific fields (only used when Type == "http")
	Endpoint string   `toml:"endpoint,omitempty"`
	Timeout  Duration `toml:"timeout,omitempty"`
}

// StaticUser is one entry of the static credential table.
type StaticUser struct {
	Login        string `toml:"login"`
	UUID         string `toml:"uuid,omitempty"`
	PasswordHash string `toml:"password_hash"` // bcrypt
}

// LaunchConfig configures where profiles are installed and how games start.
type LaunchConfig struct {
	JavaPath    string `toml:"java_path"`
	ProfilesDir string `toml:"profiles_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration written as a string such as "30s" or "10m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a new Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Log:     LogConfig{Format: "tsv", Level: "info"},
		Vault: VaultConfig{
			Type:        "filesystem",
			FSVaultRoot: filepath.Join(baseDir, "vault"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "lcore.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "lcore.key"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Staging:  StagingConfig{StagingDir: filepath.Join(baseDir, "staging")},
		Settings: SettingsConfig{Type: "database"},
		Metadata: MetadataConfig{
			Timeout:   Duration{30 * time.Second},
			CacheSize: 256,
			CacheTTL:  Duration{10 * time.Minute},
		},
		Download: DownloadConfig{
			Workers:        4,
			MaxAttempts:    3,
			InitialBackoff: Duration{500 * time.Millisecond},
			MaxBackoff:     Duration{10 * time.Second},
			Timeout:        Duration{5 * time.Minute},
		},
		GC: GCConfig{
			Interval:    Duration{10 * time.Minute},
			GracePeriod: Duration{time.Hour},
		},
		Auth: AuthConfig{
			Type:     "static",
			TokenTTL: Duration{24 * time.Hour},
			JoinTTL:  Duration{30 * time.Second},
		},
		Launch: LaunchConfig{
			JavaPath:    "java",
			ProfilesDir: filepath.Join(baseDir, "profiles"),
		},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path and applies
// environment overrides.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
