package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Discord  DiscordConfig  `yaml:"discord"`
	Log      LogConfig      `yaml:"log"`
	Switch   SwitchConfig   `yaml:"switch"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig describes the bus shared with the game server bridge
type NATSConfig struct {
	URL            string        `yaml:"url"`
	Embedded       bool          `yaml:"embedded"`
	EmbeddedPort   int           `yaml:"embedded_port"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
	Admins        []AdminUser   `yaml:"admins"`
}

// AdminUser is an API user allowed to run admin operations
type AdminUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// DiscordConfig enables the audit channel when both fields are set
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether Discord notices should be sent
func (d DiscordConfig) Enabled() bool {
	return d.Token != "" && d.ChannelID != ""
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Load reads configuration from a YAML file. Values from a .env file next to
// the process are loaded first and ${VAR} references are expanded.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML and applies defaults
func Parse(data []byte) (*Config, error) {
	cfg := Config{Switch: DefaultSwitchConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/teamswitch/teamswitch.db"
	}
	if cfg.NATS.URL == "" && !cfg.NATS.Embedded {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.EmbeddedPort == 0 {
		cfg.NATS.EmbeddedPort = 4222
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "squad"
	}
	if cfg.NATS.RequestTimeout == 0 {
		cfg.NATS.RequestTimeout = 3 * time.Second
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Auth.Admins) > 0 && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required when auth.admins is set")
	}
	if err := cfg.Switch.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
