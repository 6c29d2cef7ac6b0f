package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/linechat/internal/chat"
)

var validate = validator.New()

// Config holds the runtime settings of the chat service. Zero limits mean
// unlimited.
type Config struct {
	TCPAddr         string        `env:"CHAT_ADDR,default=:12345" validate:"required"`
	HTTPEnabled     bool          `env:"HTTP_ENABLED,default=true"`
	HTTPAddr        string        `env:"HTTP_ADDR,default=:8080" validate:"required_if=HTTPEnabled true"`
	CredentialsFile string        `env:"CREDENTIALS_FILE,default=users.txt" validate:"required"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxLineLength   int           `env:"MAX_LINE_LENGTH,default=1024" validate:"gte=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gte=0"`
	MaxSessions     int           `env:"MAX_SESSIONS,default=0" validate:"gte=0"`
	MaxGroups       int           `env:"MAX_GROUPS,default=0" validate:"gte=0"`
	MaxGroupSize    int           `env:"MAX_GROUP_SIZE,default=0" validate:"gte=0"`
	UniqueUsernames bool          `env:"UNIQUE_USERNAMES,default=false"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gte=0"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

const (
	defaultTCPAddr         = ":12345"
	defaultHTTPAddr        = ":8080"
	defaultCredentialsFile = "users.txt"
	defaultMaxLineLength   = 1024
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultLogLevel        = "INFO"
)

func defaultConfig() Config {
	return Config{
		TCPAddr:         defaultTCPAddr,
		HTTPEnabled:     true,
		HTTPAddr:        defaultHTTPAddr,
		CredentialsFile: defaultCredentialsFile,
		AllowedOrigins:  "http://localhost:8080",
		MaxLineLength:   defaultMaxLineLength,
		WriteTimeout:    defaultWriteTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        defaultLogLevel,
	}
}

// sanitizeConfig fills unset values with their defaults.
func sanitizeConfig(cfg Config) Config {
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = defaultTCPAddr
	}

	if cfg.HTTPEnabled && cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}

	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = defaultCredentialsFile
	}

	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = defaultMaxLineLength
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	return cfg
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv reads the configuration from environment variables,
// falling back to defaults for unset ones, and validates the result.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Origins returns the configured WebSocket origins, one per comma-separated
// entry.
func (c Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	return parseOrigins(c.AllowedOrigins)
}

// Limits returns the capacity limits enforced by the chat registries.
func (c Config) Limits() chat.Limits {
	return chat.Limits{
		MaxSessions:     c.MaxSessions,
		MaxGroups:       c.MaxGroups,
		MaxGroupSize:    c.MaxGroupSize,
		UniqueUsernames: c.UniqueUsernames,
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
