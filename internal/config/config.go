// Package config provides YAML-based configuration loading for wsnet programs.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wsnet"
	"github.com/luciancaetano/wsnet/internal/websocket"
)

// Program modes.
const (
	ModeServer = "server"
	ModeClient = "client"
)

// Config is the root application configuration.
type Config struct {
	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Service configures the websocket service
	Service ServiceConfig `mapstructure:"service"`

	// Mode: server or client
	Mode string `mapstructure:"mode"`

	// Connect is the URL a client dials
	Connect string `mapstructure:"connect"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ServiceConfig mirrors websocket.ServiceConfig for the settings that can be
// expressed in a file.
type ServiceConfig struct {
	Listen           []string      `mapstructure:"listen"`
	Path             string        `mapstructure:"path"`
	MaxMessageSize   int           `mapstructure:"max_message_size"`
	SendQueueLimit   int           `mapstructure:"send_queue_limit"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// AcceptRate is the sustained number of accepted connections per second; 0 disables the limit
	AcceptRate  float64 `mapstructure:"accept_rate"`
	AcceptBurst int     `mapstructure:"accept_burst"`
	// AllowAllOrigins skips the browser origin check (development only)
	AllowAllOrigins bool `mapstructure:"allow_all_origins"`
	RequestLog      bool `mapstructure:"request_log"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/wsnet.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Service: ServiceConfig{
			Listen:           []string{":8080"},
			Path:             wsnet.DefaultPath,
			MaxMessageSize:   wsnet.MaxMessageSize,
			HandshakeTimeout: websocket.DefaultHandshakeTimeout,
			AcceptRate:       100,
			AcceptBurst:      200,
		},
		Mode:    ModeServer,
		Connect: "ws://localhost:8080" + wsnet.DefaultPath,
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix WSNET and `.`/`-` are replaced with `_`.
// Example: WSNET_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WSNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("service.listen", cfg.Service.Listen)
	v.SetDefault("service.path", cfg.Service.Path)
	v.SetDefault("service.max_message_size", cfg.Service.MaxMessageSize)
	v.SetDefault("service.send_queue_limit", cfg.Service.SendQueueLimit)
	v.SetDefault("service.handshake_timeout", cfg.Service.HandshakeTimeout)
	v.SetDefault("service.accept_rate", cfg.Service.AcceptRate)
	v.SetDefault("service.accept_burst", cfg.Service.AcceptBurst)
	v.SetDefault("service.allow_all_origins", cfg.Service.AllowAllOrigins)
	v.SetDefault("service.request_log", cfg.Service.RequestLog)
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("connect", cfg.Connect)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("WSNET_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wsnet")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".wsnet"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes empty fields and rejects inconsistent settings.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case ModeServer:
		if len(c.Service.Listen) == 0 {
			return errors.New("server mode requires service.listen")
		}
	case ModeClient:
		if strings.TrimSpace(c.Connect) == "" {
			return errors.New("client mode requires connect")
		}
	default:
		return fmt.Errorf("invalid mode: %q", c.Mode)
	}

	s := &c.Service
	if s.Path == "" {
		s.Path = wsnet.DefaultPath
	}
	if !strings.HasPrefix(s.Path, "/") {
		return fmt.Errorf("invalid service.path: %q", s.Path)
	}
	if s.MaxMessageSize < 0 || s.MaxMessageSize > wsnet.MaxMessageSize {
		return fmt.Errorf("service.max_message_size must be within 0..%d, got %d", wsnet.MaxMessageSize, s.MaxMessageSize)
	}
	if s.SendQueueLimit < 0 {
		return fmt.Errorf("service.send_queue_limit must not be negative, got %d", s.SendQueueLimit)
	}
	if s.HandshakeTimeout < 0 {
		return fmt.Errorf("service.handshake_timeout must not be negative, got %v", s.HandshakeTimeout)
	}
	if s.AcceptRate < 0 || s.AcceptBurst < 0 {
		return fmt.Errorf("service accept rate/burst must not be negative, got %v/%d", s.AcceptRate, s.AcceptBurst)
	}
	if s.AcceptRate > 0 && s.AcceptBurst == 0 {
		s.AcceptBurst = 1
	}
	return nil
}

// ToServiceConfig converts the file settings into a library configuration.
// Callbacks are left for the caller to fill in.
func (s ServiceConfig) ToServiceConfig(logger *zap.Logger) *websocket.ServiceConfig {
	cfg := &websocket.ServiceConfig{
		Listen:           append([]string(nil), s.Listen...),
		Path:             s.Path,
		MaxMessageSize:   s.MaxMessageSize,
		SendQueueLimit:   s.SendQueueLimit,
		HandshakeTimeout: s.HandshakeTimeout,
		RequestLog:       s.RequestLog,
		Logger:           logger,
	}
	if s.AcceptRate > 0 {
		cfg.AcceptRateLimit = &websocket.RateLimitConfig{
			ConnectionsPerSecond: rate.Limit(s.AcceptRate),
			Burst:                s.AcceptBurst,
			Enabled:              true,
		}
	}
	if s.AllowAllOrigins {
		cfg.CheckOrigin = func(*http.Request) bool { return true }
	}
	return cfg
}
