package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	BackendNone     = "none"
	BackendSQLite   = "sqlite"
	BackendPebble   = "pebble"
	BackendDynamoDB = "dynamodb"
)

// Config is the root configuration for the relay.
type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	Server  ServerConfig  `yaml:"server"`
	Greeter GreeterConfig `yaml:"greeter"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

type DiscordConfig struct {
	Token          string `env:"DISCORD_TOKEN"           yaml:"token"`
	TokenParameter string `env:"DISCORD_TOKEN_PARAMETER" yaml:"tokenParameter"`
}

type ServerConfig struct {
	Host             string   `env:"HOST"               yaml:"host"`
	Port             int      `env:"PORT"               yaml:"port"`
	BodyLimitMB      int      `env:"BODY_LIMIT_MB"      yaml:"bodyLimitMB"`
	MaxFileMB        int      `env:"MAX_FILE_MB"        yaml:"maxFileMB"`
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" yaml:"corsAllowOrigins" envSeparator:","`
}

type GreeterConfig struct {
	Enabled    bool   `env:"GREETER_ENABLED"     yaml:"enabled"`
	ServerName string `env:"GREETER_SERVER_NAME" yaml:"serverName"`
	Welcome    string `env:"GREETER_WELCOME"     yaml:"welcome"`
	Farewell   string `env:"GREETER_FAREWELL"    yaml:"farewell"`
}

type StorageConfig struct {
	Backend       string `env:"STORAGE_BACKEND" yaml:"backend"`
	Path          string `env:"STORAGE_PATH"    yaml:"path"`
	DynamoDBTable string `env:"DYNAMODB_TABLE"  yaml:"dynamodbTable"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// Defaults returns a Config with every optional field filled in. Greeter
// texts are left empty here; the greeter applies its own defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             3000,
			BodyLimitMB:      25,
			MaxFileMB:        25,
			CORSAllowOrigins: []string{"*"},
		},
		Greeter: GreeterConfig{
			Enabled: true,
		},
		Storage: StorageConfig{
			Backend: BackendNone,
			Path:    "./data/dispatches.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the config from defaults, then the YAML file at path (if it
// exists), then the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in cfg as a single error.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Discord.Token) == "" && strings.TrimSpace(cfg.Discord.TokenParameter) == "" {
		errs = append(errs, "DISCORD_TOKEN or DISCORD_TOKEN_PARAMETER is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.BodyLimitMB < 1 {
		errs = append(errs, "server.bodyLimitMB must be >= 1")
	}
	if cfg.Server.MaxFileMB < 1 {
		errs = append(errs, "server.maxFileMB must be >= 1")
	}

	switch cfg.Storage.Backend {
	case BackendNone:
	case BackendSQLite, BackendPebble:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, "storage.path is required for the "+cfg.Storage.Backend+" backend")
		}
	case BackendDynamoDB:
		if strings.TrimSpace(cfg.Storage.DynamoDBTable) == "" {
			errs = append(errs, "storage.dynamodbTable is required for the dynamodb backend")
		}
	default:
		errs = append(errs, "storage.backend must be one of: none, sqlite, pebble, dynamodb")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, "log.format must be one of: text, json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) BodyLimit() int {
	return c.Server.BodyLimitMB * 1024 * 1024
}

func (c *Config) MaxFileBytes() int64 {
	return int64(c.Server.MaxFileMB) * 1024 * 1024
}

func (c *Config) CORSOrigins() string {
	return strings.Join(c.Server.CORSAllowOrigins, ",")
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
