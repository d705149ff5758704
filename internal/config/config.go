// Package config loads teamboard settings from a YAML file, TEAMBOARD_*
// environment variables and built-in defaults, in decreasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory when no explicit
// config path is given.
const DefaultFileName = "teamboard.yaml"

// EnvPrefix prefixes environment overrides: server.port is read from
// TEAMBOARD_SERVER_PORT.
const EnvPrefix = "TEAMBOARD"

// Config is the full teamboard configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Audit    AuditConfig    `yaml:"audit" mapstructure:"audit"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Realtime RealtimeConfig `yaml:"realtime" mapstructure:"realtime"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	MCP      MCPConfig      `yaml:"mcp" mapstructure:"mcp"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" mapstructure:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins" mapstructure:"corsOrigins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig configures the document repositories.
type StorageConfig struct {
	DataDir  string        `yaml:"dataDir" mapstructure:"dataDir"`
	FailFast bool          `yaml:"failFast" mapstructure:"failFast"`
	Watch    bool          `yaml:"watch" mapstructure:"watch"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Lock     bool          `yaml:"lock" mapstructure:"lock"`
}

// AuditConfig configures the SQLite audit index.
type AuditConfig struct {
	Index     bool   `yaml:"index" mapstructure:"index"`
	IndexPath string `yaml:"indexPath" mapstructure:"indexPath"`
}

// ResolvedIndexPath returns the index location, or "" when disabled.
func (c *Config) ResolvedIndexPath() string {
	if !c.Audit.Index {
		return ""
	}
	if c.Audit.IndexPath != "" {
		return c.Audit.IndexPath
	}
	return filepath.Join(c.Storage.DataDir, "audit.db")
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" mapstructure:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" mapstructure:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" mapstructure:"maxAgeDays"`
}

// RealtimeConfig configures the websocket hub.
type RealtimeConfig struct {
	BufferSize   int           `yaml:"bufferSize" mapstructure:"bufferSize"`
	WriteTimeout time.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout"`
}

// RedisConfig enables the Redis relay when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Instance string `yaml:"instance" mapstructure:"instance"`
}

// MCPConfig mounts the MCP endpoint on the HTTP server.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Storage: StorageConfig{
			DataDir:  "./data",
			Debounce: 200 * time.Millisecond,
			Lock:     true,
		},
		Audit: AuditConfig{
			Index: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Realtime: RealtimeConfig{
			BufferSize:   100,
			WriteTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Instance: "default",
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
	}
}

// Load reads configuration. An empty path looks for DefaultFileName in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key of cfg so environment overrides apply to
// keys absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) error {
	m, err := toMap(cfg)
	if err != nil {
		return err
	}
	flatten("", m, func(key string, value any) {
		v.SetDefault(key, value)
	})
	return nil
}

func flatten(prefix string, m map[string]any, fn func(string, any)) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(key, sub, fn)
			continue
		}
		fn(key, val)
	}
}

func toMap(cfg *Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port: %d is out of range", c.Server.Port)
	case c.Server.ReadTimeout <= 0:
		return errors.New("server.readTimeout must be positive")
	case c.Server.WriteTimeout <= 0:
		return errors.New("server.writeTimeout must be positive")
	case c.Server.ShutdownTimeout <= 0:
		return errors.New("server.shutdownTimeout must be positive")
	case strings.TrimSpace(c.Storage.DataDir) == "":
		return errors.New("storage.dataDir is required")
	case c.Storage.Debounce <= 0:
		return errors.New("storage.debounce must be positive")
	case c.Realtime.BufferSize <= 0:
		return errors.New("realtime.bufferSize must be positive")
	case c.Realtime.WriteTimeout <= 0:
		return errors.New("realtime.writeTimeout must be positive")
	case c.MCP.Path == "" || !strings.HasPrefix(c.MCP.Path, "/"):
		return fmt.Errorf("mcp.path: %q must start with /", c.MCP.Path)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// Write saves cfg as YAML at path, keeping the camelCase key names Load
// expects.
func Write(path string, cfg *Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
