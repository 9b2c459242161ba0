package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the application configuration loaded from YAML.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Symbols SymbolsConfig `mapstructure:"symbols"`
	Log     LogConfig     `mapstructure:"log"`
	Users   []UserConfig  `mapstructure:"users"`
}

type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_sec"`
}

type StorageConfig struct {
	AlertDBPath  string `mapstructure:"alert_db_path"`
	RawLogDBPath string `mapstructure:"raw_log_db_path"`
}

type SymbolsConfig struct {
	// Path to the per-symbol TP/SL configuration file. Empty disables the
	// registry and every symbol uses the single-level default.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// UserConfig binds a webhook identifier to a user. TradingView cannot
// send auth headers, so the identifier in the URL is the credential.
type UserConfig struct {
	ID         int64  `mapstructure:"id"`
	Identifier string `mapstructure:"identifier"`
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Storage.AlertDBPath == "" {
		c.Storage.AlertDBPath = "data/alerts.db"
	}
	if c.Storage.RawLogDBPath == "" {
		c.Storage.RawLogDBPath = "data/rawlog.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func validate(c *Config) error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level invalid: %q", c.Log.Level)
	}
	seen := make(map[string]bool)
	for i, u := range c.Users {
		if u.ID <= 0 {
			return fmt.Errorf("users[%d].id must be positive", i)
		}
		ident := strings.TrimSpace(u.Identifier)
		if ident == "" {
			return fmt.Errorf("users[%d].identifier cannot be empty", i)
		}
		if seen[ident] {
			return fmt.Errorf("users[%d].identifier duplicated: %s", i, ident)
		}
		seen[ident] = true
	}
	return nil
}

// UserByIdentifier resolves the webhook identifier to a user id.
func (c *Config) UserByIdentifier(identifier string) (int64, bool) {
	identifier = strings.TrimSpace(identifier)
	for _, u := range c.Users {
		if u.Identifier == identifier {
			return u.ID, true
		}
	}
	return 0, false
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
