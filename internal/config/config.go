// Package config loads promptcron settings from a config file, a .env file
// and PROMPTCRON_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/t77yq/promptcron/internal/model"
	"github.com/t77yq/promptcron/internal/parser"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PROMPTCRON"

// Config is the full promptcron configuration
type Config struct {
	Timezone      string              `mapstructure:"timezone"`
	Locale        string              `mapstructure:"locale"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Execution     ExecutionConfig     `mapstructure:"execution"`
	Tmux          TmuxConfig          `mapstructure:"tmux"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Daemon        DaemonConfig        `mapstructure:"daemon"`
	Events        EventsConfig        `mapstructure:"events"`
	Log           LogConfig           `mapstructure:"log"`
}

// NotificationsConfig controls desktop notifications
type NotificationsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Command string `mapstructure:"command"`
}

// ExecutionConfig controls how schedules are dispatched
type ExecutionConfig struct {
	DefaultMode       string        `mapstructure:"default_mode"`
	Command           string        `mapstructure:"command"`
	Args              []string      `mapstructure:"args"`
	Timeout           time.Duration `mapstructure:"timeout"`
	KillGrace         time.Duration `mapstructure:"kill_grace"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
}

// TmuxConfig names the session notify mode delivers into
type TmuxConfig struct {
	Session string `mapstructure:"session"`
	Target  string `mapstructure:"target"`
}

// StorageConfig locates the database
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// DaemonConfig controls the background process
type DaemonConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PidFile      string        `mapstructure:"pid_file"`
	StateFile    string        `mapstructure:"state_file"`
}

// EventsConfig points at an optional NATS server
type EventsConfig struct {
	NatsURL string `mapstructure:"nats_url"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "")
	v.SetDefault("locale", "")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.command", "")

	v.SetDefault("execution.default_mode", string(model.ModeHeadless))
	v.SetDefault("execution.command", "claude")
	v.SetDefault("execution.args", []string{"-p"})
	v.SetDefault("execution.timeout", 10*time.Minute)
	v.SetDefault("execution.kill_grace", 5*time.Second)
	v.SetDefault("execution.max_attempts", 1)
	v.SetDefault("execution.retry_initial_delay", 30*time.Second)

	v.SetDefault("tmux.session", "claude")
	v.SetDefault("tmux.target", "")

	v.SetDefault("storage.path", filepath.Join("~", ".promptcron", "promptcron.db"))

	v.SetDefault("daemon.poll_interval", 30*time.Second)
	v.SetDefault("daemon.pid_file", filepath.Join("~", ".promptcron", "daemon.pid"))
	v.SetDefault("daemon.state_file", filepath.Join("~", ".promptcron", "daemon.json"))

	v.SetDefault("events.nats_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. An explicit configFile must exist; otherwise
// config.yaml is searched in ./config, $XDG_CONFIG_HOME/promptcron and
// ~/.promptcron. Environment variables override the file.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "promptcron"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".promptcron"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Storage.Path, &cfg.Daemon.PidFile, &cfg.Daemon.StateFile} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.DefaultMode(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resolves the time zone: explicit setting, then TZ, then the
// system default
func (c *Config) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = os.Getenv("TZ")
	}
	if name == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}

// ResolvedLocale resolves the summary language: explicit setting, then the
// locale environment, then English
func (c *Config) ResolvedLocale() parser.Locale {
	return parser.DetectLocale(c.Locale)
}

// DefaultMode returns the execution mode used when a schedule names none
func (c *Config) DefaultMode() (model.ExecutionMode, error) {
	return model.ParseExecutionMode(strings.ToLower(c.Execution.DefaultMode), model.ModeHeadless)
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
