package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// AGENTWATCH_HTTP_ADDR or AGENTWATCH_ALERTING_WORKERS.
const EnvPrefix = "AGENTWATCH"

// Config holds all daemon configuration.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	SocketPath string `mapstructure:"socket_path"`
	DBPath     string `mapstructure:"db_path"`
	HTTPAddr   string `mapstructure:"http_addr"`
	ReportsDir string `mapstructure:"reports_dir"`
	InboxPath  string `mapstructure:"inbox_path"`

	Log      LogConfig      `mapstructure:"log"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Reports  ReportsConfig  `mapstructure:"reports"`
}

type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// WatcherConfig tunes every monitoring session's filesystem watcher.
type WatcherConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	QueueSize      int           `mapstructure:"queue_size"`
	IgnorePatterns []string      `mapstructure:"ignore_patterns"`
}

type AlertingConfig struct {
	Workers        int           `mapstructure:"workers"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	SMTP           SMTPConfig    `mapstructure:"smtp"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	SeedFile       string        `mapstructure:"seed_file"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// ReportsConfig controls scheduled report generation. Interval 0 disables it.
type ReportsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Format   string        `mapstructure:"format"`
}

// DefaultDataDir returns the default data directory (~/.agentwatch).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".agentwatch")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:    dataDir,
		SocketPath: filepath.Join(dataDir, "agentwatch.sock"),
		DBPath:     filepath.Join(dataDir, "agentwatch.db"),
		HTTPAddr:   "127.0.0.1:7420",
		ReportsDir: filepath.Join(dataDir, "reports"),
		InboxPath:  filepath.Join(dataDir, "inbox.jsonl"),
		Log: LogConfig{
			Mode:  "dev",
			Level: "info",
		},
		Watcher: WatcherConfig{
			Debounce:  100 * time.Millisecond,
			QueueSize: 256,
			IgnorePatterns: []string{
				".git",
				"node_modules",
				"vendor",
				".DS_Store",
				"*.swp",
				"*.swo",
			},
		},
		Alerting: AlertingConfig{
			Workers:        4,
			WebhookTimeout: 5 * time.Second,
			SMTP:           SMTPConfig{Port: 587},
		},
		Reports: ReportsConfig{
			Interval: 0,
			Format:   "json",
		},
	}
}

// Load reads configuration from path (JSON or YAML, by extension) plus
// AGENTWATCH_* environment overrides, falling back to defaults for any
// unset field. A missing file is not an error.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, so cobra flags bound
// to v take precedence over file and env values.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Re-derive paths if DataDir was overridden but the dependent paths were not.
	def := Default()
	if cfg.DataDir != def.DataDir {
		if !v.IsSet("socket_path") || cfg.SocketPath == def.SocketPath {
			cfg.SocketPath = filepath.Join(cfg.DataDir, "agentwatch.sock")
		}
		if !v.IsSet("db_path") || cfg.DBPath == def.DBPath {
			cfg.DBPath = filepath.Join(cfg.DataDir, "agentwatch.db")
		}
		if !v.IsSet("reports_dir") || cfg.ReportsDir == def.ReportsDir {
			cfg.ReportsDir = filepath.Join(cfg.DataDir, "reports")
		}
		if !v.IsSet("inbox_path") || cfg.InboxPath == def.InboxPath {
			cfg.InboxPath = filepath.Join(cfg.DataDir, "inbox.jsonl")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("socket_path", d.SocketPath)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("reports_dir", d.ReportsDir)
	v.SetDefault("inbox_path", d.InboxPath)
	v.SetDefault("log.mode", d.Log.Mode)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("watcher.debounce", d.Watcher.Debounce)
	v.SetDefault("watcher.queue_size", d.Watcher.QueueSize)
	v.SetDefault("watcher.ignore_patterns", d.Watcher.IgnorePatterns)
	v.SetDefault("alerting.workers", d.Alerting.Workers)
	v.SetDefault("alerting.webhook_timeout", d.Alerting.WebhookTimeout)
	v.SetDefault("alerting.smtp.host", d.Alerting.SMTP.Host)
	v.SetDefault("alerting.smtp.port", d.Alerting.SMTP.Port)
	v.SetDefault("alerting.smtp.username", d.Alerting.SMTP.Username)
	v.SetDefault("alerting.smtp.password", d.Alerting.SMTP.Password)
	v.SetDefault("alerting.smtp.from", d.Alerting.SMTP.From)
	v.SetDefault("alerting.redis_addr", d.Alerting.RedisAddr)
	v.SetDefault("alerting.seed_file", d.Alerting.SeedFile)
	v.SetDefault("reports.interval", d.Reports.Interval)
	v.SetDefault("reports.format", d.Reports.Format)
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.Watcher.QueueSize < 1 {
		return fmt.Errorf("config: watcher.queue_size must be >= 1, got %d", c.Watcher.QueueSize)
	}
	if c.Alerting.Workers < 1 {
		return fmt.Errorf("config: alerting.workers must be >= 1, got %d", c.Alerting.Workers)
	}
	if c.Reports.Interval < 0 {
		return fmt.Errorf("config: reports.interval must not be negative")
	}
	return nil
}

// EnsureDataDir creates the data and reports directories if they do not exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ReportsDir, 0755)
}

// ConfigPath returns the default path to the config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}
