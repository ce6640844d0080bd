package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the settings shared by the controller and dashboard binaries.
type Config struct {
	Addr              string        `mapstructure:"addr"`
	DatabaseURL       string        `mapstructure:"database_url"`
	TelemetryInterval time.Duration `mapstructure:"-"`
	HistoryCapacity   int           `mapstructure:"history_capacity"`
	SessionQueueSize  int           `mapstructure:"session_queue_size"`
	FaultProbability  float64       `mapstructure:"fault_probability"`
	Seed              int64         `mapstructure:"seed"`
	WebDir            string        `mapstructure:"web_dir"`
	TLS               TLSConfig     `mapstructure:"tls"`
	Log               LogConfig     `mapstructure:"log"`
	Dashboard         Dashboard     `mapstructure:"dashboard"`
}

type TLSConfig struct {
	Cert     string `mapstructure:"cert"`
	Key      string `mapstructure:"key"`
	ClientCA string `mapstructure:"client_ca"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Dashboard configures the terminal dashboard client.
type Dashboard struct {
	ServerURL       string        `mapstructure:"server_url"`
	RobotID         string        `mapstructure:"robot_id"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	HistoryInterval time.Duration `mapstructure:"history_interval"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
	FeedbackTTL     time.Duration `mapstructure:"feedback_ttl"`
	HistorySize     int           `mapstructure:"history_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":5000")
	v.SetDefault("database_url", "sqlite:///telemetry.db")
	v.SetDefault("telemetry_interval", "2s")
	v.SetDefault("history_capacity", 50)
	v.SetDefault("session_queue_size", 64)
	v.SetDefault("fault_probability", 0.05)
	v.SetDefault("seed", 0)
	v.SetDefault("web_dir", "")
	v.SetDefault("tls.cert", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("tls.client_ca", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("dashboard.server_url", "http://localhost:5000")
	v.SetDefault("dashboard.robot_id", "robot_001")
	v.SetDefault("dashboard.poll_interval", "2s")
	v.SetDefault("dashboard.history_interval", "10s")
	v.SetDefault("dashboard.reconnect_delay", "3s")
	v.SetDefault("dashboard.max_reconnects", 5)
	v.SetDefault("dashboard.feedback_ttl", "3s")
	v.SetDefault("dashboard.history_size", 50)
}

// Load reads defaults, an optional config file, .env and the environment, in increasing priority.
// With an empty path config.yaml is looked up in ., ./config and /etc/robot-telemetry.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		log.Printf("Warning: failed to load .env: %v", err)
	}
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port", "PORT")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/robot-telemetry/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Printf("No config file found, using defaults and environment")
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	interval, err := ParseInterval(v.GetString("telemetry_interval"))
	if err != nil {
		return nil, fmt.Errorf("telemetry_interval: %w", err)
	}
	cfg.TelemetryInterval = interval
	if port := v.GetString("port"); port != "" {
		cfg.Addr = ":" + port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseInterval accepts whole seconds ("2") or a Go duration ("500ms").
func ParseInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func (c *Config) Validate() error {
	switch {
	case c.TelemetryInterval <= 0:
		return errors.New("telemetry_interval must be positive")
	case c.HistoryCapacity <= 0:
		return errors.New("history_capacity must be positive")
	case c.SessionQueueSize <= 0:
		return errors.New("session_queue_size must be positive")
	case c.FaultProbability < 0 || c.FaultProbability > 1:
		return errors.New("fault_probability must be within [0,1]")
	case (c.TLS.Cert == "") != (c.TLS.Key == ""):
		return errors.New("tls.cert and tls.key must be set together")
	case c.Dashboard.PollInterval <= 0 || c.Dashboard.HistoryInterval <= 0:
		return errors.New("dashboard poll intervals must be positive")
	case c.Dashboard.MaxReconnects < 0:
		return errors.New("dashboard.max_reconnects must not be negative")
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err == nil {
		return godotenv.Load(path)
	}
	return nil
}
