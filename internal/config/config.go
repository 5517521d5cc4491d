package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig        `mapstructure:"server"`
	Database    DatabaseConfig      `mapstructure:"database"`
	Logger      LoggerConfig        `mapstructure:"logger"`
	Workflow    WorkflowConfig      `mapstructure:"workflow"`
	Permissions map[string][]string `mapstructure:"permissions"`
	Notify      NotifyConfig        `mapstructure:"notify"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig tunes the execution engine and the auto-advance sweeper
type WorkflowConfig struct {
	ChainLimit     int           `mapstructure:"chain_limit"`
	SweepEnabled   bool          `mapstructure:"sweep_enabled"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
}

// NotifyConfig holds status-change notification channels
type NotifyConfig struct {
	Lark LarkConfig `mapstructure:"lark"`
}

// LarkConfig holds Lark notifier configuration
type LarkConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	ReceiveID     string `mapstructure:"receive_id"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// Load loads configuration from an optional .env file, the config file and
// environment variables. A missing config file is not an error; defaults and
// the environment still apply.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/admissions.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.auto_migrate", true)

	// Workflow defaults
	v.SetDefault("workflow.chain_limit", 32)
	v.SetDefault("workflow.sweep_enabled", true)
	v.SetDefault("workflow.sweep_interval", 30*time.Second)
	v.SetDefault("workflow.sweep_batch_size", 100)

	// Notification defaults
	v.SetDefault("notify.lark.enabled", false)
	v.SetDefault("notify.lark.receive_id_type", "chat_id")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("notify.lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("notify.lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("notify.lark.receive_id", "LARK_RECEIVE_ID")
	_ = v.BindEnv("database.path", "ADMISSIONS_DB_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Workflow.ChainLimit <= 0 {
		return fmt.Errorf("workflow.chain_limit must be positive")
	}
	if c.Workflow.SweepEnabled && c.Workflow.SweepInterval <= 0 {
		return fmt.Errorf("workflow.sweep_interval must be positive when the sweeper is enabled")
	}

	// Lark is optional; when enabled every credential is required
	if c.Notify.Lark.Enabled {
		if c.Notify.Lark.AppID == "" {
			return fmt.Errorf("notify.lark.app_id is required")
		}
		if c.Notify.Lark.AppSecret == "" {
			return fmt.Errorf("notify.lark.app_secret is required")
		}
		if c.Notify.Lark.ReceiveID == "" {
			return fmt.Errorf("notify.lark.receive_id is required")
		}
	}

	return nil
}
