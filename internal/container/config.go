// Package container provides dependency injection and lifecycle management
// for the admissions workflow service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Lark notifier configuration
	Lark LarkConfig

	// Server configuration
	Server ServerConfig

	// Workflow engine and sweeper configuration
	Workflow WorkflowConfig

	// Permissions maps a role to the capabilities it grants
	Permissions map[string][]string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// AutoMigrate applies embedded migrations on start
	AutoMigrate bool
}

// LarkConfig holds Lark notifier settings.
type LarkConfig struct {
	// Enabled turns the status notifier on
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// ReceiveID is the chat or user receiving status messages
	ReceiveID string

	// ReceiveIDType qualifies ReceiveID (chat_id, open_id, user_id, email)
	ReceiveIDType string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// WorkflowConfig holds execution engine settings.
type WorkflowConfig struct {
	// ChainLimit bounds automatic transitions applied by one tick
	ChainLimit int

	// SweepEnabled starts the auto-advance worker
	SweepEnabled bool

	// SweepInterval is the pause between sweeps
	SweepInterval time.Duration

	// SweepBatchSize is the page size used when scanning open applications
	SweepBatchSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/admissions.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
			AutoMigrate:  true,
		},
		Lark: LarkConfig{
			ReceiveIDType: "chat_id",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Workflow: WorkflowConfig{
			ChainLimit:     32,
			SweepEnabled:   true,
			SweepInterval:  30 * time.Second,
			SweepBatchSize: 100,
		},
		Permissions: map[string][]string{},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Workflow.ChainLimit <= 0 {
		return fmt.Errorf("workflow.chain_limit must be positive")
	}

	// Validate Lark configuration only when the notifier is on
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
		if c.Lark.ReceiveID == "" {
			return fmt.Errorf("lark.receive_id is required")
		}
	}

	return nil
}
