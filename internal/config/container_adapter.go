package config

import (
	"github.com/garyjia/admissions-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	permissions := make(map[string][]string, len(c.Permissions))
	for role, caps := range c.Permissions {
		permissions[role] = append([]string(nil), caps...)
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Lark: container.LarkConfig{
			Enabled:       c.Notify.Lark.Enabled,
			AppID:         c.Notify.Lark.AppID,
			AppSecret:     c.Notify.Lark.AppSecret,
			ReceiveID:     c.Notify.Lark.ReceiveID,
			ReceiveIDType: c.Notify.Lark.ReceiveIDType,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Workflow: container.WorkflowConfig{
			ChainLimit:     c.Workflow.ChainLimit,
			SweepEnabled:   c.Workflow.SweepEnabled,
			SweepInterval:  c.Workflow.SweepInterval,
			SweepBatchSize: c.Workflow.SweepBatchSize,
		},
		Permissions: permissions,
	}
}
