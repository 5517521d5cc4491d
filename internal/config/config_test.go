package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/admissions.db", cfg.Database.Path)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 32, cfg.Workflow.ChainLimit)
	assert.Equal(t, 30*time.Second, cfg.Workflow.SweepInterval)
	assert.False(t, cfg.Notify.Lark.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  path: /tmp/test.db
workflow:
  chain_limit: 4
  sweep_enabled: false
permissions:
  admissions_officer: [review, screen]
  committee: [committee]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Workflow.ChainLimit)
	assert.False(t, cfg.Workflow.SweepEnabled)
	assert.Equal(t, []string{"review", "screen"}, cfg.Permissions["admissions_officer"])

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "/tmp/test.db", cc.Database.Path)
	assert.Equal(t, 4, cc.Workflow.ChainLimit)
	assert.Equal(t, []string{"committee"}, cc.Permissions["committee"])
	require.NoError(t, cc.Validate())
}

func TestLoad_LarkCredentialsFromEnvironment(t *testing.T) {
	t.Setenv("LARK_APP_ID", "cli_app")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("LARK_RECEIVE_ID", "oc_chat")

	cfg, err := Load(writeConfig(t, "notify:\n  lark:\n    enabled: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "cli_app", cfg.Notify.Lark.AppID)
	assert.Equal(t, "oc_chat", cfg.Notify.Lark.ReceiveID)
	assert.Equal(t, "chat_id", cfg.Notify.Lark.ReceiveIDType)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "x.db"},
			Workflow: WorkflowConfig{ChainLimit: 1, SweepEnabled: true, SweepInterval: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "no database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "no chain limit", mutate: func(c *Config) { c.Workflow.ChainLimit = 0 }, wantErr: "chain_limit"},
		{name: "sweeper without interval", mutate: func(c *Config) { c.Workflow.SweepInterval = 0 }, wantErr: "sweep_interval"},
		{name: "lark enabled without credentials", mutate: func(c *Config) { c.Notify.Lark.Enabled = true }, wantErr: "app_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
