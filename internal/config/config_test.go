package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
default_workspace_root = "/tmp/ws"
host_cli = "/usr/bin/agent-cli"

[slack]
channel_id = "C123"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Equal(t, "agent-intercom", cfg.IPCName)
	assert.Equal(t, 3, cfg.MaxConcurrentSess)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, "data/agent-intercom.db", cfg.Database.Path)
	assert.Equal(t, 3600, cfg.Timeouts.ApprovalSeconds)
	assert.Equal(t, 1800, cfg.Timeouts.PromptSeconds)
	assert.Equal(t, 0, cfg.Timeouts.WaitSeconds)
	assert.Equal(t, 300, cfg.Stall.InactivityThresholdSeconds)
	assert.Equal(t, 120, cfg.Stall.EscalationThresholdSeconds)
	assert.Equal(t, 3, cfg.Stall.MaxRetries)
}

func TestLoad_RequiresWorkspaceRoot(t *testing.T) {
	path := writeConfig(t, `
host_cli = "/usr/bin/agent-cli"

[slack]
channel_id = "C123"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RequiresSlackChannel(t *testing.T) {
	path := writeConfig(t, `
default_workspace_root = "/tmp/ws"
host_cli = "/usr/bin/agent-cli"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_HonorsExplicitOverrides(t *testing.T) {
	path := writeConfig(t, `
default_workspace_root = "/tmp/ws"
host_cli = "/usr/bin/agent-cli"
http_port = 9090
retention_days = 7

[slack]
channel_id = "C123"

[stall]
max_retries = 5

[commands]
lint = "golangci-lint run"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, 5, cfg.Stall.MaxRetries)
	assert.Equal(t, "golangci-lint run", cfg.Commands["lint"])
}
