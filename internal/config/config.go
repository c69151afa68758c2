// Package config loads the daemon's TOML configuration file (§6) and
// resolves Slack credentials from the OS keyring, falling back to
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/zalando/go-keyring"
)

// keyringService is the service name credentials are stored under in the
// OS keyring (§6 "a known service name").
const keyringService = "agent-intercom"

// Config mirrors the on-disk TOML schema (§6).
type Config struct {
	DefaultWorkspaceRoot string   `toml:"default_workspace_root"`
	HTTPPort             int      `toml:"http_port"`
	IPCName              string   `toml:"ipc_name"`
	MaxConcurrentSess    int      `toml:"max_concurrent_sessions"`
	HostCLI              string   `toml:"host_cli"`
	HostCLIArgs          []string `toml:"host_cli_args"`
	RetentionDays        int      `toml:"retention_days"`

	Database DatabaseConfig `toml:"database"`
	Slack    SlackConfig    `toml:"slack"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Stall    StallConfig    `toml:"stall"`
	Commands map[string]string `toml:"commands"`
}

// DatabaseConfig is the [database] section.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SlackConfig is the [slack] section. Tokens are not read from this file;
// they come from the keyring/environment (§6 "Credentials").
type SlackConfig struct {
	ChannelID string `toml:"channel_id"`
}

// TimeoutsConfig is the [timeouts] section, in seconds (§5).
type TimeoutsConfig struct {
	ApprovalSeconds int `toml:"approval_seconds"`
	PromptSeconds   int `toml:"prompt_seconds"`
	WaitSeconds     int `toml:"wait_seconds"`
}

// StallConfig is the [stall] section (§4.5, §6).
type StallConfig struct {
	Enabled                    bool   `toml:"enabled"`
	InactivityThresholdSeconds int    `toml:"inactivity_threshold_seconds"`
	EscalationThresholdSeconds int    `toml:"escalation_threshold_seconds"`
	MaxRetries                 int    `toml:"max_retries"`
	DefaultNudgeMessage        string `toml:"default_nudge_message"`
}

// Load parses path and applies every documented default for an omitted
// field. default_workspace_root and host_cli are required; their absence
// is a config error surfaced before the daemon attempts to bootstrap.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %s: %w", path, err)
	}

	if cfg.DefaultWorkspaceRoot == "" {
		return nil, fmt.Errorf("config: default_workspace_root is required")
	}
	if cfg.HostCLI == "" {
		return nil, fmt.Errorf("config: host_cli is required")
	}
	if cfg.Slack.ChannelID == "" {
		return nil, fmt.Errorf("config: slack.channel_id is required")
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 3000
	}
	if cfg.IPCName == "" {
		cfg.IPCName = "agent-intercom"
	}
	if cfg.MaxConcurrentSess == 0 {
		cfg.MaxConcurrentSess = 3
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 30
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/agent-intercom.db"
	}
	if cfg.Timeouts.ApprovalSeconds == 0 {
		cfg.Timeouts.ApprovalSeconds = 3600
	}
	if cfg.Timeouts.PromptSeconds == 0 {
		cfg.Timeouts.PromptSeconds = 1800
	}
	// WaitSeconds default is 0 (indefinite); nothing to apply.
	if cfg.Stall.InactivityThresholdSeconds == 0 {
		cfg.Stall.InactivityThresholdSeconds = 300
	}
	if cfg.Stall.EscalationThresholdSeconds == 0 {
		cfg.Stall.EscalationThresholdSeconds = 120
	}
	if cfg.Stall.MaxRetries == 0 {
		cfg.Stall.MaxRetries = 3
	}
	if cfg.Commands == nil {
		cfg.Commands = map[string]string{}
	}
}

// Credentials holds the secrets resolved from the keyring/environment
// (§6 "Credentials").
type Credentials struct {
	AppToken      string
	BotToken      string
	TeamID        string // optional
	OperatorUsers []string
}

// LoadCredentials resolves app token and bot token via the OS keyring
// first, falling back to environment variables; the operator list is
// always read from the environment (§6).
func LoadCredentials() (*Credentials, error) {
	appToken, err := keyringOrEnv("app_token", "AGENT_INTERCOM_SLACK_APP_TOKEN")
	if err != nil {
		return nil, fmt.Errorf("config: app token: %w", err)
	}
	botToken, err := keyringOrEnv("bot_token", "AGENT_INTERCOM_SLACK_BOT_TOKEN")
	if err != nil {
		return nil, fmt.Errorf("config: bot token: %w", err)
	}
	teamID, _ := keyring.Get(keyringService, "team_id")
	if teamID == "" {
		teamID = os.Getenv("AGENT_INTERCOM_SLACK_TEAM_ID")
	}

	var operators []string
	if raw := os.Getenv("AGENT_INTERCOM_OPERATOR_USER_IDS"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				operators = append(operators, trimmed)
			}
		}
	}

	return &Credentials{
		AppToken:      appToken,
		BotToken:      botToken,
		TeamID:        teamID,
		OperatorUsers: operators,
	}, nil
}

func keyringOrEnv(keyringKey, envVar string) (string, error) {
	if v, err := keyring.Get(keyringService, keyringKey); err == nil && v != "" {
		return v, nil
	}
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s not found in keyring or %s", keyringKey, envVar)
}

// ParsePort is a small CLI helper for flags that accept a port override.
func ParsePort(s string) (int, error) {
	return strconv.Atoi(s)
}
