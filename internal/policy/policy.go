// Package policy implements C4: the per-workspace auto-approve rule loader,
// the evaluator that decides whether a tool call is auto-approved, and a
// watcher that hot-reloads the rules on file change.
package policy

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/softwaresalt/agent-intercom/internal/model"
)

// settingsFile mirrors WorkspacePolicy's on-disk JSON schema at
// {workspace_root}/.intercom/settings.json (§3, §6).
type settingsFile struct {
	Enabled      bool     `json:"enabled"`
	Commands     []string `json:"commands"`
	Tools        []string `json:"tools"`
	FilePatterns struct {
		Write []string `json:"write"`
		Read  []string `json:"read"`
	} `json:"file_patterns"`
	RiskLevelThreshold  string `json:"risk_level_threshold"`
	LogAutoApproved     bool   `json:"log_auto_approved"`
	SummaryIntervalSecs int    `json:"summary_interval_seconds"`
}

// SettingsPath returns the well-known policy file path for a workspace root.
func SettingsPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".intercom", "settings.json")
}

// Load reads {workspace_root}/.intercom/settings.json. A missing file, an
// empty file, or a parse error all fall back to DenyAllPolicy — the loader
// never returns an error a caller needs to branch on.
func Load(workspaceRoot string) model.WorkspacePolicy {
	data, err := os.ReadFile(SettingsPath(workspaceRoot))
	if err != nil || len(data) == 0 {
		return model.DenyAllPolicy()
	}

	var raw settingsFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.DenyAllPolicy()
	}

	threshold := model.RiskLevel(raw.RiskLevelThreshold)
	if !threshold.IsValid() || threshold == model.RiskCritical {
		threshold = model.RiskLow
	}

	return model.WorkspacePolicy{
		Enabled:             raw.Enabled,
		Commands:            raw.Commands,
		Tools:               raw.Tools,
		FilePatternsWrite:   raw.FilePatterns.Write,
		FilePatternsRead:    raw.FilePatterns.Read,
		RiskLevelThreshold:  threshold,
		LogAutoApproved:     raw.LogAutoApproved,
		SummaryIntervalSecs: raw.SummaryIntervalSecs,
	}
}

// EvaluationContext carries the per-call facts the evaluator needs.
type EvaluationContext struct {
	FilePath  string
	RiskLevel model.RiskLevel
}

// Decision is the result of evaluating a tool call against a policy.
type Decision struct {
	Approved    bool
	MatchedRule string
}

// Evaluate implements the seven-step rule from §4.4. globalRegistry is the
// set of command aliases the server recognizes; a policy's `commands` list
// may only widen auto-approval for names already present there.
func Evaluate(toolName string, ctx EvaluationContext, p model.WorkspacePolicy, globalRegistry map[string]string) Decision {
	if !p.Enabled {
		return Decision{Approved: false}
	}
	if ctx.RiskLevel == model.RiskCritical {
		return Decision{Approved: false}
	}
	if ctx.RiskLevel.Exceeds(p.RiskLevelThreshold) {
		return Decision{Approved: false}
	}

	for _, pattern := range p.Commands {
		if _, known := globalRegistry[pattern]; !known {
			continue
		}
		if matched, _ := filepath.Match(pattern, toolName); matched || pattern == toolName {
			return Decision{Approved: true, MatchedRule: "command:" + pattern}
		}
	}

	for _, t := range p.Tools {
		if t == toolName {
			return Decision{Approved: true, MatchedRule: "tool:" + t}
		}
	}

	if ctx.FilePath != "" {
		for _, glob := range p.FilePatternsWrite {
			if matched, _ := filepath.Match(glob, ctx.FilePath); matched {
				return Decision{Approved: true, MatchedRule: "file_pattern:write:" + glob}
			}
		}
		for _, glob := range p.FilePatternsRead {
			if matched, _ := filepath.Match(glob, ctx.FilePath); matched {
				return Decision{Approved: true, MatchedRule: "file_pattern:read:" + glob}
			}
		}
	}

	return Decision{Approved: false}
}
