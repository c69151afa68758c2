package model

// WorkspacePolicy is the in-memory, per-workspace auto-approve configuration
// loaded from {workspace_root}/.intercom/settings.json (§3, §4.4).
type WorkspacePolicy struct {
	Enabled             bool
	Commands            []string
	Tools               []string
	FilePatternsWrite   []string
	FilePatternsRead    []string
	RiskLevelThreshold  RiskLevel
	LogAutoApproved     bool
	SummaryIntervalSecs int
}

// DenyAllPolicy is the safe default used when a policy file is missing,
// empty or fails to parse.
func DenyAllPolicy() WorkspacePolicy {
	return WorkspacePolicy{
		Enabled:            false,
		RiskLevelThreshold: RiskLow,
	}
}
