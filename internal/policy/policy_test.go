package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwaresalt/agent-intercom/internal/model"
)

func writeSettings(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, ".intercom")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(body), 0o644))
}

func TestLoad_MissingFileDeniesAll(t *testing.T) {
	root := t.TempDir()
	p := Load(root)
	assert.False(t, p.Enabled)
}

func TestLoad_InvalidJSONDeniesAll(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, `{not json`)
	p := Load(root)
	assert.False(t, p.Enabled)
}

func TestLoad_ParsesValidSettings(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, `{
		"enabled": true,
		"tools": ["ping"],
		"risk_level_threshold": "high"
	}`)
	p := Load(root)
	assert.True(t, p.Enabled)
	assert.Equal(t, model.RiskHigh, p.RiskLevelThreshold)
	assert.Contains(t, p.Tools, "ping")
}

func TestEvaluate_DisabledDeniesAll(t *testing.T) {
	p := model.WorkspacePolicy{Enabled: false}
	d := Evaluate("ping", EvaluationContext{}, p, nil)
	assert.False(t, d.Approved)
}

func TestEvaluate_CriticalAlwaysDenied(t *testing.T) {
	p := model.WorkspacePolicy{Enabled: true, Tools: []string{"ping"}, RiskLevelThreshold: model.RiskHigh}
	d := Evaluate("ping", EvaluationContext{RiskLevel: model.RiskCritical}, p, nil)
	assert.False(t, d.Approved)
}

func TestEvaluate_ToolRuleMatches(t *testing.T) {
	p := model.WorkspacePolicy{Enabled: true, Tools: []string{"ping"}, RiskLevelThreshold: model.RiskLow}
	d := Evaluate("ping", EvaluationContext{}, p, nil)
	assert.True(t, d.Approved)
	assert.Equal(t, "tool:ping", d.MatchedRule)
}

func TestEvaluate_CommandRuleRequiresGlobalRegistry(t *testing.T) {
	p := model.WorkspacePolicy{Enabled: true, Commands: []string{"deploy"}, RiskLevelThreshold: model.RiskLow}
	d := Evaluate("deploy", EvaluationContext{}, p, map[string]string{})
	assert.False(t, d.Approved)

	d = Evaluate("deploy", EvaluationContext{}, p, map[string]string{"deploy": "make deploy"})
	assert.True(t, d.Approved)
	assert.Equal(t, "command:deploy", d.MatchedRule)
}

func TestEvaluate_FilePatternMatches(t *testing.T) {
	p := model.WorkspacePolicy{Enabled: true, FilePatternsWrite: []string{"*.md"}, RiskLevelThreshold: model.RiskLow}
	d := Evaluate("check_clearance", EvaluationContext{FilePath: "readme.md"}, p, nil)
	assert.True(t, d.Approved)
	assert.Equal(t, "file_pattern:write:*.md", d.MatchedRule)
}

func TestEvaluate_RiskAboveThresholdDenied(t *testing.T) {
	p := model.WorkspacePolicy{Enabled: true, Tools: []string{"ping"}, RiskLevelThreshold: model.RiskLow}
	d := Evaluate("ping", EvaluationContext{RiskLevel: model.RiskHigh}, p, nil)
	assert.False(t, d.Approved)
}

func TestCache_ActivateLoadsCurrentPolicy(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, `{"enabled": true, "tools": []}`)

	c, err := NewCache(testLogger())
	require.NoError(t, err)
	defer c.Close()

	c.Activate(root)
	p := c.Get(root)
	assert.True(t, p.Enabled)
	assert.Empty(t, p.Tools)
}
