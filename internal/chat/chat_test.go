package chat

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwaresalt/agent-intercom/internal/model"
)

func TestParseSlashCommand(t *testing.T) {
	name, args := parseSlashCommand("/intercom", "session-start fix the bug")
	assert.Equal(t, "session-start", name)
	assert.Equal(t, "fix the bug", args)

	name, args = parseSlashCommand("/intercom", "sessions")
	assert.Equal(t, "sessions", name)
	assert.Equal(t, "", args)

	name, _ = parseSlashCommand("/intercom", "   ")
	assert.Equal(t, "help", name)
}

func TestIsKnownCommand(t *testing.T) {
	assert.True(t, IsKnownCommand("session-start"))
	assert.False(t, IsKnownCommand("session-nuke"))
}

type fakeAuthz struct{ allowed map[string]bool }

func (f fakeAuthz) IsAuthorized(userID string) bool { return f.allowed[userID] }

type fakeHandler struct {
	approvalCalls int
}

func (f *fakeHandler) HandleApproval(ctx context.Context, userID, requestID string, accept bool) (string, error) {
	f.approvalCalls++
	return "handled", nil
}
func (f *fakeHandler) HandlePrompt(ctx context.Context, userID, promptID, decision, instruction string) (string, error) {
	return "handled", nil
}
func (f *fakeHandler) HandleStall(ctx context.Context, userID, alertID, action, instruction string) (string, error) {
	return "handled", nil
}
func (f *fakeHandler) HandleWait(ctx context.Context, userID, sessionID, action, instruction string) (string, error) {
	return "handled", nil
}
func (f *fakeHandler) HandleSlashCommand(ctx context.Context, userID, command, args string) (string, error) {
	return "handled", nil
}

func TestDispatcher_ClaimPreventsDoubleSubmission(t *testing.T) {
	h := &fakeHandler{}
	d := newDispatcher(h, fakeAuthz{allowed: map[string]bool{"U1": true}}, zerolog.Nop())

	require.True(t, d.claim("req-1"))
	assert.False(t, d.claim("req-1"), "second claim on same record must fail while in flight")
	d.release("req-1")
	assert.True(t, d.claim("req-1"), "claim should succeed again after release")
}

func TestDispatcher_RouteApproval(t *testing.T) {
	h := &fakeHandler{}
	d := newDispatcher(h, fakeAuthz{}, zerolog.Nop())

	msg, err := d.route(context.Background(), "U1", actionApproveAccept, "req-1", "")
	require.NoError(t, err)
	assert.Equal(t, "handled", msg)
	assert.Equal(t, 1, h.approvalCalls)
}

func TestRenderApproval_ContainsButtons(t *testing.T) {
	approval := model.ApprovalRequest{
		Title:       "rename",
		Description: "write to /etc/hosts",
		RiskLevel:   model.RiskHigh,
	}
	msg := RenderApproval("req-1", approval)
	assert.Contains(t, msg.Text, "high")
	assert.Contains(t, msg.Text, "rename")
	require.Len(t, msg.Blocks, 2)
	assert.Empty(t, msg.FileContent)
}

func TestRenderApproval_InlinesShortDiff(t *testing.T) {
	approval := model.ApprovalRequest{
		Title:       "small change",
		RiskLevel:   model.RiskLow,
		DiffContent: "-old\n+new",
	}
	msg := RenderApproval("req-1", approval)
	require.Len(t, msg.Blocks, 3, "text + diff + controls")
	assert.Empty(t, msg.FileContent)
}

func TestRenderApproval_AttachesLongDiffAsFile(t *testing.T) {
	var diff string
	for i := 0; i < 25; i++ {
		diff += "+line\n"
	}
	approval := model.ApprovalRequest{
		Title:       "big change",
		RiskLevel:   model.RiskLow,
		DiffContent: diff,
		FilePath:    "src/a.rs",
	}
	msg := RenderApproval("req-1", approval)
	require.Len(t, msg.Blocks, 2, "text + controls, no inline diff block")
	assert.Equal(t, []byte(diff), msg.FileContent)
	assert.Equal(t, "src/a.rs.diff", msg.FileName)
}

func TestRenderPrompt_ContainsAllDecisions(t *testing.T) {
	prompt := model.ContinuationPrompt{
		PromptText:     "continue refactor?",
		PromptType:     model.PromptContinuation,
		ElapsedSeconds: 42,
	}
	text, blocks := RenderPrompt("p-1", prompt)
	assert.Contains(t, text, "continue refactor?")
	require.Len(t, blocks, 2)
}
