package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwaresalt/agent-intercom/internal/model"
)

func TestRegistry_ApprovalResolveFirstWins(t *testing.T) {
	r := New()
	ch := r.RegisterApproval("req-1")

	ok := r.ResolveApproval("req-1", model.ApprovalOutcome{Kind: model.OutcomeApproved})
	require.True(t, ok)

	ok = r.ResolveApproval("req-1", model.ApprovalOutcome{Kind: model.OutcomeRejected})
	assert.False(t, ok, "second resolution for the same id should be ignored")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	outcome, resolved := AwaitApproval(ctx, ch, model.ApprovalOutcome{Kind: model.OutcomeRejected})
	assert.True(t, resolved)
	assert.Equal(t, model.OutcomeApproved, outcome.Kind)
}

func TestRegistry_DropAppliesDefault(t *testing.T) {
	r := New()
	ch := r.RegisterPrompt("p-1")
	r.DropPrompt("p-1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	outcome, resolved := AwaitPrompt(ctx, ch, model.PromptOutcome{Decision: model.DecisionContinue})
	assert.False(t, resolved)
	assert.Equal(t, model.DecisionContinue, outcome.Decision)
}

func TestRegistry_AwaitTimesOut(t *testing.T) {
	r := New()
	ch := r.RegisterWait("sess-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	outcome, resolved := AwaitWait(ctx, ch, model.WaitOutcome{Kind: model.WaitStopped})
	assert.False(t, resolved)
	assert.Equal(t, model.WaitStopped, outcome.Kind)
}

func TestRegistry_DropAllClosesEverything(t *testing.T) {
	r := New()
	approveCh := r.RegisterApproval("a")
	promptCh := r.RegisterPrompt("p")
	waitCh := r.RegisterWait("w")

	r.DropAll()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, resolved := AwaitApproval(ctx, approveCh, model.ApprovalOutcome{})
	assert.False(t, resolved)
	_, resolved = AwaitPrompt(ctx, promptCh, model.PromptOutcome{})
	assert.False(t, resolved)
	_, resolved = AwaitWait(ctx, waitCh, model.WaitOutcome{})
	assert.False(t, resolved)
}
