package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/softwaresalt/agent-intercom/internal/chat"
	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

// Daemon satisfies chat.Handler and chat.Authorizer, and ipc.Handler (in
// ipc_handler.go): the guard chain's authorization step lives in chat's own
// dispatcher, but ownership — does this operator own the session backing a
// given record — can only be answered here, where the store is reachable.

// IsAuthorized implements chat.Authorizer (§4.8 guard 1).
func (d *Daemon) IsAuthorized(userID string) bool {
	for _, id := range d.operators {
		if id == userID {
			return true
		}
	}
	return false
}

func (d *Daemon) ownsSession(sess *model.Session, userID string) bool {
	return sess != nil && sess.OwnerID == userID
}

// HandleApproval implements chat.Handler for the approve_accept/reject
// actions (§4.8 guard 4, §4.7.1).
func (d *Daemon) HandleApproval(ctx context.Context, userID, requestID string, accept bool) (string, error) {
	approval, err := d.Store.GetApproval(requestID)
	if err != nil {
		return "", err
	}
	if approval == nil {
		return "This approval no longer exists.", nil
	}
	sess, err := d.Store.GetSession(approval.SessionID)
	if err != nil {
		return "", err
	}
	if !d.ownsSession(sess, userID) {
		return "You do not own the session this approval belongs to.", nil
	}

	outcome := model.ApprovalOutcome{Kind: model.OutcomeRejected}
	if accept {
		outcome = model.ApprovalOutcome{Kind: model.OutcomeApproved}
	}
	if !d.Registry.ResolveApproval(requestID, outcome) {
		return "This approval was already resolved.", nil
	}
	if accept {
		return "Approved.", nil
	}
	return "Rejected.", nil
}

// HandlePrompt implements chat.Handler for the prompt_continue/refine/stop
// actions (§4.7.4).
func (d *Daemon) HandlePrompt(ctx context.Context, userID, promptID, decision, instruction string) (string, error) {
	prompt, err := d.Store.GetPrompt(promptID)
	if err != nil {
		return "", err
	}
	if prompt == nil {
		return "This prompt no longer exists.", nil
	}
	sess, err := d.Store.GetSession(prompt.SessionID)
	if err != nil {
		return "", err
	}
	if !d.ownsSession(sess, userID) {
		return "You do not own the session this prompt belongs to.", nil
	}

	outcome := model.PromptOutcome{Decision: model.PromptDecision(decision), Instruction: instruction}
	if !d.Registry.ResolvePrompt(promptID, outcome) {
		return "This prompt was already resolved.", nil
	}
	return "Recorded: " + decision, nil
}

// HandleStall implements chat.Handler for the stall_nudge/stop actions
// (§4.5). A stall alert has no blocking rendezvous of its own: nudge
// re-announces the default or operator-supplied message and bumps the
// nudge count; stop dismisses the alert and terminates the stalled
// session, mirroring the only session-ending action an operator has over
// an unresponsive child.
func (d *Daemon) HandleStall(ctx context.Context, userID, alertID, action, instruction string) (string, error) {
	alert, err := d.Store.GetStallAlert(alertID)
	if err != nil {
		return "", err
	}
	if alert == nil {
		return "This stall alert no longer exists.", nil
	}
	sess, err := d.Store.GetSession(alert.SessionID)
	if err != nil {
		return "", err
	}
	if !d.ownsSession(sess, userID) {
		return "You do not own the session this alert belongs to.", nil
	}

	switch action {
	case "nudge":
		message := instruction
		if message == "" {
			message = d.Config.Stall.DefaultNudgeMessage
		}
		if err := d.Store.UpdateStallStatus(alertID, model.StallNudged, alert.NudgeCount+1); err != nil {
			return "", err
		}
		if err := d.Store.IncrementNudgeCount(sess.ID, 1, time.Now().UTC()); err != nil {
			return "", err
		}
		if d.Chat != nil {
			d.Chat.Enqueue(chat.OutboundMessage{Text: fmt.Sprintf("Nudged session %s: %s", sess.ID, message)})
		}
		return "Nudge sent.", nil
	case "stop":
		if err := d.Store.UpdateStallStatus(alertID, model.StallDismissed, alert.NudgeCount); err != nil {
			return "", err
		}
		if err := d.Sessions.TerminateSession(sess); err != nil {
			return "", err
		}
		return "Session stopped.", nil
	default:
		return "", errs.New(errs.Mcp, "unknown stall action")
	}
}

// HandleWait implements chat.Handler for the wait_resume/stop actions
// (§4.7.8). Stop is delivered as Resumed{instruction: "stop"} — the
// session is not terminated here; standby returns "stop" to the agent.
func (d *Daemon) HandleWait(ctx context.Context, userID, sessionID, action, instruction string) (string, error) {
	sess, err := d.Store.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if !d.ownsSession(sess, userID) {
		return "You do not own this session.", nil
	}

	outcome := model.WaitOutcome{Kind: model.WaitResumed, Instruction: instruction}
	if action == "stop" {
		outcome = model.WaitOutcome{Kind: model.WaitResumed, Instruction: "stop"}
	}
	if !d.Registry.ResolveWait(sessionID, outcome) {
		return "Session is not currently standing by.", nil
	}
	return "Resumed.", nil
}

// onChatReconnect re-posts every Pending approval and prompt on Socket Mode
// reconnect (§4.8 "Reconnect"). The in-memory registry is untouched by a
// mid-session reconnect; only the startup path (recovery.go) deals with a
// registry that was actually rebuilt from scratch.
func (d *Daemon) onChatReconnect(ctx context.Context, a *chat.Adapter) {
	approvals, err := d.Store.PendingApprovals()
	if err != nil {
		d.log.Warn().Err(err).Msg("cannot list pending approvals on reconnect")
	}
	for _, approval := range approvals {
		a.Enqueue(chat.RenderApproval(approval.ID, approval))
	}

	prompts, err := d.Store.PendingPrompts()
	if err != nil {
		d.log.Warn().Err(err).Msg("cannot list pending prompts on reconnect")
	}
	for _, prompt := range prompts {
		text, blocks := chat.RenderPrompt(prompt.ID, prompt)
		a.Enqueue(chat.OutboundMessage{Text: text, Blocks: blocks})
	}
}
