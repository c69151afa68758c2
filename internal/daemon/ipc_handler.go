package daemon

import (
	"context"
	"time"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

// Daemon satisfies ipc.Handler, giving the companion CLI the same
// registry/session-manager operations the chat adapter's Handler uses
// (§4.9): a session resolved and approved from intercomctl is
// indistinguishable, at the store and registry, from one resolved over
// Slack.

type sessionSummary struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Mode          string `json:"mode"`
	OwnerID       string `json:"owner_id"`
	WorkspaceRoot string `json:"workspace_root"`
}

type approvalSummary struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	RiskLevel string `json:"risk_level"`
}

type promptSummary struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	PromptText string `json:"prompt_text"`
}

// List implements ipc.Handler's list command (§4.9): every live session
// plus every pending approval and prompt across all owners, since the
// local operator is not scoped to a single session the way a chat user is.
func (d *Daemon) List(ctx context.Context) (any, error) {
	sessions, err := d.Store.LiveSessions()
	if err != nil {
		return nil, err
	}
	approvals, err := d.Store.PendingApprovals()
	if err != nil {
		return nil, err
	}
	prompts, err := d.Store.PendingPrompts()
	if err != nil {
		return nil, err
	}

	sessionList := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		sessionList = append(sessionList, sessionSummary{
			ID: s.ID, Status: string(s.Status), Mode: string(s.Mode), OwnerID: s.OwnerID, WorkspaceRoot: s.WorkspaceRoot,
		})
	}
	approvalList := make([]approvalSummary, 0, len(approvals))
	for _, a := range approvals {
		approvalList = append(approvalList, approvalSummary{ID: a.ID, SessionID: a.SessionID, Title: a.Title, RiskLevel: string(a.RiskLevel)})
	}
	promptList := make([]promptSummary, 0, len(prompts))
	for _, p := range prompts {
		promptList = append(promptList, promptSummary{ID: p.ID, SessionID: p.SessionID, PromptText: p.PromptText})
	}

	return map[string]any{
		"sessions":  sessionList,
		"approvals": approvalList,
		"prompts":   promptList,
	}, nil
}

// Approve implements ipc.Handler's approve command. reason is currently
// unused for approvals (the record shape has no approve-reason field),
// accepted for symmetry with reject.
func (d *Daemon) Approve(ctx context.Context, id, reason string) (string, error) {
	approval, err := d.Store.GetApproval(id)
	if err != nil {
		return "", err
	}
	if approval == nil {
		return "", errs.New(errs.NotFound, "approval not found")
	}
	if !d.Registry.ResolveApproval(id, model.ApprovalOutcome{Kind: model.OutcomeApproved}) {
		return "", errs.New(errs.AlreadyConsumed, "approval was already resolved")
	}
	return "approved", nil
}

// Reject implements ipc.Handler's reject command.
func (d *Daemon) Reject(ctx context.Context, id, reason string) (string, error) {
	approval, err := d.Store.GetApproval(id)
	if err != nil {
		return "", err
	}
	if approval == nil {
		return "", errs.New(errs.NotFound, "approval not found")
	}
	if !d.Registry.ResolveApproval(id, model.ApprovalOutcome{Kind: model.OutcomeRejected, Reason: reason}) {
		return "", errs.New(errs.AlreadyConsumed, "approval was already resolved")
	}
	return "rejected", nil
}

// Resume implements ipc.Handler's resume command (§4.7.8): resolves the
// reserved local owner's most recently active session's standby wait, if
// any is outstanding.
func (d *Daemon) Resume(ctx context.Context, instruction string) (string, error) {
	sess, err := d.Store.MostRecentActiveByOwner(model.ReservedLocalOwner)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", errs.New(errs.NotFound, "no active local session")
	}
	if !d.Registry.ResolveWait(sess.ID, model.WaitOutcome{Kind: model.WaitResumed, Instruction: instruction}) {
		return "", errs.New(errs.NotFound, "session is not currently standing by")
	}
	return "resumed", nil
}

// SetMode implements ipc.Handler's mode command (§4.7.7), applied to the
// reserved local owner's active session.
func (d *Daemon) SetMode(ctx context.Context, mode string) (string, error) {
	m := model.SessionMode(mode)
	if !m.IsValid() {
		return "", errs.New(errs.Config, "mode must be one of remote, local, hybrid")
	}
	sess, err := d.Store.MostRecentActiveByOwner(model.ReservedLocalOwner)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", errs.New(errs.NotFound, "no active local session")
	}
	if err := d.Store.UpdateSessionMode(sess.ID, m, time.Now().UTC()); err != nil {
		return "", err
	}
	return "mode set to " + mode, nil
}
