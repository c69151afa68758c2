package mcptools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/softwaresalt/agent-intercom/internal/chat"
	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/registry"
)

// handleTransmit implements transmit (§4.7.4). Timeout and sender-dropped
// both default to Continue, unlike check_clearance's Rejected default.
func (s *Server) handleTransmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	sess, err := s.resolveSession(args)
	if err != nil {
		return errResult(err)
	}
	s.touchSession(sess, "transmit")
	defer s.touchSession(sess, "transmit")

	promptText := stringArg(args, "prompt_text")
	if promptText == "" {
		return mcp.NewToolResultError("prompt_text is required"), nil
	}

	promptType := model.PromptType(stringArg(args, "prompt_type"))
	if promptType == "" {
		promptType = model.PromptContinuation
	}
	if !promptType.IsValid() {
		return mcp.NewToolResultError("prompt_type must be one of continuation, clarification, error_recovery, resource_warning"), nil
	}

	prompt := model.ContinuationPrompt{
		ID:             uuid.NewString(),
		SessionID:      sess.ID,
		PromptText:     promptText,
		PromptType:     promptType,
		ElapsedSeconds: intArg(args, "elapsed_seconds", 0),
		ActionsTaken:   stringArg(args, "actions_taken"),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreatePrompt(prompt); err != nil {
		return errResult(err)
	}

	ch := s.registry.RegisterPrompt(prompt.ID)

	if deliversToChat(sess) && s.chatAdp != nil {
		text, blocks := chat.RenderPrompt(prompt.ID, prompt)
		s.chatAdp.Enqueue(chat.OutboundMessage{Text: text, Blocks: blocks})
	}

	timeout := s.timeouts.PromptSeconds
	if timeout <= 0 {
		timeout = 1800
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	deflt := model.PromptOutcome{Decision: model.DecisionContinue}
	outcome, resolved := registry.AwaitPrompt(waitCtx, ch, deflt)
	if !resolved {
		outcome = deflt
	}

	if err := s.store.RecordDecision(prompt.ID, outcome.Decision, outcome.Instruction); err != nil {
		return errResult(err)
	}

	return mcp.NewToolResultText(toolJSON(map[string]any{
		"decision":    outcome.Decision,
		"instruction": outcome.Instruction,
		"prompt_id":   prompt.ID,
	})), nil
}

// handleBroadcast implements broadcast (§4.7.5): synchronous, non-blocking.
func (s *Server) handleBroadcast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	sess, err := s.resolveSession(args)
	if err != nil {
		return errResult(err)
	}
	s.touchSession(sess, "broadcast")
	defer s.touchSession(sess, "broadcast")

	message := stringArg(args, "message")
	if message == "" {
		return mcp.NewToolResultError("message is required"), nil
	}

	level := stringArg(args, "level")
	if level == "" {
		level = "info"
	}
	switch level {
	case "info", "success", "warning", "error":
	default:
		return mcp.NewToolResultError("level must be one of info, success, warning, error"), nil
	}

	if s.chatAdp == nil || !deliversToChat(sess) {
		return mcp.NewToolResultText(toolJSON(map[string]any{"posted": false})), nil
	}

	ts, err := s.chatAdp.PostSynchronous("[" + level + "] " + message)
	if err != nil {
		return mcp.NewToolResultText(toolJSON(map[string]any{"posted": false})), nil
	}

	return mcp.NewToolResultText(toolJSON(map[string]any{"posted": true, "ts": ts})), nil
}

// handleReboot implements reboot (§4.7.6): read-only recovery lookup.
func (s *Server) handleReboot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	var sess *model.Session
	var err error
	if id := stringArg(args, "session_id"); id != "" {
		sess, err = s.store.GetSession(id)
	} else {
		sess, err = s.store.MostRecentInterruptedByOwner(model.ReservedLocalOwner)
	}
	if err != nil {
		return errResult(err)
	}
	if sess == nil {
		return mcp.NewToolResultText(toolJSON(map[string]any{"status": "clean"})), nil
	}

	approvals, err := s.store.PendingApprovalsForSession(sess.ID)
	if err != nil {
		return errResult(err)
	}
	prompts, err := s.store.PendingPromptsForSession(sess.ID)
	if err != nil {
		return errResult(err)
	}

	pending := make([]map[string]any, 0, len(approvals)+len(prompts))
	for _, a := range approvals {
		pending = append(pending, map[string]any{
			"request_id": a.ID, "type": "approval", "title": a.Title, "created_at": a.CreatedAt,
		})
	}
	for _, p := range prompts {
		pending = append(pending, map[string]any{
			"request_id": p.ID, "type": "prompt", "title": p.PromptText, "created_at": p.CreatedAt,
		})
	}

	result := map[string]any{
		"status":           "recovered",
		"session_id":       sess.ID,
		"pending_requests": pending,
	}
	if len(sess.ProgressSteps) > 0 {
		result["progress_snapshot"] = sess.ProgressSteps
	}

	checkpoints, err := s.store.CheckpointsForSession(sess.ID)
	if err == nil && len(checkpoints) > 0 {
		result["last_checkpoint"] = checkpoints[len(checkpoints)-1].ID
	}

	return mcp.NewToolResultText(toolJSON(result)), nil
}

// handleSwitchFreq implements switch_freq (§4.7.7).
func (s *Server) handleSwitchFreq(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	sess, err := s.resolveSession(args)
	if err != nil {
		return errResult(err)
	}
	s.touchSession(sess, "switch_freq")
	defer s.touchSession(sess, "switch_freq")

	mode := model.SessionMode(stringArg(args, "mode"))
	if !mode.IsValid() {
		return mcp.NewToolResultError("mode must be one of remote, local, hybrid"), nil
	}

	if err := s.store.UpdateSessionMode(sess.ID, mode, time.Now().UTC()); err != nil {
		return errResult(err)
	}

	if mode == model.ModeRemote || mode == model.ModeHybrid {
		s.postInfo("Session " + sess.ID + " switched to " + string(mode) + " mode")
	}

	return mcp.NewToolResultText(toolJSON(map[string]any{"mode": mode})), nil
}

// handleStandby implements standby (§4.7.8). Stop is delivered as
// Resumed{instruction: "stop"}, never as a direct session termination.
func (s *Server) handleStandby(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	sess, err := s.resolveSession(args)
	if err != nil {
		return errResult(err)
	}
	s.touchSession(sess, "standby")
	defer s.touchSession(sess, "standby")

	if deliversToChat(sess) && s.chatAdp != nil {
		reason := stringArg(args, "message")
		text, blocks := chat.RenderStandby(sess.ID, reason)
		s.chatAdp.Enqueue(chat.OutboundMessage{Text: text, Blocks: blocks})
	}

	ch := s.registry.RegisterWait(sess.ID)

	effectiveTimeout := intArg(args, "timeout_seconds", 0)
	if effectiveTimeout == 0 {
		effectiveTimeout = s.timeouts.WaitSeconds
	}

	var waitCtx context.Context
	var cancel context.CancelFunc
	if effectiveTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(effectiveTimeout)*time.Second)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	deflt := model.WaitOutcome{Kind: model.WaitResumed, Instruction: "stop"}
	outcome, resolved := registry.AwaitWait(waitCtx, ch, deflt)
	if !resolved {
		outcome = deflt
	}

	return mcp.NewToolResultText(toolJSON(map[string]any{
		"status":      outcome.Kind,
		"instruction": outcome.Instruction,
	})), nil
}

// handlePing implements ping (§4.7.9): requires exactly one active session.
func (s *Server) handlePing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	active, err := s.store.ActiveSessions()
	if err != nil {
		return errResult(err)
	}
	if len(active) != 1 {
		return errResult(errs.New(errs.NotFound, "ping requires exactly one active session"))
	}
	sess := active[0]

	if raw := stringArg(args, "progress_snapshot"); raw != "" {
		var steps []model.ProgressStep
		if err := json.Unmarshal([]byte(raw), &steps); err == nil && validProgressSteps(steps) {
			if err := s.store.TouchSession(sess.ID, "ping", steps, time.Now().UTC()); err != nil {
				return errResult(err)
			}
		}
	} else {
		if err := s.store.TouchSession(sess.ID, "ping", nil, time.Now().UTC()); err != nil {
			return errResult(err)
		}
	}

	if s.detectors != nil {
		if d := s.detectors.Get(sess.ID); d != nil {
			d.Reset()
		}
	}

	enabled := s.detectors != nil

	if msg := stringArg(args, "status_message"); msg != "" {
		s.postInfo(msg)
	}

	return mcp.NewToolResultText(toolJSON(map[string]any{
		"acknowledged":            true,
		"session_id":              sess.ID,
		"stall_detection_enabled": enabled,
	})), nil
}

func validProgressSteps(steps []model.ProgressStep) bool {
	if steps == nil {
		return false
	}
	for _, step := range steps {
		if step.Label == "" || !step.Status.IsValid() {
			return false
		}
	}
	return true
}
