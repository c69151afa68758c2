package mcptools

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/softwaresalt/agent-intercom/internal/chat"
	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/hasher"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/pathsafe"
	"github.com/softwaresalt/agent-intercom/internal/policy"
	"github.com/softwaresalt/agent-intercom/internal/registry"
)

// handleCheckClearance implements check_clearance (§4.7.1).
func (s *Server) handleCheckClearance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	sess, err := s.resolveSession(args)
	if err != nil {
		return errResult(err)
	}
	s.touchSession(sess, "check_clearance")
	defer s.touchSession(sess, "check_clearance")

	title := stringArg(args, "title")
	diff := stringArg(args, "diff")
	filePath := stringArg(args, "file_path")
	if title == "" || diff == "" || filePath == "" {
		return mcp.NewToolResultError("title, diff and file_path are required"), nil
	}

	risk := model.RiskLevel(stringArg(args, "risk_level"))
	if risk == "" {
		risk = model.RiskLow
	}
	if !risk.IsValid() {
		return mcp.NewToolResultError("risk_level must be one of low, high, critical"), nil
	}

	resolved, err := pathsafe.Validate(filePath, sess.WorkspaceRoot)
	if err != nil {
		return errResult(err)
	}

	originalHash, err := hasher.Hash(resolved)
	if err != nil {
		return errResult(err)
	}

	if existing, err := s.store.PendingApprovalForSession(sess.ID); err != nil {
		return errResult(err)
	} else if existing != nil {
		return errResult(errs.New(errs.AlreadyConsumed, "a pending approval already exists for this session"))
	}

	req := model.ApprovalRequest{
		ID:           uuid.NewString(),
		SessionID:    sess.ID,
		Title:        title,
		Description:  stringArg(args, "description"),
		DiffContent:  diff,
		FilePath:     filePath,
		RiskLevel:    risk,
		Status:       model.ApprovalPending,
		OriginalHash: originalHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateApproval(req); err != nil {
		return errResult(err)
	}

	ch := s.registry.RegisterApproval(req.ID)

	if deliversToChat(sess) && s.chatAdp != nil {
		s.chatAdp.Enqueue(chat.RenderApproval(req.ID, req))
	}

	timeout := s.timeouts.ApprovalSeconds
	if timeout <= 0 {
		timeout = 3600
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	outcome, resolved2 := registry.AwaitApproval(waitCtx, ch, model.ApprovalOutcome{Kind: model.OutcomeRejected, Reason: "timeout"})

	if !resolved2 {
		_ = s.store.ExpireApproval(req.ID)
		return mcp.NewToolResultText(toolJSON(map[string]any{
			"status":     "Timeout",
			"request_id": req.ID,
		})), nil
	}

	var status string
	switch outcome.Kind {
	case model.OutcomeApproved:
		status = "Approved"
		if err := s.store.UpdateApprovalStatus(req.ID, model.ApprovalApproved); err != nil {
			return errResult(err)
		}
	case model.OutcomeRejected:
		status = "Rejected"
		if err := s.store.UpdateApprovalStatus(req.ID, model.ApprovalRejected); err != nil {
			return errResult(err)
		}
	}

	return mcp.NewToolResultText(toolJSON(map[string]any{
		"status":     status,
		"request_id": req.ID,
		"reason":     outcome.Reason,
	})), nil
}

// handleCheckDiff implements check_diff (§4.7.2).
func (s *Server) handleCheckDiff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	requestID := stringArg(args, "request_id")
	if requestID == "" {
		return mcp.NewToolResultError("request_id is required"), nil
	}
	force := boolArg(args, "force", false)

	approval, err := s.store.GetApproval(requestID)
	if err != nil {
		return errResult(err)
	}
	if approval == nil {
		return mcp.NewToolResultError("request_not_found"), nil
	}
	if approval.Status == model.ApprovalConsumed {
		return mcp.NewToolResultError("already_consumed"), nil
	}
	if approval.Status != model.ApprovalApproved {
		return mcp.NewToolResultError("not_approved"), nil
	}

	sess, err := s.store.GetSession(approval.SessionID)
	if err != nil {
		return errResult(err)
	}
	if sess == nil {
		return mcp.NewToolResultError("request_not_found"), nil
	}
	s.touchSession(sess, "check_diff")
	defer s.touchSession(sess, "check_diff")

	resolved, err := pathsafe.Validate(approval.FilePath, sess.WorkspaceRoot)
	if err != nil {
		return mcp.NewToolResultError("path_violation: " + err.Error()), nil
	}

	if !force {
		currentHash, err := hasher.Hash(resolved)
		if err != nil {
			return errResult(err)
		}
		if currentHash != approval.OriginalHash {
			return mcp.NewToolResultError("patch_conflict"), nil
		}
	}

	var bytesWritten int
	if isUnifiedDiff(approval.DiffContent) {
		bytesWritten, err = pathsafe.ApplyPatch(approval.FilePath, approval.DiffContent, sess.WorkspaceRoot)
	} else {
		bytesWritten, err = pathsafe.WriteFile(approval.FilePath, []byte(approval.DiffContent), sess.WorkspaceRoot)
	}
	if err != nil {
		return errResult(err)
	}

	now := time.Now().UTC()
	if err := s.store.ConsumeApproval(approval.ID, now.Format(time.RFC3339)); err != nil {
		return errResult(err)
	}

	s.postInfo("Applied change to " + approval.FilePath)

	return mcp.NewToolResultText(toolJSON(map[string]any{
		"status": "applied",
		"files_written": []map[string]any{
			{"path": approval.FilePath, "bytes": bytesWritten},
		},
	})), nil
}

// handleAutoCheck implements auto_check (§4.7.3, delegating to §4.4).
func (s *Server) handleAutoCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	sess, err := s.resolveSession(args)
	if err != nil {
		return errResult(err)
	}
	s.touchSession(sess, "auto_check")
	defer s.touchSession(sess, "auto_check")

	toolName := stringArg(args, "tool_name")
	if toolName == "" {
		return mcp.NewToolResultError("tool_name is required"), nil
	}

	risk := model.RiskLevel(stringArg(args, "risk_level"))
	if risk == "" {
		risk = model.RiskLow
	}
	if !risk.IsValid() {
		return mcp.NewToolResultError("risk_level must be one of low, high, critical"), nil
	}

	p := s.policies.Get(sess.WorkspaceRoot)
	decision := policy.Evaluate(toolName, policy.EvaluationContext{
		FilePath:  stringArg(args, "file_path"),
		RiskLevel: risk,
	}, p, s.commands)

	result := map[string]any{"auto_approved": decision.Approved}
	if decision.MatchedRule != "" {
		result["matched_rule"] = decision.MatchedRule
	}
	return mcp.NewToolResultText(toolJSON(result)), nil
}
