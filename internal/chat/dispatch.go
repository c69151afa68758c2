package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// dispatcher implements the operator-event guard chain (§4.8): reject
// unauthorized users outright, collapse double-submissions on a record
// already being handled, then route by exact action_id to the Handler.
type dispatcher struct {
	handler Handler
	authz   Authorizer
	log     zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func newDispatcher(handler Handler, authz Authorizer, logger zerolog.Logger) *dispatcher {
	return &dispatcher{
		handler:  handler,
		authz:    authz,
		log:      logger,
		inFlight: make(map[string]bool),
	}
}

// claim marks recordID as being handled; returns false if it already was
// (a double-submission, e.g. two clicks before the first rewrite lands).
func (d *dispatcher) claim(recordID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight[recordID] {
		return false
	}
	d.inFlight[recordID] = true
	return true
}

func (d *dispatcher) release(recordID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, recordID)
}

func (d *dispatcher) handleInteraction(ctx context.Context, a *Adapter, cb slack.InteractionCallback) {
	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		d.handleBlockAction(ctx, a, cb)
	case slack.InteractionTypeViewSubmission:
		d.handleViewSubmission(ctx, a, cb)
	}
}

func (d *dispatcher) handleBlockAction(ctx context.Context, a *Adapter, cb slack.InteractionCallback) {
	if len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	action := cb.ActionCallback.BlockActions[0]
	userID := cb.User.ID

	if !d.authz.IsAuthorized(userID) {
		d.log.Warn().Str("user", userID).Str("action", action.ActionID).Msg("unauthorized interaction rejected")
		return
	}

	// The *_instruct actions open a modal instead of acting immediately;
	// they do not need the double-submission claim since no handler call
	// happens until the modal is submitted.
	switch action.ActionID {
	case actionStallNudgeInstruct:
		a.openInstructModal(cb.TriggerID, action.ActionID+":"+action.Value, "Nudge with instructions")
		return
	case actionWaitResumeInstruct:
		a.openInstructModal(cb.TriggerID, action.ActionID+":"+action.Value, "Resume with instructions")
		return
	}

	recordID := action.Value
	if !d.claim(recordID) {
		d.log.Debug().Str("record", recordID).Msg("double-submission ignored")
		return
	}
	defer d.release(recordID)

	a.RewriteControls(cb.Message.Timestamp, "Processing…")

	message, err := d.route(ctx, userID, action.ActionID, recordID, "")
	if err != nil {
		d.log.Error().Err(err).Str("action", action.ActionID).Msg("handler failed")
		a.RewriteControls(cb.Message.Timestamp, "Failed: "+err.Error())
		return
	}
	a.RewriteControls(cb.Message.Timestamp, message)
}

func (d *dispatcher) handleViewSubmission(ctx context.Context, a *Adapter, cb slack.InteractionCallback) {
	if cb.View.CallbackID != instructModalCallback {
		return
	}
	userID := cb.User.ID
	if !d.authz.IsAuthorized(userID) {
		return
	}

	parts := strings.SplitN(cb.View.PrivateMetadata, ":", 2)
	if len(parts) != 2 {
		return
	}
	actionID, recordID := parts[0], parts[1]

	instruction := ""
	for _, blockState := range cb.View.State.Values {
		if v, ok := blockState["instruction_input"]; ok {
			instruction = v.Value
		}
	}

	if !d.claim(recordID) {
		return
	}
	defer d.release(recordID)

	if _, err := d.route(ctx, userID, actionID, recordID, instruction); err != nil {
		d.log.Error().Err(err).Str("action", actionID).Msg("instruct handler failed")
	}
}

// route maps an exact action_id to the corresponding Handler call (§6).
func (d *dispatcher) route(ctx context.Context, userID, actionID, recordID, instruction string) (string, error) {
	switch actionID {
	case actionApproveAccept:
		return d.handler.HandleApproval(ctx, userID, recordID, true)
	case actionApproveReject:
		return d.handler.HandleApproval(ctx, userID, recordID, false)

	case actionPromptContinue:
		return d.handler.HandlePrompt(ctx, userID, recordID, "continue", "")
	case actionPromptRefine:
		return d.handler.HandlePrompt(ctx, userID, recordID, "refine", instruction)
	case actionPromptStop:
		return d.handler.HandlePrompt(ctx, userID, recordID, "stop", "")

	case actionStallNudge:
		return d.handler.HandleStall(ctx, userID, recordID, "nudge", "")
	case actionStallNudgeInstruct:
		return d.handler.HandleStall(ctx, userID, recordID, "nudge", instruction)
	case actionStallStop:
		return d.handler.HandleStall(ctx, userID, recordID, "stop", "")

	case actionWaitResume:
		return d.handler.HandleWait(ctx, userID, recordID, "resume", "")
	case actionWaitResumeInstruct:
		return d.handler.HandleWait(ctx, userID, recordID, "resume", instruction)
	case actionWaitStop:
		return d.handler.HandleWait(ctx, userID, recordID, "stop", "")
	}
	return "", nil
}

func (d *dispatcher) handleSlashCommand(ctx context.Context, a *Adapter, cmd slack.SlashCommand) {
	if !d.authz.IsAuthorized(cmd.UserID) {
		a.Enqueue(OutboundMessage{Text: "You are not authorized to use this bot."})
		return
	}

	name, args := parseSlashCommand(cmd.Command, cmd.Text)
	message, err := d.handler.HandleSlashCommand(ctx, cmd.UserID, name, args)
	if err != nil {
		d.log.Error().Err(err).Str("command", name).Msg("slash command failed")
		a.Enqueue(OutboundMessage{Text: "Error: " + err.Error()})
		return
	}
	a.Enqueue(OutboundMessage{Text: message})
}

func (a *Adapter) openInstructModal(triggerID, metadata, title string) {
	view := instructModal(triggerID, metadata, title)
	if _, err := a.api.OpenView(triggerID, view); err != nil {
		a.log.Error().Err(err).Msg("failed to open instructions modal")
	}
}
