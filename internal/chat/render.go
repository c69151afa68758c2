package chat

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/softwaresalt/agent-intercom/internal/model"
)

// inlineDiffLineThreshold is spec.md §4.7.1 step 4's inline/attachment
// cutoff: diffs shorter than this are shown inline, longer ones are
// uploaded as a file attachment instead.
const inlineDiffLineThreshold = 20

// Action ids are a closed set dispatched by exact match in dispatch.go (§6).
const (
	actionApproveAccept = "approve_accept"
	actionApproveReject = "approve_reject"

	actionPromptContinue = "prompt_continue"
	actionPromptRefine   = "prompt_refine"
	actionPromptStop     = "prompt_stop"

	actionStallNudge         = "stall_nudge"
	actionStallNudgeInstruct = "stall_nudge_instruct"
	actionStallStop          = "stall_stop"

	actionWaitResume         = "wait_resume"
	actionWaitResumeInstruct = "wait_resume_instruct"
	actionWaitStop           = "wait_stop"
)

// instructModalCallback identifies the modal opened by the *_instruct
// actions; view submissions are routed back by this callback id.
const instructModalCallback = "instruct_modal"

func textBlock(md string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, md, false, false), nil, nil)
}

func buttonElement(label, actionID, value string, style slack.Style) *slack.ButtonBlockElement {
	btn := slack.NewButtonBlockElement(actionID, value, slack.NewTextBlockObject(slack.PlainTextType, label, false, false))
	btn.Style = style
	return btn
}

// RenderApproval builds the check_clearance card (§4.7.1): title,
// description, risk level, the diff itself, and Accept/Reject buttons.
// The diff is inlined as a fenced code block when it is under
// inlineDiffLineThreshold lines; otherwise it travels as a file
// attachment on the same OutboundMessage, per §4.7.1 step 4.
func RenderApproval(requestID string, approval model.ApprovalRequest) OutboundMessage {
	text := fmt.Sprintf(":rotating_light: *Approval requested: %s* (%s risk)\n%s",
		approval.Title, approval.RiskLevel, approval.Description)
	blocks := []slack.Block{textBlock(text)}

	msg := OutboundMessage{}
	if approval.DiffContent != "" {
		if diffLineCount(approval.DiffContent) < inlineDiffLineThreshold {
			blocks = append(blocks, textBlock(fmt.Sprintf("```\n%s\n```", approval.DiffContent)))
		} else {
			msg.FileContent = []byte(approval.DiffContent)
			msg.FileName = approval.FilePath + ".diff"
			msg.FileTitle = approval.Title
		}
	}

	blocks = append(blocks, slack.NewActionBlock("approval_controls",
		buttonElement("Accept", actionApproveAccept, requestID, slack.StylePrimary),
		buttonElement("Reject", actionApproveReject, requestID, slack.StyleDanger),
	))

	msg.Text = text
	msg.Blocks = blocks
	return msg
}

// diffLineCount counts lines the way spec.md §4.7.1 step 4 does: the
// number of newline-separated lines in the diff text.
func diffLineCount(diff string) int {
	return strings.Count(diff, "\n") + 1
}

// RenderPrompt builds the transmit card (§4.7.4): Continue/Refine/Stop.
func RenderPrompt(promptID string, prompt model.ContinuationPrompt) (string, []slack.Block) {
	text := fmt.Sprintf(":thinking_face: *%s*\n%s\n_elapsed %ds_", prompt.PromptType, prompt.PromptText, prompt.ElapsedSeconds)
	blocks := []slack.Block{
		textBlock(text),
		slack.NewActionBlock("prompt_controls",
			buttonElement("Continue", actionPromptContinue, promptID, slack.StylePrimary),
			buttonElement("Refine", actionPromptRefine, promptID, slack.StyleDefault),
			buttonElement("Stop", actionPromptStop, promptID, slack.StyleDanger),
		),
	}
	return text, blocks
}

// RenderStall builds the stall alert card (§4.5): Nudge/Nudge with
// instructions/Stop.
func RenderStall(alertID, sessionID string, idleSeconds, nudgeCount int) (string, []slack.Block) {
	text := fmt.Sprintf(":zzz: Session `%s` idle %ds, nudge %d", sessionID, idleSeconds, nudgeCount)
	blocks := []slack.Block{
		textBlock(text),
		slack.NewActionBlock("stall_controls",
			buttonElement("Nudge", actionStallNudge, alertID, slack.StyleDefault),
			buttonElement("Nudge with instructions", actionStallNudgeInstruct, alertID, slack.StyleDefault),
			buttonElement("Stop", actionStallStop, alertID, slack.StyleDanger),
		),
	}
	return text, blocks
}

// RenderStandby builds the standby card (§4.7.8): Resume/Resume with
// instructions/Stop.
func RenderStandby(sessionID, reason string) (string, []slack.Block) {
	text := fmt.Sprintf(":pause_button: Session `%s` standing by: %s", sessionID, reason)
	blocks := []slack.Block{
		textBlock(text),
		slack.NewActionBlock("wait_controls",
			buttonElement("Resume", actionWaitResume, sessionID, slack.StylePrimary),
			buttonElement("Resume with instructions", actionWaitResumeInstruct, sessionID, slack.StyleDefault),
			buttonElement("Stop", actionWaitStop, sessionID, slack.StyleDanger),
		),
	}
	return text, blocks
}

// instructModal opens a single-input modal capturing free-text instructions
// for the *_instruct actions; the original action + record id travel in
// PrivateMetadata so the view_submission handler can re-dispatch.
func instructModal(triggerID, metadata, title string) slack.ModalViewRequest {
	input := slack.NewInputBlock(
		"instruction_block",
		slack.NewTextBlockObject(slack.PlainTextType, "Instructions", false, false),
		nil,
		slack.NewPlainTextInputBlockElement(slack.NewTextBlockObject(slack.PlainTextType, "", false, false), "instruction_input"),
	)

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      instructModalCallback,
		PrivateMetadata: metadata,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, title, false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Send", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks:          slack.Blocks{BlockSet: []slack.Block{input}},
	}
}
