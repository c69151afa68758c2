package model

import "time"

// PromptType classifies a continuation prompt (§3).
type PromptType string

const (
	PromptContinuation   PromptType = "continuation"
	PromptClarification  PromptType = "clarification"
	PromptErrorRecovery  PromptType = "error_recovery"
	PromptResourceWarning PromptType = "resource_warning"
)

func (t PromptType) IsValid() bool {
	switch t {
	case PromptContinuation, PromptClarification, PromptErrorRecovery, PromptResourceWarning:
		return true
	}
	return false
}

// PromptDecision is the operator's answer to a ContinuationPrompt.
type PromptDecision string

const (
	DecisionContinue PromptDecision = "continue"
	DecisionRefine   PromptDecision = "refine"
	DecisionStop     PromptDecision = "stop"
)

func (d PromptDecision) IsValid() bool {
	switch d {
	case DecisionContinue, DecisionRefine, DecisionStop:
		return true
	}
	return false
}

// ContinuationPrompt is a forwarded question from the agent (§3).
type ContinuationPrompt struct {
	ID             string
	SessionID      string
	PromptText     string
	PromptType     PromptType
	ElapsedSeconds int
	ActionsTaken   string
	Decision       *PromptDecision
	Instruction    string
	ExternalRef    string
	CreatedAt      time.Time
}

// WaitOutcomeKind is the resolution of a standby (§4.6).
type WaitOutcomeKind string

const (
	WaitResumed WaitOutcomeKind = "resumed"
	WaitStopped WaitOutcomeKind = "stopped"
)

// ApprovalOutcomeKind is the resolution of check_clearance (§4.6).
type ApprovalOutcomeKind string

const (
	OutcomeApproved ApprovalOutcomeKind = "approved"
	OutcomeRejected ApprovalOutcomeKind = "rejected"
)

// ApprovalOutcome is delivered to the rendezvous awaiter in check_clearance.
type ApprovalOutcome struct {
	Kind   ApprovalOutcomeKind
	Reason string
}

// PromptOutcome is delivered to the rendezvous awaiter in transmit.
type PromptOutcome struct {
	Decision    PromptDecision
	Instruction string
}

// WaitOutcome is delivered to the rendezvous awaiter in standby.
type WaitOutcome struct {
	Kind        WaitOutcomeKind
	Instruction string
}
