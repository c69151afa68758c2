// Package model holds the durable entity types shared across the daemon:
// sessions, approvals, prompts, checkpoints and stall alerts. Every status
// field is a closed sum type with an IsValid method so storage and handler
// code never compares against a bare string.
package model

import "time"

// SessionStatus is the session lifecycle state (§3).
type SessionStatus string

const (
	SessionCreated     SessionStatus = "created"
	SessionActive      SessionStatus = "active"
	SessionPaused      SessionStatus = "paused"
	SessionTerminated  SessionStatus = "terminated"
	SessionInterrupted SessionStatus = "interrupted"
)

// IsValid reports whether s is one of the closed set of session statuses.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionCreated, SessionActive, SessionPaused, SessionTerminated, SessionInterrupted:
		return true
	}
	return false
}

// Terminal reports whether the status can no longer transition.
func (s SessionStatus) Terminal() bool {
	return s == SessionTerminated || s == SessionInterrupted
}

// SessionMode selects which adapter(s) deliver and resolve operator interactions.
type SessionMode string

const (
	ModeRemote SessionMode = "remote"
	ModeLocal  SessionMode = "local"
	ModeHybrid SessionMode = "hybrid"
)

func (m SessionMode) IsValid() bool {
	switch m {
	case ModeRemote, ModeLocal, ModeHybrid:
		return true
	}
	return false
}

// ReservedLocalOwner is the owner id bound to the primary direct-connect agent.
const ReservedLocalOwner = "agent:local"

// ProgressStatus is the state of a single progress_snapshot entry.
type ProgressStatus string

const (
	ProgressDone       ProgressStatus = "done"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressPending    ProgressStatus = "pending"
)

func (p ProgressStatus) IsValid() bool {
	switch p {
	case ProgressDone, ProgressInProgress, ProgressPending:
		return true
	}
	return false
}

// ProgressStep is one entry in a session's progress_snapshot.
type ProgressStep struct {
	Label  string         `json:"label"`
	Status ProgressStatus `json:"status"`
}

// Session is the authoritative record of an agent connection (§3).
type Session struct {
	ID              string
	OwnerID         string
	WorkspaceRoot   string
	Status          SessionStatus
	Mode            SessionMode
	Prompt          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	TerminatedAt    *time.Time
	LastTool        string
	NudgeCount      int
	StallPaused     bool
	ProgressSteps   []ProgressStep
}

// CanTransitionTo reports whether the session state machine in §3 permits
// moving from s to next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionCreated:
		return next == SessionActive
	case SessionActive:
		return next == SessionPaused || next == SessionTerminated || next == SessionInterrupted
	case SessionPaused:
		return next == SessionActive || next == SessionTerminated || next == SessionInterrupted
	case SessionInterrupted:
		return next == SessionActive
	default:
		return false
	}
}
