package model

import "time"

// StallStatus is the lifecycle of a StallAlert record (§3).
type StallStatus string

const (
	StallPending       StallStatus = "pending"
	StallNudged        StallStatus = "nudged"
	StallSelfRecovered StallStatus = "self_recovered"
	StallEscalated     StallStatus = "escalated"
	StallDismissed     StallStatus = "dismissed"
)

func (s StallStatus) IsValid() bool {
	switch s {
	case StallPending, StallNudged, StallSelfRecovered, StallEscalated, StallDismissed:
		return true
	}
	return false
}

// Open reports whether the alert still counts toward the "at most one
// {Pending, Nudged} alert per session" invariant.
func (s StallStatus) Open() bool {
	return s == StallPending || s == StallNudged
}

// StallAlert records a detected inactivity episode for a session (§3).
type StallAlert struct {
	ID              string
	SessionID       string
	LastTool        string
	LastActivityAt  time.Time
	IdleSeconds     int
	NudgeCount      int
	Status          StallStatus
	NudgeMessage    string
	ProgressSteps   []ProgressStep
	ExternalRef     string
	CreatedAt       time.Time
}

// StallEventKind is the closed set of events the detector emits (§4.5).
type StallEventKind string

const (
	EventStalled      StallEventKind = "stalled"
	EventAutoNudge    StallEventKind = "auto_nudge"
	EventEscalated    StallEventKind = "escalated"
	EventSelfRecovered StallEventKind = "self_recovered"
)

// StallEvent is produced by the detector to an observer (typically the chat adapter).
type StallEvent struct {
	Kind        StallEventKind
	SessionID   string
	IdleSeconds int
	NudgeCount  int
}
