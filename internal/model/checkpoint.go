package model

import "time"

// Checkpoint is a workspace snapshot for later divergence comparison (§3, §4.12).
type Checkpoint struct {
	ID            string
	SessionID     string
	Label         string
	SessionState  string // opaque JSON
	FileHashes    map[string]string
	WorkspaceRoot string
	ProgressSteps []ProgressStep
	CreatedAt     time.Time
}

// DivergenceKind classifies how a file differs from a checkpoint (§4.12).
type DivergenceKind string

const (
	DivergenceModified DivergenceKind = "modified"
	DivergenceDeleted  DivergenceKind = "deleted"
	DivergenceAdded    DivergenceKind = "added"
)

func (d DivergenceKind) IsValid() bool {
	switch d {
	case DivergenceModified, DivergenceDeleted, DivergenceAdded:
		return true
	}
	return false
}

// DivergenceEntry is one file's classification against a checkpoint.
type DivergenceEntry struct {
	Path string
	Kind DivergenceKind
}
