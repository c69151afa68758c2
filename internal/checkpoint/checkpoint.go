// Package checkpoint implements C13: workspace snapshots and divergence
// detection. A checkpoint lists every regular file at a session's workspace
// root non-recursively, hashes each with the content hasher (C2), and
// persists the result through the store (C3); restoring one is purely
// diagnostic and never touches the workspace.
package checkpoint

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/hasher"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/store"
)

// Manager owns the store handle checkpoints are persisted through.
type Manager struct {
	store *store.Store
	log   zerolog.Logger
}

// NewManager constructs a Manager bound to st.
func NewManager(st *store.Store, logger zerolog.Logger) *Manager {
	return &Manager{store: st, log: logger}
}

// Create implements create_checkpoint (§4.12): lists regular files
// non-recursively at sess.WorkspaceRoot, hashes each, and persists the
// snapshot alongside the session's current progress_snapshot.
func (m *Manager) Create(sess model.Session, label, sessionState string) (*model.Checkpoint, error) {
	hashes, err := hashTopLevel(sess.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	cp := model.Checkpoint{
		ID:            uuid.NewString(),
		SessionID:     sess.ID,
		Label:         label,
		SessionState:  sessionState,
		FileHashes:    hashes,
		WorkspaceRoot: sess.WorkspaceRoot,
		ProgressSteps: sess.ProgressSteps,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.CreateCheckpoint(cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Restore implements restore_checkpoint (§4.12): rehashes the workspace's
// current top-level files and classifies each difference against the
// checkpoint's recorded hashes. It never mutates the workspace.
func (m *Manager) Restore(id string) (*model.Checkpoint, []model.DivergenceEntry, error) {
	cp, err := m.store.GetCheckpoint(id)
	if err != nil {
		return nil, nil, err
	}
	if cp == nil {
		return nil, nil, errs.New(errs.NotFound, "checkpoint not found")
	}

	current, err := hashTopLevel(cp.WorkspaceRoot)
	if err != nil {
		return nil, nil, err
	}

	var diffs []model.DivergenceEntry
	for path, oldHash := range cp.FileHashes {
		newHash, stillExists := current[path]
		switch {
		case !stillExists:
			diffs = append(diffs, model.DivergenceEntry{Path: path, Kind: model.DivergenceDeleted})
		case newHash != oldHash:
			diffs = append(diffs, model.DivergenceEntry{Path: path, Kind: model.DivergenceModified})
		}
	}
	for path := range current {
		if _, existed := cp.FileHashes[path]; !existed {
			diffs = append(diffs, model.DivergenceEntry{Path: path, Kind: model.DivergenceAdded})
		}
	}

	return cp, diffs, nil
}

// hashTopLevel hashes every regular file directly under root, without
// descending into subdirectories (§4.12 "non-recursively").
func hashTopLevel(root string) (map[string]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errs.Wrap(errs.Diff, "cannot list workspace root", err)
	}

	hashes := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		sum, err := hasher.Hash(path)
		if err != nil {
			return nil, err
		}
		hashes[entry.Name()] = sum
	}
	return hashes, nil
}
