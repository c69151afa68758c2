package store

import (
	"database/sql"
	"encoding/json"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

const checkpointColumns = `id, session_id, label, session_state, file_hashes, workspace_root, progress_snapshot, created_at`

// CreateCheckpoint persists a workspace snapshot.
func (s *Store) CreateCheckpoint(c model.Checkpoint) error {
	hashes, err := json.Marshal(c.FileHashes)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot marshal file hashes", err)
	}
	snapshot, err := marshalSteps(c.ProgressSteps)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot marshal progress snapshot", err)
	}
	_, err = s.Exec(`
		INSERT INTO checkpoint (`+checkpointColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.SessionID, emptyToNull(c.Label), c.SessionState, string(hashes), c.WorkspaceRoot, snapshot, formatTime(c.CreatedAt))
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot insert checkpoint", err)
	}
	return nil
}

// GetCheckpoint fetches a checkpoint by id, or nil if it does not exist.
func (s *Store) GetCheckpoint(id string) (*model.Checkpoint, error) {
	return SelectOne(s, `SELECT `+checkpointColumns+` FROM checkpoint WHERE id = ?`, []any{id}, scanCheckpointRow)
}

// CheckpointsForSession lists every checkpoint for a session, most recent
// first, used by the session-checkpoints slash command.
func (s *Store) CheckpointsForSession(sessionID string) ([]model.Checkpoint, error) {
	return Select(s, `
		SELECT `+checkpointColumns+` FROM checkpoint WHERE session_id = ? ORDER BY created_at DESC
	`, []any{sessionID}, scanCheckpointRowValue)
}

// DeleteCheckpointsForSession removes every checkpoint owned by a session,
// used by the retention purge.
func (s *Store) DeleteCheckpointsForSession(sessionID string) error {
	_, err := s.Exec(`DELETE FROM checkpoint WHERE session_id = ?`, sessionID)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot delete checkpoints", err)
	}
	return nil
}

func scanCheckpointRow(row *sql.Row) (model.Checkpoint, error) {
	return scanCheckpoint(row)
}

func scanCheckpointRowValue(rows *sql.Rows) (model.Checkpoint, error) {
	return scanCheckpoint(rows)
}

func scanCheckpoint(row scannable) (model.Checkpoint, error) {
	var c model.Checkpoint
	var label, snapshot sql.NullString
	var hashes, createdAt string

	err := row.Scan(&c.ID, &c.SessionID, &label, &c.SessionState, &hashes, &c.WorkspaceRoot, &snapshot, &createdAt)
	if err != nil {
		return c, err
	}

	c.Label = label.String
	if err := json.Unmarshal([]byte(hashes), &c.FileHashes); err != nil {
		return c, err
	}
	if snapshot.Valid && snapshot.String != "" {
		if err := json.Unmarshal([]byte(snapshot.String), &c.ProgressSteps); err != nil {
			return c, err
		}
	}
	c.CreatedAt, err = parseTime(createdAt)
	return c, err
}
