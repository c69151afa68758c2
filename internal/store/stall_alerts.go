package store

import (
	"database/sql"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

const stallColumns = `id, session_id, last_tool, last_activity_at, idle_seconds, nudge_count, status, nudge_message, progress_snapshot, external_ref, created_at`

// CreateStallAlert inserts a new StallAlert. Callers must first verify the
// "at most one {Pending, Nudged} alert per session" invariant.
func (s *Store) CreateStallAlert(a model.StallAlert) error {
	snapshot, err := marshalSteps(a.ProgressSteps)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot marshal progress snapshot", err)
	}
	_, err = s.Exec(`
		INSERT INTO stall_alert (`+stallColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.SessionID, emptyToNull(a.LastTool), formatTime(a.LastActivityAt), a.IdleSeconds, a.NudgeCount,
		string(a.Status), emptyToNull(a.NudgeMessage), snapshot, emptyToNull(a.ExternalRef), formatTime(a.CreatedAt))
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot insert stall alert", err)
	}
	return nil
}

// GetStallAlert fetches a stall alert by id, or nil if it does not exist,
// used to resolve the session a chat stall-control action belongs to.
func (s *Store) GetStallAlert(id string) (*model.StallAlert, error) {
	return SelectOne(s, `SELECT `+stallColumns+` FROM stall_alert WHERE id = ?`, []any{id}, scanStallRow)
}

// OpenStallAlertForSession returns the session's open (Pending or Nudged)
// stall alert, if any.
func (s *Store) OpenStallAlertForSession(sessionID string) (*model.StallAlert, error) {
	return SelectOne(s, `
		SELECT `+stallColumns+` FROM stall_alert WHERE session_id = ? AND status IN ('pending','nudged')
		ORDER BY created_at DESC LIMIT 1
	`, []any{sessionID}, scanStallRow)
}

// UpdateStallStatus transitions a stall alert's status and nudge count.
func (s *Store) UpdateStallStatus(id string, status model.StallStatus, nudgeCount int) error {
	_, err := s.Exec(`UPDATE stall_alert SET status = ?, nudge_count = ? WHERE id = ?`, string(status), nudgeCount, id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot update stall alert status", err)
	}
	return nil
}

// DeleteStallAlertsForSession removes every stall alert owned by a session,
// used by the retention purge (the first child table deleted per §4.3).
func (s *Store) DeleteStallAlertsForSession(sessionID string) error {
	_, err := s.Exec(`DELETE FROM stall_alert WHERE session_id = ?`, sessionID)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot delete stall alerts", err)
	}
	return nil
}

func scanStallRow(row *sql.Row) (model.StallAlert, error) {
	return scanStall(row)
}

func scanStall(row scannable) (model.StallAlert, error) {
	var a model.StallAlert
	var lastTool, nudgeMessage, snapshot, externalRef sql.NullString
	var status, lastActivityAt, createdAt string

	err := row.Scan(&a.ID, &a.SessionID, &lastTool, &lastActivityAt, &a.IdleSeconds, &a.NudgeCount,
		&status, &nudgeMessage, &snapshot, &externalRef, &createdAt)
	if err != nil {
		return a, err
	}

	a.LastTool = lastTool.String
	a.NudgeMessage = nudgeMessage.String
	a.ExternalRef = externalRef.String
	a.Status = model.StallStatus(status)

	a.LastActivityAt, err = parseTime(lastActivityAt)
	if err != nil {
		return a, err
	}
	if snapshot.Valid && snapshot.String != "" {
		if err := unmarshalSteps(snapshot.String, &a.ProgressSteps); err != nil {
			return a, err
		}
	}
	a.CreatedAt, err = parseTime(createdAt)
	return a, err
}
