package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

// CreateSession persists a new Session, which must already have id, owner,
// workspace root, status and mode set by the caller (C9).
func (s *Store) CreateSession(sess model.Session) error {
	snapshot, err := marshalSteps(sess.ProgressSteps)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot marshal progress snapshot", err)
	}
	_, err = s.Exec(`
		INSERT INTO session (id, owner_id, workspace_root, status, mode, prompt, created_at, updated_at, terminated_at, last_tool, nudge_count, stall_paused, progress_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.OwnerID, sess.WorkspaceRoot, string(sess.Status), string(sess.Mode), emptyToNull(sess.Prompt),
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt), formatTimePtr(sess.TerminatedAt), emptyToNull(sess.LastTool),
		sess.NudgeCount, boolToInt(sess.StallPaused), snapshot)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot insert session", err)
	}
	return nil
}

const sessionColumns = `id, owner_id, workspace_root, status, mode, prompt, created_at, updated_at, terminated_at, last_tool, nudge_count, stall_paused, progress_snapshot`

// GetSession fetches a session by id, or nil if it does not exist.
func (s *Store) GetSession(id string) (*model.Session, error) {
	return SelectOne(s, `SELECT `+sessionColumns+` FROM session WHERE id = ?`, []any{id}, scanSessionRow)
}

// MostRecentActiveByOwner returns the most-recently-updated Active session
// owned by ownerID, or nil if none exists.
func (s *Store) MostRecentActiveByOwner(ownerID string) (*model.Session, error) {
	return SelectOne(s, `
		SELECT `+sessionColumns+` FROM session WHERE owner_id = ? AND status = 'active'
		ORDER BY updated_at DESC LIMIT 1
	`, []any{ownerID}, scanSessionRow)
}

// ActiveSessionsByOwner lists every session in {Created, Active, Paused}
// owned by ownerID, used by the session slash commands and the primary
// agent's stale-session cleanup.
func (s *Store) ActiveSessionsByOwner(ownerID string) ([]model.Session, error) {
	return Select(s, `
		SELECT `+sessionColumns+` FROM session WHERE owner_id = ? AND status IN ('created','active','paused')
	`, []any{ownerID}, scanSessionRowValue)
}

// CountLiveSessions returns the total number of sessions in {Created,
// Active, Paused}, used to enforce max_concurrent_sessions globally.
func (s *Store) CountLiveSessions() (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM session WHERE status IN ('created','active','paused')`).Scan(&n)
	if err != nil {
		return 0, errs.Wrap(errs.Persistence, "cannot count live sessions", err)
	}
	return n, nil
}

// ActiveSessions lists every session with status == Active regardless of
// owner, used by ping{} to enforce its "exactly one active session" rule
// (§4.7.9).
func (s *Store) ActiveSessions() ([]model.Session, error) {
	return Select(s, `SELECT `+sessionColumns+` FROM session WHERE status = 'active'`, nil, scanSessionRowValue)
}

// LiveSessions lists every session in {Created, Active, Paused} regardless
// of owner, used by the IPC list{} command (§4.9).
func (s *Store) LiveSessions() ([]model.Session, error) {
	return Select(s, `
		SELECT `+sessionColumns+` FROM session WHERE status IN ('created','active','paused')
		ORDER BY updated_at DESC
	`, nil, scanSessionRowValue)
}

// InterruptedSessions lists every session with status == Interrupted, used
// by the startup recovery scan (§4.11).
func (s *Store) InterruptedSessions() ([]model.Session, error) {
	return Select(s, `SELECT `+sessionColumns+` FROM session WHERE status = 'interrupted'`, nil, scanSessionRowValue)
}

// MostRecentInterruptedByOwner finds the most-recently-updated Interrupted
// session owned by ownerID, for reboot{} with no session_id given.
func (s *Store) MostRecentInterruptedByOwner(ownerID string) (*model.Session, error) {
	return SelectOne(s, `
		SELECT `+sessionColumns+` FROM session WHERE owner_id = ? AND status = 'interrupted'
		ORDER BY updated_at DESC LIMIT 1
	`, []any{ownerID}, scanSessionRow)
}

// UpdateSessionStatus transitions status and, when terminal, stamps
// terminated_at; always bumps updated_at.
func (s *Store) UpdateSessionStatus(id string, status model.SessionStatus, now time.Time) error {
	var terminatedAt any
	if status.Terminal() {
		terminatedAt = formatTime(now)
	}
	_, err := s.Exec(`UPDATE session SET status = ?, terminated_at = ?, updated_at = ? WHERE id = ?`,
		string(status), terminatedAt, formatTime(now), id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot update session status", err)
	}
	return nil
}

// UpdateSessionMode persists a switch_freq change.
func (s *Store) UpdateSessionMode(id string, mode model.SessionMode, now time.Time) error {
	_, err := s.Exec(`UPDATE session SET mode = ?, updated_at = ? WHERE id = ?`, string(mode), formatTime(now), id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot update session mode", err)
	}
	return nil
}

// TouchSession updates last_tool, updated_at and, if steps is non-nil,
// replaces progress_snapshot; a nil steps preserves the existing snapshot
// (§3: "preserves on heartbeat without one").
func (s *Store) TouchSession(id, lastTool string, steps []model.ProgressStep, now time.Time) error {
	if steps == nil {
		_, err := s.Exec(`UPDATE session SET last_tool = ?, updated_at = ? WHERE id = ?`, emptyToNull(lastTool), formatTime(now), id)
		if err != nil {
			return errs.Wrap(errs.Persistence, "cannot touch session", err)
		}
		return nil
	}
	snapshot, err := marshalSteps(steps)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot marshal progress snapshot", err)
	}
	_, err = s.Exec(`UPDATE session SET last_tool = ?, updated_at = ?, progress_snapshot = ? WHERE id = ?`,
		emptyToNull(lastTool), formatTime(now), snapshot, id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot touch session", err)
	}
	return nil
}

// IncrementNudgeCount bumps the session's nudge counter by delta.
func (s *Store) IncrementNudgeCount(id string, delta int, now time.Time) error {
	_, err := s.Exec(`UPDATE session SET nudge_count = nudge_count + ?, updated_at = ? WHERE id = ?`, delta, formatTime(now), id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot increment nudge count", err)
	}
	return nil
}

// SetStallPaused flips the stall_paused flag.
func (s *Store) SetStallPaused(id string, paused bool, now time.Time) error {
	_, err := s.Exec(`UPDATE session SET stall_paused = ?, updated_at = ? WHERE id = ?`, boolToInt(paused), formatTime(now), id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot set stall_paused", err)
	}
	return nil
}

func scanSessionRow(row *sql.Row) (model.Session, error) {
	return scanSession(row)
}

func scanSessionRowValue(rows *sql.Rows) (model.Session, error) {
	return scanSession(rows)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (model.Session, error) {
	var sess model.Session
	var status, mode, prompt, terminatedAt, lastTool, snapshot sql.NullString
	var createdAt, updatedAt string
	var stallPaused int

	err := row.Scan(&sess.ID, &sess.OwnerID, &sess.WorkspaceRoot, &status, &mode, &prompt,
		&createdAt, &updatedAt, &terminatedAt, &lastTool, &sess.NudgeCount, &stallPaused, &snapshot)
	if err != nil {
		return sess, err
	}

	sess.Status = model.SessionStatus(status.String)
	sess.Mode = model.SessionMode(mode.String)
	sess.Prompt = prompt.String
	sess.LastTool = lastTool.String
	sess.StallPaused = stallPaused != 0

	sess.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return sess, err
	}
	sess.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return sess, err
	}
	if terminatedAt.Valid {
		t, err := parseTime(terminatedAt.String)
		if err != nil {
			return sess, err
		}
		sess.TerminatedAt = &t
	}
	if snapshot.Valid && snapshot.String != "" {
		if err := json.Unmarshal([]byte(snapshot.String), &sess.ProgressSteps); err != nil {
			return sess, err
		}
	}
	return sess, nil
}

func marshalSteps(steps []model.ProgressStep) (any, error) {
	if steps == nil {
		return nil, nil
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalSteps(raw string, dest *[]model.ProgressStep) error {
	return json.Unmarshal([]byte(raw), dest)
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
