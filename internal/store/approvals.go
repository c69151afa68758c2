package store

import (
	"database/sql"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

const approvalColumns = `id, session_id, title, description, diff_content, file_path, risk_level, status, original_hash, external_ref, created_at, consumed_at`

// CreateApproval inserts a new Pending approval. The caller is responsible
// for having already checked the "at most one Pending per session" invariant
// within the same transaction scope as the check.
func (s *Store) CreateApproval(a model.ApprovalRequest) error {
	_, err := s.Exec(`
		INSERT INTO approval (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.SessionID, a.Title, emptyToNull(a.Description), a.DiffContent, a.FilePath, string(a.RiskLevel),
		string(a.Status), a.OriginalHash, emptyToNull(a.ExternalRef), formatTime(a.CreatedAt), formatTimePtr(a.ConsumedAt))
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot insert approval", err)
	}
	return nil
}

// GetApproval fetches an approval by id, or nil if it does not exist.
func (s *Store) GetApproval(id string) (*model.ApprovalRequest, error) {
	return SelectOne(s, `SELECT `+approvalColumns+` FROM approval WHERE id = ?`, []any{id}, scanApprovalRow)
}

// PendingApprovalForSession returns the session's Pending approval, if any,
// enforcing the "at most one Pending approval per session" invariant.
func (s *Store) PendingApprovalForSession(sessionID string) (*model.ApprovalRequest, error) {
	return SelectOne(s, `SELECT `+approvalColumns+` FROM approval WHERE session_id = ? AND status = 'pending'`,
		[]any{sessionID}, scanApprovalRow)
}

// PendingApprovalsForSession lists all Pending approvals for a session, used
// by reboot{} and the startup recovery summary.
func (s *Store) PendingApprovalsForSession(sessionID string) ([]model.ApprovalRequest, error) {
	return Select(s, `SELECT `+approvalColumns+` FROM approval WHERE session_id = ? AND status = 'pending'`,
		[]any{sessionID}, scanApprovalRowValue)
}

// PendingApprovals lists every Pending approval across all sessions, used
// by the IPC list{} command (§4.9).
func (s *Store) PendingApprovals() ([]model.ApprovalRequest, error) {
	return Select(s, `SELECT `+approvalColumns+` FROM approval WHERE status = 'pending' ORDER BY created_at`,
		nil, scanApprovalRowValue)
}

// CountPendingApprovals counts every Pending approval across all sessions,
// used by the startup recovery summary.
func (s *Store) CountPendingApprovals() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM approval WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.Persistence, "cannot count pending approvals", err)
	}
	return n, nil
}

// UpdateApprovalStatus transitions an approval's status, validating the
// transition against the closed state machine before writing.
func (s *Store) UpdateApprovalStatus(id string, next model.ApprovalStatus) error {
	existing, err := s.GetApproval(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.New(errs.NotFound, "approval not found")
	}
	if !existing.Status.CanTransitionTo(next) {
		return errs.New(errs.AlreadyConsumed, "approval is not in a state that permits this transition")
	}
	_, err = s.Exec(`UPDATE approval SET status = ? WHERE id = ?`, string(next), id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot update approval status", err)
	}
	return nil
}

// ConsumeApproval transitions Approved → Consumed and stamps consumed_at.
// Idempotent in effect: a second call on an already-Consumed record fails
// with AlreadyConsumed rather than writing again.
func (s *Store) ConsumeApproval(id string, consumedAt string) error {
	existing, err := s.GetApproval(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.New(errs.NotFound, "approval not found")
	}
	if existing.Status == model.ApprovalConsumed {
		return errs.New(errs.AlreadyConsumed, "approval already consumed")
	}
	if !existing.Status.CanTransitionTo(model.ApprovalConsumed) {
		return errs.New(errs.AlreadyConsumed, "approval is not approved")
	}
	_, err = s.Exec(`UPDATE approval SET status = 'consumed', consumed_at = ? WHERE id = ?`, consumedAt, id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot consume approval", err)
	}
	return nil
}

// InterruptPendingApprovals transitions every Pending approval to
// Interrupted, used on graceful shutdown.
func (s *Store) InterruptPendingApprovals() (int64, error) {
	res, err := s.Exec(`UPDATE approval SET status = 'interrupted' WHERE status = 'pending'`)
	if err != nil {
		return 0, errs.Wrap(errs.Persistence, "cannot interrupt pending approvals", err)
	}
	return res.RowsAffected()
}

// ExpireApproval transitions a single Pending approval to Expired, used on
// check_clearance timeout.
func (s *Store) ExpireApproval(id string) error {
	_, err := s.Exec(`UPDATE approval SET status = 'expired' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot expire approval", err)
	}
	return nil
}

// DeleteApprovalsForSession removes every approval owned by a session, used
// by the retention purge (children-before-parent order).
func (s *Store) DeleteApprovalsForSession(sessionID string) error {
	_, err := s.Exec(`DELETE FROM approval WHERE session_id = ?`, sessionID)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot delete approvals", err)
	}
	return nil
}

func scanApprovalRow(row *sql.Row) (model.ApprovalRequest, error) {
	return scanApproval(row)
}

func scanApprovalRowValue(rows *sql.Rows) (model.ApprovalRequest, error) {
	return scanApproval(rows)
}

func scanApproval(row scannable) (model.ApprovalRequest, error) {
	var a model.ApprovalRequest
	var description, externalRef, consumedAt sql.NullString
	var riskLevel, status, createdAt string

	err := row.Scan(&a.ID, &a.SessionID, &a.Title, &description, &a.DiffContent, &a.FilePath, &riskLevel,
		&status, &a.OriginalHash, &externalRef, &createdAt, &consumedAt)
	if err != nil {
		return a, err
	}

	a.RiskLevel = model.RiskLevel(riskLevel)
	a.Status = model.ApprovalStatus(status)
	a.Description = description.String
	a.ExternalRef = externalRef.String

	a.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return a, err
	}
	if consumedAt.Valid {
		t, err := parseTime(consumedAt.String)
		if err != nil {
			return a, err
		}
		a.ConsumedAt = &t
	}
	return a, nil
}
