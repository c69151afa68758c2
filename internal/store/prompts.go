package store

import (
	"database/sql"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

const promptColumns = `id, session_id, prompt_text, prompt_type, elapsed_seconds, actions_taken, decision, instruction, external_ref, created_at`

// CreatePrompt inserts a new ContinuationPrompt awaiting a decision.
func (s *Store) CreatePrompt(p model.ContinuationPrompt) error {
	_, err := s.Exec(`
		INSERT INTO prompt (`+promptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.SessionID, p.PromptText, string(p.PromptType), p.ElapsedSeconds, emptyToNull(p.ActionsTaken),
		decisionToNull(p.Decision), emptyToNull(p.Instruction), emptyToNull(p.ExternalRef), formatTime(p.CreatedAt))
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot insert prompt", err)
	}
	return nil
}

// GetPrompt fetches a prompt by id, or nil if it does not exist.
func (s *Store) GetPrompt(id string) (*model.ContinuationPrompt, error) {
	return SelectOne(s, `SELECT `+promptColumns+` FROM prompt WHERE id = ?`, []any{id}, scanPromptRow)
}

// PendingPromptsForSession lists every prompt for a session with no decision
// recorded yet, used by reboot{} and the startup recovery summary.
func (s *Store) PendingPromptsForSession(sessionID string) ([]model.ContinuationPrompt, error) {
	return Select(s, `SELECT `+promptColumns+` FROM prompt WHERE session_id = ? AND decision IS NULL`,
		[]any{sessionID}, scanPromptRowValue)
}

// PendingPrompts lists every prompt with no decision recorded yet across
// all sessions, used by the IPC list{} command (§4.9).
func (s *Store) PendingPrompts() ([]model.ContinuationPrompt, error) {
	return Select(s, `SELECT `+promptColumns+` FROM prompt WHERE decision IS NULL ORDER BY created_at`,
		nil, scanPromptRowValue)
}

// CountPendingPrompts counts every prompt with no decision recorded yet,
// used by the startup recovery summary.
func (s *Store) CountPendingPrompts() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM prompt WHERE decision IS NULL`).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.Persistence, "cannot count pending prompts", err)
	}
	return n, nil
}

// RecordDecision stamps a prompt's decision and optional instruction; this
// is the only mutation a ContinuationPrompt ever receives.
func (s *Store) RecordDecision(id string, decision model.PromptDecision, instruction string) error {
	_, err := s.Exec(`UPDATE prompt SET decision = ?, instruction = ? WHERE id = ?`,
		string(decision), emptyToNull(instruction), id)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot record prompt decision", err)
	}
	return nil
}

// InterruptPendingPrompts records Stop as the decision for every
// undecided prompt, used on graceful shutdown.
func (s *Store) InterruptPendingPrompts() (int64, error) {
	res, err := s.Exec(`UPDATE prompt SET decision = 'stop' WHERE decision IS NULL`)
	if err != nil {
		return 0, errs.Wrap(errs.Persistence, "cannot interrupt pending prompts", err)
	}
	return res.RowsAffected()
}

// DeletePromptsForSession removes every prompt owned by a session, used by
// the retention purge.
func (s *Store) DeletePromptsForSession(sessionID string) error {
	_, err := s.Exec(`DELETE FROM prompt WHERE session_id = ?`, sessionID)
	if err != nil {
		return errs.Wrap(errs.Persistence, "cannot delete prompts", err)
	}
	return nil
}

func scanPromptRow(row *sql.Row) (model.ContinuationPrompt, error) {
	return scanPrompt(row)
}

func scanPromptRowValue(rows *sql.Rows) (model.ContinuationPrompt, error) {
	return scanPrompt(rows)
}

func scanPrompt(row scannable) (model.ContinuationPrompt, error) {
	var p model.ContinuationPrompt
	var promptType, createdAt string
	var elapsedSeconds sql.NullInt64
	var actionsTaken, decision, instruction, externalRef sql.NullString

	err := row.Scan(&p.ID, &p.SessionID, &p.PromptText, &promptType, &elapsedSeconds, &actionsTaken,
		&decision, &instruction, &externalRef, &createdAt)
	if err != nil {
		return p, err
	}

	p.PromptType = model.PromptType(promptType)
	p.ElapsedSeconds = int(elapsedSeconds.Int64)
	p.ActionsTaken = actionsTaken.String
	p.Instruction = instruction.String
	p.ExternalRef = externalRef.String
	if decision.Valid {
		d := model.PromptDecision(decision.String)
		p.Decision = &d
	}
	p.CreatedAt, err = parseTime(createdAt)
	return p, err
}

func decisionToNull(d *model.PromptDecision) any {
	if d == nil {
		return nil
	}
	return string(*d)
}
