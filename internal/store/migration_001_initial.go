package store

import "database/sql"

func init() {
	registerMigration(migration{
		Version:     1,
		Description: "initial schema for sessions, approvals, prompts, checkpoints, stall alerts",
		Up:          migration001Initial,
	})
}

func migration001Initial(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`
		CREATE TABLE session (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			workspace_root TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('created','active','paused','terminated','interrupted')),
			mode TEXT NOT NULL CHECK (mode IN ('remote','local','hybrid')),
			prompt TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			terminated_at TEXT,
			last_tool TEXT,
			nudge_count INTEGER NOT NULL DEFAULT 0,
			stall_paused INTEGER NOT NULL DEFAULT 0,
			progress_snapshot TEXT
		);
		CREATE INDEX idx_session_owner ON session(owner_id);
		CREATE INDEX idx_session_status ON session(status);
	`); err != nil {
		return err
	}

	if _, err = tx.Exec(`
		CREATE TABLE approval (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES session(id),
			title TEXT NOT NULL,
			description TEXT,
			diff_content TEXT NOT NULL,
			file_path TEXT NOT NULL,
			risk_level TEXT NOT NULL CHECK (risk_level IN ('low','high','critical')),
			status TEXT NOT NULL CHECK (status IN ('pending','approved','rejected','expired','consumed','interrupted')),
			original_hash TEXT NOT NULL,
			external_ref TEXT,
			created_at TEXT NOT NULL,
			consumed_at TEXT
		);
		CREATE INDEX idx_approval_session ON approval(session_id);
	`); err != nil {
		return err
	}

	if _, err = tx.Exec(`
		CREATE TABLE prompt (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES session(id),
			prompt_text TEXT NOT NULL,
			prompt_type TEXT NOT NULL CHECK (prompt_type IN ('continuation','clarification','error_recovery','resource_warning')),
			elapsed_seconds INTEGER,
			actions_taken TEXT,
			decision TEXT CHECK (decision IN ('continue','refine','stop')),
			instruction TEXT,
			external_ref TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX idx_prompt_session ON prompt(session_id);
	`); err != nil {
		return err
	}

	if _, err = tx.Exec(`
		CREATE TABLE checkpoint (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES session(id),
			label TEXT,
			session_state TEXT NOT NULL,
			file_hashes TEXT NOT NULL,
			workspace_root TEXT NOT NULL,
			progress_snapshot TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX idx_checkpoint_session ON checkpoint(session_id);
	`); err != nil {
		return err
	}

	if _, err = tx.Exec(`
		CREATE TABLE stall_alert (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES session(id),
			last_tool TEXT,
			last_activity_at TEXT NOT NULL,
			idle_seconds INTEGER NOT NULL,
			nudge_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK (status IN ('pending','nudged','self_recovered','escalated','dismissed')),
			nudge_message TEXT,
			progress_snapshot TEXT,
			external_ref TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX idx_stall_session ON stall_alert(session_id);
	`); err != nil {
		return err
	}

	return tx.Commit()
}
