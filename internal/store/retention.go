package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwaresalt/agent-intercom/internal/errs"
)

// RunRetentionPurge runs the hourly purge task until ctx is cancelled.
// Cutoff = now - retentionDays; for every session terminated before the
// cutoff, child records are deleted before the session itself, and active
// sessions are never touched.
func (s *Store) RunRetentionPurge(ctx context.Context, retentionDays int, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	s.purgeOnce(retentionDays, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeOnce(retentionDays, logger)
		}
	}
}

func (s *Store) purgeOnce(retentionDays int, logger zerolog.Logger) {
	cutoff := time.Now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	sessions, err := s.sessionsTerminatedBefore(cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("retention purge: cannot list terminated sessions")
		return
	}

	for _, id := range sessions {
		if err := s.purgeSession(id); err != nil {
			logger.Error().Err(err).Str("session_id", id).Msg("retention purge: cannot purge session")
			continue
		}
		logger.Info().Str("session_id", id).Msg("retention purge: session purged")
	}
}

func (s *Store) sessionsTerminatedBefore(cutoff time.Time) ([]string, error) {
	rows, err := s.conn.Query(`SELECT id FROM session WHERE terminated_at IS NOT NULL AND terminated_at < ?`, formatTime(cutoff))
	if err != nil {
		return nil, errs.Wrap(errs.Persistence, "cannot query terminated sessions", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// purgeSession deletes a session's children then the session itself, in the
// order stall alerts → checkpoints → prompts → approvals → session.
func (s *Store) purgeSession(sessionID string) error {
	if err := s.DeleteStallAlertsForSession(sessionID); err != nil {
		return err
	}
	if err := s.DeleteCheckpointsForSession(sessionID); err != nil {
		return err
	}
	if err := s.DeletePromptsForSession(sessionID); err != nil {
		return err
	}
	if err := s.DeleteApprovalsForSession(sessionID); err != nil {
		return err
	}
	if _, err := s.Exec(`DELETE FROM session WHERE id = ?`, sessionID); err != nil {
		return errs.Wrap(errs.Persistence, "cannot delete session", err)
	}
	return nil
}
