package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/softwaresalt/agent-intercom/internal/chat"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

// StartupSummary reports what the recovery scan found on boot (§4.11):
// the server never auto-resumes an interrupted session, it only surfaces
// what is waiting for an operator.
type StartupSummary struct {
	InterruptedSessions int
	PendingApprovals    int
	PendingPrompts      int
}

// RecoverOnStartup runs the startup recovery scan: count what a previous
// process left behind and announce it, without touching any of it. Nothing
// is resumed here; an agent finds its interrupted work through reboot{}.
func (d *Daemon) RecoverOnStartup(ctx context.Context) (StartupSummary, error) {
	interrupted, err := d.Store.InterruptedSessions()
	if err != nil {
		return StartupSummary{}, err
	}
	approvals, err := d.Store.CountPendingApprovals()
	if err != nil {
		return StartupSummary{}, err
	}
	prompts, err := d.Store.CountPendingPrompts()
	if err != nil {
		return StartupSummary{}, err
	}

	summary := StartupSummary{
		InterruptedSessions: len(interrupted),
		PendingApprovals:    approvals,
		PendingPrompts:      prompts,
	}

	text := fmt.Sprintf("Server restarted. %d interrupted session(s) with %d pending approval(s), %d pending prompt(s).",
		summary.InterruptedSessions, summary.PendingApprovals, summary.PendingPrompts)
	d.log.Info().
		Int("interrupted_sessions", summary.InterruptedSessions).
		Int("pending_approvals", summary.PendingApprovals).
		Int("pending_prompts", summary.PendingPrompts).
		Msg("startup recovery scan")
	if d.Chat != nil {
		d.Chat.Enqueue(chat.OutboundMessage{Text: text})
	}

	return summary, nil
}

// Shutdown runs the graceful shutdown sequence (§4.11): stop background
// work, mark every outstanding record interrupted so the next startup scan
// sees it, announce the tally, then drain the outbound queue and drop every
// spawned child before the process exits.
func (d *Daemon) Shutdown(ctx context.Context) error {
	if d.Detectors != nil {
		d.Detectors.StopAll()
	}

	interruptedApprovals, err := d.Store.InterruptPendingApprovals()
	if err != nil {
		d.log.Warn().Err(err).Msg("cannot interrupt pending approvals")
	}
	interruptedPrompts, err := d.Store.InterruptPendingPrompts()
	if err != nil {
		d.log.Warn().Err(err).Msg("cannot interrupt pending prompts")
	}

	live, err := d.Store.LiveSessions()
	if err != nil {
		d.log.Warn().Err(err).Msg("cannot list live sessions for shutdown")
	}
	interruptedSessions := 0
	for _, sess := range live {
		if sess.Status == model.SessionTerminated {
			continue
		}
		if err := d.Store.UpdateSessionStatus(sess.ID, model.SessionInterrupted, time.Now().UTC()); err != nil {
			d.log.Warn().Err(err).Str("session_id", sess.ID).Msg("cannot mark session interrupted")
			continue
		}
		interruptedSessions++
	}

	d.Registry.DropAll()

	text := fmt.Sprintf("Server shutting down. %d session(s), %d approval(s), %d prompt(s) interrupted.",
		interruptedSessions, interruptedApprovals, interruptedPrompts)
	d.log.Info().
		Int("interrupted_sessions", interruptedSessions).
		Int64("interrupted_approvals", interruptedApprovals).
		Int64("interrupted_prompts", interruptedPrompts).
		Msg("graceful shutdown")
	if d.Chat != nil {
		d.Chat.Enqueue(chat.OutboundMessage{Text: text})
		// give the outbound worker a window to flush this last message
		// before the transport is torn down.
		time.Sleep(500 * time.Millisecond)
	}

	d.Sessions.DropAllChildren()
	return nil
}
