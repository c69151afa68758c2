package daemon

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/softwaresalt/agent-intercom/internal/chat"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/stall"
)

// handleStallEvent translates one stall.Event into persistence updates and,
// when the owning session delivers to chat, an operator-facing card (§4.5).
func (d *Daemon) handleStallEvent(ev stall.Event) {
	switch ev.Kind {
	case stall.EventStalled:
		d.onStalled(ev)
	case stall.EventAutoNudge:
		d.onAutoNudge(ev)
	case stall.EventEscalated:
		d.onEscalated(ev)
	case stall.EventSelfRecovered:
		d.onSelfRecovered(ev)
	}
}

func (d *Daemon) onStalled(ev stall.Event) {
	sess, err := d.Store.GetSession(ev.SessionID)
	if err != nil || sess == nil {
		d.log.Warn().Err(err).Str("session_id", ev.SessionID).Msg("stalled event for unknown session")
		return
	}
	if sess.StallPaused {
		return
	}

	alert := model.StallAlert{
		ID:             uuid.NewString(),
		SessionID:      sess.ID,
		LastTool:       sess.LastTool,
		LastActivityAt: time.Now().UTC(),
		IdleSeconds:    ev.IdleSeconds,
		Status:         model.StallPending,
		ProgressSteps:  sess.ProgressSteps,
		CreatedAt:      time.Now().UTC(),
	}
	if err := d.Store.CreateStallAlert(alert); err != nil {
		d.log.Warn().Err(err).Str("session_id", sess.ID).Msg("cannot persist stall alert")
		return
	}

	if deliversToChat(sess.Mode) && d.Chat != nil {
		text, blocks := chat.RenderStall(alert.ID, sess.ID, ev.IdleSeconds, 0)
		d.Chat.Enqueue(chat.OutboundMessage{Text: text, Blocks: blocks})
	}
}

func (d *Daemon) onAutoNudge(ev stall.Event) {
	sess, err := d.Store.GetSession(ev.SessionID)
	if err != nil || sess == nil {
		return
	}
	alert, err := d.Store.OpenStallAlertForSession(sess.ID)
	if err != nil || alert == nil {
		return
	}
	if err := d.Store.UpdateStallStatus(alert.ID, model.StallNudged, ev.NudgeCount); err != nil {
		d.log.Warn().Err(err).Str("session_id", sess.ID).Msg("cannot update stall alert for auto nudge")
	}
	if err := d.Store.IncrementNudgeCount(sess.ID, 1, time.Now().UTC()); err != nil {
		d.log.Warn().Err(err).Str("session_id", sess.ID).Msg("cannot increment nudge count")
	}

	if deliversToChat(sess.Mode) && d.Chat != nil {
		text, blocks := chat.RenderStall(alert.ID, sess.ID, alert.IdleSeconds, ev.NudgeCount)
		d.Chat.Enqueue(chat.OutboundMessage{Text: text, Blocks: blocks})
	}
}

func (d *Daemon) onEscalated(ev stall.Event) {
	sess, err := d.Store.GetSession(ev.SessionID)
	if err != nil || sess == nil {
		return
	}
	alert, err := d.Store.OpenStallAlertForSession(sess.ID)
	if err != nil || alert == nil {
		return
	}
	if err := d.Store.UpdateStallStatus(alert.ID, model.StallEscalated, ev.NudgeCount); err != nil {
		d.log.Warn().Err(err).Str("session_id", sess.ID).Msg("cannot escalate stall alert")
	}

	if deliversToChat(sess.Mode) && d.Chat != nil {
		d.Chat.Enqueue(chat.OutboundMessage{
			Text: "Session " + sess.ID + " escalated after " + strconv.Itoa(ev.NudgeCount) + " unanswered nudges.",
		})
	}
}

func (d *Daemon) onSelfRecovered(ev stall.Event) {
	sess, err := d.Store.GetSession(ev.SessionID)
	if err != nil || sess == nil {
		return
	}
	alert, err := d.Store.OpenStallAlertForSession(sess.ID)
	if err != nil || alert == nil {
		return
	}
	if err := d.Store.UpdateStallStatus(alert.ID, model.StallSelfRecovered, alert.NudgeCount); err != nil {
		d.log.Warn().Err(err).Str("session_id", sess.ID).Msg("cannot mark stall alert self-recovered")
	}
}

func deliversToChat(mode model.SessionMode) bool {
	return mode == model.ModeRemote || mode == model.ModeHybrid
}
