// Package chat implements C7: the Slack-backed chat adapter. It renders
// approval/prompt/standby/stall messages with interactive controls,
// dispatches operator button and modal events through an authorization and
// ownership guard chain, and maintains a rate-limited outbound send queue.
//
// The adapter is deliberately decoupled from storage and the pending-call
// registry: it talks to the rest of the daemon only through the Handler and
// Authorizer interfaces supplied at construction, which the lifecycle
// controller wires to the real session/registry/store implementations.
package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// Handler resolves operator interactions dispatched through the guard
// chain onto the rest of the daemon (registry resolution, persistence
// updates). Implemented by the lifecycle wiring layer.
type Handler interface {
	HandleApproval(ctx context.Context, userID, requestID string, accept bool) (message string, err error)
	HandlePrompt(ctx context.Context, userID, promptID, decision, instruction string) (message string, err error)
	HandleStall(ctx context.Context, userID, alertID, action, instruction string) (message string, err error)
	HandleWait(ctx context.Context, userID, sessionID, action, instruction string) (message string, err error)
	HandleSlashCommand(ctx context.Context, userID, command, args string) (message string, err error)
}

// Authorizer answers the guard chain's authorization check. Ownership
// (does this operator own the session backing a given record) is enforced
// inside the Handler implementation, which has the store access needed to
// resolve a record id to its owning session; the chat package intentionally
// has none.
type Authorizer interface {
	// IsAuthorized reports whether userID is in the configured operator list.
	IsAuthorized(userID string) bool
}

// Config configures the adapter's identity and target channel.
type Config struct {
	AppToken  string
	BotToken  string
	ChannelID string
}

// Adapter is the running Slack connection plus outbound queue.
type Adapter struct {
	cfg     Config
	api     *slack.Client
	client  *socketmode.Client
	handler Handler
	authz   Authorizer
	log     zerolog.Logger

	outbound *outboundQueue
	dispatch *dispatcher
}

// New constructs an Adapter. Credentials are expected to already be
// resolved (keyring then environment, per §6) by the caller.
func New(cfg Config, handler Handler, authz Authorizer, logger zerolog.Logger) *Adapter {
	api := slack.New(
		cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	client := socketmode.New(api)

	a := &Adapter{
		cfg:     cfg,
		api:     api,
		client:  client,
		handler: handler,
		authz:   authz,
		log:     logger,
	}
	a.outbound = newOutboundQueue(api, cfg.ChannelID, logger)
	a.dispatch = newDispatcher(handler, authz, logger)
	return a
}

// Run establishes the outbound-initiated Socket Mode connection and
// processes events until ctx is cancelled. There is no inbound port (§4.8).
func (a *Adapter) Run(ctx context.Context) error {
	go a.outbound.run(ctx)

	go func() {
		if err := a.client.RunContext(ctx); err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("slack socket mode connection ended")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-a.client.Events:
			if !ok {
				return nil
			}
			a.handleSocketEvent(ctx, evt)
		}
	}
}

func (a *Adapter) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeInteractive:
		cb, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		a.client.Ack(*evt.Request)
		a.dispatch.handleInteraction(ctx, a, cb)
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		a.client.Ack(*evt.Request)
		a.dispatch.handleSlashCommand(ctx, a, cmd)
	case socketmode.EventTypeConnected:
		a.log.Info().Msg("slack socket mode connected")
		a.onReconnect(ctx)
	}
}

// ReconnectHook lets the lifecycle controller supply the "re-post pending
// approvals and prompts" behavior from §4.8 without the chat package
// depending on store.
type ReconnectHook func(ctx context.Context, a *Adapter)

var reconnectHook ReconnectHook

// SetReconnectHook installs the callback invoked on every reconnect.
func SetReconnectHook(h ReconnectHook) { reconnectHook = h }

func (a *Adapter) onReconnect(ctx context.Context) {
	if reconnectHook != nil {
		reconnectHook(ctx, a)
	}
}

// PostSynchronous sends message immediately, bypassing the outbound queue,
// used by broadcast (§4.7.5). Returns the message timestamp.
func (a *Adapter) PostSynchronous(message string) (string, error) {
	_, ts, err := a.api.PostMessage(a.cfg.ChannelID, slack.MsgOptionText(message, false))
	if err != nil {
		return "", fmt.Errorf("slack: cannot post message: %w", err)
	}
	return ts, nil
}

// RecentMessage is one entry returned by FetchRecent, mirroring the
// slack://channel/{id}/recent resource shape (§6).
type RecentMessage struct {
	Timestamp string `json:"ts"`
	User      string `json:"user"`
	Text      string `json:"text"`
	ThreadTS  string `json:"thread_ts,omitempty"`
}

// ChannelID returns the adapter's configured channel, used to validate the
// slack://channel/{id}/recent resource's id against the session's effective
// channel (§6).
func (a *Adapter) ChannelID() string {
	return a.cfg.ChannelID
}

// FetchRecent returns up to limit of the most recent messages in the
// adapter's channel, newest first, for the slack://channel/{id}/recent
// resource (§6).
func (a *Adapter) FetchRecent(limit int) ([]RecentMessage, bool, error) {
	resp, err := a.api.GetConversationHistory(&slack.GetConversationHistoryParameters{
		ChannelID: a.cfg.ChannelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, false, fmt.Errorf("slack: cannot fetch conversation history: %w", err)
	}

	messages := make([]RecentMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		messages = append(messages, RecentMessage{
			Timestamp: m.Timestamp,
			User:      m.User,
			Text:      m.Text,
			ThreadTS:  m.ThreadTimestamp,
		})
	}
	return messages, resp.HasMore, nil
}

// Enqueue submits message (with optional blocks) to the outbound queue.
func (a *Adapter) Enqueue(msg OutboundMessage) {
	a.outbound.enqueue(msg)
}

// RewriteControls replaces an existing message's interactive blocks with a
// plain "Processing…" text, used by the double-submission guard and by
// timeout handling.
func (a *Adapter) RewriteControls(ts, text string) {
	a.outbound.enqueue(OutboundMessage{
		UpdateTS: ts,
		Text:     text,
	})
}
