package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// outboundCapacity bounds the send queue (§4.8); once full, Enqueue drops
// the oldest unsent message and logs the loss rather than blocking callers.
const outboundCapacity = 256

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 30 * time.Second
	maxAttempts    = 5
)

// PostResult is delivered on OutboundMessage.Result, if set, once the
// message has been posted (or permanently failed).
type PostResult struct {
	Timestamp string
	Err       error
}

// OutboundMessage is one unit of outbound work: either a new post (Blocks
// optional) or, when UpdateTS is non-empty, an update to an existing
// message (used to rewrite controls after an interaction is handled). When
// FileContent is set, Text/Blocks travel as the file's initial comment and
// the payload is uploaded as an attachment instead of a plain post (§4.7.1
// step 4's "file attachment" rendering for diffs too large to inline).
type OutboundMessage struct {
	Text     string
	Blocks   []slack.Block
	UpdateTS string
	Result   chan<- PostResult

	FileContent []byte
	FileName    string
	FileTitle   string
}

type outboundQueue struct {
	api       *slack.Client
	channelID string
	log       zerolog.Logger
	items     chan OutboundMessage
}

func newOutboundQueue(api *slack.Client, channelID string, logger zerolog.Logger) *outboundQueue {
	return &outboundQueue{
		api:       api,
		channelID: channelID,
		log:       logger,
		items:     make(chan OutboundMessage, outboundCapacity),
	}
}

func (q *outboundQueue) enqueue(msg OutboundMessage) {
	select {
	case q.items <- msg:
	default:
		q.log.Warn().Msg("outbound queue full, dropping oldest pending message")
		select {
		case <-q.items:
		default:
		}
		select {
		case q.items <- msg:
		default:
		}
	}
}

func (q *outboundQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.items:
			q.deliver(ctx, msg)
		}
	}
}

func (q *outboundQueue) deliver(ctx context.Context, msg OutboundMessage) {
	delay := backoffInitial
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ts, err := q.send(msg)
		if err == nil {
			if msg.Result != nil {
				msg.Result <- PostResult{Timestamp: ts}
			}
			return
		}
		lastErr = err

		wait := delay
		if rl, ok := err.(*slack.RateLimitedError); ok {
			wait = rl.RetryAfter
		}

		q.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).
			Msg("slack send failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		delay *= 2
		if delay > backoffMax {
			delay = backoffMax
		}
	}

	q.log.Error().Err(lastErr).Msg("slack send exhausted retries, dropping message")
	if msg.Result != nil {
		msg.Result <- PostResult{Err: lastErr}
	}
}

func (q *outboundQueue) send(msg OutboundMessage) (string, error) {
	if len(msg.FileContent) > 0 {
		return q.sendFile(msg)
	}

	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(msg.Blocks...))
	}

	if msg.UpdateTS != "" {
		_, ts, _, err := q.api.UpdateMessage(q.channelID, msg.UpdateTS, opts...)
		return ts, err
	}

	_, ts, err := q.api.PostMessage(q.channelID, opts...)
	return ts, err
}

// sendFile uploads the diff as a file attachment with the card text as its
// initial comment, then posts the control buttons as a follow-up message
// referencing the same channel so Accept/Reject remain available.
func (q *outboundQueue) sendFile(msg OutboundMessage) (string, error) {
	summary, err := q.api.UploadFileV2(slack.UploadFileV2Parameters{
		Channel:        q.channelID,
		Filename:       msg.FileName,
		Title:          msg.FileTitle,
		FileSize:       len(msg.FileContent),
		Content:        string(msg.FileContent),
		InitialComment: msg.Text,
	})
	if err != nil {
		return "", err
	}

	if len(msg.Blocks) == 0 {
		return summary.ID, nil
	}

	_, ts, err := q.api.PostMessage(q.channelID, slack.MsgOptionBlocks(msg.Blocks...))
	if err != nil {
		return "", err
	}
	return ts, nil
}
