// Package registry implements C6: the pending-call registry correlating
// blocked tool calls with out-of-band human responses via one-shot
// channels keyed by record id. This is rendezvous correlation, not a
// distributed lock — on drop, the waiter observes the closed channel and
// applies a handler-specific default (§9).
package registry

import (
	"context"
	"sync"

	"github.com/softwaresalt/agent-intercom/internal/model"
)

// Registry holds the three independent pending maps from §4.6.
type Registry struct {
	mu             sync.Mutex
	pendingApprove map[string]chan model.ApprovalOutcome
	pendingPrompt  map[string]chan model.PromptOutcome
	pendingWait    map[string]chan model.WaitOutcome
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		pendingApprove: make(map[string]chan model.ApprovalOutcome),
		pendingPrompt:  make(map[string]chan model.PromptOutcome),
		pendingWait:    make(map[string]chan model.WaitOutcome),
	}
}

// RegisterApproval inserts a fresh one-shot receiver for requestID. The
// caller must persist the record as Pending before registering, per the
// ordering in §4.7.1, to avoid losing a resolution that races the insert.
func (r *Registry) RegisterApproval(requestID string) <-chan model.ApprovalOutcome {
	ch := make(chan model.ApprovalOutcome, 1)
	r.mu.Lock()
	r.pendingApprove[requestID] = ch
	r.mu.Unlock()
	return ch
}

// ResolveApproval removes-and-fires the sender for requestID. Returns false
// if no rendezvous is registered (stale control, already resolved).
func (r *Registry) ResolveApproval(requestID string, outcome model.ApprovalOutcome) bool {
	r.mu.Lock()
	ch, ok := r.pendingApprove[requestID]
	if ok {
		delete(r.pendingApprove, requestID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome
	close(ch)
	return true
}

// DropApproval removes and closes requestID's channel without a value,
// used on shutdown; the awaiter observes a zero-value receive with ok=false.
func (r *Registry) DropApproval(requestID string) {
	r.mu.Lock()
	ch, ok := r.pendingApprove[requestID]
	if ok {
		delete(r.pendingApprove, requestID)
	}
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

// RegisterPrompt inserts a fresh one-shot receiver for promptID.
func (r *Registry) RegisterPrompt(promptID string) <-chan model.PromptOutcome {
	ch := make(chan model.PromptOutcome, 1)
	r.mu.Lock()
	r.pendingPrompt[promptID] = ch
	r.mu.Unlock()
	return ch
}

// ResolvePrompt removes-and-fires the sender for promptID.
func (r *Registry) ResolvePrompt(promptID string, outcome model.PromptOutcome) bool {
	r.mu.Lock()
	ch, ok := r.pendingPrompt[promptID]
	if ok {
		delete(r.pendingPrompt, promptID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome
	close(ch)
	return true
}

// DropPrompt removes and closes promptID's channel without a value.
func (r *Registry) DropPrompt(promptID string) {
	r.mu.Lock()
	ch, ok := r.pendingPrompt[promptID]
	if ok {
		delete(r.pendingPrompt, promptID)
	}
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

// RegisterWait inserts a fresh one-shot receiver keyed by sessionID.
func (r *Registry) RegisterWait(sessionID string) <-chan model.WaitOutcome {
	ch := make(chan model.WaitOutcome, 1)
	r.mu.Lock()
	r.pendingWait[sessionID] = ch
	r.mu.Unlock()
	return ch
}

// ResolveWait removes-and-fires the sender for sessionID.
func (r *Registry) ResolveWait(sessionID string, outcome model.WaitOutcome) bool {
	r.mu.Lock()
	ch, ok := r.pendingWait[sessionID]
	if ok {
		delete(r.pendingWait, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome
	close(ch)
	return true
}

// DropWait removes and closes sessionID's channel without a value.
func (r *Registry) DropWait(sessionID string) {
	r.mu.Lock()
	ch, ok := r.pendingWait[sessionID]
	if ok {
		delete(r.pendingWait, sessionID)
	}
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

// DropAll closes every outstanding rendezvous, used on graceful shutdown
// (§4.11 step 2): blocked tool handlers observe the drop and apply their
// handler-specific default.
func (r *Registry) DropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.pendingApprove {
		close(ch)
		delete(r.pendingApprove, id)
	}
	for id, ch := range r.pendingPrompt {
		close(ch)
		delete(r.pendingPrompt, id)
	}
	for id, ch := range r.pendingWait {
		close(ch)
		delete(r.pendingWait, id)
	}
}

// AwaitApproval blocks on ch until a value arrives, ctx is cancelled, or the
// channel is closed without a value (sender dropped). deflt is applied on
// cancellation or drop.
func AwaitApproval(ctx context.Context, ch <-chan model.ApprovalOutcome, deflt model.ApprovalOutcome) (model.ApprovalOutcome, bool) {
	select {
	case v, ok := <-ch:
		if !ok {
			return deflt, false
		}
		return v, true
	case <-ctx.Done():
		return deflt, false
	}
}

// AwaitPrompt mirrors AwaitApproval for prompt rendezvous. The default for
// transmit is always Continue (§4.7.4), supplied by the caller.
func AwaitPrompt(ctx context.Context, ch <-chan model.PromptOutcome, deflt model.PromptOutcome) (model.PromptOutcome, bool) {
	select {
	case v, ok := <-ch:
		if !ok {
			return deflt, false
		}
		return v, true
	case <-ctx.Done():
		return deflt, false
	}
}

// AwaitWait mirrors AwaitApproval for standby rendezvous.
func AwaitWait(ctx context.Context, ch <-chan model.WaitOutcome, deflt model.WaitOutcome) (model.WaitOutcome, bool) {
	select {
	case v, ok := <-ch:
		if !ok {
			return deflt, false
		}
		return v, true
	case <-ctx.Done():
		return deflt, false
	}
}
