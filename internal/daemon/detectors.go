// Package daemon is the lifecycle wiring layer (C11): it owns every
// component constructed at startup, implements the chat and IPC Handler
// interfaces those adapters dispatch operator events through, and drives
// the startup recovery scan and graceful shutdown sequence (§4.11).
package daemon

import (
	"sync"

	"github.com/softwaresalt/agent-intercom/internal/stall"
)

// DetectorRegistry owns one stall.Detector per active session, created
// lazily on first touch. Terminating a session does not stop its detector;
// detectors are stopped together by StopAll on graceful shutdown. It
// satisfies mcptools.Detectors.
type DetectorRegistry struct {
	cfg    stall.Config
	events chan stall.Event

	mu   sync.Mutex
	dets map[string]*stall.Detector
}

// NewDetectorRegistry constructs a registry; every detector it creates
// shares cfg and emits onto one buffered events channel.
func NewDetectorRegistry(cfg stall.Config) *DetectorRegistry {
	return &DetectorRegistry{
		cfg:    cfg,
		events: make(chan stall.Event, 64),
		dets:   make(map[string]*stall.Detector),
	}
}

// Get returns sessionID's detector, creating it on first use.
func (r *DetectorRegistry) Get(sessionID string) *stall.Detector {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dets[sessionID]
	if !ok {
		d = stall.New(sessionID, r.cfg, r.events)
		r.dets[sessionID] = d
	}
	return d
}

// Stop tears down sessionID's detector, if one was created.
func (r *DetectorRegistry) Stop(sessionID string) {
	r.mu.Lock()
	d, ok := r.dets[sessionID]
	if ok {
		delete(r.dets, sessionID)
	}
	r.mu.Unlock()
	if ok {
		d.Stop()
	}
}

// StopAll tears down every live detector, used on graceful shutdown.
func (r *DetectorRegistry) StopAll() {
	r.mu.Lock()
	dets := make([]*stall.Detector, 0, len(r.dets))
	for id, d := range r.dets {
		dets = append(dets, d)
		delete(r.dets, id)
	}
	r.mu.Unlock()
	for _, d := range dets {
		d.Stop()
	}
}

// Events exposes the shared event stream for the daemon's stall-event loop.
func (r *DetectorRegistry) Events() <-chan stall.Event {
	return r.events
}
