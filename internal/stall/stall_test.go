package stall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_EscalationSequence(t *testing.T) {
	events := make(chan Event, 16)
	d := New("sess-1", Config{
		InactivityThreshold: 100 * time.Millisecond,
		EscalationInterval:  50 * time.Millisecond,
		MaxRetries:          2,
	}, events)
	defer d.Stop()

	var got []Event
	deadline := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case e := <-events:
			got = append(got, e)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d: %+v", len(got), got)
		}
	}

	require.Len(t, got, 4)
	assert.Equal(t, EventStalled, got[0].Kind)
	assert.Equal(t, EventAutoNudge, got[1].Kind)
	assert.Equal(t, 1, got[1].NudgeCount)
	assert.Equal(t, EventAutoNudge, got[2].Kind)
	assert.Equal(t, 2, got[2].NudgeCount)
	assert.Equal(t, EventEscalated, got[3].Kind)
}

func TestDetector_ResetClearsStallAndEmitsSelfRecovered(t *testing.T) {
	events := make(chan Event, 16)
	d := New("sess-2", Config{
		InactivityThreshold: 60 * time.Millisecond,
		EscalationInterval:  200 * time.Millisecond,
		MaxRetries:          5,
	}, events)
	defer d.Stop()

	select {
	case e := <-events:
		require.Equal(t, EventStalled, e.Kind)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for Stalled")
	}

	d.Reset()

	select {
	case e := <-events:
		assert.Equal(t, EventSelfRecovered, e.Kind)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for SelfRecovered")
	}
}

func TestDetector_PauseSuppressesEvents(t *testing.T) {
	events := make(chan Event, 16)
	d := New("sess-3", Config{
		InactivityThreshold: 40 * time.Millisecond,
		EscalationInterval:  40 * time.Millisecond,
		MaxRetries:          3,
	}, events)
	defer d.Stop()

	d.Pause()
	time.Sleep(150 * time.Millisecond)

	select {
	case e := <-events:
		t.Fatalf("expected no events while paused, got %+v", e)
	default:
	}
}
