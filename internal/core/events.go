package core

import (
	"github.com/k0ucp/ucpbridge/internal/device"
	"github.com/k0ucp/ucpbridge/internal/learn"
	"github.com/k0ucp/ucpbridge/internal/midiio"
	"github.com/k0ucp/ucpbridge/internal/syncengine"
)

// Event is the sealed set of values the core emits to the UI/external
// consumer boundary (§6 "Events emitted").
type Event interface{ isEvent() }

// EventSink receives every Event the core emits, in emission order, on
// whatever goroutine produced it — sinks that need to marshal onto a UI
// thread must do so themselves.
type EventSink func(Event)

// DiscoveryUpdated reports a completed Discover() merge.
type DiscoveryUpdated struct {
	Added   []*device.Descriptor
	Updated []*device.Descriptor
	Removed []*device.Descriptor
}

func (DiscoveryUpdated) isEvent() {}

// DeviceStateChanged reports one device's connection-lifecycle
// transition (§3 "Device descriptor", §4.3 states).
type DeviceStateChanged struct {
	DeviceID string
	State    device.State
}

func (DeviceStateChanged) isEvent() {}

// UcpParameterChanged reports a non-echo parameter observation the sync
// engine accepted (§4.9).
type UcpParameterChanged struct {
	DeviceID string
	Address  string
	Value    float64
}

func (UcpParameterChanged) isEvent() {}

// MidiOutgoing is a debug event mirroring every outbound MIDI event the
// sync engine emits (§6 "(debug)").
type MidiOutgoing struct {
	PortID string
	Event  midiio.Event
}

func (MidiOutgoing) isEvent() {}

// LearnStateChanged reports every learn FSM transition.
type LearnStateChanged struct {
	State learn.State
}

func (LearnStateChanged) isEvent() {}

// LearnBound reports a successful learn binding (§4.8 "LearnBound").
type LearnBound struct {
	Source midiio.Event
	Target learn.Target
	Taper  learn.TaperSuggestion
}

func (LearnBound) isEvent() {}

// LearnTimedOut reports that Listening expired with no qualifying event
// seen, distinct from the LearnStateChanged{Idle} transition that
// always accompanies it (§4.8, §8 scenario 5).
type LearnTimedOut struct{}

func (LearnTimedOut) isEvent() {}

// LatencyUpdated reports the sync engine's latency stats, throttled to
// at most once every 100 ms (§6).
type LatencyUpdated struct {
	Stats syncengine.LatencyStats
}

func (LatencyUpdated) isEvent() {}
