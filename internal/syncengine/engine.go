// Package syncengine implements the sync engine (C9, §4.9) — the
// central event router that turns MIDI events into UCP parameter
// writes and UCP parameter changes into outbound MIDI, backed by the
// shadow state that suppresses feedback echoes during live use.
package syncengine

import (
	"context"
	"time"

	"github.com/k0ucp/ucpbridge/internal/mapping"
	"github.com/k0ucp/ucpbridge/internal/midiio"
)

// ParameterSink is how the engine hands a transformed outbound value to
// the session manager (§4.9 "emit a SendParameter command"). Errors are
// logged by the caller via Config.OnFailure, never propagated back into
// the engine's event loop (§4.9 "Failure semantics").
type ParameterSink func(deviceID, address string, value float64) error

// MidiSink is how the engine hands a transformed outbound event to the
// MIDI adapter (§4.9 "emit the outbound MIDI event to the adapter").
type MidiSink func(ev midiio.Event) error

// Config wires an Engine's dependencies and timing knobs. Zero-valued
// durations fall back to the spec's defaults (§4.9, §9 Open Questions).
type Config struct {
	Mappings      *mapping.Store
	SendParameter ParameterSink
	SendMidi      MidiSink
	OnFailure     func(err error)
	// OnParameterAccepted reports a UCP→MIDI observation the shadow
	// state accepted (i.e. not suppressed as an echo), for UI-facing
	// notification only — it has no effect on routing (§6
	// "UcpParameterChanged").
	OnParameterAccepted func(deviceID, address string, value float64)
	EchoWindow          time.Duration
	CoalesceWindow      time.Duration
	SweepInterval       time.Duration
	ShadowMaxAge        time.Duration
	RingCapacity        int
	QueueDepth          int
}

// DefaultShadowMaxAge is how old a shadow entry may get before the
// sweep removes it (§4.9 "Cleanup", default 5 s).
const DefaultShadowMaxAge = 5 * time.Second

const defaultQueueDepth = 256

type eventKind int

const (
	evMidiIn eventKind = iota
	evUcpIn
	evLocalSet
	evMappingsChanged
	evDisconnect
	evCoalesceExpire
)

type ucpValue struct {
	deviceID  string
	address   string
	value     float64
	timestamp time.Time
}

type inputEvent struct {
	kind eventKind

	midiEvent midiio.Event
	midiTS    time.Time

	ucp ucpValue

	deviceID string

	expireKey   coalesceKey
	expireValue int
	expireTS    time.Time
}

// Engine is the sole owner of the shadow state, the latency ring, and
// the 14-bit coalescing buffer (§4.9 "Owns"). The mapping store is
// shared but, per §5's shared-resource policy, mutated only by the
// engine's caller (the UI/config layer), never by the engine itself.
type Engine struct {
	mappings *mapping.Store

	sendParameter       ParameterSink
	sendMidi            MidiSink
	onFailure           func(error)
	onParameterAccepted func(deviceID, address string, value float64)

	shadow   *shadowState
	ring     *latencyRing
	coalesce *coalesceBuffer

	echoWindow    time.Duration
	sweepInterval time.Duration
	shadowMaxAge  time.Duration

	ingress chan inputEvent
}

// New builds an Engine from cfg, filling in spec defaults for any zero
// duration/capacity.
func New(cfg Config) *Engine {
	echoWindow := cfg.EchoWindow
	if echoWindow <= 0 {
		echoWindow = DefaultEchoWindow
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	shadowMaxAge := cfg.ShadowMaxAge
	if shadowMaxAge <= 0 {
		shadowMaxAge = DefaultShadowMaxAge
	}
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}

	e := &Engine{
		mappings:            cfg.Mappings,
		sendParameter:       cfg.SendParameter,
		sendMidi:            cfg.SendMidi,
		onFailure:           cfg.OnFailure,
		onParameterAccepted: cfg.OnParameterAccepted,
		shadow:              newShadowState(),
		ring:                newLatencyRing(cfg.RingCapacity),
		echoWindow:          echoWindow,
		sweepInterval:       sweepInterval,
		shadowMaxAge:        shadowMaxAge,
		ingress:             make(chan inputEvent, queueDepth),
	}
	e.coalesce = newCoalesceBuffer(cfg.CoalesceWindow, e.queueCoalesceExpire)
	return e
}

func (e *Engine) fail(err error) {
	if err != nil && e.onFailure != nil {
		e.onFailure(err)
	}
}

// MidiIn enqueues an inbound MIDI event for translation (§4.9 event
// input "MidiIn(event, timestamp)"). Safe to call from any goroutine,
// including an OS MIDI callback thread.
func (e *Engine) MidiIn(ev midiio.Event, timestamp time.Time) {
	e.ingress <- inputEvent{kind: evMidiIn, midiEvent: ev, midiTS: timestamp}
}

// UcpIn enqueues an inbound UCP parameter change for translation
// (§4.9 "UcpIn(device_id, address, value, timestamp)").
func (e *Engine) UcpIn(deviceID, address string, value float64, timestamp time.Time) {
	e.ingress <- inputEvent{kind: evUcpIn, ucp: ucpValue{deviceID: deviceID, address: address, value: value, timestamp: timestamp}}
}

// LocalSet enqueues a UI-originated parameter write (§6 "SetParameter...
// used by UI controls; also goes through shadow state"). Unlike UcpIn,
// it always writes the named parameter straight to the device — not
// just to any bidirectional mapping's control surface — and
// unconditionally records the shadow entry under the Local origin, so
// the control surface's MIDI echo of this same value is recognized and
// suppressed; a device's UcpIn report of the same value is not treated
// as an echo.
func (e *Engine) LocalSet(deviceID, address string, value float64, timestamp time.Time) {
	e.ingress <- inputEvent{kind: evLocalSet, ucp: ucpValue{deviceID: deviceID, address: address, value: value, timestamp: timestamp}}
}

// MappingsChanged notifies the engine that the mapping store was
// mutated. The engine holds no mapping-derived cache beyond in-flight
// coalescing state, so this is a no-op hook kept for symmetry with the
// spec's event vocabulary and as a future extension point.
func (e *Engine) MappingsChanged() {
	e.ingress <- inputEvent{kind: evMappingsChanged}
}

// Disconnect purges shadow state for deviceID; mappings targeting it
// are left untouched (§4.9 "Cleanup").
func (e *Engine) Disconnect(deviceID string) {
	e.ingress <- inputEvent{kind: evDisconnect, deviceID: deviceID}
}

func (e *Engine) queueCoalesceExpire(key coalesceKey, value int, at time.Time) {
	e.ingress <- inputEvent{kind: evCoalesceExpire, expireKey: key, expireValue: value, expireTS: at}
}

// Stats reports the latency ring's current avg/min/max/count (§4.9
// "Latency stats").
func (e *Engine) Stats() LatencyStats { return e.ring.stats() }

// ClearStats empties the latency ring.
func (e *Engine) ClearStats() { e.ring.clear() }

// Run drains the ingress queue and runs the periodic shadow sweep until
// ctx is cancelled (§4.9 "Cleanup", §5 "the sync engine blocks on its
// inbound event queue"). It is meant to be run as a single goroutine;
// every shared-state mutation happens on this goroutine except for the
// shadow state and latency ring, which are safe under concurrent UI
// reads (Stats, snapshots) by their own locks, and the coalescing
// buffer, whose expiry timers remove their entry under the buffer's
// lock on the timer goroutine before queueing the sample here.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.ingress:
			e.handle(ev)
		case now := <-ticker.C:
			e.shadow.sweep(now, e.shadowMaxAge)
		}
	}
}

func (e *Engine) handle(ev inputEvent) {
	switch ev.kind {
	case evMidiIn:
		e.handleMidiIn(ev.midiEvent, ev.midiTS)
	case evUcpIn:
		e.handleUcpIn(ev.ucp)
	case evLocalSet:
		e.handleLocalSet(ev.ucp)
	case evDisconnect:
		e.shadow.purgeDevice(ev.deviceID)
	case evCoalesceExpire:
		e.handleCoalesceExpire(ev.expireKey, ev.expireValue, ev.expireTS)
	case evMappingsChanged:
		// no cached state to invalidate
	}
}
