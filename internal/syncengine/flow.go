package syncengine

import (
	"time"

	"github.com/k0ucp/ucpbridge/internal/mapping"
	"github.com/k0ucp/ucpbridge/internal/midiio"
	"github.com/k0ucp/ucpbridge/internal/taper"
)

// handleMidiIn implements §4.9's MIDI→UCP flow. A single inbound event
// can match several mapping records (two mappings may share a source);
// each is looked up and applied in ID order, which By* already
// guarantees (§5 "deterministic on mapping id").
func (e *Engine) handleMidiIn(ev midiio.Event, timestamp time.Time) {
	switch ev.Kind {
	case midiio.ControlChange:
		e.handleControlChange(ev, timestamp)
	case midiio.NoteOn, midiio.NoteOff:
		for _, r := range e.mappings.ByMIDINote(ev.Channel, ev.Note) {
			e.applyMidiToUcp(r, ev.Velocity, 127, timestamp)
		}
	case midiio.PitchBend:
		for _, r := range e.mappings.ByMIDIPitchBend(ev.Channel) {
			e.applyMidiToUcp(r, ev.Value14, 16383, timestamp)
		}
	default:
		// ProgramChange and anything else classify can't produce here
		// have no mapping source kind; nothing to route.
	}
}

// handleControlChange separates plain 7-bit CC mappings from
// HighResolution (14-bit coalescing) mappings sharing the same CC
// number, since ByMIDIControlChange returns both (§4.6 "the store
// registers both MSB and LSB CCs in by_midi").
func (e *Engine) handleControlChange(ev midiio.Event, timestamp time.Time) {
	records := e.mappings.ByMIDIControlChange(ev.Channel, ev.CC)

	hasHighRes := false
	for _, r := range records {
		if r.Source.Kind == mapping.HighResolution {
			hasHighRes = true
			continue
		}
		e.applyMidiToUcp(r, ev.Value7, 127, timestamp)
	}
	if hasHighRes {
		e.handleHighResCC(records, ev, timestamp)
	}
}

func (e *Engine) handleHighResCC(records []mapping.Record, ev midiio.Event, timestamp time.Time) {
	for _, r := range records {
		if r.Source.Kind != mapping.HighResolution {
			continue
		}
		key := coalesceKey{channel: ev.Channel, ccMSB: r.Source.CCMSB, ccLSB: r.Source.CCLSB}

		switch ev.CC {
		case r.Source.CCMSB:
			e.coalesce.msb(key, ev.Value7, timestamp)
		case r.Source.CCLSB:
			if value14, originalTS, ok := e.coalesce.lsb(key, ev.Value7, timestamp); ok {
				e.applyMidiToUcpForRecordSet(records, key, value14, originalTS)
			}
		}
	}
}

func (e *Engine) handleCoalesceExpire(key coalesceKey, msbOnlyValue int, originalTS time.Time) {
	records := e.mappings.ByMIDIControlChange(key.channel, key.ccMSB)
	e.applyMidiToUcpForRecordSet(records, key, msbOnlyValue, originalTS)
}

func (e *Engine) applyMidiToUcpForRecordSet(records []mapping.Record, key coalesceKey, value14 int, timestamp time.Time) {
	for _, r := range records {
		if r.Source.Kind != mapping.HighResolution {
			continue
		}
		if r.Source.CCMSB != key.ccMSB || r.Source.CCLSB != key.ccLSB {
			continue
		}
		e.applyMidiToUcp(r, value14, 16383, timestamp)
	}
}

// applyMidiToUcp runs §4.9's MIDI→UCP steps 2-5 for one matching
// record: normalize+taper, echo-check against shadow state, emit, and
// record latency unconditionally.
func (e *Engine) applyMidiToUcp(r mapping.Record, integer, maxInt int, timestamp time.Time) {
	v := taper.ForwardMIDIToUCP(r.Taper, r.Window(), integer, maxInt)

	accepted := e.shadow.observe(r.Target.DeviceID, r.Target.Address, v, FromMidi, FromUcp, time.Now(), e.echoWindow, taper.Equal)
	if accepted && e.sendParameter != nil {
		e.fail(e.sendParameter(r.Target.DeviceID, r.Target.Address, v))
	}

	e.ring.record(time.Since(timestamp))
}

// handleUcpIn implements §4.9's UCP→MIDI flow.
func (e *Engine) handleUcpIn(u ucpValue) {
	v := clamp01(u.value)

	for _, r := range e.mappings.ByTarget(u.deviceID, u.address) {
		if !r.Bidirectional {
			continue
		}
		e.applyUcpToMidi(r, v, u.timestamp)
	}
}

// handleLocalSet implements a UI-originated write (§6 "SetParameter...
// used by UI controls; also goes through shadow state"): record the
// shadow entry unconditionally under Local (no echo check — this is
// the origin, not an observation of one), write the parameter straight
// to the device, and echo it back to any bidirectional mapping's
// control surface exactly as an accepted device observation would, so
// a motorized fader tracks a UI-driven change too.
func (e *Engine) handleLocalSet(u ucpValue) {
	v := clamp01(u.value)
	e.shadow.record(u.deviceID, u.address, v, Local, time.Now())
	if e.sendParameter != nil {
		e.fail(e.sendParameter(u.deviceID, u.address, v))
	}
	for _, r := range e.mappings.ByTarget(u.deviceID, u.address) {
		if !r.Bidirectional {
			continue
		}
		e.emitMidiFeedback(r, v)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (e *Engine) applyUcpToMidi(r mapping.Record, v float64, timestamp time.Time) {
	now := time.Now()
	accepted := e.shadow.observe(r.Target.DeviceID, r.Target.Address, v, FromUcp, FromMidi, now, e.echoWindow, taper.Equal)

	if accepted {
		if e.onParameterAccepted != nil {
			e.onParameterAccepted(r.Target.DeviceID, r.Target.Address, v)
		}
		e.emitMidiFeedback(r, v)
	}

	e.ring.record(time.Since(timestamp))
}

// emitMidiFeedback sends r's reverse-tapered MIDI representation of v to
// the control surface bound to it — the motorized-fader/LED echo of a
// parameter write, split across two CC messages for a HighResolution
// source (§4.9 step 5 of UCP→MIDI).
func (e *Engine) emitMidiFeedback(r mapping.Record, v float64) {
	if r.Source.Kind == mapping.HighResolution {
		value14 := taper.ReverseUCPToMIDI(r.Taper, r.Window(), v, 16383)
		msb := (value14 >> 7) & 0x7F
		lsb := value14 & 0x7F
		e.sendMidiOut(midiio.Event{Kind: midiio.ControlChange, Channel: r.Source.Channel, CC: r.Source.CCMSB, Value7: msb})
		e.sendMidiOut(midiio.Event{Kind: midiio.ControlChange, Channel: r.Source.Channel, CC: r.Source.CCLSB, Value7: lsb})
		return
	}
	maxInt := maxIntForSource(r.Source)
	integer := taper.ReverseUCPToMIDI(r.Taper, r.Window(), v, maxInt)
	e.sendMidiOut(buildMidiEvent(r.Source, integer))
}

func (e *Engine) sendMidiOut(ev midiio.Event) {
	if e.sendMidi != nil {
		e.fail(e.sendMidi(ev))
	}
}

func maxIntForSource(s mapping.Source) int {
	switch s.Kind {
	case mapping.PitchBend:
		return 16383
	default:
		return 127
	}
}

func buildMidiEvent(s mapping.Source, integer int) midiio.Event {
	switch s.Kind {
	case mapping.ControlChange:
		return midiio.Event{Kind: midiio.ControlChange, Channel: s.Channel, CC: s.CC, Value7: integer}
	case mapping.Note:
		return midiio.Event{Kind: midiio.NoteOn, Channel: s.Channel, Note: s.NoteNumber, Velocity: integer}
	case mapping.PitchBend:
		return midiio.Event{Kind: midiio.PitchBend, Channel: s.Channel, Value14: integer}
	default:
		return midiio.Event{}
	}
}
