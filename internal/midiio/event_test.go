package midiio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyControlChange(t *testing.T) {
	ev, ok := Classify(0xB2, 11, 77)
	assert.True(t, ok)
	assert.Equal(t, ControlChange, ev.Kind)
	assert.Equal(t, 2, ev.Channel)
	assert.Equal(t, 11, ev.CC)
	assert.Equal(t, 77, ev.Value7)
}

func TestClassifyNoteOnVelocityZeroBecomesNoteOff(t *testing.T) {
	ev, ok := Classify(0x90, 60, 0)
	assert.True(t, ok)
	assert.Equal(t, NoteOff, ev.Kind)
	assert.Equal(t, 60, ev.Note)
}

func TestClassifyNoteOnWithVelocity(t *testing.T) {
	ev, ok := Classify(0x91, 60, 100)
	assert.True(t, ok)
	assert.Equal(t, NoteOn, ev.Kind)
	assert.Equal(t, 1, ev.Channel)
	assert.Equal(t, 100, ev.Velocity)
}

func TestClassifyPitchBend14Bit(t *testing.T) {
	ev, ok := Classify(0xE0, 0x00, 0x60) // 0x3000 = 12288
	assert.True(t, ok)
	assert.Equal(t, PitchBend, ev.Kind)
	assert.Equal(t, 12288, ev.Value14)
}

func TestClassifyDropsSystemMessages(t *testing.T) {
	_, ok := Classify(0xF8, 0, 0) // MIDI clock
	assert.False(t, ok)
}

func TestClassifyDropsNonStatusByte(t *testing.T) {
	_, ok := Classify(0x40, 0, 0)
	assert.False(t, ok)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Event{
		{Kind: ControlChange, Channel: 3, CC: 7, Value7: 100},
		{Kind: NoteOn, Channel: 0, Note: 64, Velocity: 90},
		{Kind: PitchBend, Channel: 5, Value14: 12288},
		{Kind: ProgramChange, Channel: 1, Program: 12},
	}

	for _, ev := range cases {
		status, d1, d2 := Encode(ev)
		got, ok := Classify(status, d1, d2)
		if ev.Kind == ProgramChange {
			// Classify only ever returns a full triple's worth of info;
			// program change's second data byte is unused on either side.
			assert.True(t, ok)
			assert.Equal(t, ev.Program, got.Program)
			continue
		}
		assert.True(t, ok)
		assert.Equal(t, ev, got)
	}
}
