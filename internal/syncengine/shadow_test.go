package syncengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/k0ucp/ucpbridge/internal/taper"
)

func TestShadowObserveDropsEchoWithinWindow(t *testing.T) {
	s := newShadowState()
	t0 := time.Now()

	accepted := s.observe("D", "vol", 0.5, FromMidi, FromUcp, t0, 50*time.Millisecond, taper.Equal)
	assert.True(t, accepted)

	accepted = s.observe("D", "vol", 0.5, FromUcp, FromMidi, t0.Add(10*time.Millisecond), 50*time.Millisecond, taper.Equal)
	assert.False(t, accepted, "an opposite-origin equal value within the window is an echo")
}

func TestShadowObserveAcceptsAfterWindowExpires(t *testing.T) {
	s := newShadowState()
	t0 := time.Now()

	s.observe("D", "vol", 0.5, FromMidi, FromUcp, t0, 50*time.Millisecond, taper.Equal)
	accepted := s.observe("D", "vol", 0.5, FromUcp, FromMidi, t0.Add(100*time.Millisecond), 50*time.Millisecond, taper.Equal)
	assert.True(t, accepted, "an echo older than the window must be accepted")
}

func TestShadowObserveAcceptsDifferentValue(t *testing.T) {
	s := newShadowState()
	t0 := time.Now()

	s.observe("D", "vol", 0.5, FromMidi, FromUcp, t0, 50*time.Millisecond, taper.Equal)
	accepted := s.observe("D", "vol", 0.9, FromUcp, FromMidi, t0.Add(10*time.Millisecond), 50*time.Millisecond, taper.Equal)
	assert.True(t, accepted, "a genuinely different value is never an echo")
}

func TestShadowSweepRemovesStaleEntries(t *testing.T) {
	s := newShadowState()
	t0 := time.Now()
	s.observe("D", "vol", 0.5, FromMidi, FromUcp, t0, time.Second, taper.Equal)

	s.sweep(t0.Add(10*time.Second), 5*time.Second)

	accepted := s.observe("D", "vol", 0.5, FromUcp, FromMidi, t0.Add(10*time.Second+time.Millisecond), time.Second, taper.Equal)
	assert.True(t, accepted, "a swept entry must not suppress a later observation")
}

func TestShadowPurgeDeviceRemovesOnlyThatDevice(t *testing.T) {
	s := newShadowState()
	t0 := time.Now()
	s.observe("D1", "vol", 0.5, FromMidi, FromUcp, t0, time.Second, taper.Equal)
	s.observe("D2", "vol", 0.5, FromMidi, FromUcp, t0, time.Second, taper.Equal)

	s.purgeDevice("D1")

	assert.True(t, s.observe("D1", "vol", 0.5, FromUcp, FromMidi, t0.Add(time.Millisecond), time.Second, taper.Equal))
	assert.False(t, s.observe("D2", "vol", 0.5, FromUcp, FromMidi, t0.Add(time.Millisecond), time.Second, taper.Equal))
}

func TestShadowObserveTreatsLocalAsUcpSideEcho(t *testing.T) {
	s := newShadowState()
	t0 := time.Now()

	s.record("D", "vol", 0.5, Local, t0)

	accepted := s.observe("D", "vol", 0.5, FromMidi, FromUcp, t0.Add(10*time.Millisecond), 50*time.Millisecond, taper.Equal)
	assert.False(t, accepted, "a MIDI-side echo of a Local-origin write is still an echo")
}

func TestShadowOriginString(t *testing.T) {
	assert.Equal(t, "from_midi", FromMidi.String())
	assert.Equal(t, "from_ucp", FromUcp.String())
	assert.Equal(t, "local", Local.String())
}
