package paramstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpdateAndRead(t *testing.T) {
	s := New()
	now := time.Now()

	changed := s.Update("mixerA", "line/ch1/volume", Value{Kind: KindFloat, Float: 0.75}, now)
	assert.True(t, changed)

	v, ok := s.Read("mixerA", "line/ch1/volume")
	assert.True(t, ok)
	assert.Equal(t, float32(0.75), v.Float)
}

func TestUpdateIsLastWriteWinsByTimestamp(t *testing.T) {
	s := New()
	base := time.Now()

	s.Update("mixerA", "line/ch1/volume", Value{Kind: KindFloat, Float: 0.5}, base)
	stale := s.Update("mixerA", "line/ch1/volume", Value{Kind: KindFloat, Float: 0.9}, base.Add(-time.Second))
	assert.False(t, stale)

	v, _ := s.Read("mixerA", "line/ch1/volume")
	assert.Equal(t, float32(0.5), v.Float)

	fresh := s.Update("mixerA", "line/ch1/volume", Value{Kind: KindFloat, Float: 0.9}, base.Add(time.Second))
	assert.True(t, fresh)
	v, _ = s.Read("mixerA", "line/ch1/volume")
	assert.Equal(t, float32(0.9), v.Float)
}

func TestSnapshotScopedToDevice(t *testing.T) {
	s := New()
	now := time.Now()

	s.Update("mixerA", "line/ch1/volume", Value{Kind: KindFloat, Float: 0.75}, now)
	s.Update("mixerA", "line/ch1/mute", Value{Kind: KindBool, Bool: true}, now)
	s.Update("mixerB", "line/ch1/volume", Value{Kind: KindFloat, Float: 0.1}, now)

	snap := s.Snapshot("mixerA")
	assert.Len(t, snap, 2)
}

func TestForgetRemovesOnlyThatDevice(t *testing.T) {
	s := New()
	now := time.Now()

	s.Update("mixerA", "line/ch1/volume", Value{Kind: KindFloat, Float: 0.75}, now)
	s.Update("mixerB", "line/ch1/volume", Value{Kind: KindFloat, Float: 0.1}, now)

	s.Forget("mixerA")

	_, ok := s.Read("mixerA", "line/ch1/volume")
	assert.False(t, ok)
	_, ok = s.Read("mixerB", "line/ch1/volume")
	assert.True(t, ok)
}
