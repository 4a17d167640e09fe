package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0ucp/ucpbridge/internal/taper"
)

type fakeResolver struct{ known map[string]bool }

func (f fakeResolver) DeviceKnown(id string) bool { return f.known[id] }

func newTestStore() *Store {
	return NewStore(fakeResolver{known: map[string]bool{"mixerA": true}})
}

func linearVolumeRecord(id int64) Record {
	return Record{
		ID:      id,
		Source:  Source{Kind: ControlChange, Channel: 0, CC: 7},
		Target:  Target{DeviceID: "mixerA", Address: "line/ch1/volume", Kind: Continuous},
		Taper:   taper.Linear,
		MinNorm: 0,
		MaxNorm: 1,
	}
}

func TestAddThenLookupByMIDIAndTarget(t *testing.T) {
	s := newTestStore()
	rec := linearVolumeRecord(1)
	require.NoError(t, s.Add(rec))

	byMIDI := s.ByMIDIControlChange(0, 7)
	require.Len(t, byMIDI, 1)
	assert.Equal(t, rec.ID, byMIDI[0].ID)

	byTarget := s.ByTarget("mixerA", "line/ch1/volume")
	require.Len(t, byTarget, 1)
	assert.Equal(t, rec.ID, byTarget[0].ID)
}

func TestAddRejectsUnresolvableTarget(t *testing.T) {
	s := newTestStore()
	rec := linearVolumeRecord(1)
	rec.Target.DeviceID = "unknownMixer"

	err := s.Add(rec)
	assert.ErrorIs(t, err, ErrUnresolvableTarget)
}

func TestAddRejectsUnresolvableSource(t *testing.T) {
	s := newTestStore()
	rec := linearVolumeRecord(1)
	rec.Source.CC = 200

	err := s.Add(rec)
	assert.ErrorIs(t, err, ErrUnresolvableSource)
}

func TestAddRejectsDuplicateID(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Add(linearVolumeRecord(1)))
	err := s.Add(linearVolumeRecord(1))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestTwoMappingsCanShareATarget(t *testing.T) {
	s := newTestStore()
	rec1 := linearVolumeRecord(1)
	rec2 := linearVolumeRecord(2)
	rec2.Source = Source{Kind: PitchBend, Channel: 1}

	require.NoError(t, s.Add(rec1))
	require.NoError(t, s.Add(rec2))

	byTarget := s.ByTarget("mixerA", "line/ch1/volume")
	assert.Len(t, byTarget, 2)
}

func TestTwoMappingsCanShareASource(t *testing.T) {
	s := newTestStore()
	rec1 := linearVolumeRecord(1)
	rec2 := linearVolumeRecord(2)
	rec2.Target.Address = "line/ch2/volume"

	require.NoError(t, s.Add(rec1))
	require.NoError(t, s.Add(rec2))

	byMIDI := s.ByMIDIControlChange(0, 7)
	assert.Len(t, byMIDI, 2)
}

func TestHighResolutionRegistersBothMSBAndLSB(t *testing.T) {
	s := newTestStore()
	rec := Record{
		ID:     1,
		Source: Source{Kind: HighResolution, Channel: 0, CCMSB: 16, CCLSB: 48},
		Target: Target{DeviceID: "mixerA", Address: "main/lr/volume", Kind: Continuous},
		Taper:  taper.Linear, MinNorm: 0, MaxNorm: 1,
	}
	require.NoError(t, s.Add(rec))

	assert.Len(t, s.ByMIDIControlChange(0, 16), 1)
	assert.Len(t, s.ByMIDIControlChange(0, 48), 1)
}

func TestAddThenRemoveLeavesIndicesAsBeforeAdd(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Add(linearVolumeRecord(1)))
	require.NoError(t, s.Remove(1))

	assert.Empty(t, s.ByMIDIControlChange(0, 7))
	assert.Empty(t, s.ByTarget("mixerA", "line/ch1/volume"))
	assert.Empty(t, s.All())
}

func TestRemoveUnknownIDFails(t *testing.T) {
	s := newTestStore()
	err := s.Remove(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceMovesIndexEntries(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Add(linearVolumeRecord(1)))

	replaced := linearVolumeRecord(1)
	replaced.Target.Address = "line/ch2/volume"
	require.NoError(t, s.Replace(replaced))

	assert.Empty(t, s.ByTarget("mixerA", "line/ch1/volume"))
	assert.Len(t, s.ByTarget("mixerA", "line/ch2/volume"), 1)
}

func TestByTargetIsOrderedByID(t *testing.T) {
	s := newTestStore()
	r5 := linearVolumeRecord(5)
	r2 := linearVolumeRecord(2)
	require.NoError(t, s.Add(r5))
	require.NoError(t, s.Add(r2))

	got := s.ByTarget("mixerA", "line/ch1/volume")
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(5), got[1].ID)
}
