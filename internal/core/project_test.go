package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0ucp/ucpbridge/internal/device"
)

func validProject() Project {
	return Project{
		Version: SupportedProjectVersion,
		Name:    "studio-a",
		Devices: []ProjectDevice{
			{Key: "mixer-1", Transport: "network"},
		},
		Mappings: []ProjectMapping{
			{
				ID:            1,
				DeviceKey:     "mixer-1",
				Address:       "line/ch1/volume",
				ParamKind:     "continuous",
				SourceKind:    "control_change",
				Channel:       0,
				CC:            7,
				Taper:         "linear",
				MinNorm:       0,
				MaxNorm:       1,
				Bidirectional: true,
			},
		},
	}
}

func TestApplyMappingSetRegistersDeviceAndLoadsMappings(t *testing.T) {
	c, _, _ := newTestCore(t)

	require.NoError(t, c.ApplyMappingSet(validProject()))

	assert.True(t, c.DeviceKnown("mixer-1"))
	mappings := c.GetMappings()
	require.Len(t, mappings, 1)
	assert.Equal(t, "line/ch1/volume", mappings[0].Target.Address)
}

func TestApplyMappingSetDoesNotOverwriteAlreadyKnownDevice(t *testing.T) {
	c, _, _ := newTestCore(t)

	live := device.NewDescriptor("mixer-1", device.Network)
	live.SetState(device.Connected)
	c.mu.Lock()
	c.devices["mixer-1"] = live
	c.mu.Unlock()

	require.NoError(t, c.ApplyMappingSet(validProject()))

	c.mu.Lock()
	got := c.devices["mixer-1"]
	c.mu.Unlock()
	assert.Same(t, live, got, "a project load must not replace an already-discovered device")
	assert.Equal(t, device.Connected, got.State())
}

func TestApplyMappingSetRejectsUnsupportedVersion(t *testing.T) {
	c, _, _ := newTestCore(t)

	p := validProject()
	p.Version = 2
	assert.Error(t, c.ApplyMappingSet(p))
}

func TestApplyMappingSetRejectsMappingReferencingUnknownDeviceKey(t *testing.T) {
	c, _, _ := newTestCore(t)

	p := validProject()
	p.Mappings[0].DeviceKey = "mixer-2"
	assert.Error(t, c.ApplyMappingSet(p))
	assert.Empty(t, c.GetMappings(), "a rejected project must not partially apply")
}

func TestApplyMappingSetRejectsUnknownEnumValue(t *testing.T) {
	c, _, _ := newTestCore(t)

	p := validProject()
	p.Mappings[0].Taper = "not-a-real-taper"
	assert.Error(t, c.ApplyMappingSet(p))
}
