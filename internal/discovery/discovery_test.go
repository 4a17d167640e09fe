package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0ucp/ucpbridge/internal/device"
)

func descriptor(identifier string, transport device.Transport, model string) *device.Descriptor {
	d := device.NewDescriptor(identifier, transport)
	d.Model = model
	return d
}

func TestDiscoverMergesNetworkAndUSB(t *testing.T) {
	svc := New(Config{})
	svc.queryNetworkFunc = func(Config) ([]*device.Descriptor, error) {
		return []*device.Descriptor{descriptor("mix-01", device.Network, "M32")}, nil
	}
	svc.enumerateUSBFunc = func(Config) ([]*device.Descriptor, error) {
		return []*device.Descriptor{descriptor("usb-1-2", device.USB, "UFX")}, nil
	}

	merge, err := svc.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, merge.Added, 2)
	assert.Empty(t, merge.Updated)
	assert.Empty(t, merge.Removed)
	assert.Len(t, svc.Devices(), 2)
}

func TestDiscoverSecondRunReportsUpdateNotAdd(t *testing.T) {
	svc := New(Config{})
	svc.queryNetworkFunc = func(Config) ([]*device.Descriptor, error) {
		return []*device.Descriptor{descriptor("mix-01", device.Network, "M32")}, nil
	}
	svc.enumerateUSBFunc = func(Config) ([]*device.Descriptor, error) { return nil, nil }

	_, err := svc.Discover(context.Background())
	require.NoError(t, err)

	svc.queryNetworkFunc = func(Config) ([]*device.Descriptor, error) {
		d := descriptor("mix-01", device.Network, "M32")
		d.Firmware = "3.0.0"
		return []*device.Descriptor{d}, nil
	}
	merge, err := svc.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, merge.Added)
	require.Len(t, merge.Updated, 1)
	assert.Equal(t, "3.0.0", merge.Updated[0].Firmware)
}

func TestDiscoverDropsDeviceNoLongerSeenWhenUnowned(t *testing.T) {
	svc := New(Config{})
	svc.enumerateUSBFunc = func(Config) ([]*device.Descriptor, error) { return nil, nil }
	svc.queryNetworkFunc = func(Config) ([]*device.Descriptor, error) {
		return []*device.Descriptor{descriptor("mix-01", device.Network, "M32")}, nil
	}
	_, err := svc.Discover(context.Background())
	require.NoError(t, err)

	svc.queryNetworkFunc = func(Config) ([]*device.Descriptor, error) { return nil, nil }
	merge, err := svc.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, merge.Removed, 1)
	assert.Equal(t, "mix-01", merge.Removed[0].Identifier)
	assert.Empty(t, svc.Devices())
}

func TestDiscoverPreservesDeviceASessionOwns(t *testing.T) {
	svc := New(Config{})
	svc.enumerateUSBFunc = func(Config) ([]*device.Descriptor, error) { return nil, nil }
	svc.queryNetworkFunc = func(Config) ([]*device.Descriptor, error) {
		return []*device.Descriptor{descriptor("mix-01", device.Network, "M32")}, nil
	}
	_, err := svc.Discover(context.Background())
	require.NoError(t, err)

	svc.Devices()[0].SetState(device.Connected)

	svc.queryNetworkFunc = func(Config) ([]*device.Descriptor, error) { return nil, nil }
	merge, err := svc.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, merge.Removed, "a device a session already owns must survive a missed broadcast response")
	assert.Len(t, svc.Devices(), 1)
}

func TestDiscoverReportsNetworkErrorButKeepsUSBResults(t *testing.T) {
	svc := New(Config{})
	svc.queryNetworkFunc = func(Config) ([]*device.Descriptor, error) {
		return nil, errors.New("socket error")
	}
	svc.enumerateUSBFunc = func(Config) ([]*device.Descriptor, error) {
		return []*device.Descriptor{descriptor("usb-1-2", device.USB, "UFX")}, nil
	}

	merge, err := svc.Discover(context.Background())
	assert.Error(t, err)
	assert.Len(t, merge.Added, 1, "a failed network scan must not suppress USB results")
}

func TestConfigIgnoresModelPrefix(t *testing.T) {
	cfg := Config{IgnoreModelPrefixes: []string{"KeyLab", "Launchkey"}}
	assert.True(t, cfg.ignoresModel("KeyLab-61-mk3"))
	assert.False(t, cfg.ignoresModel("M32"))
}
