// Package discovery implements the discovery service (C2, §4.2): a
// network UDP broadcast/response scan and a USB vendor/product
// enumeration, composed into one deduplicated, mergeable device list.
package discovery

import (
	"context"
	"sync"

	"github.com/k0ucp/ucpbridge/internal/device"
)

// Merge reports what changed between two Discover calls (SPEC_FULL.md
// C2 supplement: the UI-facing DiscoveryUpdated event needs a diff, not
// just the current set).
type Merge struct {
	Added   []*device.Descriptor
	Updated []*device.Descriptor
	Removed []*device.Descriptor
}

// Service owns the deduplicated device table, keyed by
// Descriptor.Key() (§4.2 "a deduplicated list keyed by
// transport+identifier").
type Service struct {
	cfg Config

	queryNetworkFunc func(Config) ([]*device.Descriptor, error)
	enumerateUSBFunc func(Config) ([]*device.Descriptor, error)

	mu      sync.Mutex
	devices map[string]*device.Descriptor
}

// New builds a Service. The network/USB scan functions are swappable
// fields (queryNetworkFunc/enumerateUSBFunc) so tests can substitute a
// loopback responder or a fake enumerator without touching real
// sockets or udev.
func New(cfg Config) *Service {
	return &Service{
		cfg:              cfg,
		queryNetworkFunc: queryNetwork,
		enumerateUSBFunc: enumerateUSB,
		devices:          make(map[string]*device.Descriptor),
	}
}

// Discover runs both scan branches, merges the results into the
// service's table, and reports what changed (§4.2). Either branch
// failing is reported via the returned error but does not prevent the
// other branch's results from being merged — a socket error on the
// network side must not suppress USB devices already found, and vice
// versa (§4.2 "Failure semantics").
func (s *Service) Discover(ctx context.Context) (Merge, error) {
	var netErr, usbErr error
	var found []*device.Descriptor

	if s.queryNetworkFunc != nil {
		netDevices, err := s.queryNetworkFunc(s.cfg)
		netErr = err
		found = append(found, netDevices...)
	}
	if s.enumerateUSBFunc != nil {
		usbDevices, err := s.enumerateUSBFunc(s.cfg)
		usbErr = err
		found = append(found, usbDevices...)
	}

	if ctx.Err() != nil {
		return Merge{}, ctx.Err()
	}

	merge := s.mergeLocked(found)

	switch {
	case netErr != nil:
		return merge, netErr
	case usbErr != nil:
		return merge, usbErr
	default:
		return merge, nil
	}
}

func (s *Service) mergeLocked(found []*device.Descriptor) Merge {
	s.mu.Lock()
	defer s.mu.Unlock()

	var merge Merge
	seen := make(map[string]bool, len(found))

	for _, d := range found {
		key := d.Key()
		seen[key] = true

		existing, ok := s.devices[key]
		if !ok {
			s.devices[key] = d
			merge.Added = append(merge.Added, d)
			continue
		}

		if applyDiscoveredFields(existing, d) {
			merge.Updated = append(merge.Updated, existing)
		}
	}

	for key, existing := range s.devices {
		if seen[key] {
			continue
		}
		// A session already owns this device (Connecting, Subscribing,
		// Connected or Draining); a missed broadcast response must not
		// evict it out from under the session (§4.2 "state field is
		// preserved if a session already owns the device").
		switch existing.State() {
		case device.Connecting, device.Subscribing, device.Connected, device.Draining:
			continue
		}
		delete(s.devices, key)
		merge.Removed = append(merge.Removed, existing)
	}

	return merge
}

// applyDiscoveredFields copies the freshly-scanned metadata fields onto
// the existing descriptor in place, preserving its identity and
// connection state, and reports whether anything actually changed.
func applyDiscoveredFields(existing, fresh *device.Descriptor) bool {
	changed := existing.Model != fresh.Model ||
		existing.Firmware != fresh.Firmware ||
		existing.Addr != fresh.Addr ||
		existing.BusNumber != fresh.BusNumber ||
		existing.DeviceNumber != fresh.DeviceNumber

	existing.Model = fresh.Model
	existing.Firmware = fresh.Firmware
	existing.Addr = fresh.Addr
	existing.BusNumber = fresh.BusNumber
	existing.DeviceNumber = fresh.DeviceNumber

	return changed
}

// Devices returns every currently known descriptor.
func (s *Service) Devices() []*device.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*device.Descriptor, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

// Forget removes a device from the table unconditionally, used when the
// UI explicitly discards a device the scan no longer needs to track.
func (s *Service) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, key)
}
