// Package paramstore implements the in-memory hierarchical parameter
// store (§4.4): a thread-safe map from (device_id, address) to the last
// value a session reader observed, updated idempotently by inbound
// timestamp.
package paramstore

import (
	"sync"
	"time"
)

// Kind tags what a Value actually holds (§3 "Parameter value").
type Kind int

const (
	KindFloat Kind = iota
	KindBool
	KindString
)

// Value is a tagged parameter value. Writes from the core are always
// normalized float in [0,1] for KindFloat; KindBool toggles are stored
// as true/false; KindString is read-only metadata surfaced by state
// dumps (device/channel names).
type Value struct {
	Kind   Kind
	Float  float32
	Bool   bool
	String string
}

type key struct {
	deviceID string
	address  string
}

type entry struct {
	value     Value
	updatedAt time.Time
}

// Store is the shared, thread-safe parameter map. The zero value is
// ready to use.
type Store struct {
	mu   sync.RWMutex
	data map[key]entry
}

// New builds an empty Store.
func New() *Store {
	return &Store{data: make(map[key]entry)}
}

// Update records a value for (deviceID, address) if it is not older than
// what's already stored — last-write-wins by inbound timestamp (§4.4).
// Returns true if the value was stored (even when it equals the previous
// one), false if the observation was older and was discarded.
func (s *Store) Update(deviceID, address string, v Value, observedAt time.Time) bool {
	k := key{deviceID, address}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[key]entry)
	}

	existing, ok := s.data[k]
	if ok && observedAt.Before(existing.updatedAt) {
		return false
	}

	s.data[k] = entry{value: v, updatedAt: observedAt}
	return true
}

// Read returns the current value for (deviceID, address), if any.
func (s *Store) Read(deviceID, address string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key{deviceID, address}]
	return e.value, ok
}

// Entry pairs an address with its value, returned by Snapshot.
type Entry struct {
	Address string
	Value   Value
}

// Snapshot returns every (address, value) currently stored for a device,
// for UI consumption (§4.4). The result is a copy; mutating it does not
// affect the store.
func (s *Store) Snapshot(deviceID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for k, e := range s.data {
		if k.deviceID == deviceID {
			out = append(out, Entry{Address: k.address, Value: e.value})
		}
	}
	return out
}

// Forget removes every entry belonging to a device.
func (s *Store) Forget(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.data {
		if k.deviceID == deviceID {
			delete(s.data, k)
		}
	}
}
