// Package mapping implements the mapping store (§4.6, §3 "Mapping
// record"): the set of MIDI-to-UCP bindings the sync engine consults on
// every event, indexed both by MIDI source and by UCP target so lookups
// in either direction of §4.9's flow are O(1).
package mapping

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/k0ucp/ucpbridge/internal/taper"
)

// SourceKind discriminates the four MIDI trigger shapes a mapping can
// bind to (§3).
type SourceKind int

const (
	ControlChange SourceKind = iota
	Note
	PitchBend
	HighResolution
)

// Source is a mapping's MIDI trigger. Only the fields relevant to Kind
// are meaningful: CC for ControlChange, NoteNumber for Note, CCMSB/CCLSB
// for HighResolution. Channel and PitchBend carry no extra data beyond
// the channel itself.
type Source struct {
	Kind       SourceKind
	Channel    int
	CC         int
	NoteNumber int
	CCMSB      int
	CCLSB      int
}

// ParamKind is a target parameter's shape (§3).
type ParamKind int

const (
	Continuous ParamKind = iota
	Toggle
)

// Target is a mapping's UCP destination.
type Target struct {
	DeviceID string
	Address  string
	Kind     ParamKind
}

// Record is one mapping binding a MIDI Source to a UCP Target through a
// taper curve and window (§3).
type Record struct {
	ID            int64
	Source        Source
	Target        Target
	Taper         taper.Curve
	MinNorm       float64
	MaxNorm       float64
	Invert        bool
	Bidirectional bool
	Label         string
}

func (r Record) window() taper.Window {
	return taper.Window{Min: r.MinNorm, Max: r.MaxNorm, Invert: r.Invert}
}

// Window returns the taper window this record's Forward/Reverse
// transforms should use.
func (r Record) Window() taper.Window { return r.window() }

var (
	// ErrDuplicateID is returned by Add when the record's ID is already
	// registered.
	ErrDuplicateID = errors.New("mapping: duplicate id")
	// ErrUnresolvableSource is returned when a record's MIDI source
	// fields are internally inconsistent (e.g. a negative CC number).
	ErrUnresolvableSource = errors.New("mapping: unresolvable source")
	// ErrUnresolvableTarget is returned when a record's target device is
	// not known to the Resolver passed to the store.
	ErrUnresolvableTarget = errors.New("mapping: unresolvable target")
	// ErrNotFound is returned by Remove/Replace for an unknown ID.
	ErrNotFound = errors.New("mapping: not found")
)

// Resolver tells the store whether a target device/address combination
// can be resolved, per spec.md §4.6/§7 ("Mapping: references
// unresolvable device or address. Reported at add-time and the add is
// refused."). A minimal implementation only needs to know which device
// IDs are known; address syntax is validated by the store itself.
type Resolver interface {
	DeviceKnown(deviceID string) bool
}

type midiKey struct {
	channel int
	kind    byte // 'C' control change, 'N' note, 'P' pitch bend
	number  int
}

type targetKey struct {
	deviceID string
	address  string
}

// Store holds the full set of mapping records plus the two indices
// §4.6 requires, mutated transactionally (§4.6 "add/remove/replace
// updates both indices atomically").
type Store struct {
	mu       sync.RWMutex
	records  map[int64]Record
	byMIDI   map[midiKey][]int64
	byTarget map[targetKey][]int64
	resolver Resolver
}

// NewStore builds an empty store. resolver may be nil, in which case
// target device resolvability is not checked (useful for tests).
func NewStore(resolver Resolver) *Store {
	return &Store{
		records:  make(map[int64]Record),
		byMIDI:   make(map[midiKey][]int64),
		byTarget: make(map[targetKey][]int64),
		resolver: resolver,
	}
}

func validAddress(address string) bool {
	if address == "" {
		return false
	}
	for _, r := range address {
		if r == '/' {
			continue
		}
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

func validateSource(s Source) error {
	switch s.Kind {
	case ControlChange:
		if s.CC < 0 || s.CC > 127 {
			return fmt.Errorf("%w: cc %d out of range", ErrUnresolvableSource, s.CC)
		}
	case Note:
		if s.NoteNumber < 0 || s.NoteNumber > 127 {
			return fmt.Errorf("%w: note %d out of range", ErrUnresolvableSource, s.NoteNumber)
		}
	case PitchBend:
		// no extra fields to validate
	case HighResolution:
		if s.CCMSB < 0 || s.CCMSB > 127 || s.CCLSB < 0 || s.CCLSB > 127 {
			return fmt.Errorf("%w: high-res cc pair (%d,%d) out of range", ErrUnresolvableSource, s.CCMSB, s.CCLSB)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %d", ErrUnresolvableSource, s.Kind)
	}
	if s.Channel < 0 || s.Channel > 15 {
		return fmt.Errorf("%w: channel %d out of range", ErrUnresolvableSource, s.Channel)
	}
	return nil
}

func (s *Store) validateTarget(t Target) error {
	if !validAddress(t.Address) {
		return fmt.Errorf("%w: address %q", ErrUnresolvableTarget, t.Address)
	}
	if s.resolver != nil && !s.resolver.DeviceKnown(t.DeviceID) {
		return fmt.Errorf("%w: device %q", ErrUnresolvableTarget, t.DeviceID)
	}
	return nil
}

// midiKeysFor returns every by_midi key a source registers under. A
// HighResolution source registers both its MSB and LSB CC numbers
// (§4.6 "14-bit coalescing").
func midiKeysFor(s Source) []midiKey {
	switch s.Kind {
	case ControlChange:
		return []midiKey{{s.Channel, 'C', s.CC}}
	case Note:
		return []midiKey{{s.Channel, 'N', s.NoteNumber}}
	case PitchBend:
		return []midiKey{{s.Channel, 'P', 0}}
	case HighResolution:
		return []midiKey{{s.Channel, 'C', s.CCMSB}, {s.Channel, 'C', s.CCLSB}}
	default:
		return nil
	}
}

// Add validates and inserts a new mapping record, updating both indices
// atomically. Two mappings may legitimately share a target or a source
// (§3); only the ID must be unique.
func (s *Store) Add(r Record) error {
	if err := validateSource(r.Source); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateTarget(r.Target); err != nil {
		return err
	}
	if _, exists := s.records[r.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, r.ID)
	}

	s.records[r.ID] = r
	for _, k := range midiKeysFor(r.Source) {
		s.byMIDI[k] = append(s.byMIDI[k], r.ID)
	}
	tk := targetKey{r.Target.DeviceID, r.Target.Address}
	s.byTarget[tk] = append(s.byTarget[tk], r.ID)

	return nil
}

// Remove deletes a mapping by ID, updating both indices atomically.
func (s *Store) Remove(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id int64) error {
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	delete(s.records, id)
	for _, k := range midiKeysFor(r.Source) {
		s.byMIDI[k] = removeID(s.byMIDI[k], id)
	}
	tk := targetKey{r.Target.DeviceID, r.Target.Address}
	s.byTarget[tk] = removeID(s.byTarget[tk], id)

	return nil
}

func removeID(ids []int64, target int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Replace atomically swaps the record stored under r.ID, removing it
// from its old index slots and adding it to its new ones.
func (s *Store) Replace(r Record) error {
	if err := validateSource(r.Source); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateTarget(r.Target); err != nil {
		return err
	}
	if _, ok := s.records[r.ID]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, r.ID)
	}

	if err := s.removeLocked(r.ID); err != nil {
		return err
	}

	s.records[r.ID] = r
	for _, k := range midiKeysFor(r.Source) {
		s.byMIDI[k] = append(s.byMIDI[k], r.ID)
	}
	tk := targetKey{r.Target.DeviceID, r.Target.Address}
	s.byTarget[tk] = append(s.byTarget[tk], r.ID)

	return nil
}

// ReplaceAll atomically swaps the store's entire record set, used to
// load a persisted project in one step (§6 "Persisted state layout").
// Every record is validated before any mutation happens, so one bad
// record leaves the store untouched rather than partially applied.
func (s *Store) ReplaceAll(records []Record) error {
	for _, r := range records {
		if err := validateSource(r.Source); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err := s.validateTarget(r.Target); err != nil {
			return err
		}
	}

	seen := make(map[int64]bool, len(records))
	for _, r := range records {
		if seen[r.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true
	}

	s.records = make(map[int64]Record, len(records))
	s.byMIDI = make(map[midiKey][]int64)
	s.byTarget = make(map[targetKey][]int64)

	for _, r := range records {
		s.records[r.ID] = r
		for _, k := range midiKeysFor(r.Source) {
			s.byMIDI[k] = append(s.byMIDI[k], r.ID)
		}
		tk := targetKey{r.Target.DeviceID, r.Target.Address}
		s.byTarget[tk] = append(s.byTarget[tk], r.ID)
	}
	return nil
}

// Get returns a single record by ID.
func (s *Store) Get(id int64) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// All returns every record, for the UI's GetMappings command (§6).
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// ByMIDIControlChange returns every mapping that should fire for an
// incoming ControlChange, including HighResolution mappings whose MSB
// or LSB CC number matches cc.
func (s *Store) ByMIDIControlChange(channel, cc int) []Record {
	return s.lookup(midiKey{channel, 'C', cc})
}

// ByMIDINote returns every mapping bound to a Note source on (channel,
// note).
func (s *Store) ByMIDINote(channel, note int) []Record {
	return s.lookup(midiKey{channel, 'N', note})
}

// ByMIDIPitchBend returns every mapping bound to a PitchBend source on
// channel.
func (s *Store) ByMIDIPitchBend(channel int) []Record {
	return s.lookup(midiKey{channel, 'P', 0})
}

func (s *Store) lookup(k midiKey) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.recordsFor(s.byMIDI[k])
}

// ByTarget returns every mapping whose target is (deviceID, address), in
// ascending-ID order so the sync engine's per-event outbound writes are
// deterministic (§5 "mapping iteration order").
func (s *Store) ByTarget(deviceID, address string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.recordsFor(s.byTarget[targetKey{deviceID, address}])
}

// recordsFor resolves ids to records in ascending-ID order. Callers hold
// s.mu already.
func (s *Store) recordsFor(ids []int64) []Record {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]Record, 0, len(sorted))
	for _, id := range sorted {
		out = append(out, s.records[id])
	}
	return out
}
