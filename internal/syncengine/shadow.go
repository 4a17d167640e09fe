package syncengine

import (
	"sync"
	"time"
)

// Origin tags which side of the bridge last wrote a shadow entry
// (§3 "Shadow state entry").
type Origin int

const (
	FromMidi Origin = iota
	FromUcp
	Local
)

func (o Origin) String() string {
	switch o {
	case FromMidi:
		return "from_midi"
	case FromUcp:
		return "from_ucp"
	case Local:
		return "local"
	default:
		return "unknown"
	}
}

type shadowKey struct {
	deviceID string
	address  string
}

type shadowEntry struct {
	value     float64
	origin    Origin
	writtenAt time.Time
}

// DefaultEchoWindow is how recent an opposite-origin write must be to
// count as the same physical change (§4.9, default 50 ms).
const DefaultEchoWindow = 50 * time.Millisecond

// DefaultSweepInterval is how often the cleanup task purges stale shadow
// entries (§4.9, default 5 s; not load-bearing on correctness).
const DefaultSweepInterval = 5 * time.Second

// shadowShard is one partition of the shadow map, guarded by its own
// lock so unrelated devices never contend (§5 "the shadow map is
// partitioned by device_id for parallelism").
type shadowShard struct {
	mu      sync.Mutex
	entries map[shadowKey]shadowEntry
}

const shadowShardCount = 16

// shadowState is the sync engine's exclusively-owned last-written-value
// cache (§3 "Shadow state entry", §4.9).
type shadowState struct {
	shards [shadowShardCount]*shadowShard
}

func newShadowState() *shadowState {
	s := &shadowState{}
	for i := range s.shards {
		s.shards[i] = &shadowShard{entries: make(map[shadowKey]shadowEntry)}
	}
	return s
}

func (s *shadowState) shardFor(deviceID string) *shadowShard {
	var h uint32 = 2166136261
	for i := 0; i < len(deviceID); i++ {
		h ^= uint32(deviceID[i])
		h *= 16777619
	}
	return s.shards[h%shadowShardCount]
}

// observe consults the shadow entry for (deviceID, address) against an
// incoming value written by newOrigin. If the last write came from
// echoOrigin specifically (the opposite side of this flow: FromUcp when
// newOrigin is FromMidi, and vice versa), equals value within tolerance,
// and is no older than window, the observation is an echo and must be
// dropped (§4.9 step 4 of MIDI→UCP, step 3 of UCP→MIDI). A Local write
// stands in for FromUcp here too — a UI-originated write is as
// authoritative as a device-originated one, so the control surface's
// MIDI echo of it is suppressed the same way. On a non-echo observation it
// records the new entry and reports accepted.
func (s *shadowState) observe(deviceID, address string, value float64, newOrigin, echoOrigin Origin, now time.Time, window time.Duration, equal func(a, b float64) bool) bool {
	shard := s.shardFor(deviceID)
	k := shadowKey{deviceID, address}

	shard.mu.Lock()
	defer shard.mu.Unlock()

	isEcho := func(origin Origin) bool {
		return origin == echoOrigin || (echoOrigin == FromUcp && origin == Local)
	}

	last, ok := shard.entries[k]
	if ok && isEcho(last.origin) && equal(last.value, value) && now.Sub(last.writtenAt) <= window {
		return false
	}

	shard.entries[k] = shadowEntry{value: value, origin: newOrigin, writtenAt: now}
	return true
}

// record unconditionally stores an entry, used for Local writes (UI
// SetParameter) that always win over echo suppression.
func (s *shadowState) record(deviceID, address string, value float64, origin Origin, now time.Time) {
	shard := s.shardFor(deviceID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.entries[shadowKey{deviceID, address}] = shadowEntry{value: value, origin: origin, writtenAt: now}
}

// sweep removes entries older than maxAge across every shard (§4.9
// "Cleanup").
func (s *shadowState) sweep(now time.Time, maxAge time.Duration) {
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, e := range shard.entries {
			if now.Sub(e.writtenAt) > maxAge {
				delete(shard.entries, k)
			}
		}
		shard.mu.Unlock()
	}
}

// purgeDevice removes every shadow entry for deviceID (§4.9
// "Disconnect(device_id)... shadow entries for that device are
// purged").
func (s *shadowState) purgeDevice(deviceID string) {
	shard := s.shardFor(deviceID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	for k := range shard.entries {
		if k.deviceID == deviceID {
			delete(shard.entries, k)
		}
	}
}
