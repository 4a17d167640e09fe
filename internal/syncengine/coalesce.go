package syncengine

import (
	"sync"
	"time"
)

// coalesceKey identifies one 14-bit CC pair a HighResolution mapping
// source registers (§4.6 "14-bit coalescing").
type coalesceKey struct {
	channel int
	ccMSB   int
	ccLSB   int
}

type pendingMSB struct {
	value     int
	timestamp time.Time
	timer     *time.Timer
}

// coalesceBuffer remembers the last-seen MSB per 14-bit CC pair for up
// to DefaultCoalesceWindow, producing a single combined sample when the
// LSB arrives or, failing that, a degraded MSB-only sample when the
// window lapses (§4.6).
type coalesceBuffer struct {
	mu       sync.Mutex
	pending  map[coalesceKey]*pendingMSB
	window   time.Duration
	onExpire func(coalesceKey, int, time.Time)
}

// DefaultCoalesceWindow is how long the engine waits for a 14-bit CC
// pair's LSB before giving up and using the MSB alone (§4.9, default
// 40 ms).
const DefaultCoalesceWindow = 40 * time.Millisecond

func newCoalesceBuffer(window time.Duration, onExpire func(coalesceKey, int, time.Time)) *coalesceBuffer {
	if window <= 0 {
		window = DefaultCoalesceWindow
	}
	return &coalesceBuffer{pending: make(map[coalesceKey]*pendingMSB), window: window, onExpire: onExpire}
}

// msb records a new MSB observation for key, arming a timer that fires
// onExpire with the MSB-only sample if no matching LSB arrives in time.
func (c *coalesceBuffer) msb(key coalesceKey, value int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.pending[key]; ok && existing.timer != nil {
		existing.timer.Stop()
	}

	entry := &pendingMSB{value: value, timestamp: at}
	entry.timer = time.AfterFunc(c.window, func() { c.expire(key) })
	c.pending[key] = entry
}

func (c *coalesceBuffer) expire(key coalesceKey) {
	c.mu.Lock()
	entry, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if ok && c.onExpire != nil {
		c.onExpire(key, entry.value<<7, entry.timestamp)
	}
}

// lsb combines a pending MSB with an arriving LSB, returning the
// 14-bit value, the original MSB's timestamp, and whether a pending MSB
// actually existed. A stray LSB with no pending MSB is reported as not
// ok and must be ignored by the caller.
func (c *coalesceBuffer) lsb(key coalesceKey, value int, at time.Time) (int, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.pending[key]
	if !ok {
		return 0, at, false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(c.pending, key)
	return (entry.value << 7) | (value & 0x7F), entry.timestamp, true
}
