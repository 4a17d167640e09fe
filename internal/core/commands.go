package core

import (
	"context"
	"time"

	"github.com/k0ucp/ucpbridge/internal/learn"
	"github.com/k0ucp/ucpbridge/internal/mapping"
	"github.com/k0ucp/ucpbridge/internal/midiio"
	"github.com/k0ucp/ucpbridge/internal/syncengine"
)

// Discover runs one discovery scan and publishes DiscoveryUpdated (§6
// "Discover()"). Devices a session already owns survive a missed scan,
// per discovery.Service.Discover's merge semantics.
func (c *Core) Discover(ctx context.Context) error {
	merge, err := c.discoveryService.Discover(ctx)

	c.mu.Lock()
	for _, d := range merge.Added {
		c.devices[d.Identifier] = d
	}
	for _, d := range merge.Removed {
		delete(c.devices, d.Identifier)
	}
	c.mu.Unlock()

	if len(merge.Added) > 0 || len(merge.Updated) > 0 || len(merge.Removed) > 0 {
		c.events(DiscoveryUpdated{Added: merge.Added, Updated: merge.Updated, Removed: merge.Removed})
	}
	return err
}

// OpenMidiPort opens a MIDI port in the given direction (§6
// "OpenMidiPort(id, direction)"). Input events are fed to the learn FSM
// first and, if not absorbed, to the sync engine.
func (c *Core) OpenMidiPort(portID string, dir midiio.Direction) error {
	switch dir {
	case midiio.Input:
		return c.midi.OpenInput(portID, c.onMidiEvent)
	case midiio.Output:
		_, err := c.midi.OpenOutput(portID)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.openOutputs[portID] = true
		c.mu.Unlock()
		return nil
	default:
		return nil
	}
}

// CloseMidiPort closes a previously opened MIDI port (§6
// "CloseMidiPort(id, direction)").
func (c *Core) CloseMidiPort(portID string, dir midiio.Direction) error {
	if dir == midiio.Output {
		c.mu.Lock()
		delete(c.openOutputs, portID)
		c.mu.Unlock()
	}
	return c.midi.Close(portID, dir)
}

// onMidiEvent is every open input port's callback: Learn sees the event
// first (§4.8 "while Listening, inbound MIDI events are delivered to the
// FSM first"); if it doesn't absorb the event, the sync engine
// translates it.
func (c *Core) onMidiEvent(te midiio.TimedEvent) {
	if c.learnFSM.HandleEvent(te.Event) {
		return
	}
	c.engine.MidiIn(te.Event, te.Timestamp)
}

// StartLearn puts the learn FSM into Listening for target (§6
// "StartLearn(target)").
func (c *Core) StartLearn(target learn.Target) error {
	if err := c.learnFSM.Start(target); err != nil {
		return err
	}
	c.events(LearnStateChanged{State: learn.Listening})
	return nil
}

// CancelLearn returns the learn FSM to Idle without publishing a binding
// (§6 "CancelLearn()").
func (c *Core) CancelLearn() {
	c.learnFSM.Cancel()
	c.events(LearnStateChanged{State: learn.Idle})
}

func (c *Core) onLearnBound(b learn.Bound) {
	c.events(LearnStateChanged{State: learn.Idle})
	c.events(LearnBound{Source: b.SourceDescriptor, Target: b.Target, Taper: b.SuggestedTaper})
}

func (c *Core) onLearnTimeout() {
	c.events(LearnStateChanged{State: learn.Idle})
	c.events(LearnTimedOut{})
}

// AddMapping validates and inserts record (§6 "AddMapping(record)").
func (c *Core) AddMapping(record mapping.Record) error {
	if err := c.mappings.Add(record); err != nil {
		return err
	}
	c.engine.MappingsChanged()
	return nil
}

// UpdateMapping replaces an existing record by ID (§6
// "UpdateMapping(record)").
func (c *Core) UpdateMapping(record mapping.Record) error {
	if err := c.mappings.Replace(record); err != nil {
		return err
	}
	c.engine.MappingsChanged()
	return nil
}

// RemoveMapping deletes a mapping by ID (§6 "RemoveMapping(id)").
func (c *Core) RemoveMapping(id int64) error {
	if err := c.mappings.Remove(id); err != nil {
		return err
	}
	c.engine.MappingsChanged()
	return nil
}

// GetMappings returns every current mapping record (§6
// "GetMappings()").
func (c *Core) GetMappings() []mapping.Record {
	return c.mappings.All()
}

// GetLatencyStats returns the sync engine's current latency stats (§6
// "GetLatencyStats()").
func (c *Core) GetLatencyStats() syncengine.LatencyStats {
	return c.engine.Stats()
}

// ClearLatencyStats empties the latency ring (§6
// "ClearLatencyStats()").
func (c *Core) ClearLatencyStats() {
	c.engine.ClearStats()
}

// SetParameter writes a UI-originated parameter directly to the device
// and records it in the sync engine's shadow state under the Local
// origin (§6 "SetParameter... used by UI controls; also goes through
// shadow state"), so the control surface's MIDI echo of the feedback
// this write produces is recognized and suppressed rather than sent on
// to the device again.
func (c *Core) SetParameter(deviceID, address string, value float64) {
	c.engine.LocalSet(deviceID, address, value, time.Now())
}

// RunLatencyTicker emits LatencyUpdated at most every 100 ms until ctx
// is cancelled, only when the stats actually changed since the last
// emission (§6 "(on change; at most every 100 ms)").
func (c *Core) RunLatencyTicker(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last syncengine.LatencyStats
	first := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.engine.Stats()
			if first || stats != last {
				c.events(LatencyUpdated{Stats: stats})
				last = stats
				first = false
			}
		}
	}
}
