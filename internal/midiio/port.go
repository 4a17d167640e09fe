package midiio

import (
	"errors"
	"sync"
)

// Direction is which way a port carries events.
type Direction int

const (
	Input Direction = iota
	Output
)

// MidiError is the typed error surface the adapter promises (§4.7).
type MidiError struct {
	PortID string
	Op     string
	Err    error
}

func (e *MidiError) Error() string {
	return "midiio: " + e.Op + " " + e.PortID + ": " + e.Err.Error()
}

func (e *MidiError) Unwrap() error { return e.Err }

var ErrPortClosed = errors.New("midiio: port closed")

// Port is the OS-agnostic MIDI port surface the adapter hides platform
// specifics behind (§4.7): events are delivered (Input) or accepted
// (Output) in submission order, and a port can be closed.
type Port interface {
	ID() string
	Direction() Direction
	Close() error
}

// InputPort delivers classified events to a callback registered via
// Listen. Implementations must deliver in submission order per port.
type InputPort interface {
	Port
	Listen(func(TimedEvent)) error
}

// OutputPort accepts events for transmission to the physical device.
type OutputPort interface {
	Port
	Send(Event) error
}

// Provider binds to the OS (or a test double) MIDI facility and opens
// ports by name. This is the seam SPEC_FULL.md's domain stack wires real
// backends into: a serial/pkg-term backend for USB-serial MIDI
// interfaces, and a pty-loopback backend for tests and headless
// operation.
type Provider interface {
	OpenInput(portID string) (InputPort, error)
	OpenOutput(portID string) (OutputPort, error)
	ListPorts() []string
}

// Registry tracks currently open ports for the core's OpenMidiPort /
// CloseMidiPort commands (§6) and hands out typed errors on misuse.
type Registry struct {
	provider Provider

	mu      sync.Mutex
	inputs  map[string]InputPort
	outputs map[string]OutputPort
}

// NewRegistry wraps a Provider with open/close bookkeeping.
func NewRegistry(p Provider) *Registry {
	return &Registry{
		provider: p,
		inputs:   make(map[string]InputPort),
		outputs:  make(map[string]OutputPort),
	}
}

// OpenInput opens (or returns the already-open) input port, and starts
// delivering its events to onEvent.
func (r *Registry) OpenInput(portID string, onEvent func(TimedEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inputs[portID]; ok {
		return nil
	}

	p, err := r.provider.OpenInput(portID)
	if err != nil {
		return &MidiError{PortID: portID, Op: "open_input", Err: err}
	}
	if err := p.Listen(onEvent); err != nil {
		return &MidiError{PortID: portID, Op: "listen", Err: err}
	}

	r.inputs[portID] = p
	return nil
}

// OpenOutput opens (or returns the already-open) output port.
func (r *Registry) OpenOutput(portID string) (OutputPort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.outputs[portID]; ok {
		return p, nil
	}

	p, err := r.provider.OpenOutput(portID)
	if err != nil {
		return nil, &MidiError{PortID: portID, Op: "open_output", Err: err}
	}

	r.outputs[portID] = p
	return p, nil
}

// Close closes a port in either direction, dropping it from the
// registry.
func (r *Registry) Close(portID string, dir Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch dir {
	case Input:
		p, ok := r.inputs[portID]
		if !ok {
			return nil
		}
		delete(r.inputs, portID)
		return p.Close()
	case Output:
		p, ok := r.outputs[portID]
		if !ok {
			return nil
		}
		delete(r.outputs, portID)
		return p.Close()
	default:
		return nil
	}
}

// Send writes an event to an already-open output port.
func (r *Registry) Send(portID string, e Event) error {
	r.mu.Lock()
	p, ok := r.outputs[portID]
	r.mu.Unlock()

	if !ok {
		return &MidiError{PortID: portID, Op: "send", Err: ErrPortClosed}
	}
	if err := p.Send(e); err != nil {
		return &MidiError{PortID: portID, Op: "send", Err: err}
	}
	return nil
}

// ListPorts delegates to the underlying provider.
func (r *Registry) ListPorts() []string { return r.provider.ListPorts() }
