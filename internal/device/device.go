// Package device holds the descriptor shared by discovery and session
// management. A descriptor is owned by discovery; a connected session
// holds a reference to the same value and serializes its own state
// transitions (§3 "Device descriptor").
package device

import "sync"

// Transport identifies how a device is reached.
type Transport int

const (
	Network Transport = iota
	USB
)

func (t Transport) String() string {
	switch t {
	case Network:
		return "network"
	case USB:
		return "usb"
	default:
		return "unknown"
	}
}

// State is a device's connection lifecycle state.
type State int

const (
	Discovered State = iota
	Connecting
	Subscribing
	Connected
	Draining
	Disconnected
	Failed
)

func (s State) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Connected:
		return "connected"
	case Draining:
		return "draining"
	case Disconnected:
		return "disconnected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Descriptor identifies a mixer reachable over the network or USB.
//
// Identifier is unique for the lifetime of the process. Network devices
// carry a host:port address; USB devices carry a bus/device index pair
// instead, and Addr is empty.
type Descriptor struct {
	Identifier string
	Transport  Transport
	Model      string
	Firmware   string

	Addr         string // host:port, Network only
	BusNumber    int    // USB only
	DeviceNumber int    // USB only

	mu    sync.Mutex
	state State
}

// NewDescriptor builds a descriptor in the Discovered state.
func NewDescriptor(identifier string, transport Transport) *Descriptor {
	return &Descriptor{
		Identifier: identifier,
		Transport:  transport,
		state:      Discovered,
	}
}

// State returns the current connection state.
func (d *Descriptor) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetState transitions the descriptor's state. Transitions are serialized
// per device (§3) by this mutex; the session manager and discovery service
// are the only callers.
func (d *Descriptor) SetState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

// Key uniquely identifies a descriptor across transports, used by
// discovery's dedup map (§4.2).
func (d *Descriptor) Key() string {
	return d.Transport.String() + ":" + d.Identifier
}
