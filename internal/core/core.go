// Package core wires C1–C9 into one process value (SPEC_FULL.md §2,
// Design Notes §9: "a Core value created at init and passed explicitly;
// no ambient globals"). It is the command/event boundary §6 describes:
// every UI-facing command is a Core method, every UI-facing event is
// published through the EventSink passed to New.
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/k0ucp/ucpbridge/internal/config"
	"github.com/k0ucp/ucpbridge/internal/device"
	"github.com/k0ucp/ucpbridge/internal/discovery"
	"github.com/k0ucp/ucpbridge/internal/learn"
	"github.com/k0ucp/ucpbridge/internal/mapping"
	"github.com/k0ucp/ucpbridge/internal/midiio"
	"github.com/k0ucp/ucpbridge/internal/paramstore"
	"github.com/k0ucp/ucpbridge/internal/session"
	"github.com/k0ucp/ucpbridge/internal/syncengine"
)

// Core owns every component and the bookkeeping needed to route commands
// and events between them. The zero value is not usable; build one with
// New.
type Core struct {
	cfg    config.Config
	log    *log.Logger
	events EventSink

	discoveryService *discovery.Service
	params           *paramstore.Store
	mappings         *mapping.Store
	midi             *midiio.Registry
	learnFSM         *learn.FSM
	engine           *syncengine.Engine

	engineCancel context.CancelFunc

	mu          sync.Mutex
	devices     map[string]*device.Descriptor
	sessions    map[string]*sessionHandle
	openOutputs map[string]bool
}

type sessionHandle struct {
	session *session.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Config wires New's external collaborators: the event sink, the MIDI
// backend, and the on-disk configuration.
type Config struct {
	Settings     config.Config
	Logger       *log.Logger
	Events       EventSink
	MidiProvider midiio.Provider
}

// New builds a fully wired Core. Nothing runs until Start is called.
func New(cfg Config) *Core {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	events := cfg.Events
	if events == nil {
		events = func(Event) {}
	}
	midiProvider := cfg.MidiProvider
	if midiProvider == nil {
		midiProvider = midiio.NewPtyProvider()
	}

	c := &Core{
		cfg:         cfg.Settings,
		log:         logger,
		events:      events,
		params:      paramstore.New(),
		midi:        midiio.NewRegistry(midiProvider),
		devices:     make(map[string]*device.Descriptor),
		sessions:    make(map[string]*sessionHandle),
		openOutputs: make(map[string]bool),
	}

	c.discoveryService = discovery.New(discovery.Config{
		ClientIdentity:      cfg.Settings.ClientIdentity,
		BroadcastAddr:       cfg.Settings.Discovery.BroadcastAddr,
		BroadcastPort:       cfg.Settings.Discovery.BroadcastPort,
		QueryWindow:         cfg.Settings.Discovery.QueryWindow.Std(),
		IgnoreModelPrefixes: cfg.Settings.Discovery.IgnoreModelPrefixes,
		USBVendorID:         cfg.Settings.Discovery.USBVendorID,
		USBProductAllowList: cfg.Settings.Discovery.USBProductAllowList,
	})

	c.mappings = mapping.NewStore(c)

	c.learnFSM = learn.New(cfg.Settings.Learn.Timeout.Std(), c.onLearnBound, c.onLearnTimeout)

	c.engine = syncengine.New(syncengine.Config{
		Mappings:            c.mappings,
		SendParameter:       c.sendParameterToDevice,
		SendMidi:            c.sendMidiToPorts,
		OnFailure:           c.onEngineFailure,
		OnParameterAccepted: c.onParameterAccepted,
		EchoWindow:          cfg.Settings.SyncEngine.EchoWindow.Std(),
		CoalesceWindow:      cfg.Settings.SyncEngine.CoalesceWindow.Std(),
		SweepInterval:       cfg.Settings.SyncEngine.SweepInterval.Std(),
		ShadowMaxAge:        cfg.Settings.SyncEngine.ShadowMaxAge.Std(),
		RingCapacity:        cfg.Settings.SyncEngine.RingCapacity,
	})

	return c
}

// Start launches the sync engine's event loop; it runs until ctx is
// cancelled.
func (c *Core) Start(ctx context.Context) {
	engineCtx, cancel := context.WithCancel(ctx)
	c.engineCancel = cancel
	go c.engine.Run(engineCtx)
}

// Stop cancels the sync engine and every active session.
func (c *Core) Stop() {
	if c.engineCancel != nil {
		c.engineCancel()
	}

	c.mu.Lock()
	handles := make([]*sessionHandle, 0, len(c.sessions))
	for _, h := range c.sessions {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.done
	}
}

// DeviceKnown implements mapping.Resolver against the devices this core
// currently knows about, whether merely discovered or actively
// connected (§4.6 "references unresolvable device... reported at
// add-time").
func (c *Core) DeviceKnown(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.devices[deviceID]
	return ok
}

func (c *Core) sessionFor(deviceID string) (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.sessions[deviceID]
	if !ok {
		return nil, false
	}
	return h.session, true
}

func (c *Core) sendParameterToDevice(deviceID, address string, value float64) error {
	sess, ok := c.sessionFor(deviceID)
	if !ok {
		return fmt.Errorf("core: device %q has no active session", deviceID)
	}
	return sess.SendParameter(address, value)
}

// sendMidiToPorts broadcasts an outbound MIDI event to every output port
// the UI has opened (§4.9's MidiSink has no per-mapping port concept;
// every open output is assumed to want the translated control stream,
// mirroring a control surface with a single feedback-LED bus).
func (c *Core) sendMidiToPorts(ev midiio.Event) error {
	c.mu.Lock()
	ports := make([]string, 0, len(c.openOutputs))
	for portID := range c.openOutputs {
		ports = append(ports, portID)
	}
	c.mu.Unlock()

	var firstErr error
	for _, portID := range ports {
		if err := c.midi.Send(portID, ev); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.events(MidiOutgoing{PortID: portID, Event: ev})
	}
	return firstErr
}

func (c *Core) onParameterAccepted(deviceID, address string, value float64) {
	c.events(UcpParameterChanged{DeviceID: deviceID, Address: address, Value: value})
}

func (c *Core) onEngineFailure(err error) {
	if err != nil {
		c.log.Error("sync engine write failed", "err", err)
	}
}
