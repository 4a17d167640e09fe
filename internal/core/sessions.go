package core

import (
	"context"
	"fmt"

	"github.com/k0ucp/ucpbridge/internal/device"
	"github.com/k0ucp/ucpbridge/internal/session"
)

// Connect starts (or returns the already-running) session for deviceID
// (§6 "Connect(device_id)").
func (c *Core) Connect(deviceID string) error {
	c.mu.Lock()
	descriptor, known := c.devices[deviceID]
	_, alreadyConnecting := c.sessions[deviceID]
	c.mu.Unlock()

	if !known {
		return fmt.Errorf("core: device %q is not known to discovery", deviceID)
	}
	if alreadyConnecting {
		return nil
	}

	sessCfg := session.Config{
		ClientIdentity:    c.cfg.ClientIdentity,
		ClientName:        c.cfg.ClientIdentity,
		ClientType:        "controller",
		ClientEncoding:    "utf-8",
		Params:            c.params,
		Engine:            c.engine,
		DialTimeout:       c.cfg.Session.DialTimeout.Std(),
		HandshakeTimeout:  c.cfg.Session.HandshakeTimeout.Std(),
		HeartbeatInterval: c.cfg.Session.HeartbeatInterval.Std(),
		HeartbeatTimeout:  c.cfg.Session.HeartbeatTimeout.Std(),
		ReconnectBackoff:  c.cfg.Session.ReconnectBackoff.Std(),
		OnStateChange:     c.onDeviceStateChanged,
		OnFailure:         c.onSessionFailure,
	}

	sess := session.New(descriptor, sessCfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.sessions[deviceID] = &sessionHandle{session: sess, cancel: cancel, done: done}
	c.mu.Unlock()

	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()

	return nil
}

// Disconnect tears down deviceID's session, if any (§6
// "Disconnect(device_id)"). The mapping store and parameter history are
// left untouched — a session loss does not invalidate mappings (§7).
func (c *Core) Disconnect(deviceID string) error {
	c.mu.Lock()
	h, ok := c.sessions[deviceID]
	delete(c.sessions, deviceID)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	h.cancel()
	<-h.done
	c.engine.Disconnect(deviceID)
	return nil
}

func (c *Core) onDeviceStateChanged(deviceID string, state device.State) {
	c.events(DeviceStateChanged{DeviceID: deviceID, State: state})
}

func (c *Core) onSessionFailure(deviceID string, err error) {
	if err != nil {
		c.log.Warn("session ended", "device_id", deviceID, "err", err)
	}
}
