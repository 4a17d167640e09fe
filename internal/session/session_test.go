package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0ucp/ucpbridge/internal/device"
	"github.com/k0ucp/ucpbridge/internal/frame"
	"github.com/k0ucp/ucpbridge/internal/paramstore"
)

// stateLog records OnStateChange transitions in order, safe for
// concurrent appends from the session's goroutine.
type stateLog struct {
	mu     sync.Mutex
	states []device.State
}

func (l *stateLog) record(_ string, s device.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) snapshot() []device.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]device.State, len(l.states))
	copy(out, l.states)
	return out
}

func (l *stateLog) contains(s device.State) bool {
	for _, st := range l.snapshot() {
		if st == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// serverHandshake drains the client's hello+subscribe frames and replies
// with a JM reply, acting as the device side of net.Pipe.
func serverHandshake(t *testing.T, server net.Conn) {
	t.Helper()
	hello, err := readFrame(server)
	require.NoError(t, err)
	require.Equal(t, frame.TypeJSONUM, hello.Type)

	sub, err := readFrame(server)
	require.NoError(t, err)
	require.Equal(t, frame.TypeJSONJM, sub.Type)

	_, err = server.Write(frame.Encode(frame.TypeJSONJM, []byte(`{"id":"Subscribe","status":"ok"}`)))
	require.NoError(t, err)
}

func pipeDial(client net.Conn) func(ctx context.Context, d *device.Descriptor, cfg Config) (Transport, error) {
	return func(context.Context, *device.Descriptor, Config) (Transport, error) {
		return client, nil
	}
}

func TestSessionConnectsAndAppliesInboundParameterValue(t *testing.T) {
	client, server := net.Pipe()
	descriptor := device.NewDescriptor("dev1", device.Network)
	params := paramstore.New()
	log := &stateLog{}

	cfg := Config{
		ClientIdentity:    "ucpbridge",
		ClientName:        "UCP Bridge",
		ClientType:        "controller",
		ClientEncoding:    "utf-8",
		Params:            params,
		Dial:              pipeDial(client),
		OnStateChange:     log.record,
		HandshakeTimeout:  time.Second,
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  2 * time.Second,
	}
	sess := New(descriptor, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		serverHandshake(t, server)

		pv := frame.ParamValue{Direction: frame.UnitToHost, Path: "ch1/volume", Value: 0.5}
		_, err := server.Write(frame.Encode(frame.TypeParamVal, frame.EncodeParamValue(pv)))
		assert.NoError(t, err)

		// Drain client KA frames until the pipe is torn down.
		for {
			if _, err := readFrame(server); err != nil {
				return
			}
		}
	}()

	go func() { _ = sess.Run(ctx) }()

	waitFor(t, time.Second, func() bool {
		v, ok := params.Read("dev1", "ch1/volume")
		return ok && v.Float == 0.5
	})
	waitFor(t, time.Second, func() bool { return log.contains(device.Connected) })

	cancel()
	_ = server.Close()
	<-serverDone
}

func TestSessionSendParameterWritesPVFrameWhileConnected(t *testing.T) {
	client, server := net.Pipe()
	descriptor := device.NewDescriptor("dev2", device.Network)
	params := paramstore.New()

	cfg := Config{
		ClientIdentity:    "ucpbridge",
		Params:            params,
		Dial:              pipeDial(client),
		HandshakeTimeout:  time.Second,
		HeartbeatInterval: 50 * time.Millisecond,
		HeartbeatTimeout:  2 * time.Second,
	}
	sess := New(descriptor, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan frame.ParamValue, 1)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		serverHandshake(t, server)
		for {
			fr, err := readFrame(server)
			if err != nil {
				return
			}
			if fr.Type == frame.TypeParamVal {
				pv, decErr := frame.DecodeParamValue(fr.Payload)
				assert.NoError(t, decErr)
				received <- pv
			}
		}
	}()

	go func() { _ = sess.Run(ctx) }()
	waitFor(t, time.Second, func() bool { return descriptor.State() == device.Connected })

	require.NoError(t, sess.SendParameter("ch1/volume", 0.75))

	select {
	case pv := <-received:
		assert.Equal(t, frame.HostToUnit, pv.Direction)
		assert.Equal(t, "ch1/volume", pv.Path)
		assert.InDelta(t, 0.75, pv.Value, 1e-6)
	case <-time.After(time.Second):
		t.Fatal("server never received the PV frame")
	}

	cancel()
	_ = server.Close()
	<-serverDone
}

func TestSessionHeartbeatTimeoutDisconnects(t *testing.T) {
	client, server := net.Pipe()
	descriptor := device.NewDescriptor("dev3", device.Network)
	params := paramstore.New()
	log := &stateLog{}

	cfg := Config{
		ClientIdentity:    "ucpbridge",
		Params:            params,
		Dial:              pipeDial(client),
		OnStateChange:     log.record,
		HandshakeTimeout:  time.Second,
		HeartbeatInterval: 10 * time.Millisecond,
		HeartbeatTimeout:  40 * time.Millisecond,
		ReconnectBackoff:  time.Hour, // keep the test to one connect cycle
	}
	sess := New(descriptor, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		serverHandshake(t, server)
		// Never send another frame; the heartbeat timeout must fire
		// and force the session back to Disconnected. Client KA frames
		// are still drained so the unbuffered pipe never blocks the
		// heartbeat's own write.
		for {
			if _, err := readFrame(server); err != nil {
				return
			}
		}
	}()

	go func() { _ = sess.Run(ctx) }()

	waitFor(t, time.Second, func() bool { return log.contains(device.Connected) })
	waitFor(t, time.Second, func() bool { return log.contains(device.Disconnected) })
}

func TestSessionHandshakeTimeoutFails(t *testing.T) {
	client, server := net.Pipe()
	descriptor := device.NewDescriptor("dev4", device.Network)
	params := paramstore.New()

	var mu sync.Mutex
	var failures []error

	cfg := Config{
		ClientIdentity:   "ucpbridge",
		Params:           params,
		Dial:             pipeDial(client),
		HandshakeTimeout: 20 * time.Millisecond,
		ReconnectBackoff: time.Hour,
		OnFailure: func(_ string, err error) {
			mu.Lock()
			defer mu.Unlock()
			failures = append(failures, err)
		},
	}
	sess := New(descriptor, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		// Drain the hello/subscribe frames but never reply, forcing the
		// handshake timeout.
		_, _ = readFrame(server)
		_, _ = readFrame(server)
	}()

	go func() { _ = sess.Run(ctx) }()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) > 0
	})
	assert.Equal(t, device.Failed, descriptor.State())
}

func TestDialForDescriptorReportsUSBUnavailable(t *testing.T) {
	descriptor := device.NewDescriptor("usb-1", device.USB)
	_, err := dialForDescriptor(context.Background(), descriptor, Config{})
	assert.ErrorIs(t, err, ErrUSBTransportUnavailable)
}

func TestSendParameterWithoutConnectionFails(t *testing.T) {
	descriptor := device.NewDescriptor("dev5", device.Network)
	sess := New(descriptor, Config{})
	err := sess.SendParameter("ch1/volume", 0.1)
	assert.ErrorIs(t, err, ErrChannelClosed)
}
