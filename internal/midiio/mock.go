package midiio

import (
	"sync"
	"time"
)

// MockProvider is an in-process Provider for unit tests: no pty, no
// serial device, just channels. Tests call Inject to simulate an
// incoming message and Sent to inspect what was written to an output
// port.
type MockProvider struct {
	mu        sync.Mutex
	listeners map[string]func(TimedEvent)
	sent      map[string][]Event
}

// NewMockProvider builds an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		listeners: make(map[string]func(TimedEvent)),
		sent:      make(map[string][]Event),
	}
}

func (m *MockProvider) ListPorts() []string { return []string{"mock-in", "mock-out"} }

func (m *MockProvider) OpenInput(portID string) (InputPort, error) {
	return &mockInput{provider: m, id: portID}, nil
}

func (m *MockProvider) OpenOutput(portID string) (OutputPort, error) {
	return &mockOutput{provider: m, id: portID}, nil
}

// Inject simulates portID delivering ev right now.
func (m *MockProvider) Inject(portID string, ev Event) {
	m.mu.Lock()
	listener := m.listeners[portID]
	m.mu.Unlock()
	if listener != nil {
		listener(TimedEvent{Event: ev, Timestamp: time.Now()})
	}
}

// InjectAt is Inject with an explicit timestamp, for latency tests.
func (m *MockProvider) InjectAt(portID string, ev Event, ts time.Time) {
	m.mu.Lock()
	listener := m.listeners[portID]
	m.mu.Unlock()
	if listener != nil {
		listener(TimedEvent{Event: ev, Timestamp: ts})
	}
}

// Sent returns everything written to portID so far.
func (m *MockProvider) Sent(portID string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.sent[portID]...)
}

type mockInput struct {
	provider *MockProvider
	id       string
}

func (m *mockInput) ID() string          { return m.id }
func (m *mockInput) Direction() Direction { return Input }

func (m *mockInput) Close() error {
	m.provider.mu.Lock()
	defer m.provider.mu.Unlock()
	delete(m.provider.listeners, m.id)
	return nil
}

func (m *mockInput) Listen(onEvent func(TimedEvent)) error {
	m.provider.mu.Lock()
	defer m.provider.mu.Unlock()
	m.provider.listeners[m.id] = onEvent
	return nil
}

type mockOutput struct {
	provider *MockProvider
	id       string
}

func (m *mockOutput) ID() string          { return m.id }
func (m *mockOutput) Direction() Direction { return Output }
func (m *mockOutput) Close() error         { return nil }

func (m *mockOutput) Send(e Event) error {
	m.provider.mu.Lock()
	defer m.provider.mu.Unlock()
	m.provider.sent[m.id] = append(m.provider.sent[m.id], e)
	return nil
}
