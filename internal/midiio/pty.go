package midiio

import (
	"os"
	"sync"
	"time"

	"github.com/creack/pty"
)

// PtyProvider exposes each port as a pseudo-terminal pair: the provider
// reads/writes the master end, and SlavePath() hands back a path a
// debug client or integration test can open directly — a loopback MIDI
// port with no hardware required, the same shape as the teacher's
// pty-backed virtual KISS TNC in src/kiss.go.
type PtyProvider struct {
	mu    sync.Mutex
	pairs map[string]*ptyPair
}

type ptyPair struct {
	master *os.File
	slave  *os.File
}

// NewPtyProvider builds an empty PtyProvider; pairs are created lazily
// on first Open call for a given port ID.
func NewPtyProvider() *PtyProvider {
	return &PtyProvider{pairs: make(map[string]*ptyPair)}
}

func (p *PtyProvider) pairFor(portID string) (*ptyPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pr, ok := p.pairs[portID]; ok {
		return pr, nil
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}

	pr := &ptyPair{master: master, slave: slave}
	p.pairs[portID] = pr
	return pr, nil
}

// SlavePath returns the pty slave device path for portID, creating the
// pair if necessary. A debug client opens this path to talk MIDI bytes
// loopback-style to the bridge.
func (p *PtyProvider) SlavePath(portID string) (string, error) {
	pr, err := p.pairFor(portID)
	if err != nil {
		return "", err
	}
	return pr.slave.Name(), nil
}

func (p *PtyProvider) ListPorts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.pairs))
	for id := range p.pairs {
		out = append(out, id)
	}
	return out
}

func (p *PtyProvider) OpenInput(portID string) (InputPort, error) {
	pr, err := p.pairFor(portID)
	if err != nil {
		return nil, err
	}
	return &ptyInput{id: portID, pair: pr}, nil
}

func (p *PtyProvider) OpenOutput(portID string) (OutputPort, error) {
	pr, err := p.pairFor(portID)
	if err != nil {
		return nil, err
	}
	return &ptyOutput{id: portID, pair: pr}, nil
}

type ptyInput struct {
	id     string
	pair   *ptyPair
	mu     sync.Mutex
	closed bool
}

func (p *ptyInput) ID() string          { return p.id }
func (p *ptyInput) Direction() Direction { return Input }

func (p *ptyInput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.pair.master.Close()
}

func (p *ptyInput) Listen(onEvent func(TimedEvent)) error {
	go func() {
		buf := make([]byte, 3)
		for {
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}

			if _, err := fillBuf(p.pair.master, buf[:1]); err != nil {
				return
			}
			status := buf[0]
			n := DataLength(status)
			var d1, d2 byte
			if n >= 1 {
				if _, err := fillBuf(p.pair.master, buf[1:2]); err != nil {
					return
				}
				d1 = buf[1]
			}
			if n >= 2 {
				if _, err := fillBuf(p.pair.master, buf[2:3]); err != nil {
					return
				}
				d2 = buf[2]
			}

			if ev, ok := Classify(status, d1, d2); ok {
				onEvent(TimedEvent{Event: ev, Timestamp: time.Now()})
			}
		}
	}()
	return nil
}

type ptyOutput struct {
	id   string
	pair *ptyPair
	mu   sync.Mutex
}

func (p *ptyOutput) ID() string          { return p.id }
func (p *ptyOutput) Direction() Direction { return Output }
func (p *ptyOutput) Close() error         { return p.pair.master.Close() }

func (p *ptyOutput) Send(e Event) error {
	status, d1, d2 := Encode(e)
	n := DataLength(status)

	data := append([]byte{status}, d1)
	if n >= 2 {
		data = append(data, d2)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.pair.master.Write(data)
	return err
}
