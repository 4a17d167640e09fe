package midiio

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/term"
)

// defaultBaud is the speed most USB-MIDI-to-serial bridges present
// themselves at; it is not a MIDI wire rate (MIDI DIN is 31250 baud),
// it's the rate the adapter's virtual COM port actually runs.
const defaultBaud = 115200

// SerialProvider binds MIDI ports to raw serial devices — the same
// technique the teacher's serial_port.go uses for its TNC, and a
// realistic backend for USB-MIDI interfaces that expose a ttyACM/ttyUSB
// character device instead of an ALSA rawmidi port.
type SerialProvider struct {
	// PortNames lists the device paths ListPorts advertises, e.g.
	// "/dev/ttyACM0". A provider only opens what's named here.
	PortNames []string
}

func (p *SerialProvider) ListPorts() []string {
	return append([]string(nil), p.PortNames...)
}

func (p *SerialProvider) OpenInput(portID string) (InputPort, error) {
	tty, err := openSerial(portID)
	if err != nil {
		return nil, err
	}
	return &serialInput{id: portID, tty: tty}, nil
}

func (p *SerialProvider) OpenOutput(portID string) (OutputPort, error) {
	tty, err := openSerial(portID)
	if err != nil {
		return nil, err
	}
	return &serialOutput{id: portID, tty: tty}, nil
}

func openSerial(devicename string) (*term.Term, error) {
	tty, err := term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", devicename, err)
	}
	if err := tty.SetSpeed(defaultBaud); err != nil {
		_ = tty.Close()
		return nil, fmt.Errorf("set speed on %s: %w", devicename, err)
	}
	return tty, nil
}

type serialInput struct {
	id     string
	tty    *term.Term
	mu     sync.Mutex
	closed bool
}

func (s *serialInput) ID() string          { return s.id }
func (s *serialInput) Direction() Direction { return Input }

func (s *serialInput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.tty.Close()
}

// Listen starts a goroutine reading classified status/data byte triples
// off the serial device and delivering them in submission order, until
// the port is closed.
func (s *serialInput) Listen(onEvent func(TimedEvent)) error {
	go func() {
		buf := make([]byte, 3)
		for {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}

			if _, err := fillBuf(s.tty, buf[:1]); err != nil {
				return
			}
			status := buf[0]
			n := DataLength(status)
			var d1, d2 byte
			if n >= 1 {
				if _, err := fillBuf(s.tty, buf[1:2]); err != nil {
					return
				}
				d1 = buf[1]
			}
			if n >= 2 {
				if _, err := fillBuf(s.tty, buf[2:3]); err != nil {
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

func fillBuf(r interface{ Read([]byte) (int, error) }, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

type serialOutput struct {
	id  string
	tty *term.Term
	mu  sync.Mutex
}

func (s *serialOutput) ID() string          { return s.id }
func (s *serialOutput) Direction() Direction { return Output }
func (s *serialOutput) Close() error         { return s.tty.Close() }

func (s *serialOutput) Send(e Event) error {
	status, d1, d2 := Encode(e)
	n := DataLength(status)

	s.mu.Lock()
	defer s.mu.Unlock()

	data := append([]byte{status}, d1)
	if n >= 2 {
		data = append(data, d2)
	}

	written, err := s.tty.Write(data)
	if err != nil {
		return err
	}
	if written != len(data) {
		return fmt.Errorf("midiio: short write to %s (%d of %d bytes)", s.id, written, len(data))
	}
	return nil
}
