// Package learn implements the MIDI Learn state machine (§4.8): a
// process-wide Idle/Listening toggle that binds the next qualifying
// MIDI event to a selected mixer parameter.
package learn

import (
	"strings"
	"sync"
	"time"

	"github.com/k0ucp/ucpbridge/internal/mapping"
	"github.com/k0ucp/ucpbridge/internal/midiio"
	"github.com/k0ucp/ucpbridge/internal/taper"
)

// State is the FSM's current mode.
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Target names what a successful Listen binds — the mixer parameter the
// UI wants the next MIDI event assigned to.
type Target struct {
	DeviceID  string
	Channel   int
	ParamKind mapping.ParamKind
	Address   string
}

// DefaultTimeout is how long Listening waits for a qualifying message
// before giving up (§4.8).
const DefaultTimeout = 10 * time.Second

// TaperSuggestion is the FSM's best-guess taper for a bound target,
// derived from its address (§4.8 "Suggested taper"). Applicable is
// false for toggle-like targets (mute) where a taper curve doesn't
// mean anything.
type TaperSuggestion struct {
	Curve      taper.Curve
	Applicable bool
}

// SuggestTaper implements §4.8's fixed suggestion table: volume ->
// AudioTaper, pan -> Linear, mute -> N/A. Any address not matching one
// of those canonical suffixes is also N/A rather than guessed at.
func SuggestTaper(target Target) TaperSuggestion {
	addr := strings.ToLower(target.Address)
	switch {
	case strings.HasSuffix(addr, "volume"):
		return TaperSuggestion{Curve: taper.AudioTaper, Applicable: true}
	case strings.HasSuffix(addr, "pan"):
		return TaperSuggestion{Curve: taper.Linear, Applicable: true}
	default:
		return TaperSuggestion{Applicable: false}
	}
}

// Bound is published when a qualifying MIDI event arrives while
// Listening (§4.8 "LearnBound").
type Bound struct {
	Target           Target
	SourceDescriptor midiio.Event
	SuggestedTaper   TaperSuggestion
}

// FSM is the learn state machine. The zero value is Idle and ready to
// use; construct with New to set callbacks.
type FSM struct {
	mu      sync.Mutex
	state   State
	target  Target
	started time.Time
	timer   *time.Timer
	timeout time.Duration

	onBound   func(Bound)
	onTimeout func()
}

// New builds an FSM with the given callbacks, invoked synchronously from
// whichever goroutine drives a transition (MIDI delivery or the timeout
// timer) — callers that need async dispatch should make onBound/onTimeout
// non-blocking themselves.
func New(timeout time.Duration, onBound func(Bound), onTimeout func()) *FSM {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FSM{state: Idle, timeout: timeout, onBound: onBound, onTimeout: onTimeout}
}

var ErrAlreadyListening error = alreadyListeningError{}

type alreadyListeningError struct{}

func (alreadyListeningError) Error() string { return "learn: already listening" }

// Start transitions Idle -> Listening for the given target. Only legal
// from Idle (§4.8); at most one Listening exists process-wide because
// there is exactly one FSM value shared by the core.
func (f *FSM) Start(target Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Listening {
		return ErrAlreadyListening
	}

	f.state = Listening
	f.target = target
	f.started = time.Now()
	f.timer = time.AfterFunc(f.timeout, f.fireTimeout)
	return nil
}

// Cancel transitions Listening -> Idle without publishing anything.
// A no-op if already Idle.
func (f *FSM) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toIdleLocked()
}

func (f *FSM) toIdleLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.state = Idle
}

func (f *FSM) fireTimeout() {
	f.mu.Lock()
	if f.state != Listening {
		f.mu.Unlock()
		return
	}
	f.toIdleLocked()
	f.mu.Unlock()

	if f.onTimeout != nil {
		f.onTimeout()
	}
}

// State returns the current FSM state and, if Listening, its target and
// start time.
func (f *FSM) State() (State, Target, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.target, f.started
}

// Qualifies reports whether an event passes the Learn filter (§4.8):
// Program Change and (treated-as-NoteOff) velocity-0 NoteOn are dropped;
// everything else midiio.Classify can produce is accepted. MIDI
// clock/active-sensing never reach here because Classify already drops
// them.
func Qualifies(ev midiio.Event) bool {
	switch {
	case ev.Kind == midiio.ProgramChange:
		return false
	case ev.Kind == midiio.NoteOff && ev.NoteOnZeroVelocity:
		return false
	default:
		return true
	}
}

// HandleEvent is the sync engine's hand-off point (§4.8 "while
// Listening, inbound MIDI events are delivered to the FSM first"). It
// returns true if the FSM absorbed the event (a qualifying match while
// Listening), meaning the caller must not also translate it through the
// sync engine. Absorbing transitions Listening -> Idle and invokes
// onBound.
func (f *FSM) HandleEvent(ev midiio.Event) bool {
	f.mu.Lock()
	if f.state != Listening {
		f.mu.Unlock()
		return false
	}
	if !Qualifies(ev) {
		f.mu.Unlock()
		return false
	}

	target := f.target
	f.toIdleLocked()
	f.mu.Unlock()

	if f.onBound != nil {
		f.onBound(Bound{
			Target:           target,
			SourceDescriptor: ev,
			SuggestedTaper:   SuggestTaper(target),
		})
	}
	return true
}
