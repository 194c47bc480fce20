// Package session arbitrates the process-wide audio session between capture
// and playback. Components ask for an intent before touching the hardware
// and the arbiter refuses combinations that cannot share the session.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marwant/zizh/internal/stream"
)

// ErrBusy is returned when an intent conflicts with one already held.
var ErrBusy = errors.New("audio session busy")

// Intent is what a component wants to do with the audio session.
type Intent int

const (
	Record Intent = iota
	Play
	PlaySlowMotion
)

func (i Intent) String() string {
	switch i {
	case Record:
		return "record"
	case Play:
		return "play"
	case PlaySlowMotion:
		return "play-slow-motion"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// conflicts reports whether a and b cannot hold the session at the same time.
// Normal playback shares a play-and-record session with capture; the
// slow-motion graph reconfigures the output route and cannot.
func conflicts(a, b Intent) bool {
	return (a == Record && b == PlaySlowMotion) || (a == PlaySlowMotion && b == Record)
}

// Interruption is a transient loss of the session, such as an incoming call.
// Began is false when the session comes back.
type Interruption struct {
	Began bool
}

// Lease is a granted intent. Release returns it to the arbiter.
type Lease struct {
	id      uint64
	intent  Intent
	arbiter *Arbiter
	once    sync.Once
}

func (l *Lease) Intent() Intent { return l.intent }

// Release is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() { l.arbiter.release(l) })
}

// Arbiter owns the audio session state.
type Arbiter struct {
	mu          sync.Mutex
	nextID      uint64
	leases      map[uint64]*Lease
	interrupted bool

	interruptions *stream.Event[Interruption]
}

func NewArbiter() *Arbiter {
	return &Arbiter{
		leases:        make(map[uint64]*Lease),
		interruptions: stream.NewEvent[Interruption]("session.interruptions"),
	}
}

// Acquire grants intent unless a conflicting lease is held.
func (a *Arbiter) Acquire(intent Intent) (*Lease, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, held := range a.leases {
		if conflicts(held.intent, intent) {
			slog.Debug("Audio session request rejected", "intent", intent, "held", held.intent)
			return nil, fmt.Errorf("%w: %s conflicts with active %s", ErrBusy, intent, held.intent)
		}
	}

	a.nextID++
	l := &Lease{id: a.nextID, intent: intent, arbiter: a}
	a.leases[l.id] = l
	slog.Debug("Audio session acquired", "intent", intent, "lease", l.id)
	return l, nil
}

func (a *Arbiter) release(l *Lease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.leases, l.id)
	slog.Debug("Audio session released", "intent", l.intent, "lease", l.id)
}

// Active lists the intents currently held.
func (a *Arbiter) Active() []Intent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Intent, 0, len(a.leases))
	for _, l := range a.leases {
		out = append(out, l.intent)
	}
	return out
}

// Interrupt reports that the session was taken away. Repeated calls while
// already interrupted are ignored.
func (a *Arbiter) Interrupt() {
	a.mu.Lock()
	if a.interrupted {
		a.mu.Unlock()
		return
	}
	a.interrupted = true
	a.mu.Unlock()

	slog.Info("Audio session interrupted")
	a.interruptions.Send(Interruption{Began: true})
}

// EndInterruption reports that the session is available again.
func (a *Arbiter) EndInterruption() {
	a.mu.Lock()
	if !a.interrupted {
		a.mu.Unlock()
		return
	}
	a.interrupted = false
	a.mu.Unlock()

	slog.Info("Audio session interruption ended")
	a.interruptions.Send(Interruption{Began: false})
}

func (a *Arbiter) Interrupted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interrupted
}

func (a *Arbiter) Interruptions() *stream.Event[Interruption] {
	return a.interruptions
}

// Close ends the interruption stream.
func (a *Arbiter) Close() {
	a.interruptions.Close()
}
