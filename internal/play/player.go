// Package play plays recordings back, either directly or in slow motion
// through a rate and pitch compensation graph. At most one playback is
// active at a time.
package play

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/marwant/zizh/internal/session"
	"github.com/marwant/zizh/internal/stream"
)

type active struct {
	playback Playback
	path     string
	mode     Mode
	lease    *session.Lease
	paused   bool
}

// Player is the playback state machine over an Engine.
type Player struct {
	engine  Engine
	arbiter *session.Arbiter

	mu      sync.Mutex
	current *active
	closed  bool

	status        *stream.Value[Status]
	interruptions *stream.Subscription[session.Interruption]
	wg            sync.WaitGroup
}

// NewPlayer returns a stopped player. When arbiter is set every playback
// holds a session lease and follows the arbiter's interruptions.
func NewPlayer(engine Engine, arbiter *session.Arbiter) *Player {
	p := &Player{
		engine:  engine,
		arbiter: arbiter,
		status:  stream.NewValue("player.status", Stopped),
	}
	if arbiter != nil {
		p.interruptions = arbiter.Interruptions().Subscribe()
		p.wg.Add(1)
		go p.followInterruptions()
	}
	return p
}

func (p *Player) Status() *stream.Value[Status] { return p.status }

// Play is PlayMode with Normal.
func (p *Player) Play(path string) error {
	return p.PlayMode(path, Normal())
}

// PlayMode stops whatever is playing and starts path in mode.
func (p *Player) PlayMode(path string, mode Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrServiceClosed
	}

	// A rejected request still ends whatever was playing.
	p.stopLocked()

	if err := validateMedia(path); err != nil {
		return err
	}

	var filter string
	intent := session.Play
	if mode.IsSlowMotion() {
		g, err := NewSlowMotionGraph(mode.Rate())
		if err != nil {
			return err
		}
		filter = g.Filter()
		intent = session.PlaySlowMotion
	}

	var lease *session.Lease
	if p.arbiter != nil {
		l, err := p.arbiter.Acquire(intent)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
		}
		lease = l
	}

	pb, err := p.engine.Start(path, filter)
	if err != nil {
		if lease != nil {
			lease.Release()
		}
		slog.Error("Playback failed to start", "path", path, "mode", mode, "error", err)
		return fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
	}

	a := &active{playback: pb, path: path, mode: mode, lease: lease}
	p.current = a
	p.status.Set(Playing)
	slog.Info("Playback started", "path", path, "mode", mode)

	p.wg.Add(1)
	go p.await(a)
	return nil
}

// validateMedia requires an existing, readable regular file.
func validateMedia(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidMediaAddress)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMediaAddress, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidMediaAddress, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMediaAddress, err)
	}
	return f.Close()
}

func (p *Player) await(a *active) {
	defer p.wg.Done()

	err := <-a.playback.Done()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != a {
		return
	}
	p.current = nil
	if a.lease != nil {
		a.lease.Release()
	}
	if err != nil {
		slog.Warn("Playback ended with error", "path", a.path, "error", err)
	} else {
		slog.Debug("Playback reached end of file", "path", a.path)
	}
	p.status.Set(Stopped)
}

// Stop ends the active playback. It is a no-op when nothing plays.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	a := p.current
	if a == nil {
		return
	}
	p.current = nil
	a.playback.Stop()
	if a.lease != nil {
		a.lease.Release()
	}
	p.status.Set(Stopped)
	slog.Debug("Playback stopped", "path", a.path)
}

// CurrentPath is the file being played, or "" when stopped.
func (p *Player) CurrentPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.path
}

// CurrentMode is the mode of the active playback.
func (p *Player) CurrentMode() (Mode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Mode{}, false
	}
	return p.current.mode, true
}

func (p *Player) followInterruptions() {
	defer p.wg.Done()
	for ev := range p.interruptions.C {
		if ev.Began {
			p.pause()
		} else {
			p.resume()
		}
	}
}

func (p *Player) pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.current
	if a == nil || a.paused {
		return
	}
	if err := a.playback.Pause(); err != nil {
		slog.Warn("Failed to pause playback", "error", err)
		return
	}
	a.paused = true
	p.status.Set(Paused)
}

func (p *Player) resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.current
	if a == nil || !a.paused {
		return
	}
	if err := a.playback.Resume(); err != nil {
		slog.Warn("Failed to resume playback", "error", err)
		return
	}
	a.paused = false
	p.status.Set(Playing)
}

// Close stops playback, waits for background work and ends the status
// stream. Later calls to PlayMode return ErrServiceClosed.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()

	if p.interruptions != nil {
		p.arbiter.Interruptions().Unsubscribe(p.interruptions)
	}
	p.wg.Wait()
	p.status.Close()
}
