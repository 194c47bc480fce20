// Package viewmodel turns user intents into capture, playback and storage
// calls and keeps the derived state a front end renders. All state is
// owned by the goroutine running Run; everything else talks to it through
// messages.
package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marwant/zizh/internal/files"
	"github.com/marwant/zizh/internal/play"
	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/repository"
	"github.com/marwant/zizh/internal/stream"
)

var (
	// ErrStopped is returned by intents once Run has returned.
	ErrStopped = errors.New("view model stopped")
	// ErrIndexOutOfRange is returned when a deletion names a row that is
	// not in the list.
	ErrIndexOutOfRange = errors.New("recording index out of range")
	// ErrNotListed is returned when a deletion names an id that is not in
	// the list.
	ErrNotListed = errors.New("recording not in the list")
	// ErrInvalidRate is returned by SetRate for rates outside
	// [play.MinRate, play.MaxRate].
	ErrInvalidRate = errors.New("rate out of range")
)

// DefaultRate is the initial slow-motion rate.
const DefaultRate = 1.0 / 6.0

// finishTimeout bounds how long shutdown waits for a take to be finalized.
const finishTimeout = 10 * time.Second

// Capture is the recording side the view model drives.
type Capture interface {
	Start(ctx context.Context) error
	Stop()
	IsRecording() *stream.Value[bool]
	RecordingFinished() *stream.Event[string]
	// Wait blocks until the latest take has been finalized.
	Wait(ctx context.Context) error
	RequestPermission(ctx context.Context) bool
	RecordingDuration(ctx context.Context, path string) time.Duration
}

// Player is the playback side the view model drives.
type Player interface {
	PlayMode(path string, mode play.Mode) error
	Stop()
	Status() *stream.Value[play.Status]
	CurrentPath() string
}

// Observer is told about completed operations. metrics.Metrics satisfies it.
type Observer interface {
	RecordingCaptured()
	RecordingDeleted()
	RecordingDeletionFailed()
	PlaybackStarted(slowMotion bool)
	PlaybackFailed(reason string)
}

type nopObserver struct{}

func (nopObserver) RecordingCaptured()       {}
func (nopObserver) RecordingDeleted()        {}
func (nopObserver) RecordingDeletionFailed() {}
func (nopObserver) PlaybackStarted(bool)     {}
func (nopObserver) PlaybackFailed(string)    {}

// State is a snapshot of everything a front end shows.
type State struct {
	Recordings        []recording.Recording `json:"recordings"`
	IsRecording       bool                  `json:"is_recording"`
	IsPlaying         bool                  `json:"is_playing"`
	IsSlowMotion      bool                  `json:"is_slow_motion"`
	Rate              float64               `json:"rate"`
	ElapsedTime       string                `json:"elapsed_time"`
	CurrentPlayingID  uuid.NullUUID         `json:"current_playing_id"`
	DeletionError     string                `json:"deletion_error,omitempty"`
	PlaybackError     string                `json:"playback_error,omitempty"`
	PermissionGranted bool                  `json:"permission_granted"`
}

func (s State) clone() State {
	s.Recordings = append([]recording.Recording(nil), s.Recordings...)
	return s
}

type call struct {
	fn     func() error
	result chan error
}

type ViewModel struct {
	repo     repository.Repository
	files    *files.Locations
	capture  Capture
	player   Player
	observer Observer
	now      func() time.Time
	tick     time.Duration

	calls   chan call
	done    chan struct{}
	running chan struct{}
	runOnce sync.Once
	bg      sync.WaitGroup

	// owned by the loop
	state          State
	recordingSince time.Time

	mu       sync.RWMutex
	snapshot State
	changes  *stream.Value[State]
}

type Option func(*ViewModel)

func WithObserver(o Observer) Option { return func(v *ViewModel) { v.observer = o } }

// WithClock replaces the clock and the elapsed-time tick interval.
func WithClock(now func() time.Time, tick time.Duration) Option {
	return func(v *ViewModel) {
		v.now = now
		v.tick = tick
	}
}

// WithRate sets the initial slow-motion rate.
func WithRate(rate float64) Option {
	return func(v *ViewModel) {
		if play.ValidRate(rate) {
			v.state.Rate = rate
		}
	}
}

func New(repo repository.Repository, capture Capture, player Player, opts ...Option) *ViewModel {
	v := &ViewModel{
		repo:     repo,
		files:    repo.Files(),
		capture:  capture,
		player:   player,
		observer: nopObserver{},
		now:      time.Now,
		tick:     time.Second,
		calls:    make(chan call),
		done:     make(chan struct{}),
		running:  make(chan struct{}),
		state:    State{Rate: DefaultRate, ElapsedTime: formatElapsed(0)},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.snapshot = v.state.clone()
	v.changes = stream.NewValue("viewmodel.state", v.snapshot)
	return v
}

// State returns the latest published snapshot.
func (v *ViewModel) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshot.clone()
}

// Changes publishes a snapshot after every state change.
func (v *ViewModel) Changes() *stream.Value[State] { return v.changes }

// Running is closed once the loop has started.
func (v *ViewModel) Running() <-chan struct{} { return v.running }

// Run is the loop owning the state. It loads the recordings, then serves
// intents and component events until ctx ends. Run may be called once.
func (v *ViewModel) Run(ctx context.Context) error {
	started := false
	v.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("view model already running")
	}

	recSub := v.capture.IsRecording().Subscribe()
	finishedSub := v.capture.RecordingFinished().Subscribe()
	statusSub := v.player.Status().Subscribe()
	defer func() {
		v.capture.IsRecording().Unsubscribe(recSub)
		v.capture.RecordingFinished().Unsubscribe(finishedSub)
		v.player.Status().Unsubscribe(statusSub)
	}()

	recC, finishedC, statusC := recSub.C, finishedSub.C, statusSub.C

	// Stored recordings outlive the loop.
	persistCtx := context.WithoutCancel(ctx)

	close(v.running)
	v.background(func() { v.sync(ctx) })

	var ticker *time.Ticker
	var tickC <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer stopTicker()

	slog.Debug("View model loop started")
	for {
		select {
		case <-ctx.Done():
			v.finishCapture(persistCtx, finishedC)
			close(v.done)
			v.bg.Wait()
			v.changes.Close()
			slog.Debug("View model loop stopped")
			return nil

		case c := <-v.calls:
			c.result <- c.fn()

		case isRecording, ok := <-recC:
			if !ok {
				recC = nil
				continue
			}
			v.state.IsRecording = isRecording
			stopTicker()
			if isRecording {
				v.recordingSince = v.now()
				ticker = time.NewTicker(v.tick)
				tickC = ticker.C
			}
			v.state.ElapsedTime = formatElapsed(0)
			v.publish()

		case <-tickC:
			v.state.ElapsedTime = formatElapsed(v.now().Sub(v.recordingSince))
			v.publish()

		case path, ok := <-finishedC:
			if !ok {
				finishedC = nil
				continue
			}
			v.background(func() { v.persist(persistCtx, path) })

		case status, ok := <-statusC:
			if !ok {
				statusC = nil
				continue
			}
			v.handlePlayerStatus(status)
		}
	}
}

// finishCapture stops a take still running at shutdown, waits for it to be
// finalized and stores every finished file not yet picked up by the loop.
func (v *ViewModel) finishCapture(ctx context.Context, finished <-chan string) {
	if v.capture.IsRecording().Get() {
		slog.Info("Stopping recording for shutdown")
		v.capture.Stop()
	}

	waitCtx, cancel := context.WithTimeout(ctx, finishTimeout)
	defer cancel()
	if err := v.capture.Wait(waitCtx); err != nil {
		slog.Warn("Recording was not finalized before shutdown", "error", err)
	}

	for {
		select {
		case path, ok := <-finished:
			if !ok {
				return
			}
			v.background(func() { v.persist(ctx, path) })
		default:
			return
		}
	}
}

// publish makes the loop's state visible to State and Changes.
func (v *ViewModel) publish() {
	snap := v.state.clone()
	v.mu.Lock()
	v.snapshot = snap
	v.mu.Unlock()
	v.changes.Set(snap.clone())
}

// do runs fn on the loop and returns its result.
func (v *ViewModel) do(ctx context.Context, fn func() error) error {
	c := call{fn: fn, result: make(chan error, 1)}
	select {
	case v.calls <- c:
	case <-v.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-c.result
}

// post runs fn on the loop from a background goroutine.
func (v *ViewModel) post(fn func()) {
	_ = v.do(context.Background(), func() error {
		fn()
		return nil
	})
}

func (v *ViewModel) background(fn func()) {
	v.bg.Add(1)
	go func() {
		defer v.bg.Done()
		fn()
	}()
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
