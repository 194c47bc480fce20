package audio

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/marwant/zizh/internal/files"
	"github.com/marwant/zizh/internal/permission"
	"github.com/marwant/zizh/internal/session"
	"github.com/marwant/zizh/internal/stream"
)

// Capture drives the hardware through idle and recording. A successful
// capture is moved out of the scratch file into the recordings directory
// and announced on RecordingFinished.
type Capture struct {
	hw         Hardware
	files      *files.Locations
	permission permission.Provider
	prober     DurationProber
	arbiter    *session.Arbiter

	mu        sync.Mutex
	take      Take
	finalized chan struct{}
	closed    bool

	isRecording *stream.Value[bool]
	finished    *stream.Event[string]
}

// CaptureOptions carries the collaborators of a Capture. Permission and
// Arbiter are optional.
type CaptureOptions struct {
	Hardware   Hardware
	Files      *files.Locations
	Permission permission.Provider
	Prober     DurationProber
	Arbiter    *session.Arbiter
}

func NewCapture(opts CaptureOptions) *Capture {
	perm := opts.Permission
	if perm == nil {
		perm = permission.Static(true)
	}
	done := make(chan struct{})
	close(done)
	return &Capture{
		hw:          opts.Hardware,
		files:       opts.Files,
		permission:  perm,
		prober:      opts.Prober,
		arbiter:     opts.Arbiter,
		finalized:   done,
		isRecording: stream.NewValue("capture.is_recording", false),
		finished:    stream.NewEvent[string]("capture.finished"),
	}
}

// IsRecording is the continuous recording status.
func (c *Capture) IsRecording() *stream.Value[bool] { return c.isRecording }

// RecordingFinished carries the durable path of every successful capture.
func (c *Capture) RecordingFinished() *stream.Event[string] { return c.finished }

// Start begins writing to the scratch file. It is ignored while a capture
// is already running. Permission is not checked here.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("capture closed")
	}
	if c.take != nil {
		c.mu.Unlock()
		slog.Debug("Start ignored, already recording")
		return nil
	}
	previous := c.finalized
	c.mu.Unlock()

	// The previous take still owns the scratch file until it is relocated.
	select {
	case <-previous:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.take != nil || c.closed {
		return nil
	}

	var lease *session.Lease
	if c.arbiter != nil {
		l, err := c.arbiter.Acquire(session.Record)
		if err != nil {
			slog.Warn("Capture could not acquire audio session", "error", err)
			return err
		}
		lease = l
	}

	c.files.EnsureDirectories()
	tmp := c.files.TemporaryRecordingPath()
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to clear scratch file", "path", tmp, "error", err)
	}

	take, err := c.hw.Record(ctx, tmp)
	if err != nil {
		if lease != nil {
			lease.Release()
		}
		slog.Error("Failed to start capture", "error", err)
		return err
	}

	c.take = take
	c.finalized = make(chan struct{})
	c.isRecording.Set(true)
	slog.Info("Recording started", "path", tmp)

	go c.await(take, lease, c.finalized)
	return nil
}

// Stop asks the hardware to finalize and flips the status to idle at once.
// Calling Stop while idle does nothing.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.take == nil {
		return
	}
	c.take.Stop()
	c.take = nil
	c.isRecording.Set(false)
	slog.Info("Recording stopped")
}

func (c *Capture) await(take Take, lease *session.Lease, finalized chan struct{}) {
	defer close(finalized)

	err := <-take.Done()
	if lease != nil {
		lease.Release()
	}

	c.mu.Lock()
	if c.take == take {
		// Hardware ended the take without a Stop.
		c.take = nil
		c.isRecording.Set(false)
	}
	c.mu.Unlock()

	if err != nil {
		slog.Error("Recording could not be finalized", "error", err)
		return
	}

	dst, ok := c.files.MoveTemporaryRecordingToPersistedLocation(c.files.TemporaryRecordingPath())
	if !ok {
		return
	}
	slog.Info("Recording finished", "path", dst)
	c.finished.Send(dst)
}

// RequestPermission asks the provider for microphone access and reports
// the answer, or false if ctx ends first.
func (c *Capture) RequestPermission(ctx context.Context) bool {
	answer := make(chan bool, 1)
	c.permission.RequestPermission(ctx, func(granted bool) {
		select {
		case answer <- granted:
		default:
		}
	})

	select {
	case granted := <-answer:
		slog.Debug("Microphone permission answered", "granted", granted)
		return granted
	case <-ctx.Done():
		return false
	}
}

// RecordingDuration probes the file at path. Unreadable files report zero.
func (c *Capture) RecordingDuration(ctx context.Context, path string) time.Duration {
	if c.prober == nil {
		return 0
	}
	d, err := c.prober.Duration(ctx, path)
	if err != nil {
		slog.Warn("Failed to probe recording duration", "path", path, "error", err)
		return 0
	}
	return d
}

// Wait blocks until the latest take has been finalized, or ctx ends.
// It returns at once when no take was started.
func (c *Capture) Wait(ctx context.Context) error {
	c.mu.Lock()
	pending := c.finalized
	c.mu.Unlock()

	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops any capture, waits for it to be finalized and ends both streams.
func (c *Capture) Close() {
	c.Stop()

	c.mu.Lock()
	c.closed = true
	pending := c.finalized
	c.mu.Unlock()

	<-pending
	c.isRecording.Close()
	c.finished.Close()
}
