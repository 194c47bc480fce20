package viewmodel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/marwant/zizh/internal/files"
	"github.com/marwant/zizh/internal/play"
	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/repository"
	"github.com/marwant/zizh/internal/store"
	"github.com/marwant/zizh/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
)

type fakeCapture struct {
	files       *files.Locations
	isRecording *stream.Value[bool]
	finished    *stream.Event[string]
	granted     bool
}

func newFakeCapture(l *files.Locations) *fakeCapture {
	return &fakeCapture{
		files:       l,
		isRecording: stream.NewValue("test.recording", false),
		finished:    stream.NewEvent[string]("test.finished"),
		granted:     true,
	}
}

func (c *fakeCapture) Start(context.Context) error {
	c.isRecording.Set(true)
	return nil
}

// Stop produces a durable file the way a real capture does.
func (c *fakeCapture) Stop() {
	c.isRecording.Set(false)
	path := c.files.GenerateNewRecordingPath()
	if err := os.WriteFile(path, []byte("aac"), 0o644); err != nil {
		return
	}
	c.finished.Send(path)
}

func (c *fakeCapture) IsRecording() *stream.Value[bool]         { return c.isRecording }
func (c *fakeCapture) RecordingFinished() *stream.Event[string] { return c.finished }
func (c *fakeCapture) Wait(context.Context) error               { return nil }
func (c *fakeCapture) RequestPermission(context.Context) bool   { return c.granted }
func (c *fakeCapture) RecordingDuration(context.Context, string) time.Duration {
	return 3 * time.Second
}

type playCall struct {
	path string
	mode play.Mode
}

type fakePlayer struct {
	status *stream.Value[play.Status]
	err    error

	mu      sync.Mutex
	calls   []playCall
	current string
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{status: stream.NewValue("test.status", play.Stopped)}
}

func (p *fakePlayer) PlayMode(path string, mode play.Mode) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.calls = append(p.calls, playCall{path: path, mode: mode})
	p.current = path
	p.mu.Unlock()
	p.status.Set(play.Playing)
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.current = ""
	p.mu.Unlock()
	p.status.Set(play.Stopped)
}

func (p *fakePlayer) Status() *stream.Value[play.Status] { return p.status }

func (p *fakePlayer) CurrentPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakePlayer) lastCall() (playCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return playCall{}, false
	}
	return p.calls[len(p.calls)-1], true
}

type countingObserver struct {
	captured, deleted, deletionFailed, started, failed atomic.Int32
}

func (o *countingObserver) RecordingCaptured()       { o.captured.Add(1) }
func (o *countingObserver) RecordingDeleted()        { o.deleted.Add(1) }
func (o *countingObserver) RecordingDeletionFailed() { o.deletionFailed.Add(1) }
func (o *countingObserver) PlaybackStarted(bool)     { o.started.Add(1) }
func (o *countingObserver) PlaybackFailed(string)    { o.failed.Add(1) }

// failingDeletes refuses every metadata deletion.
type failingDeletes struct {
	*repository.Storage
}

func (f failingDeletes) DeleteRecording(_ context.Context, rec recording.Recording) error {
	return &repository.DeletionError{Recording: rec, Err: store.ErrNotFound}
}

type fixture struct {
	repo    *repository.Storage
	capture *fakeCapture
	player  *fakePlayer
	obs     *countingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	locations := files.New(filepath.Join(t.TempDir(), "Documents"), "zizh")
	repo := repository.New(store.NewMemory(), locations)
	t.Cleanup(func() { _ = repo.Close() })
	return &fixture{
		repo:    repo,
		capture: newFakeCapture(locations),
		player:  newFakePlayer(),
		obs:     &countingObserver{},
	}
}

func (f *fixture) seed(t *testing.T, createdAt time.Time) recording.Recording {
	t.Helper()
	path := f.repo.Files().GenerateNewRecordingPath()
	require.NoError(t, os.WriteFile(path, []byte("aac"), 0o644))
	info, ok := f.repo.Files().ExtractRecordingInfo(path)
	require.True(t, ok)
	rec := recording.FromCapture(info.ID, createdAt, time.Second, path)
	require.NoError(t, f.repo.AddRecording(context.Background(), rec))
	return rec
}

// start runs the view model until the test ends.
func start(t *testing.T, repo repository.Repository, f *fixture, opts ...Option) *ViewModel {
	t.Helper()
	opts = append([]Option{WithObserver(f.obs)}, opts...)
	vm := New(repo, f.capture, f.player, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- vm.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
	})

	select {
	case <-vm.Running():
	case <-time.After(waitFor):
		t.Fatal("view model did not start")
	}
	return vm
}

func TestRun_LoadsRecordingsNewestFirst(t *testing.T) {
	f := newFixture(t)
	base := time.Unix(1738750000, 0)
	older := f.seed(t, base)
	newer := f.seed(t, base.Add(time.Minute))

	vm := start(t, f.repo, f)

	require.Eventually(t, func() bool { return len(vm.State().Recordings) == 2 }, waitFor, poll)
	recs := vm.State().Recordings
	assert.Equal(t, newer.ID, recs[0].ID)
	assert.Equal(t, older.ID, recs[1].ID)
}

func TestToggleRecording_PersistsCapturedFile(t *testing.T) {
	f := newFixture(t)
	vm := start(t, f.repo, f)
	ctx := context.Background()

	require.NoError(t, vm.ToggleRecording(ctx))
	require.Eventually(t, func() bool { return vm.State().IsRecording }, waitFor, poll)

	require.NoError(t, vm.ToggleRecording(ctx))
	require.Eventually(t, func() bool {
		s := vm.State()
		return !s.IsRecording && len(s.Recordings) == 1
	}, waitFor, poll)

	rec := vm.State().Recordings[0]
	assert.Equal(t, 3*time.Second, rec.Duration)
	assert.True(t, f.repo.Files().IsRelative(rec.Address), rec.Address)
	assert.Equal(t, int32(1), f.obs.captured.Load())

	stored, err := f.repo.FetchRecords(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.ID, stored[0].ID)
}

func TestElapsedTime_FollowsClock(t *testing.T) {
	f := newFixture(t)
	base := time.Unix(1738750000, 0)
	var offset atomic.Int64
	now := func() time.Time { return base.Add(time.Duration(offset.Load())) }

	vm := start(t, f.repo, f, WithClock(now, 2*time.Millisecond))
	assert.Equal(t, "00:00", vm.State().ElapsedTime)

	require.NoError(t, vm.ToggleRecording(context.Background()))
	require.Eventually(t, func() bool { return vm.State().IsRecording }, waitFor, poll)

	offset.Store(int64(65 * time.Second))
	require.Eventually(t, func() bool { return vm.State().ElapsedTime == "01:05" }, waitFor, poll)

	require.NoError(t, vm.ToggleRecording(context.Background()))
	require.Eventually(t, func() bool { return vm.State().ElapsedTime == "00:00" }, waitFor, poll)
}

func TestHandleRecordingTap_PlaysThenStops(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, time.Unix(1738750000, 0))
	vm := start(t, f.repo, f)
	ctx := context.Background()
	require.Eventually(t, func() bool { return len(vm.State().Recordings) == 1 }, waitFor, poll)
	listed := vm.State().Recordings[0]

	require.NoError(t, vm.HandleRecordingTap(ctx, listed))
	call, ok := f.player.lastCall()
	require.True(t, ok)
	assert.Equal(t, rec.Address, call.path)
	assert.False(t, call.mode.IsSlowMotion())

	require.Eventually(t, func() bool {
		s := vm.State()
		return s.IsPlaying && s.CurrentPlayingID.Valid && s.CurrentPlayingID.UUID == rec.ID
	}, waitFor, poll)

	require.NoError(t, vm.HandleRecordingTap(ctx, listed))
	require.Eventually(t, func() bool {
		s := vm.State()
		return !s.IsPlaying && !s.CurrentPlayingID.Valid
	}, waitFor, poll)
	assert.Equal(t, int32(1), f.obs.started.Load())
}

func TestSlowMotion_UsesRate(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, time.Unix(1738750000, 0))
	vm := start(t, f.repo, f)
	ctx := context.Background()

	require.NoError(t, vm.ToggleSlowMotion(ctx))
	assert.True(t, vm.State().IsSlowMotion)

	require.NoError(t, vm.PlayRecording(ctx, rec))
	call, ok := f.player.lastCall()
	require.True(t, ok)
	assert.True(t, call.mode.IsSlowMotion())
	assert.InDelta(t, DefaultRate, call.mode.Rate(), 1e-12)

	require.NoError(t, vm.SetRate(ctx, 0.5))
	require.NoError(t, vm.PlayRecording(ctx, rec))
	call, _ = f.player.lastCall()
	assert.InDelta(t, 0.5, call.mode.Rate(), 1e-12)

	// Switching modes stops whatever is playing.
	require.NoError(t, vm.ToggleSlowMotion(ctx))
	assert.Equal(t, play.Stopped, f.player.Status().Get())
	assert.False(t, vm.State().IsSlowMotion)
}

func TestSetRate_RejectsInvalid(t *testing.T) {
	f := newFixture(t)
	vm := start(t, f.repo, f)

	for _, rate := range []float64{0, -1, 1e-6, 250} {
		err := vm.SetRate(context.Background(), rate)
		assert.ErrorIs(t, err, ErrInvalidRate, "rate %v", rate)
	}
	assert.InDelta(t, DefaultRate, vm.State().Rate, 1e-12)
}

func TestPlaybackFailure_IsReported(t *testing.T) {
	f := newFixture(t)
	f.player.err = play.ErrInvalidMediaAddress
	rec := f.seed(t, time.Unix(1738750000, 0))
	vm := start(t, f.repo, f)

	err := vm.PlayRecording(context.Background(), rec)
	require.ErrorIs(t, err, play.ErrInvalidMediaAddress)

	s := vm.State()
	assert.False(t, s.IsPlaying)
	assert.NotEmpty(t, s.PlaybackError)
	assert.Equal(t, int32(1), f.obs.failed.Load())
	assert.Equal(t, "invalid_media", failureReason(err))

	require.NoError(t, vm.DismissErrors(context.Background()))
	assert.Empty(t, vm.State().PlaybackError)
}

func TestDeleteRecordings_RemovesRows(t *testing.T) {
	f := newFixture(t)
	base := time.Unix(1738750000, 0)
	var seeded []recording.Recording
	for i := 0; i < 3; i++ {
		seeded = append(seeded, f.seed(t, base.Add(time.Duration(i)*time.Minute)))
	}
	vm := start(t, f.repo, f)
	ctx := context.Background()
	require.Eventually(t, func() bool { return len(vm.State().Recordings) == 3 }, waitFor, poll)

	// Rows are newest first, so 0 and 2 are the newest and the oldest.
	require.NoError(t, vm.DeleteRecordings(ctx, 0, 2))
	require.Eventually(t, func() bool { return len(vm.State().Recordings) == 1 }, waitFor, poll)
	assert.Equal(t, seeded[1].ID, vm.State().Recordings[0].ID)
	assert.Equal(t, int32(2), f.obs.deleted.Load())

	_, err := os.Stat(seeded[0].Address)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	stored, err := f.repo.FetchRecords(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestDeleteRecordings_IndexOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Unix(1738750000, 0))
	vm := start(t, f.repo, f)
	require.Eventually(t, func() bool { return len(vm.State().Recordings) == 1 }, waitFor, poll)

	err := vm.DeleteRecordings(context.Background(), 1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Len(t, vm.State().Recordings, 1)
}

func TestDeleteRecordings_FailureKeepsRow(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, time.Unix(1738750000, 0))
	vm := start(t, failingDeletes{f.repo}, f)
	require.Eventually(t, func() bool { return len(vm.State().Recordings) == 1 }, waitFor, poll)

	err := vm.DeleteRecordings(context.Background(), 0)
	var delErr *repository.DeletionError
	require.ErrorAs(t, err, &delErr)
	assert.Equal(t, rec.ID, delErr.Recording.ID)

	require.Eventually(t, func() bool { return vm.State().DeletionError != "" }, waitFor, poll)
	assert.Len(t, vm.State().Recordings, 1)
	assert.Equal(t, int32(1), f.obs.deletionFailed.Load())

	_, statErr := os.Stat(rec.Address)
	assert.NoError(t, statErr)
}

func TestDeleteRecordingsByID_ResolvesAgainstCurrentList(t *testing.T) {
	f := newFixture(t)
	base := time.Unix(1738750000, 0)
	target := f.seed(t, base)
	vm := start(t, f.repo, f)
	ctx := context.Background()
	require.Eventually(t, func() bool { return len(vm.State().Recordings) == 1 }, waitFor, poll)

	// A newer recording takes row 0 before the deletion arrives.
	newer := f.seed(t, base.Add(time.Minute))
	require.NoError(t, vm.SyncRecordings(ctx))
	require.Equal(t, newer.ID, vm.State().Recordings[0].ID)

	require.NoError(t, vm.DeleteRecordingsByID(ctx, target.ID))
	recs := vm.State().Recordings
	require.Len(t, recs, 1)
	assert.Equal(t, newer.ID, recs[0].ID)

	_, err := os.Stat(target.Address)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(newer.Address)
	assert.NoError(t, err)
}

func TestDeleteRecordingsByID_UnknownID(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, time.Unix(1738750000, 0))
	vm := start(t, f.repo, f)
	require.Eventually(t, func() bool { return len(vm.State().Recordings) == 1 }, waitFor, poll)

	err := vm.DeleteRecordingsByID(context.Background(), rec.ID, uuid.New())
	require.ErrorIs(t, err, ErrNotListed)
	assert.Len(t, vm.State().Recordings, 1)
	assert.Zero(t, f.obs.deleted.Load())

	_, statErr := os.Stat(rec.Address)
	assert.NoError(t, statErr)
}

func TestRun_StoresCaptureInProgressAtShutdown(t *testing.T) {
	f := newFixture(t)
	vm := New(f.repo, f.capture, f.player, WithObserver(f.obs))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- vm.Run(ctx) }()
	<-vm.Running()

	require.NoError(t, vm.ToggleRecording(ctx))
	require.True(t, f.capture.IsRecording().Get())

	cancel()
	require.NoError(t, <-errc)

	assert.False(t, f.capture.IsRecording().Get())
	stored, err := f.repo.FetchRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 3*time.Second, stored[0].Duration)
	assert.Equal(t, int32(1), f.obs.captured.Load())
}

func TestDeletionMessage(t *testing.T) {
	assert.Contains(t, deletionMessage(repository.ErrClosed), "closed")
	assert.Contains(t, deletionMessage(errors.New("disk full")), "disk full")
}

func TestRequestPermission(t *testing.T) {
	f := newFixture(t)
	vm := start(t, f.repo, f)

	granted, err := vm.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
	assert.True(t, vm.State().PermissionGranted)
}

func TestIntentsAfterStop(t *testing.T) {
	f := newFixture(t)
	vm := New(f.repo, f.capture, f.player)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- vm.Run(ctx) }()
	<-vm.Running()
	cancel()
	require.NoError(t, <-errc)

	assert.ErrorIs(t, vm.ToggleRecording(context.Background()), ErrStopped)
	assert.Error(t, vm.Run(context.Background()))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", formatElapsed(-time.Second))
	assert.Equal(t, "00:59", formatElapsed(59*time.Second))
	assert.Equal(t, "10:00", formatElapsed(10*time.Minute))
}
