package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/marwant/zizh/internal/play"
	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/repository"
)

// ToggleRecording starts a capture when idle and stops it otherwise.
func (v *ViewModel) ToggleRecording(ctx context.Context) error {
	return v.do(ctx, func() error {
		if v.capture.IsRecording().Get() {
			v.capture.Stop()
			return nil
		}
		return v.capture.Start(ctx)
	})
}

// SyncRecordings reloads the list from the repository.
func (v *ViewModel) SyncRecordings(ctx context.Context) error {
	recs, err := v.repo.FetchRecords(ctx)
	if err != nil {
		slog.Error("Failed to sync recordings", "error", err)
		return err
	}
	return v.do(ctx, func() error {
		v.applyRecordings(recs)
		return nil
	})
}

// sync is SyncRecordings for background work; failures are only logged.
func (v *ViewModel) sync(ctx context.Context) {
	recs, err := v.repo.FetchRecords(ctx)
	if err != nil {
		slog.Error("Failed to sync recordings", "error", err)
		return
	}
	v.post(func() { v.applyRecordings(recs) })
}

func (v *ViewModel) applyRecordings(recs []recording.Recording) {
	v.state.Recordings = recs
	v.state.CurrentPlayingID = v.resolveCurrent()
	v.publish()
	slog.Debug("Recordings synced", "count", len(recs))
}

// persist turns a finished capture into a stored recording.
func (v *ViewModel) persist(ctx context.Context, path string) {
	info, ok := v.files.ExtractRecordingInfo(path)
	if !ok {
		slog.Warn("Recorded file name is not in the expected format", "path", path)
		return
	}

	duration := v.capture.RecordingDuration(ctx, path)
	rec := recording.FromCapture(info.ID, info.Timestamp, duration, path)
	if err := v.repo.AddRecording(ctx, rec); err != nil {
		slog.Error("Failed to store recording", "id", rec.ID, "error", err)
		return
	}
	v.observer.RecordingCaptured()
	slog.Info("Recording saved", "id", rec.ID, "duration", duration)

	v.sync(ctx)
}

// DeleteRecordings deletes the rows at indices. Each row is an independent
// operation; a row leaves the list only once its deletion succeeded.
func (v *ViewModel) DeleteRecordings(ctx context.Context, indices ...int) error {
	var targets []recording.Recording
	err := v.do(ctx, func() error {
		for _, i := range indices {
			if i < 0 || i >= len(v.state.Recordings) {
				return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
			}
		}
		for _, i := range indices {
			targets = append(targets, v.state.Recordings[i])
		}
		return nil
	})
	if err != nil {
		return err
	}
	return v.deleteTargets(ctx, targets)
}

// DeleteRecordingsByID deletes the recordings with the given ids. The ids
// are resolved on the loop, so a resync between a caller's read of the list
// and this call cannot redirect the deletion to another row.
func (v *ViewModel) DeleteRecordingsByID(ctx context.Context, ids ...uuid.UUID) error {
	var targets []recording.Recording
	err := v.do(ctx, func() error {
		for _, id := range ids {
			i := slices.IndexFunc(v.state.Recordings, func(r recording.Recording) bool { return r.ID == id })
			if i < 0 {
				return fmt.Errorf("%w: %s", ErrNotListed, id)
			}
			targets = append(targets, v.state.Recordings[i])
		}
		return nil
	})
	if err != nil {
		return err
	}
	return v.deleteTargets(ctx, targets)
}

// deleteTargets runs one deletion per recording and joins the failures.
func (v *ViewModel) deleteTargets(ctx context.Context, targets []recording.Recording) error {
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, rec := range targets {
		i, rec := i, rec
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = v.deleteOne(ctx, rec)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (v *ViewModel) deleteOne(ctx context.Context, rec recording.Recording) error {
	if err := v.repo.DeleteRecording(ctx, rec); err != nil {
		v.observer.RecordingDeletionFailed()
		slog.Error("Failed to delete recording", "id", rec.ID, "error", err)
		msg := deletionMessage(err)
		v.post(func() {
			v.state.DeletionError = msg
			v.publish()
		})
		return err
	}

	v.observer.RecordingDeleted()
	v.post(func() {
		v.removeRecording(rec.ID)
		v.publish()
	})
	return nil
}

func deletionMessage(err error) string {
	if errors.Is(err, repository.ErrClosed) {
		return "Failed to delete recording: the repository is closed"
	}
	return fmt.Sprintf("Failed to delete recording: %v", err)
}

func (v *ViewModel) removeRecording(id uuid.UUID) {
	recs := v.state.Recordings[:0:0]
	for _, r := range v.state.Recordings {
		if r.ID != id {
			recs = append(recs, r)
		}
	}
	v.state.Recordings = recs
	if v.state.CurrentPlayingID.Valid && v.state.CurrentPlayingID.UUID == id {
		v.state.CurrentPlayingID = uuid.NullUUID{}
	}
}

// HandleRecordingTap stops playback when something is playing, otherwise
// plays rec in the current mode.
func (v *ViewModel) HandleRecordingTap(ctx context.Context, rec recording.Recording) error {
	return v.do(ctx, func() error {
		if v.state.IsPlaying {
			v.player.Stop()
			return nil
		}
		return v.playLocked(rec)
	})
}

// PlayRecording plays rec in the current mode, replacing any playback.
func (v *ViewModel) PlayRecording(ctx context.Context, rec recording.Recording) error {
	return v.do(ctx, func() error { return v.playLocked(rec) })
}

func (v *ViewModel) playLocked(rec recording.Recording) error {
	path := v.files.MakeAbsolute(rec.Address)
	mode := play.Normal()
	if v.state.IsSlowMotion {
		mode = play.SlowMotion(v.state.Rate)
	}

	if err := v.player.PlayMode(path, mode); err != nil {
		v.observer.PlaybackFailed(failureReason(err))
		v.state.PlaybackError = fmt.Sprintf("Failed to play recording: %v", err)
		v.publish()
		return err
	}

	v.observer.PlaybackStarted(mode.IsSlowMotion())
	v.state.IsPlaying = true
	v.state.PlaybackError = ""
	v.state.CurrentPlayingID = uuid.NullUUID{UUID: rec.ID, Valid: true}
	v.publish()
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, play.ErrInvalidMediaAddress):
		return "invalid_media"
	case errors.Is(err, play.ErrServiceClosed):
		return "closed"
	case errors.Is(err, play.ErrPlaybackFailed):
		return "playback"
	default:
		return "unknown"
	}
}

// StopPlaying stops any playback.
func (v *ViewModel) StopPlaying(ctx context.Context) error {
	return v.do(ctx, func() error {
		v.player.Stop()
		return nil
	})
}

// ToggleSlowMotion flips the playback mode and stops the current playback.
func (v *ViewModel) ToggleSlowMotion(ctx context.Context) error {
	return v.do(ctx, func() error {
		v.state.IsSlowMotion = !v.state.IsSlowMotion
		v.player.Stop()
		v.publish()
		return nil
	})
}

// SetRate changes the slow-motion rate used by later playbacks.
func (v *ViewModel) SetRate(ctx context.Context, rate float64) error {
	if !play.ValidRate(rate) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	return v.do(ctx, func() error {
		v.state.Rate = rate
		v.publish()
		return nil
	})
}

// RequestPermission asks for microphone access and records the answer.
func (v *ViewModel) RequestPermission(ctx context.Context) (bool, error) {
	granted := v.capture.RequestPermission(ctx)
	err := v.do(ctx, func() error {
		v.state.PermissionGranted = granted
		v.publish()
		return nil
	})
	return granted, err
}

// DismissErrors clears the deletion and playback messages.
func (v *ViewModel) DismissErrors(ctx context.Context) error {
	return v.do(ctx, func() error {
		v.state.DeletionError = ""
		v.state.PlaybackError = ""
		v.publish()
		return nil
	})
}

func (v *ViewModel) handlePlayerStatus(status play.Status) {
	switch status {
	case play.Playing:
		v.state.IsPlaying = true
		v.state.CurrentPlayingID = v.resolveCurrent()
	case play.Paused:
		v.state.IsPlaying = false
	default:
		v.state.IsPlaying = false
		v.state.CurrentPlayingID = uuid.NullUUID{}
	}
	v.publish()
}

// resolveCurrent maps the player's path back to a listed recording by
// comparing relative paths, so a moved documents root still matches.
func (v *ViewModel) resolveCurrent() uuid.NullUUID {
	path := v.player.CurrentPath()
	if path == "" {
		return uuid.NullUUID{}
	}
	playing, err := v.files.MakeRelative(path)
	if err != nil {
		return uuid.NullUUID{}
	}
	for _, r := range v.state.Recordings {
		addr, err := v.files.MakeRelative(r.Address)
		if err == nil && addr == playing {
			return uuid.NullUUID{UUID: r.ID, Valid: true}
		}
	}
	return uuid.NullUUID{}
}
