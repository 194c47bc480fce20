package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/service"
	"github.com/marwant/zizh/internal/viewmodel"
)

// saveTimeout bounds the wait for ffmpeg to finalize and the metadata write.
const saveTimeout = 15 * time.Second

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice memo",
	Long: `Record from the configured capture source until Enter or Ctrl+C is pressed.
The memo is stored in the recordings directory and added to the library.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.Run(cmd.Context(), func(ctx context.Context) error {
			rec, err := recordOnce(ctx, svc)
			if err != nil {
				return err
			}
			fmt.Printf("Saved %s (%s) %s\n", shortID(rec), formatDuration(rec.Duration), svc.Files.MakeAbsolute(rec.Address))
			return executePipeline(ctx, svc, rec, 'r')
		})
	},
}

// recordOnce captures one memo through the view model and returns it once it
// is in the library.
func recordOnce(ctx context.Context, svc *service.Service) (recording.Recording, error) {
	vm := svc.ViewModel

	granted, err := vm.RequestPermission(ctx)
	if err != nil {
		return recording.Recording{}, err
	}
	if !granted {
		return recording.Recording{}, errors.New("no capture source available, check 'zizh sources'")
	}

	if err := vm.SyncRecordings(ctx); err != nil {
		return recording.Recording{}, err
	}
	known := make(map[string]bool)
	for _, r := range vm.State().Recordings {
		known[r.ID.String()] = true
	}

	sub := vm.Changes().Subscribe()
	defer vm.Changes().Unsubscribe(sub)

	if err := vm.ToggleRecording(ctx); err != nil {
		return recording.Recording{}, fmt.Errorf("failed to start recording: %w", err)
	}
	fmt.Println("Recording... press Enter or Ctrl+C to stop")

	waitForStop(ctx, sub.C)
	fmt.Println()

	if vm.State().IsRecording {
		if err := vm.ToggleRecording(ctx); err != nil {
			return recording.Recording{}, fmt.Errorf("failed to stop recording: %w", err)
		}
	}
	slog.Debug("Waiting for recording to be saved")

	timeout := time.NewTimer(saveTimeout)
	defer timeout.Stop()
	for {
		select {
		case st, ok := <-sub.C:
			if !ok {
				return recording.Recording{}, viewmodel.ErrStopped
			}
			for _, r := range st.Recordings {
				if !known[r.ID.String()] {
					return r, nil
				}
			}
		case <-timeout.C:
			return recording.Recording{}, errors.New("recording was not saved, run with -v 2 to see ffmpeg output")
		case <-ctx.Done():
			return recording.Recording{}, ctx.Err()
		}
	}
}

// waitForStop blocks until Enter, Ctrl+C, or the capture ending on its own.
// The elapsed time is redrawn as it changes.
func waitForStop(ctx context.Context, states <-chan viewmodel.State) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	started := false
	last := ""
	for {
		select {
		case <-enter:
			return
		case <-sigCtx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if st.IsRecording {
				started = true
			} else if started {
				slog.Warn("Recording ended by the capture device")
				return
			}
			if st.ElapsedTime != last {
				last = st.ElapsedTime
				fmt.Printf("\r⏺  %s", last)
			}
		}
	}
}
