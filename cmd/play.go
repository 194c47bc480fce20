package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marwant/zizh/internal/play"
	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/service"
)

var playCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Play a recording",
	Long: `Play a recording by id or unique id prefix. With --slow the memo is played
slowed down with its pitch preserved; --rate sets how slow (default from config).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slow, _ := cmd.Flags().GetBool("slow")
		if cmd.Flags().Changed("rate") {
			slow = true
		}
		rate, _ := cmd.Flags().GetFloat64("rate")

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.Run(cmd.Context(), func(ctx context.Context) error {
			rec, err := svc.FindRecording(ctx, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rate") {
				if err := svc.ViewModel.SetRate(ctx, rate); err != nil {
					return err
				}
			}
			return playAndWait(ctx, svc, rec, slow)
		})
	},
}

// playAndWait plays rec and blocks until it ends or Ctrl+C stops it.
func playAndWait(ctx context.Context, svc *service.Service, rec recording.Recording, slow bool) error {
	vm := svc.ViewModel
	if vm.State().IsSlowMotion != slow {
		if err := vm.ToggleSlowMotion(ctx); err != nil {
			return err
		}
	}

	sub := svc.Player.Status().Subscribe()
	defer svc.Player.Status().Unsubscribe(sub)

	if err := vm.PlayRecording(ctx, rec); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}

	mode := play.Normal()
	if slow {
		mode = play.SlowMotion(vm.State().Rate)
	}
	fmt.Printf("Playing %s (%s, %s)... press Ctrl+C to stop\n", shortID(rec), formatDuration(rec.Duration), mode)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := false
	for {
		select {
		case st, ok := <-sub.C:
			if !ok {
				return nil
			}
			switch st {
			case play.Playing, play.Paused:
				started = true
			case play.Stopped:
				if started {
					return nil
				}
			}
		case <-sigCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return vm.StopPlaying(ctx)
		}
	}
}

func init() {
	playCmd.Flags().Bool("slow", false, "play in slow motion with pitch compensation")
	playCmd.Flags().Float64("rate", 0, "slow-motion rate, e.g. 0.5 for half speed (implies --slow)")
}
