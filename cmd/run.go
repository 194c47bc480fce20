package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marwant/zizh/internal/recording"
)

var runCmd = &cobra.Command{
	Use:   "run [id]",
	Short: "Execute pipeline steps",
	Long: `Execute the steps given with -p in order: r=record, p=play, s=slow-motion play.
Playback steps use the memo recorded by an earlier 'r' step, or the recording
named by [id] (the newest recording when omitted).

Example: 'zizh run -p rs' records a memo and plays it back in slow motion.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rs)")
		}
		if err := validatePipeline(pipeline); err != nil {
			return err
		}

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.Run(cmd.Context(), func(ctx context.Context) error {
			var rec recording.Recording
			if len(args) == 1 {
				rec, err = svc.FindRecording(ctx, args[0])
				if err != nil {
					return err
				}
			} else {
				recs, err := svc.Repository.FetchRecords(ctx)
				if err != nil {
					return err
				}
				if len(recs) > 0 {
					rec = recs[0]
				}
			}
			return executePipeline(ctx, svc, rec, 0)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, p=play, s=slow-motion play (e.g., 'rs', 'rp')")
}
