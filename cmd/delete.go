package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete recordings and their audio files",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		return svc.Run(cmd.Context(), func(ctx context.Context) error {
			vm := svc.ViewModel
			if err := vm.SyncRecordings(ctx); err != nil {
				return err
			}

			var ids []uuid.UUID
			seen := make(map[uuid.UUID]bool)
			for _, id := range args {
				rec, err := svc.FindRecording(ctx, id)
				if err != nil {
					return err
				}
				if !seen[rec.ID] {
					seen[rec.ID] = true
					ids = append(ids, rec.ID)
				}
			}

			if err := vm.DeleteRecordingsByID(ctx, ids...); err != nil {
				return err
			}
			fmt.Printf("Deleted %d recording(s)\n", len(ids))
			return nil
		})
	},
}
