package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marwant/zizh/internal/recording"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		recs, err := svc.Repository.FetchRecords(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(recs)
		}

		if len(recs) == 0 {
			fmt.Println("No recordings yet. Run 'zizh record' to make one.")
			return nil
		}

		fmt.Printf("%-8s  %-20s  %8s  %s\n", "ID", "NAME", "LENGTH", "FILE")
		for _, r := range recs {
			fmt.Printf("%-8s  %-20s  %8s  %s\n", shortID(r), r.Name, formatDuration(r.Duration), r.Address)
		}
		fmt.Printf("\n%d recording(s) in %s\n", len(recs), svc.Files.RecordingsDirectory())
		return nil
	},
}

func shortID(r recording.Recording) string {
	return r.ID.String()[:8]
}

// formatDuration renders d as m:ss.
func formatDuration(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func init() {
	listCmd.Flags().Bool("json", false, "print recordings as JSON")
}
