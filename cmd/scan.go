package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check the recordings directory against the library",
	Long: `Report files in the recordings directory whose names cannot be mapped to a
recording, and valid files that have no library entry. With --import the
untracked files are added to the library.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		doImport, _ := cmd.Flags().GetBool("import")

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		report, err := svc.Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("📁 %s\n", svc.Files.RecordingsDirectory())
		fmt.Printf("  valid files: %d\n", len(report.Valid))

		fmt.Printf("  malformed names: %d\n", len(report.Malformed))
		for _, path := range report.Malformed {
			fmt.Printf("    - %s\n", path)
		}

		fmt.Printf("  untracked files: %d\n", len(report.Untracked))
		for _, f := range report.Untracked {
			fmt.Printf("    - %s\n", f.Path)
		}

		if !doImport || len(report.Untracked) == 0 {
			return nil
		}
		n, err := svc.Import(cmd.Context(), report.Untracked)
		fmt.Printf("Imported %d recording(s)\n", n)
		return err
	},
}

func init() {
	scanCmd.Flags().Bool("import", false, "add untracked files to the library")
}
