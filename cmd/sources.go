package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marwant/zizh/internal/audio"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the capture sources reported by PulseAudio or PipeWire, and the input formats ffmpeg can use on this host.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := audio.NewPipeWire().ListSources(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get audio sources: %w", err)
		}

		fmt.Printf("🎙  Audio Sources (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		fmt.Printf("📋 CAPTURE SOURCES (%d found):\n", len(sources))
		for i, source := range sources {
			marker := ""
			if source == cfg.Recording.InputDevice {
				marker = " (configured)"
			}
			fmt.Printf("  %d. %s%s\n", i+1, source, marker)
		}

		fmt.Printf("\n🔌 INPUT FORMATS:\n")
		for _, format := range audio.AvailableInputFormats() {
			marker := ""
			if string(format) == cfg.Recording.InputFormat {
				marker = " (configured)"
			}
			fmt.Printf("  • %s%s\n", format, marker)
		}

		fmt.Printf("\n💡 Usage:\n")
		fmt.Printf("  • Set recording.input_device to one of the sources above\n")
		fmt.Printf("  • Example: \"alsa_input.usb-Blue_Yeti-00.analog-stereo\"\n\n")
		return nil
	},
}
