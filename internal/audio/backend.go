package audio

import (
	"os"
	"os/exec"

	"github.com/marwant/zizh/internal/config"
)

// InputFormat is the ffmpeg input device family used for capture.
type InputFormat string

const (
	InputFormatPulse InputFormat = "pulse"
	InputFormatALSA  InputFormat = "alsa"
	InputFormatJACK  InputFormat = "jack"
)

// NewHardware returns the capture hardware for cfg.
func NewHardware(cfg config.RecordingConfig, logOutput bool) Hardware {
	return NewFFmpegRecorder(cfg, NewPipeWire(), logOutput)
}

// AvailableInputFormats lists the input families this host can serve.
func AvailableInputFormats() []InputFormat {
	var formats []InputFormat

	if hasCommand("pactl") || hasCommand("pipewire-pulse") {
		formats = append(formats, InputFormatPulse)
	}
	if _, err := os.Stat("/proc/asound"); err == nil {
		formats = append(formats, InputFormatALSA)
	}
	if hasCommand("pw-jack") {
		formats = append(formats, InputFormatJACK)
	}
	return formats
}

func hasCommand(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
