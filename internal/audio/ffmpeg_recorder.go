package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marwant/zizh/internal/config"
)

const (
	stopTimeout = 5 * time.Second
	// An AAC file holding only its headers is smaller than this.
	minOutputSize = 1024
)

// bitrates maps the configured encoder quality to an AAC bitrate.
var bitrates = map[string]string{
	"min":    "64k",
	"low":    "96k",
	"medium": "128k",
	"high":   "192k",
	"max":    "256k",
}

// FFmpegRecorder captures the microphone with an ffmpeg child process.
type FFmpegRecorder struct {
	cfg       config.RecordingConfig
	sources   *PipeWire
	logOutput bool
}

// NewFFmpegRecorder returns a recorder for cfg. When logOutput is set the
// ffmpeg output is forwarded to the debug log.
func NewFFmpegRecorder(cfg config.RecordingConfig, sources *PipeWire, logOutput bool) *FFmpegRecorder {
	return &FFmpegRecorder{cfg: cfg, sources: sources, logOutput: logOutput}
}

// Args builds the ffmpeg command line writing to outputFile. JACK capture
// runs ffmpeg under pw-jack so it joins the PipeWire graph.
func (r *FFmpegRecorder) Args(outputFile string) []string {
	var args []string
	if r.cfg.InputFormat == "jack" {
		args = append(args, "pw-jack")
	}
	args = append(args, r.cfg.Binary, "-hide_banner", "-nostdin")

	input := r.cfg.InputDevice
	if r.cfg.InputFormat == "jack" {
		// ffmpeg's jack input names its own client; sources are linked to it.
		input = "zizh"
	}
	args = append(args,
		"-f", r.cfg.InputFormat,
		"-channels", strconv.Itoa(r.cfg.Channels),
		"-i", input,
	)

	bitrate, ok := bitrates[r.cfg.Quality]
	if !ok {
		bitrate = bitrates["high"]
	}

	args = append(args,
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-ac", strconv.Itoa(r.cfg.Channels),
		"-c:a", r.cfg.Codec,
		"-b:a", bitrate,
		"-f", "mp4",
		"-y",
		outputFile,
	)
	return args
}

// Record starts ffmpeg writing to path.
func (r *FFmpegRecorder) Record(ctx context.Context, path string) (Take, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.cfg.InputFormat == "jack" && r.cfg.InputDevice != "default" && r.sources != nil {
		if err := r.sources.ValidatePort(r.cfg.InputDevice); err != nil {
			return nil, fmt.Errorf("capture source unavailable: %w", err)
		}
	}

	args := r.Args(path)
	slog.Info("Starting FFmpeg capture", "command", strings.Join(args, " "))

	// The take outlives the request that started it, so ctx does not bind
	// the process.
	cmd := exec.Command(args[0], args[1:]...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	t := &ffmpegTake{
		cmd:       cmd,
		path:      path,
		stop:      make(chan struct{}),
		done:      make(chan error, 1),
		logOutput: r.logOutput,
	}
	t.output.Add(1)
	go t.readOutput(stderr)
	go t.supervise()

	if r.cfg.InputFormat == "jack" && r.cfg.InputDevice != "default" && r.sources != nil {
		go r.linkSource(r.cfg.InputDevice)
	}
	return t, nil
}

// linkSource connects the configured JACK source to ffmpeg's input ports
// once they appear.
func (r *FFmpegRecorder) linkSource(source string) {
	for i := 1; i <= r.cfg.Channels; i++ {
		dest := fmt.Sprintf("zizh:input_%d", i)
		if err := r.sources.WaitForPort(dest, stopTimeout); err != nil {
			slog.Error("FFmpeg JACK port did not appear", "port", dest, "error", err)
			return
		}
		if err := r.sources.ConnectPortsWithRetry(source, dest); err != nil {
			slog.Error("Failed to connect capture source", "source", source, "dest", dest, "error", err)
			continue
		}
		slog.Info("Connected capture source", "source", source, "dest", dest)
	}
}

type ffmpegTake struct {
	cmd       *exec.Cmd
	path      string
	logOutput bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan error

	output    sync.WaitGroup
	outputBuf strings.Builder
}

func (t *ffmpegTake) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *ffmpegTake) Done() <-chan error { return t.done }

// readOutput drains ffmpeg's stderr so the process never blocks on it.
func (t *ffmpegTake) readOutput(pipe io.ReadCloser) {
	defer t.output.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		t.outputBuf.WriteString(line + "\n")
		if t.logOutput {
			slog.Debug("FFmpeg output", "line", line)
		}
	}
}

func (t *ffmpegTake) supervise() {
	exited := make(chan error, 1)
	go func() {
		// All output must be read before Wait closes the pipe.
		t.output.Wait()
		exited <- t.cmd.Wait()
	}()

	var err error
	select {
	case err = <-exited:
		if err != nil {
			slog.Debug("FFmpeg stderr", "output", t.outputBuf.String())
			err = fmt.Errorf("FFmpeg process failed: %w", err)
		} else {
			slog.Warn("FFmpeg exited before it was stopped")
		}
	case <-t.stop:
		err = t.interrupt(exited)
	}

	if err == nil {
		err = validateOutputFile(t.path)
	}
	t.done <- err
	close(t.done)
}

// interrupt sends SIGINT so ffmpeg writes the MP4 trailer, and kills the
// process if it has not exited within stopTimeout.
func (t *ffmpegTake) interrupt(exited <-chan error) error {
	slog.Debug("Sending SIGINT to FFmpeg process")
	if err := t.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt to FFmpeg, killing", "error", err)
		_ = t.cmd.Process.Kill()
	}

	select {
	case err := <-exited:
		if err == nil || isInterruptExit(err) {
			slog.Debug("FFmpeg exited after interrupt")
			return nil
		}
		slog.Debug("FFmpeg stderr", "output", t.outputBuf.String())
		return fmt.Errorf("FFmpeg process failed: %w", err)

	case <-time.After(stopTimeout):
		slog.Warn("FFmpeg did not exit within timeout, force killing")
		_ = t.cmd.Process.Kill()
		<-exited
		return errors.New("FFmpeg did not finalize the recording in time")
	}
}

// isInterruptExit reports whether err is ffmpeg's normal exit after SIGINT.
func isInterruptExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		return state == "signal: interrupt"
	}
	return false
}

func validateOutputFile(path string) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording file not found: %s", path)
	}
	if fileInfo.Size() < minOutputSize {
		return fmt.Errorf("recording failed: file too small (%d bytes)", fileInfo.Size())
	}
	slog.Debug("Recording file validated", "path", path, "size", fileInfo.Size())
	return nil
}
