package play

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
)

// Playback is one running playback on the output device.
type Playback interface {
	Pause() error
	Resume() error
	// Stop tears the playback down without waiting for it.
	Stop()
	// Done yields once when playback ends: nil at end of file or after
	// Stop, the failure otherwise.
	Done() <-chan error
}

// Engine starts playbacks. filter is an ffmpeg audio filter chain, empty
// for direct playback.
type Engine interface {
	Start(path, filter string) (Playback, error)
}

// CommandEngine plays files through an external player process.
type CommandEngine struct {
	binary string
}

// NewCommandEngine returns an engine running binary. "auto" picks the first
// supported player found on PATH.
func NewCommandEngine(binary string) (*CommandEngine, error) {
	if binary == "" || binary == "auto" {
		found, err := findAudioPlayer()
		if err != nil {
			return nil, err
		}
		binary = found
	}
	switch playerName(binary) {
	case "ffplay", "mpv":
	default:
		return nil, fmt.Errorf("unsupported player: %s (use ffplay or mpv)", binary)
	}
	return &CommandEngine{binary: binary}, nil
}

// findAudioPlayer returns the first player able to apply filter graphs.
func findAudioPlayer() (string, error) {
	players := []string{"ffplay", "mpv"}
	for _, player := range players {
		if _, err := exec.LookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

func playerName(binary string) string {
	return strings.TrimSuffix(filepath.Base(binary), filepath.Ext(binary))
}

// Args builds the player command line.
func (e *CommandEngine) Args(path, filter string) []string {
	if playerName(e.binary) == "mpv" {
		args := []string{"--no-video", "--really-quiet", "--no-terminal"}
		if filter != "" {
			args = append(args, "--af=lavfi=["+filter+"]")
		}
		return append(args, "--", path)
	}

	args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	if filter != "" {
		args = append(args, "-af", filter)
	}
	return append(args, path)
}

func (e *CommandEngine) Start(path, filter string) (Playback, error) {
	args := e.Args(path, filter)
	slog.Debug("Starting player", "binary", e.binary, "args", strings.Join(args, " "))

	cmd := exec.Command(e.binary, args...)
	p := &processPlayback{cmd: cmd, done: make(chan error, 1)}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", e.binary, err)
	}
	go p.wait()
	return p, nil
}

type processPlayback struct {
	cmd     *exec.Cmd
	stderr  bytes.Buffer
	stopped atomic.Bool
	done    chan error
}

func (p *processPlayback) wait() {
	err := p.cmd.Wait()
	if p.stopped.Load() {
		err = nil
	} else if err != nil {
		err = fmt.Errorf("player exited: %w: %s", err, strings.TrimSpace(p.stderr.String()))
	}
	p.done <- err
	close(p.done)
}

func (p *processPlayback) Pause() error {
	return p.cmd.Process.Signal(syscall.SIGSTOP)
}

func (p *processPlayback) Resume() error {
	return p.cmd.Process.Signal(syscall.SIGCONT)
}

func (p *processPlayback) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	// A paused process must be continued to act on the kill promptly.
	_ = p.cmd.Process.Signal(syscall.SIGCONT)
	if err := p.cmd.Process.Kill(); err != nil {
		slog.Debug("Failed to kill player", "error", err)
	}
}

func (p *processPlayback) Done() <-chan error { return p.done }
