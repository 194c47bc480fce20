package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// PipeWire lists and links capture sources through the PipeWire tools,
// falling back to PulseAudio's pactl for source listing.
type PipeWire struct {
	// run executes a command and returns its stdout. Replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewPipeWire() *PipeWire {
	return &PipeWire{run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ListSources returns the capture sources of the host. PulseAudio source
// names come first; if pactl is unavailable the PipeWire output ports are
// listed instead.
func (pw *PipeWire) ListSources(ctx context.Context) ([]string, error) {
	out, err := pw.run(ctx, "pactl", "list", "short", "sources")
	if err == nil {
		return parsePactlSources(string(out)), nil
	}
	slog.Debug("pactl unavailable, listing PipeWire ports", "error", err)

	out, err = pw.run(ctx, "pw-link", "-o")
	if err != nil {
		return nil, fmt.Errorf("failed to list capture sources: %w", err)
	}
	return parsePorts(string(out)), nil
}

// ListPorts returns every port in the PipeWire graph.
func (pw *PipeWire) ListPorts(ctx context.Context) ([]string, error) {
	out, err := pw.run(ctx, "pw-link", "-io")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(out)), nil
}

// parsePactlSources extracts source names from `pactl list short sources`,
// whose lines are "index<TAB>name<TAB>driver<TAB>spec<TAB>state". Monitor
// sources of output sinks are skipped.
func parsePactlSources(output string) []string {
	var sources []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "\t")
		if len(fields) < 2 || fields[1] == "" {
			continue
		}
		if strings.HasSuffix(fields[1], ".monitor") {
			continue
		}
		sources = append(sources, fields[1])
	}
	return sources
}

func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// ValidatePort checks that a port exists exactly once in the graph.
func (pw *PipeWire) ValidatePort(portName string) error {
	ports, err := pw.ListPorts(context.Background())
	if err != nil {
		return err
	}
	return validatePortInList(portName, ports)
}

func validatePortInList(portName string, ports []string) error {
	duplicates := findPortDuplicatesInList(portName, ports)
	if len(duplicates) == 0 {
		return fmt.Errorf("port not found: %s", portName)
	}
	if len(duplicates) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", portName, duplicates)
	}
	return nil
}

func findPortDuplicatesInList(portName string, ports []string) []string {
	var duplicates []string
	for _, port := range ports {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

// WaitForPort polls until portName appears in the graph.
func (pw *PipeWire) WaitForPort(portName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := pw.ValidatePort(portName); err == nil {
			slog.Debug("JACK port found", "port", portName)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for JACK port: %s", portName)
}

// ConnectPortsWithRetry links sourcePort to destPort, retrying while the
// source is not yet in the graph. Application ports get a longer window
// than hardware ports.
func (pw *PipeWire) ConnectPortsWithRetry(sourcePort, destPort string) error {
	maxRetries, retryDelay := 5, 500*time.Millisecond
	if isEphemeralPort(sourcePort) {
		maxRetries, retryDelay = 15, time.Second
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := pw.ValidatePort(sourcePort); err == nil {
			_, err := pw.run(context.Background(), "pw-link", sourcePort, destPort)
			if err == nil {
				slog.Debug("Connected ports", "source", sourcePort, "dest", destPort, "attempt", attempt)
				return nil
			}
			slog.Debug("Connection attempt failed", "source", sourcePort, "dest", destPort, "attempt", attempt, "error", err)
		} else {
			slog.Debug("Source port not yet available", "source", sourcePort, "attempt", attempt)
		}

		if attempt < maxRetries {
			time.Sleep(retryDelay)
		}
	}
	return fmt.Errorf("failed to connect %s to %s after %d attempts", sourcePort, destPort, maxRetries)
}

// isEphemeralPort reports whether a port belongs to an application that
// may come and go, rather than to a sound card.
func isEphemeralPort(portName string) bool {
	lowerPort := strings.ToLower(portName)
	for _, app := range []string{"chrome", "firefox", "discord", "zoom", "teams", "slack", "obs"} {
		if strings.Contains(lowerPort, app) {
			return true
		}
	}
	return false
}
