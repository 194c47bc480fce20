// Package metrics exposes recording and playback counters for Prometheus.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application counters on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	recordingsCaptured prometheus.Counter
	recordingsDeleted  prometheus.Counter
	deletionFailures   prometheus.Counter
	playbackStarted    *prometheus.CounterVec
	playbackFailures   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		recordingsCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "zizh_recordings_captured_total",
			Help: "Total number of captures persisted as recordings",
		}),
		recordingsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "zizh_recordings_deleted_total",
			Help: "Total number of recordings deleted",
		}),
		deletionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "zizh_recording_deletion_failures_total",
			Help: "Total number of recording deletions that failed",
		}),
		playbackStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zizh_playback_started_total",
			Help: "Total number of playbacks started by mode",
		}, []string{"mode"}),
		playbackFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zizh_playback_failures_total",
			Help: "Total number of playbacks that failed to start by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) RecordingCaptured() { m.recordingsCaptured.Inc() }

func (m *Metrics) RecordingDeleted() { m.recordingsDeleted.Inc() }

func (m *Metrics) RecordingDeletionFailed() { m.deletionFailures.Inc() }

// PlaybackStarted counts a playback; slowMotion selects the mode label.
func (m *Metrics) PlaybackStarted(slowMotion bool) {
	mode := "normal"
	if slowMotion {
		mode = "slow_motion"
	}
	m.playbackStarted.WithLabelValues(mode).Inc()
}

// PlaybackFailed counts a failed start. reason ∈ {invalid_media,playback,closed,unknown}.
func (m *Metrics) PlaybackFailed(reason string) {
	m.playbackFailures.WithLabelValues(normalizeReason(reason)).Inc()
}

func normalizeReason(reason string) string {
	switch r := strings.ToLower(strings.TrimSpace(reason)); r {
	case "invalid_media", "playback", "closed":
		return r
	default:
		return "unknown"
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
