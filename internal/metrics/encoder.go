// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesSubmitted counts frames accepted by the device.
	FramesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_frames_submitted_total",
		Help: "Total frames handed to the hardware encoder",
	}, []string{"codec"})

	// FramesCompleted counts encoded samples delivered downstream.
	FramesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_frames_completed_total",
		Help: "Total encoded samples finished towards downstream",
	}, []string{"codec"})

	// FramesRetired counts frames finished without output.
	FramesRetired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_frames_retired_total",
		Help: "Total frames retired without output",
	}, []string{"reason"}) // reason: no_session|blocked|consume_failed|process_failed

	// OrphanOutputs counts encoded samples that arrived with no pending frame.
	OrphanOutputs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hwenc_orphan_outputs_total",
		Help: "Encoded samples dropped because no frame was pending",
	})

	// CodecConfigs counts codec-config payloads by outcome.
	CodecConfigs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_codec_config_total",
		Help: "Codec configuration payloads received from the device",
	}, []string{"result"}) // result: ok|empty|failed

	// DeviceErrors counts device runtime errors.
	DeviceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_device_errors_total",
		Help: "Device error callbacks by handling",
	}, []string{"handling"}) // handling: swallowed|fatal

	// DrainDuration tracks how long a drain waited for end of stream.
	DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hwenc_drain_duration_seconds",
		Help:    "Time spent waiting for the device to drain",
		Buckets: prometheus.ExponentialBuckets(0.001, 2.0, 14), // 1ms to ~8s
	})

	// SessionsActive is the number of live encoder sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hwenc_sessions_active",
		Help: "Number of configured encoder sessions",
	})

	// SessionFailures counts session configuration failures by stage.
	SessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_session_failures_total",
		Help: "Encoder session configuration failures",
	}, []string{"stage"}) // stage: resolve|create|start

	// SinkBytes counts bytes written by sinks.
	SinkBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_sink_bytes_total",
		Help: "Total bytes written downstream by sink kind",
	}, []string{"sink"})
)

// RetireFrame records a frame finished without output.
func RetireFrame(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	FramesRetired.WithLabelValues(reason).Inc()
}
