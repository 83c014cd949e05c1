// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/ManuGH/hwenc/internal/caps"
)

// ValidationError lists every invalid field of a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

var validInputFormats = map[string]bool{"I420": true, "YV12": true, "NV12": true}

// Validate checks a configuration and reports all problems at once.
func Validate(cfg Config) error {
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }

	switch strings.ToLower(cfg.Log.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		add("log.level %q is not a valid level", cfg.Log.Level)
	}

	if cfg.Encoder.TargetBitrate < 0 || cfg.Encoder.TargetBitrate > math.MaxInt32 {
		add("encoder.target_bitrate %d out of range [0, %d]", cfg.Encoder.TargetBitrate, math.MaxInt32)
	}
	if _, err := caps.Parse(cfg.Encoder.Caps); err != nil {
		add("encoder.caps: %v", err)
	}

	switch cfg.Device.Kind {
	case DeviceFake, DeviceDroidMedia:
	default:
		add("device.kind %q must be %s or %s", cfg.Device.Kind, DeviceFake, DeviceDroidMedia)
	}
	if cfg.Device.QueueDepth < 1 {
		add("device.queue_depth must be at least 1")
	}
	if cfg.Device.MaxFPS < 0 {
		add("device.max_fps must not be negative")
	}
	if cfg.Device.SyncInterval < 1 {
		add("device.sync_interval must be at least 1")
	}

	if cfg.Input.Width <= 0 || cfg.Input.Height <= 0 {
		add("input resolution %dx%d is invalid", cfg.Input.Width, cfg.Input.Height)
	}
	if cfg.Input.FPS < 0 {
		add("input.fps must not be negative")
	}
	if cfg.Input.Frames < 0 {
		add("input.frames must not be negative")
	}
	if !validInputFormats[cfg.Input.Format] {
		add("input.format %q must be one of I420, YV12, NV12", cfg.Input.Format)
	}

	switch cfg.Sink.Kind {
	case SinkFile:
		if cfg.Sink.Path == "" {
			add("sink.path is required for the file sink")
		}
	case SinkRTP:
		if _, _, err := net.SplitHostPort(cfg.Sink.RTPAddr); err != nil {
			add("sink.rtp_addr %q: %v", cfg.Sink.RTPAddr, err)
		}
		if cfg.Sink.PayloadType < 0 || cfg.Sink.PayloadType > 127 {
			add("sink.payload_type %d out of range [0, 127]", cfg.Sink.PayloadType)
		}
	case SinkGst:
		if strings.TrimSpace(cfg.Sink.Pipeline) == "" {
			add("sink.pipeline is required for the gst sink")
		}
	case SinkDiscard:
	default:
		add("sink.kind %q must be file, rtp, gst or discard", cfg.Sink.Kind)
	}

	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			add("metrics.listen %q: %v", cfg.Metrics.Listen, err)
		}
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "grpc" && cfg.Tracing.Exporter != "http" {
			add("tracing.exporter %q must be grpc or http", cfg.Tracing.Exporter)
		}
		if cfg.Tracing.Endpoint == "" {
			add("tracing.endpoint is required when tracing is enabled")
		}
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		add("tracing.sampling_rate must be within [0, 1]")
	}

	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

// IsValidationError reports whether err carries validation problems.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
