// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the encoder configuration from defaults, a YAML file
// and HWENC_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/hwenc/internal/encoder"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Device kinds.
const (
	DeviceFake       = "fake"
	DeviceDroidMedia = "droidmedia"
)

// Sink kinds.
const (
	SinkFile    = "file"
	SinkRTP     = "rtp"
	SinkGst     = "gst"
	SinkDiscard = "discard"
)

// Config is the complete runtime configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Encoder EncoderConfig `yaml:"encoder"`
	Device  DeviceConfig  `yaml:"device"`
	Input   InputConfig   `yaml:"input"`
	Sink    SinkConfig    `yaml:"sink"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type EncoderConfig struct {
	TargetBitrate int `yaml:"target_bitrate"`
	// Caps are the caps accepted downstream, e.g. "video/x-h264".
	Caps string `yaml:"caps"`
}

type DeviceConfig struct {
	Kind         string  `yaml:"kind"`
	QueueDepth   int     `yaml:"queue_depth"`
	MaxFPS       float64 `yaml:"max_fps"`
	SyncInterval int     `yaml:"sync_interval"`
	// Library overrides the libdroidmedia search path.
	Library string `yaml:"library"`
}

type InputConfig struct {
	Path   string `yaml:"path"` // "-" or empty reads stdin
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	Format string `yaml:"format"`
	// Frames stops after this many frames; zero reads until end of input.
	Frames int `yaml:"frames"`
	// Live paces input at the nominal frame rate.
	Live bool `yaml:"live"`
}

type SinkConfig struct {
	Kind        string `yaml:"kind"`
	Path        string `yaml:"path"`
	RTPAddr     string `yaml:"rtp_addr"`
	PayloadType int    `yaml:"payload_type"`
	Pipeline    string `yaml:"pipeline"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc or http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Encoder: EncoderConfig{
			TargetBitrate: encoder.DefaultTargetBitrate,
			Caps:          "video/x-h264",
		},
		Device: DeviceConfig{
			Kind:         DeviceFake,
			QueueDepth:   4,
			SyncInterval: 30,
		},
		Input: InputConfig{
			Path:   "-",
			Width:  320,
			Height: 240,
			FPS:    30,
			Format: "I420",
		},
		Sink: SinkConfig{
			Kind:        SinkFile,
			Path:        "out.h264",
			PayloadType: 96,
		},
		Tracing: TracingConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// VideoInfo returns the raw input format.
func (c Config) VideoInfo() encoder.VideoInfo {
	return encoder.VideoInfo{
		Format: c.Input.Format,
		Width:  c.Input.Width,
		Height: c.Input.Height,
		FPSNum: c.Input.FPS,
		FPSDen: 1,
	}
}

// FrameInterval is the nominal input frame duration.
func (c Config) FrameInterval() time.Duration {
	return c.VideoInfo().FrameDuration()
}

func (c Config) String() string {
	return fmt.Sprintf("device=%s sink=%s input=%dx%d@%d bitrate=%d",
		c.Device.Kind, c.Sink.Kind, c.Input.Width, c.Input.Height, c.Input.FPS, c.Encoder.TargetBitrate)
}
