// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty path loads
// defaults and environment only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, def string) string {
	k := envKey(key)
	l.ConsumedEnvKeys[k] = struct{}{}
	return ParseString(k, def)
}

func (l *Loader) envInt(key string, def int) int {
	k := envKey(key)
	l.ConsumedEnvKeys[k] = struct{}{}
	return ParseInt(k, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	k := envKey(key)
	l.ConsumedEnvKeys[k] = struct{}{}
	return ParseFloat(k, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	k := envKey(key)
	l.ConsumedEnvKeys[k] = struct{}{}
	return ParseBool(k, def)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// validates the result.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg. Keys absent from the file keep
// their current value.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.Log.Level = l.envString("log.level", cfg.Log.Level)
	cfg.Log.Console = l.envBool("log.console", cfg.Log.Console)

	cfg.Encoder.TargetBitrate = l.envInt("encoder.target_bitrate", cfg.Encoder.TargetBitrate)
	cfg.Encoder.Caps = l.envString("encoder.caps", cfg.Encoder.Caps)

	cfg.Device.Kind = l.envString("device.kind", cfg.Device.Kind)
	cfg.Device.QueueDepth = l.envInt("device.queue_depth", cfg.Device.QueueDepth)
	cfg.Device.MaxFPS = l.envFloat("device.max_fps", cfg.Device.MaxFPS)
	cfg.Device.SyncInterval = l.envInt("device.sync_interval", cfg.Device.SyncInterval)
	cfg.Device.Library = l.envString("device.library", cfg.Device.Library)

	cfg.Input.Path = l.envString("input.path", cfg.Input.Path)
	cfg.Input.Width = l.envInt("input.width", cfg.Input.Width)
	cfg.Input.Height = l.envInt("input.height", cfg.Input.Height)
	cfg.Input.FPS = l.envInt("input.fps", cfg.Input.FPS)
	cfg.Input.Format = l.envString("input.format", cfg.Input.Format)
	cfg.Input.Frames = l.envInt("input.frames", cfg.Input.Frames)
	cfg.Input.Live = l.envBool("input.live", cfg.Input.Live)

	cfg.Sink.Kind = l.envString("sink.kind", cfg.Sink.Kind)
	cfg.Sink.Path = l.envString("sink.path", cfg.Sink.Path)
	cfg.Sink.RTPAddr = l.envString("sink.rtp_addr", cfg.Sink.RTPAddr)
	cfg.Sink.PayloadType = l.envInt("sink.payload_type", cfg.Sink.PayloadType)
	cfg.Sink.Pipeline = l.envString("sink.pipeline", cfg.Sink.Pipeline)

	cfg.Metrics.Listen = l.envString("metrics.listen", cfg.Metrics.Listen)

	cfg.Tracing.Enabled = l.envBool("tracing.enabled", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = l.envString("tracing.exporter", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = l.envString("tracing.endpoint", cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = l.envFloat("tracing.sampling_rate", cfg.Tracing.SamplingRate)
}
