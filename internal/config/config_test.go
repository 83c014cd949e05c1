// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oasdiff/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hwenc/internal/encoder"
)

func writeConfig(t *testing.T, path string, cfg map[string]any) {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, encoder.DefaultTargetBitrate, cfg.Encoder.TargetBitrate)
	assert.Equal(t, 33333333*time.Nanosecond, cfg.FrameInterval())
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwenc.yaml")
	writeConfig(t, path, map[string]any{
		"encoder": map[string]any{"target_bitrate": 500000},
		"sink":    map[string]any{"kind": "rtp", "rtp_addr": "127.0.0.1:5004"},
		"input":   map[string]any{"width": 640, "height": 480},
	})
	t.Setenv("HWENC_INPUT_WIDTH", "1280")
	t.Setenv("HWENC_DEVICE_MAX_FPS", "12.5")

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 500000, cfg.Encoder.TargetBitrate, "file overrides default")
	assert.Equal(t, 1280, cfg.Input.Width, "env overrides file")
	assert.Equal(t, 480, cfg.Input.Height)
	assert.Equal(t, 12.5, cfg.Device.MaxFPS)
	assert.Equal(t, SinkRTP, cfg.Sink.Kind)
	assert.Equal(t, 96, cfg.Sink.PayloadType, "absent keys keep defaults")
	assert.Contains(t, l.ConsumedEnvKeys, "HWENC_SINK_RTP_ADDR")
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("HWENC_ENCODER_TARGET_BITRATE", "fast")
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, encoder.DefaultTargetBitrate, cfg.Encoder.TargetBitrate)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwenc.yaml")
	writeConfig(t, path, map[string]any{"encoder": map[string]any{"bitrate": 1}})
	_, err := NewLoader(path).Load()
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLoader(filepath.Join(dir, "hwenc.json")).Load()
	assert.ErrorContains(t, err, "only YAML supported")

	multi := filepath.Join(dir, "multi.yaml")
	require.NoError(t, os.WriteFile(multi, []byte("log:\n  level: info\n---\nlog:\n  level: debug\n"), 0o600))
	_, err = NewLoader(multi).Load()
	assert.ErrorContains(t, err, "multiple documents")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = NewLoader(empty).Load()
	assert.NoError(t, err)
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Encoder.TargetBitrate = -1
	cfg.Encoder.Caps = ""
	cfg.Device.Kind = "v4l2"
	cfg.Input.Format = "RGB"
	cfg.Sink.Kind = SinkRTP
	cfg.Sink.RTPAddr = "nowhere"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "zipkin"

	err := Validate(cfg)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 6)
	assert.ErrorContains(t, err, "encoder.target_bitrate")
	assert.ErrorContains(t, err, "device.kind")
}

func TestValidateSinkRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Sink.Path = ""
	assert.ErrorContains(t, Validate(cfg), "sink.path")

	cfg = Defaults()
	cfg.Sink.Kind = SinkGst
	assert.ErrorContains(t, Validate(cfg), "sink.pipeline")

	cfg.Sink.Pipeline = "fakesink"
	assert.NoError(t, Validate(cfg))
}

func TestHolderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwenc.yaml")
	writeConfig(t, path, map[string]any{"encoder": map[string]any{"target_bitrate": 100000}})

	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	updates := make(chan Config, 1)
	h.RegisterListener(updates)

	writeConfig(t, path, map[string]any{"encoder": map[string]any{"target_bitrate": 200000}})
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 200000, h.Get().Encoder.TargetBitrate)
	assert.Equal(t, 200000, (<-updates).Encoder.TargetBitrate)

	writeConfig(t, path, map[string]any{"encoder": map[string]any{"target_bitrate": -5}})
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 200000, h.Get().Encoder.TargetBitrate, "invalid config keeps the old one")
}

func TestHolderWatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwenc.yaml")
	writeConfig(t, path, map[string]any{"encoder": map[string]any{"target_bitrate": 100000}})

	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)
	updates := make(chan Config, 4)
	h.RegisterListener(updates)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.StartWatcher(ctx))
	defer func() {
		cancel()
		h.Wait()
	}()

	writeConfig(t, path, map[string]any{"encoder": map[string]any{"target_bitrate": 300000}})
	select {
	case cfg := <-updates:
		assert.Equal(t, 300000, cfg.Encoder.TargetBitrate)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload the config")
	}
}

func TestHolderWithoutFileDoesNotWatch(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader(""))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Wait()
}
