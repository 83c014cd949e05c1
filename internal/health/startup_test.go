// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hwenc/internal/config"
)

func startupConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Input.Path = "pattern"
	cfg.Sink.Path = filepath.Join(t.TempDir(), "out.h264")
	return cfg
}

func TestPerformStartupChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults pass", func(t *testing.T) {
		probed := false
		err := PerformStartupChecks(ctx, startupConfig(t), func() error { probed = true; return nil })
		require.NoError(t, err)
		assert.True(t, probed)
	})

	t.Run("input file", func(t *testing.T) {
		cfg := startupConfig(t)
		cfg.Input.Path = filepath.Join(t.TempDir(), "in.yuv")
		assert.Error(t, PerformStartupChecks(ctx, cfg, nil))

		require.NoError(t, os.WriteFile(cfg.Input.Path, []byte{0}, 0o600))
		assert.NoError(t, PerformStartupChecks(ctx, cfg, nil))

		cfg.Input.Path = t.TempDir()
		assert.ErrorContains(t, PerformStartupChecks(ctx, cfg, nil), "directory")
	})

	t.Run("sink directory missing", func(t *testing.T) {
		cfg := startupConfig(t)
		cfg.Sink.Path = filepath.Join(t.TempDir(), "missing", "out.h264")
		assert.ErrorContains(t, PerformStartupChecks(ctx, cfg, nil), "sink check failed")
	})

	t.Run("rtp address", func(t *testing.T) {
		cfg := startupConfig(t)
		cfg.Sink.Kind = config.SinkRTP
		cfg.Sink.RTPAddr = "127.0.0.1:5004"
		assert.NoError(t, PerformStartupChecks(ctx, cfg, nil))

		cfg.Sink.RTPAddr = "127.0.0.1"
		assert.Error(t, PerformStartupChecks(ctx, cfg, nil))
	})

	t.Run("metrics listen", func(t *testing.T) {
		cfg := startupConfig(t)
		cfg.Metrics.Listen = ":99999"
		assert.ErrorContains(t, PerformStartupChecks(ctx, cfg, nil), "invalid listen port")
	})

	t.Run("device probe", func(t *testing.T) {
		missing := errors.New("libdroidmedia.so: cannot open shared object file")
		err := PerformStartupChecks(ctx, startupConfig(t), func() error { return missing })
		assert.ErrorIs(t, err, missing)
	})
}
