// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hwenc/internal/config"
	"github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/source"
)

// DeviceProbe reports whether the configured encoder device can be used.
type DeviceProbe func() error

// PerformStartupChecks validates the environment before the pipeline starts.
// probe may be nil.
func PerformStartupChecks(ctx context.Context, cfg config.Config, probe DeviceProbe) error {
	logger := log.WithComponentFromContext(ctx, "startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := checkInput(logger, cfg.Input.Path); err != nil {
		return fmt.Errorf("input check failed: %w", err)
	}
	if err := checkSink(logger, cfg.Sink); err != nil {
		return fmt.Errorf("sink check failed: %w", err)
	}
	if err := checkListenAddr(logger, cfg.Metrics.Listen); err != nil {
		return fmt.Errorf("metrics check failed: %w", err)
	}
	if probe != nil {
		if err := probe(); err != nil {
			return fmt.Errorf("device %s unavailable: %w", cfg.Device.Kind, err)
		}
		logger.Info().Str("device", cfg.Device.Kind).Msg("✓ Encoder device available")
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkInput(logger zerolog.Logger, path string) error {
	if path == "" || path == "-" || path == source.PatternPath {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("input is a directory: %s", path)
	}
	if err := checkFileReadable(path); err != nil {
		return err
	}
	logger.Info().Str("path", path).Msg("✓ Input file is readable")
	return nil
}

func checkSink(logger zerolog.Logger, cfg config.SinkConfig) error {
	switch cfg.Kind {
	case config.SinkFile:
		dir := filepath.Dir(cfg.Path)
		if err := CheckWritableDir(dir); err != nil {
			return err
		}
		logger.Info().Str("path", dir).Msg("✓ Output directory is writable")
	case config.SinkRTP:
		if _, err := net.ResolveUDPAddr("udp", cfg.RTPAddr); err != nil {
			return fmt.Errorf("invalid RTP address %q: %w", cfg.RTPAddr, err)
		}
		logger.Info().Str("addr", cfg.RTPAddr).Msg("✓ RTP destination resolves")
	}
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("✓ Metrics listen address is valid")
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return f.Close()
}
