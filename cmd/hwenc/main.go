// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// hwenc encodes raw video through a hardware encoder.
//
// Usage:
//
//	hwenc -config config.yaml
//	HWENC_INPUT_PATH=pattern HWENC_SINK_PATH=out.h264 hwenc
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/hwenc/internal/app"
	"github.com/ManuGH/hwenc/internal/config"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hwenc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{Level: "info", Service: "hwenc"})
	logger := xglog.WithComponent("main")

	// Precedence: ENV > File > Defaults
	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str(xglog.FieldPath, *configPath).
			Msg("failed to load configuration")
		return 1
	}

	xglog.Reconfigure(xglog.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		Service: "hwenc",
	})
	logger = xglog.WithComponent("main")
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str(xglog.FieldPath, *configPath).
		Str("version", version.Version).
		Stringer("config", cfg).
		Msg("starting hwenc")

	a, err := app.New(ctx, app.Options{Holder: config.NewHolder(cfg, loader)})
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return 1
	}
	if err := a.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("encoding failed")
		return 1
	}
	return 0
}
