// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package app wires configuration, device, sink, stage and the admin server
// into one runnable encoder process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/hwenc/internal/bus"
	"github.com/ManuGH/hwenc/internal/caps"
	"github.com/ManuGH/hwenc/internal/config"
	"github.com/ManuGH/hwenc/internal/daemon"
	"github.com/ManuGH/hwenc/internal/device"
	"github.com/ManuGH/hwenc/internal/device/fake"
	"github.com/ManuGH/hwenc/internal/droidmedia"
	"github.com/ManuGH/hwenc/internal/encoder"
	"github.com/ManuGH/hwenc/internal/health"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/sink"
	"github.com/ManuGH/hwenc/internal/source"
	"github.com/ManuGH/hwenc/internal/stage"
	"github.com/ManuGH/hwenc/internal/telemetry"
	"github.com/ManuGH/hwenc/internal/version"
)

// Options overrides parts of the wiring, mostly for tests.
type Options struct {
	// Holder supplies the configuration and hot reloads.
	Holder *config.Holder
	// Factory replaces the device named by the config.
	Factory device.Factory
	// Sink replaces the sink named by the config.
	Sink sink.Sink
	// Source replaces the input named by the config.
	Source source.Source
	// SkipStartupChecks disables the pre-flight checks.
	SkipStartupChecks bool
}

// App is one encoder process.
type App struct {
	holder  *config.Holder
	cfg     config.Config
	logger  zerolog.Logger
	stage   *stage.Stage
	src     source.Source
	msgs    bus.Subscriber
	daemon  daemon.Manager
	tracing *telemetry.Provider
}

// New builds the process from the holder's current configuration.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Holder == nil {
		return nil, errors.New("app: config holder is required")
	}
	cfg := opts.Holder.Get()
	logger := xglog.WithComponent("app")

	factory := opts.Factory
	var probe health.DeviceProbe
	if factory == nil {
		f, p := NewFactory(cfg)
		factory, probe = f, p
	}
	if !opts.SkipStartupChecks {
		if err := health.PerformStartupChecks(ctx, cfg, probe); err != nil {
			return nil, err
		}
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "hwenc",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	out := opts.Sink
	if out == nil {
		if out, err = NewSink(cfg, logger); err != nil {
			return nil, err
		}
	}

	st, err := stage.New(stage.Options{
		Factory: factory,
		Sink:    out,
		Tracer:  telemetry.Tracer("hwenc/encoder"),
	})
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	if err := st.Encoder().SetTargetBitrate(cfg.Encoder.TargetBitrate); err != nil {
		_ = out.Close()
		return nil, err
	}
	msgs, err := st.Messages(ctx)
	if err != nil {
		_ = out.Close()
		return nil, err
	}

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(st)
	if cfg.Sink.Kind == config.SinkFile && opts.Sink == nil {
		hm.RegisterChecker(health.NewDirChecker("output", cfg.Sink.Path))
	}
	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.Metrics.Listen), daemon.Deps{
		Logger: logger,
		Health: hm,
	})
	if err != nil {
		_ = msgs.Close()
		_ = out.Close()
		return nil, err
	}
	mgr.RegisterShutdownHook("tracing", tracing.Shutdown)

	return &App{
		holder:  opts.Holder,
		cfg:     cfg,
		logger:  logger,
		stage:   st,
		src:     opts.Source,
		msgs:    msgs,
		daemon:  mgr,
		tracing: tracing,
	}, nil
}

// NewFactory returns the device factory named by cfg and a probe for it.
func NewFactory(cfg config.Config) (device.Factory, health.DeviceProbe) {
	logger := xglog.Base()
	if cfg.Device.Kind == config.DeviceDroidMedia {
		f := droidmedia.NewFactory(droidmedia.Options{Library: cfg.Device.Library, Logger: &logger})
		return f, f.Available
	}
	return fake.NewFactory(fake.Options{
		QueueDepth:   cfg.Device.QueueDepth,
		MaxFPS:       cfg.Device.MaxFPS,
		SyncInterval: cfg.Device.SyncInterval,
		Logger:       &logger,
	}), nil
}

// NewSink returns the sink named by cfg.
func NewSink(cfg config.Config, logger zerolog.Logger) (sink.Sink, error) {
	switch cfg.Sink.Kind {
	case config.SinkFile:
		return sink.NewFile(cfg.Sink.Path, logger)
	case config.SinkRTP:
		conn, err := net.Dial("udp", cfg.Sink.RTPAddr)
		if err != nil {
			return nil, fmt.Errorf("dial rtp destination: %w", err)
		}
		return sink.NewRTP(conn, sink.RTPConfig{PayloadType: uint8(cfg.Sink.PayloadType)}, logger), nil
	case config.SinkGst:
		return sink.NewAppSrc(cfg.Sink.Pipeline, logger)
	case config.SinkDiscard:
		return sink.Discard{}, nil
	}
	return nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
}

// Stage returns the encoder stage.
func (a *App) Stage() *stage.Stage { return a.stage }

// Run encodes the input to the end, or until ctx is cancelled, while serving
// the admin endpoints and applying config reloads.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan config.Config, 1)
	a.holder.RegisterListener(updates)
	if err := a.holder.StartWatcher(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("config watcher unavailable")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.daemon.Start(gctx) })
	g.Go(func() error { a.watchMessages(gctx); return nil })
	g.Go(func() error { a.applyUpdates(gctx, updates); return nil })
	g.Go(func() error {
		defer cancel()
		return a.encode(gctx)
	})
	err := g.Wait()
	cancel()
	a.holder.Wait()
	return err
}

func (a *App) encode(ctx context.Context) (err error) {
	cfg := a.cfg
	defer func() {
		err = errors.Join(err, a.stage.Close())
	}()
	if err := a.stage.Start(ctx); err != nil {
		return fmt.Errorf("start stage: %w", err)
	}

	downstream, err := caps.Parse(cfg.Encoder.Caps)
	if err != nil {
		return err
	}
	if err := a.stage.SetFormat(ctx, cfg.VideoInfo(), downstream); err != nil {
		return fmt.Errorf("configure encoder: %w", err)
	}
	a.stage.Lock()
	st, _ := a.stage.Encoder().OutputState()
	a.stage.Unlock()
	ctx = xglog.ContextWithSessionID(ctx, st.SessionID)
	logger := xglog.WithContext(ctx, a.logger)

	src := a.src
	if src == nil {
		src, err = source.Open(cfg.Input.Path, source.Options{
			Info:  cfg.VideoInfo(),
			Limit: cfg.Input.Frames,
			Live:  cfg.Input.Live,
		})
		if err != nil {
			return err
		}
	}
	defer src.Close()

	frames := 0
	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if ctx.Err() != nil {
			logger.Info().Int("frames", frames).Msg("interrupted, stopping without drain")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if ret := a.stage.Push(ctx, f.Data, f.PTS, f.Duration); ret != encoder.FlowOK {
			if ctx.Err() != nil {
				logger.Info().Int("frames", frames).Msg("interrupted, stopping without drain")
				return nil
			}
			return fmt.Errorf("push frame %d: %s", frames, ret)
		}
		frames++
	}

	if ret := a.stage.Drain(ctx); ret != encoder.FlowOK {
		return fmt.Errorf("drain: %s", ret)
	}
	stats := a.stage.Encoder().Stats()
	logger.Info().
		Int("frames", frames).
		Uint64("completed", stats.Completed).
		Uint64("retired", stats.Retired).
		Msg("encoding finished")
	return nil
}

func (a *App) watchMessages(ctx context.Context) {
	defer a.msgs.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.msgs.C():
			if !ok {
				return
			}
			switch msg.Kind {
			case bus.KindError:
				a.logger.Error().Err(msg.Err).Str("source", msg.Source).Msg("stage error")
			case bus.KindWarning:
				a.logger.Warn().Err(msg.Err).Str("source", msg.Source).Msg("stage warning")
			case bus.KindEOS:
				a.logger.Info().Str("source", msg.Source).Msg("end of stream")
			default:
				a.logger.Debug().Str("kind", string(msg.Kind)).Str("text", msg.Text).Msg("stage message")
			}
		}
	}
}

// applyUpdates applies the reloadable settings: log level and target bitrate.
// The bitrate takes effect when the next session is configured.
func (a *App) applyUpdates(ctx context.Context, updates <-chan config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			xglog.Reconfigure(xglog.Config{Level: cfg.Log.Level, Console: cfg.Log.Console, Service: "hwenc"})
			if err := a.stage.Encoder().SetTargetBitrate(cfg.Encoder.TargetBitrate); err != nil {
				a.logger.Warn().Err(err).Msg("ignoring target bitrate update")
				continue
			}
			a.logger.Info().Int("target_bitrate", cfg.Encoder.TargetBitrate).Msg("target bitrate updated")
		}
	}
}
