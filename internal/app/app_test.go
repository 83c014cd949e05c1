// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package app

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/hwenc/internal/config"
	"github.com/ManuGH/hwenc/internal/device/fake"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/sink"
	"github.com/ManuGH/hwenc/internal/stage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Input.Path = "pattern"
	cfg.Input.Width = 64
	cfg.Input.Height = 48
	cfg.Input.Frames = 12
	cfg.Device.SyncInterval = 5
	cfg.Sink.Path = filepath.Join(t.TempDir(), "out.h264")
	return cfg
}

func holderFor(cfg config.Config) *config.Holder {
	return config.NewHolder(cfg, config.NewLoader(""))
}

func TestRunEncodesToFile(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), Options{Holder: holderFor(cfg)})
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))

	out, err := os.ReadFile(cfg.Sink.Path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte{0, 0, 0, 1}), "annex b output")
	assert.Equal(t, uint64(12), a.Stage().Encoder().Stats().Completed)
	assert.Equal(t, stage.StateNull, a.Stage().State())
}

func TestRunInterruptedDiscardsOutput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.Frames = 0
	cfg.Device.MaxFPS = 20
	cfg.Device.QueueDepth = 1

	a, err := New(context.Background(), Options{Holder: holderFor(cfg)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	_, err = os.Stat(cfg.Sink.Path)
	assert.True(t, os.IsNotExist(err), "uncommitted output must not appear")
}

func TestRunReportsConfigureFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encoder.Caps = "audio/x-opus"
	mem := sink.NewMemory()

	a, err := New(context.Background(), Options{Holder: holderFor(cfg), Sink: mem})
	require.NoError(t, err)
	assert.ErrorContains(t, a.Run(context.Background()), "configure encoder")
	assert.Empty(t, mem.Samples())
}

func TestNewRunsStartupChecks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sink.Path = filepath.Join(t.TempDir(), "missing", "out.h264")
	_, err := New(context.Background(), Options{Holder: holderFor(cfg)})
	assert.ErrorContains(t, err, "sink check failed")
}

func TestOverridesAndBitrateUpdate(t *testing.T) {
	cfg := testConfig(t)
	factory := fake.NewFactory(fake.Options{SyncInterval: 3})
	mem := sink.NewMemory()
	holder := holderFor(cfg)

	a, err := New(context.Background(), Options{Holder: holder, Factory: factory, Sink: mem, SkipStartupChecks: true})
	require.NoError(t, err)

	updates := make(chan config.Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.applyUpdates(ctx, updates)
		close(done)
	}()
	next := cfg
	next.Encoder.TargetBitrate = 640000
	updates <- next
	require.Eventually(t, func() bool {
		return a.Stage().Encoder().TargetBitrate() == 640000
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	xglog.Reconfigure(xglog.Config{Level: "info"})

	require.NoError(t, a.Run(context.Background()))
	require.NotNil(t, factory.Last())
	assert.Equal(t, 640000, factory.Last().Params().Bitrate)
	assert.Len(t, mem.Samples(), 12)
	assert.True(t, mem.GotEOS())
}

func TestNewSink(t *testing.T) {
	logger := xglog.WithComponent("test")
	cfg := testConfig(t)

	s, err := NewSink(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &sink.File{}, s)
	require.NoError(t, s.Close())

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	cfg.Sink.Kind = config.SinkRTP
	cfg.Sink.RTPAddr = pc.LocalAddr().String()
	s, err = NewSink(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &sink.RTP{}, s)
	require.NoError(t, s.Close())

	cfg.Sink.Kind = config.SinkDiscard
	s, err = NewSink(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, sink.Discard{}, s)

	cfg.Sink.Kind = "tape"
	_, err = NewSink(cfg, logger)
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	cfg := testConfig(t)
	f, probe := NewFactory(cfg)
	assert.IsType(t, &fake.Factory{}, f)
	assert.Nil(t, probe)

	cfg.Device.Kind = config.DeviceDroidMedia
	cfg.Device.Library = filepath.Join(t.TempDir(), "libdroidmedia.so")
	_, probe = NewFactory(cfg)
	require.NotNil(t, probe)
	assert.Error(t, probe())
}
