// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package droidmedia

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hwenc/internal/device"
)

func TestLibraryPathsOrder(t *testing.T) {
	t.Setenv(EnvLibraryPath, "/opt/env/libdroidmedia.so")

	paths := libraryPaths("/opt/explicit/libdroidmedia.so")
	require.GreaterOrEqual(t, len(paths), 3)
	assert.Equal(t, "/opt/explicit/libdroidmedia.so", paths[0])
	assert.Equal(t, "/opt/env/libdroidmedia.so", paths[1])
	assert.Equal(t, libName, paths[2])
}

func TestLibraryPathsWithoutOverrides(t *testing.T) {
	t.Setenv(EnvLibraryPath, "")
	assert.Equal(t, libName, libraryPaths("")[0])
}

func TestFactoryUnavailable(t *testing.T) {
	// No test host ships libdroidmedia.
	f := NewFactory(Options{Library: filepath.Join(t.TempDir(), libName)})

	_, err := f.Create(device.Params{Mime: "video/avc", Width: 320, Height: 240, FPS: 30})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Error(t, f.Available())

	var _ device.Factory = f
}

func TestCodecFlags(t *testing.T) {
	assert.Equal(t, int32(flagHWOnly), codecFlags(device.Params{HWOnly: true}))
	assert.Equal(t, int32(0), codecFlags(device.Params{}))
}

func TestRegistryHandles(t *testing.T) {
	var r registry[string]

	a := r.add("a")
	b := r.add("b")
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.len())

	v, ok := r.get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = r.remove(b)
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = r.get(b)
	assert.False(t, ok)
	_, ok = r.remove(b)
	assert.False(t, ok)
	assert.Equal(t, 1, r.len())
}

func TestLifecycleStopReleasesLockForCallbacks(t *testing.T) {
	var l lifecycle
	eos := make(chan struct{}, 1)
	l.setCallbacks(device.Callbacks{SignalEOS: func() { eos <- struct{}{} }})
	require.NoError(t, l.start(func() bool { return true }))

	// The native stop joins an output thread that is delivering a callback.
	stopped := make(chan struct{})
	go l.stop(func() {
		defer close(stopped)
		joined := make(chan struct{})
		go func() {
			defer close(joined)
			if cb, _ := l.callbacks(); cb.SignalEOS != nil {
				cb.SignalEOS()
			}
		}()
		<-joined
	})

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop blocked a callback")
	}
	assert.Len(t, eos, 1)
	assert.ErrorIs(t, l.running(), device.ErrStopped)
}

func TestLifecycleTransitions(t *testing.T) {
	var l lifecycle
	assert.ErrorIs(t, l.running(), device.ErrNotStarted)
	assert.ErrorIs(t, l.start(func() bool { return false }), ErrStart)

	calls := 0
	native := func() { calls++ }
	l.stop(native)
	assert.Zero(t, calls, "native stop without start")
	assert.ErrorIs(t, l.start(func() bool { return true }), device.ErrStopped)

	var started lifecycle
	require.NoError(t, started.start(func() bool { return true }))
	require.NoError(t, started.running())
	started.stop(native)
	started.stop(native)
	assert.Equal(t, 1, calls)

	assert.True(t, started.destroy())
	assert.False(t, started.destroy())
}
