// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package droidmedia drives Android hardware encoders through libdroidmedia.
//
// The library is loaded at runtime, so binaries built without it still start
// and fall back to another device kind. Library locations checked (in order):
//   - Options.Library
//   - HWENC_DROIDMEDIA_LIB environment variable
//   - the dynamic loader search path
//   - the usual libhybris install directories
package droidmedia

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hwenc/internal/device"
	xglog "github.com/ManuGH/hwenc/internal/log"
)

var (
	// ErrUnavailable is returned when libdroidmedia cannot be loaded on this host.
	ErrUnavailable = errors.New("droidmedia unavailable")

	// ErrCreate is returned when the library refuses to create an encoder.
	ErrCreate = errors.New("droidmedia: failed to create encoder")

	// ErrStart is returned when the encoder fails to start.
	ErrStart = errors.New("droidmedia: failed to start encoder")
)

// EnvLibraryPath overrides the library location.
const EnvLibraryPath = "HWENC_DROIDMEDIA_LIB"

const libName = "libdroidmedia.so"

// Codec flags understood by droid_media_codec_create_encoder.
const (
	flagSWOnly = 0x1
	flagHWOnly = 0x2
)

// Options configures a Factory.
type Options struct {
	// Library is an explicit path to libdroidmedia.so.
	Library string
	Logger  *zerolog.Logger
}

// Factory creates hardware encoders. It implements device.Factory.
type Factory struct {
	opts   Options
	logger zerolog.Logger
}

// NewFactory returns a factory. The library is loaded lazily by the first Create.
func NewFactory(opts Options) *Factory {
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With().Str(xglog.FieldComponent, "droidmedia").Logger()
	} else {
		logger = xglog.WithComponent("droidmedia")
	}
	return &Factory{opts: opts, logger: logger}
}

// Create implements device.Factory.
func (f *Factory) Create(p device.Params) (device.Device, error) {
	if err := load(libraryPaths(f.opts.Library)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if p.Mime == "" || p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid parameters %s %dx%d", ErrCreate, p.Mime, p.Width, p.Height)
	}
	d, err := newDevice(p, f.logger.With().Str(xglog.FieldMime, p.Mime).Logger())
	if err != nil {
		return nil, err
	}
	f.logger.Info().
		Int("width", p.Width).
		Int("height", p.Height).
		Int("bitrate", p.Bitrate).
		Msg("hardware encoder created")
	return d, nil
}

// Available reports whether the library can be loaded.
func (f *Factory) Available() error {
	return load(libraryPaths(f.opts.Library))
}

func libraryPaths(explicit string) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	if env := os.Getenv(EnvLibraryPath); env != "" {
		paths = append(paths, env)
	}
	return append(paths,
		libName,
		"/usr/lib/"+libName,
		"/usr/lib64/"+libName,
		"/usr/libexec/droid-hybris/system/lib/"+libName,
		"/usr/libexec/droid-hybris/system/lib64/"+libName,
	)
}

func codecFlags(p device.Params) int32 {
	if p.HWOnly {
		return flagHWOnly
	}
	return 0
}

// registry hands out opaque non-zero handles that native code passes back to
// callbacks in place of Go pointers.
type registry[T any] struct {
	mu    sync.Mutex
	next  uintptr
	items map[uintptr]T
}

func (r *registry[T]) add(v T) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[uintptr]T)
	}
	r.next++
	r.items[r.next] = v
	return r.next
}

func (r *registry[T]) get(id uintptr) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	return v, ok
}

func (r *registry[T]) remove(id uintptr) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	delete(r.items, id)
	return v, ok
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// lifecycle holds a device's state and callbacks. The library invokes the
// callbacks from its own threads and its stop joins them, so native calls that
// can wait for a callback run with mu released.
type lifecycle struct {
	mu        sync.RWMutex
	cb        device.Callbacks
	dataCb    device.DataCallbacks
	started   bool
	stopped   bool
	destroyed bool
}

func (l *lifecycle) setCallbacks(cb device.Callbacks) {
	l.mu.Lock()
	l.cb = cb
	l.mu.Unlock()
}

func (l *lifecycle) setDataCallbacks(cb device.DataCallbacks) {
	l.mu.Lock()
	l.dataCb = cb
	l.mu.Unlock()
}

func (l *lifecycle) callbacks() (device.Callbacks, device.DataCallbacks) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cb, l.dataCb
}

// start runs native once; no callback can fire before the codec started.
func (l *lifecycle) start(native func() bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed || l.stopped {
		return device.ErrStopped
	}
	if !native() {
		return ErrStart
	}
	l.started = true
	return nil
}

// running reports whether the codec accepts input.
func (l *lifecycle) running() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch {
	case l.stopped || l.destroyed:
		return device.ErrStopped
	case !l.started:
		return device.ErrNotStarted
	}
	return nil
}

// stop marks the device stopped and then runs native, once, if it started.
func (l *lifecycle) stop(native func()) {
	l.mu.Lock()
	if l.stopped || l.destroyed {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	started := l.started
	l.mu.Unlock()

	if started {
		native()
	}
}

// destroy marks the device destroyed and reports whether this call did it.
func (l *lifecycle) destroy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return false
	}
	l.destroyed = true
	return true
}
