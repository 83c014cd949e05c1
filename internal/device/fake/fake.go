// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fake implements device.Device in software. It behaves like a
// hardware codec: a bounded input queue, one codec goroutine delivering
// results through callbacks, and a drain that flushes the queue before
// signalling EOS. Output is a synthetic bitstream, not real video.
package fake

import (
	"context"
	"errors"
	"hash/crc32"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/hwenc/internal/device"
	xglog "github.com/ManuGH/hwenc/internal/log"
)

// Options tunes fake devices.
type Options struct {
	// QueueDepth is the number of frames Consume accepts before blocking.
	QueueDepth int
	// MaxFPS paces the codec goroutine; zero means unpaced.
	MaxFPS float64
	// SyncInterval marks every Nth sample as a sync point. The first sample is
	// always a sync point.
	SyncInterval int
	// NoCodecConfig suppresses the codec-config payload.
	NoCodecConfig bool
	// ErrorOnDrain makes the device report this error code instead of EOS
	// when drained, as some drivers do.
	ErrorOnDrain int
	// CreateErr and StartErr make Create and Start fail.
	CreateErr error
	StartErr  error
	Logger    *zerolog.Logger
}

const (
	defaultQueueDepth   = 4
	defaultSyncInterval = 30
)

// Factory creates fake devices and keeps track of them.
type Factory struct {
	opts Options

	mu      sync.Mutex
	devices []*Device
}

// NewFactory returns a factory for devices with the given options.
func NewFactory(opts Options) *Factory {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = defaultSyncInterval
	}
	return &Factory{opts: opts}
}

// Create implements device.Factory.
func (f *Factory) Create(p device.Params) (device.Device, error) {
	if f.opts.CreateErr != nil {
		return nil, f.opts.CreateErr
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, errors.New("fake: invalid geometry")
	}
	d := newDevice(p, f.opts)
	f.mu.Lock()
	f.devices = append(f.devices, d)
	f.mu.Unlock()
	return d, nil
}

// Devices returns every device created so far.
func (f *Factory) Devices() []*Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Device(nil), f.devices...)
}

// Last returns the most recently created device or nil.
func (f *Factory) Last() *Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.devices) == 0 {
		return nil
	}
	return f.devices[len(f.devices)-1]
}

type item struct {
	frame *device.InputFrame
	drain bool
}

// Device is a software encoder.
type Device struct {
	params  device.Params
	opts    Options
	logger  zerolog.Logger
	limiter *rate.Limiter

	cb     device.Callbacks
	dataCb device.DataCallbacks

	in  chan item
	ctl chan int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	destroyed bool

	consumed atomic.Uint64
	encoded  atomic.Uint64
	drains   atomic.Uint64
}

func newDevice(p device.Params, opts Options) *Device {
	limit := rate.Inf
	if opts.MaxFPS > 0 {
		limit = rate.Limit(opts.MaxFPS)
	}
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With().Str(xglog.FieldComponent, "fake-device").Logger()
	} else {
		logger = xglog.WithComponent("fake-device")
	}
	return &Device{
		params:  p,
		opts:    opts,
		logger:  logger.With().Str(xglog.FieldMime, p.Mime).Logger(),
		limiter: rate.NewLimiter(limit, 1),
		in:      make(chan item, opts.QueueDepth),
		ctl:     make(chan int, 8),
	}
}

// Params returns the creation parameters.
func (d *Device) Params() device.Params { return d.params }

// SetCallbacks implements device.Device. Must be called before Start.
func (d *Device) SetCallbacks(cb device.Callbacks) { d.cb = cb }

// SetDataCallbacks implements device.Device. Must be called before Start.
func (d *Device) SetDataCallbacks(cb device.DataCallbacks) { d.dataCb = cb }

// Start launches the codec goroutine.
func (d *Device) Start() error {
	if d.opts.StartErr != nil {
		return d.opts.StartErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.destroyed {
		return device.ErrStopped
	}
	if d.started {
		return nil
	}
	d.started = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.run()
	d.logger.Debug().
		Int("width", d.params.Width).
		Int("height", d.params.Height).
		Int(xglog.FieldBitrate, d.params.Bitrate).
		Msg("device started")
	return nil
}

func (d *Device) running() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.stopped:
		return nil, device.ErrStopped
	case !d.started:
		return nil, device.ErrNotStarted
	}
	return d.ctx, nil
}

// Consume queues a frame, blocking while the queue is full.
func (d *Device) Consume(ctx context.Context, f *device.InputFrame) error {
	dctx, err := d.running()
	if err != nil {
		return err
	}
	if f == nil || len(f.Data) == 0 {
		return device.ErrConsumeFailed
	}
	select {
	case d.in <- item{frame: f}:
		d.consumed.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-dctx.Done():
		return device.ErrStopped
	}
}

// Drain queues an end-of-stream marker behind the pending frames.
func (d *Device) Drain() {
	dctx, err := d.running()
	if err != nil {
		return
	}
	d.drains.Add(1)
	select {
	case d.in <- item{drain: true}:
	case <-dctx.Done():
	}
}

// InjectError makes the codec goroutine report a runtime error.
func (d *Device) InjectError(code int) {
	if _, err := d.running(); err != nil {
		return
	}
	d.ctl <- code
}

// Stop terminates the codec goroutine and waits for it. No callback runs
// after Stop returns.
func (d *Device) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	d.logger.Debug().
		Uint64("consumed", d.consumed.Load()).
		Uint64("encoded", d.encoded.Load()).
		Msg("device stopped")
}

// Destroy releases the device. It stops it first if needed.
func (d *Device) Destroy() {
	d.Stop()
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// Consumed returns the number of frames accepted.
func (d *Device) Consumed() uint64 { return d.consumed.Load() }

// Encoded returns the number of samples produced.
func (d *Device) Encoded() uint64 { return d.encoded.Load() }

func (d *Device) run() {
	defer d.wg.Done()
	configSent := d.opts.NoCodecConfig
	for {
		select {
		case <-d.ctx.Done():
			return
		case code := <-d.ctl:
			d.emitError(code)
		case it := <-d.in:
			if it.drain {
				if d.opts.ErrorOnDrain != 0 {
					d.emitError(d.opts.ErrorOnDrain)
				} else if d.cb.SignalEOS != nil {
					d.cb.SignalEOS()
				}
				continue
			}
			if err := d.limiter.Wait(d.ctx); err != nil {
				return
			}
			if !configSent {
				configSent = true
				if cfg := codecConfig(d.params.Mime); cfg != nil {
					d.emit(&device.CodecData{Data: cfg, CodecConfig: true})
				}
			}
			n := d.encoded.Add(1) - 1
			key := n%uint64(d.opts.SyncInterval) == 0
			d.emit(&device.CodecData{
				Data: sample(d.params.Mime, n, key, it.frame.Data),
				PTS:  it.frame.PTS,
				DTS:  it.frame.PTS,
				Sync: key,
			})
		}
	}
}

func (d *Device) emit(cd *device.CodecData) {
	if d.dataCb.DataAvailable != nil {
		d.dataCb.DataAvailable(cd)
	}
}

func (d *Device) emitError(code int) {
	if d.cb.Error != nil {
		d.cb.Error(code)
	}
}

// codecConfig returns the parameter sets the device announces before the
// first sample.
func codecConfig(mime string) []byte {
	switch mime {
	case "video/avc":
		return []byte{
			0, 0, 0, 1, 0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xbf, 0xe5,
			0, 0, 0, 1, 0x68, 0xce, 0x3c, 0x80,
		}
	case "video/mp4v-es":
		return []byte{0, 0, 1, 0xb0, 0x01, 0, 0, 1, 0xb5, 0x09}
	}
	return nil
}

// sample builds a synthetic encoded frame carrying the frame index and a
// checksum of the input.
func sample(mime string, n uint64, sync bool, input []byte) []byte {
	var out []byte
	switch mime {
	case "video/avc":
		nal := byte(0x41)
		if sync {
			nal = 0x65
		}
		out = append(out, 0, 0, 0, 1, nal)
	case "video/mp4v-es":
		out = append(out, 0, 0, 1, 0xb6)
	default:
		marker := byte(0x01)
		if sync {
			marker = 0x00
		}
		out = append(out, marker)
	}
	// Text body so no start code emulation can occur.
	out = strconv.AppendUint(out, n, 10)
	out = append(out, ':')
	out = strconv.AppendUint(out, uint64(crc32.ChecksumIEEE(input)), 16)
	return append(out, 0x80)
}
