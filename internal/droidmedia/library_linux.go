// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package droidmedia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/rs/zerolog"

	"github.com/ManuGH/hwenc/internal/device"
)

var (
	libOnce   sync.Once
	libHandle uintptr
	libErr    error
)

// libdroidmedia entry points
var (
	mediaInit             func() bool
	codecCreateEncoder    func(md *encoderMetaData) uintptr
	codecSetCallbacks     func(codec uintptr, cb *codecCallbacks, data uintptr)
	codecSetDataCallbacks func(codec uintptr, cb *codecDataCallbacks, data uintptr)
	codecStart            func(codec uintptr) bool
	codecStop             func(codec uintptr)
	codecDestroy          func(codec uintptr)
	codecDrain            func(codec uintptr)
	codecQueue            func(codec uintptr, data *codecData, cb *bufferCallbacks)
)

// C layouts from droidmediacodec.h.
type codecMetaData struct {
	typ    *byte
	width  int32
	height int32
	fps    int32
	flags  int32
}

type encoderMetaData struct {
	parent      codecMetaData
	bitrate     int32
	stride      int32
	sliceHeight int32
	metaData    bool
	_           [3]byte
}

type mediaData struct {
	size int
	data uintptr
}

type codecData struct {
	data        mediaData
	ts          int64
	decodingTS  int64
	sync        bool
	codecConfig bool
	_           [6]byte
}

type bufferCallbacks struct {
	unref uintptr
	data  uintptr
}

type codecCallbacks struct {
	signalEOS uintptr
	err       uintptr
}

type codecDataCallbacks struct {
	dataAvailable uintptr
}

// Trampolines are created once; purego callbacks are never released.
var (
	trampolines    codecCallbacks
	dataTrampoline codecDataCallbacks
	unrefCallback  uintptr

	devices registry[*Device]
	buffers registry[*pinnedBuffer]
)

type pinnedBuffer struct {
	pin runtime.Pinner
	cb  bufferCallbacks
}

func load(paths []string) error {
	libOnce.Do(func() {
		libErr = loadLib(paths)
	})
	return libErr
}

func loadLib(paths []string) error {
	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := loadSymbols(handle); err != nil {
			_ = purego.Dlclose(handle)
			lastErr = err
			continue
		}
		libHandle = handle
		if !mediaInit() {
			return errors.New("droid_media_init failed")
		}
		trampolines = codecCallbacks{
			signalEOS: purego.NewCallback(onSignalEOS),
			err:       purego.NewCallback(onError),
		}
		dataTrampoline = codecDataCallbacks{dataAvailable: purego.NewCallback(onDataAvailable)}
		unrefCallback = purego.NewCallback(onUnref)
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load %s: %w", libName, lastErr)
	}
	return fmt.Errorf("%s not found in any standard location", libName)
}

func loadSymbols(handle uintptr) (err error) {
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("missing symbol: %v", r)
		}
	}()
	purego.RegisterLibFunc(&mediaInit, handle, "droid_media_init")
	purego.RegisterLibFunc(&codecCreateEncoder, handle, "droid_media_codec_create_encoder")
	purego.RegisterLibFunc(&codecSetCallbacks, handle, "droid_media_codec_set_callbacks")
	purego.RegisterLibFunc(&codecSetDataCallbacks, handle, "droid_media_codec_set_data_callbacks")
	purego.RegisterLibFunc(&codecStart, handle, "droid_media_codec_start")
	purego.RegisterLibFunc(&codecStop, handle, "droid_media_codec_stop")
	purego.RegisterLibFunc(&codecDestroy, handle, "droid_media_codec_destroy")
	purego.RegisterLibFunc(&codecDrain, handle, "droid_media_codec_drain")
	purego.RegisterLibFunc(&codecQueue, handle, "droid_media_codec_queue")
	return nil
}

// Device is a libdroidmedia encoder handle.
type Device struct {
	lifecycle

	logger zerolog.Logger
	codec  uintptr
	id     uintptr
}

func newDevice(p device.Params, logger zerolog.Logger) (device.Device, error) {
	mime := append([]byte(p.Mime), 0)
	md := encoderMetaData{
		parent: codecMetaData{
			typ:    &mime[0],
			width:  int32(p.Width),
			height: int32(p.Height),
			fps:    int32(p.FPS),
			flags:  codecFlags(p),
		},
		bitrate:     int32(p.Bitrate),
		stride:      int32(p.Stride),
		sliceHeight: int32(p.SliceHeight),
		metaData:    p.MetaData,
	}
	codec := codecCreateEncoder(&md)
	runtime.KeepAlive(mime)
	if codec == 0 {
		return nil, fmt.Errorf("%w: %s %dx%d", ErrCreate, p.Mime, p.Width, p.Height)
	}

	d := &Device{logger: logger, codec: codec}
	d.id = devices.add(d)
	codecSetCallbacks(codec, &trampolines, d.id)
	codecSetDataCallbacks(codec, &dataTrampoline, d.id)
	return d, nil
}

// SetCallbacks implements device.Device.
func (d *Device) SetCallbacks(cb device.Callbacks) { d.setCallbacks(cb) }

// SetDataCallbacks implements device.Device.
func (d *Device) SetDataCallbacks(cb device.DataCallbacks) { d.setDataCallbacks(cb) }

// Start implements device.Device.
func (d *Device) Start() error {
	return d.start(func() bool { return codecStart(d.codec) })
}

// Consume queues one frame. The call blocks inside the library until an input
// buffer is free; ctx is only checked before queueing.
func (d *Device) Consume(ctx context.Context, f *device.InputFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.running(); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: empty frame", device.ErrConsumeFailed)
	}

	// The library releases the input through the unref callback, possibly
	// after queue returns, so the frame stays pinned until then.
	buf := &pinnedBuffer{}
	buf.pin.Pin(&f.Data[0])
	buf.pin.Pin(buf)
	buf.cb = bufferCallbacks{unref: unrefCallback}
	buf.cb.data = buffers.add(buf)

	cd := codecData{
		data: mediaData{size: len(f.Data), data: uintptr(unsafe.Pointer(&f.Data[0]))},
		ts:   f.PTS.Microseconds(),
	}
	codecQueue(d.codec, &cd, &buf.cb)
	return nil
}

// Drain implements device.Device. The library may signal EOS from inside
// drain, so the state lock is not held across the call.
func (d *Device) Drain() {
	if d.running() == nil {
		codecDrain(d.codec)
	}
}

// Stop implements device.Device. The library joins its output thread, which
// may be inside a callback, so the state lock is released first.
func (d *Device) Stop() {
	d.stop(func() { codecStop(d.codec) })
}

// Destroy implements device.Device.
func (d *Device) Destroy() {
	if !d.destroy() {
		return
	}
	codecDestroy(d.codec)
	devices.remove(d.id)
	d.logger.Debug().Msg("hardware encoder destroyed")
}

func onSignalEOS(data uintptr) {
	d, ok := devices.get(data)
	if !ok {
		return
	}
	if cb, _ := d.callbacks(); cb.SignalEOS != nil {
		cb.SignalEOS()
	}
}

func onError(data uintptr, code int32) {
	d, ok := devices.get(data)
	if !ok {
		return
	}
	d.logger.Warn().Int32("code", code).Msg("device error")
	if cb, _ := d.callbacks(); cb.Error != nil {
		cb.Error(int(code))
	}
}

func onDataAvailable(data uintptr, encoded uintptr) {
	d, ok := devices.get(data)
	if !ok || encoded == 0 {
		return
	}
	cd := (*codecData)(unsafe.Pointer(encoded))
	var payload []byte
	if cd.data.size > 0 && cd.data.data != 0 {
		payload = bytes.Clone(unsafe.Slice((*byte)(unsafe.Pointer(cd.data.data)), cd.data.size))
	}
	if _, dcb := d.callbacks(); dcb.DataAvailable != nil {
		dcb.DataAvailable(&device.CodecData{
			Data:        payload,
			PTS:         time.Duration(cd.ts),
			DTS:         time.Duration(cd.decodingTS),
			Sync:        cd.sync,
			CodecConfig: cd.codecConfig,
		})
	}
}

func onUnref(data uintptr) {
	if buf, ok := buffers.remove(data); ok {
		buf.pin.Unpin()
	}
}
