// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device defines the contract of an asynchronous hardware encoder.
//
// A Device accepts raw frames through a blocking Consume call and reports
// results later from its own goroutines through the registered callbacks.
// Callbacks may run concurrently with Consume and with each other.
package device

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConsumeFailed is returned when the device rejects an input frame.
	ErrConsumeFailed = errors.New("device rejected input frame")

	// ErrNotStarted is returned when a device is used before Start.
	ErrNotStarted = errors.New("device not started")

	// ErrStopped is returned when a device is used after Stop.
	ErrStopped = errors.New("device stopped")
)

// Params configures encoder creation.
type Params struct {
	Mime        string
	Width       int
	Height      int
	FPS         int
	Bitrate     int
	Stride      int
	SliceHeight int
	// HWOnly restricts the device to hardware codec implementations.
	HWOnly bool
	// MetaData requests metadata-mode input buffers.
	MetaData bool
}

// InputFrame is a raw frame handed to Consume.
type InputFrame struct {
	Data []byte
	PTS  time.Duration
}

// CodecData is one notification payload from the device.
type CodecData struct {
	Data []byte
	PTS  time.Duration
	DTS  time.Duration
	// Sync marks a sample that can be decoded independently.
	Sync bool
	// CodecConfig marks a codec-configuration payload instead of a sample.
	CodecConfig bool
}

// Callbacks receive lifecycle notifications. Both may be nil.
type Callbacks struct {
	// SignalEOS is invoked once the device has flushed all input after Drain.
	SignalEOS func()
	// Error is invoked on a device runtime error with the device's code.
	Error func(code int)
}

// DataCallbacks receive encoded output.
type DataCallbacks struct {
	DataAvailable func(*CodecData)
}

// Device is a started or startable encoder handle.
type Device interface {
	SetCallbacks(Callbacks)
	SetDataCallbacks(DataCallbacks)
	Start() error
	// Consume blocks until the device has accepted the frame.
	Consume(ctx context.Context, f *InputFrame) error
	// Drain asks the device to flush pending input and then signal EOS.
	Drain()
	Stop()
	Destroy()
}

// Factory creates devices.
type Factory interface {
	Create(Params) (Device, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(Params) (Device, error)

// Create implements Factory.
func (f FactoryFunc) Create(p Params) (Device, error) { return f(p) }
