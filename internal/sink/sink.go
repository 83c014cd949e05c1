// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sink holds the downstream consumers of encoded samples.
package sink

import (
	"errors"
	"time"

	"github.com/ManuGH/hwenc/internal/caps"
	"github.com/ManuGH/hwenc/internal/encoder"
)

// ErrClosed is returned when a sink is used after Close.
var ErrClosed = errors.New("sink closed")

// Format describes the stream a sink receives. It is announced before the
// first sample and again whenever the codec data changes.
type Format struct {
	Codec     string
	Caps      string
	CodecData []byte
}

// Dimensions returns width and height from the caps, if fixed.
func (f Format) Dimensions() (width, height int) {
	c, err := caps.Parse(f.Caps)
	if err != nil {
		return 0, 0
	}
	st := c.Structure(0)
	width, _ = st.GetInt("width")
	height, _ = st.GetInt("height")
	return width, height
}

// Framerate returns the caps framerate or 0/1.
func (f Format) Framerate() (num, den int) {
	c, err := caps.Parse(f.Caps)
	if err != nil {
		return 0, 1
	}
	if n, d, ok := c.Structure(0).GetFraction("framerate"); ok && d > 0 {
		return n, d
	}
	return 0, 1
}

// Sample is one encoded access unit.
type Sample struct {
	FrameNumber uint64
	Data        []byte
	PTS         time.Duration
	DTS         time.Duration
	Duration    time.Duration
	Sync        bool
}

// Sink consumes encoded samples. Calls are serialized by the stream lock.
type Sink interface {
	SetFormat(Format) error
	// Write delivers a sample and returns the downstream flow result.
	Write(*Sample) encoder.FlowReturn
	// EOS marks the end of the stream; no more samples follow.
	EOS() error
	Close() error
}

// Discard drops everything.
type Discard struct{}

func (Discard) SetFormat(Format) error           { return nil }
func (Discard) Write(*Sample) encoder.FlowReturn { return encoder.FlowOK }
func (Discard) EOS() error                       { return nil }
func (Discard) Close() error                     { return nil }
