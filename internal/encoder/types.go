// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"fmt"
	"sync"
	"time"
)

// VideoInfo describes the raw input stream.
type VideoInfo struct {
	Format string // e.g. "I420", "YV12", "NV12"
	Width  int
	Height int
	FPSNum int
	FPSDen int
}

// FPS returns the integral frame rate, or 0 for variable rate.
func (v VideoInfo) FPS() int {
	if v.FPSDen <= 0 {
		return 0
	}
	return v.FPSNum / v.FPSDen
}

// FrameSize returns the size of one raw frame for the 4:2:0 formats.
func (v VideoInfo) FrameSize() int {
	return v.Width*v.Height + 2*((v.Width+1)/2)*((v.Height+1)/2)
}

// FrameDuration returns the nominal duration of one frame.
func (v VideoInfo) FrameDuration() time.Duration {
	if v.FPSNum <= 0 || v.FPSDen <= 0 {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(v.FPSDen) / int64(v.FPSNum))
}

// Validate checks that the format is usable for session configuration.
func (v VideoInfo) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", v.Width, v.Height)
	}
	if v.FPSNum < 0 || v.FPSDen < 0 {
		return fmt.Errorf("invalid framerate %d/%d", v.FPSNum, v.FPSDen)
	}
	return nil
}

// Frame is one unit of work tracked by the pipeline from submission to
// completion. Output is nil when the frame is retired without output.
type Frame struct {
	SystemFrameNumber uint64
	PTS               time.Duration
	DTS               time.Duration
	Duration          time.Duration
	Input             []byte
	Output            []byte
	SyncPoint         bool
}

// Pipeline is the surrounding stage the encoder runs in. The embedded Locker
// is the stream lock. OldestFrame, AllocateOutputBuffer and FinishFrame are
// called with the stream lock held.
type Pipeline interface {
	sync.Locker
	// OldestFrame returns the oldest pending frame or nil.
	OldestFrame() *Frame
	AllocateOutputBuffer(size int) []byte
	// FinishFrame removes the frame from the pending queue and forwards its
	// output, if any, downstream.
	FinishFrame(*Frame) FlowReturn
	// PostError reports an element error on the pipeline's error channel.
	PostError(*ElementError)
}

// OutputState is the negotiated output of a live session.
type OutputState struct {
	SessionID string
	Caps      string
	CodecData []byte
	Codec     string
}
