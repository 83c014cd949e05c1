// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"context"

	"github.com/ManuGH/hwenc/internal/device"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/metrics"
)

// HandleFrame submits one pending frame to the device. The caller holds the
// stream lock and has already queued f as the newest pending frame.
//
// The stream lock is released while the device consumes the frame: the
// device may need to deliver outputs, which takes the stream lock, before it
// has room for more input.
//
// Frames rejected before or by the device are retired with no output. A frame
// the device accepted is finished by its completion, whatever is returned. If
// the session was stopped meanwhile the frame is left to the stopped queue.
func (e *Encoder) HandleFrame(ctx context.Context, f *Frame) FlowReturn {
	s := e.sess
	if s == nil {
		e.logger.Error().Uint64(xglog.FieldFrame, f.SystemFrameNumber).Msg("component not initialized")
		e.retire(f, "no_session")
		return FlowError
	}

	if ret := e.blocked(s); ret != FlowOK {
		s.log.Warn().Str(xglog.FieldFlow, ret.String()).Msg("not handling frame in blocked state")
		e.retire(f, "blocked")
		return ret
	}

	in := &device.InputFrame{Data: f.Input, PTS: f.PTS}
	err := unlocked(e.pipe, func() error {
		return s.dev.Consume(ctx, in)
	})
	if e.sess != s {
		// Stopped while the device was busy; the pending queue goes with it.
		s.log.Debug().Err(err).Uint64(xglog.FieldFrame, f.SystemFrameNumber).Msg("session stopped during submit")
		return FlowFlushing
	}
	if err != nil {
		s.log.Error().Err(err).Uint64(xglog.FieldFrame, f.SystemFrameNumber).Msg("failed to consume frame")
		e.retire(f, "consume_failed")
		return FlowError
	}
	metrics.FramesSubmitted.WithLabelValues(s.codec.Name).Inc()
	e.stats.submitted.Add(1)

	if ret := e.blocked(s); ret != FlowOK {
		s.log.Warn().Str(xglog.FieldFlow, ret.String()).Msg("stream blocked after submit")
		return ret
	}
	return FlowOK
}

// blocked returns the signal that prevents further submissions, or FlowOK.
func (e *Encoder) blocked(s *session) FlowReturn {
	if ret := e.flow.get(); ret != FlowOK {
		return ret
	}
	if s.sync.isDraining() {
		return FlowEOS
	}
	return FlowOK
}

// retire finishes f without output so it never stays pending.
func (e *Encoder) retire(f *Frame, reason string) {
	metrics.RetireFrame(reason)
	e.stats.retired.Add(1)
	f.Output = nil
	e.pipe.FinishFrame(f)
}
