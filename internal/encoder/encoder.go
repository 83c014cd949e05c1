// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package encoder drives an asynchronous hardware encoder as a synchronous,
// ordered encoding stage.
//
// The surrounding pipeline owns the stream lock and the queue of pending
// frames. It calls SetFormat, HandleFrame and Finish with the stream lock
// held, and Start and Stop without it. The device reports outputs, EOS and
// errors from its own goroutines; outputs are always matched with the oldest
// pending frame.
package encoder

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/hwenc/internal/caps"
	"github.com/ManuGH/hwenc/internal/codec"
	"github.com/ManuGH/hwenc/internal/device"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/metrics"
	"github.com/ManuGH/hwenc/internal/telemetry"
)

// DefaultTargetBitrate is the bitrate used when none is configured.
const DefaultTargetBitrate = 192000

// Options configures an Encoder.
type Options struct {
	Pipeline Pipeline
	Factory  device.Factory
	// Resolver defaults to codec.DefaultResolver.
	Resolver *codec.Resolver
	Logger   *zerolog.Logger
	Tracer   trace.Tracer
}

// Stats is a snapshot of the encoder counters.
type Stats struct {
	Submitted       uint64
	Completed       uint64
	Retired         uint64
	Orphans         uint64
	SwallowedErrors uint64
}

type counters struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	retired   atomic.Uint64
	orphans   atomic.Uint64
	swallowed atomic.Uint64
}

// Encoder adapts a device.Device to the pipeline contract.
type Encoder struct {
	pipe     Pipeline
	factory  device.Factory
	resolver *codec.Resolver
	logger   zerolog.Logger
	tracer   trace.Tracer

	targetBitrate atomic.Int64

	// Guarded by the stream lock.
	sess *session
	flow flowState

	stats counters
}

// New returns an unconfigured encoder.
func New(opts Options) (*Encoder, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("encoder: pipeline is required")
	}
	if opts.Factory == nil {
		return nil, errors.New("encoder: device factory is required")
	}
	e := &Encoder{
		pipe:     opts.Pipeline,
		factory:  opts.Factory,
		resolver: opts.Resolver,
		tracer:   opts.Tracer,
	}
	if e.resolver == nil {
		e.resolver = codec.DefaultResolver()
	}
	if opts.Logger != nil {
		e.logger = opts.Logger.With().Str(xglog.FieldComponent, "encoder").Logger()
	} else {
		e.logger = xglog.WithComponent("encoder")
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/ManuGH/hwenc/internal/encoder")
	}
	e.targetBitrate.Store(DefaultTargetBitrate)
	return e, nil
}

// Open and Close exist for symmetry with the pipeline element lifecycle.
func (e *Encoder) Open() error  { return nil }
func (e *Encoder) Close() error { return nil }

// Start resets the flow state before streaming.
func (e *Encoder) Start() error {
	e.pipe.Lock()
	defer e.pipe.Unlock()
	e.logger.Debug().Msg("start")
	e.flow.reset()
	return nil
}

// Stop tears the session down. It must be called without the stream lock.
// Calling it again, or without a session, is a no-op.
func (e *Encoder) Stop() error {
	e.pipe.Lock()
	s := e.sess
	e.sess = nil
	e.pipe.Unlock()

	e.logger.Debug().Msg("stop")
	if s != nil {
		s.teardown()
	}
	return nil
}

// SetFormat configures a new session for the input format and the caps
// negotiated with downstream. Only one session may be live; a failure leaves
// the encoder unconfigured.
func (e *Encoder) SetFormat(ctx context.Context, in VideoInfo, negotiated *caps.Caps) error {
	e.logger.Debug().Str(xglog.FieldCaps, negotiated.String()).Msg("set format")
	if e.sess != nil {
		e.logger.Error().Msg("codec already configured, renegotiation is not supported")
		return ErrAlreadyConfigured
	}
	s, err := e.configure(ctx, in, negotiated)
	if err != nil {
		return err
	}
	e.sess = s
	return nil
}

// Finish drains the device and waits until it signals end of stream. The
// stream lock is released while waiting so outputs can be delivered.
//
// It returns FlowError without waiting if the device already failed, and
// FlowFlushing if the wait was cut short by ctx or by Stop.
func (e *Encoder) Finish(ctx context.Context) FlowReturn {
	s := e.sess
	if s == nil {
		return FlowOK
	}
	ctx = xglog.ContextWithSessionID(ctx, s.id)
	ctx, span := e.tracer.Start(ctx, "encoder.finish",
		trace.WithAttributes(telemetry.SessionAttributes(s.id, s.codec.Name, s.bitrate, 0, 0)...))
	defer span.End()

	s.log.Debug().Msg("finish")
	done := s.sync.begin()
	if done == nil {
		s.log.Warn().Msg("not draining a failed session")
		return FlowError
	}

	start := time.Now()
	err := unlocked(e.pipe, func() error {
		s.dev.Drain()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	aborted := s.sync.end()
	metrics.DrainDuration.Observe(time.Since(start).Seconds())

	span.SetAttributes(telemetry.FlowAttributes(e.flow.get().String(), err == nil && !aborted)...)
	switch {
	case err != nil:
		span.RecordError(err)
		s.log.Warn().Err(err).Msg("drain interrupted")
		return FlowFlushing
	case aborted:
		s.log.Warn().Msg("session stopped while draining")
		return FlowFlushing
	}
	return FlowOK
}

// Flush has nothing to discard at this layer.
func (e *Encoder) Flush() bool {
	e.logger.Debug().Msg("flush")
	return true
}

// SetTargetBitrate sets the bitrate used by the next session.
func (e *Encoder) SetTargetBitrate(bps int) error {
	if bps < 0 || bps > math.MaxInt32 {
		return ErrBitrateOutOfRange
	}
	e.targetBitrate.Store(int64(bps))
	return nil
}

// TargetBitrate returns the configured bitrate.
func (e *Encoder) TargetBitrate() int {
	return int(e.targetBitrate.Load())
}

// Flow returns the current downstream flow state. Requires the stream lock.
func (e *Encoder) Flow() FlowReturn {
	return e.flow.get()
}

// Configured reports whether a session is live. Requires the stream lock.
func (e *Encoder) Configured() bool {
	return e.sess != nil
}

// OutputState returns the negotiated output of the live session. Requires the
// stream lock.
func (e *Encoder) OutputState() (OutputState, bool) {
	s := e.sess
	if s == nil {
		return OutputState{}, false
	}
	return OutputState{
		SessionID: s.id,
		Caps:      s.out.String(),
		CodecData: s.codecData,
		Codec:     s.codec.Name,
	}, true
}

// Caps returns the caps the encoder can produce: the session output when
// configured, the codec templates otherwise, intersected with filter when
// given. Requires the stream lock.
func (e *Encoder) Caps(filter *caps.Caps) *caps.Caps {
	var out *caps.Caps
	if s := e.sess; s != nil {
		out = s.out.Copy()
	} else {
		out = e.resolver.Template(codec.Encoder)
	}
	if filter != nil {
		out = out.Intersect(filter)
	}
	return out
}

// Stats returns a snapshot of the counters.
func (e *Encoder) Stats() Stats {
	return Stats{
		Submitted:       e.stats.submitted.Load(),
		Completed:       e.stats.completed.Load(),
		Retired:         e.stats.retired.Load(),
		Orphans:         e.stats.orphans.Load(),
		SwallowedErrors: e.stats.swallowed.Load(),
	}
}
