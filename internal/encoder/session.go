// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/hwenc/internal/caps"
	"github.com/ManuGH/hwenc/internal/codec"
	"github.com/ManuGH/hwenc/internal/device"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/metrics"
	"github.com/ManuGH/hwenc/internal/telemetry"
)

// session is one configured lifetime of the device, from SetFormat to Stop.
// Fields other than the device are guarded by the stream lock.
type session struct {
	id        string
	dev       device.Device
	in        VideoInfo
	out       *caps.Caps
	codec     *codec.Type
	codecData []byte
	bitrate   int
	// firstFrameSent flips when the first encoded sample goes downstream.
	firstFrameSent bool

	sync     *completion
	log      zerolog.Logger
	stopOnce sync.Once
}

// configure resolves the codec for the negotiated caps, then creates and
// starts the device. Nothing is retained on failure. Called with the stream
// lock held.
func (e *Encoder) configure(ctx context.Context, in VideoInfo, negotiated *caps.Caps) (*session, error) {
	_, span := e.tracer.Start(ctx, "encoder.configure")
	defer span.End()

	if e.sess != nil {
		return nil, ErrAlreadyConfigured
	}
	if err := in.Validate(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("input format: %w", err)
	}

	peer := negotiated.Truncate()
	typ, err := e.resolver.FromCaps(peer, codec.Encoder)
	if err != nil {
		metrics.SessionFailures.WithLabelValues("resolve").Inc()
		e.pipe.PostError(elementError(DomainLibrary, CodeFailed, true, "",
			fmt.Sprintf("Unknown codec type for caps %s", peer), err))
		span.SetStatus(codes.Error, "unknown codec")
		return nil, err
	}

	s := &session{
		id:      uuid.NewString(),
		in:      in,
		out:     outputCaps(peer, in, typ),
		codec:   typ,
		bitrate: e.TargetBitrate(),
		sync:    newCompletion(),
	}
	ctx = xglog.ContextWithSessionID(ctx, s.id)
	s.log = xglog.WithContext(ctx, e.logger.With().Str(xglog.FieldCodec, typ.Name).Logger())
	span.SetAttributes(telemetry.SessionAttributes(s.id, typ.Name, s.bitrate, in.Width, in.Height)...)

	s.log.Info().
		Str(xglog.FieldEvent, "session.create").
		Str(xglog.FieldMime, typ.Mime).
		Str(xglog.FieldResolution, fmt.Sprintf("%dx%d", in.Width, in.Height)).
		Int(xglog.FieldBitrate, s.bitrate).
		Msg("create codec")

	dev, err := e.factory.Create(device.Params{
		Mime:        typ.Mime,
		Width:       in.Width,
		Height:      in.Height,
		FPS:         in.FPS(),
		Bitrate:     s.bitrate,
		Stride:      in.Width,
		SliceHeight: in.Height,
		HWOnly:      true,
		MetaData:    true,
	})
	if err == nil && dev == nil {
		err = errors.New("factory returned no device")
	}
	if err != nil {
		metrics.SessionFailures.WithLabelValues("create").Inc()
		e.pipe.PostError(elementError(DomainLibrary, CodeSettings, true, "", "Failed to create encoder", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}
	s.dev = dev

	dev.SetCallbacks(device.Callbacks{
		SignalEOS: func() { e.handle(s, event{kind: eventEOS}) },
		Error:     func(code int) { e.handle(s, event{kind: eventError, code: code}) },
	})
	dev.SetDataCallbacks(device.DataCallbacks{
		DataAvailable: func(d *device.CodecData) { e.handle(s, event{kind: eventData, data: d}) },
	})

	if err := dev.Start(); err != nil {
		metrics.SessionFailures.WithLabelValues("start").Inc()
		e.pipe.PostError(elementError(DomainLibrary, CodeInit, true, "", "Failed to start the encoder", err))
		dev.Destroy()
		span.RecordError(err)
		span.SetStatus(codes.Error, "start failed")
		return nil, err
	}

	metrics.SessionsActive.Inc()
	return s, nil
}

// outputCaps fixates the negotiated caps, applies the input geometry and lets
// the codec complement them.
func outputCaps(peer *caps.Caps, in VideoInfo, typ *codec.Type) *caps.Caps {
	out := peer.Fixate()
	if st := out.Structure(0); st != nil {
		st.Set("width", caps.Int(in.Width))
		st.Set("height", caps.Int(in.Height))
		if in.FPSDen > 0 {
			st.Set("framerate", caps.Fraction(in.FPSNum, in.FPSDen))
		}
	}
	if typ.Complement != nil {
		typ.Complement(out)
	}
	return out
}

// teardown stops and destroys the device and wakes a pending drain. It is
// safe to call more than once and must not be called with the stream lock
// held, since stopping the device waits for in-flight callbacks.
//
// The codec and output caps stay set: a submit that was inside Consume when
// the session was stopped still reads them.
func (s *session) teardown() {
	s.stopOnce.Do(func() {
		s.sync.abort()
		if s.dev != nil {
			s.dev.Stop()
			s.dev.Destroy()
		}
		metrics.SessionsActive.Dec()
		s.log.Info().Str(xglog.FieldEvent, "session.teardown").Msg("codec destroyed")
	})
}
