// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"fmt"

	"github.com/ManuGH/hwenc/internal/device"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/metrics"
)

type eventKind int

const (
	eventData eventKind = iota
	eventEOS
	eventError
)

func (k eventKind) String() string {
	switch k {
	case eventData:
		return "data"
	case eventEOS:
		return "eos"
	case eventError:
		return "error"
	}
	return "unknown"
}

// event is a device notification. All device callbacks are turned into
// events and handled here, on the device's goroutine.
type event struct {
	kind eventKind
	data *device.CodecData
	code int
}

func (e *Encoder) handle(s *session, ev event) {
	switch ev.kind {
	case eventData:
		e.dataAvailable(s, ev.data)
	case eventEOS:
		e.signalEOS(s)
	case eventError:
		e.deviceError(s, ev.code)
	default:
		s.log.Warn().Stringer(xglog.FieldEvent, ev.kind).Msg("unhandled device event")
	}
}

// dataAvailable matches one device output with the oldest pending frame and
// finishes it. Runs under the stream lock for its whole body.
func (e *Encoder) dataAvailable(s *session, data *device.CodecData) {
	e.pipe.Lock()
	defer e.pipe.Unlock()

	if e.sess != s {
		s.log.Warn().Str(xglog.FieldEvent, "output.stale").Msg("output from a torn down session, dropping")
		return
	}
	if data == nil {
		return
	}

	if data.CodecConfig {
		e.codecConfig(s, data.Data)
		return
	}

	frame := e.pipe.OldestFrame()
	if frame == nil {
		metrics.OrphanOutputs.Inc()
		e.stats.orphans.Add(1)
		s.log.Warn().Int(xglog.FieldSize, len(data.Data)).Msg("buffer without frame")
		return
	}

	if s.codec.ProcessData != nil {
		out, err := s.codec.ProcessData(data.Data)
		if err != nil {
			metrics.RetireFrame("process_failed")
			s.log.Warn().Err(err).Uint64(xglog.FieldFrame, frame.SystemFrameNumber).Msg("failed to process data")
			frame.Output = nil
		} else {
			frame.Output = out
		}
	} else {
		frame.Output = e.pipe.AllocateOutputBuffer(len(data.Data))
		copy(frame.Output, data.Data)
	}

	frame.PTS = data.PTS
	frame.DTS = data.DTS
	frame.SyncPoint = data.Sync

	if frame.Output != nil {
		metrics.FramesCompleted.WithLabelValues(s.codec.Name).Inc()
		e.stats.completed.Add(1)
		if !s.firstFrameSent {
			s.firstFrameSent = true
			s.log.Info().
				Str(xglog.FieldEvent, "output.first").
				Dur(xglog.FieldPTS, frame.PTS).
				Bool("sync", frame.SyncPoint).
				Msg("first encoded frame")
		}
	}

	ret := e.pipe.FinishFrame(frame)
	switch {
	case ret == FlowOK, ret == FlowFlushing:
	case ret == FlowEOS:
		s.log.Info().Str(xglog.FieldFlow, ret.String()).Msg("eos")
	case ret.IsFailure():
		s.log.Error().Str(xglog.FieldFlow, ret.String()).Msg("downstream stopped the stream")
	}
	if e.flow.store(ret) {
		e.pipe.PostError(elementError(DomainStream, CodeFailed, true, "Internal data stream error.",
			fmt.Sprintf("stream stopped, reason %s", ret), nil))
	}
}

// codecConfig replaces the session codec data. Failures degrade the stream
// but do not stop it.
func (e *Encoder) codecConfig(s *session, raw []byte) {
	s.log.Info().Int(xglog.FieldSize, len(raw)).Msg("received codec data")

	if s.codec.ConstructCodecData == nil {
		metrics.CodecConfigs.WithLabelValues("failed").Inc()
		e.pipe.PostError(elementError(DomainStream, CodeFormat, false, "",
			fmt.Sprintf("codec %s cannot construct codec data. Expect corrupted stream", s.codec.Name), nil))
		return
	}

	payload, err := s.codec.ConstructCodecData(raw)
	if err != nil {
		metrics.CodecConfigs.WithLabelValues("failed").Inc()
		e.pipe.PostError(elementError(DomainStream, CodeFormat, false, "",
			"Failed to construct codec_data. Expect corrupted stream", err))
		return
	}
	if payload == nil {
		metrics.CodecConfigs.WithLabelValues("empty").Inc()
		return
	}
	metrics.CodecConfigs.WithLabelValues("ok").Inc()
	s.codecData = payload
}

func (e *Encoder) signalEOS(s *session) {
	if !s.sync.signal() {
		s.log.Warn().Str(xglog.FieldEvent, "eos.unexpected").Msg("codec signaled EOS but we are not expecting it")
		return
	}
	s.log.Debug().Str(xglog.FieldEvent, "eos").Msg("codec signaled EOS")
}

// deviceError handles a device runtime error. While draining the error is
// taken as end of stream: some drivers report an error instead of EOS when
// flushed. This also hides unrelated faults that happen during a drain.
func (e *Encoder) deviceError(s *session, code int) {
	if s.sync.onError() {
		metrics.DeviceErrors.WithLabelValues("swallowed").Inc()
		e.stats.swallowed.Add(1)
		s.log.Warn().Int("code", code).Msg("codec error while draining, treating as EOS")
		return
	}

	metrics.DeviceErrors.WithLabelValues("fatal").Inc()

	e.pipe.Lock()
	defer e.pipe.Unlock()
	if e.sess != s {
		s.log.Warn().Int("code", code).Msg("codec error from a torn down session")
		return
	}
	if e.flow.fail() {
		s.log.Error().Int("code", code).Msg("codec error")
		e.pipe.PostError(elementError(DomainLibrary, CodeFailed, true, "",
			fmt.Sprintf("error 0x%x from codec", -code), nil))
	}
}
