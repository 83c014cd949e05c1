// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stage is the pipeline the encoder runs in: it owns the stream
// lock, the queue of pending frames and the downstream sink, and reports
// element errors on a message bus.
package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/hwenc/internal/bus"
	"github.com/ManuGH/hwenc/internal/caps"
	"github.com/ManuGH/hwenc/internal/codec"
	"github.com/ManuGH/hwenc/internal/device"
	"github.com/ManuGH/hwenc/internal/encoder"
	"github.com/ManuGH/hwenc/internal/fsm"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/sink"
)

// ErrNotRunning is returned by operations that need a started stage.
var ErrNotRunning = errors.New("stage not running")

// Options configures a Stage.
type Options struct {
	Name    string // "hwenc" when empty
	Factory device.Factory
	Sink    sink.Sink
	// Bus defaults to an in-memory bus.
	Bus      bus.Bus
	Resolver *codec.Resolver
	Logger   *zerolog.Logger
	Tracer   trace.Tracer
}

// Stage runs an encoder.Encoder against a sink.
type Stage struct {
	name   string
	sink   sink.Sink
	bus    bus.Bus
	enc    *encoder.Encoder
	life   *fsm.Machine[State, Event]
	logger zerolog.Logger

	// mu is the stream lock. Everything below it is guarded by it.
	mu        sync.Mutex
	pending   []*encoder.Frame
	seq       uint64
	format    sink.Format
	announced bool

	lastError atomic.Pointer[encoder.ElementError]
}

// New builds a stage and its encoder.
func New(opts Options) (*Stage, error) {
	if opts.Sink == nil {
		return nil, errors.New("stage: sink is required")
	}
	s := &Stage{
		name: opts.Name,
		sink: opts.Sink,
		bus:  opts.Bus,
		life: newLifecycle(),
	}
	if s.name == "" {
		s.name = "hwenc"
	}
	if s.bus == nil {
		s.bus = bus.NewMemoryBus()
	}
	root := xglog.Base()
	if opts.Logger != nil {
		root = *opts.Logger
	}
	root = root.With().Str(xglog.FieldStageID, s.name).Logger()
	s.logger = root.With().Str(xglog.FieldComponent, "stage").Logger()

	enc, err := encoder.New(encoder.Options{
		Pipeline: s,
		Factory:  opts.Factory,
		Resolver: opts.Resolver,
		Logger:   &root,
		Tracer:   opts.Tracer,
	})
	if err != nil {
		return nil, err
	}
	s.enc = enc

	s.life.Observe(func(from, to State, event Event) {
		s.logger.Debug().
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(to)).
			Str(xglog.FieldEvent, string(event)).
			Msg("state changed")
		s.bus.Post(s.name, bus.Message{
			Kind:   bus.KindStateChanged,
			Source: s.name,
			Time:   time.Now(),
			Text:   string(to),
		})
	})
	return s, nil
}

// Lock acquires the stream lock.
func (s *Stage) Lock() { s.mu.Lock() }

// Unlock releases the stream lock.
func (s *Stage) Unlock() { s.mu.Unlock() }

// Encoder returns the stage's encoder, e.g. to change the target bitrate.
func (s *Stage) Encoder() *encoder.Encoder { return s.enc }

// State returns the lifecycle state.
func (s *Stage) State() State { return s.life.State() }

// Messages subscribes to the stage's bus messages.
func (s *Stage) Messages(ctx context.Context) (bus.Subscriber, error) {
	return s.bus.Subscribe(ctx, s.name)
}

// Start prepares the stage for a new stream.
func (s *Stage) Start(ctx context.Context) error {
	if !s.life.Can(EventStart) {
		return fmt.Errorf("start: %w: state=%s", fsm.ErrInvalidTransition, s.State())
	}
	if err := s.enc.Open(); err != nil {
		return err
	}
	if err := s.enc.Start(); err != nil {
		return err
	}
	s.lastError.Store(nil)
	_, err := s.life.Fire(ctx, EventStart)
	return err
}

// SetFormat configures the encoder for the raw input and the caps accepted
// downstream.
func (s *Stage) SetFormat(ctx context.Context, in encoder.VideoInfo, downstream *caps.Caps) error {
	if !s.life.Can(EventConfigure) {
		return fmt.Errorf("set format: %w: state=%s", fsm.ErrInvalidTransition, s.State())
	}
	s.mu.Lock()
	err := s.enc.SetFormat(ctx, in, downstream)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	_, err = s.life.Fire(ctx, EventConfigure)
	return err
}

// Push queues one raw frame and submits it to the encoder. It blocks while
// the device has no room for input.
func (s *Stage) Push(ctx context.Context, input []byte, pts, duration time.Duration) encoder.FlowReturn {
	switch s.State() {
	case StateConfigured:
	case StateDrained:
		return encoder.FlowEOS
	case StateNull:
		return encoder.FlowFlushing
	default:
		return encoder.FlowNotNegotiated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	f := &encoder.Frame{
		SystemFrameNumber: s.seq,
		PTS:               pts,
		DTS:               pts,
		Duration:          duration,
		Input:             input,
	}
	s.pending = append(s.pending, f)
	return s.enc.HandleFrame(ctx, f)
}

// Drain waits until every pushed frame went through the device, then ends
// the downstream stream. Frames the device never completed are retired. A
// downstream failure recorded during the stream is returned instead of OK.
//
// When the wait is cut short (FlowFlushing) the session is still live and its
// pending frames stay queued until their outputs arrive or Stop drops them.
// On any other result no frame is left pending.
func (s *Stage) Drain(ctx context.Context) encoder.FlowReturn {
	if !s.life.Can(EventDrain) {
		s.logger.Warn().Str("state", string(s.State())).Msg("drain in wrong state")
		return encoder.FlowFlushing
	}

	s.mu.Lock()
	ret := s.enc.Finish(ctx)
	if ret == encoder.FlowOK && s.enc.Flow().IsFailure() {
		ret = s.enc.Flow()
	}
	if n := len(s.pending); n > 0 && ret != encoder.FlowFlushing {
		s.logger.Warn().Int("frames", n).Str("flow", ret.String()).Msg("frames left pending after drain")
		for len(s.pending) > 0 {
			f := s.pending[0]
			f.Output = nil
			s.FinishFrame(f)
		}
	}
	s.mu.Unlock()

	if ret != encoder.FlowOK {
		return ret
	}
	if err := s.sink.EOS(); err != nil {
		s.logger.Error().Err(err).Msg("sink end of stream failed")
		s.post(bus.KindError, err)
		return encoder.FlowError
	}
	if _, err := s.life.Fire(ctx, EventDrain); err != nil {
		return encoder.FlowFlushing
	}
	if err := s.bus.Publish(ctx, s.name, bus.Message{Kind: bus.KindEOS, Source: s.name, Time: time.Now()}); err != nil {
		s.logger.Debug().Err(err).Msg("eos message not delivered")
	}
	return encoder.FlowOK
}

// Stop tears the encoder session down and drops pending frames. The stage
// can be started again afterwards; the sink stays open until Close.
func (s *Stage) Stop(ctx context.Context) error {
	if !s.life.Can(EventStop) {
		return nil
	}
	if err := s.enc.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	if n := len(s.pending); n > 0 {
		s.logger.Debug().Int("frames", n).Msg("dropping pending frames")
	}
	s.pending = nil
	s.announced = false
	s.format = sink.Format{}
	s.mu.Unlock()

	if err := s.enc.Close(); err != nil {
		return err
	}
	_, err := s.life.Fire(ctx, EventStop)
	return err
}

// Close stops the stage and closes the sink.
func (s *Stage) Close() error {
	err := s.Stop(context.Background())
	return errors.Join(err, s.sink.Close())
}

// Pending returns the number of frames waiting for the device.
func (s *Stage) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// LastError returns the last fatal element error since Start, if any.
func (s *Stage) LastError() *encoder.ElementError {
	return s.lastError.Load()
}

// OldestFrame implements encoder.Pipeline.
func (s *Stage) OldestFrame() *encoder.Frame {
	if len(s.pending) == 0 {
		return nil
	}
	return s.pending[0]
}

// AllocateOutputBuffer implements encoder.Pipeline.
func (s *Stage) AllocateOutputBuffer(size int) []byte {
	return make([]byte, size)
}

// FinishFrame implements encoder.Pipeline. Frames without output are only
// removed from the queue.
func (s *Stage) FinishFrame(f *encoder.Frame) encoder.FlowReturn {
	s.remove(f)
	if f.Output == nil {
		return encoder.FlowOK
	}
	if err := s.announce(); err != nil {
		s.logger.Error().Err(err).Msg("sink rejected format")
		return encoder.FlowNotNegotiated
	}
	return s.sink.Write(&sink.Sample{
		FrameNumber: f.SystemFrameNumber,
		Data:        f.Output,
		PTS:         f.PTS,
		DTS:         f.DTS,
		Duration:    f.Duration,
		Sync:        f.SyncPoint,
	})
}

func (s *Stage) remove(f *encoder.Frame) {
	for i, p := range s.pending {
		if p == f {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// announce tells the sink about the output format before the first sample
// and whenever the codec data changed.
func (s *Stage) announce() error {
	st, ok := s.enc.OutputState()
	if !ok {
		return encoder.ErrNotConfigured
	}
	if s.announced && bytes.Equal(st.CodecData, s.format.CodecData) && st.Caps == s.format.Caps {
		return nil
	}
	format := sink.Format{Codec: st.Codec, Caps: st.Caps, CodecData: st.CodecData}
	if err := s.sink.SetFormat(format); err != nil {
		return err
	}
	s.format = format
	s.announced = true
	s.logger.Info().
		Str(xglog.FieldCodec, st.Codec).
		Str(xglog.FieldCaps, st.Caps).
		Int("codec_data", len(st.CodecData)).
		Msg("output format")
	return nil
}

// PostError implements encoder.Pipeline. It never blocks.
func (s *Stage) PostError(err *encoder.ElementError) {
	kind := bus.KindWarning
	ev := s.logger.Warn()
	if err.Fatal {
		kind = bus.KindError
		ev = s.logger.Error()
		s.lastError.Store(err)
	}
	ev.Err(err).
		Str("domain", err.Domain.String()).
		Str("code", err.Code.String()).
		Str("debug", err.Debug).
		Msg("element error")
	s.post(kind, err)
}

func (s *Stage) post(kind bus.Kind, err error) {
	s.bus.Post(s.name, bus.Message{Kind: kind, Source: s.name, Time: time.Now(), Err: err})
}
