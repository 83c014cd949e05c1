// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sink

import (
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/rs/zerolog"

	"github.com/ManuGH/hwenc/internal/codec"
	"github.com/ManuGH/hwenc/internal/encoder"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/metrics"
)

const (
	rtpClockRate  = 90000
	defaultRTPMTU = 1200
)

// RTPConfig configures an RTP sink.
type RTPConfig struct {
	PayloadType uint8
	SSRC        uint32 // random when zero
	MTU         uint16 // 1200 when zero
}

// RTP packetizes H.264 and VP8 samples and writes one packet per Write call
// on the underlying writer, typically a connected UDP socket.
type RTP struct {
	w      io.Writer
	cfg    RTPConfig
	logger zerolog.Logger

	packetizer rtp.Packetizer
	codec      string
	sps, pps   [][]byte
	packets    uint64
}

// NewRTP returns an RTP sink writing to w.
func NewRTP(w io.Writer, cfg RTPConfig, logger zerolog.Logger) *RTP {
	if cfg.MTU == 0 {
		cfg.MTU = defaultRTPMTU
	}
	if cfg.SSRC == 0 {
		cfg.SSRC = rand.Uint32()
	}
	return &RTP{
		w:      w,
		cfg:    cfg,
		logger: logger.With().Str(xglog.FieldSink, "rtp").Uint32("ssrc", cfg.SSRC).Logger(),
	}
}

func (r *RTP) SetFormat(f Format) error {
	var payloader rtp.Payloader
	switch f.Codec {
	case "h264":
		payloader = &codecs.H264Payloader{}
		if len(f.CodecData) > 0 {
			sps, pps, err := codec.ParameterSetsFromAVCC(f.CodecData)
			if err != nil {
				return fmt.Errorf("codec data: %w", err)
			}
			r.sps, r.pps = sps, pps
		}
	case "vp8":
		payloader = &codecs.VP8Payloader{}
	default:
		return fmt.Errorf("rtp sink: unsupported codec %q", f.Codec)
	}
	if r.packetizer == nil || r.codec != f.Codec {
		r.packetizer = rtp.NewPacketizer(r.cfg.MTU, r.cfg.PayloadType, r.cfg.SSRC,
			payloader, rtp.NewRandomSequencer(), rtpClockRate)
		r.codec = f.Codec
	}
	return nil
}

func (r *RTP) Write(s *Sample) encoder.FlowReturn {
	if r.packetizer == nil {
		return encoder.FlowNotNegotiated
	}
	payload := s.Data
	if r.codec == "h264" {
		annexB, err := codec.AVCToAnnexB(s.Data)
		if err != nil {
			r.logger.Error().Err(err).Uint64(xglog.FieldFrame, s.FrameNumber).Msg("bad sample")
			return encoder.FlowError
		}
		if s.Sync {
			annexB = append(r.parameterSets(), annexB...)
		}
		payload = annexB
	}

	for _, pkt := range r.packetizer.Packetize(payload, ticks(s.Duration)) {
		b, err := pkt.Marshal()
		if err != nil {
			r.logger.Error().Err(err).Msg("marshal rtp packet")
			return encoder.FlowError
		}
		n, err := r.w.Write(b)
		metrics.SinkBytes.WithLabelValues("rtp").Add(float64(n))
		if err != nil {
			r.logger.Error().Err(err).Msg("write rtp packet")
			return encoder.FlowError
		}
		r.packets++
	}
	return encoder.FlowOK
}

func (r *RTP) parameterSets() []byte {
	var out []byte
	for _, nal := range append(append([][]byte(nil), r.sps...), r.pps...) {
		out = append(out, 0, 0, 0, 1)
		out = append(out, nal...)
	}
	return out
}

func (r *RTP) EOS() error {
	r.logger.Info().Uint64("packets", r.packets).Msg("rtp stream ended")
	return nil
}

// Close closes the writer if it is an io.Closer.
func (r *RTP) Close() error {
	if c, ok := r.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func ticks(d time.Duration) uint32 {
	return uint32(d * rtpClockRate / time.Second)
}
