// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sink

import (
	"encoding/binary"
	"fmt"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/hwenc/internal/codec"
	"github.com/ManuGH/hwenc/internal/encoder"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/metrics"
)

const ivfHeaderSize = 32

// File writes an elementary stream to a file that only appears at its final
// path once the stream ended: H.264 as Annex B, VP8 in an IVF container and
// everything else as concatenated samples. Closing without EOS discards the
// output.
type File struct {
	path    string
	logger  zerolog.Logger
	pending *renameio.PendingFile

	format  Format
	frames  uint32
	written int64
	done    bool
}

// NewFile creates the pending output for path.
func NewFile(path string, logger zerolog.Logger) (*File, error) {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, fmt.Errorf("create pending output file: %w", err)
	}
	return &File{
		path:    path,
		pending: pending,
		logger:  logger.With().Str(xglog.FieldSink, "file").Str(xglog.FieldPath, path).Logger(),
	}, nil
}

func (f *File) SetFormat(format Format) error {
	if f.done {
		return ErrClosed
	}
	first := f.format.Codec == ""
	f.format = format

	switch format.Codec {
	case "h264":
		if len(format.CodecData) == 0 {
			return nil
		}
		sps, pps, err := codec.ParameterSetsFromAVCC(format.CodecData)
		if err != nil {
			return fmt.Errorf("codec data: %w", err)
		}
		for _, nal := range append(sps, pps...) {
			if err := f.write(append([]byte{0, 0, 0, 1}, nal...)); err != nil {
				return err
			}
		}
	case "vp8":
		if first {
			return f.write(f.ivfHeader())
		}
	default:
		if len(format.CodecData) > 0 {
			return f.write(format.CodecData)
		}
	}
	return nil
}

func (f *File) Write(s *Sample) encoder.FlowReturn {
	if f.done {
		return encoder.FlowFlushing
	}
	data := s.Data
	switch f.format.Codec {
	case "h264":
		annexB, err := codec.AVCToAnnexB(s.Data)
		if err != nil {
			f.logger.Error().Err(err).Uint64(xglog.FieldFrame, s.FrameNumber).Msg("bad sample")
			return encoder.FlowError
		}
		data = annexB
	case "vp8":
		hdr := make([]byte, 12)
		binary.LittleEndian.PutUint32(hdr[0:], uint32(len(s.Data)))
		binary.LittleEndian.PutUint64(hdr[4:], uint64(s.PTS.Microseconds()))
		if err := f.write(hdr); err != nil {
			return encoder.FlowError
		}
	}
	if err := f.write(data); err != nil {
		return encoder.FlowError
	}
	f.frames++
	return encoder.FlowOK
}

func (f *File) write(b []byte) error {
	n, err := f.pending.Write(b)
	f.written += int64(n)
	metrics.SinkBytes.WithLabelValues("file").Add(float64(n))
	if err != nil {
		f.logger.Error().Err(err).Msg("write failed")
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// ivfHeader uses a microsecond timebase to match the frame timestamps.
func (f *File) ivfHeader() []byte {
	w, h := f.format.Dimensions()
	hdr := make([]byte, ivfHeaderSize)
	copy(hdr, "DKIF")
	binary.LittleEndian.PutUint16(hdr[4:], 0)
	binary.LittleEndian.PutUint16(hdr[6:], ivfHeaderSize)
	copy(hdr[8:], "VP80")
	binary.LittleEndian.PutUint16(hdr[12:], uint16(w))
	binary.LittleEndian.PutUint16(hdr[14:], uint16(h))
	binary.LittleEndian.PutUint32(hdr[16:], 1000000)
	binary.LittleEndian.PutUint32(hdr[20:], 1)
	return hdr
}

// EOS commits the file to its final path.
func (f *File) EOS() error {
	if f.done {
		return nil
	}
	f.done = true
	if f.format.Codec == "vp8" {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], f.frames)
		if _, err := f.pending.WriteAt(n[:], 24); err != nil {
			return fmt.Errorf("patch ivf frame count: %w", err)
		}
	}
	if err := f.pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace output file: %w", err)
	}
	f.logger.Info().
		Uint32("frames", f.frames).
		Int64("bytes", f.written).
		Msg("output written")
	return nil
}

// Close discards the output unless EOS committed it.
func (f *File) Close() error {
	f.done = true
	if err := f.pending.Cleanup(); err != nil {
		f.logger.Debug().Err(err).Msg("cleanup pending output file")
		return err
	}
	return nil
}
