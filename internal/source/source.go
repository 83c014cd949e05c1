// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package source produces raw 4:2:0 frames for the encoder stage.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/hwenc/internal/encoder"
)

// PatternPath selects the built-in test pattern instead of a file.
const PatternPath = "pattern"

// ErrShortFrame is returned when the input ends in the middle of a frame.
var ErrShortFrame = errors.New("truncated raw frame")

// Frame is one raw input frame.
type Frame struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
}

// Source yields frames until io.EOF.
type Source interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// Options configures Open.
type Options struct {
	Info encoder.VideoInfo
	// Limit stops after this many frames; zero means unlimited.
	Limit int
	// Live paces frames at the nominal frame rate.
	Live bool
}

// Open returns a source for path: "-" or "" reads stdin, PatternPath generates a
// test pattern, anything else is a raw frame file.
func Open(path string, opts Options) (Source, error) {
	if err := opts.Info.Validate(); err != nil {
		return nil, err
	}
	switch path {
	case "-", "":
		return NewReader(io.NopCloser(os.Stdin), opts), nil
	case PatternPath:
		return NewPattern(opts), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return NewReader(f, opts), nil
}

type clock struct {
	info    encoder.VideoInfo
	limit   int
	n       int
	limiter *rate.Limiter
}

func newClock(opts Options) clock {
	c := clock{info: opts.Info, limit: opts.Limit}
	if opts.Live && opts.Info.FPS() > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.Info.FPSNum)/float64(opts.Info.FPSDen)), 1)
	}
	return c
}

// tick waits for the next frame slot and returns its timing.
func (c *clock) tick(ctx context.Context) (pts, dur time.Duration, err error) {
	if c.limit > 0 && c.n >= c.limit {
		return 0, 0, io.EOF
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, 0, err
		}
	} else if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	dur = c.info.FrameDuration()
	pts = time.Duration(c.n) * dur
	c.n++
	return pts, dur, nil
}

// Reader reads tightly packed raw frames.
type Reader struct {
	r     io.ReadCloser
	size  int
	clock clock
}

// NewReader wraps r. Frames are opts.Info.FrameSize() bytes each.
func NewReader(r io.ReadCloser, opts Options) *Reader {
	return &Reader{r: r, size: opts.Info.FrameSize(), clock: newClock(opts)}
}

// Next implements Source.
func (r *Reader) Next(ctx context.Context) (*Frame, error) {
	pts, dur, err := r.clock.tick(ctx)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, r.size)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: frame %d", ErrShortFrame, r.clock.n-1)
		}
		return nil, err
	}
	return &Frame{Data: buf, PTS: pts, Duration: dur}, nil
}

// Close implements Source.
func (r *Reader) Close() error { return r.r.Close() }

// Pattern generates a moving luma gradient with flat chroma.
type Pattern struct {
	info  encoder.VideoInfo
	clock clock
}

// NewPattern returns a pattern source.
func NewPattern(opts Options) *Pattern {
	return &Pattern{info: opts.Info, clock: newClock(opts)}
}

// Next implements Source.
func (p *Pattern) Next(ctx context.Context) (*Frame, error) {
	pts, dur, err := p.clock.tick(ctx)
	if err != nil {
		return nil, err
	}
	n := p.clock.n - 1
	buf := make([]byte, p.info.FrameSize())
	luma := p.info.Width * p.info.Height
	for y := 0; y < p.info.Height; y++ {
		row := buf[y*p.info.Width : (y+1)*p.info.Width]
		for x := range row {
			row[x] = byte(x + y + n*4)
		}
	}
	for i := luma; i < len(buf); i++ {
		buf[i] = 128
	}
	return &Frame{Data: buf, PTS: pts, Duration: dur}, nil
}

// Close implements Source.
func (p *Pattern) Close() error { return nil }
