// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hwenc/internal/encoder"
)

var qcif = encoder.VideoInfo{Format: "I420", Width: 4, Height: 2, FPSNum: 25, FPSDen: 1}

func TestReaderSplitsFrames(t *testing.T) {
	size := qcif.FrameSize()
	require.Equal(t, 12, size)

	raw := bytes.Repeat([]byte{1}, size)
	raw = append(raw, bytes.Repeat([]byte{2}, size)...)
	r := NewReader(io.NopCloser(bytes.NewReader(raw)), Options{Info: qcif})

	ctx := context.Background()
	f, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), f.PTS)
	assert.Equal(t, 40*time.Millisecond, f.Duration)
	assert.Equal(t, byte(1), f.Data[0])

	f, err = r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, f.PTS)
	assert.Equal(t, byte(2), f.Data[size-1])

	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, r.Close())
}

func TestReaderShortFrame(t *testing.T) {
	r := NewReader(io.NopCloser(bytes.NewReader(make([]byte, 5))), Options{Info: qcif})
	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestReaderLimitAndContext(t *testing.T) {
	raw := make([]byte, qcif.FrameSize()*4)
	r := NewReader(io.NopCloser(bytes.NewReader(raw)), Options{Info: qcif, Limit: 1})
	_, err := r.Next(context.Background())
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r = NewReader(io.NopCloser(bytes.NewReader(raw)), Options{Info: qcif})
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPatternMoves(t *testing.T) {
	p := NewPattern(Options{Info: qcif, Limit: 2})
	ctx := context.Background()

	a, err := p.Next(ctx)
	require.NoError(t, err)
	b, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, a.Data, qcif.FrameSize())
	assert.NotEqual(t, a.Data[0], b.Data[0])
	assert.Equal(t, byte(128), a.Data[len(a.Data)-1])

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.yuv")
	require.NoError(t, os.WriteFile(path, make([]byte, qcif.FrameSize()), 0o600))

	src, err := Open(path, Options{Info: qcif})
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Next(context.Background())
	require.NoError(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing.yuv"), Options{Info: qcif})
	assert.Error(t, err)

	_, err = Open(PatternPath, Options{Info: encoder.VideoInfo{}})
	assert.Error(t, err)

	src, err = Open(PatternPath, Options{Info: qcif})
	require.NoError(t, err)
	assert.IsType(t, &Pattern{}, src)
}
