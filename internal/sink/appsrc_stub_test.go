// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !gst

package sink

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAppSrcUnavailableWithoutTag(t *testing.T) {
	s, err := NewAppSrc("fakesink", zerolog.Nop())
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrGStreamerUnavailable)
}
