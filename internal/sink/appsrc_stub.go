// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !gst

package sink

import (
	"errors"

	"github.com/rs/zerolog"
)

// ErrGStreamerUnavailable is returned when the binary was built without the gst tag.
var ErrGStreamerUnavailable = errors.New("gstreamer sink not compiled in (build with -tags gst)")

// NewAppSrc always fails without GStreamer support.
func NewAppSrc(string, zerolog.Logger) (Sink, error) {
	return nil, ErrGStreamerUnavailable
}
