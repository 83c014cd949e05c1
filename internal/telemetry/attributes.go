// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the encoder.
const (
	SessionIDKey  = "hwenc.session_id"
	CodecKey      = "hwenc.codec"
	BitrateKey    = "hwenc.bitrate"
	ResolutionKey = "hwenc.resolution"
	FlowKey       = "hwenc.flow"
	DrainedKey    = "hwenc.drained"
)

// SessionAttributes describes an encoder session.
func SessionAttributes(sessionID, codec string, bitrate, width, height int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if codec != "" {
		attrs = append(attrs, attribute.String(CodecKey, codec))
	}
	attrs = append(attrs, attribute.Int(BitrateKey, bitrate))
	if width > 0 && height > 0 {
		attrs = append(attrs, attribute.String(ResolutionKey, fmt.Sprintf("%dx%d", width, height)))
	}
	return attrs
}

// FlowAttributes records the outcome of a drain.
func FlowAttributes(flow string, drained bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(FlowKey, flow),
		attribute.Bool(DrainedKey, drained),
	}
}
