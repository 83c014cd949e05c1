// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldStageID   = "stage_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldFlow      = "flow"

	// Media / stream fields
	FieldCodec      = "codec"
	FieldMime       = "mime"
	FieldCaps       = "caps"
	FieldResolution = "resolution"
	FieldFPS        = "fps"
	FieldBitrate    = "bitrate"
	FieldFrame      = "frame"
	FieldPTS        = "pts"
	FieldDTS        = "dts"
	FieldSize       = "size"
	FieldDevice     = "device"
	FieldSink       = "sink"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath = "path"
	FieldAddr = "addr"
)
