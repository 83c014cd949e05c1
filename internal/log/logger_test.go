// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconfigureWritesComponentAndSession(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "hwenc-test"})
	t.Cleanup(func() { Reconfigure(Config{Output: &bytes.Buffer{}}) })

	ctx := ContextWithSessionID(context.Background(), "abc")
	l := WithComponentFromContext(ctx, "encoder")
	l.Info().Str(FieldEvent, "session.configured").Msg("configured")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hwenc-test", entry["service"])
	assert.Equal(t, "encoder", entry[FieldComponent])
	assert.Equal(t, "abc", entry[FieldSessionID])
	assert.Equal(t, "session.configured", entry[FieldEvent])
}

func TestParseLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))

	t.Setenv("LOG_LEVEL", "error")
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(""))
}

func TestSessionIDFromContext(t *testing.T) {
	assert.Empty(t, SessionIDFromContext(context.Background()))
	//nolint:staticcheck // nil context is handled
	assert.Empty(t, SessionIDFromContext(nil))
	assert.Equal(t, "s1", SessionIDFromContext(ContextWithSessionID(context.Background(), "s1")))
}
