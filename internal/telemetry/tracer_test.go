// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "hwenc", ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "hwenc", ExporterType: "zipkin"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: zipkin (supported: grpc, http)", err.Error())
}

func TestNewProvider_ExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "hwenc",
		SamplingRate: 1,
		Exporter:     exp,
	})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	_, span := Tracer("test").Start(context.Background(), "encoder.configure")
	span.SetAttributes(SessionAttributes("abc", "h264", 192000, 320, 240)...)
	span.End()
	require.NoError(t, provider.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "encoder.configure", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String(ResolutionKey, "320x240"))
	assert.Contains(t, spans[0].Attributes, attribute.Int(BitrateKey, 192000))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestSessionAttributesSkipsEmpty(t *testing.T) {
	attrs := SessionAttributes("", "", 0, 0, 0)
	assert.Equal(t, []attribute.KeyValue{attribute.Int(BitrateKey, 0)}, attrs)
	assert.Len(t, FlowAttributes("ok", true), 2)
}
