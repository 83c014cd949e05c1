// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build gst

package sink

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/ManuGH/hwenc/internal/encoder"
	xglog "github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/metrics"
)

// AppSrcName is the element name the launch line must give its appsrc.
const AppSrcName = "hwenc"

// AppSrc feeds samples into a GStreamer pipeline through an appsrc element,
// for example "appsrc name=hwenc ! h264parse ! mp4mux ! filesink location=out.mp4".
type AppSrc struct {
	pipeline *gst.Pipeline
	src      *app.Source
	logger   zerolog.Logger
	playing  bool
}

// NewAppSrc parses the launch line and looks up the appsrc element.
func NewAppSrc(launch string, logger zerolog.Logger) (Sink, error) {
	if !strings.Contains(launch, "name="+AppSrcName) {
		launch = fmt.Sprintf("appsrc name=%s ! %s", AppSrcName, launch)
	}
	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("parse gstreamer pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName(AppSrcName)
	if err != nil {
		return nil, fmt.Errorf("find appsrc %q: %w", AppSrcName, err)
	}
	src := app.SrcFromElement(elem)
	if err := src.SetProperty("do-timestamp", true); err != nil {
		return nil, fmt.Errorf("configure appsrc: %w", err)
	}

	return &AppSrc{
		pipeline: pipeline,
		src:      src,
		logger:   logger.With().Str(xglog.FieldSink, "gst").Logger(),
	}, nil
}

func (a *AppSrc) SetFormat(f Format) error {
	c := f.Caps
	if len(f.CodecData) > 0 {
		c = fmt.Sprintf("%s, codec_data=(buffer)%x", c, f.CodecData)
	}
	a.src.SetCaps(gst.NewCapsFromString(c))
	a.logger.Debug().Str(xglog.FieldCaps, c).Msg("appsrc caps set")

	if !a.playing {
		if err := a.pipeline.SetState(gst.StatePlaying); err != nil {
			return fmt.Errorf("start gstreamer pipeline: %w", err)
		}
		a.playing = true
	}
	return nil
}

func (a *AppSrc) Write(s *Sample) encoder.FlowReturn {
	ret := a.src.PushBuffer(gst.NewBufferFromBytes(s.Data))
	if ret == gst.FlowOK {
		metrics.SinkBytes.WithLabelValues("gst").Add(float64(len(s.Data)))
	}
	return fromGst(ret)
}

func (a *AppSrc) EOS() error {
	if ret := a.src.EndStream(); ret != gst.FlowOK {
		return fmt.Errorf("appsrc end of stream: %s", fromGst(ret))
	}
	return nil
}

func (a *AppSrc) Close() error {
	a.playing = false
	return a.pipeline.SetState(gst.StateNull)
}

func fromGst(ret gst.FlowReturn) encoder.FlowReturn {
	switch ret {
	case gst.FlowOK:
		return encoder.FlowOK
	case gst.FlowNotLinked:
		return encoder.FlowNotLinked
	case gst.FlowFlushing:
		return encoder.FlowFlushing
	case gst.FlowEOS:
		return encoder.FlowEOS
	case gst.FlowNotNegotiated:
		return encoder.FlowNotNegotiated
	default:
		return encoder.FlowError
	}
}
