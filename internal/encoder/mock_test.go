// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hwenc/internal/caps"
	"github.com/ManuGH/hwenc/internal/device"
)

// testPipeline is a minimal stage: a stream lock and a pending queue.
type testPipeline struct {
	sync.Mutex

	pending  []*Frame
	finished []*Frame
	errs     []*ElementError
	// next is returned by FinishFrame for frames with output.
	next FlowReturn
	seq  uint64
}

func (p *testPipeline) OldestFrame() *Frame {
	if len(p.pending) == 0 {
		return nil
	}
	return p.pending[0]
}

func (p *testPipeline) AllocateOutputBuffer(size int) []byte { return make([]byte, size) }

func (p *testPipeline) FinishFrame(f *Frame) FlowReturn {
	for i, pf := range p.pending {
		if pf == f {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			break
		}
	}
	p.finished = append(p.finished, f)
	if f.Output == nil {
		return FlowOK
	}
	return p.next
}

func (p *testPipeline) PostError(err *ElementError) {
	p.errs = append(p.errs, err)
}

// push queues a frame and submits it the way a stage does.
func (p *testPipeline) push(t *testing.T, e *Encoder, pts time.Duration) (*Frame, FlowReturn) {
	t.Helper()
	p.Lock()
	defer p.Unlock()
	p.seq++
	f := &Frame{SystemFrameNumber: p.seq, PTS: pts, Input: []byte{byte(p.seq)}}
	p.pending = append(p.pending, f)
	return f, e.HandleFrame(context.Background(), f)
}

func (p *testPipeline) snapshot() (pending, finished []*Frame, errs []*ElementError) {
	p.Lock()
	defer p.Unlock()
	return append([]*Frame(nil), p.pending...), append([]*Frame(nil), p.finished...), append([]*ElementError(nil), p.errs...)
}

func (p *testPipeline) fatalErrors() int {
	_, _, errs := p.snapshot()
	n := 0
	for _, e := range errs {
		if e.Fatal {
			n++
		}
	}
	return n
}

// mockDevice records calls and lets tests fire callbacks directly.
type mockDevice struct {
	mu       sync.Mutex
	params   device.Params
	cb       device.Callbacks
	dataCb   device.DataCallbacks
	consumed []*device.InputFrame
	started  bool
	stops    int
	destroys int
	drains   int

	startErr   error
	consumeErr error
	// onConsume runs inside Consume, without the stream lock.
	onConsume func(*device.InputFrame) error
	// onDrain runs inside Drain.
	onDrain func()
}

func (d *mockDevice) SetCallbacks(cb device.Callbacks)         { d.cb = cb }
func (d *mockDevice) SetDataCallbacks(cb device.DataCallbacks) { d.dataCb = cb }

func (d *mockDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	return nil
}

func (d *mockDevice) Consume(_ context.Context, f *device.InputFrame) error {
	d.mu.Lock()
	err := d.consumeErr
	if err == nil {
		d.consumed = append(d.consumed, f)
	}
	hook := d.onConsume
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		return hook(f)
	}
	return nil
}

func (d *mockDevice) Drain() {
	d.mu.Lock()
	d.drains++
	hook := d.onDrain
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (d *mockDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
}

func (d *mockDevice) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroys++
}

func (d *mockDevice) consumedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.consumed)
}

func (d *mockDevice) output(data []byte, pts time.Duration, key bool) {
	d.dataCb.DataAvailable(&device.CodecData{Data: data, PTS: pts, DTS: pts, Sync: key})
}

func (d *mockDevice) codecConfig(data []byte) {
	d.dataCb.DataAvailable(&device.CodecData{Data: data, CodecConfig: true})
}

func (d *mockDevice) eos()          { d.cb.SignalEOS() }
func (d *mockDevice) fail(code int) { d.cb.Error(code) }

type harness struct {
	pipe    *testPipeline
	dev     *mockDevice
	enc     *Encoder
	creates int
	params  []device.Params
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{pipe: &testPipeline{}, dev: &mockDevice{}}
	nop := zerolog.Nop()
	enc, err := New(Options{
		Pipeline: h.pipe,
		Factory: device.FactoryFunc(func(p device.Params) (device.Device, error) {
			h.creates++
			h.params = append(h.params, p)
			h.dev.params = p
			return h.dev, nil
		}),
		Logger: &nop,
	})
	require.NoError(t, err)
	require.NoError(t, enc.Start())
	h.enc = enc
	return h
}

var testInput = VideoInfo{Format: "I420", Width: 320, Height: 240, FPSNum: 30, FPSDen: 1}

// configure sets up a session for the caps under the stream lock.
func (h *harness) configure(t *testing.T, c string) {
	t.Helper()
	h.pipe.Lock()
	defer h.pipe.Unlock()
	require.NoError(t, h.enc.SetFormat(context.Background(), testInput, caps.MustParse(c)))
}

// finish runs Finish under the stream lock in the background.
func (h *harness) finish(ctx context.Context) <-chan FlowReturn {
	out := make(chan FlowReturn, 1)
	go func() {
		h.pipe.Lock()
		defer h.pipe.Unlock()
		out <- h.enc.Finish(ctx)
	}()
	return out
}

func waitFlow(t *testing.T, ch <-chan FlowReturn) FlowReturn {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for drain")
		return FlowError
	}
}

// waitDraining blocks until a drain is in progress.
func (h *harness) waitDraining(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.dev.mu.Lock()
		defer h.dev.mu.Unlock()
		return h.dev.drains > 0
	}, 5*time.Second, time.Millisecond)
}
