// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sink

import (
	"sync"

	"github.com/ManuGH/hwenc/internal/encoder"
)

// Memory collects samples in memory. It can be told to return a specific
// flow result, which tests use to simulate downstream failures.
type Memory struct {
	mu      sync.Mutex
	formats []Format
	samples []*Sample
	eos     bool
	closed  bool
	ret     encoder.FlowReturn
}

// NewMemory returns an empty memory sink.
func NewMemory() *Memory { return &Memory{} }

// ReturnFlow sets the result of subsequent writes.
func (m *Memory) ReturnFlow(ret encoder.FlowReturn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ret = ret
}

func (m *Memory) SetFormat(f Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.formats = append(m.formats, f)
	return nil
}

func (m *Memory) Write(s *Sample) encoder.FlowReturn {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return encoder.FlowFlushing
	case m.eos:
		return encoder.FlowEOS
	}
	m.samples = append(m.samples, s)
	return m.ret
}

func (m *Memory) EOS() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eos = true
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Samples returns a copy of the received samples.
func (m *Memory) Samples() []*Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Sample(nil), m.samples...)
}

// Formats returns every announced format.
func (m *Memory) Formats() []Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Format(nil), m.formats...)
}

// GotEOS reports whether EOS was received.
func (m *Memory) GotEOS() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eos
}
