// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import "fmt"

// FlowReturn is the result of pushing data downstream. Values mirror the
// usual media pipeline flow returns: zero is success, negative values stop
// the stream.
type FlowReturn int

const (
	FlowOK            FlowReturn = 0
	FlowNotLinked     FlowReturn = -1
	FlowFlushing      FlowReturn = -2
	FlowEOS           FlowReturn = -3
	FlowNotNegotiated FlowReturn = -4
	FlowError         FlowReturn = -5
)

func (f FlowReturn) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowNotLinked:
		return "not-linked"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowNotNegotiated:
		return "not-negotiated"
	case FlowError:
		return "error"
	}
	return fmt.Sprintf("flow(%d)", int(f))
}

// IsFailure reports whether f is a fatal result. Flushing and EOS stop the
// stream without being errors.
func (f FlowReturn) IsFailure() bool {
	return f < FlowOK && f != FlowFlushing && f != FlowEOS
}

// flowState is the downstream result shared between the submitting goroutine
// and device callbacks. Callers must hold the stream lock.
//
// Transitions: any result may replace a non-failure result; a failure is
// sticky until reset.
type flowState struct {
	ret FlowReturn
}

func (s *flowState) get() FlowReturn { return s.ret }

func (s *flowState) reset() { s.ret = FlowOK }

// store records r and reports whether it moved the state into failure, in
// which case the caller reports the failure. Later results never clear it.
func (s *flowState) store(r FlowReturn) (escalated bool) {
	if s.ret.IsFailure() {
		return false
	}
	s.ret = r
	return r.IsFailure()
}

// fail forces the error state.
func (s *flowState) fail() (escalated bool) {
	return s.store(FlowError)
}
